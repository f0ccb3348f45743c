package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/logger"
)

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) (int64, error)
	Read(ctx context.Context, id int64) (*model.Campaign, error)
	Delete(ctx context.Context, id int64) error
	BatchDelete(ctx context.Context, ids []int64) ([]int64, map[int64]error)
	Query(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, error)
	Count(ctx context.Context, f model.CampaignFilter) (int64, error)
	UpdateMeta(ctx context.Context, ownerID int64, key string, value any) error
	AllMeta(ctx context.Context, ownerID int64) (map[string][]json.RawMessage, error)
}

type CampaignService struct {
	repo CampaignRepository
	now  func() time.Time
}

func NewCampaignService(repo CampaignRepository) *CampaignService {
	return &CampaignService{repo: repo, now: time.Now}
}

type CampaignList struct {
	Items      []*model.CampaignView
	Total      int64
	TotalPages int64
}

func (s *CampaignService) List(ctx context.Context, f model.CampaignFilter) (*CampaignList, error) {
	if f.Today.IsZero() {
		f.Today = s.now()
	}
	items, err := s.repo.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	views := make([]*model.CampaignView, 0, len(items))
	for _, c := range items {
		views = append(views, model.NewCampaignView(c, f.Today))
	}
	return &CampaignList{Items: views, Total: total, TotalPages: f.Page.TotalPages(total)}, nil
}

// Get returns the campaign with the first value of every known meta key.
func (s *CampaignService) Get(ctx context.Context, id int64) (*model.CampaignView, error) {
	c, err := s.repo.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.AllMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	view := model.NewCampaignView(c, s.now())
	view.Meta = make(map[string]json.RawMessage)
	for _, key := range model.AllCampaignMeta {
		if values := all[key]; len(values) > 0 {
			view.Meta[key] = values[0]
		}
	}
	return view, nil
}

// Create stores the campaign and the creatable form options; any other meta
// key in the request is ignored.
func (s *CampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.CampaignView, error) {
	c := model.NewCampaign(req.Title)
	c.Slug = req.Slug
	c.Description = req.Description
	c.GoalAmount = req.GoalAmount
	if req.Currency != "" {
		c.Currency = req.Currency
	}
	c.DateStart = req.DateStart
	c.DateEnd = req.DateEnd

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(req.Meta))
	for _, key := range model.CreatableCampaignMeta {
		if _, ok := req.Meta[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.repo.UpdateMeta(ctx, id, key, req.Meta[key]); err != nil {
			logger.Error("campaign meta write failed", "campaign_id", id, "key", key, "error", err)
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// BatchDelete reports every id that was not deleted, missing or failed.
func (s *CampaignService) BatchDelete(ctx context.Context, ids []int64) *model.BatchDeleteResult {
	deleted, failed := s.repo.BatchDelete(ctx, ids)
	res := &model.BatchDeleteResult{Deleted: deleted, Errors: make([]int64, 0, len(failed))}
	for _, id := range ids {
		if err, ok := failed[id]; ok {
			if !model.IsNotFound(err) {
				logger.Warn("campaign delete failed", "campaign_id", id, "error", err)
			}
			res.Errors = append(res.Errors, id)
		}
	}
	if res.Deleted == nil {
		res.Deleted = []int64{}
	}
	return res
}
