package repository

import (
	"context"
	"strings"
	"time"

	"github.com/nimasrn/donation-ledger/internal/events"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// columns maps API orderby names to real columns.
type columns map[string]string

// baseColumns are accepted by every store.
var baseColumns = columns{
	"id":            "id",
	"date":          "created_at",
	"date_created":  "created_at",
	"created_at":    "created_at",
	"date_modified": "modified_at",
	"modified_at":   "modified_at",
}

func (c columns) with(extra columns) columns {
	out := make(columns, len(c)+len(extra))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// recordStore holds what the four entity stores share: the db handle, the
// meta table, the orderby allow-list and the notifier for created events.
type recordStore[E any] struct {
	*pg.DB
	*MetaStore
	entity   string
	orderBy  columns
	notifier events.Notifier
}

func newRecordStore[E any](db *pg.DB, entity string, orderBy columns, notifier events.Notifier) recordStore[E] {
	return recordStore[E]{
		DB:        db,
		MetaStore: NewMetaStore(db, entity+"_meta"),
		entity:    entity,
		orderBy:   orderBy,
		notifier:  events.OrNop(notifier),
	}
}

func (s *recordStore[E]) insert(ctx context.Context, e *E) error {
	if err := s.Write(ctx).Create(e).Error; err != nil {
		return model.NewPersistenceError("create "+s.entity, err)
	}
	return nil
}

func (s *recordStore[E]) find(ctx context.Context, id int64) (*E, error) {
	var e E
	err := s.Read(ctx).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError(s.entity, id)
		}
		return nil, model.NewPersistenceError("read "+s.entity, err)
	}
	return &e, nil
}

// findForUpdate reads through the write handle and locks the row until the
// surrounding transaction ends, so concurrent updates of one record see each
// other's status. sqlite has no row locks and drops the clause.
func (s *recordStore[E]) findForUpdate(ctx context.Context, id int64) (*E, error) {
	var e E
	err := s.Write(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError(s.entity, id)
		}
		return nil, model.NewPersistenceError("read "+s.entity, err)
	}
	return &e, nil
}

func (s *recordStore[E]) save(ctx context.Context, e *E) error {
	if err := s.Write(ctx).Save(e).Error; err != nil {
		return model.NewPersistenceError("update "+s.entity, err)
	}
	return nil
}

// remove deletes the meta rows and then the record in one transaction.
func (s *recordStore[E]) remove(ctx context.Context, id int64) error {
	return s.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.DeleteAllMeta(ctx, id); err != nil {
			return err
		}
		res := s.Write(ctx).Where("id = ?", id).Delete(new(E))
		if res.Error != nil {
			return model.NewPersistenceError("delete "+s.entity, res.Error)
		}
		if res.RowsAffected == 0 {
			return model.NewNotFoundError(s.entity, id)
		}
		return nil
	})
}

func (s *recordStore[E]) list(ctx context.Context, q *gorm.DB, p model.Page) ([]*E, error) {
	p = p.Normalize()
	var out []*E
	err := q.Order(s.orderClause(p)).
		Offset(p.Offset()).
		Limit(p.PerPage).
		Find(&out).Error
	if err != nil {
		return nil, model.NewPersistenceError("query "+s.entity, err)
	}
	return out, nil
}

func (s *recordStore[E]) count(q *gorm.DB) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, model.NewPersistenceError("count "+s.entity, err)
	}
	return n, nil
}

func (s *recordStore[E]) query(ctx context.Context) *gorm.DB {
	return s.Read(ctx).Model(new(E))
}

// orderClause falls back to created_at for names outside the allow-list.
// The id tiebreak keeps pages stable.
func (s *recordStore[E]) orderClause(p model.Page) string {
	col, ok := s.orderBy[p.OrderBy]
	if !ok {
		col = "created_at"
	}
	if col == "id" {
		return "id " + p.Order
	}
	return col + " " + p.Order + ", id " + p.Order
}

func (s *recordStore[E]) created(ctx context.Context, t events.Type, id int64, data any) {
	s.notifier.Notify(ctx, events.New(t, s.entity, id, data))
}

func applyDateRange(q *gorm.DB, r model.DateRange) *gorm.DB {
	if r.From != nil {
		q = q.Where("created_at >= ?", r.From.UTC())
	}
	if r.To != nil {
		q = q.Where("created_at < ?", r.To.UTC())
	}
	return q
}

// applySearch matches term case-insensitively against any of cols.
func applySearch(q *gorm.DB, term string, cols ...string) *gorm.DB {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return q
	}
	like := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = "LOWER(" + c + ") LIKE ? ESCAPE '\\'"
		args[i] = like
	}
	return q.Where("("+strings.Join(parts, " OR ")+")", args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// floorSub builds a decrement that never goes below zero.
func floorSub(col string, d int64) clause.Expr {
	return gorm.Expr("CASE WHEN "+col+" > ? THEN "+col+" - ? ELSE 0 END", d, d)
}
