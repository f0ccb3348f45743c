package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaign(title string, start, end *time.Time) *model.Campaign {
	c := model.NewCampaign(title)
	c.DateStart = start
	c.DateEnd = end
	c.GoalAmount = 100000
	return c
}

func TestCampaignRepository_CreateDefaults(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()

	c := newCampaign("Clean Water 2026!", nil, nil)
	id, err := repo.Create(ctx, c)
	require.NoError(t, err)

	got, err := repo.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "clean-water-2026", got.Slug)
	assert.Equal(t, "usd", got.Currency)
	require.NotNil(t, got.DateStart)
	assert.True(t, model.Day(time.Now()).Equal(*got.DateStart))
	assert.Equal(t, model.CampaignStatusActive, got.Status())
}

func TestCampaignRepository_SlugsAreUnique(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()

	a := newCampaign("Winter Appeal", nil, nil)
	b := newCampaign("Winter Appeal", nil, nil)
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)
	_, err = repo.Create(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, "winter-appeal", a.Slug)
	assert.Equal(t, "winter-appeal-2", b.Slug)
}

func TestCampaignRepository_CreateRejectsDateOrder(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	_, err := repo.Create(context.Background(), newCampaign("Backwards", &start, &end))
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestCampaignRepository_UpdateKeepsTotals(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()
	c := newCampaign("School Books", nil, nil)
	_, err := repo.Create(ctx, c)
	require.NoError(t, err)
	require.NoError(t, repo.CreditCampaign(ctx, c.ID, 2500, time.Now().UTC()))

	c.Title = "School Books and Desks"
	c.Slug = ""
	c.TotalRaised = 0
	require.NoError(t, repo.Update(ctx, c))

	got, err := repo.Read(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "School Books and Desks", got.Title)
	assert.Equal(t, "school-books", got.Slug)
	assert.Equal(t, int64(2500), got.TotalRaised)
	assert.Equal(t, int64(1), got.TransactionCount)
}

func TestCampaignRepository_StatusFilter(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()
	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time { d := today.AddDate(0, 0, offset); return &d }

	fixtures := map[string]*model.Campaign{
		"running":      newCampaign("Running", day(-10), day(10)),
		"ends today":   newCampaign("Ends Today", day(-10), day(0)),
		"open ended":   newCampaign("Open Ended", day(-3), nil),
		"starts today": newCampaign("Starts Today", day(0), day(5)),
		"next week":    newCampaign("Next Week", day(7), day(30)),
		"last month":   newCampaign("Last Month", day(-40), day(-10)),
		"yesterday":    newCampaign("Yesterday", day(-5), day(-1)),
	}
	for _, c := range fixtures {
		_, err := repo.Create(ctx, c)
		require.NoError(t, err)
	}

	cases := []struct {
		status model.CampaignStatus
		want   int64
	}{
		{model.CampaignStatusActive, 4},
		{model.CampaignStatusScheduled, 1},
		{model.CampaignStatusEnded, 2},
		{model.CampaignStatusDraft, 0},
		{"", 7},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			n, err := repo.Count(ctx, model.CampaignFilter{Status: tc.status, Today: today})
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}

	// the SQL filter and the computed status agree
	active, err := repo.Query(ctx, model.CampaignFilter{Status: model.CampaignStatusActive, Today: today})
	require.NoError(t, err)
	for _, c := range active {
		assert.Equal(t, model.CampaignStatusActive, c.StatusAt(today.Add(13*time.Hour)), c.Title)
	}
}

func TestCampaignRepository_QueryOrderBy(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()
	for i, goal := range []int64{300, 100, 200} {
		c := newCampaign("Goal "+string(rune('A'+i)), nil, nil)
		c.GoalAmount = goal
		_, err := repo.Create(ctx, c)
		require.NoError(t, err)
	}

	got, err := repo.Query(ctx, model.CampaignFilter{Page: model.Page{OrderBy: "goal_amount", Order: "ASC"}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{got[0].GoalAmount, got[1].GoalAmount, got[2].GoalAmount})

	got, err = repo.Query(ctx, model.CampaignFilter{Search: "goal b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].GoalAmount)
}

func TestCampaignRepository_BatchDelete(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()
	a := newCampaign("Alpha", nil, nil)
	b := newCampaign("Beta", nil, nil)
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)
	_, err = repo.Create(ctx, b)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateMeta(ctx, a.ID, model.MetaAmounts, []int64{1000, 2500}))

	deleted, failed := repo.BatchDelete(ctx, []int64{a.ID, 999, b.ID})

	assert.ElementsMatch(t, []int64{a.ID, b.ID}, deleted)
	require.Contains(t, failed, int64(999))
	assert.True(t, model.IsNotFound(failed[999]))

	raw, err := repo.GetMeta(ctx, a.ID, model.MetaAmounts)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestCampaignRepository_DebitFloorsAtZero(t *testing.T) {
	repo := NewCampaignRepository(NewTestDB(t), nil)
	ctx := context.Background()
	c := newCampaign("Floor", nil, nil)
	_, err := repo.Create(ctx, c)
	require.NoError(t, err)

	require.NoError(t, repo.CreditCampaign(ctx, c.ID, 500, time.Now()))
	require.NoError(t, repo.DebitCampaign(ctx, c.ID, 800, time.Now()))

	got, err := repo.Read(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalRaised)
	assert.Zero(t, got.TransactionCount)
}
