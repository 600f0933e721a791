package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	insight := sampleInsight()

	created, err := store.Save(ctx, []models.OpportunityInsight{insight})
	require.NoError(t, err)
	assert.Equal(t, []string{"ins-1"}, created)

	got, err := store.Get(ctx, "ins-1")
	require.NoError(t, err)
	assert.Equal(t, insight.Title, got.Title)

	// Mutating the returned copy must not leak into the store
	got.SourceData["peak"] = 0.0
	again, err := store.Get(ctx, "ins-1")
	require.NoError(t, err)
	assert.Equal(t, 104.0, again.SourceData["peak"])

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_ListFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	low := sampleInsight()
	low.ID, low.ImpactScore = "low", 30
	high := sampleInsight()
	high.ID, high.ImpactScore = "high", 90
	dismissed := sampleInsight()
	dismissed.ID, dismissed.Status = "dismissed", models.StatusDismissed
	other := sampleInsight()
	other.ID, other.BrandID = "other", "brand-2"

	_, err := store.Save(ctx, []models.OpportunityInsight{low, high, dismissed, other})
	require.NoError(t, err)

	insights, err := store.List(ctx, ListFilter{
		BrandID:  "brand-1",
		Statuses: []models.Status{models.StatusNew, models.StatusReviewed},
	})
	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, "high", insights[0].ID)
	assert.Equal(t, "low", insights[1].ID)

	all, err := store.List(ctx, ListFilter{BrandID: "brand-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_UpdatesAndListActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	fixed := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	first := sampleInsight()
	second := sampleInsight()
	second.ID = "ins-2"
	_, err := store.Save(ctx, []models.OpportunityInsight{first, second})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, "ins-2", models.StatusNew, models.StatusActioned))
	require.NoError(t, store.UpdateUrgency(ctx, "ins-1", models.UrgencyCritical))
	assert.True(t, errors.Is(store.UpdateStatus(ctx, "missing", models.StatusNew, models.StatusReviewed), ErrNotFound))
	assert.True(t, errors.Is(store.UpdateUrgency(ctx, "ins-2", models.UrgencyLow), models.ErrInvalidTransition))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ins-1", active[0].ID)
	assert.Equal(t, models.UrgencyCritical, active[0].Urgency)
	assert.Equal(t, fixed, active[0].UpdatedAt)
}

func TestMemoryStore_SaveKeepsLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	active := sampleInsight()
	closed := sampleInsight()
	closed.ID = "ins-2"
	_, err := store.Save(ctx, []models.OpportunityInsight{active, closed})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, "ins-1", models.StatusNew, models.StatusReviewed))
	require.NoError(t, store.UpdateStatus(ctx, "ins-2", models.StatusNew, models.StatusDismissed))

	// A later run sees the same signals again
	later := active.CreatedAt.Add(6 * time.Hour)
	rerun := []models.OpportunityInsight{active, closed}
	for i := range rerun {
		rerun[i].Title = "Heat wave tomorrow"
		rerun[i].ImpactScore = 90
		rerun[i].CreatedAt, rerun[i].UpdatedAt = later, later
	}
	created, err := store.Save(ctx, rerun)
	require.NoError(t, err)
	assert.Empty(t, created)

	got, err := store.Get(ctx, "ins-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, got.Status)
	assert.Equal(t, active.CreatedAt, got.CreatedAt)
	assert.Equal(t, "Heat wave tomorrow", got.Title)
	assert.Equal(t, 90, got.ImpactScore)

	got, err = store.Get(ctx, "ins-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDismissed, got.Status)
	assert.Equal(t, active.Title, got.Title)
}

func TestMemoryStore_UpdateStatusComparesCurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Save(ctx, []models.OpportunityInsight{sampleInsight()})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, "ins-1", models.StatusNew, models.StatusDismissed))

	// A writer holding the stale "new" snapshot must not overwrite the dismissal
	err = store.UpdateStatus(ctx, "ins-1", models.StatusNew, models.StatusExpired)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	got, err := store.Get(ctx, "ins-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDismissed, got.Status)
}
