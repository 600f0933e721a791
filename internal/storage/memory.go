package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/models"
)

// MemoryStore keeps insights in process memory. Used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	insights map[string]models.OpportunityInsight
	now      func() time.Time
}

// Ensure MemoryStore implements OpportunityStore
var _ OpportunityStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		insights: make(map[string]models.OpportunityInsight),
		now:      time.Now,
	}
}

// Save inserts new insights and refreshes active ones
func (s *MemoryStore) Save(ctx context.Context, insights []models.OpportunityInsight) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []string
	for _, insight := range insights {
		existing, ok := s.insights[insight.ID]
		if !ok {
			s.insights[insight.ID] = cloneInsight(insight)
			created = append(created, insight.ID)
			continue
		}
		if !existing.Status.Active() {
			continue
		}
		refreshed := cloneInsight(insight)
		refreshed.Status = existing.Status
		refreshed.CreatedAt = existing.CreatedAt
		s.insights[insight.ID] = refreshed
	}
	return created, nil
}

// Get returns a single insight by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.OpportunityInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	insight, ok := s.insights[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneInsight(insight)
	return &out, nil
}

// List returns a brand's insights ordered by impact, newest first on ties
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]models.OpportunityInsight, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	var out []models.OpportunityInsight
	for _, insight := range s.insights {
		if insight.BrandID != filter.BrandID || !statusIn(insight.Status, filter.Statuses) {
			continue
		}
		out = append(out, cloneInsight(insight))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ImpactScore != out[j].ImpactScore {
			return out[i].ImpactScore > out[j].ImpactScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListActive returns every insight whose status can still change
func (s *MemoryStore) ListActive(ctx context.Context) ([]models.OpportunityInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.OpportunityInsight
	for _, insight := range s.insights {
		if insight.Status.Active() {
			out = append(out, cloneInsight(insight))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatus moves an insight from one status to another
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to models.Status) error {
	return s.update(id, func(insight *models.OpportunityInsight) error {
		if insight.Status != from {
			return fmt.Errorf("%w: %s is %s, not %s", models.ErrInvalidTransition, id, insight.Status, from)
		}
		insight.Status = to
		return nil
	})
}

// UpdateUrgency sets an active insight's urgency
func (s *MemoryStore) UpdateUrgency(ctx context.Context, id string, urgency models.Urgency) error {
	return s.update(id, func(insight *models.OpportunityInsight) error {
		if !insight.Status.Active() {
			return fmt.Errorf("%w: %s is %s", models.ErrInvalidTransition, id, insight.Status)
		}
		insight.Urgency = urgency
		return nil
	})
}

func (s *MemoryStore) update(id string, apply func(*models.OpportunityInsight) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	insight, ok := s.insights[id]
	if !ok {
		return ErrNotFound
	}
	if err := apply(&insight); err != nil {
		return err
	}
	insight.UpdatedAt = s.now().UTC()
	s.insights[id] = insight
	return nil
}

func statusIn(status models.Status, statuses []models.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneInsight(insight models.OpportunityInsight) models.OpportunityInsight {
	if insight.ExpiresAt != nil {
		expires := *insight.ExpiresAt
		insight.ExpiresAt = &expires
	}
	if insight.SourceData != nil {
		data := make(map[string]any, len(insight.SourceData))
		for k, v := range insight.SourceData {
			data[k] = v
		}
		insight.SourceData = data
	}
	if insight.SuggestedActions != nil {
		insight.SuggestedActions = append([]models.SuggestedAction(nil), insight.SuggestedActions...)
	}
	return insight
}
