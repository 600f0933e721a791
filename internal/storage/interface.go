package storage

import (
	"context"
	"errors"

	"github.com/mirrorhq/opportunity-engine/internal/models"
)

// ErrNotFound is returned when an insight does not exist
var ErrNotFound = errors.New("opportunity not found")

// ArchiveInterface defines the contract for report archive operations
type ArchiveInterface interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// ListFilter selects insights for a brand
type ListFilter struct {
	BrandID  string
	Statuses []models.Status // empty means any status
	Limit    int             // 0 means DefaultListLimit
}

// DefaultListLimit bounds list queries without an explicit limit
const DefaultListLimit = 100

// OpportunityStore persists opportunity insights.
//
// Save inserts unseen insights and refreshes the content of active ones,
// keeping their status and creation time. Insights already in a terminal
// status are left alone. It returns the IDs that were inserted.
//
// UpdateStatus only applies while the stored status still equals from, and
// UpdateUrgency only while the insight is active. Both return
// models.ErrInvalidTransition when that check fails and ErrNotFound when the
// insight does not exist.
type OpportunityStore interface {
	Save(ctx context.Context, insights []models.OpportunityInsight) ([]string, error)
	Get(ctx context.Context, id string) (*models.OpportunityInsight, error)
	List(ctx context.Context, filter ListFilter) ([]models.OpportunityInsight, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status) error
	UpdateUrgency(ctx context.Context, id string, urgency models.Urgency) error
	ListActive(ctx context.Context) ([]models.OpportunityInsight, error)
}
