package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/sirupsen/logrus"
)

const insightColumns = `id, brand_id, type, title, description, source, source_data,
	impact_score, urgency, confidence, expires_at, status, suggested_actions,
	created_at, updated_at`

const schemaDDL = `
CREATE TABLE IF NOT EXISTS opportunity_insights (
	id                TEXT PRIMARY KEY,
	brand_id          TEXT NOT NULL,
	type              TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	source_data       JSONB NOT NULL DEFAULT '{}',
	impact_score      INTEGER NOT NULL CHECK (impact_score BETWEEN 0 AND 100),
	urgency           TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL CHECK (confidence BETWEEN 0 AND 1),
	expires_at        TIMESTAMPTZ,
	status            TEXT NOT NULL DEFAULT 'new',
	suggested_actions JSONB NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunity_insights_brand_status
	ON opportunity_insights (brand_id, status);
`

// insightRow is the database shape of an OpportunityInsight
type insightRow struct {
	ID               string       `db:"id"`
	BrandID          string       `db:"brand_id"`
	Type             string       `db:"type"`
	Title            string       `db:"title"`
	Description      string       `db:"description"`
	Source           string       `db:"source"`
	SourceData       []byte       `db:"source_data"`
	ImpactScore      int          `db:"impact_score"`
	Urgency          string       `db:"urgency"`
	Confidence       float64      `db:"confidence"`
	ExpiresAt        sql.NullTime `db:"expires_at"`
	Status           string       `db:"status"`
	SuggestedActions []byte       `db:"suggested_actions"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

// PostgresStore persists insights in PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// Ensure PostgresStore implements OpportunityStore
var _ OpportunityStore = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to the database at dsn and verifies the connection
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewPostgresStore(db), nil
}

// Migrate creates the insights table when it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to migrate opportunity_insights: %w", err)
	}
	return nil
}

// Close releases the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const upsertInsight = `INSERT INTO opportunity_insights (` + insightColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		source_data = EXCLUDED.source_data,
		impact_score = EXCLUDED.impact_score,
		urgency = EXCLUDED.urgency,
		confidence = EXCLUDED.confidence,
		expires_at = EXCLUDED.expires_at,
		suggested_actions = EXCLUDED.suggested_actions,
		updated_at = EXCLUDED.updated_at
	WHERE opportunity_insights.status IN ('new', 'reviewed')
	RETURNING (xmax = 0) AS inserted`

// Save upserts insights in a single transaction. Rows in a terminal status
// are skipped, and status and created_at are never overwritten.
func (s *PostgresStore) Save(ctx context.Context, insights []models.OpportunityInsight) (created []string, err error) {
	if len(insights) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logrus.Warnf("Rollback failed: %v", rbErr)
			}
		}
	}()

	skipped := 0
	for _, insight := range insights {
		var row insightRow
		row, err = toRow(insight)
		if err != nil {
			return nil, err
		}

		var inserted bool
		err = tx.QueryRowxContext(ctx, upsertInsight,
			row.ID, row.BrandID, row.Type, row.Title, row.Description, row.Source, row.SourceData,
			row.ImpactScore, row.Urgency, row.Confidence, row.ExpiresAt, row.Status, row.SuggestedActions,
			row.CreatedAt, row.UpdatedAt).Scan(&inserted)
		if errors.Is(err, sql.ErrNoRows) {
			// conflict with a terminal row
			err = nil
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save insight %s: %w", insight.ID, err)
		}
		if inserted {
			created = append(created, insight.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insights: %w", err)
	}

	logrus.Debugf("Saved %d insights (%d new, %d closed skipped)", len(insights)-skipped, len(created), skipped)
	return created, nil
}

// Get returns a single insight by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.OpportunityInsight, error) {
	var row insightRow
	err := s.db.GetContext(ctx, &row, `SELECT `+insightColumns+` FROM opportunity_insights WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight %s: %w", id, err)
	}

	insight, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

// List returns a brand's insights ordered by impact
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.OpportunityInsight, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + insightColumns + ` FROM opportunity_insights WHERE brand_id = $1`
	args := []any{filter.BrandID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statuses))
	}
	query += fmt.Sprintf(` ORDER BY impact_score DESC, created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return s.selectInsights(ctx, query, args...)
}

// ListActive returns every insight whose status can still change
func (s *PostgresStore) ListActive(ctx context.Context) ([]models.OpportunityInsight, error) {
	return s.selectInsights(ctx,
		`SELECT `+insightColumns+` FROM opportunity_insights WHERE status = ANY($1)`, activeStatuses)
}

var activeStatuses = pq.Array([]string{string(models.StatusNew), string(models.StatusReviewed)})

// UpdateStatus moves an insight from one status to another. The write only
// lands while the stored status still equals from.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to models.Status) error {
	return s.update(ctx, id,
		`UPDATE opportunity_insights SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, string(to), time.Now().UTC(), string(from))
}

// UpdateUrgency sets an active insight's urgency
func (s *PostgresStore) UpdateUrgency(ctx context.Context, id string, urgency models.Urgency) error {
	return s.update(ctx, id,
		`UPDATE opportunity_insights SET urgency = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`,
		id, string(urgency), time.Now().UTC(), activeStatuses)
}

// update runs a guarded UPDATE. When no row matches it tells a missing
// insight apart from one whose status moved on.
func (s *PostgresStore) update(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update insight %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM opportunity_insights WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check insight %s: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s changed concurrently", models.ErrInvalidTransition, id)
}

func (s *PostgresStore) selectInsights(ctx context.Context, query string, args ...any) ([]models.OpportunityInsight, error) {
	var rows []insightRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}

	insights := make([]models.OpportunityInsight, 0, len(rows))
	for _, row := range rows {
		insight, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		insights = append(insights, insight)
	}
	return insights, nil
}

func toRow(insight models.OpportunityInsight) (insightRow, error) {
	sourceData := insight.SourceData
	if sourceData == nil {
		sourceData = map[string]any{}
	}
	sourceJSON, err := json.Marshal(sourceData)
	if err != nil {
		return insightRow{}, fmt.Errorf("failed to encode source data for %s: %w", insight.ID, err)
	}

	actions := insight.SuggestedActions
	if actions == nil {
		actions = []models.SuggestedAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return insightRow{}, fmt.Errorf("failed to encode actions for %s: %w", insight.ID, err)
	}

	row := insightRow{
		ID:               insight.ID,
		BrandID:          insight.BrandID,
		Type:             string(insight.Type),
		Title:            insight.Title,
		Description:      insight.Description,
		Source:           insight.Source,
		SourceData:       sourceJSON,
		ImpactScore:      insight.ImpactScore,
		Urgency:          string(insight.Urgency),
		Confidence:       insight.Confidence,
		Status:           string(insight.Status),
		SuggestedActions: actionsJSON,
		CreatedAt:        insight.CreatedAt,
		UpdatedAt:        insight.UpdatedAt,
	}
	if insight.ExpiresAt != nil {
		row.ExpiresAt = sql.NullTime{Time: *insight.ExpiresAt, Valid: true}
	}
	return row, nil
}

func fromRow(row insightRow) (models.OpportunityInsight, error) {
	insight := models.OpportunityInsight{
		ID:          row.ID,
		BrandID:     row.BrandID,
		Type:        models.OpportunityType(row.Type),
		Title:       row.Title,
		Description: row.Description,
		Source:      row.Source,
		ImpactScore: row.ImpactScore,
		Urgency:     models.Urgency(row.Urgency),
		Confidence:  row.Confidence,
		Status:      models.Status(row.Status),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.ExpiresAt.Valid {
		expires := row.ExpiresAt.Time
		insight.ExpiresAt = &expires
	}

	if len(row.SourceData) > 0 {
		if err := json.Unmarshal(row.SourceData, &insight.SourceData); err != nil {
			return insight, fmt.Errorf("failed to decode source data for %s: %w", row.ID, err)
		}
	}
	if len(row.SuggestedActions) > 0 {
		if err := json.Unmarshal(row.SuggestedActions, &insight.SuggestedActions); err != nil {
			return insight, fmt.Errorf("failed to decode actions for %s: %w", row.ID, err)
		}
	}
	return insight, nil
}
