package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{
	"id", "brand_id", "type", "title", "description", "source", "source_data",
	"impact_score", "urgency", "confidence", "expires_at", "status", "suggested_actions",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func sampleInsight() models.OpportunityInsight {
	created := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(48 * time.Hour)
	return models.OpportunityInsight{
		ID:          "ins-1",
		BrandID:     "brand-1",
		Type:        models.TypeWeatherBased,
		Title:       "Heat wave incoming",
		Description: "Temperatures above 100F",
		Source:      "openweathermap",
		SourceData:  map[string]any{"peak": 104.0},
		ImpactScore: 82,
		Urgency:     models.UrgencyHigh,
		Confidence:  0.9,
		ExpiresAt:   &expires,
		Status:      models.StatusNew,
		SuggestedActions: []models.SuggestedAction{
			{ActionType: "create-content", Description: "Promote AC tune-ups", Priority: "high", Effort: "low", PotentialImpact: 80},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func rowFor(t *testing.T, insight models.OpportunityInsight) []driver.Value {
	t.Helper()

	sourceJSON, err := json.Marshal(insight.SourceData)
	require.NoError(t, err)
	actionsJSON, err := json.Marshal(insight.SuggestedActions)
	require.NoError(t, err)

	var expires any
	if insight.ExpiresAt != nil {
		expires = *insight.ExpiresAt
	}
	return []driver.Value{
		insight.ID, insight.BrandID, string(insight.Type), insight.Title, insight.Description,
		insight.Source, sourceJSON, insight.ImpactScore, string(insight.Urgency), insight.Confidence,
		expires, string(insight.Status), actionsJSON, insight.CreatedAt, insight.UpdatedAt,
	}
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	insight := sampleInsight()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO opportunity_insights").
		WithArgs("ins-1", "brand-1", "weather-based", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), 82, "high", 0.9, sqlmock.AnyArg(), "new", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectCommit()

	created, err := store.Save(context.Background(), []models.OpportunityInsight{insight})
	require.NoError(t, err)
	assert.Equal(t, []string{"ins-1"}, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveKeepsLifecycleColumns(t *testing.T) {
	store, mock := newMockStore(t)
	refreshed := sampleInsight()
	closed := sampleInsight()
	closed.ID = "ins-2"

	// The upsert must leave status and created_at alone and skip closed rows
	upsert := `ON CONFLICT \(id\) DO UPDATE SET .*suggested_actions = EXCLUDED.suggested_actions,\s+updated_at = EXCLUDED.updated_at\s+WHERE opportunity_insights.status IN \('new', 'reviewed'\)\s+RETURNING \(xmax = 0\)`

	mock.ExpectBegin()
	mock.ExpectQuery(upsert).
		WithArgs(append([]driver.Value{"ins-1"}, anyArgs(14)...)...).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectQuery(upsert).
		WithArgs(append([]driver.Value{"ins-2"}, anyArgs(14)...)...).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}))
	mock.ExpectCommit()

	created, err := store.Save(context.Background(), []models.OpportunityInsight{refreshed, closed})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NotContains(t, upsertInsight, "status = EXCLUDED.status")
	assert.NotContains(t, upsertInsight, "created_at = EXCLUDED.created_at")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO opportunity_insights").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := store.Save(context.Background(), []models.OpportunityInsight{sampleInsight()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ins-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEmptyIsNoop(t *testing.T) {
	store, mock := newMockStore(t)

	created, err := store.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleInsight()

	mock.ExpectQuery("FROM opportunity_insights WHERE id = \\$1").
		WithArgs("ins-1").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(rowFor(t, want)...))

	got, err := store.Get(context.Background(), "ins-1")
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, models.TypeWeatherBased, got.Type)
	assert.Equal(t, 104.0, got.SourceData["peak"])
	require.Len(t, got.SuggestedActions, 1)
	assert.Equal(t, "create-content", got.SuggestedActions[0].ActionType)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, want.ExpiresAt.Equal(*got.ExpiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM opportunity_insights WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	first := sampleInsight()
	second := sampleInsight()
	second.ID = "ins-2"
	second.ExpiresAt = nil
	second.ImpactScore = 40

	mock.ExpectQuery("WHERE brand_id = \\$1 AND status = ANY\\(\\$2\\) ORDER BY impact_score DESC").
		WithArgs("brand-1", sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow(rowFor(t, first)...).
			AddRow(rowFor(t, second)...))

	insights, err := store.List(context.Background(), ListFilter{
		BrandID:  "brand-1",
		Statuses: []models.Status{models.StatusNew},
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, "ins-1", insights[0].ID)
	assert.Nil(t, insights[1].ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDefaultsLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("WHERE brand_id = \\$1 ORDER BY impact_score DESC, created_at DESC LIMIT \\$2").
		WithArgs("brand-1", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	insights, err := store.List(context.Background(), ListFilter{BrandID: "brand-1"})
	require.NoError(t, err)
	assert.Empty(t, insights)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE opportunity_insights SET status = \\$2, updated_at = \\$3 WHERE id = \\$1 AND status = \\$4").
		WithArgs("ins-1", "reviewed", sqlmock.AnyArg(), "new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateStatus(context.Background(), "ins-1", models.StatusNew, models.StatusReviewed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusLosesRace(t *testing.T) {
	store, mock := newMockStore(t)

	// Another writer dismissed the row between the read and this write
	mock.ExpectExec("UPDATE opportunity_insights SET status").
		WithArgs("ins-1", "expired", sqlmock.AnyArg(), "new").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ins-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.UpdateStatus(context.Background(), "ins-1", models.StatusNew, models.StatusExpired)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUrgency(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE opportunity_insights SET urgency = \\$2, updated_at = \\$3 WHERE id = \\$1 AND status = ANY\\(\\$4\\)").
		WithArgs("ins-1", "critical", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE opportunity_insights SET urgency").
		WithArgs("missing", "critical", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, store.UpdateUrgency(context.Background(), "ins-1", models.UrgencyCritical))
	err := store.UpdateUrgency(context.Background(), "missing", models.UrgencyCritical)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("WHERE status = ANY\\(\\$1\\)").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(rowFor(t, sampleInsight())...))

	insights, err := store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, insights, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}
