package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateImpactScore(t *testing.T) {
	tests := []struct {
		name     string
		factors  Factors
		expected int
	}{
		{
			name:     "All maxed",
			factors:  Factors{Reach: 100, Relevance: 100, Timeliness: 100, Confidence: 1},
			expected: 100,
		},
		{
			name:     "All zero",
			factors:  Factors{},
			expected: 0,
		},
		{
			name:     "Weighted blend",
			factors:  Factors{Reach: 50, Relevance: 80, Timeliness: 60, Confidence: 0.9},
			expected: 68, // 32 + 15 + 12 + 9
		},
		{
			name:     "Rounds half up",
			factors:  Factors{Reach: 0, Relevance: 1.25, Timeliness: 0, Confidence: 0},
			expected: 1, // 0.5
		},
		{
			name:     "Out of range inputs are clamped",
			factors:  Factors{Reach: 250, Relevance: -40, Timeliness: 100, Confidence: 3},
			expected: 60, // 0 + 30 + 20 + 10
		},
		{
			name:     "NaN treated as zero",
			factors:  Factors{Reach: math.NaN(), Relevance: 100, Timeliness: 0, Confidence: math.NaN()},
			expected: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateImpactScore(tt.factors))
		})
	}
}

func TestCalculateImpactScore_RangeAndMonotonic(t *testing.T) {
	steps := []float64{0, 10, 25, 50, 75, 90, 100}

	for _, reach := range steps {
		for _, relevance := range steps {
			for _, timeliness := range steps {
				for _, confidence := range steps {
					f := Factors{Reach: reach, Relevance: relevance, Timeliness: timeliness, Confidence: confidence / 100}
					score := CalculateImpactScore(f)
					require.GreaterOrEqual(t, score, 0)
					require.LessOrEqual(t, score, 100)

					bumped := []Factors{
						{Reach: reach + 10, Relevance: relevance, Timeliness: timeliness, Confidence: f.Confidence},
						{Reach: reach, Relevance: relevance + 10, Timeliness: timeliness, Confidence: f.Confidence},
						{Reach: reach, Relevance: relevance, Timeliness: timeliness + 10, Confidence: f.Confidence},
						{Reach: reach, Relevance: relevance, Timeliness: timeliness, Confidence: f.Confidence + 0.1},
					}
					for _, b := range bumped {
						require.GreaterOrEqual(t, CalculateImpactScore(b), score, "factors %+v -> %+v", f, b)
					}
				}
			}
		}
	}
}

func TestCalculateUrgency(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name      string
		expiresAt *time.Time
		expected  models.Urgency
	}{
		{name: "No expiration", expiresAt: nil, expected: models.UrgencyLow},
		{name: "Already expired", expiresAt: at(-2 * time.Hour), expected: models.UrgencyCritical},
		{name: "10 hours", expiresAt: at(10 * time.Hour), expected: models.UrgencyCritical},
		{name: "Just under 24 hours", expiresAt: at(24*time.Hour - time.Second), expected: models.UrgencyCritical},
		{name: "Exactly 24 hours", expiresAt: at(24 * time.Hour), expected: models.UrgencyHigh},
		{name: "Exactly 72 hours", expiresAt: at(72 * time.Hour), expected: models.UrgencyMedium},
		{name: "100 hours", expiresAt: at(100 * time.Hour), expected: models.UrgencyMedium},
		{name: "Exactly 168 hours", expiresAt: at(168 * time.Hour), expected: models.UrgencyLow},
		{name: "Two weeks", expiresAt: at(14 * 24 * time.Hour), expected: models.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateUrgency(tt.expiresAt, now))
		})
	}
}

func TestRank(t *testing.T) {
	low := models.OpportunityInsight{ID: "a", ImpactScore: 80, Urgency: models.UrgencyLow}
	critical := models.OpportunityInsight{ID: "b", ImpactScore: 70, Urgency: models.UrgencyCritical}

	ranked := Rank([]models.OpportunityInsight{low}, []models.OpportunityInsight{critical})

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, 110, RankKey(ranked[0]))
	assert.Equal(t, 90, RankKey(ranked[1]))
}

func TestRank_TieBreaks(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	soon := now.Add(2 * time.Hour)
	later := now.Add(20 * time.Hour)

	insights := []models.OpportunityInsight{
		// key 70 for every entry
		{ID: "no-expiry", ImpactScore: 60, Urgency: models.UrgencyLow},
		{ID: "z-later", ImpactScore: 30, Urgency: models.UrgencyCritical, ExpiresAt: &later},
		{ID: "a-later", ImpactScore: 30, Urgency: models.UrgencyCritical, ExpiresAt: &later},
		{ID: "soon", ImpactScore: 30, Urgency: models.UrgencyCritical, ExpiresAt: &soon},
		{ID: "medium", ImpactScore: 50, Urgency: models.UrgencyMedium},
	}

	ranked := Rank(insights)

	var ids []string
	for _, insight := range ranked {
		ids = append(ids, insight.ID)
	}
	assert.Equal(t, []string{"no-expiry", "medium", "soon", "a-later", "z-later"}, ids)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	input := []models.OpportunityInsight{
		{ID: "first", ImpactScore: 10, Urgency: models.UrgencyLow},
		{ID: "second", ImpactScore: 90, Urgency: models.UrgencyLow},
	}

	_ = Rank(input)

	assert.Equal(t, "first", input[0].ID)
}

func TestUrgencyWeight(t *testing.T) {
	assert.Equal(t, 4, UrgencyWeight(models.UrgencyCritical))
	assert.Equal(t, 3, UrgencyWeight(models.UrgencyHigh))
	assert.Equal(t, 2, UrgencyWeight(models.UrgencyMedium))
	assert.Equal(t, 1, UrgencyWeight(models.UrgencyLow))
}
