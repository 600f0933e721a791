package detector

import (
	"context"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/synapse"
)

// InsightGenerator proposes insights for a brand with an LLM
type InsightGenerator interface {
	Insights(ctx context.Context, brand models.Brand) ([]synapse.GeneratedInsight, error)
}

// IndustryShiftDetector asks the model for industry changes a brand can act on
type IndustryShiftDetector struct {
	generator InsightGenerator
	source    string
	clock     cache.Clock
}

// NewIndustryShiftDetector creates an industry-shift detector. source names
// the LLM backend recorded on each insight.
func NewIndustryShiftDetector(generator InsightGenerator, source string, clock cache.Clock) *IndustryShiftDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	return &IndustryShiftDetector{generator: generator, source: source, clock: clock}
}

func (d *IndustryShiftDetector) Name() string                 { return "industry-shift" }
func (d *IndustryShiftDetector) Type() models.OpportunityType { return models.TypeIndustryShift }

// Detect converts generated insights, dropping untitled ones
func (d *IndustryShiftDetector) Detect(ctx context.Context, brand models.Brand) Result {
	if brand.Industry == "" {
		return Unavailable(d, "brand has no industry")
	}
	if d.generator == nil {
		return Unavailable(d, "no LLM backend configured")
	}

	generated, err := d.generator.Insights(ctx, brand)
	if err != nil {
		return fromError(d, err)
	}

	now := d.clock.Now()
	insights := make([]models.OpportunityInsight, 0, len(generated))
	for _, g := range generated {
		if g.Title == "" {
			continue
		}

		var expiresAt *time.Time
		if g.ExpiresInDays > 0 {
			expiresAt = timePtr(now.AddDate(0, 0, g.ExpiresInDays))
		}

		actions := make([]models.SuggestedAction, 0, len(g.Actions))
		for _, a := range g.Actions {
			a.PotentialImpact = min(max(a.PotentialImpact, 0), 100)
			if a.Priority == "" {
				a.Priority = "medium"
			}
			actions = append(actions, a)
		}

		insights = append(insights, newInsight(brand, d.Type(), draft{
			key:         g.Title,
			title:       g.Title,
			description: g.Description,
			source:      d.source,
			sourceData:  map[string]any{"generator": "synapse"},
			factors: scoring.Factors{
				Reach:      g.Reach,
				Relevance:  g.Relevance,
				Timeliness: g.Timeliness,
				Confidence: g.Confidence,
			},
			expiresAt: expiresAt,
			actions:   actions,
		}, now))
	}

	return OK(d, insights)
}
