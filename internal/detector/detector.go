package detector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
)

// Outcome is how a detector run ended
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeFailed      Outcome = "failed"
)

// Detector finds opportunities of one type for a brand
type Detector interface {
	Name() string
	Type() models.OpportunityType
	Detect(ctx context.Context, brand models.Brand) Result
}

// Result is the typed outcome of one detector run. An OK result with no
// insights means the detector ran and found nothing.
type Result struct {
	Detector string
	Type     models.OpportunityType
	Outcome  Outcome
	Insights []models.OpportunityInsight
	Reason   string
	Err      error
}

// OK reports a successful run
func OK(d Detector, insights []models.OpportunityInsight) Result {
	return Result{Detector: d.Name(), Type: d.Type(), Outcome: OutcomeOK, Insights: insights}
}

// Unavailable reports a detector that cannot run for this brand or deployment
func Unavailable(d Detector, reason string) Result {
	return Result{Detector: d.Name(), Type: d.Type(), Outcome: OutcomeUnavailable, Reason: reason}
}

// Failed reports a detector whose upstream call or parsing failed
func Failed(d Detector, err error) Result {
	return Result{Detector: d.Name(), Type: d.Type(), Outcome: OutcomeFailed, Reason: err.Error(), Err: err}
}

// fromError maps a missing credential to Unavailable and anything else to Failed
func fromError(d Detector, err error) Result {
	if errors.Is(err, providers.ErrDisabled) {
		return Unavailable(d, err.Error())
	}
	return Failed(d, err)
}

// insightNamespace seeds the name-based insight IDs
var insightNamespace = uuid.MustParse("6f1c2e8a-4b7d-5e21-9a3c-0d8f7b6e5a41")

// draft is an insight before it receives an id, score and urgency
type draft struct {
	// key identifies the underlying signal, so a signal seen on a later run
	// maps to the insight it already produced
	key         string
	title       string
	description string
	source      string
	sourceData  map[string]any
	factors     scoring.Factors
	expiresAt   *time.Time
	actions     []models.SuggestedAction
}

func newInsight(brand models.Brand, kind models.OpportunityType, d draft, now time.Time) models.OpportunityInsight {
	now = now.UTC()
	actions := d.actions
	if actions == nil {
		actions = []models.SuggestedAction{}
	}

	return models.OpportunityInsight{
		ID:               insightID(brand.ID, kind, d.key, d.title),
		BrandID:          brand.ID,
		Type:             kind,
		Title:            d.title,
		Description:      d.description,
		Source:           d.source,
		SourceData:       d.sourceData,
		ImpactScore:      scoring.CalculateImpactScore(d.factors),
		Urgency:          scoring.CalculateUrgency(d.expiresAt, now),
		Confidence:       scoring.ClampConfidence(d.factors.Confidence),
		ExpiresAt:        d.expiresAt,
		Status:           models.StatusNew,
		SuggestedActions: actions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// insightID derives a stable ID from the brand, type and signal key. The
// title stands in when a detector has no better key.
func insightID(brandID string, kind models.OpportunityType, key, title string) string {
	if key == "" {
		key = title
	}
	name := brandID + "|" + string(kind) + "|" + strings.ToLower(strings.TrimSpace(key))
	return uuid.NewSHA1(insightNamespace, []byte(name)).String()
}

func action(actionType, description, priority, effort string, impact int) models.SuggestedAction {
	return models.SuggestedAction{
		ActionType:      actionType,
		Description:     description,
		Priority:        priority,
		Effort:          effort,
		PotentialImpact: impact,
	}
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

// unavailableDetector stands in for opportunity types without a signal source
type unavailableDetector struct {
	name   string
	kind   models.OpportunityType
	reason string
}

func (d unavailableDetector) Name() string                 { return d.name }
func (d unavailableDetector) Type() models.OpportunityType { return d.kind }

func (d unavailableDetector) Detect(ctx context.Context, brand models.Brand) Result {
	return Unavailable(d, d.reason)
}

// PlaceholderDetectors returns the detectors that have no signal source yet
func PlaceholderDetectors() []Detector {
	return []Detector{
		unavailableDetector{name: "competitor-move", kind: models.TypeCompetitorMove, reason: "no competitor monitoring source configured"},
		unavailableDetector{name: "local-news", kind: models.TypeLocalNews, reason: "no local news source configured"},
		unavailableDetector{name: "audience-behavior", kind: models.TypeAudienceBehavior, reason: "no audience analytics source configured"},
		unavailableDetector{name: "platform-update", kind: models.TypePlatformUpdate, reason: "no platform changelog source configured"},
	}
}
