package detector

import (
	"context"
	"fmt"
	"math"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

const (
	rankingLimit       = 100
	maxKeywordInsights = 5
)

// RankingSource returns organic rankings for a domain
type RankingSource interface {
	DomainOrganic(ctx context.Context, domain, database string, limit int) ([]models.KeywordRanking, error)
}

type keywordProfile struct {
	relevance  float64
	timeliness float64
	confidence float64
	action     models.SuggestedAction
}

var keywordProfiles = map[models.OpportunityCategory]keywordProfile{
	models.CategoryQuickWin: {
		relevance: 80, timeliness: 60, confidence: 0.8,
		action: action("optimize-page", "Refresh the ranking page and add internal links to push it onto page one", "high", "low", 70),
	},
	models.CategoryHighValue: {
		relevance: 70, timeliness: 40, confidence: 0.6,
		action: action("create-content", "Create a dedicated landing page targeting the keyword", "medium", "high", 80),
	},
	models.CategoryLongTerm: {
		relevance: 60, timeliness: 20, confidence: 0.5,
		action: action("build-authority", "Plan supporting content and backlinks for this competitive term", "low", "high", 60),
	},
}

// KeywordOpportunities fetches a brand's rankings and classifies them
func KeywordOpportunities(ctx context.Context, source RankingSource, database string, brand models.Brand) ([]models.KeywordOpportunity, error) {
	if brand.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidBrand)
	}
	if source == nil {
		return nil, providers.ErrDisabled
	}

	rankings, err := source.DomainOrganic(ctx, brand.Domain, database, rankingLimit)
	if err != nil {
		return nil, err
	}

	rankings = signals.NormalizeRankings(rankings, brand.Name)
	return signals.ClassifyKeywordOpportunities(rankings, brand.Name), nil
}

// KeywordDetector turns SEO keyword opportunities into insights
type KeywordDetector struct {
	rankings RankingSource
	database string
	clock    cache.Clock
}

// NewKeywordDetector creates a keyword-opportunity detector
func NewKeywordDetector(rankings RankingSource, database string, clock cache.Clock) *KeywordDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	return &KeywordDetector{rankings: rankings, database: database, clock: clock}
}

func (d *KeywordDetector) Name() string                 { return "keyword" }
func (d *KeywordDetector) Type() models.OpportunityType { return models.TypeKeywordOpportunity }

// Detect reports the top keyword opportunities by estimated traffic
func (d *KeywordDetector) Detect(ctx context.Context, brand models.Brand) Result {
	if brand.Domain == "" {
		return Unavailable(d, "brand has no domain")
	}

	opportunities, err := KeywordOpportunities(ctx, d.rankings, d.database, brand)
	if err != nil {
		return fromError(d, err)
	}
	if len(opportunities) > maxKeywordInsights {
		opportunities = opportunities[:maxKeywordInsights]
	}

	now := d.clock.Now()
	insights := make([]models.OpportunityInsight, 0, len(opportunities))
	for _, o := range opportunities {
		profile := keywordProfiles[o.Category]

		sourceData := map[string]any{
			"keyword":          o.Keyword,
			"category":         string(o.Category),
			"searchVolume":     o.SearchVolume,
			"difficulty":       o.Difficulty,
			"estimatedTraffic": o.EstimatedTraffic,
		}
		position := "not ranking"
		if o.CurrentPosition != nil {
			sourceData["currentPosition"] = *o.CurrentPosition
			position = fmt.Sprintf("position %d", *o.CurrentPosition)
		}

		insights = append(insights, newInsight(brand, d.Type(), draft{
			key:   string(o.Category) + "|" + o.Keyword,
			title: fmt.Sprintf("%s keyword: %q", o.Category, o.Keyword),
			description: fmt.Sprintf("%s currently sits at %s for %q (%d searches/month, difficulty %d). Estimated gain: %d visits/month.",
				brand.Domain, position, o.Keyword, o.SearchVolume, o.Difficulty, o.EstimatedTraffic),
			source:     "semrush",
			sourceData: sourceData,
			factors: scoring.Factors{
				Reach:      math.Log10(float64(o.SearchVolume)+1) * 25,
				Relevance:  profile.relevance,
				Timeliness: profile.timeliness,
				Confidence: profile.confidence,
			},
			actions: []models.SuggestedAction{profile.action},
		}, now))
	}

	return OK(d, insights)
}
