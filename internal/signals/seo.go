package signals

import (
	"math"
	"sort"
	"strings"

	"github.com/mirrorhq/opportunity-engine/internal/models"
)

// MaxKeywordOpportunities caps the classified result list
const MaxKeywordOpportunities = 20

// EstimateDifficulty approximates keyword difficulty from search volume.
// There is no external difficulty signal.
func EstimateDifficulty(volume int) int {
	switch {
	case volume < 100:
		return 20
	case volume < 500:
		return 35
	case volume < 1000:
		return 50
	case volume < 5000:
		return 65
	case volume < 10000:
		return 75
	default:
		return 85
	}
}

// IsBrandKeyword reports whether keyword contains the brand name, ignoring case
func IsBrandKeyword(keyword, brandName string) bool {
	brandName = strings.TrimSpace(brandName)
	if brandName == "" {
		return false
	}
	return strings.Contains(strings.ToLower(keyword), strings.ToLower(brandName))
}

// NormalizeRankings fills in difficulty and the branded flag
func NormalizeRankings(rankings []models.KeywordRanking, brandName string) []models.KeywordRanking {
	out := make([]models.KeywordRanking, len(rankings))
	for i, r := range rankings {
		r.Difficulty = EstimateDifficulty(r.SearchVolume)
		r.IsBranded = r.IsBranded || IsBrandKeyword(r.Keyword, brandName)
		out[i] = r
	}
	return out
}

// ClassifyKeywordOpportunities derives quick-win, high-value and long-term
// opportunities from rankings. Branded keywords are excluded first. A ranking
// appears once per rule it satisfies. Results are ordered by estimated
// traffic and capped at MaxKeywordOpportunities.
func ClassifyKeywordOpportunities(rankings []models.KeywordRanking, brandName string) []models.KeywordOpportunity {
	var opportunities []models.KeywordOpportunity

	for _, r := range rankings {
		if r.IsBranded || IsBrandKeyword(r.Keyword, brandName) {
			continue
		}

		difficulty := EstimateDifficulty(r.SearchVolume)
		newOpportunity := func(category models.OpportunityCategory, share float64) models.KeywordOpportunity {
			return models.KeywordOpportunity{
				Keyword:          r.Keyword,
				Category:         category,
				CurrentPosition:  copyPosition(r.Position),
				SearchVolume:     r.SearchVolume,
				Difficulty:       difficulty,
				EstimatedTraffic: int(math.Round(float64(r.SearchVolume) * share)),
			}
		}

		pos := r.Position
		if pos != nil && *pos >= 11 && *pos <= 20 && r.SearchVolume >= 100 {
			opportunities = append(opportunities, newOpportunity(models.CategoryQuickWin, 0.15))
		}
		if r.SearchVolume >= 1000 && (pos == nil || *pos > 50) {
			opportunities = append(opportunities, newOpportunity(models.CategoryHighValue, 0.20))
		}
		if pos != nil && *pos >= 21 && *pos <= 50 && difficulty >= 60 {
			opportunities = append(opportunities, newOpportunity(models.CategoryLongTerm, 0.10))
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedTraffic > opportunities[j].EstimatedTraffic
	})

	if len(opportunities) > MaxKeywordOpportunities {
		opportunities = opportunities[:MaxKeywordOpportunities]
	}
	return opportunities
}

func copyPosition(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
