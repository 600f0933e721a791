package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/models"
)

const (
	weightRelevance  = 0.40
	weightReach      = 0.30
	weightTimeliness = 0.20
	weightConfidence = 0.10
)

// Urgency thresholds, measured from now until expiration.
const (
	CriticalWindow = 24 * time.Hour
	HighWindow     = 72 * time.Hour
	MediumWindow   = 168 * time.Hour
)

// Factors are the inputs of the impact score. Reach, Relevance and Timeliness
// are on a 0-100 scale; Confidence is 0-1.
type Factors struct {
	Reach      float64
	Relevance  float64
	Timeliness float64
	Confidence float64
}

// CalculateImpactScore blends the factors into an integer in [0,100].
// Out-of-range inputs are clamped before weighting.
func CalculateImpactScore(f Factors) int {
	raw := clamp(f.Relevance, 0, 100)*weightRelevance +
		clamp(f.Reach, 0, 100)*weightReach +
		clamp(f.Timeliness, 0, 100)*weightTimeliness +
		ClampConfidence(f.Confidence)*100*weightConfidence
	return int(clamp(math.Round(raw), 0, 100))
}

// ClampConfidence bounds a confidence value to [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	return clamp(c, 0, 1)
}

// CalculateUrgency classifies an expiration time relative to now.
// Insights without an expiration are low urgency.
func CalculateUrgency(expiresAt *time.Time, now time.Time) models.Urgency {
	if expiresAt == nil {
		return models.UrgencyLow
	}

	remaining := expiresAt.Sub(now)
	switch {
	case remaining < CriticalWindow:
		return models.UrgencyCritical
	case remaining < HighWindow:
		return models.UrgencyHigh
	case remaining < MediumWindow:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// UrgencyWeight maps urgency to its ranking multiplier
func UrgencyWeight(u models.Urgency) int {
	switch u {
	case models.UrgencyCritical:
		return 4
	case models.UrgencyHigh:
		return 3
	case models.UrgencyMedium:
		return 2
	default:
		return 1
	}
}

// RankKey is the value insights are ordered by
func RankKey(insight models.OpportunityInsight) int {
	return insight.ImpactScore + UrgencyWeight(insight.Urgency)*10
}

// Rank returns a new slice holding every insight ordered by RankKey, highest
// first. Ties fall back to impact, then earliest expiration, then ID.
func Rank(groups ...[]models.OpportunityInsight) []models.OpportunityInsight {
	var all []models.OpportunityInsight
	for _, group := range groups {
		all = append(all, group...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if ka, kb := RankKey(a), RankKey(b); ka != kb {
			return ka > kb
		}
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		if !sameExpiry(a.ExpiresAt, b.ExpiresAt) {
			return expiresBefore(a.ExpiresAt, b.ExpiresAt)
		}
		return a.ID < b.ID
	})

	return all
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// nil expirations sort last
func expiresBefore(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
