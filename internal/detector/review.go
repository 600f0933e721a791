package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

const (
	reviewFetchLimit    = 50
	maxReviewInsights   = 5
	reviewMaxAge        = 30 * 24 * time.Hour
	reviewResponseGrace = 7 * 24 * time.Hour
)

// ReviewSource returns recent reviews for a place
type ReviewSource interface {
	Reviews(ctx context.Context, query string, limit int) ([]models.Review, error)
}

// ReviewDetector flags negative reviews that have no owner response
type ReviewDetector struct {
	reviews ReviewSource
	clock   cache.Clock
}

// NewReviewDetector creates a review-response detector
func NewReviewDetector(reviews ReviewSource, clock cache.Clock) *ReviewDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	return &ReviewDetector{reviews: reviews, clock: clock}
}

func (d *ReviewDetector) Name() string                 { return "reviews" }
func (d *ReviewDetector) Type() models.OpportunityType { return models.TypeReviewResponse }

// Detect reports the newest unanswered negative reviews
func (d *ReviewDetector) Detect(ctx context.Context, brand models.Brand) Result {
	if d.reviews == nil {
		return Unavailable(d, "no review source configured")
	}
	query := reviewQuery(brand)
	if query == "" {
		return Unavailable(d, "brand has no place query or city")
	}

	reviews, err := d.reviews.Reviews(ctx, query, reviewFetchLimit)
	if err != nil {
		return fromError(d, err)
	}

	now := d.clock.Now()
	var pending []models.Review
	for _, r := range signals.NormalizeReviews(reviews) {
		if !signals.NeedsResponse(r) {
			continue
		}
		if !r.PublishedAt.IsZero() && now.Sub(r.PublishedAt) > reviewMaxAge {
			continue
		}
		pending = append(pending, r)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].PublishedAt.After(pending[j].PublishedAt)
	})
	if len(pending) > maxReviewInsights {
		pending = pending[:maxReviewInsights]
	}

	insights := make([]models.OpportunityInsight, 0, len(pending))
	for _, r := range pending {
		published := r.PublishedAt
		if published.IsZero() {
			published = now
		}
		expires := published.Add(reviewResponseGrace)
		if !expires.After(now) {
			expires = now.Add(24 * time.Hour)
		}

		confidence := 0.9
		if r.Rating == 0 {
			confidence = 0.7
		}

		insights = append(insights, newInsight(brand, d.Type(), draft{
			key:         reviewKey(r),
			title:       reviewTitle(r),
			description: truncateText(r.Text, 240),
			source:      "outscraper",
			sourceData: map[string]any{
				"reviewId":    r.ID,
				"author":      r.Author,
				"rating":      r.Rating,
				"publishedAt": r.PublishedAt,
			},
			factors: scoring.Factors{
				Reach:      30 + (5-r.Rating)*10,
				Relevance:  95,
				Timeliness: reviewTimeliness(now.Sub(published)),
				Confidence: confidence,
			},
			expiresAt: timePtr(expires),
			actions: []models.SuggestedAction{
				action("respond", "Reply publicly, acknowledge the issue and offer to resolve it offline", "high", "low", 70),
			},
		}, now))
	}

	return OK(d, insights)
}

func reviewQuery(brand models.Brand) string {
	if q := strings.TrimSpace(brand.PlaceQuery); q != "" {
		return q
	}
	if brand.Name == "" || brand.Location.City == "" {
		return ""
	}
	return brand.Name + " " + brand.Location.City
}

func reviewKey(r models.Review) string {
	if r.ID != "" {
		return r.ID
	}
	return r.Author + "|" + r.PublishedAt.UTC().Format(time.RFC3339)
}

func reviewTitle(r models.Review) string {
	author := r.Author
	if author == "" {
		author = "a customer"
	}
	if r.Rating > 0 {
		return fmt.Sprintf("Respond to %.0f-star review from %s", r.Rating, author)
	}
	return fmt.Sprintf("Respond to negative review from %s", author)
}

func reviewTimeliness(age time.Duration) float64 {
	switch {
	case age < 48*time.Hour:
		return 90
	case age < 7*24*time.Hour:
		return 70
	default:
		return 50
	}
}

func truncateText(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}
