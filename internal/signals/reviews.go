package signals

import (
	"strings"

	"github.com/mirrorhq/opportunity-engine/internal/models"
)

var (
	positiveWords = []string{"good", "great", "excellent", "love", "awesome", "fantastic", "helpful", "friendly", "recommend", "professional"}
	negativeWords = []string{"bad", "terrible", "awful", "hate", "rude", "late", "broken", "never", "worst", "overpriced", "problem"}
)

// Sentiment classifies a review. Star ratings decide when present; text is
// used for middling or missing ratings.
func Sentiment(text string, rating float64) string {
	switch {
	case rating > 0 && rating <= 2:
		return "negative"
	case rating >= 4:
		return "positive"
	}

	content := strings.ToLower(text)
	positiveCount := 0
	negativeCount := 0

	for _, word := range positiveWords {
		if strings.Contains(content, word) {
			positiveCount++
		}
	}
	for _, word := range negativeWords {
		if strings.Contains(content, word) {
			negativeCount++
		}
	}

	if positiveCount > negativeCount {
		return "positive"
	} else if negativeCount > positiveCount {
		return "negative"
	}
	return "neutral"
}

// NormalizeReviews strips markup and assigns sentiment
func NormalizeReviews(reviews []models.Review) []models.Review {
	out := make([]models.Review, 0, len(reviews))
	for _, r := range reviews {
		r.Text = StripHTML(r.Text)
		r.OwnerAnswer = StripHTML(r.OwnerAnswer)
		r.Sentiment = Sentiment(r.Text, r.Rating)
		out = append(out, r)
	}
	return out
}

// NeedsResponse reports whether a review is negative and unanswered
func NeedsResponse(r models.Review) bool {
	return r.Sentiment == "negative" && strings.TrimSpace(r.OwnerAnswer) == ""
}
