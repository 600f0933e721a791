package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
)

// DefaultSeasonalLookahead is how far ahead calendar events are reported
const DefaultSeasonalLookahead = 45 * 24 * time.Hour

// SeasonalEvent is a recurring marketing date
type SeasonalEvent struct {
	Name       string
	Date       func(year int) time.Time
	Major      bool
	Industries []string // empty means every industry
}

func fixedDate(month time.Month, day int) func(int) time.Time {
	return func(year int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
}

// nthWeekday returns the nth weekday of a month (n starts at 1)
func nthWeekday(month time.Month, weekday time.Weekday, n int) func(int) time.Time {
	return func(year int) time.Time {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(weekday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+7*(n-1))
	}
}

func lastWeekday(month time.Month, weekday time.Weekday) func(int) time.Time {
	return func(year int) time.Time {
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		offset := (int(last.Weekday()) - int(weekday) + 7) % 7
		return last.AddDate(0, 0, -offset)
	}
}

func daysAfter(base func(int) time.Time, days int) func(int) time.Time {
	return func(year int) time.Time {
		return base(year).AddDate(0, 0, days)
	}
}

var thanksgiving = nthWeekday(time.November, time.Thursday, 4)

// RetailCalendar is the US retail marketing calendar
var RetailCalendar = []SeasonalEvent{
	{Name: "New Year's Day", Date: fixedDate(time.January, 1), Industries: []string{"fitness", "finance", "retail"}},
	{Name: "Valentine's Day", Date: fixedDate(time.February, 14), Major: true, Industries: []string{"restaurant", "retail", "florist", "jewelry", "beauty"}},
	{Name: "St. Patrick's Day", Date: fixedDate(time.March, 17), Industries: []string{"restaurant", "bar", "retail"}},
	{Name: "Mother's Day", Date: nthWeekday(time.May, time.Sunday, 2), Major: true, Industries: []string{"restaurant", "retail", "florist", "jewelry", "beauty"}},
	{Name: "Memorial Day", Date: lastWeekday(time.May, time.Monday), Industries: []string{"retail", "auto", "furniture", "hvac"}},
	{Name: "Father's Day", Date: nthWeekday(time.June, time.Sunday, 3), Industries: []string{"restaurant", "retail", "outdoor"}},
	{Name: "Independence Day", Date: fixedDate(time.July, 4), Industries: []string{"restaurant", "retail", "grocery", "outdoor"}},
	{Name: "Back to School", Date: fixedDate(time.August, 1), Major: true, Industries: []string{"retail", "education", "apparel"}},
	{Name: "Labor Day", Date: nthWeekday(time.September, time.Monday, 1), Industries: []string{"retail", "auto", "furniture"}},
	{Name: "Halloween", Date: fixedDate(time.October, 31), Industries: []string{"retail", "restaurant", "entertainment"}},
	{Name: "Thanksgiving", Date: thanksgiving, Major: true, Industries: []string{"restaurant", "grocery", "travel"}},
	{Name: "Black Friday", Date: daysAfter(thanksgiving, 1), Major: true},
	{Name: "Small Business Saturday", Date: daysAfter(thanksgiving, 2), Industries: []string{"retail", "restaurant", "services"}},
	{Name: "Cyber Monday", Date: daysAfter(thanksgiving, 4), Major: true, Industries: []string{"ecommerce", "retail", "software"}},
	{Name: "Christmas", Date: fixedDate(time.December, 25), Major: true},
}

// SeasonalDetector reports calendar events coming up within a lookahead window
type SeasonalDetector struct {
	calendar  []SeasonalEvent
	lookahead time.Duration
	clock     cache.Clock
}

// NewSeasonalDetector creates a detector over the retail calendar
func NewSeasonalDetector(lookahead time.Duration, clock cache.Clock) *SeasonalDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	if lookahead <= 0 {
		lookahead = DefaultSeasonalLookahead
	}
	return &SeasonalDetector{calendar: RetailCalendar, lookahead: lookahead, clock: clock}
}

func (d *SeasonalDetector) Name() string                 { return "seasonal" }
func (d *SeasonalDetector) Type() models.OpportunityType { return models.TypeSeasonalEvent }

// Detect reports every calendar event from today through the lookahead window
func (d *SeasonalDetector) Detect(ctx context.Context, brand models.Brand) Result {
	now := d.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var insights []models.OpportunityInsight
	for _, year := range []int{now.Year(), now.Year() + 1} {
		for _, event := range d.calendar {
			date := event.Date(year)
			if date.Before(today) || date.Sub(today) > d.lookahead {
				continue
			}

			days := int(date.Sub(today).Hours() / 24)
			reach := 60.0
			if event.Major {
				reach = 85
			}

			actions := []models.SuggestedAction{
				action("create-content", fmt.Sprintf("Plan a %s campaign across email and social", event.Name), "high", "medium", 70),
			}
			if days > 14 {
				actions = append(actions, action("schedule-promotion", fmt.Sprintf("Schedule %s promotions and ad budget now", event.Name), "medium", "low", 55))
			}

			insights = append(insights, newInsight(brand, d.Type(), draft{
				key:         event.Name + "|" + date.Format("2006-01-02"),
				title:       seasonalTitle(event.Name, days),
				description: fmt.Sprintf("%s falls on %s. Campaigns launched ahead of the date capture early planners.", event.Name, date.Format("Monday, January 2")),
				source:      "retail-calendar",
				sourceData: map[string]any{
					"event":     event.Name,
					"date":      date.Format("2006-01-02"),
					"daysUntil": days,
				},
				factors: scoring.Factors{
					Reach:      reach,
					Relevance:  seasonalRelevance(brand.Industry, event.Industries),
					Timeliness: seasonalTimeliness(days),
					Confidence: 0.95,
				},
				// the event day is the last useful day
				expiresAt: timePtr(date.Add(24 * time.Hour)),
				actions:   actions,
			}, now))
		}
	}

	return OK(d, insights)
}

func seasonalTitle(name string, days int) string {
	switch days {
	case 0:
		return name + " is today"
	case 1:
		return name + " is tomorrow"
	default:
		return fmt.Sprintf("%s in %d days", name, days)
	}
}

func seasonalRelevance(industry string, industries []string) float64 {
	if len(industries) == 0 {
		return 70
	}
	industry = strings.ToLower(industry)
	for _, candidate := range industries {
		if industry != "" && strings.Contains(industry, candidate) {
			return 85
		}
	}
	return 45
}

func seasonalTimeliness(days int) float64 {
	switch {
	case days <= 7:
		return 95
	case days <= 21:
		return 75
	default:
		return 50
	}
}
