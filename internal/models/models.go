package models

import (
	"errors"
	"time"
)

// OpportunityType identifies which signal family produced an insight
type OpportunityType string

const (
	TypeWeatherBased       OpportunityType = "weather-based"
	TypeTrendingTopic      OpportunityType = "trending-topic"
	TypeCompetitorMove     OpportunityType = "competitor-move"
	TypeKeywordOpportunity OpportunityType = "keyword-opportunity"
	TypeReviewResponse     OpportunityType = "review-response"
	TypeSeasonalEvent      OpportunityType = "seasonal-event"
	TypeLocalNews          OpportunityType = "local-news"
	TypeIndustryShift      OpportunityType = "industry-shift"
	TypeAudienceBehavior   OpportunityType = "audience-behavior"
	TypePlatformUpdate     OpportunityType = "platform-update"
)

// AllTypes lists every opportunity type in declaration order
var AllTypes = []OpportunityType{
	TypeWeatherBased,
	TypeTrendingTopic,
	TypeCompetitorMove,
	TypeKeywordOpportunity,
	TypeReviewResponse,
	TypeSeasonalEvent,
	TypeLocalNews,
	TypeIndustryShift,
	TypeAudienceBehavior,
	TypePlatformUpdate,
}

// Valid reports whether t is a known opportunity type
func (t OpportunityType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Urgency is derived from an insight's expiration time
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Status is the lifecycle state of an insight
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewed  Status = "reviewed"
	StatusActioned  Status = "actioned"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

var transitions = map[Status][]Status{
	StatusNew:      {StatusReviewed, StatusDismissed, StatusExpired},
	StatusReviewed: {StatusActioned, StatusDismissed, StatusExpired},
}

// ErrInvalidTransition is returned when a status change breaks the lifecycle
var ErrInvalidTransition = errors.New("invalid status transition")

// ParseStatus validates a status string
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNew, StatusReviewed, StatusActioned, StatusDismissed, StatusExpired:
		return Status(s), true
	}
	return "", false
}

// CanTransition reports whether an insight may move from one status to another
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active reports whether the status can still change
func (s Status) Active() bool {
	return s == StatusNew || s == StatusReviewed
}

// SuggestedAction is a recommended response to an insight
type SuggestedAction struct {
	ActionType      string `json:"action_type"` // "create-content", "adjust-bids", "respond", ...
	Description     string `json:"description"`
	Priority        string `json:"priority"`         // "high", "medium", "low"
	Effort          string `json:"effort"`           // "low", "medium", "high"
	PotentialImpact int    `json:"potential_impact"` // 0-100
}

// OpportunityInsight represents one detected marketing opportunity
type OpportunityInsight struct {
	ID               string            `json:"id"`
	BrandID          string            `json:"brand_id"`
	Type             OpportunityType   `json:"type"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Source           string            `json:"source"`
	SourceData       map[string]any    `json:"source_data,omitempty"`
	ImpactScore      int               `json:"impact_score"` // 0-100
	Urgency          Urgency           `json:"urgency"`
	Confidence       float64           `json:"confidence"` // 0-1
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	Status           Status            `json:"status"`
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Location is where a brand operates
type Location struct {
	City    string  `json:"city" yaml:"city"`
	Region  string  `json:"region" yaml:"region"`
	Country string  `json:"country" yaml:"country"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
}

// HasCoordinates reports whether lat/lon were provided
func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lon != 0
}

// Brand is the detection input: identity, industry, location and keywords
type Brand struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Industry   string   `json:"industry" yaml:"industry"`
	Domain     string   `json:"domain" yaml:"domain"`
	PlaceQuery string   `json:"place_query" yaml:"place_query"` // Google Maps query for reviews
	Location   Location `json:"location" yaml:"location"`
	Keywords   []string `json:"keywords" yaml:"keywords"`
}

// DetectorOutcome summarizes how a single detector finished
type DetectorOutcome struct {
	Detector string          `json:"detector"`
	Type     OpportunityType `json:"type"`
	Outcome  string          `json:"outcome"` // "ok", "unavailable", "failed"
	Count    int             `json:"count"`
	Reason   string          `json:"reason,omitempty"`
}

// DetectionReport is the result of one aggregate detection run
type DetectionReport struct {
	BrandID     string               `json:"brand_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Duration    string               `json:"duration"`
	Insights    []OpportunityInsight `json:"insights"`
	Detectors   []DetectorOutcome    `json:"detectors"`
	Summary     map[string]any       `json:"summary"`
}

// Digest is an urgent-opportunity notification
type Digest struct {
	Brand       Brand                `json:"brand"`
	GeneratedAt time.Time            `json:"generated_at"`
	Insights    []OpportunityInsight `json:"insights"`
}
