package models

import "time"

// KeywordRanking is one organic ranking row for a domain
type KeywordRanking struct {
	Keyword      string  `json:"keyword"`
	Position     *int    `json:"position,omitempty"` // nil when the domain does not rank
	SearchVolume int     `json:"searchVolume"`
	CPC          float64 `json:"cpc"`
	URL          string  `json:"url"`
	TrafficPct   float64 `json:"trafficPercent"`
	Difficulty   int     `json:"difficulty"`
	IsBranded    bool    `json:"isBranded"`
}

// OpportunityCategory classifies a keyword opportunity
type OpportunityCategory string

const (
	CategoryQuickWin  OpportunityCategory = "quick-win"
	CategoryHighValue OpportunityCategory = "high-value"
	CategoryLongTerm  OpportunityCategory = "long-term"
)

// KeywordOpportunity is derived from rankings on each request and never stored
type KeywordOpportunity struct {
	Keyword          string              `json:"keyword"`
	Category         OpportunityCategory `json:"category"`
	CurrentPosition  *int                `json:"currentPosition,omitempty"`
	SearchVolume     int                 `json:"searchVolume"`
	Difficulty       int                 `json:"difficulty"`
	EstimatedTraffic int                 `json:"estimatedTraffic"`
}

// TrendingArticle is an engagement-validated content record
type TrendingArticle struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Domain          string    `json:"domain"`
	Author          string    `json:"author"`
	PublishedAt     time.Time `json:"publishedAt"`
	TotalShares     int       `json:"totalShares"`
	FacebookShares  int       `json:"facebookShares"`
	TwitterShares   int       `json:"twitterShares"`
	PinterestShares int       `json:"pinterestShares"`
	RedditShares    int       `json:"redditShares"`
	EvergreenScore  float64   `json:"evergreenScore"`
}

// WeatherPeriod is one normalized forecast step
type WeatherPeriod struct {
	Time         time.Time `json:"time"`
	TemperatureF float64   `json:"temperatureF"`
	FeelsLikeF   float64   `json:"feelsLikeF"`
	Humidity     float64   `json:"humidity"`
	WindSpeedMph float64   `json:"windSpeedMph"`
	PrecipChance float64   `json:"precipChance"` // 0-1
	Condition    string    `json:"condition"`    // "Clear", "Rain", "Thunderstorm", ...
	Description  string    `json:"description"`
}

// WeatherEvent is a forecast condition worth marketing around
type WeatherEvent struct {
	Kind     string    `json:"kind"` // "heat", "freeze", "storm", "heavy-rain", "snow"
	StartsAt time.Time `json:"startsAt"`
	Peak     float64   `json:"peak"`
	Summary  string    `json:"summary"`
}

// Review is a normalized customer review
type Review struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	Rating      float64   `json:"rating"`
	PublishedAt time.Time `json:"publishedAt"`
	OwnerAnswer string    `json:"ownerAnswer,omitempty"`
	Sentiment   string    `json:"sentiment"` // "positive", "negative", "neutral"
}
