package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/schema"
	"github.com/sirupsen/logrus"
)

const semrushBaseURL = "https://api.semrush.com"

// SemrushOrganicMapping maps domain_organic report columns
var SemrushOrganicMapping = schema.Mapping{
	Provider: "semrush",
	Fields: []schema.Field{
		{Upstream: "Keyword", Local: "keyword", Kind: schema.String, Required: true},
		{Upstream: "Position", Local: "position", Kind: schema.Int},
		{Upstream: "Search Volume", Local: "searchVolume", Kind: schema.Int},
		{Upstream: "CPC", Local: "cpc", Kind: schema.Float},
		{Upstream: "Url", Local: "url", Kind: schema.String},
		{Upstream: "Traffic (%)", Local: "trafficPercent", Kind: schema.Float},
	},
}

// SemrushOverviewMapping maps phrase_this report columns
var SemrushOverviewMapping = schema.Mapping{
	Provider: "semrush",
	Fields: []schema.Field{
		{Upstream: "Keyword", Local: "keyword", Kind: schema.String, Required: true},
		{Upstream: "Search Volume", Local: "searchVolume", Kind: schema.Int},
		{Upstream: "CPC", Local: "cpc", Kind: schema.Float},
		{Upstream: "Competition", Local: "competition", Kind: schema.Float},
		{Upstream: "Number of Results", Local: "resultsCount", Kind: schema.Int},
	},
}

// SemrushClient queries the Semrush analytics API
type SemrushClient struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

// NewSemrushClient creates a new Semrush client
func NewSemrushClient(apiKey string) *SemrushClient {
	return &SemrushClient{
		apiKey:  apiKey,
		baseURL: semrushBaseURL,
		client:  newClient(),
	}
}

// WithBaseURL points the client at a different host
func (s *SemrushClient) WithBaseURL(baseURL string) *SemrushClient {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

func (s *SemrushClient) GetName() string {
	return "semrush"
}

func (s *SemrushClient) IsEnabled() bool {
	return s.apiKey != ""
}

// DomainOrganic returns the organic keyword rankings of a domain
func (s *SemrushClient) DomainOrganic(ctx context.Context, domain, database string, limit int) ([]models.KeywordRanking, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}
	if database == "" {
		database = "us"
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.report(ctx, map[string]string{
		"type":           "domain_organic",
		"domain":         domain,
		"database":       database,
		"display_limit":  strconv.Itoa(limit),
		"export_columns": "Ph,Po,Nq,Cp,Ur,Tr",
	})
	if err != nil {
		return nil, err
	}

	local, err := SemrushOrganicMapping.ToLocalRows(rows)
	if err != nil {
		return nil, err
	}

	rankings := make([]models.KeywordRanking, 0, len(local))
	for _, row := range local {
		var ranking models.KeywordRanking
		if err := schema.Decode(row, &ranking); err != nil {
			return nil, fmt.Errorf("failed to decode semrush row: %w", err)
		}
		// Semrush reports 0 when the domain does not rank
		if ranking.Position != nil && *ranking.Position <= 0 {
			ranking.Position = nil
		}
		rankings = append(rankings, ranking)
	}

	logrus.Debugf("Semrush returned %d rankings for %s", len(rankings), domain)
	return rankings, nil
}

// KeywordOverview returns volume and competition for a phrase
func (s *SemrushClient) KeywordOverview(ctx context.Context, phrase, database string) (map[string]any, error) {
	if !s.IsEnabled() {
		return nil, ErrDisabled
	}
	if database == "" {
		database = "us"
	}

	rows, err := s.report(ctx, map[string]string{
		"type":           "phrase_this",
		"phrase":         phrase,
		"database":       database,
		"export_columns": "Ph,Nq,Cp,Co,Nr",
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]any{}, nil
	}

	return SemrushOverviewMapping.ToLocal(rows[0])
}

func (s *SemrushClient) report(ctx context.Context, params map[string]string) ([]map[string]any, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("key", s.apiKey).
		Get(s.baseURL + "/")

	if err := checkResponse("semrush", resp, err); err != nil {
		return nil, err
	}

	return parseSemrushCSV(string(resp.Body()))
}

// parseSemrushCSV reads the semicolon separated report format. Semrush signals
// failures in the body with a 200 status.
func parseSemrushCSV(body string) ([]map[string]any, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "ERROR") {
		if strings.Contains(body, "NOTHING FOUND") {
			return nil, nil
		}
		return nil, fmt.Errorf("semrush API error: %s", body)
	}
	if body == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read semrush header: %w", err)
	}

	var rows []map[string]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read semrush row: %w", err)
		}

		row := make(map[string]any, len(header))
		for i, column := range header {
			if i < len(record) {
				row[strings.TrimSpace(column)] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
