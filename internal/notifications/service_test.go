package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() *models.Digest {
	generated := time.Date(2026, 7, 14, 9, 0, 0, 0, time.UTC)
	expires := generated.Add(10 * time.Hour)
	return &models.Digest{
		Brand:       models.Brand{ID: "cool-air", Name: "Cool Air HVAC"},
		GeneratedAt: generated,
		Insights: []models.OpportunityInsight{
			{
				ID:          "1",
				Type:        models.TypeWeatherBased,
				Title:       "Heat wave: 112F on Wednesday",
				Description: "Record temperatures will drive emergency AC calls.",
				ImpactScore: 88,
				Urgency:     models.UrgencyCritical,
				ExpiresAt:   &expires,
				SuggestedActions: []models.SuggestedAction{
					{ActionType: "adjust-bids", Description: "Raise bids on emergency AC repair", Priority: "high", Effort: "low"},
				},
			},
			{
				ID:          "2",
				Type:        models.TypeKeywordOpportunity,
				Title:       "Push \"ac repair\" onto page one",
				ImpactScore: 64,
				Urgency:     models.UrgencyHigh,
			},
		},
	}
}

func TestSendDigest_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := NewService(&config.Config{TeamsWebhookURL: server.URL})
	err := service.SendDigest(context.Background(), sampleDigest())
	require.NoError(t, err)

	assert.Equal(t, "MessageCard", received.Type)
	assert.Equal(t, "Cool Air HVAC: 2 urgent opportunities (1 critical)", received.Title)
	require.Len(t, received.Sections, 2)
	assert.Equal(t, "Heat wave: 112F on Wednesday", received.Sections[0].ActivityTitle)
	assert.Contains(t, received.Sections[0].Facts, TeamsFact{Name: "Impact", Value: "88/100"})
	assert.Contains(t, received.Sections[0].Facts, TeamsFact{Name: "Next step", Value: "Raise bids on emergency AC repair"})
}

func TestSendDigest_TeamsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad card"))
	}))
	defer server.Close()

	service := NewService(&config.Config{TeamsWebhookURL: server.URL})
	err := service.SendDigest(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams webhook returned status 400")
}

func TestSendDigest_EmptyDigestIsNoop(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	service := NewService(&config.Config{TeamsWebhookURL: server.URL})
	require.NoError(t, service.SendDigest(context.Background(), &models.Digest{}))
	require.NoError(t, service.SendDigest(context.Background(), nil))
	assert.Equal(t, 0, calls)
}

func TestBuildTeamsMessage_CapsSections(t *testing.T) {
	digest := sampleDigest()
	for i := 0; i < 15; i++ {
		digest.Insights = append(digest.Insights, models.OpportunityInsight{
			ID:      fmt.Sprintf("extra-%d", i),
			Title:   "extra",
			Urgency: models.UrgencyHigh,
		})
	}

	message := buildTeamsMessage(digest)
	assert.Len(t, message.Sections, maxDigestItems)
}

func TestBuildEmailText(t *testing.T) {
	text := buildEmailText(sampleDigest())

	assert.Contains(t, text, "Cool Air HVAC: 2 urgent opportunities (1 critical)")
	assert.Contains(t, text, "1. [CRITICAL] Heat wave: 112F on Wednesday")
	assert.Contains(t, text, "Expires: Jul 14, 2026 19:00 UTC")
	assert.Contains(t, text, "   - Raise bids on emergency AC repair")
	assert.Contains(t, text, "2. [HIGH] Push \"ac repair\" onto page one")
}

func TestBuildEmailHTML(t *testing.T) {
	html, err := buildEmailHTML(sampleDigest())
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Cool Air HVAC</h1>")
	assert.Contains(t, html, `class="insight critical"`)
	assert.Contains(t, html, "Raise bids on emergency AC repair (high priority, low effort)")
	// html/template escapes quotes in text content
	assert.Contains(t, html, "Push &#34;ac repair&#34; onto page one")
	assert.False(t, strings.Contains(html, "expires <no value>"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
