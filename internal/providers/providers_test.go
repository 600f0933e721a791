package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviders_GetNameAndIsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		expected string
		enabled  bool
	}{
		{name: "Semrush with key", provider: NewSemrushClient("k"), expected: "semrush", enabled: true},
		{name: "Semrush without key", provider: NewSemrushClient(""), expected: "semrush", enabled: false},
		{name: "BuzzSumo", provider: NewBuzzSumoClient("k"), expected: "buzzsumo", enabled: true},
		{name: "Weather", provider: NewWeatherClient(""), expected: "weather", enabled: false},
		{name: "OutScraper", provider: NewOutScraperClient("k"), expected: "outscraper", enabled: true},
		{name: "Apify", provider: NewApifyClient(""), expected: "apify", enabled: false},
		{name: "OpenRouter", provider: NewOpenRouterClient("k", "", ""), expected: "openrouter", enabled: true},
		{name: "Anthropic", provider: NewAnthropicClient("", ""), expected: "anthropic", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.provider.GetName())
			assert.Equal(t, tt.enabled, tt.provider.IsEnabled())
		})
	}
}

func TestSemrushClient_DomainOrganic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "domain_organic", r.URL.Query().Get("type"))
		assert.Equal(t, "example.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Write([]byte("Keyword;Position;Search Volume;CPC;Url;Traffic (%)\n" +
			"ac repair;15;500;4.20;https://example.com/ac;1.5\n" +
			"hvac services;0;5,000;7.10;https://example.com/;0\n"))
	}))
	defer server.Close()

	client := NewSemrushClient("secret").WithBaseURL(server.URL)
	rankings, err := client.DomainOrganic(context.Background(), "example.com", "", 0)
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	assert.Equal(t, "ac repair", rankings[0].Keyword)
	require.NotNil(t, rankings[0].Position)
	assert.Equal(t, 15, *rankings[0].Position)
	assert.Equal(t, 500, rankings[0].SearchVolume)
	assert.InDelta(t, 4.2, rankings[0].CPC, 0.001)

	assert.Nil(t, rankings[1].Position, "position 0 means not ranking")
	assert.Equal(t, 5000, rankings[1].SearchVolume)
}

func TestSemrushClient_NothingFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ERROR 50 :: NOTHING FOUND"))
	}))
	defer server.Close()

	rankings, err := NewSemrushClient("k").WithBaseURL(server.URL).DomainOrganic(context.Background(), "x.com", "us", 10)
	assert.NoError(t, err)
	assert.Empty(t, rankings)
}

func TestSemrushClient_KeywordOverviewNothingFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "phrase_this", r.URL.Query().Get("type"))
		w.Write([]byte("ERROR 50 :: NOTHING FOUND"))
	}))
	defer server.Close()

	overview, err := NewSemrushClient("k").WithBaseURL(server.URL).KeywordOverview(context.Background(), "zzqx", "us")
	require.NoError(t, err)
	require.NotNil(t, overview)
	assert.Empty(t, overview)

	// the function proxy encodes it as an object, never null
	encoded, err := json.Marshal(overview)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(encoded))
}

func TestSemrushClient_BodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ERROR 120 :: WRONG KEY - ID PAIR"))
	}))
	defer server.Close()

	_, err := NewSemrushClient("k").WithBaseURL(server.URL).KeywordOverview(context.Background(), "ac", "us")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONG KEY")
}

func TestSemrushClient_Disabled(t *testing.T) {
	_, err := NewSemrushClient("").DomainOrganic(context.Background(), "x.com", "us", 10)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBuzzSumoClient_SearchArticles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/articles.json", r.URL.Path)
		assert.Equal(t, "heat pumps", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{
				"id":                    987,
				"title":                 "Heat pumps are booming",
				"url":                   "https://news.example/heat",
				"domain_name":           "news.example",
				"published_date":        1767225600,
				"total_shares":          "4200",
				"total_facebook_shares": 3000,
				"twitter_shares":        1200,
			}},
		})
	}))
	defer server.Close()

	articles, err := NewBuzzSumoClient("k").WithBaseURL(server.URL).SearchArticles(context.Background(), "heat pumps", 0, 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	assert.Equal(t, "987", articles[0].ID)
	assert.Equal(t, 4200, articles[0].TotalShares)
	assert.Equal(t, 3000, articles[0].FacebookShares)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestBuzzSumoClient_MissingResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_results": 0}`))
	}))
	defer server.Close()

	_, err := NewBuzzSumoClient("k").WithBaseURL(server.URL).SearchArticles(context.Background(), "q", 1, 1)

	var vErr *schema.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestBuzzSumoClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := NewBuzzSumoClient("k").WithBaseURL(server.URL).SearchArticles(context.Background(), "q", 1, 1)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "429")
}

func TestWeatherClient_Forecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/forecast", r.URL.Path)
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		w.Write([]byte(`{"list":[{"dt":1767225600,"main":{"temp":95.5,"feels_like":101,"humidity":40},
			"weather":[{"main":"Clear","description":"clear sky"}],"wind":{"speed":5},"pop":0.1}]}`))
	}))
	defer server.Close()

	periods, err := NewWeatherClient("k").WithBaseURL(server.URL).Forecast(context.Background(), 33.4484, -112.074)
	require.NoError(t, err)
	require.Len(t, periods, 1)

	assert.Equal(t, 95.5, periods[0].TemperatureF)
	assert.Equal(t, 101.0, periods[0].FeelsLikeF)
	assert.Equal(t, "Clear", periods[0].Condition)
	assert.Equal(t, 0.1, periods[0].PrecipChance)
	assert.Equal(t, 2026, periods[0].Time.Year())
}

func TestWeatherClient_MissingTemperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dt":1767225600,"weather":[]}`))
	}))
	defer server.Close()

	_, err := NewWeatherClient("k").WithBaseURL(server.URL).Current(context.Background(), 1, 2)

	var vErr *schema.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "main.temp", vErr.Field)
}

func TestOutScraperClient_ReviewsPolling(t *testing.T) {
	var polls int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		switch r.URL.Path {
		case "/maps/reviews-v3":
			json.NewEncoder(w).Encode(map[string]any{
				"id":               "req-1",
				"status":           "Pending",
				"results_location": server.URL + "/requests/req-1",
			})
		case "/requests/req-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				w.Write([]byte(`{"id":"req-1","status":"Pending"}`))
				return
			}
			w.Write([]byte(`{"id":"req-1","status":"Success","data":[{"name":"Cool Air HVAC","reviews_data":[
				{"review_id":"r1","author_title":"Pat","review_text":"Terrible service","review_rating":1,"review_timestamp":1767225600},
				{"review_id":"r2","author_title":"Sam","review_text":"Great","review_rating":"5","owner_answer":"Thanks!"}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewOutScraperClient("k").WithBaseURL(server.URL).WithPolling(10*time.Millisecond, 2*time.Second)
	reviews, err := client.Reviews(context.Background(), "Cool Air HVAC Phoenix", 10)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	assert.Equal(t, "r1", reviews[0].ID)
	assert.Equal(t, 1.0, reviews[0].Rating)
	assert.Equal(t, 5.0, reviews[1].Rating)
	assert.Equal(t, "Thanks!", reviews[1].OwnerAnswer)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(2))
}

func TestOutScraperClient_PollCeiling(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/maps/reviews-v3" {
			json.NewEncoder(w).Encode(map[string]any{"status": "Pending", "results_location": server.URL + "/requests/x"})
			return
		}
		w.Write([]byte(`{"status":"Pending"}`))
	}))
	defer server.Close()

	client := NewOutScraperClient("k").WithBaseURL(server.URL).WithPolling(5*time.Millisecond, 50*time.Millisecond)
	_, err := client.Reviews(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestApifyClient_RunActor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/apify~google-maps/run-sync-get-dataset-items", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))

		var input map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "hvac", input["searchString"])

		w.Write([]byte(`[{"title":"Cool Air"},{"title":"Hot Air"}]`))
	}))
	defer server.Close()

	items, err := NewApifyClient("tok").WithBaseURL(server.URL).RunActor(context.Background(), "apify/google-maps", map[string]any{"searchString": "hvac"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestOpenRouterClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openRouterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test/model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Write([]byte(`{"model":"test/model","choices":[{"message":{"role":"assistant","content":"hello"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient("key", "test/model", "https://app.example").WithBaseURL(server.URL)
	resp, err := client.Complete(context.Background(), ChatRequest{Prompt: "hi", System: "be brief"})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestOpenRouterClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewOpenRouterClient("key", "", "").WithBaseURL(server.URL).Complete(context.Background(), ChatRequest{Prompt: "hi"})
	assert.Error(t, err)
}
