package schema

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMapping = Mapping{
	Provider: "test",
	Fields: []Field{
		{Upstream: "article_id", Local: "id", Kind: String, Required: true},
		{Upstream: "total_shares", Local: "totalShares", Kind: Int},
		{Upstream: "evergreen_score", Local: "evergreenScore", Kind: Float},
		{Upstream: "published_date", Local: "publishedAt", Kind: Time},
		{Upstream: "is_featured", Local: "isFeatured", Kind: Bool},
		{Upstream: "raw", Local: "raw", Kind: Any},
	},
}

func TestMapping_ToLocal(t *testing.T) {
	local, err := testMapping.ToLocal(map[string]any{
		"article_id":      "abc",
		"total_shares":    "1,234",
		"evergreen_score": 0.75,
		"published_date":  float64(1767225600),
		"is_featured":     "true",
		"undeclared":      "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", local["id"])
	assert.Equal(t, 1234, local["totalShares"])
	assert.Equal(t, 0.75, local["evergreenScore"])
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), local["publishedAt"])
	assert.Equal(t, true, local["isFeatured"])
	assert.NotContains(t, local, "undeclared")
	assert.NotContains(t, local, "raw")
}

func TestMapping_ToLocal_MissingRequired(t *testing.T) {
	_, err := testMapping.ToLocal(map[string]any{"total_shares": 3})

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "article_id", vErr.Field)
	assert.Contains(t, err.Error(), "test payload invalid")
}

func TestMapping_ToLocal_NilRow(t *testing.T) {
	_, err := testMapping.ToLocal(nil)
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestMapping_ToLocalRows_ReportsRowIndex(t *testing.T) {
	_, err := testMapping.ToLocalRows([]map[string]any{
		{"article_id": "ok"},
		{"total_shares": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestMapping_RoundTrip(t *testing.T) {
	local := map[string]any{
		"id":             "abc",
		"totalShares":    42,
		"evergreenScore": 1.5,
		"publishedAt":    time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		"isFeatured":     false,
		"raw":            map[string]any{"nested": true},
	}

	upstream := testMapping.ToUpstream(local)
	assert.Equal(t, "abc", upstream["article_id"])
	assert.Equal(t, 42, upstream["total_shares"])

	back, err := testMapping.ToLocal(upstream)
	require.NoError(t, err)
	assert.Equal(t, local, back)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{name: "float", input: 12.5, expected: 12.5},
		{name: "int", input: 7, expected: 7},
		{name: "numeric string", input: "300", expected: 300},
		{name: "thousands separator", input: "12,000", expected: 12000},
		{name: "percent string", input: "3.5%", expected: 3.5},
		{name: "garbage", input: "n/a", expected: 0},
		{name: "empty", input: "", expected: 0},
		{name: "NaN", input: math.NaN(), expected: 0},
		{name: "Inf", input: math.Inf(1), expected: 0},
		{name: "nil", input: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Number(tt.input))
		})
	}
}

func TestDecode(t *testing.T) {
	type record struct {
		ID          string    `json:"id"`
		Position    *int      `json:"position,omitempty"`
		TotalShares int       `json:"totalShares"`
		PublishedAt time.Time `json:"publishedAt"`
	}

	var r record
	err := Decode(map[string]any{
		"id":          "x",
		"position":    4,
		"totalShares": 10,
		"publishedAt": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, &r)
	require.NoError(t, err)

	assert.Equal(t, "x", r.ID)
	require.NotNil(t, r.Position)
	assert.Equal(t, 4, *r.Position)
	assert.Equal(t, 10, r.TotalShares)
	assert.Equal(t, 2026, r.PublishedAt.Year())
}

func TestMapping_LocalName(t *testing.T) {
	name, ok := testMapping.LocalName("total_shares")
	assert.True(t, ok)
	assert.Equal(t, "totalShares", name)

	_, ok = testMapping.LocalName("nope")
	assert.False(t, ok)
}
