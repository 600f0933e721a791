package synapse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/sirupsen/logrus"
)

// Completer sends a prompt to a hosted LLM
type Completer interface {
	Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
}

// ErrNoJSON is returned when a completion holds no parsable JSON
var ErrNoJSON = errors.New("no JSON found in completion")

// GeneratedInsight is one insight proposed by the model
type GeneratedInsight struct {
	Title         string                   `json:"title"`
	Description   string                   `json:"description"`
	Reach         float64                  `json:"reach"`
	Relevance     float64                  `json:"relevance"`
	Timeliness    float64                  `json:"timeliness"`
	Confidence    float64                  `json:"confidence"`
	ExpiresInDays int                      `json:"expires_in_days"`
	Actions       []models.SuggestedAction `json:"actions"`
}

const systemPrompt = "You are a marketing strategist. You answer only with valid JSON."

var industryShiftTemplate = template.Must(template.New("industry-shift").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`
Identify up to {{.Limit}} current shifts in the {{.Brand.Industry}} industry that
{{.Brand.Name}}{{with .Brand.Location.City}} in {{.}}{{with $.Brand.Location.Region}}, {{.}}{{end}}{{end}} could act on in the next few weeks.
{{- if .Brand.Keywords}}
The brand focuses on: {{join .Brand.Keywords ", "}}.
{{- end}}

Return a JSON array. Each element has exactly these fields:
- title: short headline
- description: two sentences on what changed and why it matters for the brand
- reach: 0-100, how many of the brand's customers are affected
- relevance: 0-100, how closely it matches the brand's offering
- timeliness: 0-100, how soon the brand should act
- confidence: 0-1, how sure you are the shift is real
- expires_in_days: integer, days until the opportunity is stale
- actions: array of {action_type, description, priority, effort, potential_impact}
`))

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)```")
	jsonSpan   = regexp.MustCompile(`(?s)(\[.*\]|\{.*\})`)
)

// BuildPrompt renders the industry-shift prompt for a brand
func BuildPrompt(brand models.Brand, limit int) (string, error) {
	var buf bytes.Buffer
	err := industryShiftTemplate.Execute(&buf, struct {
		Brand models.Brand
		Limit int
	}{Brand: brand, Limit: limit})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ExtractJSON returns the first JSON document in a completion. Fenced code
// blocks are preferred over bare spans.
func ExtractJSON(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if m := jsonSpan.FindString(text); m != "" && json.Valid([]byte(m)) {
		return m, nil
	}

	return "", ErrNoJSON
}

// Generator produces insights with an LLM
type Generator struct {
	completer Completer
	model     string
	limit     int
}

// NewGenerator creates a generator. An empty model uses the completer's default.
func NewGenerator(completer Completer, model string) *Generator {
	return &Generator{completer: completer, model: model, limit: 3}
}

// Insights asks the model for industry-shift insights about a brand
func (g *Generator) Insights(ctx context.Context, brand models.Brand) ([]GeneratedInsight, error) {
	prompt, err := BuildPrompt(brand, g.limit)
	if err != nil {
		return nil, err
	}

	temperature := 0.4
	resp, err := g.completer.Complete(ctx, providers.ChatRequest{
		Prompt:      prompt,
		System:      systemPrompt,
		Model:       g.model,
		Temperature: &temperature,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		return nil, err
	}

	insights, err := decodeInsights(raw)
	if err != nil {
		return nil, err
	}

	logrus.Debugf("Synapse generated %d insights for %s (%d tokens)", len(insights), brand.Name, resp.Usage.TotalTokens)
	return insights, nil
}

// decodeInsights accepts an array or a single object, optionally wrapped in {"insights": [...]}
func decodeInsights(raw string) ([]GeneratedInsight, error) {
	var insights []GeneratedInsight
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &insights); err != nil {
			return nil, fmt.Errorf("failed to parse insights: %w", err)
		}
		return insights, nil
	}

	var wrapper struct {
		Insights []GeneratedInsight `json:"insights"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil && wrapper.Insights != nil {
		return wrapper.Insights, nil
	}

	var single GeneratedInsight
	if err := json.Unmarshal([]byte(raw), &single); err != nil {
		return nil, fmt.Errorf("failed to parse insight: %w", err)
	}
	if single.Title == "" {
		return nil, ErrNoJSON
	}
	return []GeneratedInsight{single}, nil
}
