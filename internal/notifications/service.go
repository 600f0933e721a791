package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const maxDigestItems = 10

// Service sends urgent opportunity digests via Teams and email
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendDigest sends a digest via every configured channel
func (s *Service) SendDigest(ctx context.Context, digest *models.Digest) error {
	if digest == nil || len(digest.Insights) == 0 {
		return nil
	}

	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, digest); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent %d-insight digest for %s to Teams", len(digest.Insights), digest.Brand.ID)
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(digest); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent %d-insight digest for %s via email", len(digest.Insights), digest.Brand.ID)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(ctx context.Context, digest *models.Digest) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(digest)).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func digestSubject(digest *models.Digest) string {
	critical := 0
	for _, insight := range digest.Insights {
		if insight.Urgency == models.UrgencyCritical {
			critical++
		}
	}
	if critical > 0 {
		return fmt.Sprintf("%s: %d urgent opportunities (%d critical)", digest.Brand.Name, len(digest.Insights), critical)
	}
	return fmt.Sprintf("%s: %d urgent opportunities", digest.Brand.Name, len(digest.Insights))
}

func buildTeamsMessage(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "D13438",
		Title:      digestSubject(digest),
		Text:       fmt.Sprintf("Generated %s", digest.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")),
	}

	for i, insight := range digest.Insights {
		if i >= maxDigestItems {
			break
		}

		facts := []TeamsFact{
			{Name: "Type", Value: string(insight.Type)},
			{Name: "Impact", Value: fmt.Sprintf("%d/100", insight.ImpactScore)},
			{Name: "Urgency", Value: string(insight.Urgency)},
		}
		if insight.ExpiresAt != nil {
			facts = append(facts, TeamsFact{Name: "Expires", Value: insight.ExpiresAt.UTC().Format("Jan 2 15:04 UTC")})
		}
		if len(insight.SuggestedActions) > 0 {
			facts = append(facts, TeamsFact{Name: "Next step", Value: insight.SuggestedActions[0].Description})
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: insight.Title,
			ActivityText:  insight.Description,
			Facts:         facts,
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(digest *models.Digest) error {
	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", digestSubject(digest))
	m.SetBody("text/plain", buildEmailText(digest))
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"truncate": truncate,
	"limit": func(insights []models.OpportunityInsight) []models.OpportunityInsight {
		if len(insights) > maxDigestItems {
			return insights[:maxDigestItems]
		}
		return insights
	},
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Urgent opportunities</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .insight { border-left: 4px solid #605e5c; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .insight-title { font-weight: bold; margin-bottom: 5px; }
        .insight-meta { color: #666; font-size: 0.9em; }
        .critical { border-left-color: #d13438; }
        .high { border-left-color: #ff8c00; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Brand.Name}}</h1>
        <p>Urgent opportunities generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>

    {{range .Insights | limit}}
    <div class="insight {{.Urgency}}">
        <div class="insight-title">{{.Title}}</div>
        <div class="insight-meta">
            {{.Type}} | impact {{.ImpactScore}}/100 | {{.Urgency}}{{if .ExpiresAt}} | expires {{.ExpiresAt.Format "Jan 2, 15:04"}}{{end}}
        </div>
        <p>{{truncate .Description 300}}</p>
        {{if .SuggestedActions}}
        <ul>
            {{range .SuggestedActions}}<li>{{.Description}} ({{.Priority}} priority, {{.Effort}} effort)</li>{{end}}
        </ul>
        {{end}}
    </div>
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by the Opportunity Engine.</small></p>
</body>
</html>
`))

func buildEmailHTML(digest *models.Digest) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(digest *models.Digest) string {
	var text strings.Builder

	text.WriteString(digestSubject(digest) + "\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n", digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	for i, insight := range digest.Insights {
		if i >= maxDigestItems {
			text.WriteString(fmt.Sprintf("\n... and %d more\n", len(digest.Insights)-maxDigestItems))
			break
		}

		text.WriteString(fmt.Sprintf("\n%d. [%s] %s\n", i+1, strings.ToUpper(string(insight.Urgency)), insight.Title))
		text.WriteString(fmt.Sprintf("   Type: %s | Impact: %d/100", insight.Type, insight.ImpactScore))
		if insight.ExpiresAt != nil {
			text.WriteString(" | Expires: " + insight.ExpiresAt.UTC().Format("Jan 2, 2006 15:04 UTC"))
		}
		text.WriteString("\n")
		if insight.Description != "" {
			text.WriteString(fmt.Sprintf("   %s\n", truncate(insight.Description, 200)))
		}
		for _, action := range insight.SuggestedActions {
			text.WriteString(fmt.Sprintf("   - %s\n", action.Description))
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by the Opportunity Engine.\n")

	return text.String()
}

func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}
