// Package notify posts diagnostic report summaries to Slack or Discord via
// incoming webhooks. The webhook URL is never hardcoded: it comes from the
// config file, the environment, or a Kubernetes Secret in operator mode.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tonyjoanes/gopher-doctor/internal/report"
)

// MaxListedIssues caps the issue titles included in one message.
const MaxListedIssues = 5

// ReportUpdate is the data passed to SendReport.
type ReportUpdate struct {
	Namespace string
	// Verdict is Healthy, Warning, Critical or Unreachable.
	Verdict  string
	Summary  string
	Critical int
	Warning  int
	// Titles of the most severe issues, at most MaxListedIssues.
	TopIssues []string
	// ReportURL links the full report (e.g. a GitHub issue) when published.
	ReportURL string
	Timestamp time.Time
}

// UpdateFromReport condenses a report into a ReportUpdate.
func UpdateFromReport(r report.DiagnosticReport, verdict, reportURL string) ReportUpdate {
	critical, warning := r.Counts()
	u := ReportUpdate{
		Namespace: r.Namespace,
		Verdict:   verdict,
		Summary:   r.Summary,
		Critical:  critical,
		Warning:   warning,
		ReportURL: reportURL,
		Timestamp: r.Timestamp,
	}
	for _, sev := range []report.Severity{report.SeverityCritical, report.SeverityWarning, report.SeverityInfo} {
		for _, issue := range r.Issues {
			if len(u.TopIssues) == MaxListedIssues {
				return u
			}
			if issue.Severity == sev {
				u.TopIssues = append(u.TopIssues, fmt.Sprintf("[%s] %s", issue.Severity, issue.Title))
			}
		}
	}
	return u
}

// NotificationClient sends webhook messages to Slack or Discord.
// Auto-detected from the URL: discord.com → Discord format, otherwise Slack.
type NotificationClient struct {
	WebhookURL string
	http       *http.Client
}

// NewNotificationClient creates a client. An empty URL silently no-ops all sends.
func NewNotificationClient(webhookURL string) *NotificationClient {
	return &NotificationClient{
		WebhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// SendReport posts a formatted message to the configured webhook.
// Returns nil (no-op) when WebhookURL is empty.
func (n *NotificationClient) SendReport(ctx context.Context, u ReportUpdate) error {
	if n.WebhookURL == "" {
		return nil
	}

	var payload any
	if strings.Contains(n.WebhookURL, "discord.com") {
		payload = buildDiscordPayload(u)
	} else {
		payload = buildSlackPayload(u)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func verdictEmoji(verdict string) string {
	switch verdict {
	case "Critical", "Unreachable":
		return "🔴"
	case "Warning":
		return "🟡"
	default:
		return "🟢"
	}
}

// --- Slack Block Kit payload ---

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildSlackPayload(u ReportUpdate) slackPayload {
	header := fmt.Sprintf("%s *Namespace `%s` is %s* (%d critical, %d warning)",
		verdictEmoji(u.Verdict), u.Namespace, u.Verdict, u.Critical, u.Warning)

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "🐹 GopherDoctor Report"}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: header}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: u.Summary}},
	}
	if len(u.TopIssues) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "• " + strings.Join(u.TopIssues, "\n• ")},
		})
	}
	if u.ReportURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("🔗 <%s|View full report>", u.ReportURL)},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}

// --- Discord webhook payload ---

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"` // decimal RGB
	Fields      []discordField `json:"fields,omitempty"`
	URL         string         `json:"url,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func buildDiscordPayload(u ReportUpdate) discordPayload {
	color := 0x57F287 // green
	switch u.Verdict {
	case "Critical", "Unreachable":
		color = 0xED4245
	case "Warning":
		color = 0xFEE75C
	}

	fields := []discordField{
		{Name: "Critical", Value: fmt.Sprintf("%d", u.Critical), Inline: true},
		{Name: "Warning", Value: fmt.Sprintf("%d", u.Warning), Inline: true},
	}
	if len(u.TopIssues) > 0 {
		fields = append(fields, discordField{Name: "Top issues", Value: strings.Join(u.TopIssues, "\n")})
	}

	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return discordPayload{
		Username: "GopherDoctor",
		Embeds: []discordEmbed{{
			Title:       fmt.Sprintf("%s %s: %s", verdictEmoji(u.Verdict), u.Namespace, u.Verdict),
			Description: u.Summary,
			Color:       color,
			Fields:      fields,
			URL:         u.ReportURL,
			Footer:      &discordFooter{Text: "GopherDoctor • " + ts.UTC().Format("2006-01-02 15:04 UTC")},
		}},
	}
}
