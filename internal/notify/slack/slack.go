// Package slack publishes alerts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/alerting"
)

const (
	maxHeaderLen  = 150
	maxSnippetLen = 3000
	httpTimeout   = 10 * time.Second
)

// ErrNotConfigured is returned when no webhook URL is set. Reporting it as a
// failure keeps the alert uncommitted.
var ErrNotConfigured = errors.New("slack: webhook url not configured")

// Notifier sends alerts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

var _ alerting.Publisher = (*Notifier)(nil)

// New creates a new Slack notifier.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Name identifies the target in metrics and logs.
func (n *Notifier) Name() string { return "slack" }

// Publish posts one alert to the configured webhook.
func (n *Notifier) Publish(ctx context.Context, a *alerting.Alert) error {
	if n.webhookURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(buildMessage(a))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "alert posted to slack", "item_id", a.ID, "score", a.Score)
	return nil
}

func buildMessage(a *alerting.Alert) map[string]any {
	blocks := []map[string]any{
		headerBlock(a),
		fieldsBlock(a),
	}
	if a.Snippet != "" {
		blocks = append(blocks, snippetBlock(a))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(a))

	return map[string]any{
		"text":   a.Title,
		"blocks": blocks,
	}
}

func headerBlock(a *alerting.Alert) map[string]any {
	text := fmt.Sprintf("%s %s", scoreEmoji(a.Score, a.Manual), a.Title)
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, maxHeaderLen),
		},
	}
}

func fieldsBlock(a *alerting.Alert) map[string]any {
	topics := strings.Join(a.MatchedTopics, ", ")
	if topics == "" {
		topics = "-"
	}
	source := a.Source
	if len(a.ClusterSources) > 1 {
		source = strings.Join(a.ClusterSources, ", ")
	}
	published := "unknown"
	if !a.PublishedAt.IsZero() {
		published = a.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Score:* %d", a.Score)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Source:* %s", source)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Topics:* %s", topics)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Published:* %s", published)},
	}
	if a.Link != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("<%s|Read more>", a.Link)})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func snippetBlock(a *alerting.Alert) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": truncate(a.Snippet, maxSnippetLen),
		},
	}
}

func contextBlock(a *alerting.Alert) map[string]any {
	text := fmt.Sprintf("herald • item %s", shortID(a.ID))
	if a.RunID != "" {
		text += " • run " + a.RunID
	}
	if a.Manual {
		text += " • manual"
	}
	return map[string]any{
		"type":     "context",
		"elements": []map[string]any{{"type": "mrkdwn", "text": text}},
	}
}

func scoreEmoji(score int, manual bool) string {
	switch {
	case manual:
		return "\U0001f4cc" // pushpin
	case score >= 70:
		return "\U0001f534" // red circle
	case score >= 50:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
