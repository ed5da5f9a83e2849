// Package telegram publishes alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/alerting"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	httpTimeout    = 10 * time.Second

	// title and snippet caps keep a message well under the 4096 rune
	// Bot API limit after escaping
	maxTitleLen   = 500
	maxSnippetLen = 600

	maxReplyBytes = 1 << 20
)

// ErrNotConfigured is returned when the bot token or chat ID is missing.
var ErrNotConfigured = errors.New("telegram: bot token and chat id are required")

// Notifier sends alerts to one Telegram chat.
type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

var _ alerting.Publisher = (*Notifier)(nil)

// Option configures a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at a different Bot API endpoint.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithRate limits sends to perSecond messages per second. Zero or negative
// disables limiting.
func WithRate(perSecond float64) Option {
	return func(n *Notifier) {
		if perSecond <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New creates a Telegram notifier. Sends default to one per second.
func New(token, chatID string, logger log.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	n := &Notifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Name identifies the target in metrics and logs.
func (n *Notifier) Name() string { return "telegram" }

type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Publish sends one alert as an HTML message.
func (n *Notifier) Publish(ctx context.Context, a *alerting.Alert) error {
	if n.token == "" || n.chatID == "" {
		return ErrNotConfigured
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendMessage{
		ChatID:    n.chatID,
		Text:      renderHTML(a),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", redact(err, n.token))
	}
	defer func() { _ = resp.Body.Close() }()

	// a 2xx reply means the message was delivered; the body echoes the whole
	// message and is not needed
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
		n.logger.Info(ctx, "alert sent to telegram", "item_id", a.ID, "score", a.Score)
		return nil
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&out); err != nil || out.Description == "" {
		return fmt.Errorf("telegram: sendMessage returned %d", resp.StatusCode)
	}
	if out.Parameters.RetryAfter > 0 {
		return fmt.Errorf("telegram: %d %s (retry after %ds)", out.ErrorCode, out.Description, out.Parameters.RetryAfter)
	}
	return fmt.Errorf("telegram: %d %s", out.ErrorCode, out.Description)
}

// renderHTML formats an alert in Telegram's HTML subset.
func renderHTML(a *alerting.Alert) string {
	var b strings.Builder
	if a.Manual {
		b.WriteString("\U0001f4cc ")
	}
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(truncate(a.Title, maxTitleLen)))
	if a.Link != "" {
		fmt.Fprintf(&b, " <a href=\"%s\">LINK</a>", html.EscapeString(a.Link))
	}
	b.WriteString("\n")

	if a.Snippet != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(truncate(a.Snippet, maxSnippetLen)))
	}

	source := a.Source
	if len(a.ClusterSources) > 1 {
		source = strings.Join(a.ClusterSources, ", ")
	}
	fmt.Fprintf(&b, "\nScore %d · %s", a.Score, html.EscapeString(source))
	if len(a.MatchedTopics) > 0 {
		fmt.Fprintf(&b, " · %s", html.EscapeString(strings.Join(a.MatchedTopics, ", ")))
	}
	if a.Manual {
		b.WriteString(" · <i>manual</i>")
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
