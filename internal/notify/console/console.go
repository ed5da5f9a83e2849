// Package console renders alerts as plain text, for dry runs and previews.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/linnemanlabs/herald/internal/alerting"
)

// Printer writes a plain-text preview of each alert to w.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ alerting.Publisher = (*Printer)(nil)

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Name identifies the target in metrics and logs.
func (p *Printer) Name() string { return "console" }

// Publish writes the preview.
func (p *Printer) Publish(ctx context.Context, a *alerting.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.w, Format(a))
	return err
}

// Format renders one alert as a few lines of text.
func Format(a *alerting.Alert) string {
	var b strings.Builder
	marker := ""
	if a.Manual {
		marker = " [manual]"
	}
	fmt.Fprintf(&b, "[%d] %s%s\n", a.Score, a.Title, marker)
	if a.Link != "" {
		fmt.Fprintf(&b, "    %s\n", a.Link)
	}

	source := a.Source
	if len(a.ClusterSources) > 1 {
		source = strings.Join(a.ClusterSources, ", ")
	}
	meta := []string{source}
	if len(a.MatchedTopics) > 0 {
		meta = append(meta, strings.Join(a.MatchedTopics, ", "))
	}
	if !a.PublishedAt.IsZero() {
		meta = append(meta, a.PublishedAt.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "    %s\n", strings.Join(meta, " | "))
	if a.Snippet != "" {
		fmt.Fprintf(&b, "    %s\n", a.Snippet)
	}
	b.WriteString("\n")
	return b.String()
}
