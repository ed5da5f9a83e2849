package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/linnemanlabs/herald/internal/alerting"
	"github.com/linnemanlabs/herald/internal/notify/console"
	"github.com/linnemanlabs/herald/internal/seen"
)

const titleWidth = 72

// styles colors terminal output. Every field is the identity function when
// the writer is not a terminal, so piped output stays plain.
type styles struct {
	heading func(string) string
	muted   func(string) string
	good    func(string) string
	warn    func(string) string
	bad     func(string) string
}

func newStyles(w io.Writer) styles {
	plain := func(s string) string { return s }
	if !isTerminal(w) {
		return styles{heading: plain, muted: plain, good: plain, warn: plain, bad: plain}
	}

	r := lipgloss.NewRenderer(w)
	render := func(st lipgloss.Style) func(string) string {
		return func(s string) string { return st.Render(s) }
	}
	return styles{
		heading: render(r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))),
		muted:   render(r.NewStyle().Foreground(lipgloss.Color("#7A8B91"))),
		good:    render(r.NewStyle().Foreground(lipgloss.Color("#2ECC71"))),
		warn:    render(r.NewStyle().Foreground(lipgloss.Color("#F4D03F"))),
		bad:     render(r.NewStyle().Bold(true).Foreground(lipgloss.Color("#E74C3C"))),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// score colors a score the way the Slack adapter picks its emoji.
func (s styles) score(n int) string {
	txt := fmt.Sprintf("%4d", n)
	switch {
	case n >= 70:
		return s.bad(txt)
	case n >= 50:
		return s.warn(txt)
	default:
		return s.good(txt)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRunReport(w io.Writer, st styles, r *alerting.RunReport) {
	head := "run " + r.RunID
	if r.DryRun {
		head += " (dry run)"
	}
	fmt.Fprintln(w, st.heading(head))

	in := r.Ingest
	fmt.Fprintf(w, "  ingest  raw=%d dropped=%d stale=%d noise=%d unmatched=%d no_anchor=%d scored=%d duplicate_url=%d clustered=%d candidates=%d\n",
		in.Raw, in.Dropped, in.Stale, in.Noise, in.Unmatched, in.NoAnchor, in.Scored, in.DuplicateURL, in.Clustered, in.Representatives)
	g := r.Gate
	fmt.Fprintf(w, "  gate    candidates=%d rejected_score=%d rejected_seen_id=%d rejected_seen_similar=%d emitted=%d\n",
		g.Candidates, g.RejectedScore, g.RejectedSeenID, g.RejectedSeenSimilar, g.Emitted)

	if len(r.Drafts) == 0 {
		fmt.Fprintln(w, st.muted("  no new alerts"))
		return
	}

	fmt.Fprintln(w)
	published := make(map[string]bool, len(r.Published))
	for _, id := range r.Published {
		published[id] = true
	}
	failed := make(map[string]string, len(r.Failed))
	for _, f := range r.Failed {
		failed[f.ID] = f.Error
	}

	for _, a := range r.Drafts {
		mark := st.muted("draft    ")
		switch {
		case published[a.ID]:
			mark = st.good("published")
		case failed[a.ID] != "":
			mark = st.bad("failed   ")
		}
		fmt.Fprintf(w, "%s %s %s\n", st.score(a.Score), mark, truncate(a.Title, titleWidth))
		if msg := failed[a.ID]; msg != "" {
			fmt.Fprintf(w, "               %s\n", st.bad(msg))
		}
	}
	if r.DryRun {
		fmt.Fprintln(w)
		for _, a := range r.Drafts {
			io.WriteString(w, console.Format(a)) //nolint:errcheck // best-effort terminal output
		}
	}
}

func printEntries(w io.Writer, st styles, entries []alerting.PoolEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, st.muted("no matching items"))
		return
	}
	fmt.Fprintln(w, st.heading(fmt.Sprintf("%4s %4s %-22s %-4s %-12s %s", "#", "scr", "status", "seen", "id", "title")))
	for _, e := range entries {
		seenMark := ""
		if e.Seen {
			seenMark = "yes"
		}
		status := e.Status
		if e.Published {
			status += "*"
		}
		fmt.Fprintf(w, "%4d %s %-22s %-4s %-12s %s\n",
			e.Index, st.score(e.Item.Score), status, seenMark, shortID(e.Item.ID), truncate(e.Item.Title, titleWidth))
		fmt.Fprintf(w, "%s\n", st.muted(fmt.Sprintf("%54s%s | %s", "", e.Item.SourceName, strings.Join(e.Item.MatchedTopics, ", "))))
	}
}

func printForceReport(w io.Writer, st styles, r *alerting.ForceReport) {
	for _, m := range r.Missing {
		fmt.Fprintf(w, "%s %s\n", st.warn("not found:"), m)
	}
	if r.DryRun {
		fmt.Fprintln(w, st.heading(fmt.Sprintf("would publish %d item(s)", len(r.Previews))))
		for _, a := range r.Previews {
			io.WriteString(w, console.Format(a)) //nolint:errcheck // best-effort terminal output
		}
		return
	}
	fmt.Fprintln(w, st.heading(fmt.Sprintf("published %d of %d, marked seen %d", len(r.Published), len(r.Selected), r.MarkedSeen)))
	for _, f := range r.Failed {
		fmt.Fprintf(w, "%s %s: %s\n", st.bad("failed"), truncate(f.Title, titleWidth), f.Error)
	}
}

func printSummary(w io.Writer, st styles, s seen.Summary) {
	fmt.Fprintln(w, st.heading("seen state"))
	updated := "never"
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}
	fmt.Fprintf(w, "  version %d, revision %d, updated %s\n", s.Version, s.Revision, updated)
	fmt.Fprintf(w, "  %d item ids, %d title fingerprints\n", s.IDs, s.Titles)
	if len(s.Recent) == 0 {
		return
	}
	fmt.Fprintln(w, st.heading("recent titles"))
	for _, t := range s.Recent {
		fmt.Fprintf(w, "  %s %s %s\n",
			st.muted(t.SeenAt.UTC().Format("2006-01-02 15:04")), shortID(t.ID), truncate(t.Title, titleWidth))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
