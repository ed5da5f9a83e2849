package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/linnemanlabs/herald/internal/alerting"
	"github.com/linnemanlabs/herald/internal/seen"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestMarkChanged(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	statePath := fs.String("state-path", "default.json", "")
	port := fs.Int("http-port", 8080, "")
	fs.Bool("dry-run", false, "")

	pfs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	pfs.AddGoFlagSet(fs)
	pfs.Bool("json", false, "")
	if err := pfs.Parse([]string{"--state-path", "cli.json", "--json"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := markChanged(pfs, fs); err != nil {
		t.Fatalf("markChanged: %v", err)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["state-path"] {
		t.Error("state-path should be reported as set")
	}
	if set["http-port"] || set["dry-run"] {
		t.Errorf("untouched flags reported as set: %v", set)
	}
	if *statePath != "cli.json" {
		t.Errorf("state-path = %q, want cli.json", *statePath)
	}
	if *port != 8080 {
		t.Errorf("http-port = %d, want 8080", *port)
	}
}

// execute runs the command tree like main does and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func batchJSON(t *testing.T) string {
	t.Helper()
	at := func(age time.Duration) string { return time.Now().Add(-age).UTC().Format(time.RFC3339) }
	records := []map[string]any{
		{"title": "JPMorgan launches Bitcoin ETF", "link": "https://www.reuters.com/markets/jpm-etf", "source": "Reuters", "source_type": "rss", "published_at": at(time.Hour)},
		{"title": "JP Morgan debuts BTC exchange-traded fund", "link": "https://coindesk.com/jpm-btc-fund", "source": "CoinDesk", "source_type": "rss", "published_at": at(2 * time.Hour)},
		{"title": "Top 10 Stablecoins to Watch", "link": "https://example.com/top-10", "source": "Listicles Daily", "source_type": "rss", "published_at": at(time.Hour)},
		{"title": "SEC gives guidance on tokenized securities", "link": "https://bloomberg.com/sec-guidance", "source": "Bloomberg", "source_type": "rss", "published_at": at(30 * time.Minute)},
	}
	b, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return string(b)
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	base := []string{
		"--state-path", filepath.Join(dir, "seen.json"),
		"--pool-path", filepath.Join(dir, "pool"),
	}
	with := func(args ...string) []string { return append(append([]string{}, args...), base...) }
	batch := batchJSON(t)

	// a run needs a publisher
	if _, err := execute(t, batch, with("run")...); err == nil || !strings.Contains(err.Error(), "no publisher configured") {
		t.Fatalf("run without publisher: err = %v", err)
	}

	// a fresh deployment has no state until the operator creates one
	_, err := execute(t, batch, with("run", "--console")...)
	if err == nil || !strings.Contains(err.Error(), "state reset --confirm") {
		t.Fatalf("run before reset: err = %v, want hint to reset", err)
	}
	if _, err := execute(t, "", with("state", "reset")...); err == nil {
		t.Fatal("reset without --confirm should fail")
	}
	out, err := execute(t, "", with("state", "reset", "--confirm")...)
	if err != nil {
		t.Fatalf("state reset: %v", err)
	}
	if !strings.Contains(out, "seen state reset") {
		t.Errorf("reset output = %q", out)
	}

	// dry run previews without touching the state
	out, err = execute(t, batch, with("run", "--dry-run")...)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "(dry run)") || !strings.Contains(out, "SEC gives guidance") {
		t.Errorf("dry run output missing preview:\n%s", out)
	}

	out, err = execute(t, batch, with("run", "--console")...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Count(out, "published") < 2 {
		t.Errorf("run output should list two published alerts:\n%s", out)
	}

	out, err = execute(t, "", with("state", "show", "--json")...)
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	var sum seen.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if sum.IDs != 2 || sum.Titles != 2 {
		t.Errorf("summary = %d ids / %d titles, want 2 / 2", sum.IDs, sum.Titles)
	}

	// the second run over the same batch emits nothing
	out, err = execute(t, batch, with("run", "--console")...)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out, "no new alerts") {
		t.Errorf("second run output:\n%s", out)
	}

	out, err = execute(t, "", with("items", "--json", "--status", "rejected_score")...)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	var entries []alerting.PoolEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode items: %v\n%s", err, out)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Item.Title, "Top 10") {
		t.Fatalf("rejected_score items = %+v, want the listicle", entries)
	}

	if _, err := execute(t, "", with("publish")...); err == nil {
		t.Fatal("publish without a selection should fail")
	}

	out, err = execute(t, "", with("publish", "--console", "--id", entries[0].Item.ID)...)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(out, "[manual]") || !strings.Contains(out, "published 1 of 1, marked seen 1") {
		t.Errorf("publish output:\n%s", out)
	}

	out, err = execute(t, "", with("pools")...)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if !strings.Contains(out, "(latest)") {
		t.Errorf("pools output:\n%s", out)
	}
}

func TestCLI_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "", "state", "show", "--state-path", "", "--pool-path", "p")
	if err == nil || !strings.Contains(err.Error(), "configuration validation failed") {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Setenv("HERALD_TEST_DOTENV", "")
	t.Setenv("HERALD_TEST_DOTENV_KEEP", "from-env")
	_ = os.Unsetenv("HERALD_TEST_DOTENV")

	env := "HERALD_TEST_DOTENV=from-file\nHERALD_TEST_DOTENV_KEEP=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := loadDotenv(""); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
	if got := os.Getenv("HERALD_TEST_DOTENV"); got != "from-file" {
		t.Errorf("HERALD_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("HERALD_TEST_DOTENV_KEEP"); got != "from-env" {
		t.Errorf("HERALD_TEST_DOTENV_KEEP = %q, want the environment to win", got)
	}

	if err := loadDotenv(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("explicit missing env file should fail")
	}
}

func TestLoadDotenv_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := loadDotenv(""); err != nil {
		t.Fatalf("loadDotenv without .env = %v, want nil", err)
	}
}
