package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/seen"
	"github.com/linnemanlabs/herald/internal/seen/memstore"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// mockPublisher records deliveries and fails for titles in failTitles.
type mockPublisher struct {
	mu         sync.Mutex
	sent       []*Alert
	failTitles map[string]bool
}

func (m *mockPublisher) Name() string { return "mock" }

func (m *mockPublisher) Publish(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTitles[a.Title] {
		return errors.New("target unavailable")
	}
	m.sent = append(m.sent, a)
	return nil
}

func (m *mockPublisher) titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, a := range m.sent {
		out[i] = a.Title
	}
	return out
}

// mockPools keeps the latest pool in memory.
type mockPools struct {
	mu     sync.Mutex
	latest *Pool
	err    error
}

func (m *mockPools) SavePool(_ context.Context, p *Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.latest = p
	return nil
}

func (m *mockPools) LatestPool(_ context.Context) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil, ErrNoPool
	}
	return m.latest, nil
}

const (
	titleJPM      = "JPMorgan launches Bitcoin ETF"
	titleJPMAlias = "JP Morgan debuts BTC exchange-traded fund"
	titleListicle = "Top 10 Stablecoins to Watch"
	titleSEC      = "SEC gives guidance on tokenized securities"
)

func raw(title, link, source string, age time.Duration) item.Raw {
	r := item.Raw{"title": title, "source": source, "source_type": "rss"}
	if link != "" {
		r["link"] = link
	}
	if age >= 0 {
		r["published_at"] = now.Add(-age).Format(time.RFC3339)
	}
	return r
}

func fixtureBatch() []item.Raw {
	return []item.Raw{
		raw(titleJPM, "https://www.reuters.com/markets/jpm-etf?utm_source=x", "Reuters", time.Hour),
		raw(titleJPMAlias, "https://coindesk.com/jpm-btc-fund", "CoinDesk", 2*time.Hour),
		raw(titleListicle, "https://example.com/top-10", "Listicles Daily", time.Hour),
		raw(titleSEC, "https://bloomberg.com/sec-guidance", "Bloomberg", 30*time.Minute),
		raw("Holiday savings tips with crypto", "https://example.com/holiday", "Blog", time.Hour),
		{"snippet": "no title and no link"},
		raw("Circle launches euro stablecoin", "https://example.com/old", "Reuters", 48*time.Hour),
		raw("Local sports results", "https://example.com/sports", "Gazette", time.Hour),
		raw(titleSEC, "https://bloomberg.com/sec-guidance?utm_medium=rss", "Bloomberg", 30*time.Minute),
	}
}

type fixture struct {
	svc   *Service
	store *memstore.Store
	pub   *mockPublisher
	pools *mockPools
	set   *rules.Set
}

func newFixture(mutate func(r *rules.Rules), opts ...Option) *fixture {
	r := rules.Default()
	if mutate != nil {
		mutate(r)
	}
	set, err := rules.Compile(r)
	if err != nil {
		panic(fmt.Sprintf("compile rules: %v", err))
	}
	f := &fixture{
		store: memstore.NewInitialized(),
		pub:   &mockPublisher{failTitles: map[string]bool{}},
		pools: &mockPools{},
		set:   set,
	}
	opts = append([]Option{WithServiceClock(clock)}, opts...)
	f.svc = NewService(NewEngine(set, log.Nop(), WithClock(clock)), f.store, f.pools, f.pub, log.Nop(), opts...)
	return f
}

func (f *fixture) state() *seen.State {
	st, err := f.store.Load(context.Background())
	if err != nil {
		panic(err)
	}
	return st
}

func idOf(r *RunReport, title string) string {
	for _, d := range r.Decisions {
		if d.Item.Title == title {
			return d.Item.ID
		}
	}
	return ""
}
