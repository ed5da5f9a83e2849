package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/herald/internal/alerting"
	"github.com/linnemanlabs/herald/internal/notify"
	"github.com/linnemanlabs/herald/internal/notify/console"
	"github.com/linnemanlabs/herald/internal/notify/slack"
	"github.com/linnemanlabs/herald/internal/notify/telegram"
	"github.com/linnemanlabs/herald/internal/poolstore"
	"github.com/linnemanlabs/herald/internal/postgres"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/seen"
	"github.com/linnemanlabs/herald/internal/seen/filestore"
	"github.com/linnemanlabs/herald/internal/seen/pgstore"
)

// errNoPublisher is returned when a command must deliver alerts but no
// target is configured.
var errNoPublisher = errors.New("no publisher configured: set slack-webhook-url, telegram-bot-token and telegram-chat-id, or console")

// deps are the collaborators one command invocation needs. close releases
// them in reverse order of acquisition.
type deps struct {
	svc     *alerting.Service
	pools   *poolstore.Store
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// depsOptions tune how deps are assembled for a command.
type depsOptions struct {
	// deliver requires a publish target unless the run is a dry run.
	deliver bool

	// pools overrides the pool store; nil opens the persistent one.
	pools alerting.PoolStore

	publishHook func(target, outcome string, seconds float64)
	service     []alerting.Option
}

func (a *app) buildDeps(ctx context.Context, o depsOptions) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	set, err := a.loadRules()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openSeenStore(ctx)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, closeStore)

	pools := o.pools
	if pools == nil {
		ps, err := poolstore.Open(a.poolConfig())
		if err != nil {
			return nil, err
		}
		d.pools = ps
		d.closers = append(d.closers, func() {
			if err := ps.CollectGarbage(); err != nil {
				a.logger.Warn(ctx, "pool garbage collection failed", "err", err)
			}
			if err := ps.Close(); err != nil {
				a.logger.Error(ctx, err, "failed to close pool database")
			}
		})
		pools = ps
	}

	pub, err := a.buildPublisher(o.deliver, o.publishHook)
	if err != nil {
		return nil, err
	}

	opts := append([]alerting.Option{alerting.WithDryRun(a.cfg.DryRun)}, o.service...)
	engine := alerting.NewEngine(set, a.logger)
	d.svc = alerting.NewService(engine, store, pools, pub, a.logger, opts...)

	ok = true
	return d, nil
}

func (a *app) loadRules() (*rules.Set, error) {
	if a.cfg.RulesPath == "" {
		return rules.MustDefaultSet(), nil
	}
	set, err := rules.LoadSet(a.cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", a.cfg.RulesPath, err)
	}
	return set, nil
}

func (a *app) poolConfig() poolstore.Config {
	return poolstore.Config{
		Path:   a.cfg.PoolPath,
		TTL:    time.Duration(a.cfg.PoolTTLHours) * time.Hour,
		Logger: a.logger,
	}
}

// openSeenStore returns the PostgreSQL store when a database URL is set and
// the JSON file store otherwise.
func (a *app) openSeenStore(ctx context.Context) (seen.Store, func(), error) {
	if a.cfg.DatabaseURL == "" {
		a.logger.Info(ctx, "using file seen store", "path", a.cfg.StatePath)
		return a.leased(filestore.New(a.cfg.StatePath)), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, a.cfg.DatabaseURL,
		postgres.WithSlowQuery(time.Duration(a.cfg.SlowQueryMillis)*time.Millisecond),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	st, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore init: %w", err)
	}
	a.logger.Info(ctx, "using postgres seen store")
	return a.leased(st), pool.Close, nil
}

func (a *app) leased(s seen.Store) seen.Store {
	if a.cfg.Lock {
		return s
	}
	return unlocked{s}
}

// unlocked skips the lease for deployments whose scheduler already
// guarantees a single run at a time.
type unlocked struct{ seen.Store }

func (unlocked) Lock(context.Context) (seen.Lease, error) { return noLease{}, nil }

type noLease struct{}

func (noLease) Release() error { return nil }

// buildPublisher fans out to every configured target. Dry runs and
// commands that never deliver fall back to the console printer.
func (a *app) buildPublisher(deliver bool, hook func(target, outcome string, seconds float64)) (alerting.Publisher, error) {
	var targets []alerting.Publisher
	if a.cfg.SlackWebhookURL != "" {
		targets = append(targets, slack.New(a.cfg.SlackWebhookURL, a.logger))
	}
	if a.cfg.TelegramBotToken != "" {
		targets = append(targets, telegram.New(a.cfg.TelegramBotToken, a.cfg.TelegramChatID, a.logger,
			telegram.WithRate(a.cfg.TelegramRatePerSecond),
		))
	}
	if a.cfg.Console {
		targets = append(targets, console.New(a.stdout))
	}

	if len(targets) == 0 {
		if deliver && !a.cfg.DryRun {
			return nil, errNoPublisher
		}
		return console.New(a.stdout), nil
	}

	var opts []notify.Option
	if hook != nil {
		opts = append(opts, notify.WithHook(hook))
	}
	fan, err := notify.New(targets, opts...)
	if err != nil {
		return nil, err
	}
	return fan, nil
}
