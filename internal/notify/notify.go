// Package notify combines several publish targets into one alerting.Publisher.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/herald/internal/alerting"
)

// Fanout delivers each alert to every target concurrently. An alert counts
// as published only when all targets confirm it.
type Fanout struct {
	targets []alerting.Publisher
	hook    func(target, outcome string, seconds float64)
}

var _ alerting.Publisher = (*Fanout)(nil)

// Option configures a Fanout.
type Option func(*Fanout)

// WithHook reports every per-target delivery, typically to
// alerting.RunHooks.OnPublish.
func WithHook(h func(target, outcome string, seconds float64)) Option {
	return func(f *Fanout) { f.hook = h }
}

// New creates a Fanout over targets. At least one target is required.
func New(targets []alerting.Publisher, opts ...Option) (*Fanout, error) {
	if len(targets) == 0 {
		return nil, errors.New("notify: no publish targets configured")
	}
	f := &Fanout{targets: targets}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Name joins the target names, e.g. "slack+telegram".
func (f *Fanout) Name() string {
	names := make([]string, len(f.targets))
	for i, t := range f.targets {
		names[i] = t.Name()
	}
	return strings.Join(names, "+")
}

// Publish sends a to every target. Targets do not cancel each other; the
// returned error joins every target failure.
func (f *Fanout) Publish(ctx context.Context, a *alerting.Alert) error {
	errs := make([]error, len(f.targets))

	var g errgroup.Group
	for i, t := range f.targets {
		g.Go(func() error {
			start := time.Now()
			err := t.Publish(ctx, a)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				errs[i] = fmt.Errorf("%s: %w", t.Name(), err)
			}
			if f.hook != nil {
				f.hook(t.Name(), outcome, time.Since(start).Seconds())
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
