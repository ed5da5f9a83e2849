package alerting

import (
	"context"
	"errors"
)

// ErrNoPool is returned by PoolStore.LatestPool before any run was recorded.
var ErrNoPool = errors.New("no item pool recorded yet")

// ErrPublish wraps delivery failures reported by a run or a manual publish.
var ErrPublish = errors.New("publish failed")

// PoolStore keeps the item pool of recent runs for the override surface.
type PoolStore interface {
	SavePool(ctx context.Context, p *Pool) error
	LatestPool(ctx context.Context) (*Pool, error)
}

// Publisher delivers one alert. A nil error is the delivery confirmation
// that allows the alert to be committed to the seen state.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, a *Alert) error
}
