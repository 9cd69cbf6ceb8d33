// Package engagement implements the progression economy: the points
// ledger, achievement progress, cosmetic unlocks, and the reward cascade
// that connects them.
//
// Every mutation runs as one domain.Store unit of work:
//  1. Read the affected rows inside the unit
//  2. Validate the business rule (balance, ownership, completion)
//  3. Write with a version or state guard
//  4. Retry the whole unit if a guard lost to a concurrent writer
//
// Reward delivery is the exception: each sub-grant is its own unit, so a
// failed item grant never rolls back the points credit.
package engagement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// Options are shared by every component in the package.
type Options struct {
	MaxRetries int              // Conflict retries per unit of work (default: 8)
	Now        func() time.Time // Clock (default: time.Now in UTC)
	Logger     *zap.Logger      // Structured logger (default: no-op)
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 8,
		Now:        func() time.Time { return time.Now().UTC() },
		Logger:     zap.NewNop(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// runner executes units of work against the store, retrying on
// domain.ErrConflict.
type runner struct {
	store   domain.Store
	retries int
	now     func() time.Time
}

func newRunner(store domain.Store, o Options) runner {
	return runner{store: store, retries: o.MaxRetries, now: o.Now}
}

// update runs fn in one unit. fn may run more than once, so it must only
// assign its results, never accumulate them.
func (r runner) update(ctx context.Context, op string, fn func(tx domain.StoreTx, now time.Time) error) error {
	for attempt := 0; ; attempt++ {
		now := r.now()
		err := r.store.Update(ctx, func(tx domain.StoreTx) error {
			return fn(tx, now)
		})
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempt >= r.retries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		observability.ConflictRetries.WithLabelValues(op).Inc()
	}
}
