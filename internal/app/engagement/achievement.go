package engagement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// AchievementTracker advances per-user achievement progress.
//
// State machine per (user, type):
//
//	NotStarted(0) → InProgress(0 < v < target) → Completed(v == target)
//
// Completed is terminal. The completion write is conditional on the row
// not being completed yet, so among racing callers exactly one observes
// the flip and dispatches the reward.
type AchievementTracker struct {
	run        runner
	db         domain.Store
	catalog    domain.Catalog
	dispatcher Dispatcher
	log        *zap.Logger
}

// NewAchievementTracker creates a tracker that hands completions to d.
func NewAchievementTracker(store domain.Store, cat domain.Catalog, d Dispatcher, opts Options) *AchievementTracker {
	opts = opts.withDefaults()
	return &AchievementTracker{
		run:        newRunner(store, opts),
		db:         store,
		catalog:    cat,
		dispatcher: d,
		log:        opts.Logger.Named("achievements"),
	}
}

// RecordProgress adds increment to the user's progress toward typ.
// Calls after completion return the frozen snapshot; if the earlier reward
// delivery failed, such a call also retries it.
func (a *AchievementTracker) RecordProgress(ctx context.Context, userID string, typ domain.AchievementType, increment int64) (domain.ProgressSnapshot, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.ProgressSnapshot{}, err
	}
	if err := domain.PositiveAmount("increment", increment); err != nil {
		return domain.ProgressSnapshot{}, err
	}
	def, ok := a.catalog.Achievement(typ)
	if !ok {
		return domain.ProgressSnapshot{}, &domain.UnknownAchievementError{Type: typ}
	}

	var (
		snap      domain.ProgressSnapshot
		redeliver bool
	)
	err := a.run.update(ctx, "progress", func(tx domain.StoreTx, now time.Time) error {
		snap, redeliver = domain.ProgressSnapshot{}, false

		if err := tx.EnsureProgress(ctx, userID, typ, def.Target, now); err != nil {
			return err
		}
		p, err := tx.Progress(ctx, userID, typ)
		if err != nil {
			return err
		}

		if p.IsCompleted {
			if p.RewardState == domain.RewardFailed {
				if redeliver, err = tx.ClaimRewardRetry(ctx, userID, typ, now); err != nil {
					return err
				}
			}
			if redeliver {
				p.RewardState = domain.RewardDispatching
			}
			snap.Progress = p
			return nil
		}

		next := p.Target
		if increment < p.Target-p.CurrentValue {
			next = p.CurrentValue + increment
		}

		if next < p.Target {
			if err := tx.AdvanceProgress(ctx, userID, typ, p.Version, next, now); err != nil {
				return err
			}
			p.CurrentValue, p.Version, p.UpdatedAt = next, p.Version+1, now
			snap.Progress = p
			return nil
		}

		won, err := tx.CompleteProgress(ctx, userID, typ, next, now)
		if err != nil {
			return err
		}
		if won {
			err := tx.InsertActivity(ctx, domain.ActivityLogEntry{
				UserID:      userID,
				Kind:        domain.LogAchievementComplete,
				Title:       "Achievement unlocked: " + def.Title,
				Description: def.Description,
				Metadata:    map[string]string{"achievementType": string(typ), "title": def.Title},
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}
		if snap.Progress, err = tx.Progress(ctx, userID, typ); err != nil {
			return err
		}
		snap.JustCompleted = won
		return nil
	})
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}

	if snap.JustCompleted {
		observability.AchievementsCompleted.WithLabelValues(string(typ)).Inc()
		a.log.Info("achievement completed", zap.String("user_id", userID), zap.String("achievement", string(typ)))
	}
	if snap.JustCompleted || redeliver {
		snap.Progress.RewardState = a.deliver(ctx, userID, def, redeliver)
	}
	return snap, nil
}

// Redeliver re-runs reward delivery for every completed achievement of the
// user whose reward is not marked delivered, and returns how many it
// attempted. Failed rows are claimed first, so a concurrent trigger retries
// each one at most once. Rows still in the dispatching state are not
// claimed: they may belong to a live delivery, so Redeliver is meant for
// operator recovery after a crash. Delivery is idempotent either way.
func (a *AchievementTracker) Redeliver(ctx context.Context, userID string) (int, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return 0, err
	}
	rows, err := a.db.ListProgress(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range rows {
		if !p.IsCompleted || p.RewardState == domain.RewardDelivered {
			continue
		}
		def, ok := a.catalog.Achievement(p.Type)
		if !ok {
			continue
		}
		if p.RewardState == domain.RewardFailed {
			var claimed bool
			err := a.run.update(ctx, "reward_claim", func(tx domain.StoreTx, now time.Time) error {
				var err error
				claimed, err = tx.ClaimRewardRetry(ctx, userID, p.Type, now)
				return err
			})
			if err != nil {
				return n, err
			}
			if !claimed {
				continue
			}
		}
		a.deliver(ctx, userID, def, true)
		n++
	}
	return n, nil
}

// deliver runs the dispatcher and records the outcome. Dispatch errors are
// logged, not returned; a failed state is retried on the next trigger.
func (a *AchievementTracker) deliver(ctx context.Context, userID string, def domain.AchievementDefinition, retry bool) domain.RewardState {
	state := domain.RewardDelivered
	if err := a.dispatcher.Grant(ctx, userID, def); err != nil {
		state = domain.RewardFailed
		a.log.Warn("reward delivery failed, will retry on next trigger",
			zap.String("user_id", userID),
			zap.String("achievement", string(def.Type)),
			zap.Error(err))
	}

	outcome := string(state)
	if retry && state == domain.RewardDelivered {
		outcome = "retried"
	}
	observability.RewardDeliveries.WithLabelValues(outcome).Inc()

	err := a.run.update(ctx, "reward_state", func(tx domain.StoreTx, now time.Time) error {
		return tx.SetRewardState(ctx, userID, def.Type, state, now)
	})
	if err != nil {
		a.log.Error("recording reward state failed",
			zap.String("user_id", userID),
			zap.String("achievement", string(def.Type)),
			zap.String("state", string(state)),
			zap.Error(err))
	}
	return state
}

// Progress returns the user's progress toward typ. A never-started
// achievement yields a zero row with the definition's target.
func (a *AchievementTracker) Progress(ctx context.Context, userID string, typ domain.AchievementType) (domain.AchievementProgress, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.AchievementProgress{}, err
	}
	def, ok := a.catalog.Achievement(typ)
	if !ok {
		return domain.AchievementProgress{}, &domain.UnknownAchievementError{Type: typ}
	}
	p, err := a.db.GetProgress(ctx, userID, typ)
	if errors.Is(err, domain.ErrNotFound) {
		return notStarted(userID, def), nil
	}
	return p, err
}

// List returns every defined achievement with the user's progress, in
// catalog order.
func (a *AchievementTracker) List(ctx context.Context, userID string) ([]domain.AchievementStatus, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return nil, err
	}
	rows, err := a.db.ListProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[domain.AchievementType]domain.AchievementProgress, len(rows))
	for _, p := range rows {
		byType[p.Type] = p
	}

	defs := a.catalog.Achievements()
	out := make([]domain.AchievementStatus, 0, len(defs))
	for _, def := range defs {
		p, ok := byType[def.Type]
		if !ok {
			p = notStarted(userID, def)
		}
		out = append(out, domain.AchievementStatus{Definition: def, Progress: p})
	}
	return out, nil
}

func notStarted(userID string, def domain.AchievementDefinition) domain.AchievementProgress {
	return domain.AchievementProgress{UserID: userID, Type: def.Type, Target: def.Target}
}
