package engagement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// Dispatcher turns an achievement completion into rewards.
type Dispatcher interface {
	Grant(ctx context.Context, userID string, def domain.AchievementDefinition) error
}

// RewardDispatcher credits reward points and grants reward items.
// Each sub-grant is idempotent and runs in its own unit, so Grant is safe
// to call again after a partial failure.
type RewardDispatcher struct {
	ledger  *Ledger
	unlocks *UnlockStore
	catalog domain.Catalog
	log     *zap.Logger
}

var _ Dispatcher = (*RewardDispatcher)(nil)

// NewRewardDispatcher creates a dispatcher.
func NewRewardDispatcher(ledger *Ledger, unlocks *UnlockStore, cat domain.Catalog, opts Options) *RewardDispatcher {
	opts = opts.withDefaults()
	return &RewardDispatcher{
		ledger:  ledger,
		unlocks: unlocks,
		catalog: cat,
		log:     opts.Logger.Named("rewards"),
	}
}

// RewardReference is the ledger idempotency key of an achievement's
// points reward.
func RewardReference(t domain.AchievementType) string {
	return "achievement:" + string(t)
}

// Grant delivers def's reward to userID. Failures are logged and joined
// into the returned error; a failed sub-grant never undoes another.
// Reward items missing from the catalog are skipped.
func (d *RewardDispatcher) Grant(ctx context.Context, userID string, def domain.AchievementDefinition) error {
	log := d.log.With(zap.String("user_id", userID), zap.String("achievement", string(def.Type)))
	var errs []error

	if def.Reward.Points > 0 {
		_, err := d.ledger.Credit(ctx, domain.CreditRequest{
			UserID:      userID,
			Amount:      def.Reward.Points,
			Type:        domain.TxEarned,
			Description: "Achievement reward: " + def.Title,
			Metadata: map[string]string{
				"achievementType": string(def.Type),
				"title":           def.Title,
			},
			Reference: RewardReference(def.Type),
		})
		if err != nil {
			log.Error("reward points failed", zap.Int64("points", def.Reward.Points), zap.Error(err))
			errs = append(errs, fmt.Errorf("credit %d points: %w", def.Reward.Points, err))
		}
	}

	for _, ref := range def.Reward.UnlockItemIDs {
		if _, ok := d.catalog.Item(ref); !ok {
			observability.RewardItemsSkipped.Inc()
			log.Warn("reward item not in catalog, skipped", zap.String("item", ref))
			continue
		}
		if _, _, err := d.unlocks.GrantViaAchievement(ctx, userID, ref, def.Type); err != nil {
			log.Error("reward item failed", zap.String("item", ref), zap.Error(err))
			errs = append(errs, fmt.Errorf("grant item %q: %w", ref, err))
		}
	}

	return errors.Join(errs...)
}
