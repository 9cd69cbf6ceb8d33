package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// Config controls engine behavior.
type Config struct {
	MaxRetries    int  // Conflict retries per unit of work (default: 8)
	StrictRewards bool // Refuse to start if a reward names a missing item
	HistoryLimit  int  // Default page size for history reads (default: 50)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   8,
		HistoryLimit: 50,
	}
}

// Engine is the single entry point collaborators call.
type Engine struct {
	cfg     Config
	db      domain.Store
	catalog domain.Catalog
	run     runner
	log     *zap.Logger

	Ledger       *Ledger
	Unlocks      *UnlockStore
	Rewards      *RewardDispatcher
	Achievements *AchievementTracker
}

type validator interface {
	Validate() error
}

// New wires the ledger, unlock store, dispatcher and tracker over store.
// With StrictRewards set, a catalog that implements Validate must pass it.
func New(store domain.Store, cat domain.Catalog, cfg Config, opts Options) (*Engine, error) {
	if store == nil || cat == nil {
		return nil, errors.New("engagement: store and catalog are required")
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	opts = opts.withDefaults()
	cfg.MaxRetries = opts.MaxRetries

	if cfg.StrictRewards {
		if v, ok := cat.(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("strict rewards: %w", err)
			}
		}
	}

	ledger := NewLedger(store, opts)
	unlocks := NewUnlockStore(store, cat, ledger, opts)
	rewards := NewRewardDispatcher(ledger, unlocks, cat, opts)
	return &Engine{
		cfg:          cfg,
		db:           store,
		catalog:      cat,
		run:          newRunner(store, opts),
		log:          opts.Logger.Named("engine"),
		Ledger:       ledger,
		Unlocks:      unlocks,
		Rewards:      rewards,
		Achievements: NewAchievementTracker(store, cat, rewards, opts),
	}, nil
}

// Catalog returns the engine's reference table.
func (e *Engine) Catalog() domain.Catalog { return e.catalog }

// Bootstrap seeds the catalog table. Existing rows are left alone, so a
// stored row that no longer matches the catalog is logged as drift and
// returned by id.
func (e *Engine) Bootstrap(ctx context.Context) (drift []string, err error) {
	defer observability.ObserveOp("bootstrap", time.Now(), &err)
	items := e.catalog.Items()
	if err := e.db.SeedCatalog(ctx, items); err != nil {
		return nil, err
	}
	stored, err := e.db.ListCatalogItems(ctx)
	if err != nil {
		return nil, err
	}
	drift = catalogDrift(stored, items)
	for _, id := range drift {
		e.log.Warn("stored catalog row differs from catalog", zap.String("item_id", id))
	}
	return drift, nil
}

// catalogDrift returns the ids of want whose stored row is missing or
// differs in any seeded column.
func catalogDrift(stored, want []domain.CatalogItem) []string {
	rows := make(map[string]domain.CatalogItem, len(stored))
	for _, it := range stored {
		rows[it.ID] = it
	}
	var out []string
	for _, it := range want {
		got, ok := rows[it.ID]
		if !ok || !sameItem(got, it) {
			out = append(out, it.ID)
		}
	}
	return out
}

func sameItem(a, b domain.CatalogItem) bool {
	if (a.Price == nil) != (b.Price == nil) || (a.Price != nil && *a.Price != *b.Price) {
		return false
	}
	return a.Name == b.Name && a.Description == b.Description && a.Rarity == b.Rarity &&
		a.IsActive == b.IsActive && a.IsDefault == b.IsDefault
}

// ═══════════════════════════════════════════════════════════════════════════
// Inbound
// ═══════════════════════════════════════════════════════════════════════════

// RecordActivity reports that userID performed kind increment times and
// advances every achievement bound to kind. Each achievement advances
// independently; errors are joined and the snapshots of the ones that
// succeeded are still returned. Kinds with no bound achievements are
// accepted and change nothing but the account.
func (e *Engine) RecordActivity(ctx context.Context, userID string, kind domain.ActivityKind, increment int64) (snaps []domain.ProgressSnapshot, err error) {
	defer observability.ObserveOp("record_activity", time.Now(), &err)

	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, &domain.ValidationError{Field: "kind", Reason: "must not be empty"}
	}
	if err := domain.PositiveAmount("increment", increment); err != nil {
		return nil, err
	}
	if _, _, err := e.OpenAccount(ctx, userID); err != nil {
		return nil, err
	}

	var errs []error
	for _, typ := range e.catalog.AchievementsFor(kind) {
		snap, err := e.Achievements.RecordProgress(ctx, userID, typ, increment)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", typ, err))
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, errors.Join(errs...)
}

// PurchaseItem buys itemID for userID and then reports a
// purchase_completed activity. The purchase stands even if the follow-up
// activity fails.
func (e *Engine) PurchaseItem(ctx context.Context, userID, itemID string) (rec domain.UnlockRecord, err error) {
	defer observability.ObserveOp("purchase", time.Now(), &err)

	rec, err = e.Unlocks.Purchase(ctx, userID, itemID)
	if err != nil {
		return domain.UnlockRecord{}, err
	}
	if _, aerr := e.RecordActivity(ctx, rec.UserID, domain.ActivityPurchaseCompleted, 1); aerr != nil {
		e.log.Warn("purchase activity failed",
			zap.String("user_id", rec.UserID),
			zap.String("item_id", rec.ItemID),
			zap.Error(aerr))
	}
	return rec, nil
}

// SelectActiveItem equips an owned item or the default item.
func (e *Engine) SelectActiveItem(ctx context.Context, userID, itemID string) (item domain.CatalogItem, err error) {
	defer observability.ObserveOp("select_active", time.Now(), &err)
	return e.Unlocks.SelectActive(ctx, userID, itemID)
}

// OpenAccount creates a zero-balance account if needed and reports
// whether it did.
func (e *Engine) OpenAccount(ctx context.Context, userID string) (acct domain.Account, created bool, err error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.Account{}, false, err
	}
	err = e.run.update(ctx, "open_account", func(tx domain.StoreTx, now time.Time) error {
		var err error
		if created, err = tx.EnsureAccount(ctx, userID, now); err != nil {
			return err
		}
		acct, err = tx.Account(ctx, userID)
		return err
	})
	if err != nil {
		return domain.Account{}, false, err
	}
	if created {
		e.log.Debug("account opened", zap.String("user_id", userID))
	}
	return acct, created, nil
}

// ─── Administration ─────────────────────────────────────────────────────────

// AdminCredit gives points on an operator's behalf.
func (e *Engine) AdminCredit(ctx context.Context, userID string, amount int64, reason string) (balance int64, err error) {
	defer observability.ObserveOp("admin_credit", time.Now(), &err)
	return e.Ledger.Credit(ctx, domain.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxAdminGiven,
		Description: reason,
		Metadata:    map[string]string{"reason": reason},
	})
}

// Refund returns points to a user.
func (e *Engine) Refund(ctx context.Context, userID string, amount int64, reason string) (balance int64, err error) {
	defer observability.ObserveOp("refund", time.Now(), &err)
	return e.Ledger.Refund(ctx, userID, amount, reason, nil)
}

// AdminUnlock grants an item on an operator's behalf. The bool reports
// whether the user already owned it.
func (e *Engine) AdminUnlock(ctx context.Context, userID, itemID, reason string) (rec domain.UnlockRecord, already bool, err error) {
	defer observability.ObserveOp("admin_unlock", time.Now(), &err)
	return e.Unlocks.GrantViaAdmin(ctx, userID, itemID, reason)
}

// Audit checks that the cached balance equals the ledger sum.
func (e *Engine) Audit(ctx context.Context, userID string) (rec domain.Reconciliation, err error) {
	defer observability.ObserveOp("audit", time.Now(), &err)
	return e.Ledger.Reconcile(ctx, userID)
}

// RedeliverRewards retries reward delivery for completed achievements
// not yet marked delivered.
func (e *Engine) RedeliverRewards(ctx context.Context, userID string) (n int, err error) {
	defer observability.ObserveOp("redeliver", time.Now(), &err)
	return e.Achievements.Redeliver(ctx, userID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Outbound reads
// ═══════════════════════════════════════════════════════════════════════════

// GetBalance returns the user's balance. Unknown users are ErrNotFound.
func (e *Engine) GetBalance(ctx context.Context, userID string) (balance int64, err error) {
	defer observability.ObserveOp("get_balance", time.Now(), &err)
	return e.Ledger.Balance(ctx, userID)
}

// GetCatalogWithStatus lists the catalog with the user's ownership.
func (e *Engine) GetCatalogWithStatus(ctx context.Context, userID string) (items []domain.ItemStatus, err error) {
	defer observability.ObserveOp("get_catalog", time.Now(), &err)
	return e.Unlocks.ListWithStatus(ctx, userID)
}

// GetLedgerHistory returns up to limit transactions, newest first.
// A non-positive limit uses the configured default.
func (e *Engine) GetLedgerHistory(ctx context.Context, userID string, limit int) (txs []domain.Transaction, err error) {
	defer observability.ObserveOp("get_history", time.Now(), &err)
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	return e.Ledger.History(ctx, userID, limit)
}

// GetAchievements lists every achievement with the user's progress.
func (e *Engine) GetAchievements(ctx context.Context, userID string) (list []domain.AchievementStatus, err error) {
	defer observability.ObserveOp("get_achievements", time.Now(), &err)
	return e.Achievements.List(ctx, userID)
}

// GetActivityLog returns up to limit history entries, newest first.
// A non-positive limit uses the configured default.
func (e *Engine) GetActivityLog(ctx context.Context, userID string, limit int) (entries []domain.ActivityLogEntry, err error) {
	defer observability.ObserveOp("get_activity", time.Now(), &err)
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	return e.db.ListActivity(ctx, userID, limit)
}

// GetActiveItem returns the equipped item.
func (e *Engine) GetActiveItem(ctx context.Context, userID string) (item domain.CatalogItem, err error) {
	defer observability.ObserveOp("get_active", time.Now(), &err)
	return e.Unlocks.ActiveItem(ctx, userID)
}

// GetUnlock returns how and when the user came to own an item.
func (e *Engine) GetUnlock(ctx context.Context, userID, itemID string) (rec domain.UnlockRecord, err error) {
	defer observability.ObserveOp("get_unlock", time.Now(), &err)
	return e.Unlocks.Record(ctx, userID, itemID)
}
