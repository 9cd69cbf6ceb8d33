package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Catalog is the immutable reference table of items and achievements.
type Catalog interface {
	Item(id string) (CatalogItem, bool)
	Items() []CatalogItem
	DefaultItem() CatalogItem

	Achievement(t AchievementType) (AchievementDefinition, bool)
	Achievements() []AchievementDefinition

	// AchievementsFor returns the achievement types advanced by an activity.
	AchievementsFor(kind ActivityKind) []AchievementType
}

// Reader serves read-only queries. Reads never take write locks and may
// observe a slightly stale, but always committed, snapshot.
type Reader interface {
	GetAccount(ctx context.Context, userID string) (Account, error)

	// AccountSnapshot returns the cached account and the signed ledger sum
	// read from a single consistent snapshot.
	AccountSnapshot(ctx context.Context, userID string) (Account, int64, error)

	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	GetProgress(ctx context.Context, userID string, t AchievementType) (AchievementProgress, error)
	ListProgress(ctx context.Context, userID string) ([]AchievementProgress, error)
	GetUnlock(ctx context.Context, userID, itemID string) (UnlockRecord, error)
	ListUnlocks(ctx context.Context, userID string) ([]UnlockRecord, error)
	GetActiveItem(ctx context.Context, userID string) (string, error)
	ListActivity(ctx context.Context, userID string, limit int) ([]ActivityLogEntry, error)
}

// StoreTx is the set of row operations available inside one atomic unit.
// Conditional writes return ErrConflict when their version guard fails.
type StoreTx interface {
	Account(ctx context.Context, userID string) (Account, error)
	EnsureAccount(ctx context.Context, userID string, now time.Time) (bool, error)
	SwapBalance(ctx context.Context, userID string, version, balance int64, now time.Time) error
	InsertTransaction(ctx context.Context, t Transaction) error
	TransactionByReference(ctx context.Context, userID, reference string) (Transaction, error)
	InsertActivity(ctx context.Context, e ActivityLogEntry) error

	Progress(ctx context.Context, userID string, t AchievementType) (AchievementProgress, error)
	EnsureProgress(ctx context.Context, userID string, t AchievementType, target int64, now time.Time) error
	AdvanceProgress(ctx context.Context, userID string, t AchievementType, version, value int64, now time.Time) error
	// CompleteProgress flips is_completed only if it is still false and
	// reports whether this call made the flip.
	CompleteProgress(ctx context.Context, userID string, t AchievementType, value int64, now time.Time) (bool, error)
	// ClaimRewardRetry moves reward_state failed → dispatching and reports
	// whether this call won the claim.
	ClaimRewardRetry(ctx context.Context, userID string, t AchievementType, now time.Time) (bool, error)
	SetRewardState(ctx context.Context, userID string, t AchievementType, state RewardState, now time.Time) error

	Unlock(ctx context.Context, userID, itemID string) (UnlockRecord, error)
	InsertUnlock(ctx context.Context, r UnlockRecord) error
	SetActiveItem(ctx context.Context, userID, itemID string, now time.Time) error
}

// Store is the persistence boundary for the progression engine.
type Store interface {
	Reader

	// Update runs fn as one all-or-nothing unit. fn must not call Update.
	Update(ctx context.Context, fn func(tx StoreTx) error) error

	// SeedCatalog writes reference items once; existing rows are kept.
	SeedCatalog(ctx context.Context, items []CatalogItem) error
	ListCatalogItems(ctx context.Context) ([]CatalogItem, error)
}
