package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// UnlockStore owns the per-user set of unlocked catalog items.
// At most one UnlockRecord exists per (user, item).
type UnlockStore struct {
	run     runner
	db      domain.Store
	catalog domain.Catalog
	ledger  *Ledger
	log     *zap.Logger
}

// NewUnlockStore creates an unlock store. Purchases debit through ledger.
func NewUnlockStore(store domain.Store, cat domain.Catalog, ledger *Ledger, opts Options) *UnlockStore {
	opts = opts.withDefaults()
	return &UnlockStore{
		run:     newRunner(store, opts),
		db:      store,
		catalog: cat,
		ledger:  ledger,
		log:     opts.Logger.Named("unlocks"),
	}
}

// Purchase buys an item. The debit and the unlock record commit together;
// if either fails nothing is written.
func (u *UnlockStore) Purchase(ctx context.Context, userID, itemID string) (domain.UnlockRecord, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.UnlockRecord{}, err
	}
	item, err := u.item(itemID)
	if err != nil {
		return domain.UnlockRecord{}, err
	}
	if !item.Purchasable() {
		return domain.UnlockRecord{}, fmt.Errorf("item %q: %w", item.ID, domain.ErrNotPurchasable)
	}
	price := *item.Price

	var rec domain.UnlockRecord
	err = u.run.update(ctx, "purchase", func(tx domain.StoreTx, now time.Time) error {
		if _, err := tx.Unlock(ctx, userID, item.ID); err == nil {
			return fmt.Errorf("item %q: %w", item.ID, domain.ErrDuplicateUnlock)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		// A free item writes no ledger row; the account must still exist.
		if price == 0 {
			if _, err := tx.Account(ctx, userID); err != nil {
				return err
			}
		} else if _, err := u.ledger.debit(ctx, tx, domain.DebitRequest{
			UserID:      userID,
			Amount:      price,
			Description: "Purchased " + item.Name,
			Metadata:    map[string]string{"itemId": item.ID, "itemName": item.Name},
		}, now); err != nil {
			return err
		}

		rec = domain.UnlockRecord{
			ID:         uuid.NewString(),
			UserID:     userID,
			ItemID:     item.ID,
			Type:       domain.UnlockPurchase,
			PricePaid:  domain.Points(price),
			UnlockedAt: now,
		}
		if err := tx.InsertUnlock(ctx, rec); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, unlockActivity(rec, item, "Purchased for "+strconv.FormatInt(price, 10)+" points"))
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			observability.InsufficientFunds.Inc()
		}
		return domain.UnlockRecord{}, err
	}

	if price > 0 {
		observability.PointsDebited.Add(float64(price))
	}
	observability.Unlocks.WithLabelValues(string(domain.UnlockPurchase)).Inc()
	u.log.Info("item purchased",
		zap.String("user_id", userID),
		zap.String("item_id", item.ID),
		zap.Int64("price", price))
	return rec, nil
}

// GrantViaAchievement unlocks an item for free. It is idempotent: when the
// user already owns the item it returns the existing record and true.
// The default item is always reported as already owned.
func (u *UnlockStore) GrantViaAchievement(ctx context.Context, userID, itemID string, source domain.AchievementType) (domain.UnlockRecord, bool, error) {
	return u.grant(ctx, userID, itemID, domain.UnlockAchievement, string(source))
}

// GrantViaAdmin unlocks an item on an operator's behalf. Price and the
// active flag are ignored; the item must still exist.
func (u *UnlockStore) GrantViaAdmin(ctx context.Context, userID, itemID, reason string) (domain.UnlockRecord, bool, error) {
	return u.grant(ctx, userID, itemID, domain.UnlockAdmin, reason)
}

func (u *UnlockStore) grant(ctx context.Context, userID, itemID string, typ domain.UnlockType, source string) (domain.UnlockRecord, bool, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.UnlockRecord{}, false, err
	}
	item, err := u.item(itemID)
	if err != nil {
		return domain.UnlockRecord{}, false, err
	}
	if item.IsDefault {
		return domain.UnlockRecord{UserID: userID, ItemID: item.ID}, true, nil
	}

	var (
		rec     domain.UnlockRecord
		already bool
	)
	err = u.run.update(ctx, "grant", func(tx domain.StoreTx, now time.Time) error {
		existing, err := tx.Unlock(ctx, userID, item.ID)
		if err == nil {
			rec, already = existing, true
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		rec = domain.UnlockRecord{
			ID:         uuid.NewString(),
			UserID:     userID,
			ItemID:     item.ID,
			Type:       typ,
			Source:     source,
			UnlockedAt: now,
		}
		already = false
		if err := tx.InsertUnlock(ctx, rec); err != nil {
			return err
		}
		desc := "Granted by an administrator"
		if typ == domain.UnlockAchievement {
			desc = "Reward for " + source
		}
		return tx.InsertActivity(ctx, unlockActivity(rec, item, desc))
	})
	if err != nil {
		return domain.UnlockRecord{}, false, err
	}

	if !already {
		observability.Unlocks.WithLabelValues(string(typ)).Inc()
		u.log.Info("item granted",
			zap.String("user_id", userID),
			zap.String("item_id", item.ID),
			zap.String("unlock_type", string(typ)),
			zap.String("source", source))
	}
	return rec, already, nil
}

// SelectActive equips an item the user owns, or the default item.
func (u *UnlockStore) SelectActive(ctx context.Context, userID, itemID string) (domain.CatalogItem, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.CatalogItem{}, err
	}
	item, err := u.item(itemID)
	if err != nil {
		return domain.CatalogItem{}, err
	}

	err = u.run.update(ctx, "select", func(tx domain.StoreTx, now time.Time) error {
		if !item.IsDefault {
			if _, err := tx.Unlock(ctx, userID, item.ID); errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("item %q: %w", item.ID, domain.ErrNotUnlocked)
			} else if err != nil {
				return err
			}
		}
		return tx.SetActiveItem(ctx, userID, item.ID, now)
	})
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return item, nil
}

// Record returns the user's unlock record for an item, resolved by id or
// name. An item the user does not own is ErrNotUnlocked. The default item
// is owned by everyone without a record, so it is ErrNotFound.
func (u *UnlockStore) Record(ctx context.Context, userID, itemRef string) (domain.UnlockRecord, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.UnlockRecord{}, err
	}
	item, err := u.item(itemRef)
	if err != nil {
		return domain.UnlockRecord{}, err
	}
	if item.IsDefault {
		return domain.UnlockRecord{}, domain.NotFound("unlock record", item.ID)
	}
	rec, err := u.db.GetUnlock(ctx, userID, item.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UnlockRecord{}, fmt.Errorf("item %q: %w", item.ID, domain.ErrNotUnlocked)
	}
	return rec, err
}

// ActiveItem returns the equipped item, falling back to the default item
// when nothing was selected or the selection left the catalog.
func (u *UnlockStore) ActiveItem(ctx context.Context, userID string) (domain.CatalogItem, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.CatalogItem{}, err
	}
	id, err := u.db.GetActiveItem(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return u.catalog.DefaultItem(), nil
	}
	if err != nil {
		return domain.CatalogItem{}, err
	}
	item, ok := u.catalog.Item(id)
	if !ok {
		return u.catalog.DefaultItem(), nil
	}
	return item, nil
}

// ListWithStatus annotates the catalog with the user's ownership.
// Inactive items are listed only when the user owns them.
func (u *UnlockStore) ListWithStatus(ctx context.Context, userID string) ([]domain.ItemStatus, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return nil, err
	}
	records, err := u.db.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]domain.UnlockRecord, len(records))
	for _, r := range records {
		owned[r.ItemID] = r
	}
	active, err := u.ActiveItem(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := u.catalog.Items()
	out := make([]domain.ItemStatus, 0, len(items))
	for _, item := range items {
		st := domain.ItemStatus{Item: item, Active: item.ID == active.ID}
		if r, ok := owned[item.ID]; ok {
			typ, at := r.Type, r.UnlockedAt
			st.Unlocked, st.UnlockType, st.UnlockedAt = true, &typ, &at
		} else if item.IsDefault {
			st.Unlocked = true
		} else if !item.IsActive {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (u *UnlockStore) item(ref string) (domain.CatalogItem, error) {
	item, ok := u.catalog.Item(ref)
	if !ok {
		return domain.CatalogItem{}, domain.NotFound("item", ref)
	}
	return item, nil
}

func unlockActivity(rec domain.UnlockRecord, item domain.CatalogItem, desc string) domain.ActivityLogEntry {
	return domain.ActivityLogEntry{
		UserID:      rec.UserID,
		Kind:        domain.LogItemUnlocked,
		Title:       "Unlocked " + item.Name,
		Description: desc,
		Metadata: map[string]string{
			"itemId":     item.ID,
			"unlockType": string(rec.Type),
			"rarity":     string(item.Rarity),
		},
		CreatedAt: rec.UnlockedAt,
	}
}
