package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commonground/progression/internal/domain"
)

// ─── Unlock Record Operations ───────────────────────────────────────────────

const unlockColumns = `id, user_id, item_id, unlock_type, source, price_paid, unlocked_at`

func scanUnlock(row rowScanner) (domain.UnlockRecord, error) {
	var r domain.UnlockRecord
	var typ, unlocked string
	var price sql.NullInt64
	if err := row.Scan(&r.ID, &r.UserID, &r.ItemID, &typ, &r.Source, &price, &unlocked); err != nil {
		return domain.UnlockRecord{}, err
	}
	r.Type = domain.UnlockType(typ)
	r.PricePaid = intPtr(price)
	r.UnlockedAt = parseTime(unlocked)
	return r, nil
}

func getUnlock(ctx context.Context, q querier, userID, itemID string) (domain.UnlockRecord, error) {
	r, err := scanUnlock(q.QueryRowContext(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records WHERE user_id = ? AND item_id = ?`,
		userID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UnlockRecord{}, domain.NotFound("unlock", userID+"/"+itemID)
	}
	if err != nil {
		return domain.UnlockRecord{}, fmt.Errorf("get unlock: %w", err)
	}
	return r, nil
}

// GetUnlock reads the unlock record for (user, item).
func (db *DB) GetUnlock(ctx context.Context, userID, itemID string) (domain.UnlockRecord, error) {
	return getUnlock(ctx, db.reader, userID, itemID)
}

// ListUnlocks returns every unlock record for a user, oldest first.
func (db *DB) ListUnlocks(ctx context.Context, userID string) ([]domain.UnlockRecord, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT `+unlockColumns+`
		FROM unlock_records WHERE user_id = ?
		ORDER BY unlocked_at, item_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var out []domain.UnlockRecord
	for rows.Next() {
		r, err := scanUnlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Unlock reads the unlock record inside the write transaction.
func (t *Tx) Unlock(ctx context.Context, userID, itemID string) (domain.UnlockRecord, error) {
	return getUnlock(ctx, t.tx, userID, itemID)
}

// InsertUnlock creates an unlock record. A second record for the same
// (user, item) fails with domain.ErrDuplicateUnlock.
func (t *Tx) InsertUnlock(ctx context.Context, r domain.UnlockRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO unlock_records (id, user_id, item_id, unlock_type, source, price_paid, unlocked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.ItemID, string(r.Type), r.Source, nullInt(r.PricePaid), formatTime(r.UnlockedAt))
	if err != nil {
		if isUniqueError(err) {
			return fmt.Errorf("unlock %s/%s: %w", r.UserID, r.ItemID, domain.ErrDuplicateUnlock)
		}
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}

// ─── Active Item Operations ─────────────────────────────────────────────────

// SetActiveItem records the item a user has equipped.
func (t *Tx) SetActiveItem(ctx context.Context, userID, itemID string, now time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO active_items (user_id, item_id, selected_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			item_id     = excluded.item_id,
			selected_at = excluded.selected_at
	`, userID, itemID, formatTime(now))
	if err != nil {
		return fmt.Errorf("set active item: %w", err)
	}
	return nil
}

// GetActiveItem returns the equipped item id, or ErrNotFound if the user
// never selected one.
func (db *DB) GetActiveItem(ctx context.Context, userID string) (string, error) {
	var itemID string
	err := db.reader.QueryRowContext(ctx,
		`SELECT item_id FROM active_items WHERE user_id = ?`, userID).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound("active item", userID)
	}
	if err != nil {
		return "", fmt.Errorf("get active item: %w", err)
	}
	return itemID, nil
}

// ─── Catalog Seed ───────────────────────────────────────────────────────────

// SeedCatalog inserts reference items; rows that already exist are kept.
func (db *DB) SeedCatalog(ctx context.Context, items []domain.CatalogItem) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_items (id, name, description, price, rarity, is_active, is_default)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, it.ID, it.Name, it.Description, nullInt(it.Price), string(it.Rarity), boolInt(it.IsActive), boolInt(it.IsDefault))
		if err != nil {
			return fmt.Errorf("seed item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// ListCatalogItems returns the seeded reference rows, ordered by id.
func (db *DB) ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, name, description, price, rarity, is_active, is_default
		FROM catalog_items ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var out []domain.CatalogItem
	for rows.Next() {
		var it domain.CatalogItem
		var price sql.NullInt64
		var rarity string
		var active, def int
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &price, &rarity, &active, &def); err != nil {
			return nil, err
		}
		it.Price = intPtr(price)
		it.Rarity = domain.Rarity(rarity)
		it.IsActive = active == 1
		it.IsDefault = def == 1
		out = append(out, it)
	}
	return out, rows.Err()
}
