// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture; it depends on nothing.
package domain

import (
	"strings"
	"time"
)

// ─── Catalog Types ──────────────────────────────────────────────────────────

// Rarity is a display tier for cosmetic items.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// DefaultItemID is the border every user owns without an unlock record.
const DefaultItemID = "default"

// CatalogItem is a purchasable or grantable cosmetic (a profile border).
// A nil Price means the item can only be granted, never bought.
type CatalogItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       *int64 `json:"price,omitempty"`
	Rarity      Rarity `json:"rarity"`
	IsActive    bool   `json:"is_active"`
	IsDefault   bool   `json:"is_default"`
}

// Purchasable reports whether the item can be bought with points.
func (c CatalogItem) Purchasable() bool {
	return c.IsActive && c.Price != nil && !c.IsDefault
}

// Points returns a pointer to v. Used to build catalog prices.
func Points(v int64) *int64 { return &v }

// ─── Unlock Types ───────────────────────────────────────────────────────────

// UnlockType records how a user came to own an item.
type UnlockType string

const (
	UnlockPurchase    UnlockType = "PURCHASE"
	UnlockAchievement UnlockType = "ACHIEVEMENT"
	UnlockAdmin       UnlockType = "ADMIN"
)

// UnlockRecord proves a user owns a catalog item. One per (user, item),
// never mutated or deleted.
type UnlockRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ItemID     string     `json:"item_id"`
	Type       UnlockType `json:"unlock_type"`
	Source     string     `json:"source,omitempty"` // achievement type or admin reason
	PricePaid  *int64     `json:"price_paid,omitempty"`
	UnlockedAt time.Time  `json:"unlocked_at"`
}

// ItemStatus is a catalog item annotated with one user's ownership.
type ItemStatus struct {
	Item       CatalogItem `json:"item"`
	Unlocked   bool        `json:"unlocked"`
	UnlockType *UnlockType `json:"unlock_type,omitempty"`
	UnlockedAt *time.Time  `json:"unlocked_at,omitempty"`
	Active     bool        `json:"active"`
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// NormalizeUserID trims surrounding whitespace from a user id.
// Every engine entry point uses it, so " u1" and "u1" are the same user.
func NormalizeUserID(id string) string {
	return strings.TrimSpace(id)
}
