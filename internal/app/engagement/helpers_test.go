package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/catalog"
	"github.com/commonground/progression/internal/infra/sqlite"
)

// ─── Test Catalog ───────────────────────────────────────────────────────────

const (
	achOne   domain.AchievementType = "ONE"
	achTen   domain.AchievementType = "TEN"
	achGhost domain.AchievementType = "GHOST"
)

func testCatalog(t *testing.T) *catalog.Table {
	t.Helper()
	items := []domain.CatalogItem{
		{ID: domain.DefaultItemID, Name: "Default", Rarity: domain.RarityCommon, IsActive: true, IsDefault: true},
		{ID: "cheap", Name: "Cheap", Price: domain.Points(100), Rarity: domain.RarityCommon, IsActive: true},
		{ID: "gold", Name: "Gold", Price: domain.Points(500), Rarity: domain.RarityEpic, IsActive: true},
		{ID: "retired", Name: "Retired", Price: domain.Points(300), Rarity: domain.RarityRare, IsActive: false},
		{ID: "badge", Name: "Badge", Rarity: domain.RarityRare, IsActive: true},
		{ID: "medal", Name: "Medal", Rarity: domain.RarityLegendary, IsActive: true},
	}
	defs := []domain.AchievementDefinition{
		{Type: achOne, Title: "One", Target: 1, Reward: domain.Reward{Points: 50, UnlockItemIDs: []string{"badge"}}},
		{Type: achTen, Title: "Ten", Target: 10, Reward: domain.Reward{Points: 100, UnlockItemIDs: []string{"Medal"}}},
		{Type: achGhost, Title: "Ghost", Target: 1, Reward: domain.Reward{Points: 10, UnlockItemIDs: []string{"no-such-item", "badge"}}},
	}
	bindings := map[domain.ActivityKind][]domain.AchievementType{
		domain.ActivityThreadCreated: {achOne, achTen},
		domain.ActivityFriendAdded:   {achGhost},
	}
	cat, err := catalog.New(items, defs, bindings)
	if err != nil {
		t.Fatalf("catalog.New() error: %v", err)
	}
	return cat
}

// ─── Test Store ─────────────────────────────────────────────────────────────

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// flakyStore fails unlock inserts while failUnlocks is set.
type flakyStore struct {
	domain.Store
	failUnlocks atomic.Bool
}

var errInjected = errors.New("injected unlock failure")

func (f *flakyStore) Update(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	return f.Store.Update(ctx, func(tx domain.StoreTx) error {
		return fn(flakyTx{StoreTx: tx, store: f})
	})
}

type flakyTx struct {
	domain.StoreTx
	store *flakyStore
}

func (t flakyTx) InsertUnlock(ctx context.Context, r domain.UnlockRecord) error {
	if t.store.failUnlocks.Load() {
		return errInjected
	}
	return t.StoreTx.InsertUnlock(ctx, r)
}

// conflictStore runs each unit for real, then fails it with
// domain.ErrConflict (rolling it back) until conflicts is used up.
type conflictStore struct {
	domain.Store
	conflicts atomic.Int32
	calls     atomic.Int32
}

func (c *conflictStore) Update(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	c.calls.Add(1)
	return c.Store.Update(ctx, func(tx domain.StoreTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if c.conflicts.Add(-1) >= 0 {
			return fmt.Errorf("injected: %w", domain.ErrConflict)
		}
		return nil
	})
}

// ─── Clock ──────────────────────────────────────────────────────────────────

// tickClock advances one millisecond per reading so rows order stably.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickClock() *tickClock {
	return &tickClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// ─── Engine ─────────────────────────────────────────────────────────────────

func testOptions() Options {
	return Options{Now: newTickClock().Now}
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.DB) {
	t.Helper()
	db := newTestDB(t)
	eng, err := New(db, testCatalog(t), DefaultConfig(), testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return eng, db
}

// fund opens userID with balance points of ADMIN_GIVEN credit.
func fund(t *testing.T, eng *Engine, userID string, balance int64) {
	t.Helper()
	if _, err := eng.AdminCredit(context.Background(), userID, balance, "test funding"); err != nil {
		t.Fatalf("AdminCredit(%s, %d) error: %v", userID, balance, err)
	}
}

func balanceOf(t *testing.T, eng *Engine, userID string) int64 {
	t.Helper()
	b, err := eng.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetBalance(%s) error: %v", userID, err)
	}
	return b
}

func assertReconciled(t *testing.T, eng *Engine, userID string) {
	t.Helper()
	rec, err := eng.Audit(context.Background(), userID)
	if err != nil {
		t.Fatalf("Audit(%s) error: %v", userID, err)
	}
	if !rec.OK {
		t.Errorf("balance %d != ledger sum %d", rec.Cached, rec.Computed)
	}
}
