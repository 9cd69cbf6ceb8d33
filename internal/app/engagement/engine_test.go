package engagement

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/catalog"
	"github.com/commonground/progression/internal/infra/observability"
)

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_StrictRewards(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.StrictRewards = true

	_, err := New(db, testCatalog(t), cfg, testOptions())
	if !errors.Is(err, catalog.ErrMissingRewardItem) {
		t.Errorf("New(strict) error = %v, want ErrMissingRewardItem", err)
	}

	if _, err := New(db, catalog.Builtin(), cfg, testOptions()); err != nil {
		t.Errorf("New(strict, builtin) error: %v", err)
	}
}

func TestNew_RequiresStoreAndCatalog(t *testing.T) {
	if _, err := New(nil, catalog.Builtin(), DefaultConfig(), Options{}); err == nil {
		t.Error("New(nil store) should fail")
	}
}

func TestBootstrap(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		drift, err := eng.Bootstrap(ctx)
		if err != nil {
			t.Fatalf("Bootstrap() #%d error: %v", i, err)
		}
		if len(drift) != 0 {
			t.Errorf("Bootstrap() #%d drift = %v, want none", i, drift)
		}
	}
	items, err := db.ListCatalogItems(ctx)
	if err != nil {
		t.Fatalf("ListCatalogItems() error: %v", err)
	}
	if len(items) != len(eng.Catalog().Items()) {
		t.Errorf("seeded %d items, want %d", len(items), len(eng.Catalog().Items()))
	}
}

func TestBootstrap_ReportsDrift(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	stale := domain.CatalogItem{ID: "cheap", Name: "Cheap", Price: domain.Points(999), Rarity: domain.RarityCommon, IsActive: true}
	if err := db.SeedCatalog(ctx, []domain.CatalogItem{stale}); err != nil {
		t.Fatalf("SeedCatalog() error: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	opts := testOptions()
	opts.Logger = zap.New(core)
	eng, err := New(db, testCatalog(t), DefaultConfig(), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	drift, err := eng.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if len(drift) != 1 || drift[0] != "cheap" {
		t.Errorf("drift = %v, want [cheap]", drift)
	}
	if n := logs.FilterField(zap.String("item_id", "cheap")).Len(); n != 1 {
		t.Errorf("drift warnings for cheap = %d, want 1", n)
	}

	// Purchases follow the in-memory catalog, not the stored row.
	fund(t, eng, "u1", 100)
	if _, err := eng.PurchaseItem(ctx, "u1", "cheap"); err != nil {
		t.Fatalf("PurchaseItem() error: %v", err)
	}
}

func TestCatalogDrift(t *testing.T) {
	base := domain.CatalogItem{ID: "a", Name: "A", Price: domain.Points(10), Rarity: domain.RarityCommon, IsActive: true}
	tests := []struct {
		name   string
		stored func(it domain.CatalogItem) []domain.CatalogItem
		want   int
	}{
		{"identical", func(it domain.CatalogItem) []domain.CatalogItem { return []domain.CatalogItem{it} }, 0},
		{"missing", func(domain.CatalogItem) []domain.CatalogItem { return nil }, 1},
		{"price", func(it domain.CatalogItem) []domain.CatalogItem { it.Price = domain.Points(11); return []domain.CatalogItem{it} }, 1},
		{"price removed", func(it domain.CatalogItem) []domain.CatalogItem { it.Price = nil; return []domain.CatalogItem{it} }, 1},
		{"inactive", func(it domain.CatalogItem) []domain.CatalogItem { it.IsActive = false; return []domain.CatalogItem{it} }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalogDrift(tt.stored(base), []domain.CatalogItem{base})
			if len(got) != tt.want {
				t.Errorf("catalogDrift() = %v, want %d ids", got, tt.want)
			}
		})
	}
}

// ─── RecordActivity ─────────────────────────────────────────────────────────

func TestRecordActivity_AdvancesBoundAchievements(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	snaps, err := eng.RecordActivity(ctx, "u1", domain.ActivityThreadCreated, 1)
	if err != nil {
		t.Fatalf("RecordActivity() error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if snaps[0].Progress.Type != achOne || !snaps[0].JustCompleted {
		t.Errorf("ONE snapshot = %+v, want just completed", snaps[0])
	}
	if snaps[1].Progress.Type != achTen || snaps[1].Progress.CurrentValue != 1 {
		t.Errorf("TEN snapshot = %+v, want value 1", snaps[1])
	}
	if got := balanceOf(t, eng, "u1"); got != 50 {
		t.Errorf("balance = %d, want 50", got)
	}
}

func TestRecordActivity_UnboundKindOpensAccount(t *testing.T) {
	eng, _ := newTestEngine(t)
	snaps, err := eng.RecordActivity(context.Background(), "u1", domain.ActivityDailyLogin, 1)
	if err != nil {
		t.Fatalf("RecordActivity() error: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("snapshots = %d, want 0", len(snaps))
	}
	if got := balanceOf(t, eng, "u1"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestRecordActivity_Validation(t *testing.T) {
	eng, _ := newTestEngine(t)
	tests := []struct {
		name string
		user string
		kind domain.ActivityKind
		inc  int64
	}{
		{"blank user", " ", domain.ActivityThreadCreated, 1},
		{"empty kind", "u1", "", 1},
		{"zero increment", "u1", domain.ActivityThreadCreated, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.RecordActivity(context.Background(), tt.user, tt.kind, tt.inc)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("RecordActivity() error = %v, want ErrValidation", err)
			}
		})
	}
}

// ─── Purchase Flow ──────────────────────────────────────────────────────────

func TestPurchaseItem_FiresPurchaseActivity(t *testing.T) {
	db := newTestDB(t)
	eng, err := New(db, catalog.Builtin(), DefaultConfig(), testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	fund(t, eng, "u1", 100)

	if _, err := eng.PurchaseItem(ctx, "u1", "bronze"); err != nil {
		t.Fatalf("PurchaseItem() error: %v", err)
	}

	p, err := eng.Achievements.Progress(ctx, "u1", catalog.FirstPurchase)
	if err != nil {
		t.Fatalf("Progress() error: %v", err)
	}
	if !p.IsCompleted {
		t.Error("FIRST_PURCHASE should be completed")
	}
	p, _ = eng.Achievements.Progress(ctx, "u1", catalog.Collector)
	if p.CurrentValue != 1 {
		t.Errorf("COLLECTOR progress = %d, want 1", p.CurrentValue)
	}

	// 100 funded - 100 price + 25 FIRST_PURCHASE reward.
	if got := balanceOf(t, eng, "u1"); got != 25 {
		t.Errorf("balance = %d, want 25", got)
	}
	assertReconciled(t, eng, "u1")
}

func TestPurchaseItem_FailureFiresNothing(t *testing.T) {
	db := newTestDB(t)
	eng, err := New(db, catalog.Builtin(), DefaultConfig(), testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	fund(t, eng, "u1", 10)

	if _, err := eng.PurchaseItem(ctx, "u1", "bronze"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("PurchaseItem() error = %v, want ErrInsufficientFunds", err)
	}
	p, _ := eng.Achievements.Progress(ctx, "u1", catalog.FirstPurchase)
	if p.State() != domain.StateNotStarted {
		t.Errorf("FIRST_PURCHASE state = %s, want NOT_STARTED", p.State())
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func TestGetLedgerHistory_DefaultLimit(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	eng, err := New(db, testCatalog(t), cfg, testOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		fund(t, eng, "u1", 1)
	}

	txs, err := eng.GetLedgerHistory(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("GetLedgerHistory() error: %v", err)
	}
	if len(txs) != 3 {
		t.Errorf("history = %d, want 3", len(txs))
	}
	txs, _ = eng.GetLedgerHistory(context.Background(), "u1", 10)
	if len(txs) != 5 {
		t.Errorf("history(limit=10) = %d, want 5", len(txs))
	}
}

func TestOpenAccount_Idempotent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, created, err := eng.OpenAccount(ctx, "u1")
	if err != nil || !created {
		t.Fatalf("OpenAccount() = created %v, err %v; want true, nil", created, err)
	}
	fund(t, eng, "u1", 10)
	acct, created, err := eng.OpenAccount(ctx, "u1")
	if err != nil || created {
		t.Fatalf("second OpenAccount() = created %v, err %v; want false, nil", created, err)
	}
	if acct.Balance != 10 {
		t.Errorf("balance = %d, want 10", acct.Balance)
	}
}

// ─── Administration ─────────────────────────────────────────────────────────

func TestAdminCredit_RecordsReason(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	bal, err := eng.AdminCredit(ctx, "u1", 75, "bug bounty")
	if err != nil {
		t.Fatalf("AdminCredit() error: %v", err)
	}
	if bal != 75 {
		t.Errorf("balance = %d, want 75", bal)
	}

	txs, _ := db.ListTransactions(ctx, "u1", 0)
	if len(txs) != 1 || txs[0].Type != domain.TxAdminGiven {
		t.Fatalf("transactions = %+v, want one ADMIN_GIVEN", txs)
	}
	if txs[0].Metadata["reason"] != "bug bounty" {
		t.Errorf("Metadata = %v", txs[0].Metadata)
	}

	entries, err := eng.GetActivityLog(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("GetActivityLog() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != domain.LogPointsGiven {
		t.Errorf("activity = %+v, want one points_given entry", entries)
	}

	if _, err := eng.AdminCredit(ctx, "u1", 0, "nothing"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("AdminCredit(0) error = %v, want ErrValidation", err)
	}
}

func TestAdminUnlock_ReportsAlreadyOwned(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	rec, already, err := eng.AdminUnlock(ctx, "u1", "retired", "support ticket")
	if err != nil {
		t.Fatalf("AdminUnlock() error: %v", err)
	}
	if already {
		t.Error("first AdminUnlock() reported already owned")
	}
	if rec.Type != domain.UnlockAdmin || rec.Source != "support ticket" {
		t.Errorf("record = %s/%q, want ADMIN/support ticket", rec.Type, rec.Source)
	}

	_, already, err = eng.AdminUnlock(ctx, "u1", "retired", "again")
	if err != nil || !already {
		t.Errorf("second AdminUnlock() = already %v, err %v; want true, nil", already, err)
	}
	if _, _, err := eng.AdminUnlock(ctx, "u1", "no-such-item", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("AdminUnlock(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestGetActivityLog_NewestFirst(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, eng, "u1", 100)
	if _, err := eng.PurchaseItem(ctx, "u1", "cheap"); err != nil {
		t.Fatalf("PurchaseItem() error: %v", err)
	}

	entries, err := eng.GetActivityLog(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("GetActivityLog() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != domain.LogItemUnlocked {
		t.Errorf("latest entry = %+v, want item_unlocked", entries)
	}
	if _, err := eng.GetActivityLog(ctx, "  ", 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("GetActivityLog(blank) error = %v, want ErrValidation", err)
	}
}

// ─── Metrics ────────────────────────────────────────────────────────────────

func TestMetrics_PurchaseCounted(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, "u1", 100)
	before := testutil.ToFloat64(observability.Unlocks.WithLabelValues(string(domain.UnlockPurchase)))

	if _, err := eng.PurchaseItem(context.Background(), "u1", "cheap"); err != nil {
		t.Fatalf("PurchaseItem() error: %v", err)
	}
	after := testutil.ToFloat64(observability.Unlocks.WithLabelValues(string(domain.UnlockPurchase)))
	if after-before != 1 {
		t.Errorf("purchase unlocks delta = %v, want 1", after-before)
	}
}
