package catalog

import (
	"errors"
	"testing"

	"github.com/commonground/progression/internal/domain"
)

func TestLookupExistingItem(t *testing.T) {
	tests := []struct {
		query  string
		wantID string
	}{
		{"gold", "gold"},
		{"Gold", "gold"},
		{"first-steps", "first-steps"},
		{"First Steps", "first-steps"},
		{"  crowd favorite ", "crowd-favorite"},
		{"default", domain.DefaultItemID},
	}

	tbl := Builtin()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			item, ok := tbl.Item(tt.query)
			if !ok {
				t.Fatalf("Item(%q) not found, want %q", tt.query, tt.wantID)
			}
			if item.ID != tt.wantID {
				t.Errorf("Item(%q).ID = %q, want %q", tt.query, item.ID, tt.wantID)
			}
		})
	}
}

func TestLookupUnknownItem(t *testing.T) {
	if _, ok := Builtin().Item("nonexistent-border"); ok {
		t.Error("Item(nonexistent) found, want miss")
	}
}

func TestBuiltinIsValid(t *testing.T) {
	tbl := Builtin()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got := tbl.DefaultItem().ID; got != domain.DefaultItemID {
		t.Errorf("DefaultItem().ID = %q, want %q", got, domain.DefaultItemID)
	}
}

func TestAllItemsHaveNames(t *testing.T) {
	for _, item := range Builtin().Items() {
		if item.Name == "" {
			t.Errorf("item %q has empty Name", item.ID)
		}
		if item.Rarity == "" {
			t.Errorf("item %q has empty Rarity", item.ID)
		}
	}
}

func TestAchievementsFor(t *testing.T) {
	tbl := Builtin()

	got := tbl.AchievementsFor(domain.ActivityThreadCreated)
	if len(got) != 2 || got[0] != FirstThread || got[1] != ThreadStarter {
		t.Errorf("AchievementsFor(thread_created) = %v, want [FIRST_THREAD THREAD_STARTER]", got)
	}
	if got := tbl.AchievementsFor("unmapped_kind"); got != nil {
		t.Errorf("AchievementsFor(unmapped) = %v, want nil", got)
	}
}

func TestEveryBindingResolves(t *testing.T) {
	tbl := Builtin()
	for _, kind := range tbl.Kinds() {
		for _, typ := range tbl.AchievementsFor(kind) {
			if _, ok := tbl.Achievement(typ); !ok {
				t.Errorf("kind %q bound to undefined achievement %q", kind, typ)
			}
		}
	}
}

// ─── Construction Rules ─────────────────────────────────────────────────────

func TestNew_Rejects(t *testing.T) {
	def := domain.CatalogItem{ID: "default", IsDefault: true, IsActive: true}

	tests := []struct {
		name     string
		items    []domain.CatalogItem
		defs     []domain.AchievementDefinition
		bindings map[domain.ActivityKind][]domain.AchievementType
	}{
		{"no default", []domain.CatalogItem{{ID: "a"}}, nil, nil},
		{"two defaults", []domain.CatalogItem{def, {ID: "b", IsDefault: true}}, nil, nil},
		{"duplicate id", []domain.CatalogItem{def, def}, nil, nil},
		{"negative price", []domain.CatalogItem{def, {ID: "x", Price: domain.Points(-1)}}, nil, nil},
		{"zero target", []domain.CatalogItem{def}, []domain.AchievementDefinition{{Type: "T", Target: 0}}, nil},
		{"unknown binding", []domain.CatalogItem{def}, nil, map[domain.ActivityKind][]domain.AchievementType{"k": {"NOPE"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.items, tt.defs, tt.bindings); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestValidate_MissingRewardItem(t *testing.T) {
	tbl, err := New(
		[]domain.CatalogItem{{ID: "default", IsDefault: true, IsActive: true}},
		[]domain.AchievementDefinition{{Type: "T", Title: "T", Target: 1, Reward: domain.Reward{UnlockItemIDs: []string{"ghost"}}}},
		nil,
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := tbl.MissingRewardItems(); len(got) != 1 || got[0] != "T/ghost" {
		t.Errorf("MissingRewardItems() = %v, want [T/ghost]", got)
	}
	if err := tbl.Validate(); !errors.Is(err, ErrMissingRewardItem) {
		t.Errorf("Validate() = %v, want ErrMissingRewardItem", err)
	}
}

func TestTable_ReturnsCopies(t *testing.T) {
	tbl := Builtin()

	item, _ := tbl.Item("gold")
	*item.Price = 1
	again, _ := tbl.Item("gold")
	if *again.Price != 500 {
		t.Errorf("gold price = %d after caller mutation, want 500", *again.Price)
	}

	def, _ := tbl.Achievement(FirstThread)
	def.Reward.UnlockItemIDs[0] = "changed"
	def2, _ := tbl.Achievement(FirstThread)
	if def2.Reward.UnlockItemIDs[0] != "first-steps" {
		t.Errorf("reward item = %q after caller mutation, want first-steps", def2.Reward.UnlockItemIDs[0])
	}
}
