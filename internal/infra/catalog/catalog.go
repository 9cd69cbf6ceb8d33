// Package catalog holds the static reference data of the progression engine:
// cosmetic border items, achievement definitions, and the table mapping
// community activity kinds to the achievements they advance.
//
// Everything here is read-only after construction. A Table is safe for
// unbounded concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/commonground/progression/internal/domain"
)

// ErrMissingRewardItem is returned by Table.Validate when an achievement
// reward references an item the catalog does not contain.
var ErrMissingRewardItem = errors.New("achievement reward references unknown item")

// ─── Built-in Items ─────────────────────────────────────────────────────────

// Items is the built-in border catalog.
var Items = []domain.CatalogItem{
	{ID: domain.DefaultItemID, Name: "Default", Description: "Plain border every member starts with.", Rarity: domain.RarityCommon, IsActive: true, IsDefault: true},
	{ID: "bronze", Name: "Bronze", Description: "A warm bronze ring.", Price: domain.Points(100), Rarity: domain.RarityCommon, IsActive: true},
	{ID: "silver", Name: "Silver", Description: "Polished silver trim.", Price: domain.Points(250), Rarity: domain.RarityRare, IsActive: true},
	{ID: "gold", Name: "Gold", Description: "Gold leaf with a soft glow.", Price: domain.Points(500), Rarity: domain.RarityEpic, IsActive: true},
	{ID: "neon", Name: "Neon", Description: "Animated neon outline.", Price: domain.Points(750), Rarity: domain.RarityEpic, IsActive: true},
	{ID: "galaxy", Name: "Galaxy", Description: "Slowly drifting starfield.", Price: domain.Points(1500), Rarity: domain.RarityLegendary, IsActive: true},
	{ID: "holiday-2023", Name: "Holiday 2023", Description: "Retired seasonal border.", Price: domain.Points(300), Rarity: domain.RarityRare, IsActive: false},
	{ID: "first-steps", Name: "First Steps", Description: "Awarded for starting your first thread.", Rarity: domain.RarityCommon, IsActive: true},
	{ID: "storyteller", Name: "Storyteller", Description: "Awarded to prolific thread authors.", Rarity: domain.RarityRare, IsActive: true},
	{ID: "chatterbox", Name: "Chatterbox", Description: "Awarded for lively chat participation.", Rarity: domain.RarityRare, IsActive: true},
	{ID: "loyal", Name: "Loyal", Description: "Awarded for a week of daily visits.", Rarity: domain.RarityEpic, IsActive: true},
	{ID: "collector", Name: "Collector", Description: "Awarded for building a border collection.", Rarity: domain.RarityLegendary, IsActive: true},
	{ID: "crowd-favorite", Name: "Crowd Favorite", Description: "Awarded when your posts are liked often.", Rarity: domain.RarityEpic, IsActive: true},
}

// ─── Built-in Achievements ──────────────────────────────────────────────────

const (
	FirstThread       domain.AchievementType = "FIRST_THREAD"
	ThreadStarter     domain.AchievementType = "THREAD_STARTER"
	FirstReply        domain.AchievementType = "FIRST_REPLY"
	Conversationalist domain.AchievementType = "CONVERSATIONALIST"
	Commentator       domain.AchievementType = "COMMENTATOR"
	Chatterbox        domain.AchievementType = "CHATTERBOX"
	WeekStreak        domain.AchievementType = "WEEK_STREAK"
	MonthStreak       domain.AchievementType = "MONTH_STREAK"
	FirstPurchase     domain.AchievementType = "FIRST_PURCHASE"
	Collector         domain.AchievementType = "COLLECTOR"
	CrowdFavorite     domain.AchievementType = "CROWD_FAVORITE"
	ProfileComplete   domain.AchievementType = "PROFILE_COMPLETE"
	Networker         domain.AchievementType = "NETWORKER"
)

// Achievements is the built-in achievement table.
var Achievements = []domain.AchievementDefinition{
	{Type: FirstThread, Title: "First Thread", Description: "Start your first forum thread.", Target: 1, Reward: domain.Reward{Points: 50, UnlockItemIDs: []string{"first-steps"}}},
	{Type: ThreadStarter, Title: "Thread Starter", Description: "Start 25 forum threads.", Target: 25, Reward: domain.Reward{Points: 300, UnlockItemIDs: []string{"storyteller"}}},
	{Type: FirstReply, Title: "First Reply", Description: "Reply to a thread.", Target: 1, Reward: domain.Reward{Points: 20}},
	{Type: Conversationalist, Title: "Conversationalist", Description: "Post 100 replies.", Target: 100, Reward: domain.Reward{Points: 250}},
	{Type: Commentator, Title: "Commentator", Description: "Comment on 50 feed posts.", Target: 50, Reward: domain.Reward{Points: 150}},
	{Type: Chatterbox, Title: "Chatterbox", Description: "Send 500 chat messages.", Target: 500, Reward: domain.Reward{Points: 200, UnlockItemIDs: []string{"chatterbox"}}},
	{Type: WeekStreak, Title: "Regular", Description: "Log in on 7 days.", Target: 7, Reward: domain.Reward{Points: 100, UnlockItemIDs: []string{"loyal"}}},
	{Type: MonthStreak, Title: "Devoted", Description: "Log in on 30 days.", Target: 30, Reward: domain.Reward{Points: 500}},
	{Type: FirstPurchase, Title: "First Purchase", Description: "Buy your first border.", Target: 1, Reward: domain.Reward{Points: 25}},
	{Type: Collector, Title: "Collector", Description: "Buy 5 borders.", Target: 5, Reward: domain.Reward{Points: 400, UnlockItemIDs: []string{"collector"}}},
	{Type: CrowdFavorite, Title: "Crowd Favorite", Description: "Receive 100 likes.", Target: 100, Reward: domain.Reward{Points: 300, UnlockItemIDs: []string{"crowd-favorite"}}},
	{Type: ProfileComplete, Title: "All About Me", Description: "Fill in every profile field.", Target: 1, Reward: domain.Reward{Points: 30}},
	{Type: Networker, Title: "Networker", Description: "Add 10 friends.", Target: 10, Reward: domain.Reward{Points: 100}},
}

// Bindings maps each activity kind to the achievements it advances.
var Bindings = map[domain.ActivityKind][]domain.AchievementType{
	domain.ActivityThreadCreated:     {FirstThread, ThreadStarter},
	domain.ActivityReplyPosted:       {FirstReply, Conversationalist},
	domain.ActivityCommentPosted:     {Commentator},
	domain.ActivityChatMessageSent:   {Chatterbox},
	domain.ActivityDailyLogin:        {WeekStreak, MonthStreak},
	domain.ActivityPurchaseCompleted: {FirstPurchase, Collector},
	domain.ActivityPostLiked:         {CrowdFavorite},
	domain.ActivityProfileCompleted:  {ProfileComplete},
	domain.ActivityFriendAdded:       {Networker},
}

// ─── Table ──────────────────────────────────────────────────────────────────

// Table is an immutable lookup table implementing domain.Catalog.
type Table struct {
	items     map[string]domain.CatalogItem
	names     map[string]string // lower-cased name → id
	itemOrder []string
	defaultID string

	defs     map[domain.AchievementType]domain.AchievementDefinition
	defOrder []domain.AchievementType

	bindings map[domain.ActivityKind][]domain.AchievementType
}

var _ domain.Catalog = (*Table)(nil)

// New builds a Table, copying every input so later mutation of the
// arguments cannot change it. Exactly one item must be the default.
func New(items []domain.CatalogItem, defs []domain.AchievementDefinition, bindings map[domain.ActivityKind][]domain.AchievementType) (*Table, error) {
	t := &Table{
		items:    make(map[string]domain.CatalogItem, len(items)),
		names:    make(map[string]string, len(items)),
		defs:     make(map[domain.AchievementType]domain.AchievementDefinition, len(defs)),
		bindings: make(map[domain.ActivityKind][]domain.AchievementType, len(bindings)),
	}

	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("catalog item with empty id")
		}
		if _, dup := t.items[it.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", it.ID)
		}
		if it.Price != nil {
			if *it.Price < 0 {
				return nil, fmt.Errorf("catalog item %q has negative price", it.ID)
			}
			it.Price = domain.Points(*it.Price)
		}
		if it.IsDefault {
			if t.defaultID != "" {
				return nil, fmt.Errorf("catalog has two default items: %q and %q", t.defaultID, it.ID)
			}
			t.defaultID = it.ID
		}
		t.items[it.ID] = it
		t.itemOrder = append(t.itemOrder, it.ID)
		if it.Name != "" {
			t.names[strings.ToLower(it.Name)] = it.ID
		}
	}
	if t.defaultID == "" {
		return nil, fmt.Errorf("catalog has no default item")
	}

	for _, d := range defs {
		if d.Type == "" {
			return nil, fmt.Errorf("achievement with empty type")
		}
		if _, dup := t.defs[d.Type]; dup {
			return nil, fmt.Errorf("duplicate achievement %q", d.Type)
		}
		if d.Target <= 0 {
			return nil, fmt.Errorf("achievement %q: target must be positive", d.Type)
		}
		if d.Reward.Points < 0 {
			return nil, fmt.Errorf("achievement %q: negative reward points", d.Type)
		}
		d.Reward.UnlockItemIDs = append([]string(nil), d.Reward.UnlockItemIDs...)
		t.defs[d.Type] = d
		t.defOrder = append(t.defOrder, d.Type)
	}

	for kind, types := range bindings {
		for _, typ := range types {
			if _, ok := t.defs[typ]; !ok {
				return nil, fmt.Errorf("activity %q bound to unknown achievement %q", kind, typ)
			}
		}
		t.bindings[kind] = append([]domain.AchievementType(nil), types...)
	}

	return t, nil
}

// Builtin returns the built-in catalog.
func Builtin() *Table {
	t, err := New(Items, Achievements, Bindings)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return t
}

// Item looks up an item by id, falling back to a case-insensitive name match.
func (t *Table) Item(ref string) (domain.CatalogItem, bool) {
	if it, ok := t.items[ref]; ok {
		return copyItem(it), true
	}
	if id, ok := t.names[strings.ToLower(strings.TrimSpace(ref))]; ok {
		return copyItem(t.items[id]), true
	}
	return domain.CatalogItem{}, false
}

// Items returns every item in declaration order.
func (t *Table) Items() []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(t.itemOrder))
	for _, id := range t.itemOrder {
		out = append(out, copyItem(t.items[id]))
	}
	return out
}

// DefaultItem returns the implicitly owned item.
func (t *Table) DefaultItem() domain.CatalogItem {
	return copyItem(t.items[t.defaultID])
}

// Achievement looks up a definition by type.
func (t *Table) Achievement(typ domain.AchievementType) (domain.AchievementDefinition, bool) {
	d, ok := t.defs[typ]
	if !ok {
		return domain.AchievementDefinition{}, false
	}
	return copyDef(d), true
}

// Achievements returns every definition in declaration order.
func (t *Table) Achievements() []domain.AchievementDefinition {
	out := make([]domain.AchievementDefinition, 0, len(t.defOrder))
	for _, typ := range t.defOrder {
		out = append(out, copyDef(t.defs[typ]))
	}
	return out
}

// AchievementsFor returns the achievement types advanced by kind, or nil.
func (t *Table) AchievementsFor(kind domain.ActivityKind) []domain.AchievementType {
	types := t.bindings[kind]
	if len(types) == 0 {
		return nil
	}
	return append([]domain.AchievementType(nil), types...)
}

// Kinds returns every bound activity kind, sorted.
func (t *Table) Kinds() []domain.ActivityKind {
	out := make([]domain.ActivityKind, 0, len(t.bindings))
	for k := range t.bindings {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MissingRewardItems lists "TYPE/item" pairs whose reward item is absent.
func (t *Table) MissingRewardItems() []string {
	var missing []string
	for _, typ := range t.defOrder {
		for _, ref := range t.defs[typ].Reward.UnlockItemIDs {
			if _, ok := t.Item(ref); !ok {
				missing = append(missing, fmt.Sprintf("%s/%s", typ, ref))
			}
		}
	}
	return missing
}

// Validate fails when any achievement reward references an unknown item.
// New accepts such tables; callers choose whether to be strict.
func (t *Table) Validate() error {
	if missing := t.MissingRewardItems(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRewardItem, strings.Join(missing, ", "))
	}
	return nil
}

func copyItem(it domain.CatalogItem) domain.CatalogItem {
	if it.Price != nil {
		it.Price = domain.Points(*it.Price)
	}
	return it
}

func copyDef(d domain.AchievementDefinition) domain.AchievementDefinition {
	d.Reward.UnlockItemIDs = append([]string(nil), d.Reward.UnlockItemIDs...)
	return d
}
