package domain

import "time"

// ─── Achievement Types ──────────────────────────────────────────────────────
// Definitions are static configuration; progress rows are created lazily on
// the first progress event for a (user, type) pair.

// AchievementType tags an achievement definition.
type AchievementType string

// Reward is what a completed achievement pays out.
type Reward struct {
	Points        int64    `json:"points"`
	UnlockItemIDs []string `json:"unlock_item_ids,omitempty"`
}

// AchievementDefinition is one row of the static achievement table.
type AchievementDefinition struct {
	Type        AchievementType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Target      int64           `json:"target"`
	Reward      Reward          `json:"reward"`
}

// ProgressState is the per-(user, type) state machine position.
type ProgressState string

const (
	StateNotStarted ProgressState = "NOT_STARTED"
	StateInProgress ProgressState = "IN_PROGRESS"
	StateCompleted  ProgressState = "COMPLETED"
)

// RewardState tracks delivery of a completed achievement's reward.
//
//	""           → not completed yet
//	dispatching  → a caller owns delivery right now
//	delivered    → every sub-grant succeeded
//	failed       → at least one sub-grant failed; next trigger retries
type RewardState string

const (
	RewardNone        RewardState = ""
	RewardDispatching RewardState = "dispatching"
	RewardDelivered   RewardState = "delivered"
	RewardFailed      RewardState = "failed"
)

// AchievementProgress is one user's progress toward one achievement.
// CurrentValue never decreases and is capped at Target; IsCompleted is
// terminal once set.
type AchievementProgress struct {
	UserID       string          `json:"user_id"`
	Type         AchievementType `json:"type"`
	CurrentValue int64           `json:"current_value"`
	Target       int64           `json:"target"`
	IsCompleted  bool            `json:"is_completed"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RewardState  RewardState     `json:"reward_state,omitempty"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// State derives the state machine position from the stored values.
func (p AchievementProgress) State() ProgressState {
	switch {
	case p.IsCompleted:
		return StateCompleted
	case p.CurrentValue > 0:
		return StateInProgress
	default:
		return StateNotStarted
	}
}

// Percent returns completion in [0, 100].
func (p AchievementProgress) Percent() float64 {
	if p.Target <= 0 {
		return 0
	}
	if p.IsCompleted {
		return 100
	}
	return float64(p.CurrentValue) / float64(p.Target) * 100
}

// ProgressSnapshot is the result of one RecordProgress call.
// JustCompleted is true only for the single call that flipped IsCompleted.
type ProgressSnapshot struct {
	Progress      AchievementProgress `json:"progress"`
	JustCompleted bool                `json:"just_completed"`
}

// AchievementStatus pairs a definition with a user's progress.
type AchievementStatus struct {
	Definition AchievementDefinition `json:"definition"`
	Progress   AchievementProgress   `json:"progress"`
}
