package domain

import "time"

// ─── Community Activity (forum, feed, chat, profile) ───────────────────────
// Collaborators report that something countable happened; the engine maps
// the kind to achievement types. The activity log is a display-only audit
// trail and never feeds business logic.

// ActivityKind names a countable action performed somewhere on the site.
type ActivityKind string

const (
	ActivityThreadCreated     ActivityKind = "thread_created"
	ActivityReplyPosted       ActivityKind = "reply_posted"
	ActivityCommentPosted     ActivityKind = "comment_posted"
	ActivityPostLiked         ActivityKind = "post_liked"
	ActivityChatMessageSent   ActivityKind = "chat_message_sent"
	ActivityDailyLogin        ActivityKind = "daily_login"
	ActivityPurchaseCompleted ActivityKind = "purchase_completed"
	ActivityProfileCompleted  ActivityKind = "profile_completed"
	ActivityFriendAdded       ActivityKind = "friend_added"
)

// Kinds written to the activity log by the engine itself.
const (
	LogPointsEarned        = "points_earned"
	LogPointsGiven         = "points_given"
	LogItemUnlocked        = "item_unlocked"
	LogAchievementComplete = "achievement_completed"
)

// ActivityLogEntry is one row of the per-user history feed.
type ActivityLogEntry struct {
	ID          int64             `json:"id"`
	UserID      string            `json:"user_id"`
	Kind        string            `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
