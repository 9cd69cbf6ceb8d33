package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commonground/progression/internal/domain"
)

// ─── Achievement Progress Operations ────────────────────────────────────────

const progressColumns = `user_id, type, current_value, target_value, is_completed, completed_at, reward_state, version, updated_at`

func scanProgress(row rowScanner) (domain.AchievementProgress, error) {
	var p domain.AchievementProgress
	var typ, state, updated string
	var completed int
	var completedAt sql.NullString
	if err := row.Scan(&p.UserID, &typ, &p.CurrentValue, &p.Target, &completed, &completedAt, &state, &p.Version, &updated); err != nil {
		return domain.AchievementProgress{}, err
	}
	p.Type = domain.AchievementType(typ)
	p.IsCompleted = completed == 1
	p.CompletedAt = parseNullTime(completedAt)
	p.RewardState = domain.RewardState(state)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func getProgress(ctx context.Context, q querier, userID string, typ domain.AchievementType) (domain.AchievementProgress, error) {
	p, err := scanProgress(q.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM achievement_progress WHERE user_id = ? AND type = ?`,
		userID, string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AchievementProgress{}, domain.NotFound("progress", userID+"/"+string(typ))
	}
	if err != nil {
		return domain.AchievementProgress{}, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// GetProgress reads one progress row.
func (db *DB) GetProgress(ctx context.Context, userID string, typ domain.AchievementType) (domain.AchievementProgress, error) {
	return getProgress(ctx, db.reader, userID, typ)
}

// ListProgress returns every progress row for a user, ordered by type.
func (db *DB) ListProgress(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM achievement_progress WHERE user_id = ?
		ORDER BY type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []domain.AchievementProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Progress reads one progress row inside the write transaction.
func (t *Tx) Progress(ctx context.Context, userID string, typ domain.AchievementType) (domain.AchievementProgress, error) {
	return getProgress(ctx, t.tx, userID, typ)
}

// EnsureProgress lazily creates a NotStarted row.
func (t *Tx) EnsureProgress(ctx context.Context, userID string, typ domain.AchievementType, target int64, now time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO achievement_progress (user_id, type, current_value, target_value, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(user_id, type) DO NOTHING
	`, userID, string(typ), target, formatTime(now))
	if err != nil {
		return fmt.Errorf("ensure progress: %w", err)
	}
	return nil
}

// AdvanceProgress raises current_value on an incomplete row at version.
// The value may never move backwards.
func (t *Tx) AdvanceProgress(ctx context.Context, userID string, typ domain.AchievementType, version, value int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievement_progress
		SET current_value = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND type = ? AND version = ?
		  AND is_completed = 0 AND current_value <= ?
	`, value, formatTime(now), userID, string(typ), version, value)
	if err != nil {
		return fmt.Errorf("advance progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("progress %s/%s at version %d: %w", userID, typ, version, domain.ErrConflict)
	}
	return nil
}

// CompleteProgress is the exactly-once completion write: it only matches a
// row that is not yet completed, so of many racing callers exactly one sees
// an affected row.
func (t *Tx) CompleteProgress(ctx context.Context, userID string, typ domain.AchievementType, value int64, now time.Time) (bool, error) {
	ts := formatTime(now)
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievement_progress
		SET current_value = ?, is_completed = 1, completed_at = ?,
		    reward_state = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND type = ? AND is_completed = 0
	`, value, ts, string(domain.RewardDispatching), ts, userID, string(typ))
	if err != nil {
		return false, fmt.Errorf("complete progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimRewardRetry takes ownership of a failed reward delivery.
func (t *Tx) ClaimRewardRetry(ctx context.Context, userID string, typ domain.AchievementType, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievement_progress
		SET reward_state = ?, updated_at = ?
		WHERE user_id = ? AND type = ? AND is_completed = 1 AND reward_state = ?
	`, string(domain.RewardDispatching), formatTime(now), userID, string(typ), string(domain.RewardFailed))
	if err != nil {
		return false, fmt.Errorf("claim reward retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetRewardState records the outcome of a reward delivery.
func (t *Tx) SetRewardState(ctx context.Context, userID string, typ domain.AchievementType, state domain.RewardState, now time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE achievement_progress
		SET reward_state = ?, updated_at = ?
		WHERE user_id = ? AND type = ? AND is_completed = 1
	`, string(state), formatTime(now), userID, string(typ))
	if err != nil {
		return fmt.Errorf("set reward state: %w", err)
	}
	return nil
}
