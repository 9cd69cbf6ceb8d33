package sqlite

import (
	"context"
	"fmt"

	"github.com/commonground/progression/internal/domain"
)

// ─── Activity Log Operations ────────────────────────────────────────────────

// InsertActivity appends a history entry.
func (t *Tx) InsertActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, kind, title, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.UserID, e.Kind, e.Title, e.Description, meta, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a user's history, newest first.
// A non-positive limit returns everything.
func (db *DB) ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, user_id, kind, title, description, metadata, created_at
		FROM activity_log WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityLogEntry
	for rows.Next() {
		var e domain.ActivityLogEntry
		var meta, created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Title, &e.Description, &meta, &created); err != nil {
			return nil, err
		}
		e.Metadata = decodeMetadata(meta)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
