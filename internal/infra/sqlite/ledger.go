package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/commonground/progression/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

const accountColumns = `user_id, balance, version, created_at, updated_at`

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	var created, updated string
	if err := row.Scan(&a.UserID, &a.Balance, &a.Version, &created, &updated); err != nil {
		return domain.Account{}, err
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func getAccount(ctx context.Context, q querier, userID string) (domain.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.NotFound("account", userID)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccount reads the cached balance for a user.
func (db *DB) GetAccount(ctx context.Context, userID string) (domain.Account, error) {
	return getAccount(ctx, db.reader, userID)
}

// AccountSnapshot reads the account and the signed ledger sum in one read
// transaction, so both values come from the same committed state.
func (db *DB) AccountSnapshot(ctx context.Context, userID string) (domain.Account, int64, error) {
	rtx, err := db.reader.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, 0, fmt.Errorf("begin read: %w", err)
	}
	defer rtx.Rollback()

	acct, err := getAccount(ctx, rtx, userID)
	if err != nil {
		return domain.Account{}, 0, err
	}

	var sum int64
	err = rtx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'SPENT' THEN -amount ELSE amount END), 0)
		FROM transactions WHERE user_id = ?
	`, userID).Scan(&sum)
	if err != nil {
		return domain.Account{}, 0, fmt.Errorf("sum ledger: %w", err)
	}
	return acct, sum, nil
}

// Account reads the account inside the write transaction.
func (t *Tx) Account(ctx context.Context, userID string) (domain.Account, error) {
	return getAccount(ctx, t.tx, userID)
}

// EnsureAccount creates a zero-balance account if none exists and reports
// whether it did.
func (t *Tx) EnsureAccount(ctx context.Context, userID string, now time.Time) (bool, error) {
	ts := formatTime(now)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, version, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, ts, ts)
	if err != nil {
		return false, fmt.Errorf("ensure account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SwapBalance writes a new balance only if the account is still at version.
func (t *Tx) SwapBalance(ctx context.Context, userID string, version, balance int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?
	`, balance, formatTime(now), userID, version)
	if err != nil {
		return fmt.Errorf("swap balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s at version %d: %w", userID, version, domain.ErrConflict)
	}
	return nil
}

// ─── Transaction Operations ─────────────────────────────────────────────────

const transactionColumns = `id, user_id, type, amount, description, metadata, reference, created_at`

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tr domain.Transaction
	var typ, meta, created string
	var ref sql.NullString
	if err := row.Scan(&tr.ID, &tr.UserID, &typ, &tr.Amount, &tr.Description, &meta, &ref, &created); err != nil {
		return domain.Transaction{}, err
	}
	tr.Type = domain.TxType(typ)
	tr.Metadata = decodeMetadata(meta)
	tr.Reference = ref.String
	tr.CreatedAt = parseTime(created)
	return tr, nil
}

// InsertTransaction appends a ledger row. A reused reference for the same
// user fails with domain.ErrDuplicateReference.
func (t *Tx) InsertTransaction(ctx context.Context, tr domain.Transaction) error {
	meta, err := encodeMetadata(tr.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, description, metadata, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tr.ID, tr.UserID, string(tr.Type), tr.Amount, tr.Description, meta, nullString(tr.Reference), formatTime(tr.CreatedAt))
	if err != nil {
		if isUniqueError(err) && tr.Reference != "" {
			return fmt.Errorf("reference %q: %w", tr.Reference, domain.ErrDuplicateReference)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// TransactionByReference finds the ledger row written with reference.
func (t *Tx) TransactionByReference(ctx context.Context, userID, reference string) (domain.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND reference = ?`,
		userID, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.NotFound("transaction reference", reference)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tr, nil
}

// ListTransactions returns a user's ledger, newest first.
// A non-positive limit returns everything.
func (db *DB) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE user_id = ?
		ORDER BY seq DESC LIMIT ?
	`, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ─── Metadata ───────────────────────────────────────────────────────────────

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
