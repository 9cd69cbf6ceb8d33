package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/observability"
)

// Ledger owns accounts and the append-only transaction log.
// The cached balance and the transaction rows for a change always commit
// together, so balance == Σ signed amounts holds after every unit.
type Ledger struct {
	run runner
	db  domain.Store
	log *zap.Logger
}

// NewLedger creates a ledger over store.
func NewLedger(store domain.Store, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		run: newRunner(store, opts),
		db:  store,
		log: opts.Logger.Named("ledger"),
	}
}

// ─── Public API ─────────────────────────────────────────────────────────────

// Credit adds points and returns the new balance. The account is opened
// if it does not exist yet. A request whose Reference was already used by
// this user changes nothing and returns the current balance.
func (l *Ledger) Credit(ctx context.Context, req domain.CreditRequest) (int64, error) {
	req.UserID = domain.NormalizeUserID(req.UserID)
	if err := validateCredit(req); err != nil {
		return 0, err
	}

	var (
		balance int64
		applied bool
	)
	err := l.run.update(ctx, "credit", func(tx domain.StoreTx, now time.Time) error {
		var err error
		balance, applied, err = l.credit(ctx, tx, req, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if applied {
		observability.PointsCredited.WithLabelValues(string(req.Type)).Add(float64(req.Amount))
		l.log.Debug("credit",
			zap.String("user_id", req.UserID),
			zap.String("type", string(req.Type)),
			zap.Int64("amount", req.Amount),
			zap.Int64("balance", balance))
	}
	return balance, nil
}

// Debit removes points and returns the new balance. It fails with an
// *domain.InsufficientFundsError, leaving everything untouched, when the
// balance is lower than the amount.
func (l *Ledger) Debit(ctx context.Context, req domain.DebitRequest) (int64, error) {
	req.UserID = domain.NormalizeUserID(req.UserID)
	if err := validateDebit(req); err != nil {
		return 0, err
	}

	var balance int64
	err := l.run.update(ctx, "debit", func(tx domain.StoreTx, now time.Time) error {
		var err error
		balance, err = l.debit(ctx, tx, req, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			observability.InsufficientFunds.Inc()
		}
		return 0, err
	}
	observability.PointsDebited.Add(float64(req.Amount))
	return balance, nil
}

// Refund returns points to a user as a REFUND credit.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64, reason string, metadata map[string]string) (int64, error) {
	return l.Credit(ctx, domain.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxRefund,
		Description: reason,
		Metadata:    metadata,
	})
}

// Balance returns the cached balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return 0, err
	}
	acct, err := l.db.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// History returns up to limit transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return nil, err
	}
	return l.db.ListTransactions(ctx, userID, limit)
}

// Reconcile compares the cached balance with the ledger sum, both read
// from one snapshot.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (domain.Reconciliation, error) {
	userID = domain.NormalizeUserID(userID)
	if err := domain.RequireUserID(userID); err != nil {
		return domain.Reconciliation{}, err
	}
	acct, sum, err := l.db.AccountSnapshot(ctx, userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	rec := domain.Reconciliation{
		UserID:   userID,
		Cached:   acct.Balance,
		Computed: sum,
		OK:       acct.Balance == sum,
	}
	if !rec.OK {
		observability.ReconcileMismatches.Inc()
		l.log.Error("balance drift",
			zap.String("user_id", userID),
			zap.Int64("cached", rec.Cached),
			zap.Int64("computed", rec.Computed))
	}
	return rec, nil
}

// ─── In-Unit Operations ─────────────────────────────────────────────────────
// These run inside a caller's unit so other aggregates can compose with
// the ledger atomically (a purchase debits and unlocks in one unit).

func (l *Ledger) credit(ctx context.Context, tx domain.StoreTx, req domain.CreditRequest, now time.Time) (int64, bool, error) {
	if _, err := tx.EnsureAccount(ctx, req.UserID, now); err != nil {
		return 0, false, err
	}

	if req.Reference != "" {
		_, err := tx.TransactionByReference(ctx, req.UserID, req.Reference)
		if err == nil {
			acct, err := tx.Account(ctx, req.UserID)
			return acct.Balance, false, err
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, false, err
		}
	}

	acct, err := tx.Account(ctx, req.UserID)
	if err != nil {
		return 0, false, err
	}
	if req.Amount > math.MaxInt64-acct.Balance {
		return 0, false, &domain.ValidationError{Field: "amount", Reason: "balance would overflow"}
	}
	balance := acct.Balance + req.Amount

	if err := tx.SwapBalance(ctx, req.UserID, acct.Version, balance, now); err != nil {
		return 0, false, err
	}
	err = tx.InsertTransaction(ctx, domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Metadata:    req.Metadata,
		Reference:   req.Reference,
		CreatedAt:   now,
	})
	if err != nil {
		return 0, false, err
	}

	if req.Type.LogsActivity() {
		if err := tx.InsertActivity(ctx, creditActivity(req, balance, now)); err != nil {
			return 0, false, err
		}
	}
	return balance, true, nil
}

func (l *Ledger) debit(ctx context.Context, tx domain.StoreTx, req domain.DebitRequest, now time.Time) (int64, error) {
	acct, err := tx.Account(ctx, req.UserID)
	if err != nil {
		return 0, err
	}
	if acct.Balance < req.Amount {
		return 0, &domain.InsufficientFundsError{UserID: req.UserID, Balance: acct.Balance, Amount: req.Amount}
	}
	balance := acct.Balance - req.Amount

	if err := tx.SwapBalance(ctx, req.UserID, acct.Version, balance, now); err != nil {
		return 0, err
	}
	err = tx.InsertTransaction(ctx, domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Type:        domain.TxSpent,
		Amount:      req.Amount,
		Description: req.Description,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func validateCredit(req domain.CreditRequest) error {
	if err := domain.RequireUserID(req.UserID); err != nil {
		return err
	}
	if err := domain.PositiveAmount("amount", req.Amount); err != nil {
		return err
	}
	if !req.Type.IsCredit() {
		return &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not a credit type", req.Type)}
	}
	return nil
}

func validateDebit(req domain.DebitRequest) error {
	if err := domain.RequireUserID(req.UserID); err != nil {
		return err
	}
	return domain.PositiveAmount("amount", req.Amount)
}

func creditActivity(req domain.CreditRequest, balance int64, now time.Time) domain.ActivityLogEntry {
	kind, title := domain.LogPointsEarned, fmt.Sprintf("Earned %d points", req.Amount)
	if req.Type == domain.TxAdminGiven {
		kind, title = domain.LogPointsGiven, fmt.Sprintf("Received %d points", req.Amount)
	}
	meta := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["amount"] = strconv.FormatInt(req.Amount, 10)
	meta["balance"] = strconv.FormatInt(balance, 10)
	return domain.ActivityLogEntry{
		UserID:      req.UserID,
		Kind:        kind,
		Title:       title,
		Description: req.Description,
		Metadata:    meta,
		CreatedAt:   now,
	}
}
