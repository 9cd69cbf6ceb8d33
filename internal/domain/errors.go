package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Every engine error
// matches exactly one of these with errors.Is (UnknownAchievementError
// matches two, see below).

var (
	// Input errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// Ledger errors
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateReference = errors.New("ledger reference already used")

	// Unlock errors
	ErrDuplicateUnlock = errors.New("item already unlocked")
	ErrNotPurchasable  = errors.New("item is not purchasable")
	ErrNotUnlocked     = errors.New("item is not unlocked")

	// Storage errors
	ErrConflict = errors.New("concurrent modification, retry")
)

// ─── Typed Errors ───────────────────────────────────────────────────────────

// ValidationError reports a rejected argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientFundsError is returned when a debit exceeds the balance.
type InsufficientFundsError struct {
	UserID  string
	Balance int64
	Amount  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: user %s has %d but needs %d", e.UserID, e.Balance, e.Amount)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// UnknownAchievementError is both a validation failure and a lookup miss.
type UnknownAchievementError struct {
	Type AchievementType
}

func (e *UnknownAchievementError) Error() string {
	return fmt.Sprintf("unknown achievement type %q", e.Type)
}

func (e *UnknownAchievementError) Is(target error) bool {
	return target == ErrValidation || target == ErrNotFound
}

// NotFound wraps ErrNotFound with the kind and id of the missing thing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// PositiveAmount returns a ValidationError unless amount > 0.
func PositiveAmount(field string, amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", amount)}
	}
	return nil
}

// RequireUserID returns a ValidationError for an empty user id.
func RequireUserID(userID string) error {
	if userID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return nil
}
