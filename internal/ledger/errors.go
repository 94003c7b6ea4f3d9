package ledger

import (
	"errors"
	"fmt"
	"strings"

	"gym-ledger-bot/internal/model"
)

// Input-format errors. They are returned before any lookup is made.
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Not-found errors.
var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrCoachNotFound   = errors.New("coach not found")
	ErrPriceNotFound   = errors.New("no menu price for plan and tier")
	ErrNoBalanceRecord = errors.New("no balance record for member and plan")
)

// Business-rule violations.
var (
	ErrDuplicateMember      = errors.New("member already exists")
	ErrInsufficientSessions = errors.New("no remaining sessions")
	ErrGroupTierLimit       = errors.New("group plan orders are capped at 8 sessions")
	ErrNothingToRefund      = errors.New("nothing left to refund")
	ErrNegativeBalance      = errors.New("balance is negative, fix the ledger before refunding")
)

// invalid wraps ErrInvalidInput with the offending field.
func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, fmt.Sprintf(format, args...))
}

// MemberFailure is the reason one member of a consumption batch was rejected.
type MemberFailure struct {
	MemberID string
	Plan     model.Plan
	Err      error
}

// BatchError rejects a whole consumption batch. It lists every member
// that failed validation; no rows are written when it is returned.
type BatchError struct {
	Failures []MemberFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("member %s plan %s: %v", f.MemberID, f.Plan, f.Err))
	}
	return "consumption batch rejected: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-member causes to errors.Is.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
