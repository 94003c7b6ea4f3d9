package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"gym-ledger-bot/internal/model"
)

// ParseMemberIDs splits a list of member IDs typed as free text
// (spaces, commas or new lines). Duplicates are dropped, order is kept.
func ParseMemberIDs(raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == ' ' || r == '\n' || r == '\t'
	})
	ids := normalizeIDs(fields)
	if len(ids) == 0 {
		return nil, invalid("member_ids", "at least one member ID is required")
	}
	return ids, nil
}

// normalizeIDs normalizes IDs, dropping blanks and duplicates in order.
func normalizeIDs(ids []string) []string {
	return lo.Compact(lo.Uniq(lo.Map(ids, func(s string, _ int) string { return NormalizeID(s) })))
}

// BuildConsumption deducts one session from every listed member's plan.
// Validation is all-or-nothing: if any member has no balance record or no
// remaining sessions, a *BatchError naming every failing member is
// returned and no events are produced.
func BuildConsumption(rows []model.MainRow, memberIDs []string, plan model.Plan, coach model.Coach, now time.Time) ([]model.Event, error) {
	ids := normalizeIDs(memberIDs)
	if len(ids) == 0 {
		return nil, invalid("member_ids", "at least one member ID is required")
	}

	var failures []MemberFailure
	events := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		row, ok := Find(rows, id, plan)
		if !ok {
			failures = append(failures, MemberFailure{MemberID: id, Plan: plan, Err: ErrNoBalanceRecord})
			continue
		}
		if row.RemainingSessions <= 0 {
			failures = append(failures, MemberFailure{
				MemberID: id,
				Plan:     plan,
				Err:      fmt.Errorf("%w: %d left", ErrInsufficientSessions, row.RemainingSessions),
			})
			continue
		}
		events = append(events, model.Event{
			MemberID:      row.MemberID,
			MemberName:    row.Name,
			Plan:          plan,
			SessionDelta:  -1,
			UnitPrice:     row.AverageUnitPrice,
			TotalAmount:   row.AverageUnitPrice.Neg(),
			CoachID:       coach.CoachID,
			PaymentMethod: model.PaymentClass,
			TransferLast5: model.NoTransferDigits,
			Date:          DateOf(now),
			Time:          now.Format(model.TimeLayout),
		})
	}

	if len(failures) > 0 {
		return nil, &BatchError{Failures: failures}
	}
	return events, nil
}
