package ledger

import (
	"fmt"
	"time"

	"gym-ledger-bot/internal/model"
)

// BuildRefund produces the single event that zeroes a member's plan
// balance. Partial refunds do not exist: the event always offsets the
// whole remaining balance.
func BuildRefund(rows []model.MainRow, memberID string, plan model.Plan, coach model.Coach, now time.Time) (model.Event, error) {
	row, ok := Find(rows, memberID, plan)
	if !ok {
		return model.Event{}, fmt.Errorf("%w: member %s plan %s", ErrNoBalanceRecord, memberID, plan)
	}
	if row.RemainingSessions == 0 && row.RemainingPrepaid.IsZero() {
		return model.Event{}, ErrNothingToRefund
	}
	if row.RemainingSessions < 0 || row.RemainingPrepaid.IsNegative() {
		return model.Event{}, fmt.Errorf("%w: %d sessions, %s prepaid",
			ErrNegativeBalance, row.RemainingSessions, row.RemainingPrepaid)
	}

	return model.Event{
		MemberID:      row.MemberID,
		MemberName:    row.Name,
		Plan:          row.Plan,
		SessionDelta:  -row.RemainingSessions,
		UnitPrice:     AverageUnitPrice(row.RemainingPrepaid, row.RemainingSessions),
		TotalAmount:   row.RemainingPrepaid.Neg(),
		CoachID:       coach.CoachID,
		PaymentMethod: model.PaymentRefund,
		TransferLast5: model.NoTransferDigits,
		Date:          DateOf(now),
		Time:          now.Format(model.TimeLayout),
	}, nil
}
