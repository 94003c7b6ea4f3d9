package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
)

// AddMemberRequest is the raw input of a new member.
type AddMemberRequest struct {
	Suffix    string
	Name      string
	Birthday  string
	Phone     string
	CoachName string
	Remarks   string
}

// AddMember validates and inserts a member. The member ID is the coach's
// member-number prefix followed by the typed suffix.
func (s *LedgerService) AddMember(ctx context.Context, req AddMemberRequest) (Result, error) {
	return s.mutate(ctx, "add_member", func(ctx context.Context) (Result, error) {
		now := s.clock()
		name, err := ledger.ValidateName(req.Name)
		if err != nil {
			return Result{}, err
		}
		birthday, err := ledger.ParseBirthday(req.Birthday, now)
		if err != nil {
			return Result{}, err
		}
		phone, err := ledger.ValidatePhone(req.Phone)
		if err != nil {
			return Result{}, err
		}
		coach, err := s.coaches.FindByName(ctx, req.CoachName)
		if err != nil {
			return Result{}, err
		}
		id, err := ledger.BuildMemberID(coach.MemberPrefix, req.Suffix)
		if err != nil {
			return Result{}, err
		}

		member := model.Member{
			MemberID: id,
			Name:     name,
			Birthday: birthday,
			Phone:    phone,
			JoinDate: ledger.DateOf(now),
			JoinTime: now.Format(model.TimeLayout),
			CoachID:  coach.CoachID,
			Remarks:  strings.TrimSpace(req.Remarks),
		}
		if err := s.members.Insert(ctx, member); err != nil {
			return Result{}, err
		}

		zerolog.Ctx(ctx).Info().Str("member_id", id).Str("coach_id", coach.CoachID).Msg("Member added")
		return Result{Member: &member}, nil
	})
}

// PurchaseRequest is a menu purchase.
type PurchaseRequest struct {
	MemberID      string
	Plan          model.Plan
	Tier          int
	Payment       model.PaymentMethod
	TransferLast5 string
	CoachName     string
	Remarks       string
}

// Purchase records a menu purchase, applying the 16→17 promotion.
func (s *LedgerService) Purchase(ctx context.Context, req PurchaseRequest) (Result, error) {
	return s.mutate(ctx, "purchase", func(ctx context.Context) (Result, error) {
		member, coach, err := s.resolve(ctx, req.MemberID, req.CoachName)
		if err != nil {
			return Result{}, err
		}
		menu, err := s.menu.List(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read menu: %w", err)
		}

		event, err := ledger.BuildPurchase(ledger.PurchaseOrder{
			Member:        member,
			Coach:         coach,
			Plan:          req.Plan,
			Tier:          req.Tier,
			Payment:       req.Payment,
			TransferLast5: req.TransferLast5,
			Remarks:       strings.TrimSpace(req.Remarks),
		}, menu, s.clock())
		if err != nil {
			return Result{}, err
		}
		if err := s.events.Append(ctx, event); err != nil {
			return Result{}, err
		}

		s.metrics.SessionsSold.WithLabelValues(string(event.Plan)).Add(float64(event.SessionDelta))
		zerolog.Ctx(ctx).Info().
			Str("member_id", member.MemberID).
			Str("plan", string(event.Plan)).
			Int("sessions", event.SessionDelta).
			Str("total", event.TotalAmount.String()).
			Msg("Purchase recorded")
		return Result{Events: []model.Event{event}, Member: &member}, nil
	})
}

// CustomCourseRequest is a course sold at a negotiated unit price.
type CustomCourseRequest struct {
	MemberID      string
	Sessions      int
	UnitPrice     decimal.Decimal
	Payment       model.PaymentMethod
	TransferLast5 string
	CoachName     string
	Remarks       string
}

// CustomCourse records a customized course purchase.
func (s *LedgerService) CustomCourse(ctx context.Context, req CustomCourseRequest) (Result, error) {
	return s.mutate(ctx, "custom_course", func(ctx context.Context) (Result, error) {
		member, coach, err := s.resolve(ctx, req.MemberID, req.CoachName)
		if err != nil {
			return Result{}, err
		}

		event, err := ledger.BuildCustomCourse(ledger.CustomOrder{
			Member:        member,
			Coach:         coach,
			Sessions:      req.Sessions,
			UnitPrice:     req.UnitPrice,
			Payment:       req.Payment,
			TransferLast5: req.TransferLast5,
			Remarks:       strings.TrimSpace(req.Remarks),
		}, s.clock())
		if err != nil {
			return Result{}, err
		}
		if err := s.events.Append(ctx, event); err != nil {
			return Result{}, err
		}

		s.metrics.SessionsSold.WithLabelValues(string(event.Plan)).Add(float64(event.SessionDelta))
		zerolog.Ctx(ctx).Info().
			Str("member_id", member.MemberID).
			Int("sessions", event.SessionDelta).
			Str("total", event.TotalAmount.String()).
			Msg("Custom course recorded")
		return Result{Events: []model.Event{event}, Member: &member}, nil
	})
}

// ConsumeRequest deducts one class from each listed member.
type ConsumeRequest struct {
	MemberIDs []string
	Plan      model.Plan
	CoachName string
}

// Consume records one attended class for every member of the batch. If
// any member cannot be charged, nothing is written and the returned
// *ledger.BatchError lists every failing member.
func (s *LedgerService) Consume(ctx context.Context, req ConsumeRequest) (Result, error) {
	return s.mutate(ctx, "consume", func(ctx context.Context) (Result, error) {
		coach, err := s.coaches.FindByName(ctx, req.CoachName)
		if err != nil {
			return Result{}, err
		}
		rows, err := s.balances(ctx)
		if err != nil {
			return Result{}, err
		}

		events, err := ledger.BuildConsumption(rows, req.MemberIDs, req.Plan, coach, s.clock())
		if err != nil {
			return Result{}, err
		}
		if err := s.events.Append(ctx, events...); err != nil {
			return Result{}, err
		}

		zerolog.Ctx(ctx).Info().
			Int("members", len(events)).
			Str("plan", string(req.Plan)).
			Str("coach_id", coach.CoachID).
			Msg("Classes consumed")
		return Result{Events: events}, nil
	})
}

// RefundRequest names the balance to refund.
type RefundRequest struct {
	MemberID  string
	Plan      model.Plan
	CoachName string
}

// PrepareRefund computes the refund event without writing it, so staff
// can confirm the amounts first.
func (s *LedgerService) PrepareRefund(ctx context.Context, req RefundRequest) (model.Event, error) {
	coach, err := s.coaches.FindByName(ctx, req.CoachName)
	if err != nil {
		return model.Event{}, err
	}
	var event model.Event
	err = s.lock.WithLockContext(ctx, s.lockKey, s.lockTimeout, func() error {
		rows, err := s.balances(ctx)
		if err != nil {
			return err
		}
		event, err = ledger.BuildRefund(rows, ledger.NormalizeID(req.MemberID), req.Plan, coach, s.clock())
		return err
	})
	return event, err
}

// ExecuteRefund appends a previewed refund. It fails with
// ErrStalePreview when the balance moved since the preview.
func (s *LedgerService) ExecuteRefund(ctx context.Context, preview model.Event) (Result, error) {
	return s.mutate(ctx, "refund", func(ctx context.Context) (Result, error) {
		rows, err := s.balances(ctx)
		if err != nil {
			return Result{}, err
		}
		coach := model.Coach{CoachID: preview.CoachID}
		event, err := ledger.BuildRefund(rows, preview.MemberID, preview.Plan, coach, s.clock())
		if err != nil {
			return Result{}, err
		}
		if event.SessionDelta != preview.SessionDelta || !event.TotalAmount.Equal(preview.TotalAmount) {
			return Result{}, fmt.Errorf("%w: previewed %d sessions %s, now %d sessions %s",
				ErrStalePreview, -preview.SessionDelta, preview.TotalAmount.Neg(),
				-event.SessionDelta, event.TotalAmount.Neg())
		}
		if err := s.events.Append(ctx, event); err != nil {
			return Result{}, err
		}

		zerolog.Ctx(ctx).Info().
			Str("member_id", event.MemberID).
			Str("plan", string(event.Plan)).
			Int("sessions", -event.SessionDelta).
			Str("amount", event.TotalAmount.Neg().String()).
			Msg("Refund recorded")
		return Result{Events: []model.Event{event}}, nil
	})
}

// resolve looks up the member and the coach of an order.
func (s *LedgerService) resolve(ctx context.Context, memberID, coachName string) (model.Member, model.Coach, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return model.Member{}, model.Coach{}, err
	}
	coach, err := s.coaches.FindByName(ctx, coachName)
	if err != nil {
		return model.Member{}, model.Coach{}, err
	}
	return member, coach, nil
}
