package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/model"
)

// Purchase tiers and the "buy 16 get 1" promotion.
const (
	PromotionTier     = 16
	PromotedSessions  = 17
	GroupOrderCeiling = 8
)

// PurchaseTiers lists the session counts sold from the menu.
var PurchaseTiers = []int{1, 4, 8, PromotionTier}

// PurchaseOrder is a menu purchase after the member and coach were resolved.
type PurchaseOrder struct {
	Member        model.Member
	Coach         model.Coach
	Plan          model.Plan
	Tier          int
	Payment       model.PaymentMethod
	TransferLast5 string
	Remarks       string
}

// CustomOrder is a customized course sold at a negotiated unit price.
type CustomOrder struct {
	Member        model.Member
	Coach         model.Coach
	Sessions      int
	UnitPrice     decimal.Decimal
	Payment       model.PaymentMethod
	TransferLast5 string
	Remarks       string
}

// ParseTier accepts a tier as digits or Chinese numerals.
func ParseTier(raw string) (int, error) {
	switch strings.TrimSuffix(strings.TrimSpace(raw), "堂") {
	case "1", "一":
		return 1, nil
	case "4", "四":
		return 4, nil
	case "8", "八":
		return 8, nil
	case "16", "十六":
		return PromotionTier, nil
	default:
		return 0, invalid("tier", "choose one of %v, got %q", PurchaseTiers, raw)
	}
}

// PromoteTier returns the number of sessions recorded for a purchased
// tier. The 16 tier is recorded as 17 sessions for every plan except the
// group plan, which rejects it.
func PromoteTier(plan model.Plan, tier int) (int, error) {
	if !lo.Contains(PurchaseTiers, tier) {
		return 0, invalid("tier", "choose one of %v, got %d", PurchaseTiers, tier)
	}
	if tier == PromotionTier {
		if plan == model.PlanGroup {
			return 0, ErrGroupTierLimit
		}
		return PromotedSessions, nil
	}
	return tier, nil
}

// LookupPrice finds the unit price of a plan at a session count. A 17
// session lookup falls back to the 16 tier row.
func LookupPrice(menu []model.MenuItem, plan model.Plan, sessions int) (decimal.Decimal, error) {
	find := func(count int) (model.MenuItem, bool) {
		return lo.Find(menu, func(m model.MenuItem) bool {
			return m.Plan == plan && m.Count == count
		})
	}
	if item, ok := find(sessions); ok {
		return item.Price, nil
	}
	if sessions == PromotedSessions {
		if item, ok := find(PromotionTier); ok {
			return item.Price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: plan %s, %d sessions", ErrPriceNotFound, plan, sessions)
}

// BuildPurchase turns a menu purchase into an event row. The total is
// unit price × recorded sessions, so a promoted 16 tier is charged for 17.
func BuildPurchase(order PurchaseOrder, menu []model.MenuItem, now time.Time) (model.Event, error) {
	if !lo.Contains(model.StandardPlans(), order.Plan) {
		return model.Event{}, invalid("plan", "%q is not sold from the menu", order.Plan)
	}
	sessions, err := PromoteTier(order.Plan, order.Tier)
	if err != nil {
		return model.Event{}, err
	}
	last5, err := TransferDigits(order.Payment, order.TransferLast5)
	if err != nil {
		return model.Event{}, err
	}
	price, err := LookupPrice(menu, order.Plan, sessions)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		MemberID:      order.Member.MemberID,
		MemberName:    order.Member.Name,
		Plan:          order.Plan,
		SessionDelta:  sessions,
		UnitPrice:     price,
		TotalAmount:   price.Mul(decimal.NewFromInt(int64(sessions))),
		CoachID:       order.Coach.CoachID,
		PaymentMethod: order.Payment,
		TransferLast5: last5,
		Date:          DateOf(now),
		Time:          now.Format(model.TimeLayout),
		Remarks:       order.Remarks,
	}, nil
}

// BuildCustomCourse turns a customized course order into an event row.
func BuildCustomCourse(order CustomOrder, now time.Time) (model.Event, error) {
	if order.Sessions <= 0 {
		return model.Event{}, invalid("sessions", "must be positive, got %d", order.Sessions)
	}
	if !order.UnitPrice.IsPositive() {
		return model.Event{}, invalid("unit_price", "must be positive, got %s", order.UnitPrice)
	}
	last5, err := TransferDigits(order.Payment, order.TransferLast5)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		MemberID:      order.Member.MemberID,
		MemberName:    order.Member.Name,
		Plan:          model.PlanCustom,
		SessionDelta:  order.Sessions,
		UnitPrice:     order.UnitPrice,
		TotalAmount:   order.UnitPrice.Mul(decimal.NewFromInt(int64(order.Sessions))),
		CoachID:       order.Coach.CoachID,
		PaymentMethod: order.Payment,
		TransferLast5: last5,
		Date:          DateOf(now),
		Time:          now.Format(model.TimeLayout),
		Remarks:       order.Remarks,
	}, nil
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
