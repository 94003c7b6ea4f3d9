// Package model defines the data models for the gym membership ledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a course category code and the grouping key for session balances.
type Plan string

// Course plans.
const (
	PlanOneOnOne Plan = "A"    // 一對一
	PlanOneOnTwo Plan = "B"    // 一對二
	PlanGroup    Plan = "C"    // 團體
	PlanCustom   Plan = "特殊課程" // customized course, priced per order
)

// PaymentMethod records how an event was settled.
type PaymentMethod string

// Payment methods. Refund and Class are written by the system, never chosen by staff.
const (
	PaymentCash     PaymentMethod = "現金"
	PaymentTransfer PaymentMethod = "匯款"
	PaymentOther    PaymentMethod = "其他"
	PaymentRefund   PaymentMethod = "退款"
	PaymentClass    PaymentMethod = "上課"
)

// NoTransferDigits fills transfer_last5 for anything that is not a bank transfer.
const NoTransferDigits = "無"

// Date and time layouts used in every sheet.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Event is one signed ledger entry: a purchase, a consumed class or a refund.
// Events are append-only; a refund appends an offsetting row.
type Event struct {
	MemberID      string
	MemberName    string
	Plan          Plan
	SessionDelta  int
	UnitPrice     decimal.Decimal
	TotalAmount   decimal.Decimal
	CoachID       string
	PaymentMethod PaymentMethod
	TransferLast5 string
	Date          time.Time
	Time          string
	Remarks       string
}

// Member is a row of the member directory.
type Member struct {
	MemberID string
	Name     string
	Birthday time.Time
	Phone    string
	JoinDate time.Time
	JoinTime string
	CoachID  string
	Remarks  string
}

// Coach maps a coach name to its ID and the member-number prefix used
// when building new member IDs.
type Coach struct {
	Name         string
	CoachID      string
	MemberPrefix string
}

// MenuItem is one price-menu row: the unit price of a plan at a session tier.
type MenuItem struct {
	Plan  Plan
	Count int
	Price decimal.Decimal
	Name  string
}

// Aggregate is the per-(member, plan) balance derived from the event sheet.
type Aggregate struct {
	MemberID            string
	Plan                Plan
	RemainingSessions   int
	AverageUnitPrice    decimal.Decimal
	RemainingPrepaid    decimal.Decimal
	LastTransactionDate time.Time
}

// MainRow is an Aggregate joined with the member's identity fields.
type MainRow struct {
	MemberID            string
	Name                string
	Birthday            time.Time
	Phone               string
	Plan                Plan
	RemainingSessions   int
	AverageUnitPrice    decimal.Decimal
	RemainingPrepaid    decimal.Decimal
	LastTransactionDate time.Time
}

// StandardPlans returns the plans sold from the price menu.
func StandardPlans() []Plan {
	return []Plan{PlanOneOnOne, PlanOneOnTwo, PlanGroup}
}

// PurchasePayments returns the payment methods staff may choose for a purchase.
func PurchasePayments() []PaymentMethod {
	return []PaymentMethod{PaymentCash, PaymentTransfer, PaymentOther}
}

// DisplayName returns the human-readable plan name.
func (p Plan) DisplayName() string {
	switch p {
	case PlanOneOnOne:
		return "一對一"
	case PlanOneOnTwo:
		return "一對二"
	case PlanGroup:
		return "團體"
	case PlanCustom:
		return "特殊課程"
	default:
		return string(p)
	}
}
