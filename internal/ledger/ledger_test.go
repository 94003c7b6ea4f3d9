package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-ledger-bot/internal/model"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func event(memberID string, plan model.Plan, delta int, total string, date string) model.Event {
	return model.Event{
		MemberID:     memberID,
		Plan:         plan,
		SessionDelta: delta,
		TotalAmount:  dec(total),
		Date:         day(date),
	}
}

func testMenu() []model.MenuItem {
	return []model.MenuItem{
		{Plan: model.PlanOneOnOne, Count: 1, Price: dec("1200")},
		{Plan: model.PlanOneOnOne, Count: 4, Price: dec("1100")},
		{Plan: model.PlanOneOnOne, Count: 8, Price: dec("1050")},
		{Plan: model.PlanOneOnOne, Count: 16, Price: dec("1000")},
		{Plan: model.PlanOneOnTwo, Count: 16, Price: dec("800")},
		{Plan: model.PlanOneOnTwo, Count: 17, Price: dec("750")},
		{Plan: model.PlanGroup, Count: 8, Price: dec("400")},
		{Plan: model.PlanGroup, Count: 16, Price: dec("350")},
	}
}

// ============================================================================
// Aggregation and join
// ============================================================================

func TestMainTable_EndToEndExample(t *testing.T) {
	members := []model.Member{{MemberID: "101", Name: "Alice", Phone: "0912345678", Birthday: day("1990-05-01")}}
	events := []model.Event{
		event("101", model.PlanOneOnOne, 4, "4000", "2024-01-02"),
		event("101", model.PlanOneOnOne, -1, "-1000", "2024-01-09"),
	}

	rows := MainTable(events, members)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "101", row.MemberID)
	assert.Equal(t, "Alice", row.Name)
	assert.Equal(t, model.PlanOneOnOne, row.Plan)
	assert.Equal(t, 3, row.RemainingSessions)
	assert.True(t, row.RemainingPrepaid.Equal(dec("3000")))
	assert.Equal(t, "1000.00", row.AverageUnitPrice.StringFixed(2))
	assert.Equal(t, day("2024-01-09"), row.LastTransactionDate)

	_, found := Find(rows, "101", model.PlanOneOnTwo)
	assert.False(t, found, "a plan without events must not appear")
}

func TestAggregate_EmptyInput(t *testing.T) {
	aggs := Aggregate(nil)
	assert.NotNil(t, aggs)
	assert.Empty(t, aggs)
	assert.Empty(t, Join(aggs, []model.Member{{MemberID: "101"}}))
}

func TestAggregate_ZeroSessionsHasZeroAverage(t *testing.T) {
	aggs := Aggregate([]model.Event{
		event("101", model.PlanOneOnOne, 4, "4000", "2024-01-02"),
		event("101", model.PlanOneOnOne, -4, "-4000", "2024-02-02"),
	})
	require.Len(t, aggs, 1)
	assert.Equal(t, 0, aggs[0].RemainingSessions)
	assert.True(t, aggs[0].AverageUnitPrice.IsZero())
	assert.True(t, aggs[0].RemainingPrepaid.IsZero())
}

func TestAggregate_RoundsAverageToCents(t *testing.T) {
	aggs := Aggregate([]model.Event{event("101", model.PlanOneOnOne, 3, "1000", "2024-01-02")})
	require.Len(t, aggs, 1)
	assert.Equal(t, "333.33", aggs[0].AverageUnitPrice.String())
}

func TestAggregate_LastTransactionDateIsMax(t *testing.T) {
	aggs := Aggregate([]model.Event{
		event("101", model.PlanOneOnOne, 4, "4000", "2024-03-01"),
		event("101", model.PlanOneOnOne, -1, "-1000", "2024-01-15"),
	})
	require.Len(t, aggs, 1)
	assert.Equal(t, day("2024-03-01"), aggs[0].LastTransactionDate)
}

func TestJoin_DropsMembersWithoutEventsAndUnknownIDs(t *testing.T) {
	members := []model.Member{
		{MemberID: "103", Name: "Carol"},
		{MemberID: "101", Name: "Alice"},
		{MemberID: "102", Name: "Bob"},
	}
	events := []model.Event{
		event("103", model.PlanGroup, 8, "3200", "2024-01-02"),
		event("101", model.PlanOneOnTwo, 4, "3200", "2024-01-02"),
		event("101", model.PlanOneOnOne, 4, "4400", "2024-01-02"),
		event("999", model.PlanOneOnOne, 4, "4400", "2024-01-02"),
	}

	rows := MainTable(events, members)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"101", "101", "103"}, []string{rows[0].MemberID, rows[1].MemberID, rows[2].MemberID})
	assert.Equal(t, model.PlanOneOnOne, rows[0].Plan)
	assert.Equal(t, model.PlanOneOnTwo, rows[1].Plan)
	assert.Empty(t, ForMember(rows, "102"))
}

func TestBirthdaysIn(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Birthday: day("1990-03-01")},
		{MemberID: "102", Birthday: day("1991-04-01")},
		{MemberID: "103"},
	}
	got := BirthdaysIn(rows, time.March)
	require.Len(t, got, 1)
	assert.Equal(t, "101", got[0].MemberID)
}

// ============================================================================
// Purchases
// ============================================================================

func TestBuildPurchase_PromotesSixteenTier(t *testing.T) {
	order := PurchaseOrder{
		Member:  model.Member{MemberID: "101", Name: "Alice"},
		Coach:   model.Coach{Name: "Ken", CoachID: "1"},
		Plan:    model.PlanOneOnOne,
		Tier:    16,
		Payment: model.PaymentCash,
	}

	ev, err := BuildPurchase(order, testMenu(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 17, ev.SessionDelta)
	assert.True(t, ev.UnitPrice.Equal(dec("1000")), "17 falls back to the 16 tier price")
	assert.True(t, ev.TotalAmount.Equal(dec("17000")))
	assert.Equal(t, model.NoTransferDigits, ev.TransferLast5)
	assert.Equal(t, "1", ev.CoachID)
	assert.Equal(t, day("2024-03-15"), ev.Date)
	assert.Equal(t, "10:30:00", ev.Time)
}

func TestBuildPurchase_PrefersExactSeventeenRow(t *testing.T) {
	ev, err := BuildPurchase(PurchaseOrder{
		Member:  model.Member{MemberID: "101"},
		Plan:    model.PlanOneOnTwo,
		Tier:    16,
		Payment: model.PaymentOther,
	}, testMenu(), testNow)
	require.NoError(t, err)
	assert.True(t, ev.UnitPrice.Equal(dec("750")))
	assert.True(t, ev.TotalAmount.Equal(dec("12750")))
}

func TestBuildPurchase_GroupPlanRejectsSixteen(t *testing.T) {
	_, err := BuildPurchase(PurchaseOrder{
		Member:  model.Member{MemberID: "101"},
		Plan:    model.PlanGroup,
		Tier:    16,
		Payment: model.PaymentCash,
	}, testMenu(), testNow)
	assert.ErrorIs(t, err, ErrGroupTierLimit)
}

func TestBuildPurchase_Errors(t *testing.T) {
	tests := []struct {
		name  string
		order PurchaseOrder
		want  error
	}{
		{
			name:  "missing price row",
			order: PurchaseOrder{Plan: model.PlanOneOnTwo, Tier: 4, Payment: model.PaymentCash},
			want:  ErrPriceNotFound,
		},
		{
			name:  "tier not sold",
			order: PurchaseOrder{Plan: model.PlanOneOnOne, Tier: 5, Payment: model.PaymentCash},
			want:  ErrInvalidInput,
		},
		{
			name:  "transfer without digits",
			order: PurchaseOrder{Plan: model.PlanOneOnOne, Tier: 4, Payment: model.PaymentTransfer, TransferLast5: "12"},
			want:  ErrInvalidInput,
		},
		{
			name:  "custom plan is not on the menu",
			order: PurchaseOrder{Plan: model.PlanCustom, Tier: 4, Payment: model.PaymentCash},
			want:  ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPurchase(tt.order, testMenu(), testNow)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildPurchase_TransferKeepsDigits(t *testing.T) {
	ev, err := BuildPurchase(PurchaseOrder{
		Plan:          model.PlanOneOnOne,
		Tier:          4,
		Payment:       model.PaymentTransfer,
		TransferLast5: "01234",
	}, testMenu(), testNow)
	require.NoError(t, err)
	assert.Equal(t, "01234", ev.TransferLast5)
	assert.True(t, ev.TotalAmount.Equal(dec("4400")))
}

func TestBuildCustomCourse(t *testing.T) {
	ev, err := BuildCustomCourse(CustomOrder{
		Member:    model.Member{MemberID: "101", Name: "Alice"},
		Coach:     model.Coach{CoachID: "2"},
		Sessions:  10,
		UnitPrice: dec("1500"),
		Payment:   model.PaymentCash,
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.PlanCustom, ev.Plan)
	assert.Equal(t, 10, ev.SessionDelta)
	assert.True(t, ev.TotalAmount.Equal(dec("15000")))

	_, err = BuildCustomCourse(CustomOrder{Sessions: 0, UnitPrice: dec("1")}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BuildCustomCourse(CustomOrder{Sessions: 1, UnitPrice: dec("0")}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ============================================================================
// Refunds
// ============================================================================

func TestBuildRefund(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Name: "Alice", Plan: model.PlanOneOnOne, RemainingSessions: 3, RemainingPrepaid: dec("3000"), AverageUnitPrice: dec("1000")},
		{MemberID: "102", Plan: model.PlanOneOnOne, RemainingSessions: 0, RemainingPrepaid: decimal.Zero},
		{MemberID: "103", Plan: model.PlanOneOnOne, RemainingSessions: -1, RemainingPrepaid: dec("-1000")},
		{MemberID: "104", Plan: model.PlanOneOnOne, RemainingSessions: 2, RemainingPrepaid: dec("-5")},
	}
	coach := model.Coach{CoachID: "7"}

	ev, err := BuildRefund(rows, "101", model.PlanOneOnOne, coach, testNow)
	require.NoError(t, err)
	assert.Equal(t, -3, ev.SessionDelta)
	assert.True(t, ev.TotalAmount.Equal(dec("-3000")))
	assert.True(t, ev.UnitPrice.Equal(dec("1000")))
	assert.Equal(t, model.PaymentRefund, ev.PaymentMethod)
	assert.Equal(t, "Alice", ev.MemberName)
	assert.Equal(t, "7", ev.CoachID)

	_, err = BuildRefund(rows, "102", model.PlanOneOnOne, coach, testNow)
	assert.ErrorIs(t, err, ErrNothingToRefund)

	_, err = BuildRefund(rows, "103", model.PlanOneOnOne, coach, testNow)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	_, err = BuildRefund(rows, "104", model.PlanOneOnOne, coach, testNow)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	_, err = BuildRefund(rows, "101", model.PlanGroup, coach, testNow)
	assert.ErrorIs(t, err, ErrNoBalanceRecord)
}

// ============================================================================
// Consumption
// ============================================================================

func TestBuildConsumption_AllOrNothing(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Name: "Alice", Plan: model.PlanGroup, RemainingSessions: 3, AverageUnitPrice: dec("400")},
		{MemberID: "102", Name: "Bob", Plan: model.PlanGroup, RemainingSessions: 0},
	}

	events, err := BuildConsumption(rows, []string{"101", "102"}, model.PlanGroup, model.Coach{CoachID: "1"}, testNow)
	assert.Nil(t, events)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, "102", batchErr.Failures[0].MemberID)
	assert.ErrorIs(t, err, ErrInsufficientSessions)
	assert.Contains(t, err.Error(), "102")
}

func TestBuildConsumption_ReportsEveryFailure(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Plan: model.PlanGroup, RemainingSessions: 0},
	}

	_, err := BuildConsumption(rows, []string{"101", "999"}, model.PlanGroup, model.Coach{}, testNow)
	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Len(t, batchErr.Failures, 2)
	assert.ErrorIs(t, err, ErrNoBalanceRecord)
	assert.ErrorIs(t, err, ErrInsufficientSessions)
}

func TestBuildConsumption_DeductsAverage(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Name: "Alice", Plan: model.PlanOneOnOne, RemainingSessions: 3, AverageUnitPrice: dec("333.33")},
		{MemberID: "102", Name: "Bob", Plan: model.PlanOneOnOne, RemainingSessions: 1, AverageUnitPrice: dec("1100")},
	}

	events, err := BuildConsumption(rows, []string{"101", "102", "101"}, model.PlanOneOnOne, model.Coach{CoachID: "1"}, testNow)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, -1, events[0].SessionDelta)
	assert.True(t, events[0].TotalAmount.Equal(dec("-333.33")))
	assert.Equal(t, model.PaymentClass, events[0].PaymentMethod)
	assert.Equal(t, "Bob", events[1].MemberName)
}

func TestBuildConsumption_NormalizesIDs(t *testing.T) {
	rows := []model.MainRow{
		{MemberID: "101", Name: "Alice", Plan: model.PlanGroup, RemainingSessions: 2, AverageUnitPrice: dec("400")},
	}

	events, err := BuildConsumption(rows, []string{"101.0", " 101 ", ""}, model.PlanGroup, model.Coach{CoachID: "1"}, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "101", events[0].MemberID)

	_, err = BuildConsumption(rows, []string{" ", ""}, model.PlanGroup, model.Coach{}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ============================================================================
// Input normalization
// ============================================================================

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "1", NormalizeID("1.0"))
	assert.Equal(t, "2.001", NormalizeID("2.001"))
	assert.Equal(t, "3", NormalizeID(" 3.0 "))
	assert.Equal(t, "4", NormalizeID("4"))
}

func TestBuildMemberID(t *testing.T) {
	id, err := BuildMemberID("1.0", "001")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	id, err = BuildMemberID("2", "15")
	require.NoError(t, err)
	assert.Equal(t, "215", id)

	_, err = BuildMemberID("1", "1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BuildMemberID("1", "12a")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidatePhone(t *testing.T) {
	for _, ok := range []string{"0912345678", "0223456789", "037123456", "0912345678.0"} {
		_, err := ValidatePhone(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"912345678", "09123", "abc", ""} {
		_, err := ValidatePhone(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestParseBirthday(t *testing.T) {
	got, err := ParseBirthday("1990/05/01", testNow)
	require.NoError(t, err)
	assert.Equal(t, day("1990-05-01"), got)

	_, err = ParseBirthday("2099-01-01", testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseBirthday("1899-12-31", testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseBirthday("yesterday", testNow)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParsers(t *testing.T) {
	plan, err := ParsePlan("團課")
	require.NoError(t, err)
	assert.Equal(t, model.PlanGroup, plan)

	tier, err := ParseTier("十六堂")
	require.NoError(t, err)
	assert.Equal(t, 16, tier)

	pay, err := ParsePayment("轉帳")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentTransfer, pay)

	n, err := ParseCellInt("4.0")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = ParseCellInt("4.5")
	assert.Error(t, err)

	ids, err := ParseMemberIDs("101, 102 101\n103.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, ids)
	_, err = ParseMemberIDs("  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
