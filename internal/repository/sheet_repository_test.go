package repository

import (
	"context"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/sheet"
)

func date(s string) time.Time {
	t, _ := time.Parse(model.DateLayout, s)
	return t
}

func TestEventRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	repo := NewEventRepository(store, "事件紀錄")

	events, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	purchase := model.Event{
		MemberID:      "101",
		MemberName:    "Alice",
		Plan:          model.PlanOneOnOne,
		SessionDelta:  4,
		UnitPrice:     decimal.NewFromInt(1000),
		TotalAmount:   decimal.NewFromInt(4000),
		CoachID:       "1",
		PaymentMethod: model.PaymentTransfer,
		TransferLast5: "01234",
		Date:          date("2024-01-02"),
		Time:          "10:00:00",
	}
	require.NoError(t, repo.Append(ctx, purchase))

	class := purchase
	class.SessionDelta = -1
	class.TotalAmount = decimal.NewFromInt(-1000)
	class.PaymentMethod = model.PaymentClass
	class.TransferLast5 = model.NoTransferDigits
	require.NoError(t, repo.Append(ctx, class))

	events, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "01234", events[0].TransferLast5, "leading zeros survive")
	assert.Equal(t, -1, events[1].SessionDelta)
	assert.True(t, events[1].TotalAmount.Equal(decimal.NewFromInt(-1000)))
	assert.Equal(t, date("2024-01-02"), events[1].Date)

	table, err := store.ReadSheet(ctx, "事件紀錄")
	require.NoError(t, err)
	assert.Equal(t, EventHeader, table.Header)
}

func TestEventRepository_DecodesSpreadsheetArtifacts(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	table := sheet.NewTable(EventHeader...)
	// Float IDs, serial dates, day-fraction times and thousands separators.
	table.Append("101.0", "Alice", "A", "4.0", "1,000", "4,000", "2.0", "現金", "無", "45293", "0.5", "")
	table.Append("", "", "", "", "", "", "", "", "", "", "", "")
	require.NoError(t, store.WriteSheet(ctx, "事件紀錄", table))

	events, err := NewEventRepository(store, "事件紀錄").List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "101", e.MemberID)
	assert.Equal(t, "2", e.CoachID)
	assert.Equal(t, 4, e.SessionDelta)
	assert.True(t, e.TotalAmount.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, date("2024-01-02"), e.Date)
	assert.Equal(t, "12:00:00", e.Time)
}

func TestEventRepository_BadRowIsLocated(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	table := sheet.NewTable(EventHeader...)
	table.Append("101", "Alice", "A", "4", "1000", "4000", "1", "現金", "無", "2024-01-02", "10:00:00", "")
	table.Append("102", "Bob", "A", "four", "1000", "4000", "1", "現金", "無", "2024-01-02", "10:00:00", "")
	require.NoError(t, store.WriteSheet(ctx, "事件紀錄", table))

	_, err := NewEventRepository(store, "事件紀錄").List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
}

func TestEventRepository_MissingColumns(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	table := sheet.NewTable("會員編號", "方案")
	table.Append("101", "A")
	require.NoError(t, store.WriteSheet(ctx, "事件紀錄", table))

	repo := NewEventRepository(store, "事件紀錄")
	_, err := repo.List(ctx)
	assert.ErrorContains(t, err, "missing columns")
	assert.Error(t, repo.Append(ctx, model.Event{MemberID: "101"}))
}

func TestMemberRepository(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	repo := NewMemberRepository(store, "會員資料")

	alice := model.Member{
		MemberID: "101",
		Name:     "Alice",
		Birthday: date("1990-05-01"),
		Phone:    "0912345678",
		JoinDate: date("2024-01-01"),
		JoinTime: "09:00:00",
		CoachID:  "1",
	}
	require.NoError(t, repo.Insert(ctx, alice))

	err := repo.Insert(ctx, model.Member{MemberID: "101", Name: "Imposter"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateMember)

	got, err := repo.Get(ctx, "101.0")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = repo.Get(ctx, "999")
	assert.ErrorIs(t, err, ledger.ErrMemberNotFound)

	members, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestCoachRepository_Cache(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	table := sheet.NewTable(CoachHeader...)
	table.Append("Ken", "1.0", "1")
	require.NoError(t, store.WriteSheet(ctx, "教練", table))

	repo := NewCoachRepository(store, "教練", cache.New(time.Minute, time.Minute))
	coach, err := repo.FindByName(ctx, " Ken ")
	require.NoError(t, err)
	assert.Equal(t, model.Coach{Name: "Ken", CoachID: "1", MemberPrefix: "1"}, coach)

	table.Append("Amy", "2", "2")
	require.NoError(t, store.WriteSheet(ctx, "教練", table))

	_, err = repo.FindByName(ctx, "Amy")
	assert.ErrorIs(t, err, ledger.ErrCoachNotFound, "cached directory is served until invalidated")

	repo.Invalidate()
	coach, err = repo.FindByName(ctx, "Amy")
	require.NoError(t, err)
	assert.Equal(t, "2", coach.CoachID)
}

func TestMenuRepository(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	table := sheet.NewTable(MenuHeader...)
	table.Append("A", "16", "1000", "一對一 16 堂")
	table.Append("C", "8.0", "400", "團體 8 堂")
	require.NoError(t, store.WriteSheet(ctx, "價目表", table))

	items, err := NewMenuRepository(store, "價目表", nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 8, items[1].Count)

	price, err := ledger.LookupPrice(items, model.PlanOneOnOne, 17)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1000)))
}

func TestMainTableRepository_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	repo := NewMainTableRepository(store, "主表")

	rows := []model.MainRow{{
		MemberID:            "101",
		Name:                "Alice",
		Birthday:            date("1990-05-01"),
		Phone:               "0912345678",
		Plan:                model.PlanOneOnOne,
		RemainingSessions:   3,
		AverageUnitPrice:    decimal.RequireFromString("1000"),
		RemainingPrepaid:    decimal.RequireFromString("3000"),
		LastTransactionDate: date("2024-01-09"),
	}}
	require.NoError(t, repo.Replace(ctx, rows))

	table, err := store.ReadSheet(ctx, "主表")
	require.NoError(t, err)
	assert.Equal(t, MainHeader, table.Header)
	assert.Equal(t, "1000.00", table.Record(0).Get(ColAverageUnitPrice))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].RemainingSessions)
	assert.True(t, got[0].AverageUnitPrice.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, date("2024-01-09"), got[0].LastTransactionDate)

	require.NoError(t, repo.Replace(ctx, nil))
	got, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnsureSheets(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory()
	names := Names{Events: "e", Members: "m", Coaches: "c", Menu: "p", Main: "t"}
	require.NoError(t, EnsureSheets(ctx, store, names))

	table, err := store.ReadSheet(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, MemberHeader, table.Header)
}
