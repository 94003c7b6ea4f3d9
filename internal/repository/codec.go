package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/sheet"
)

// Column names of the event sheet.
const (
	ColMemberID      = "會員編號"
	ColMemberName    = "會員姓名"
	ColPlan          = "方案"
	ColSessions      = "堂數"
	ColUnitPrice     = "單堂金額"
	ColTotalAmount   = "方案總金額"
	ColCoach         = "教練"
	ColPayment       = "付款方式"
	ColTransferLast5 = "匯款末五碼"
	ColDate          = "交易日期"
	ColTime          = "交易時間"
	ColRemarks       = "備註"
)

// Column names of the member directory.
const (
	ColBirthday = "生日"
	ColPhone    = "電話"
	ColJoinDate = "加入日期"
	ColJoinTime = "加入時間"
)

// Column names of the coach directory.
const (
	ColCoachName   = "姓名"
	ColCoachID     = "教練編號"
	ColCoachPrefix = "會員編號"
)

// Column names of the price menu.
const (
	ColMenuPlan  = "plan"
	ColMenuCount = "count"
	ColMenuPrice = "price"
	ColMenuName  = "name"
)

// Column names of the main table.
const (
	ColRemainingSessions = "剩餘堂數"
	ColAverageUnitPrice  = "平均單堂金額"
	ColRemainingPrepaid  = "剩餘預收款項"
	ColLastTransaction   = "最近交易日期"
)

// Sheet headers in column order.
var (
	EventHeader = []string{
		ColMemberID, ColMemberName, ColPlan, ColSessions, ColUnitPrice, ColTotalAmount,
		ColCoach, ColPayment, ColTransferLast5, ColDate, ColTime, ColRemarks,
	}
	MemberHeader = []string{
		ColMemberID, ColMemberName, ColBirthday, ColPhone, ColJoinDate, ColJoinTime, ColCoach, ColRemarks,
	}
	CoachHeader = []string{ColCoachName, ColCoachID, ColCoachPrefix}
	MenuHeader  = []string{ColMenuPlan, ColMenuCount, ColMenuPrice, ColMenuName}
	MainHeader  = []string{
		ColMemberID, ColMemberName, ColBirthday, ColPhone, ColPlan,
		ColRemainingSessions, ColAverageUnitPrice, ColRemainingPrepaid, ColLastTransaction,
	}
)

// Cell types of the written sheets. Unlisted columns stay text.
var (
	eventTypes = map[string]sheet.ColumnType{
		ColSessions:    sheet.Number,
		ColUnitPrice:   sheet.Number,
		ColTotalAmount: sheet.Number,
		ColDate:        sheet.Date,
	}
	memberTypes = map[string]sheet.ColumnType{
		ColBirthday: sheet.Date,
		ColJoinDate: sheet.Date,
	}
	mainTypes = map[string]sheet.ColumnType{
		ColBirthday:          sheet.Date,
		ColRemainingSessions: sheet.Number,
		ColAverageUnitPrice:  sheet.Number,
		ColRemainingPrepaid:  sheet.Number,
		ColLastTransaction:   sheet.Date,
	}
)

// Columns a sheet must carry to be decoded.
var (
	eventRequired  = []string{ColMemberID, ColPlan, ColSessions, ColTotalAmount, ColDate}
	memberRequired = []string{ColMemberID, ColMemberName}
	coachRequired  = []string{ColCoachName, ColCoachID, ColCoachPrefix}
	menuRequired   = []string{ColMenuPlan, ColMenuCount, ColMenuPrice}
	mainRequired   = []string{ColMemberID, ColPlan, ColRemainingSessions, ColRemainingPrepaid}
)

// rowError locates a decode failure for whoever fixes the workbook.
// Row numbers are 1-based and count the header.
func rowError(sheetName string, index int, err error) error {
	return fmt.Errorf("%s row %d: %w", sheetName, index+2, err)
}

func decodeEvent(r sheet.Record) (model.Event, error) {
	var (
		e   model.Event
		err error
	)
	e.MemberID = ledger.NormalizeID(r.Get(ColMemberID))
	e.MemberName = r.Get(ColMemberName)
	e.Plan = model.Plan(r.Get(ColPlan))
	if e.SessionDelta, err = ledger.ParseCellInt(r.Get(ColSessions)); err != nil {
		return e, err
	}
	if e.UnitPrice, err = ledger.ParseCellDecimal(r.Get(ColUnitPrice)); err != nil {
		return e, err
	}
	if e.TotalAmount, err = ledger.ParseCellDecimal(r.Get(ColTotalAmount)); err != nil {
		return e, err
	}
	if e.Date, err = parseCellDate(r.Get(ColDate)); err != nil {
		return e, err
	}
	e.CoachID = ledger.NormalizeID(r.Get(ColCoach))
	e.PaymentMethod = model.PaymentMethod(r.Get(ColPayment))
	e.TransferLast5 = ledger.NormalizeID(r.Get(ColTransferLast5))
	e.Time = parseCellTime(r.Get(ColTime))
	e.Remarks = r.Get(ColRemarks)
	return e, nil
}

func encodeEvent(t *sheet.Table, e model.Event) []string {
	return t.RowFrom(map[string]string{
		ColMemberID:      e.MemberID,
		ColMemberName:    e.MemberName,
		ColPlan:          string(e.Plan),
		ColSessions:      strconv.Itoa(e.SessionDelta),
		ColUnitPrice:     e.UnitPrice.String(),
		ColTotalAmount:   e.TotalAmount.String(),
		ColCoach:         e.CoachID,
		ColPayment:       string(e.PaymentMethod),
		ColTransferLast5: e.TransferLast5,
		ColDate:          formatDate(e.Date),
		ColTime:          e.Time,
		ColRemarks:       e.Remarks,
	})
}

func decodeMember(r sheet.Record) (model.Member, error) {
	m := model.Member{
		MemberID: ledger.NormalizeID(r.Get(ColMemberID)),
		Name:     r.Get(ColMemberName),
		Phone:    ledger.NormalizeID(r.Get(ColPhone)),
		JoinTime: parseCellTime(r.Get(ColJoinTime)),
		CoachID:  ledger.NormalizeID(r.Get(ColCoach)),
		Remarks:  r.Get(ColRemarks),
	}
	var err error
	if m.Birthday, err = parseOptionalDate(r.Get(ColBirthday)); err != nil {
		return m, err
	}
	if m.JoinDate, err = parseOptionalDate(r.Get(ColJoinDate)); err != nil {
		return m, err
	}
	return m, nil
}

func encodeMember(t *sheet.Table, m model.Member) []string {
	return t.RowFrom(map[string]string{
		ColMemberID:   m.MemberID,
		ColMemberName: m.Name,
		ColBirthday:   formatDate(m.Birthday),
		ColPhone:      m.Phone,
		ColJoinDate:   formatDate(m.JoinDate),
		ColJoinTime:   m.JoinTime,
		ColCoach:      m.CoachID,
		ColRemarks:    m.Remarks,
	})
}

func decodeCoach(r sheet.Record) model.Coach {
	return model.Coach{
		Name:         r.Get(ColCoachName),
		CoachID:      ledger.NormalizeID(r.Get(ColCoachID)),
		MemberPrefix: ledger.NormalizeID(r.Get(ColCoachPrefix)),
	}
}

func decodeMenuItem(r sheet.Record) (model.MenuItem, error) {
	item := model.MenuItem{
		Plan: model.Plan(r.Get(ColMenuPlan)),
		Name: r.Get(ColMenuName),
	}
	var err error
	if item.Count, err = ledger.ParseCellInt(r.Get(ColMenuCount)); err != nil {
		return item, err
	}
	if item.Price, err = ledger.ParseCellDecimal(r.Get(ColMenuPrice)); err != nil {
		return item, err
	}
	return item, nil
}

func decodeMainRow(r sheet.Record) (model.MainRow, error) {
	row := model.MainRow{
		MemberID: ledger.NormalizeID(r.Get(ColMemberID)),
		Name:     r.Get(ColMemberName),
		Phone:    ledger.NormalizeID(r.Get(ColPhone)),
		Plan:     model.Plan(r.Get(ColPlan)),
	}
	var err error
	if row.Birthday, err = parseOptionalDate(r.Get(ColBirthday)); err != nil {
		return row, err
	}
	if row.RemainingSessions, err = ledger.ParseCellInt(r.Get(ColRemainingSessions)); err != nil {
		return row, err
	}
	if row.AverageUnitPrice, err = ledger.ParseCellDecimal(r.Get(ColAverageUnitPrice)); err != nil {
		return row, err
	}
	if row.RemainingPrepaid, err = ledger.ParseCellDecimal(r.Get(ColRemainingPrepaid)); err != nil {
		return row, err
	}
	if row.LastTransactionDate, err = parseOptionalDate(r.Get(ColLastTransaction)); err != nil {
		return row, err
	}
	return row, nil
}

func encodeMainRow(t *sheet.Table, row model.MainRow) []string {
	return t.RowFrom(map[string]string{
		ColMemberID:          row.MemberID,
		ColMemberName:        row.Name,
		ColBirthday:          formatDate(row.Birthday),
		ColPhone:             row.Phone,
		ColPlan:              string(row.Plan),
		ColRemainingSessions: strconv.Itoa(row.RemainingSessions),
		ColAverageUnitPrice:  row.AverageUnitPrice.StringFixed(2),
		ColRemainingPrepaid:  row.RemainingPrepaid.String(),
		ColLastTransaction:   formatDate(row.LastTransactionDate),
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

// parseCellDate reads a typed date or an Excel serial day number.
func parseCellDate(raw string) (time.Time, error) {
	if t, err := ledger.ParseDate(raw); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial < 1 {
		return time.Time{}, fmt.Errorf("%w: date: cannot parse %q", ledger.ErrInvalidInput, raw)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date: %v", ledger.ErrInvalidInput, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseOptionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseCellDate(raw)
}

// parseCellTime keeps a typed time and converts an Excel day fraction.
func parseCellTime(raw string) string {
	frac, err := strconv.ParseFloat(raw, 64)
	if err != nil || frac < 0 || frac >= 1 {
		return raw
	}
	secs := decimal.NewFromFloat(frac * 86400).Round(0).IntPart()
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(secs) * time.Second).Format(model.TimeLayout)
}
