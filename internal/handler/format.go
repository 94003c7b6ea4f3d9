package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/service"
)

const separator = "━━━━━━━━━━━━━━━"

// maxMessageLen keeps a message under Telegram's 4096 UTF-16 unit limit.
const maxMessageLen = 4000

// FormatMoney renders an amount with thousands separators and 2 places.
func FormatMoney(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(model.DateLayout)
}

// FormatRow renders one main-table row on a single line.
func FormatRow(r model.MainRow) string {
	return fmt.Sprintf("📋 %s %s｜剩 %d 堂｜預收 %s｜均價 %s｜最後 %s",
		r.Plan, r.Plan.DisplayName(), r.RemainingSessions,
		FormatMoney(r.RemainingPrepaid), FormatMoney(r.AverageUnitPrice),
		formatDate(r.LastTransactionDate))
}

// FormatBalance renders one member's balances.
func FormatBalance(b service.MemberBalance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s（%s）\n", b.Member.Name, b.Member.MemberID)
	fmt.Fprintf(&sb, "📱 %s｜🎂 %s\n", b.Member.Phone, formatDate(b.Member.Birthday))
	sb.WriteString(separator + "\n")
	if len(b.Rows) == 0 {
		sb.WriteString("尚無購課紀錄")
		return sb.String()
	}
	for i, r := range b.Rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(FormatRow(r))
	}
	return sb.String()
}

// FormatMember confirms a newly added member.
func FormatMember(m model.Member) string {
	return fmt.Sprintf(
		"✅ 新增會員成功\n\n"+
			"🆔 編號: %s\n"+
			"📛 姓名: %s\n"+
			"🎂 生日: %s\n"+
			"📱 電話: %s\n"+
			"👤 教練編號: %s",
		m.MemberID, m.Name, formatDate(m.Birthday), m.Phone, m.CoachID,
	)
}

// FormatPurchase confirms a purchase or custom course.
func FormatPurchase(e model.Event) string {
	payment := string(e.PaymentMethod)
	if e.PaymentMethod == model.PaymentTransfer {
		payment += "（末五碼 " + e.TransferLast5 + "）"
	}
	return fmt.Sprintf(
		"✅ 購課成功\n\n"+
			"👤 %s（%s）\n"+
			"📋 方案: %s %s\n"+
			"🔢 堂數: %d\n"+
			"💵 單價: %s\n"+
			"💰 總額: %s\n"+
			"💳 付款: %s",
		e.MemberName, e.MemberID, e.Plan, e.Plan.DisplayName(), e.SessionDelta,
		FormatMoney(e.UnitPrice), FormatMoney(e.TotalAmount), payment,
	)
}

// FormatConsumption confirms a class batch.
func FormatConsumption(events []model.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ 上課扣堂成功（%d 位）\n%s", len(events), separator)
	for _, e := range events {
		fmt.Fprintf(&sb, "\n👤 %s（%s）%s −1 堂，扣 %s", e.MemberName, e.MemberID, e.Plan, FormatMoney(e.TotalAmount.Neg()))
	}
	return sb.String()
}

// FormatRefundPreview asks staff to confirm a refund.
func FormatRefundPreview(e model.Event) string {
	return fmt.Sprintf(
		"⚠️ 確認退費\n\n"+
			"👤 %s（%s）\n"+
			"📋 方案: %s %s\n"+
			"🔢 退回堂數: %d\n"+
			"💰 退款金額: %s\n\n"+
			"退費後此方案餘額歸零",
		e.MemberName, e.MemberID, e.Plan, e.Plan.DisplayName(),
		-e.SessionDelta, FormatMoney(e.TotalAmount.Neg()),
	)
}

// FormatRefund confirms an executed refund.
func FormatRefund(e model.Event) string {
	return fmt.Sprintf("✅ 退費完成\n\n👤 %s（%s）%s 退回 %d 堂，退款 %s",
		e.MemberName, e.MemberID, e.Plan, -e.SessionDelta, FormatMoney(e.TotalAmount.Neg()))
}

// FormatSummary renders the main-table overview. Long member lists are
// split over several messages.
func FormatSummary(s service.Summary) []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 會員總表（%s）\n%s\n", s.GeneratedAt.Format("2006-01-02 15:04"), separator)
	for _, p := range s.Plans {
		fmt.Fprintf(&sb, "📋 %s：%d 人｜剩 %d 堂｜預收 %s\n",
			p.Plan.DisplayName(), p.Members, p.Sessions, FormatMoney(p.Prepaid))
	}
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "👥 會員數: %d\n💰 預收總額: %s", s.Members, FormatMoney(s.TotalPrepaid))
	if len(s.Rows) == 0 {
		return []string{sb.String()}
	}
	sb.WriteString("\n" + separator)

	lines := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		lines[i] = fmt.Sprintf("%s %s %s｜%d 堂｜%s",
			r.MemberID, r.Name, r.Plan, r.RemainingSessions, FormatMoney(r.RemainingPrepaid))
	}
	return splitMessage(sb.String(), lines, maxMessageLen)
}

// splitMessage appends lines to head, starting a new message whenever
// the next line would push the current one past limit UTF-16 units.
func splitMessage(head string, lines []string, limit int) []string {
	var out []string
	current, size := head, utf16Len(head)
	for _, l := range lines {
		n := utf16Len(l)
		if current != "" && size+1+n > limit {
			out = append(out, current)
			current, size = "", 0
		}
		if current == "" {
			current, size = l, n
			continue
		}
		current += "\n" + l
		size += 1 + n
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// FormatRoster lists the member directory, split over several messages
// when long.
func FormatRoster(entries []service.RosterEntry) []string {
	if len(entries) == 0 {
		return []string{"👥 尚無會員資料"}
	}
	head := fmt.Sprintf("👥 會員列表（%d 位）\n%s", len(entries), separator)
	lines := make([]string, len(entries))
	for i, e := range entries {
		plans := "尚無剩餘課程"
		if len(e.ActivePlans) > 0 {
			names := make([]string, len(e.ActivePlans))
			for j, p := range e.ActivePlans {
				names[j] = string(p)
			}
			plans = "📋 " + strings.Join(names, "、")
		}
		lines[i] = fmt.Sprintf("%s %s｜📱 %s｜%s", e.Member.MemberID, e.Member.Name, e.Member.Phone, plans)
	}
	return splitMessage(head, lines, maxMessageLen)
}

// FormatBirthdays lists this month's birthdays.
func FormatBirthdays(rows []model.MainRow, month time.Month) string {
	if len(rows) == 0 {
		return fmt.Sprintf("🎂 %d 月沒有壽星", int(month))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎂 %d 月壽星（%d 位）\n%s", int(month), len(rows), separator)
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%s｜%s %s｜📱 %s", r.Birthday.Format("01-02"), r.MemberID, r.Name, r.Phone)
	}
	return sb.String()
}

// FormatBatchError names every member that blocked a class batch.
func FormatBatchError(e *ledger.BatchError) string {
	var sb strings.Builder
	sb.WriteString("❌ 扣堂失敗，全部會員都未扣堂\n" + separator)
	for _, f := range e.Failures {
		reason := "沒有此方案的購課紀錄"
		if errors.Is(f.Err, ledger.ErrInsufficientSessions) {
			reason = "剩餘堂數不足"
		}
		fmt.Fprintf(&sb, "\n👤 %s（%s）：%s", f.MemberID, f.Plan, reason)
	}
	return sb.String()
}

// FormatWarnings lists secondary failures of a saved operation.
func FormatWarnings(warnings []error) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n⚠️ 資料已儲存，但：")
	for _, w := range warnings {
		sb.WriteString("\n• " + w.Error())
	}
	return sb.String()
}

// FormatPrompt renders the next question of a form.
func FormatPrompt(step form.Step) string {
	switch step.State {
	case form.Invalid:
		return fmt.Sprintf("❌ %v\n\n%s%s", step.Err, step.Field.Prompt, cancelHint)
	case form.Cancelled:
		return "🚫 已取消，輸入的資料都已捨棄"
	case form.Prompting:
		return step.Field.Prompt + cancelHint
	default:
		return ""
	}
}
