package ledger

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/model"
)

var (
	phonePattern         = regexp.MustCompile(`^(09\d{8}|0\d{1,2}\d{7,8})$`)
	memberSuffixPattern  = regexp.MustCompile(`^\d{2,3}$`)
	transferDigitPattern = regexp.MustCompile(`^[0-9]{5}$`)
)

// Accepted birthday spellings, tried in order.
var dateLayouts = []string{
	model.DateLayout,
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var earliestBirthday = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// NormalizeID turns a stored identifier into its canonical string form.
// Spreadsheet cells often hold IDs as floats, so a trailing ".0" is
// stripped; "2.001" is left as is.
func NormalizeID(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), ".0")
}

// BuildMemberID concatenates a coach's member-number prefix with the
// 2–3 digit suffix typed by staff.
func BuildMemberID(coachPrefix, suffix string) (string, error) {
	suffix = strings.TrimSpace(suffix)
	if !memberSuffixPattern.MatchString(suffix) {
		return "", invalid("member_id", "suffix must be 2 or 3 digits, got %q", suffix)
	}
	return NormalizeID(coachPrefix) + suffix, nil
}

// ValidateName rejects blank member names.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "must not be empty")
	}
	return name, nil
}

// ValidatePhone checks a Taiwanese mobile or landline number.
func ValidatePhone(phone string) (string, error) {
	phone = NormalizeID(phone)
	if !phonePattern.MatchString(phone) {
		return "", invalid("phone", "%q is not a valid phone number", phone)
	}
	return phone, nil
}

// ParseDate reads a date cell or a typed date in any accepted layout.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, invalid("date", "cannot parse %q", raw)
}

// ParseBirthday parses a birthday and checks it is neither before 1900
// nor after today.
func ParseBirthday(raw string, now time.Time) (time.Time, error) {
	day, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(earliestBirthday) || day.After(today) {
		return time.Time{}, invalid("birthday", "%s is out of range", day.Format(model.DateLayout))
	}
	return day, nil
}

// ParsePlan accepts a plan code or its Chinese name.
func ParsePlan(raw string) (model.Plan, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a", "一對一":
		return model.PlanOneOnOne, nil
	case "b", "一對二":
		return model.PlanOneOnTwo, nil
	case "c", "團體", "團課", "團體課程":
		return model.PlanGroup, nil
	case "custom", string(model.PlanCustom):
		return model.PlanCustom, nil
	default:
		return "", invalid("plan", "unknown plan %q", raw)
	}
}

// ParsePayment accepts the purchase payment methods by name.
func ParsePayment(raw string) (model.PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash", "現金", "付現":
		return model.PaymentCash, nil
	case "transfer", "匯款", "轉帳":
		return model.PaymentTransfer, nil
	case "other", "其他":
		return model.PaymentOther, nil
	default:
		return "", invalid("payment", "unknown payment method %q", raw)
	}
}

// TransferDigits returns the value stored in transfer_last5. Transfers
// need exactly five digits; every other method stores "無".
func TransferDigits(payment model.PaymentMethod, raw string) (string, error) {
	if payment != model.PaymentTransfer {
		return model.NoTransferDigits, nil
	}
	raw = NormalizeID(raw)
	if !transferDigitPattern.MatchString(raw) {
		return "", invalid("transfer_last5", "transfers need the last 5 digits of the account, got %q", raw)
	}
	return raw, nil
}

// ParsePositiveInt parses a strictly positive whole number.
func ParsePositiveInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(NormalizeID(raw))
	if err != nil || n <= 0 {
		return 0, invalid(field, "must be a positive whole number, got %q", raw)
	}
	return n, nil
}

// ParseCellInt reads an integer cell that may carry a float artifact ("4.0").
func ParseCellInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, invalid("integer", "cannot parse %q", raw)
	}
	return int(d.IntPart()), nil
}

// ParseCellDecimal reads a money cell; an empty cell is zero.
func ParseCellDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("amount", "cannot parse %q", raw)
	}
	return d, nil
}
