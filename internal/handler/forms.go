package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
)

// Form names, used to dispatch a completed form.
const (
	formAddMember = "add_member"
	formPurchase  = "purchase"
	formCustom    = "custom"
	formConsume   = "consume"
	formRefund    = "refund"
)

// Field keys.
const (
	keyCoach     = "coach"
	keySuffix    = "suffix"
	keyName      = "name"
	keyBirthday  = "birthday"
	keyPhone     = "phone"
	keyMemberID  = "member_id"
	keyMemberIDs = "member_ids"
	keyPlan      = "plan"
	keyTier      = "tier"
	keySessions  = "sessions"
	keyUnitPrice = "unit_price"
	keyPayment   = "payment"
	keyLast5     = "transfer_last5"
	keyRemarks   = "remarks"
)

const cancelHint = "\n\n（輸入 * 取消）"

func coachField(coaches []string) form.Field {
	return form.Field{
		Key:     keyCoach,
		Prompt:  "👤 請選擇教練",
		Options: coaches,
		Parse:   form.Choice(coaches...),
	}
}

func memberIDField() form.Field {
	return form.Field{
		Key:    keyMemberID,
		Prompt: "🆔 請輸入會員編號",
		Parse: form.Text(func(raw string) (string, error) {
			id := ledger.NormalizeID(raw)
			if id == "" {
				return "", ledger.ErrInvalidInput
			}
			return id, nil
		}),
	}
}

func paymentFields() []form.Field {
	payments := lo.Map(model.PurchasePayments(), func(p model.PaymentMethod, _ int) string { return string(p) })
	return []form.Field{
		{
			Key:     keyPayment,
			Prompt:  "💳 付款方式",
			Options: payments,
			Parse: form.Text(func(raw string) (string, error) {
				p, err := ledger.ParsePayment(raw)
				return string(p), err
			}),
		},
		{
			Key:    keyLast5,
			Prompt: "🏦 請輸入匯款帳號末五碼",
			Parse: form.Text(func(raw string) (string, error) {
				return ledger.TransferDigits(model.PaymentTransfer, raw)
			}),
			Skip: func(v form.Values) bool {
				return v[keyPayment] != string(model.PaymentTransfer)
			},
		},
	}
}

func remarksField() form.Field {
	return form.Field{
		Key:     keyRemarks,
		Prompt:  "📝 備註（沒有請輸入 -）",
		Options: []string{"-"},
		Parse: func(raw string, _ form.Values) mo.Result[string] {
			return mo.Ok(defaultRemarks(raw))
		},
	}
}

func addMemberForm(coaches []string, now func() time.Time) *form.Form {
	return &form.Form{
		Name: formAddMember,
		Fields: []form.Field{
			coachField(coaches),
			{
				Key:    keySuffix,
				Prompt: "🔢 請輸入會員編號末 2~3 碼",
				Parse: form.Text(func(raw string) (string, error) {
					if _, err := ledger.BuildMemberID("", raw); err != nil {
						return "", err
					}
					return strings.TrimSpace(raw), nil
				}),
			},
			{Key: keyName, Prompt: "📛 請輸入姓名", Parse: form.Text(ledger.ValidateName)},
			{
				Key:    keyBirthday,
				Prompt: "🎂 請輸入生日（YYYY-MM-DD）",
				Parse: form.Text(func(raw string) (string, error) {
					d, err := ledger.ParseBirthday(raw, now())
					if err != nil {
						return "", err
					}
					return d.Format(model.DateLayout), nil
				}),
			},
			{Key: keyPhone, Prompt: "📱 請輸入電話", Parse: form.Text(ledger.ValidatePhone)},
			remarksField(),
		},
	}
}

func planField(plans []model.Plan) form.Field {
	options := lo.Map(plans, func(p model.Plan, _ int) string { return string(p) })
	return form.Field{
		Key:     keyPlan,
		Prompt:  "📋 請選擇方案（A 一對一、B 一對二、C 團體）",
		Options: options,
		Parse: form.Text(func(raw string) (string, error) {
			p, err := ledger.ParsePlan(raw)
			if err != nil {
				return "", err
			}
			if !lo.Contains(plans, p) {
				return "", ledger.ErrInvalidInput
			}
			return string(p), nil
		}),
	}
}

func purchaseForm(coaches []string) *form.Form {
	tiers := lo.Map(ledger.PurchaseTiers, func(n int, _ int) string { return strconv.Itoa(n) })
	fields := []form.Field{
		coachField(coaches),
		memberIDField(),
		planField(model.StandardPlans()),
		{
			Key:     keyTier,
			Prompt:  "🔢 購買堂數（買 16 送 1，團體課程最多 8 堂）",
			Options: tiers,
			Parse: func(raw string, v form.Values) mo.Result[string] {
				tier, err := ledger.ParseTier(raw)
				if err != nil {
					return mo.Err[string](err)
				}
				if _, err := ledger.PromoteTier(model.Plan(v[keyPlan]), tier); err != nil {
					return mo.Err[string](err)
				}
				return mo.Ok(strconv.Itoa(tier))
			},
		},
	}
	fields = append(fields, paymentFields()...)
	fields = append(fields, remarksField())
	return &form.Form{Name: formPurchase, Fields: fields}
}

func customForm(coaches []string) *form.Form {
	fields := []form.Field{
		coachField(coaches),
		memberIDField(),
		{
			Key:    keySessions,
			Prompt: "🔢 請輸入堂數",
			Parse: form.Text(func(raw string) (string, error) {
				n, err := ledger.ParsePositiveInt("sessions", raw)
				return strconv.Itoa(n), err
			}),
		},
		{
			Key:    keyUnitPrice,
			Prompt: "💵 請輸入每堂單價",
			Parse: form.Text(func(raw string) (string, error) {
				d, err := ledger.ParseCellDecimal(raw)
				if err != nil {
					return "", err
				}
				if !d.IsPositive() {
					return "", ledger.ErrInvalidInput
				}
				return d.String(), nil
			}),
		},
	}
	fields = append(fields, paymentFields()...)
	fields = append(fields, remarksField())
	return &form.Form{Name: formCustom, Fields: fields}
}

func consumeForm(coaches []string) *form.Form {
	return &form.Form{
		Name: formConsume,
		Fields: []form.Field{
			coachField(coaches),
			planField(append(model.StandardPlans(), model.PlanCustom)),
			{
				Key:    keyMemberIDs,
				Prompt: "👥 請輸入上課會員編號，多位以空白或逗號分隔",
				Parse: form.Text(func(raw string) (string, error) {
					ids, err := ledger.ParseMemberIDs(raw)
					return strings.Join(ids, ","), err
				}),
			},
		},
	}
}

func refundForm(coaches []string) *form.Form {
	return &form.Form{
		Name: formRefund,
		Fields: []form.Field{
			coachField(coaches),
			memberIDField(),
			planField(append(model.StandardPlans(), model.PlanCustom)),
		},
	}
}

// parseSessions reads a count stored by a form field.
func parseSessions(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

// parsePrice reads a unit price stored by a form field.
func parsePrice(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}
