package handler

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	tele "gopkg.in/telebot.v3"

	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/service"
)

// pendingRefund is a refund preview waiting for its confirm button.
type pendingRefund struct {
	event  model.Event
	userID int64
}

// HandleAddMember handles the /add_member command.
func (h *LedgerHandler) HandleAddMember(c tele.Context) error {
	return h.begin(c, func(coaches []string) *form.Form {
		return addMemberForm(coaches, h.svc.Now)
	})
}

// HandleBuy handles the /buy command.
func (h *LedgerHandler) HandleBuy(c tele.Context) error {
	return h.begin(c, purchaseForm)
}

// HandleCustom handles the /custom command.
func (h *LedgerHandler) HandleCustom(c tele.Context) error {
	return h.begin(c, customForm)
}

// HandleConsume handles the /consume command.
func (h *LedgerHandler) HandleConsume(c tele.Context) error {
	return h.begin(c, consumeForm)
}

// HandleRefund handles the /refund command.
func (h *LedgerHandler) HandleRefund(c tele.Context) error {
	return h.begin(c, refundForm)
}

// HandleCancel handles the /cancel command.
func (h *LedgerHandler) HandleCancel(c tele.Context) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	if !h.sessions.Cancel(key) {
		return c.Reply("ℹ️ 目前沒有進行中的操作", &tele.ReplyMarkup{RemoveKeyboard: true})
	}
	return c.Reply(FormatPrompt(form.Step{State: form.Cancelled}), &tele.ReplyMarkup{RemoveKeyboard: true})
}

// begin starts a form whose first field lists the coaches.
func (h *LedgerHandler) begin(c tele.Context, build func(coaches []string) *form.Form) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	ctx, cancel := requestContext()
	defer cancel()

	coaches, err := h.svc.Coaches(ctx)
	if err != nil {
		return replyError(c, err)
	}
	if len(coaches) == 0 {
		return c.Reply("❌ 教練名單是空的，請先在教練工作表新增教練")
	}
	names := lo.Map(coaches, func(co model.Coach, _ int) string { return co.Name })

	step := h.sessions.Begin(key, build(names))
	return c.Reply(FormatPrompt(step), promptMarkup(step))
}

// HandleText feeds plain messages to the sender's active form.
func (h *LedgerHandler) HandleText(c tele.Context) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	session, step, active := h.sessions.Feed(key, c.Text())
	if !active {
		return nil
	}

	switch step.State {
	case form.Completed:
		return h.complete(c, session.Form().Name, step.Values)
	case form.Cancelled:
		return c.Reply(FormatPrompt(step), &tele.ReplyMarkup{RemoveKeyboard: true})
	default:
		return c.Reply(FormatPrompt(step), promptMarkup(step))
	}
}

// complete runs the operation behind a filled form.
func (h *LedgerHandler) complete(c tele.Context, name string, v form.Values) error {
	ctx, cancel := requestContext()
	defer cancel()

	switch name {
	case formAddMember:
		res, err := h.svc.AddMember(ctx, service.AddMemberRequest{
			Suffix:    v[keySuffix],
			Name:      v[keyName],
			Birthday:  v[keyBirthday],
			Phone:     v[keyPhone],
			CoachName: v[keyCoach],
			Remarks:   v[keyRemarks],
		})
		if err != nil {
			return replyError(c, err)
		}
		return replyResult(c, FormatMember(*res.Member), res)

	case formPurchase:
		res, err := h.svc.Purchase(ctx, service.PurchaseRequest{
			MemberID:      v[keyMemberID],
			Plan:          model.Plan(v[keyPlan]),
			Tier:          parseSessions(v[keyTier]),
			Payment:       model.PaymentMethod(v[keyPayment]),
			TransferLast5: v[keyLast5],
			CoachName:     v[keyCoach],
			Remarks:       v[keyRemarks],
		})
		if err != nil {
			return replyError(c, err)
		}
		return replyResult(c, FormatPurchase(res.Events[0]), res)

	case formCustom:
		res, err := h.svc.CustomCourse(ctx, service.CustomCourseRequest{
			MemberID:      v[keyMemberID],
			Sessions:      parseSessions(v[keySessions]),
			UnitPrice:     parsePrice(v[keyUnitPrice]),
			Payment:       model.PaymentMethod(v[keyPayment]),
			TransferLast5: v[keyLast5],
			CoachName:     v[keyCoach],
			Remarks:       v[keyRemarks],
		})
		if err != nil {
			return replyError(c, err)
		}
		return replyResult(c, FormatPurchase(res.Events[0]), res)

	case formConsume:
		res, err := h.svc.Consume(ctx, service.ConsumeRequest{
			MemberIDs: strings.Split(v[keyMemberIDs], ","),
			Plan:      model.Plan(v[keyPlan]),
			CoachName: v[keyCoach],
		})
		if err != nil {
			return replyError(c, err)
		}
		return replyResult(c, FormatConsumption(res.Events), res)

	case formRefund:
		return h.previewRefund(c, service.RefundRequest{
			MemberID:  v[keyMemberID],
			Plan:      model.Plan(v[keyPlan]),
			CoachName: v[keyCoach],
		})

	default:
		log.Error().Str("form", name).Msg("Completed form has no handler")
		return nil
	}
}

// previewRefund shows the refund amounts with confirm/cancel buttons.
func (h *LedgerHandler) previewRefund(c tele.Context, req service.RefundRequest) error {
	ctx, cancel := requestContext()
	defer cancel()

	preview, err := h.svc.PrepareRefund(ctx, req)
	if err != nil {
		return replyError(c, err)
	}

	token := uuid.NewString()
	h.refunds.SetDefault(token, pendingRefund{event: preview, userID: c.Sender().ID})
	log.Info().
		Str("member_id", preview.MemberID).
		Str("plan", string(preview.Plan)).
		Str("token", token).
		Msg("Refund preview issued")
	return c.Reply(FormatRefundPreview(preview), refundMarkup(token))
}

// HandleRefundCallback handles the refund confirm/cancel buttons.
func (h *LedgerHandler) HandleRefundCallback(c tele.Context) error {
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	confirm, token, ok := parseRefundCallback(callback.Data)
	if !ok {
		return c.Respond()
	}
	v, found := h.refunds.Get(token)
	if !found {
		return c.Respond(&tele.CallbackResponse{Text: "⌛ 退費確認已過期，請重新執行 /refund", ShowAlert: true})
	}
	pending := v.(pendingRefund)
	if pending.userID != sender.ID {
		return c.Respond(&tele.CallbackResponse{Text: "❌ 只有發起退費的人可以確認"})
	}
	h.refunds.Delete(token)

	if !confirm {
		_ = c.Respond()
		return c.Edit("🚫 已取消退費")
	}

	ctx, cancel := requestContext()
	defer cancel()
	res, err := h.svc.ExecuteRefund(ctx, pending.event)
	if err != nil {
		_ = c.Respond()
		return c.Edit(ErrorMessage(err))
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "✅ 退費完成"})
	return c.Edit(FormatRefund(res.Events[0]) + FormatWarnings(res.Warnings))
}
