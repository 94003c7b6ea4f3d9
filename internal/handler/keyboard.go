package handler

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"gym-ledger-bot/internal/form"
)

// Callback data prefixes for the refund confirmation buttons.
const (
	CallbackRefundConfirm = "refund_ok_"
	CallbackRefundCancel  = "refund_no_"
)

// promptMarkup shows a field's options as a one-time reply keyboard,
// or removes the keyboard for free-text fields.
func promptMarkup(step form.Step) *tele.ReplyMarkup {
	if step.Field == nil || len(step.Field.Options) == 0 {
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}

	var rows []tele.Row
	var current []tele.Btn
	for _, o := range step.Field.Options {
		current = append(current, markup.Text(o))
		if len(current) == 3 {
			rows = append(rows, markup.Row(current...))
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, markup.Row(current...))
	}
	rows = append(rows, markup.Row(markup.Text(form.CancelSentinel)))
	markup.Reply(rows...)
	return markup
}

// refundMarkup builds the confirm/cancel buttons of a refund preview.
func refundMarkup(token string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ 確認退費", CallbackRefundConfirm+token),
		markup.Data("❌ 取消", CallbackRefundCancel+token),
	))
	return markup
}

// parseRefundCallback splits refund callback data into its action and token.
func parseRefundCallback(data string) (confirm bool, token string, ok bool) {
	data = strings.TrimPrefix(data, "\f")
	switch {
	case strings.HasPrefix(data, CallbackRefundConfirm):
		return true, strings.TrimPrefix(data, CallbackRefundConfirm), true
	case strings.HasPrefix(data, CallbackRefundCancel):
		return false, strings.TrimPrefix(data, CallbackRefundCancel), true
	default:
		return false, "", false
	}
}
