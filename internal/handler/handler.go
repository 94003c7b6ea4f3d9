// Package handler provides Telegram bot command handlers for the ledger.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/service"
	"gym-ledger-bot/internal/sheet"
)

const handlerTimeout = time.Minute

// LedgerHandler handles the staff commands.
type LedgerHandler struct {
	svc      *service.LedgerService
	sessions *form.Sessions
	// refunds holds refund previews awaiting confirmation, keyed by token.
	refunds *cache.Cache
}

// NewLedgerHandler creates a new LedgerHandler. Pending refund previews
// expire after formTTL, like unfinished forms.
func NewLedgerHandler(svc *service.LedgerService, sessions *form.Sessions, formTTL time.Duration) *LedgerHandler {
	return &LedgerHandler{
		svc:      svc,
		sessions: sessions,
		refunds:  cache.New(formTTL, 2*formTTL),
	}
}

// sessionKey identifies the sender's form in this chat.
func sessionKey(c tele.Context) (form.Key, bool) {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return form.Key{}, false
	}
	return form.Key{ChatID: chat.ID, UserID: sender.ID}, true
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// replyError turns an operation error into a message for staff.
func replyError(c tele.Context, err error) error {
	return c.Reply(ErrorMessage(err))
}

// ErrorMessage renders an operation error by its kind.
func ErrorMessage(err error) string {
	var batch *ledger.BatchError
	if errors.As(err, &batch) {
		return FormatBatchError(batch)
	}

	switch service.Kind(err) {
	case service.KindInput:
		return "❌ 輸入格式錯誤\n" + err.Error()
	case service.KindNotFound:
		return "❌ 找不到資料\n" + err.Error()
	case service.KindRule:
		return "⚠️ 無法執行\n" + ruleMessage(err)
	case service.KindStorage:
		if errors.Is(err, sheet.ErrLocked) {
			return "🔒 檔案被占用中，請先關閉 Excel 後再試一次"
		}
		return "❌ 無法存取資料檔，請稍後重試"
	default:
		log.Error().Err(err).Msg("Unexpected handler error")
		return "❌ 發生內部錯誤，請稍後重試"
	}
}

func ruleMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrDuplicateMember):
		return "會員編號已存在"
	case errors.Is(err, ledger.ErrGroupTierLimit):
		return "團體課程一次最多購買 8 堂"
	case errors.Is(err, ledger.ErrNothingToRefund):
		return "此方案沒有剩餘堂數或金額可退"
	case errors.Is(err, ledger.ErrNegativeBalance):
		return "餘額為負，請先人工核對事件紀錄\n" + err.Error()
	case errors.Is(err, service.ErrWrongPassword):
		return "密碼錯誤"
	case errors.Is(err, service.ErrSummaryLocked):
		return "尚未設定總表密碼"
	case errors.Is(err, service.ErrStalePreview):
		return "餘額在確認前已變動，請重新執行 /refund"
	default:
		return err.Error()
	}
}

// replyResult confirms a mutation and lists its warnings.
func replyResult(c tele.Context, text string, res service.Result) error {
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString(FormatWarnings(res.Warnings))
	return c.Reply(sb.String(), &tele.ReplyMarkup{RemoveKeyboard: true})
}

func usage(cmd, args string) string {
	return fmt.Sprintf("❌ 用法: %s %s", cmd, args)
}

// defaultRemarks drops the placeholder staff type to skip remarks.
func defaultRemarks(raw string) string {
	switch strings.TrimSpace(raw) {
	case "-", "無", "skip":
		return ""
	}
	return strings.TrimSpace(raw)
}
