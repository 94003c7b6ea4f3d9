package handler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// HelpText lists the bot commands.
const HelpText = "🏋️ 會員課程帳本\n" + separator + "\n" +
	"/add_member - 新增會員\n" +
	"/buy - 購買課程（買 16 送 1）\n" +
	"/custom - 特殊課程\n" +
	"/consume - 上課扣堂\n" +
	"/refund - 退費（整筆歸零）\n" +
	"/balance <會員編號> - 查詢餘額\n" +
	"/members - 會員列表\n" +
	"/birthday - 本月壽星\n" +
	"/cancel - 取消目前操作（或輸入 *）\n" +
	separator + "\n" +
	"管理員:\n" +
	"/summary <密碼> - 會員總表\n" +
	"/recompute - 重新計算主表\n" +
	"/backup - 立即備份\n" +
	"/reload - 重新讀取教練與價目表"

// HandleHelp handles /start and /help.
func (h *LedgerHandler) HandleHelp(c tele.Context) error {
	return c.Reply(HelpText)
}

// HandleBalance handles the /balance command.
// Format: /balance <member_id>
func (h *LedgerHandler) HandleBalance(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Reply(usage("/balance", "<會員編號>"))
	}
	ctx, cancel := requestContext()
	defer cancel()

	b, err := h.svc.Balance(ctx, args[0])
	if err != nil {
		return replyError(c, err)
	}
	return c.Reply(FormatBalance(b))
}

// HandleMembers handles the /members command.
func (h *LedgerHandler) HandleMembers(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	entries, err := h.svc.Roster(ctx)
	if err != nil {
		return replyError(c, err)
	}
	for _, part := range FormatRoster(entries) {
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

// HandleSummary handles the /summary command.
// Format: /summary <password>
func (h *LedgerHandler) HandleSummary(c tele.Context) error {
	args := c.Args()
	// The password should not stay in the chat history.
	if err := c.Delete(); err != nil {
		log.Debug().Err(err).Msg("Could not delete summary request")
	}
	if len(args) != 1 {
		return c.Send(usage("/summary", "<密碼>"))
	}
	ctx, cancel := requestContext()
	defer cancel()

	s, err := h.svc.Summary(ctx, args[0])
	if err != nil {
		return c.Send(ErrorMessage(err))
	}
	for _, part := range FormatSummary(s) {
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

// HandleBirthday handles the /birthday command.
func (h *LedgerHandler) HandleBirthday(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	rows, err := h.svc.Birthdays(ctx)
	if err != nil {
		return replyError(c, err)
	}
	return c.Reply(FormatBirthdays(rows, h.svc.Now().Month()))
}

// HandleRecompute handles the /recompute command.
func (h *LedgerHandler) HandleRecompute(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	rows, err := h.svc.Recompute(ctx)
	if err != nil {
		return replyError(c, err)
	}
	return c.Reply(fmt.Sprintf("✅ 主表已重新計算，共 %d 筆", len(rows)))
}

// HandleBackup handles the /backup command.
func (h *LedgerHandler) HandleBackup(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	res, err := h.svc.Backup(ctx)
	if err != nil {
		return replyError(c, err)
	}
	msg := "✅ 備份完成\n💾 " + res.String()
	if len(res.Pruned) > 0 {
		msg += fmt.Sprintf("\n🗑 已清除舊備份 %d 份", len(res.Pruned))
	}
	return c.Reply(msg)
}

// HandleReload handles the /reload command.
func (h *LedgerHandler) HandleReload(c tele.Context) error {
	h.svc.Reload()
	ctx, cancel := requestContext()
	defer cancel()

	coaches, err := h.svc.Coaches(ctx)
	if err != nil {
		return replyError(c, err)
	}
	names := make([]string, len(coaches))
	for i, co := range coaches {
		names[i] = co.Name
	}
	return c.Reply("✅ 已重新讀取\n👤 教練: " + strings.Join(names, "、"))
}
