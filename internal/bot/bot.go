// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"gym-ledger-bot/internal/config"
	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/handler"
	"gym-ledger-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	ledgerHandler *handler.LedgerHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config        *config.Config
	LedgerService *service.LedgerService
	Sessions      *form.Sessions
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := deps.Config.Bot.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler returned an error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:           teleBot,
		cfg:           deps.Config,
		ledgerHandler: handler.NewLedgerHandler(deps.LedgerService, deps.Sessions, deps.Config.Cache.FormTTL),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(StaffMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	h := b.ledgerHandler

	b.bot.Handle("/start", h.HandleHelp)
	b.bot.Handle("/help", h.HandleHelp)
	b.bot.Handle("/cancel", h.HandleCancel)

	// Multi-step operations
	b.bot.Handle("/add_member", h.HandleAddMember)
	b.bot.Handle("/buy", h.HandleBuy)
	b.bot.Handle("/custom", h.HandleCustom)
	b.bot.Handle("/consume", h.HandleConsume)
	b.bot.Handle("/refund", h.HandleRefund)

	// Lookups
	b.bot.Handle("/balance", h.HandleBalance)
	b.bot.Handle("/members", h.HandleMembers)
	b.bot.Handle("/birthday", h.HandleBirthday)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/summary", h.HandleSummary)
	adminGroup.Handle("/recompute", h.HandleRecompute)
	adminGroup.Handle("/backup", h.HandleBackup)
	adminGroup.Handle("/reload", h.HandleReload)

	// Form answers arrive as plain text
	b.bot.Handle(tele.OnText, h.HandleText)
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	if strings.HasPrefix(data, "refund_") {
		return b.ledgerHandler.HandleRefundCallback(c)
	}
	return c.Respond()
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
