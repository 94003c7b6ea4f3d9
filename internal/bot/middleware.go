// Package bot provides middleware for the Telegram bot.
package bot

import (
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"gym-ledger-bot/internal/config"
)

// StaffMiddleware creates a middleware that drops updates from users who
// are not staff. Unknown users get one hint in private chat and are
// ignored in groups.
func StaffMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()
			if chat == nil || sender == nil {
				return nil
			}

			if cfg.IsStaff(sender.ID) {
				return next(c)
			}

			log.Debug().
				Int64("user_id", sender.ID).
				Int64("chat_id", chat.ID).
				Msg("Ignoring update from non-staff user")
			if chat.Type == tele.ChatPrivate && c.Callback() == nil {
				return c.Send("⛔ 此機器人僅限工作人員使用")
			}
			return nil
		}
	}
}

const adminDenied = "❌ 權限不足：需要管理員權限"

// secretCommands take a password argument that must not stay in the chat.
var secretCommands = map[string]bool{"/summary": true}

// carriesSecret reports whether a command word, with or without the
// @botname suffix, takes a password.
func carriesSecret(command string) bool {
	name, _, _ := strings.Cut(command, "@")
	return secretCommands[name]
}

// AdminMiddleware creates a middleware that checks if the user is an admin.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				command := commandOf(c)
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", command).
					Msg("Non-admin attempted admin command")
				if carriesSecret(command) {
					// The reply target is gone once the message is deleted.
					if err := c.Delete(); err != nil {
						log.Debug().Err(err).Msg("Could not delete rejected admin command")
					}
					return c.Send(adminDenied)
				}
				return c.Reply(adminDenied)
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming updates.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("command", commandOf(c)).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("command", commandOf(c)).
						Msg("Recovered from panic in handler")
					err = c.Send("❌ 發生內部錯誤，請稍後重試")
				}
			}()
			return next(c)
		}
	}
}

// commandOf returns the command word of a message for logging. Form
// answers are not logged since they hold phone numbers and birthdays.
func commandOf(c tele.Context) string {
	text := c.Text()
	if text == "" || text[0] != '/' {
		return ""
	}
	for i, r := range text {
		if r == ' ' || r == '\n' {
			return text[:i]
		}
	}
	return text
}
