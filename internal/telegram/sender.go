package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/scheduler"
	"github.com/ykvlv/medreminder-bot/internal/wizard"
)

// SendReminder sends a reminder with confirm/snooze/skip buttons.
// This makes Router satisfy scheduler.Sender.
func (r *Router) SendReminder(ctx context.Context, chatID int64, rem scheduler.Reminder) error {
	msg := tgbotapi.NewMessage(chatID, reminderText(rem))
	msg.ReplyMarkup = inlineKeyboard(reminderKeyboard(rem))
	return r.send(ctx, msg)
}

// send waits for the outbound rate limit and delivers c.
func (r *Router) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := r.bot.Send(c)
	return err
}

// deliver is send for interactive replies: failures are logged, not returned.
func (r *Router) deliver(ctx context.Context, c tgbotapi.Chattable) {
	if err := r.send(ctx, c); err != nil {
		r.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	r.deliver(ctx, tgbotapi.NewMessage(chatID, text))
}

func (r *Router) editText(ctx context.Context, chatID int64, messageID int, text string) {
	r.deliver(ctx, tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Debug("answer callback failed", zap.Error(err))
	}
}

// render delivers wizard output. Edits target messageID; without one they
// are sent as new messages.
func (r *Router) render(ctx context.Context, chatID int64, messageID int, out wizard.Output) {
	for _, m := range out.Messages {
		if m.Edit && messageID != 0 {
			edit := tgbotapi.NewEditMessageText(chatID, messageID, m.Text)
			if len(m.Keyboard) > 0 {
				kb := inlineKeyboard(m.Keyboard)
				edit.ReplyMarkup = &kb
			}
			r.deliver(ctx, edit)
			continue
		}
		msg := tgbotapi.NewMessage(chatID, m.Text)
		if len(m.Keyboard) > 0 {
			msg.ReplyMarkup = inlineKeyboard(m.Keyboard)
		}
		r.deliver(ctx, msg)
	}
}
