package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/ledger"
	"github.com/ykvlv/medreminder-bot/internal/scheduler"
	"github.com/ykvlv/medreminder-bot/internal/store"
	"github.com/ykvlv/medreminder-bot/internal/wizard"
)

// Bot is the part of tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Options tunes the router.
type Options struct {
	DefaultTZ string  // zone assigned to new users
	SendRate  float64 // outbound messages per second
	SendBurst int
}

// Router wires Telegram updates to handlers and sends reminders.
type Router struct {
	bot       Bot
	log       *zap.Logger
	repo      store.Repo
	wizard    *wizard.Wizard
	ledger    *ledger.Ledger
	limiter   *rate.Limiter
	defaultTZ string
	now       func() time.Time
}

var _ scheduler.Sender = (*Router)(nil)

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, repo store.Repo, wiz *wizard.Wizard, ledg *ledger.Ledger, opts Options) *Router {
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	burst := opts.SendBurst
	if burst < 1 {
		burst = 1
	}
	tz := opts.DefaultTZ
	if tz == "" {
		tz = "UTC"
	}
	return &Router{
		bot:       bot,
		log:       log,
		repo:      repo,
		wizard:    wiz,
		ledger:    ledg,
		limiter:   rate.NewLimiter(limit, burst),
		defaultTZ: tz,
		now:       time.Now,
	}
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	name, ok := command(text)
	if !ok {
		// Free-form text feeds the wizard when one is running.
		if r.wizard.Active(chatID) {
			r.handleWizardEvent(ctx, chatID, wizard.Text(text))
			return
		}
		r.sendText(ctx, chatID, useHelpText)
		return
	}

	switch name {
	case "start":
		r.handleStart(ctx, chatID, firstName(msg))
	case "help":
		r.sendText(ctx, chatID, helpText)
	case "add":
		r.handleAdd(ctx, chatID, firstName(msg))
	case "cancel":
		r.handleCancel(ctx, chatID)
	case "skip":
		// Only the description step is optional.
		if st, ok := r.wizard.State(chatID); !ok || st != wizard.StateAwaitDescription {
			r.sendText(ctx, chatID, nothingToSkip)
			return
		}
		r.handleWizardEvent(ctx, chatID, wizard.Skip())
	case "list":
		r.handleList(ctx, chatID)
	case "stats":
		r.handleStats(ctx, chatID)
	case "delete":
		r.handleDelete(ctx, chatID)
	default:
		r.sendText(ctx, chatID, unknownCommandText)
	}
}

// handleCallback decodes the button payload once and dispatches on its kind.
func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		r.answerCallback(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID

	cmd, err := action.Parse(cb.Data)
	if err != nil {
		r.log.Warn("unknown callback", zap.Int64("chatID", chatID), zap.String("data", cb.Data))
		r.answerCallback(cb.ID, toastStale)
		return
	}

	switch cmd.Kind {
	case action.KindIgnore:
		r.answerCallback(cb.ID, "")
	case action.KindConfirm, action.KindSkip, action.KindSnooze:
		r.handleIntakeAction(ctx, cb, cmd)
	case action.KindDelete, action.KindDeleteCancel:
		r.handleDeleteAction(ctx, cb, cmd)
	default:
		r.handleWizardAction(ctx, cb, cmd)
	}
}

// command extracts the command name from "/name@bot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), name != ""
}

func firstName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	return msg.From.FirstName
}
