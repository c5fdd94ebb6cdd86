package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/calendar"
	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/ledger"
	"github.com/ykvlv/medreminder-bot/internal/store"
	"github.com/ykvlv/medreminder-bot/internal/wizard"
)

// ensureUser returns the user for chatID, registering it with the default
// timezone on first contact. created reports whether it was just registered.
func (r *Router) ensureUser(ctx context.Context, chatID int64, name string) (u *domain.User, created bool, err error) {
	u, err = r.repo.GetUserByChatID(ctx, chatID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	u = &domain.User{ChatID: chatID, FirstName: name, TZ: r.defaultTZ}
	if err := r.repo.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	r.log.Info("user registered", zap.Int64("chatID", chatID), zap.String("tz", u.TZ))
	return u, true, nil
}

// lookupUser returns the registered user or tells the chat to /start.
func (r *Router) lookupUser(ctx context.Context, chatID int64) (*domain.User, bool) {
	u, err := r.repo.GetUserByChatID(ctx, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.sendText(ctx, chatID, notRegisteredText)
		return nil, false
	case err != nil:
		r.log.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(ctx, chatID, genericErrorText)
		return nil, false
	}
	return u, true
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64, name string) {
	_, created, err := r.ensureUser(ctx, chatID, name)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(ctx, chatID, profileErrorText)
		return
	}
	text := alreadyRegisteredText
	if created {
		text = startText
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	r.deliver(ctx, msg)
}

func (r *Router) handleList(ctx context.Context, chatID int64) {
	u, ok := r.lookupUser(ctx, chatID)
	if !ok {
		return
	}
	meds, err := r.repo.ListActiveMedications(ctx, u.ID)
	if err != nil {
		r.log.Error("list medications failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(ctx, chatID, genericErrorText)
		return
	}
	if len(meds) == 0 {
		r.sendText(ctx, chatID, noMedicationsText)
		return
	}
	r.sendText(ctx, chatID, medicationListText(meds))
}

func (r *Router) handleStats(ctx context.Context, chatID int64) {
	u, ok := r.lookupUser(ctx, chatID)
	if !ok {
		return
	}
	today := u.Today(r.now())
	weekStart := domain.AddDays(today, -calendar.FirstColumn(today))
	weekEnd := domain.AddDays(weekStart, 6)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	periods := []struct {
		title    string
		from, to time.Time
	}{
		{fmt.Sprintf("📅 This week (%s - %s)", weekStart.Format(displayShort), weekEnd.Format(displayShort)), weekStart, weekEnd},
		{fmt.Sprintf("📆 This month (%s)", monthStart.Format("January 2006")), monthStart, monthEnd},
		{"📈 All time", time.Time{}, time.Time{}},
	}
	groups := make([]adherence, 0, len(periods))
	for _, p := range periods {
		c, err := r.repo.CountIntakes(ctx, u.ID, p.from, p.to)
		if err != nil {
			r.log.Error("count intakes failed", zap.Int64("chatID", chatID), zap.Error(err))
			r.sendText(ctx, chatID, genericErrorText)
			return
		}
		groups = append(groups, adherence{title: p.title, confirmed: c.Confirmed, total: c.Total})
	}
	r.sendText(ctx, chatID, statsText(groups))
}

// --- Delete flow ---

func (r *Router) handleDelete(ctx context.Context, chatID int64) {
	u, ok := r.lookupUser(ctx, chatID)
	if !ok {
		return
	}
	meds, err := r.repo.ListActiveMedications(ctx, u.ID)
	if err != nil {
		r.log.Error("list medications failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(ctx, chatID, genericErrorText)
		return
	}
	if len(meds) == 0 {
		r.sendText(ctx, chatID, deleteNothingText)
		return
	}
	msg := tgbotapi.NewMessage(chatID, deleteChooseText)
	msg.ReplyMarkup = inlineKeyboard(deleteKeyboard(meds))
	r.deliver(ctx, msg)
}

func (r *Router) handleDeleteAction(ctx context.Context, cb *tgbotapi.CallbackQuery, cmd action.Command) {
	chatID := cb.Message.Chat.ID
	if cmd.Kind == action.KindDeleteCancel {
		r.answerCallback(cb.ID, "")
		r.editText(ctx, chatID, cb.Message.MessageID, deleteCancelled)
		return
	}

	u, err := r.repo.GetUserByChatID(ctx, chatID)
	if err == nil {
		err = r.repo.DeactivateMedication(ctx, u.ID, cmd.MedicationID)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.answerCallback(cb.ID, "Medication not found")
		return
	case err != nil:
		r.log.Error("deactivate medication failed",
			zap.Int64("chatID", chatID),
			zap.Int64("medicationID", cmd.MedicationID),
			zap.Error(err),
		)
		r.answerCallback(cb.ID, toastError)
		return
	}
	r.log.Info("medication deleted", zap.Int64("chatID", chatID), zap.Int64("medicationID", cmd.MedicationID))
	r.answerCallback(cb.ID, "Deleted")
	r.editText(ctx, chatID, cb.Message.MessageID, deletedText)
}

// --- Reminder responses ---

func (r *Router) handleIntakeAction(ctx context.Context, cb *tgbotapi.CallbackQuery, cmd action.Command) {
	chatID := cb.Message.Chat.ID

	var (
		err    error
		toast  string
		suffix string
	)
	switch cmd.Kind {
	case action.KindConfirm:
		err = r.ledger.Confirm(ctx, chatID, cmd.ScheduleID, cmd.Date)
		toast, suffix = toastTaken, takenSuffix
	case action.KindSkip:
		err = r.ledger.Skip(ctx, chatID, cmd.ScheduleID, cmd.Date)
		toast, suffix = toastSkipped, skippedSuffix
	case action.KindSnooze:
		var until time.Time
		until, err = r.ledger.Snooze(ctx, chatID, cmd.ScheduleID, cmd.Date)
		if err == nil {
			toast = fmt.Sprintf(toastSnoozed, r.localClock(ctx, chatID, until))
		}
	}

	switch {
	case errors.Is(err, ledger.ErrNotFound):
		r.answerCallback(cb.ID, toastNotFound)
		return
	case errors.Is(err, ledger.ErrAlreadyResolved):
		r.answerCallback(cb.ID, toastResolved)
		return
	case err != nil:
		r.log.Error("intake response failed",
			zap.Int64("chatID", chatID),
			zap.String("kind", string(cmd.Kind)),
			zap.Int64("scheduleID", cmd.ScheduleID),
			zap.Error(err),
		)
		r.answerCallback(cb.ID, toastError)
		return
	}

	r.answerCallback(cb.ID, toast)
	if suffix != "" {
		// Editing the text without markup also drops the buttons.
		r.editText(ctx, chatID, cb.Message.MessageID, cb.Message.Text+suffix)
	}
}

// localClock formats t as HH:MM in the chat user's zone.
func (r *Router) localClock(ctx context.Context, chatID int64, t time.Time) string {
	loc := time.UTC
	if u, err := r.repo.GetUserByChatID(ctx, chatID); err == nil {
		loc = u.Location()
	}
	return t.In(loc).Format(domain.ClockLayout)
}

// --- Wizard ---

func (r *Router) handleAdd(ctx context.Context, chatID int64, name string) {
	u, _, err := r.ensureUser(ctx, chatID, name)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(ctx, chatID, genericErrorText)
		return
	}
	r.render(ctx, chatID, 0, r.wizard.Begin(chatID, *u))
}

func (r *Router) handleCancel(ctx context.Context, chatID int64) {
	out, ok := r.wizard.Cancel(chatID)
	if !ok {
		r.sendText(ctx, chatID, nothingToCancel)
		return
	}
	r.render(ctx, chatID, 0, out)
}

func (r *Router) handleWizardEvent(ctx context.Context, chatID int64, ev wizard.Event) {
	out, err := r.wizard.Handle(ctx, chatID, ev)
	if err != nil && !errors.Is(err, wizard.ErrNoSession) {
		r.log.Error("wizard failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
	r.render(ctx, chatID, 0, out)
}

func (r *Router) handleWizardAction(ctx context.Context, cb *tgbotapi.CallbackQuery, cmd action.Command) {
	chatID := cb.Message.Chat.ID
	out, err := r.wizard.Handle(ctx, chatID, wizard.Action(cmd))
	if errors.Is(err, wizard.ErrNoSession) {
		r.answerCallback(cb.ID, toastStale)
		return
	}
	if err != nil {
		r.log.Error("wizard failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
	r.answerCallback(cb.ID, out.Toast)
	r.render(ctx, chatID, cb.Message.MessageID, out)
}
