// Package ledger applies user responses (confirm, skip, snooze) to intake
// ledger rows. A row is resolved at most once and only by its owner.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/store"
)

var (
	// ErrNotFound covers unknown users, missing rows and rows owned by someone else.
	ErrNotFound = errors.New("intake not found")
	// ErrAlreadyResolved is returned for responses to CONFIRMED or MISSED rows.
	ErrAlreadyResolved = errors.New("intake already resolved")
)

// Repo is the subset of store.Repo the ledger needs.
type Repo interface {
	GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	GetIntake(ctx context.Context, scheduleID int64, date time.Time) (*domain.IntakeLog, error)
	UpdateIntakeStatus(ctx context.Context, id int64, from, to domain.IntakeStatus, at time.Time) (bool, error)
	SnoozeIntake(ctx context.Context, id int64, until time.Time) (bool, error)
}

// Ledger resolves reminder responses.
type Ledger struct {
	repo        Repo
	log         *zap.Logger
	snoozeDelay time.Duration
	now         func() time.Time
}

// New creates a Ledger. snoozeDelay is how long a snoozed reminder waits.
func New(repo Repo, log *zap.Logger, snoozeDelay time.Duration) *Ledger {
	return &Ledger{
		repo:        repo,
		log:         log,
		snoozeDelay: snoozeDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Confirm moves the row for (scheduleID, date) from SENT to CONFIRMED.
func (l *Ledger) Confirm(ctx context.Context, chatID, scheduleID int64, date time.Time) error {
	return l.transition(ctx, chatID, scheduleID, date, domain.IntakeConfirmed)
}

// Skip moves the row for (scheduleID, date) from SENT to MISSED.
func (l *Ledger) Skip(ctx context.Context, chatID, scheduleID int64, date time.Time) error {
	return l.transition(ctx, chatID, scheduleID, date, domain.IntakeMissed)
}

// Snooze asks for the reminder to be repeated after the snooze delay. The row
// stays SENT. It returns the time the reminder will be repeated.
func (l *Ledger) Snooze(ctx context.Context, chatID, scheduleID int64, date time.Time) (time.Time, error) {
	entry, err := l.owned(ctx, chatID, scheduleID, date)
	if err != nil {
		return time.Time{}, err
	}
	if entry.Status.Terminal() {
		return time.Time{}, ErrAlreadyResolved
	}
	until := l.now().Add(l.snoozeDelay).Truncate(time.Minute)
	ok, err := l.repo.SnoozeIntake(ctx, entry.ID, until)
	if err != nil {
		return time.Time{}, fmt.Errorf("snooze: %w", err)
	}
	if !ok {
		return time.Time{}, ErrAlreadyResolved
	}
	l.log.Info("intake snoozed",
		zap.Int64("scheduleID", scheduleID),
		zap.String("date", domain.FormatDate(date)),
		zap.Time("until", until),
	)
	return until, nil
}

func (l *Ledger) transition(ctx context.Context, chatID, scheduleID int64, date time.Time, to domain.IntakeStatus) error {
	entry, err := l.owned(ctx, chatID, scheduleID, date)
	if err != nil {
		return err
	}
	if !entry.Status.CanTransition(to) {
		return ErrAlreadyResolved
	}
	ok, err := l.repo.UpdateIntakeStatus(ctx, entry.ID, domain.IntakeSent, to, l.now())
	if err != nil {
		return fmt.Errorf("update intake: %w", err)
	}
	if !ok {
		// Lost a race with another response for the same row.
		return ErrAlreadyResolved
	}
	l.log.Info("intake resolved",
		zap.Int64("scheduleID", scheduleID),
		zap.String("date", domain.FormatDate(date)),
		zap.String("status", string(to)),
	)
	return nil
}

// owned loads the row and checks it belongs to the acting chat.
func (l *Ledger) owned(ctx context.Context, chatID, scheduleID int64, date time.Time) (*domain.IntakeLog, error) {
	user, err := l.repo.GetUserByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	entry, err := l.repo.GetIntake(ctx, scheduleID, domain.DateOf(date))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intake: %w", err)
	}
	if entry.UserID != user.ID {
		l.log.Warn("intake response from non-owner",
			zap.Int64("chatID", chatID),
			zap.Int64("scheduleID", scheduleID),
		)
		return nil, ErrNotFound
	}
	return entry, nil
}
