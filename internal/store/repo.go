package store

import (
	"context"
	"errors"
	"time"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// requesting user.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for users, medications and the intake ledger.
type Repo interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error)

	CreateMedication(ctx context.Context, m *domain.Medication) error
	ListActiveMedications(ctx context.Context, userID int64) ([]domain.Medication, error)
	DeactivateMedication(ctx context.Context, userID, medicationID int64) error

	FindActiveSchedulesAtTime(ctx context.Context, hhmm string) ([]DueSchedule, error)

	GetIntake(ctx context.Context, scheduleID int64, date time.Time) (*domain.IntakeLog, error)
	CreateIntakeIfAbsent(ctx context.Context, l *domain.IntakeLog) (bool, error)
	UpdateIntakeStatus(ctx context.Context, id int64, from, to domain.IntakeStatus, at time.Time) (bool, error)
	SnoozeIntake(ctx context.Context, id int64, until time.Time) (bool, error)
	ListDueSnoozes(ctx context.Context, now time.Time) ([]SnoozedIntake, error)
	ClaimSnooze(ctx context.Context, id int64, until time.Time) (bool, error)
	CountIntakes(ctx context.Context, userID int64, from, to time.Time) (IntakeCounts, error)

	Close() error
}
