package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/store"
)

var testDate = time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *store.SQLiteRepo
	ledger *Ledger
	owner  *domain.User
	other  *domain.User
	intake *domain.IntakeLog
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	owner := &domain.User{ChatID: 10, TZ: "UTC"}
	other := &domain.User{ChatID: 20, TZ: "UTC"}
	require.NoError(t, repo.CreateUser(ctx, owner))
	require.NoError(t, repo.CreateUser(ctx, other))

	m := &domain.Medication{
		UserID:      owner.ID,
		Name:        "Aspirin",
		StartDate:   testDate,
		Rule:        domain.Daily(),
		DosesPerDay: 1,
		Schedule:    []domain.ScheduleEntry{{Time: "08:00", Dosage: "1 tablet"}},
	}
	require.NoError(t, repo.CreateMedication(ctx, m))

	intake := &domain.IntakeLog{
		UserID:        owner.ID,
		MedicationID:  m.ID,
		ScheduleID:    m.Schedule[0].ID,
		ScheduledDate: testDate,
		SentAt:        testDate.Add(8 * time.Hour),
	}
	created, err := repo.CreateIntakeIfAbsent(ctx, intake)
	require.NoError(t, err)
	require.True(t, created)

	f := &fixture{repo: repo, owner: owner, other: other, intake: intake}
	f.now = testDate.Add(8*time.Hour + 2*time.Minute)
	f.ledger = New(repo, zap.NewNop(), 15*time.Minute)
	f.ledger.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) status(t *testing.T) *domain.IntakeLog {
	t.Helper()
	l, err := f.repo.GetIntake(context.Background(), f.intake.ScheduleID, testDate)
	require.NoError(t, err)
	return l
}

func TestConfirm_SetsConfirmedAt(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.ledger.Confirm(context.Background(), f.owner.ChatID, f.intake.ScheduleID, testDate))

	l := f.status(t)
	assert.Equal(t, domain.IntakeConfirmed, l.Status)
	require.NotNil(t, l.ConfirmedAt)
	assert.Equal(t, f.now, *l.ConfirmedAt)
}

func TestConfirm_TwiceIsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Confirm(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate))

	err := f.ledger.Confirm(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	err = f.ledger.Skip(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, domain.IntakeConfirmed, f.status(t).Status)
}

func TestSkip_MarksMissedWithoutConfirmedAt(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.ledger.Skip(context.Background(), f.owner.ChatID, f.intake.ScheduleID, testDate))

	l := f.status(t)
	assert.Equal(t, domain.IntakeMissed, l.Status)
	assert.Nil(t, l.ConfirmedAt)
}

func TestConfirm_NonOwnerIsNotFoundAndRowUnchanged(t *testing.T) {
	f := setup(t)
	err := f.ledger.Confirm(context.Background(), f.other.ChatID, f.intake.ScheduleID, testDate)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, domain.IntakeSent, f.status(t).Status)
}

func TestConfirm_UnknownUserOrRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.ledger.Confirm(ctx, 999, f.intake.ScheduleID, testDate), ErrNotFound)
	assert.ErrorIs(t, f.ledger.Confirm(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate.AddDate(0, 0, 1)), ErrNotFound)
	assert.ErrorIs(t, f.ledger.Skip(ctx, f.owner.ChatID, 12345, testDate), ErrNotFound)
}

func TestSnooze_StaysSentAndSchedulesRepeat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	until, err := f.ledger.Snooze(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate)
	require.NoError(t, err)
	assert.Equal(t, testDate.Add(8*time.Hour+17*time.Minute), until)

	l := f.status(t)
	assert.Equal(t, domain.IntakeSent, l.Status)
	require.NotNil(t, l.SnoozedUntil)
	assert.Equal(t, until, *l.SnoozedUntil)

	// Confirming clears the pending repeat.
	require.NoError(t, f.ledger.Confirm(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate))
	assert.Nil(t, f.status(t).SnoozedUntil)

	_, err = f.ledger.Snooze(ctx, f.owner.ChatID, f.intake.ScheduleID, testDate)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestSnooze_NonOwner(t *testing.T) {
	f := setup(t)
	_, err := f.ledger.Snooze(context.Background(), f.other.ChatID, f.intake.ScheduleID, testDate)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, f.status(t).SnoozedUntil)
}
