package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/store"
)

type sent struct {
	chatID   int64
	reminder Reminder
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]error
}

func (f *fakeSender) SendReminder(_ context.Context, chatID int64, r Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{chatID: chatID, reminder: r})
	return nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type harness struct {
	repo    *store.SQLiteRepo
	sender  *fakeSender
	metrics *Metrics
	disp    *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{
		repo:    repo,
		sender:  &fakeSender{fail: map[int64]error{}},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	h.disp = NewDispatcher(repo, h.sender, time.UTC, h.metrics, zap.NewNop())
	return h
}

func (h *harness) user(t *testing.T, chatID int64, tz string) *domain.User {
	t.Helper()
	u := &domain.User{ChatID: chatID, TZ: tz}
	require.NoError(t, h.repo.CreateUser(context.Background(), u))
	return u
}

func (h *harness) medication(t *testing.T, u *domain.User, rule domain.Rule, start time.Time, end *time.Time, at string) *domain.Medication {
	t.Helper()
	m := &domain.Medication{
		UserID:      u.ID,
		Name:        "Vitamin D",
		StartDate:   start,
		EndDate:     end,
		Rule:        rule,
		DosesPerDay: 1,
		Schedule:    []domain.ScheduleEntry{{Time: at, Dosage: "2 drops", Notes: "with meals"}},
	}
	require.NoError(t, h.repo.CreateMedication(context.Background(), m))
	return m
}

var (
	monday   = time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)
	start    = time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	mondayAt = monday.Add(8 * time.Hour)
)

func TestTick_SendsOnceAcrossDuplicateTicks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")
	m := h.medication(t, u, domain.Weekly(time.Monday, time.Thursday), start, nil, "08:00")

	res := h.disp.Tick(ctx, mondayAt)
	assert.Equal(t, TickResult{Due: 1, Sent: 1}, res)

	res = h.disp.Tick(ctx, mondayAt.Add(20*time.Second))
	assert.Equal(t, TickResult{Due: 1, Duplicates: 1}, res)

	got := h.sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].chatID)
	assert.Equal(t, Reminder{
		ScheduleID: m.Schedule[0].ID,
		Date:       monday,
		Medication: "Vitamin D",
		Dosage:     "2 drops",
		Time:       "08:00",
		Notes:      "with meals",
	}, got[0].reminder)

	l, err := h.repo.GetIntake(ctx, m.Schedule[0].ID, monday)
	require.NoError(t, err)
	assert.Equal(t, domain.IntakeSent, l.Status)
	assert.Equal(t, mondayAt, l.SentAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Duplicate))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Ticks))
}

func TestTick_ConcurrentTicksCreateOneRow(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, 100, "UTC")
	h.medication(t, u, domain.Daily(), start, nil, "08:00")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.disp.Tick(context.Background(), mondayAt)
		}()
	}
	wg.Wait()

	assert.Len(t, h.sender.all(), 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Duplicate))
}

func TestTick_SkipsNonFiringDaysAndOtherMinutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")
	h.medication(t, u, domain.Weekly(time.Monday, time.Thursday), start, nil, "08:00")

	tuesday := mondayAt.AddDate(0, 0, 1)
	assert.Equal(t, TickResult{}, h.disp.Tick(ctx, tuesday))
	assert.Equal(t, TickResult{}, h.disp.Tick(ctx, mondayAt.Add(time.Minute)))
	assert.Empty(t, h.sender.all())
}

func TestTick_RespectsActiveWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")

	ended := monday.AddDate(0, 0, -1)
	h.medication(t, u, domain.Daily(), start, &ended, "08:00")
	h.medication(t, u, domain.Daily(), monday.AddDate(0, 0, 1), nil, "08:00")

	assert.Equal(t, TickResult{}, h.disp.Tick(ctx, mondayAt))
	assert.Empty(t, h.sender.all())
}

func TestTick_EveryNDaysAnchoredAtStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")
	h.medication(t, u, domain.EveryNDays(2), monday, nil, "08:00")

	for day := 0; day < 5; day++ {
		h.disp.Tick(ctx, mondayAt.AddDate(0, 0, day))
	}
	got := h.sender.all()
	require.Len(t, got, 3)
	assert.Equal(t, monday, got[0].reminder.Date)
	assert.Equal(t, monday.AddDate(0, 0, 2), got[1].reminder.Date)
	assert.Equal(t, monday.AddDate(0, 0, 4), got[2].reminder.Date)
}

func TestTick_DayIsLocalizedButTimeIsReferenceClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Auckland is UTC+12 in May: Sunday 20:00 UTC is Monday 08:00 there.
	u := h.user(t, 100, "Pacific/Auckland")
	m := h.medication(t, u, domain.Weekly(time.Monday), start, nil, "20:00")

	sundayEvening := monday.Add(-4 * time.Hour)
	res := h.disp.Tick(ctx, sundayEvening)
	assert.Equal(t, 1, res.Sent)

	_, err := h.repo.GetIntake(ctx, m.Schedule[0].ID, monday)
	require.NoError(t, err, "ledger keyed by the user's local date")
}

func TestTick_SendFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	broken := h.user(t, 100, "UTC")
	ok := h.user(t, 200, "UTC")
	bm := h.medication(t, broken, domain.Daily(), start, nil, "08:00")
	h.medication(t, ok, domain.Daily(), start, nil, "08:00")
	h.sender.fail[100] = errors.New("chat blocked")

	res := h.disp.Tick(ctx, mondayAt)
	assert.Equal(t, TickResult{Due: 2, Sent: 1, Failed: 1}, res)
	require.Len(t, h.sender.all(), 1)
	assert.Equal(t, int64(200), h.sender.all()[0].chatID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Failed.WithLabelValues(stageSend)))

	// The ledger row stays, so the failed reminder is not retried.
	_, err := h.repo.GetIntake(ctx, bm.Schedule[0].ID, monday)
	require.NoError(t, err)
	delete(h.sender.fail, 100)
	res = h.disp.Tick(ctx, mondayAt)
	assert.Equal(t, 0, res.Sent)
}

func TestTick_ResendsSnoozedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")
	m := h.medication(t, u, domain.Daily(), start, nil, "08:00")

	h.disp.Tick(ctx, mondayAt)
	l, err := h.repo.GetIntake(ctx, m.Schedule[0].ID, monday)
	require.NoError(t, err)
	until := mondayAt.Add(15 * time.Minute)
	snoozed, err := h.repo.SnoozeIntake(ctx, l.ID, until)
	require.NoError(t, err)
	require.True(t, snoozed)

	assert.Equal(t, 0, h.disp.Tick(ctx, until.Add(-time.Minute)).Resent)
	assert.Equal(t, 1, h.disp.Tick(ctx, until).Resent)
	assert.Equal(t, 0, h.disp.Tick(ctx, until.Add(time.Minute)).Resent)

	got := h.sender.all()
	require.Len(t, got, 2)
	assert.True(t, got[1].reminder.Repeat)
	assert.Equal(t, monday, got[1].reminder.Date)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Snoozed))

	l, err = h.repo.GetIntake(ctx, m.Schedule[0].ID, monday)
	require.NoError(t, err)
	assert.Equal(t, domain.IntakeSent, l.Status)
	assert.Nil(t, l.SnoozedUntil)
}

func TestTick_DeactivatedMedicationIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, 100, "UTC")
	m := h.medication(t, u, domain.Daily(), start, nil, "08:00")
	require.NoError(t, h.repo.DeactivateMedication(ctx, u.ID, m.ID))

	assert.Equal(t, TickResult{}, h.disp.Tick(ctx, mondayAt))
}
