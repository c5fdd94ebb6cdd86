package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/store"
)

// Reminder is the outbound message for one schedule entry on one date.
type Reminder struct {
	ScheduleID int64
	Date       time.Time // ledger key, user-local calendar date
	Medication string
	Dosage     string
	Time       string
	Notes      string
	Repeat     bool // re-sent after a snooze
}

// Sender delivers reminders. telegram.Router implements it.
type Sender interface {
	SendReminder(ctx context.Context, chatID int64, r Reminder) error
}

// Repo is the subset of store.Repo the dispatcher needs.
type Repo interface {
	FindActiveSchedulesAtTime(ctx context.Context, hhmm string) ([]store.DueSchedule, error)
	CreateIntakeIfAbsent(ctx context.Context, l *domain.IntakeLog) (bool, error)
	ListDueSnoozes(ctx context.Context, now time.Time) ([]store.SnoozedIntake, error)
	ClaimSnooze(ctx context.Context, id int64, until time.Time) (bool, error)
}

// TickResult summarises one tick.
type TickResult struct {
	Due        int
	Sent       int
	Duplicates int
	Failed     int
	Resent     int
}

// Dispatcher scans due schedules once per tick, records them in the ledger
// and sends a reminder for every entry it created.
type Dispatcher struct {
	repo    Repo
	sender  Sender
	clock   *time.Location
	metrics *Metrics
	log     *zap.Logger
}

// NewDispatcher creates a Dispatcher. clock is the reference zone used to
// match the literal HH:MM of schedule entries.
func NewDispatcher(repo Repo, sender Sender, clock *time.Location, m *Metrics, log *zap.Logger) *Dispatcher {
	if clock == nil {
		clock = time.UTC
	}
	return &Dispatcher{repo: repo, sender: sender, clock: clock, metrics: m, log: log}
}

// Tick runs one dispatch pass for the instant now. Failures of one item are
// logged and do not stop the others.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) TickResult {
	started := time.Now()
	log := d.log.With(zap.String("tick", uuid.NewString()))
	defer func() {
		d.metrics.Ticks.Inc()
		d.metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	var res TickResult
	d.dispatchDue(ctx, log, now, &res)
	d.resendSnoozed(ctx, log, now, &res)

	if res.Due > 0 || res.Resent > 0 || res.Failed > 0 {
		log.Info("tick done",
			zap.Int("due", res.Due),
			zap.Int("sent", res.Sent),
			zap.Int("duplicates", res.Duplicates),
			zap.Int("resent", res.Resent),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}

func (d *Dispatcher) dispatchDue(ctx context.Context, log *zap.Logger, now time.Time, res *TickResult) {
	// The literal time is matched against the reference clock, not the
	// user's zone. Only the calendar day below is localized.
	hhmm := now.In(d.clock).Format(domain.ClockLayout)
	due, err := d.repo.FindActiveSchedulesAtTime(ctx, hhmm)
	if err != nil {
		d.metrics.Failed.WithLabelValues(stageQuery).Inc()
		res.Failed++
		log.Error("find due schedules failed", zap.String("time", hhmm), zap.Error(err))
		return
	}
	for _, item := range due {
		d.dispatchOne(ctx, log, now, item, res)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, log *zap.Logger, now time.Time, item store.DueSchedule, res *TickResult) {
	today := item.User.Today(now)
	med := &item.Medication
	if !med.ActiveOn(today) || !domain.Fires(med.Rule, med.StartDate, today) {
		return
	}
	res.Due++

	log = log.With(
		zap.Int64("scheduleID", item.Entry.ID),
		zap.Int64("chatID", item.User.ChatID),
		zap.String("date", domain.FormatDate(today)),
	)

	created, err := d.repo.CreateIntakeIfAbsent(ctx, &domain.IntakeLog{
		UserID:        item.User.ID,
		MedicationID:  med.ID,
		ScheduleID:    item.Entry.ID,
		ScheduledDate: today,
		Status:        domain.IntakeSent,
		SentAt:        now.UTC(),
	})
	if err != nil {
		d.metrics.Failed.WithLabelValues(stageLedger).Inc()
		res.Failed++
		log.Error("create intake failed", zap.Error(err))
		return
	}
	if !created {
		d.metrics.Duplicate.Inc()
		res.Duplicates++
		log.Debug("already notified")
		return
	}

	// The ledger row stands even if the send fails.
	if err := d.sender.SendReminder(ctx, item.User.ChatID, reminderFor(item, today, false)); err != nil {
		d.metrics.Failed.WithLabelValues(stageSend).Inc()
		res.Failed++
		log.Error("send reminder failed", zap.Error(err))
		return
	}
	d.metrics.Sent.Inc()
	res.Sent++
}

func (d *Dispatcher) resendSnoozed(ctx context.Context, log *zap.Logger, now time.Time, res *TickResult) {
	items, err := d.repo.ListDueSnoozes(ctx, now)
	if err != nil {
		d.metrics.Failed.WithLabelValues(stageQuery).Inc()
		res.Failed++
		log.Error("list due snoozes failed", zap.Error(err))
		return
	}
	for _, it := range items {
		l := it.Log
		ok, err := d.repo.ClaimSnooze(ctx, l.ID, *l.SnoozedUntil)
		if err != nil {
			d.metrics.Failed.WithLabelValues(stageSnooze).Inc()
			res.Failed++
			log.Error("claim snooze failed", zap.Int64("intakeID", l.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := d.sender.SendReminder(ctx, it.Due.User.ChatID, reminderFor(it.Due, l.ScheduledDate, true)); err != nil {
			d.metrics.Failed.WithLabelValues(stageSend).Inc()
			res.Failed++
			log.Error("resend snoozed reminder failed", zap.Int64("intakeID", l.ID), zap.Error(err))
			continue
		}
		d.metrics.Snoozed.Inc()
		res.Resent++
	}
}

func reminderFor(item store.DueSchedule, date time.Time, repeat bool) Reminder {
	return Reminder{
		ScheduleID: item.Entry.ID,
		Date:       date,
		Medication: item.Medication.Name,
		Dosage:     item.Entry.Dosage,
		Time:       item.Entry.Time,
		Notes:      item.Entry.Notes,
		Repeat:     repeat,
	}
}
