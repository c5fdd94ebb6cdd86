package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// CreateUser registers u unless a row with the same chat_id exists. In both
// cases u is refreshed from the stored row, so an existing timezone wins.
func (r *SQLiteRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, first_name, tz, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING`,
		u.ChatID, u.FirstName, u.TZ, created,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	stored, err := r.GetUserByChatID(ctx, u.ChatID)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// GetUserByChatID returns the user registered for an external chat id.
func (r *SQLiteRepo) GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, first_name, tz, created_at
		FROM users
		WHERE chat_id = ?`,
		chatID,
	).Scan(&u.ID, &u.ChatID, &u.FirstName, &u.TZ, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// --- Medications ---

// CreateMedication inserts m and its schedule entries in one transaction and
// fills in the generated ids.
func (r *SQLiteRepo) CreateMedication(ctx context.Context, m *domain.Medication) error {
	if err := domain.ValidateMedication(m); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO medications (
			user_id, name, description, start_date, end_date,
			frequency, week_days, interval_days, doses_per_day, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		m.UserID, m.Name, m.Description,
		domain.FormatDate(m.StartDate), toNullDate(m.EndDate),
		string(m.Rule.Frequency), m.Rule.Weekdays.String(), m.Rule.IntervalDays,
		m.DosesPerDay, m.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	for i := range m.Schedule {
		e := &m.Schedule[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_entries (medication_id, position, time, dosage, notes, active)
			VALUES (?, ?, ?, ?, ?, 1)`,
			m.ID, i, e.Time, e.Dosage, e.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert schedule entry %d: %w", i, err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		e.MedicationID = m.ID
		e.Active = true
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.Active = true
	return nil
}

const medicationColumns = `m.id, m.user_id, m.name, m.description, m.start_date, m.end_date,
	m.frequency, m.week_days, m.interval_days, m.doses_per_day, m.active, m.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// medicationRow collects the raw medication columns for a later decode.
type medicationRow struct {
	m         domain.Medication
	startDate string
	endDate   sql.NullString
	frequency string
	weekDays  string
	active    int
	createdAt int64
}

func (mr *medicationRow) targets() []any {
	return []any{
		&mr.m.ID, &mr.m.UserID, &mr.m.Name, &mr.m.Description, &mr.startDate, &mr.endDate,
		&mr.frequency, &mr.weekDays, &mr.m.Rule.IntervalDays, &mr.m.DosesPerDay, &mr.active, &mr.createdAt,
	}
}

func (mr *medicationRow) decode() (domain.Medication, error) {
	m := mr.m
	var err error
	if m.StartDate, err = domain.ParseDate(mr.startDate); err != nil {
		return m, err
	}
	if m.EndDate, err = fromNullDate(mr.endDate); err != nil {
		return m, err
	}
	m.Rule.Frequency = domain.Frequency(mr.frequency)
	if m.Rule.Weekdays, err = domain.ParseWeekdaySet(mr.weekDays); err != nil {
		return m, err
	}
	m.Active = mr.active != 0
	m.CreatedAt = time.Unix(mr.createdAt, 0).UTC()
	return m, nil
}

// ListActiveMedications returns a user's active medications with their active
// schedule entries, oldest first.
func (r *SQLiteRepo) ListActiveMedications(ctx context.Context, userID int64) ([]domain.Medication, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medications m
		WHERE m.user_id = ? AND m.active = 1
		ORDER BY m.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []domain.Medication
	index := make(map[int64]int)
	for rows.Next() {
		var mr medicationRow
		if err := rows.Scan(mr.targets()...); err != nil {
			return nil, err
		}
		m, err := mr.decode()
		if err != nil {
			return nil, err
		}
		index[m.ID] = len(meds)
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(meds) == 0 {
		return nil, nil
	}

	erows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.medication_id, e.time, e.dosage, e.notes, e.active
		FROM schedule_entries e
		JOIN medications m ON m.id = e.medication_id
		WHERE m.user_id = ? AND m.active = 1 AND e.active = 1
		ORDER BY e.medication_id, e.position`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var (
			e      domain.ScheduleEntry
			active int
		)
		if err := erows.Scan(&e.ID, &e.MedicationID, &e.Time, &e.Dosage, &e.Notes, &active); err != nil {
			return nil, err
		}
		e.Active = active != 0
		if i, ok := index[e.MedicationID]; ok {
			meds[i].Schedule = append(meds[i].Schedule, e)
		}
	}
	return meds, erows.Err()
}

// DeactivateMedication soft-deletes a medication owned by userID together
// with its schedule entries.
func (r *SQLiteRepo) DeactivateMedication(ctx context.Context, userID, medicationID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE medications SET active = 0
		WHERE id = ? AND user_id = ? AND active = 1`,
		medicationID, userID,
	)
	if err != nil {
		return fmt.Errorf("deactivate medication: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedule_entries SET active = 0 WHERE medication_id = ?`, medicationID,
	); err != nil {
		return fmt.Errorf("deactivate schedule entries: %w", err)
	}
	return tx.Commit()
}

// --- Due schedules ---

const dueColumns = `e.id, e.medication_id, e.time, e.dosage, e.notes, e.active,
	` + medicationColumns + `,
	u.id, u.chat_id, u.first_name, u.tz, u.created_at`

const dueJoins = `
	FROM schedule_entries e
	JOIN medications m ON m.id = e.medication_id
	JOIN users u ON u.id = m.user_id`

func scanDue(s rowScanner, extra ...any) (DueSchedule, error) {
	var (
		d           DueSchedule
		entryActive int
		mr          medicationRow
		userCreated int64
	)
	targets := []any{&d.Entry.ID, &d.Entry.MedicationID, &d.Entry.Time, &d.Entry.Dosage, &d.Entry.Notes, &entryActive}
	targets = append(targets, mr.targets()...)
	targets = append(targets, &d.User.ID, &d.User.ChatID, &d.User.FirstName, &d.User.TZ, &userCreated)
	targets = append(targets, extra...)
	if err := s.Scan(targets...); err != nil {
		return d, err
	}
	m, err := mr.decode()
	if err != nil {
		return d, err
	}
	d.Medication = m
	d.Entry.Active = entryActive != 0
	d.User.CreatedAt = time.Unix(userCreated, 0).UTC()
	return d, nil
}

// FindActiveSchedulesAtTime returns active entries of active medications whose
// literal time equals hhmm.
func (r *SQLiteRepo) FindActiveSchedulesAtTime(ctx context.Context, hhmm string) ([]DueSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dueColumns+dueJoins+`
		WHERE e.time = ? AND e.active = 1 AND m.active = 1
		ORDER BY e.id`,
		hhmm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DueSchedule
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// --- Intake ledger ---

const intakeColumns = `l.id, l.user_id, l.medication_id, l.schedule_id, l.scheduled_date,
	l.status, l.sent_at, l.confirmed_at, l.snoozed_until`

type intakeRow struct {
	l         domain.IntakeLog
	date      string
	status    string
	sentAt    int64
	confirmed sql.NullInt64
	snoozed   sql.NullInt64
}

func (ir *intakeRow) targets() []any {
	return []any{
		&ir.l.ID, &ir.l.UserID, &ir.l.MedicationID, &ir.l.ScheduleID, &ir.date,
		&ir.status, &ir.sentAt, &ir.confirmed, &ir.snoozed,
	}
}

func (ir *intakeRow) decode() (domain.IntakeLog, error) {
	l := ir.l
	d, err := domain.ParseDate(ir.date)
	if err != nil {
		return l, err
	}
	l.ScheduledDate = d
	l.Status = domain.IntakeStatus(ir.status)
	l.SentAt = time.Unix(ir.sentAt, 0).UTC()
	l.ConfirmedAt = fromNullInt64(ir.confirmed)
	l.SnoozedUntil = fromNullInt64(ir.snoozed)
	return l, nil
}

// GetIntake returns the ledger row for (scheduleID, date).
func (r *SQLiteRepo) GetIntake(ctx context.Context, scheduleID int64, date time.Time) (*domain.IntakeLog, error) {
	var ir intakeRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+intakeColumns+`
		FROM intake_logs l
		WHERE l.schedule_id = ? AND l.scheduled_date = ?`,
		scheduleID, domain.FormatDate(date),
	).Scan(ir.targets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query intake: %w", err)
	}
	l, err := ir.decode()
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateIntakeIfAbsent inserts a SENT row keyed by (ScheduleID, ScheduledDate).
// It reports false without error when the key already exists; the unique
// constraint makes this safe across concurrent callers.
func (r *SQLiteRepo) CreateIntakeIfAbsent(ctx context.Context, l *domain.IntakeLog) (bool, error) {
	if l.Status == "" {
		l.Status = domain.IntakeSent
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO intake_logs (
			user_id, medication_id, schedule_id, scheduled_date, status, sent_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id, scheduled_date) DO NOTHING`,
		l.UserID, l.MedicationID, l.ScheduleID, domain.FormatDate(l.ScheduledDate),
		string(l.Status), l.SentAt.UTC().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert intake: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return true, err
	}
	return true, nil
}

// UpdateIntakeStatus moves row id from -> to if it is still in from. It
// reports false when the row was not in from. confirmed_at is set only for
// CONFIRMED; any pending snooze is dropped.
func (r *SQLiteRepo) UpdateIntakeStatus(ctx context.Context, id int64, from, to domain.IntakeStatus, at time.Time) (bool, error) {
	var confirmedAt *time.Time
	if to == domain.IntakeConfirmed {
		confirmedAt = &at
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_logs
		SET status = ?, confirmed_at = ?, snoozed_until = NULL
		WHERE id = ? AND status = ?`,
		string(to), toNullInt64(confirmedAt), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update intake: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SnoozeIntake schedules a repeat of a SENT row at until.
func (r *SQLiteRepo) SnoozeIntake(ctx context.Context, id int64, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_logs SET snoozed_until = ?
		WHERE id = ? AND status = ?`,
		until.UTC().Unix(), id, string(domain.IntakeSent),
	)
	if err != nil {
		return false, fmt.Errorf("snooze intake: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListDueSnoozes returns SENT rows of active schedules whose snooze elapsed.
func (r *SQLiteRepo) ListDueSnoozes(ctx context.Context, now time.Time) ([]SnoozedIntake, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dueColumns+`, `+intakeColumns+dueJoins+`
		JOIN intake_logs l ON l.schedule_id = e.id
		WHERE l.snoozed_until IS NOT NULL AND l.snoozed_until <= ?
		  AND l.status = ? AND e.active = 1 AND m.active = 1
		ORDER BY l.snoozed_until`,
		now.UTC().Unix(), string(domain.IntakeSent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SnoozedIntake
	for rows.Next() {
		var ir intakeRow
		d, err := scanDue(rows, ir.targets()...)
		if err != nil {
			return nil, err
		}
		l, err := ir.decode()
		if err != nil {
			return nil, err
		}
		res = append(res, SnoozedIntake{Log: l, Due: d})
	}
	return res, rows.Err()
}

// ClaimSnooze clears the snooze of row id if it still equals until. Exactly
// one caller wins for a given snooze.
func (r *SQLiteRepo) ClaimSnooze(ctx context.Context, id int64, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_logs SET snoozed_until = NULL
		WHERE id = ? AND snoozed_until = ? AND status = ?`,
		id, until.UTC().Unix(), string(domain.IntakeSent),
	)
	if err != nil {
		return false, fmt.Errorf("claim snooze: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CountIntakes aggregates a user's ledger rows with scheduled dates in
// [from, to]. A zero bound is open.
func (r *SQLiteRepo) CountIntakes(ctx context.Context, userID int64, from, to time.Time) (IntakeCounts, error) {
	lo, hi := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		lo = domain.FormatDate(from)
	}
	if !to.IsZero() {
		hi = domain.FormatDate(to)
	}
	var c IntakeCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'CONFIRMED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'MISSED' THEN 1 ELSE 0 END), 0)
		FROM intake_logs
		WHERE user_id = ? AND scheduled_date >= ? AND scheduled_date <= ?`,
		userID, lo, hi,
	).Scan(&c.Total, &c.Confirmed, &c.Missed)
	if err != nil {
		return c, fmt.Errorf("count intakes: %w", err)
	}
	return c, nil
}
