package store

import (
	"database/sql"
	"time"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// DueSchedule is a schedule entry joined with its medication and owner.
// Medication.Schedule is left empty.
type DueSchedule struct {
	Entry      domain.ScheduleEntry
	Medication domain.Medication
	User       domain.User
}

// SnoozedIntake is a SENT ledger row whose snooze has elapsed.
type SnoozedIntake struct {
	Log domain.IntakeLog
	Due DueSchedule
}

// IntakeCounts aggregates ledger rows by status.
type IntakeCounts struct {
	Total     int
	Confirmed int
	Missed    int
}

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func toNullDate(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatDate(*d), Valid: true}
}

func fromNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := domain.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
