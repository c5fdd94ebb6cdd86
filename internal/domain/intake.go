package domain

import "time"

// IntakeStatus is the ledger state of one (schedule entry, date) reminder.
type IntakeStatus string

const (
	IntakeSent      IntakeStatus = "SENT"
	IntakeConfirmed IntakeStatus = "CONFIRMED"
	IntakeMissed    IntakeStatus = "MISSED"
)

// CanTransition reports whether s -> to is allowed. Only SENT has outgoing
// edges; CONFIRMED and MISSED are terminal.
func (s IntakeStatus) CanTransition(to IntakeStatus) bool {
	return s == IntakeSent && (to == IntakeConfirmed || to == IntakeMissed)
}

// Terminal reports whether no further transition is possible.
func (s IntakeStatus) Terminal() bool {
	return s == IntakeConfirmed || s == IntakeMissed
}

// IntakeLog is a ledger row, unique by (ScheduleID, ScheduledDate).
type IntakeLog struct {
	ID            int64
	UserID        int64
	MedicationID  int64
	ScheduleID    int64
	ScheduledDate time.Time // user-local calendar date
	Status        IntakeStatus
	SentAt        time.Time
	ConfirmedAt   *time.Time
	SnoozedUntil  *time.Time
}
