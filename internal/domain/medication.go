package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidMedication = errors.New("invalid medication")

const (
	MinDosesPerDay = 1
	MaxDosesPerDay = 10
)

// ScheduleEntry is one dose slot of a medication's daily regimen.
type ScheduleEntry struct {
	ID           int64
	MedicationID int64
	Time         string `validate:"required,clock"` // HH:MM, 24h
	Dosage       string `validate:"required,max=256"`
	Notes        string `validate:"max=256"`
	Active       bool
}

// Medication is owned by exactly one user and created with all its entries.
// StartDate and EndDate are calendar dates (see DateOf).
type Medication struct {
	ID          int64
	UserID      int64
	Name        string `validate:"required,max=256"`
	Description string `validate:"max=1024"`
	StartDate   time.Time
	EndDate     *time.Time // nil = indefinite
	Rule        Rule
	DosesPerDay int             `validate:"min=1,max=10"`
	Schedule    []ScheduleEntry `validate:"dive"`
	Active      bool
	CreatedAt   time.Time
}

// ActiveOn reports whether today falls inside the [StartDate, EndDate] window.
func (m *Medication) ActiveOn(today time.Time) bool {
	d := DateOf(today)
	if d.Before(DateOf(m.StartDate)) {
		return false
	}
	if m.EndDate != nil && d.After(DateOf(*m.EndDate)) {
		return false
	}
	return true
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return IsClock(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidateMedication checks field constraints plus the cross-field invariants
// the struct tags cannot express.
func ValidateMedication(m *Medication) error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalidMedication)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMedication)
	}
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidMedication, e.Namespace(), e.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidMedication, err)
	}
	if err := m.Rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMedication, err)
	}
	if len(m.Schedule) != m.DosesPerDay {
		return fmt.Errorf("%w: %d schedule entries for %d doses per day",
			ErrInvalidMedication, len(m.Schedule), m.DosesPerDay)
	}
	if m.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidMedication)
	}
	if m.EndDate != nil && DateOf(*m.EndDate).Before(DateOf(m.StartDate)) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidMedication)
	}
	return nil
}
