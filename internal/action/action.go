// Package action is the single boundary for inline-button payloads. Every
// payload is produced by Encode and decoded by Parse into a typed Command at
// ingress; nothing else inspects the raw strings.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

var ErrUnknownAction = errors.New("unknown action")

// Kind identifies what a button does.
type Kind string

const (
	KindIgnore Kind = "noop"

	// Reminder responses carry (schedule entry, scheduled date).
	KindConfirm Kind = "ok"
	KindSnooze  Kind = "snz"
	KindSkip    Kind = "skp"

	KindDelete       Kind = "del"
	KindDeleteCancel Kind = "delx"

	// Wizard controls.
	KindCancel    Kind = "wx"
	KindChoice    Kind = "wc"
	KindNavigate  Kind = "wn"
	KindSelect    Kind = "ws"
	KindToggleDay Kind = "wd"
)

const sep = ":"

// Command is a decoded payload. Only the fields relevant to Kind are set.
type Command struct {
	Kind         Kind
	ScheduleID   int64
	MedicationID int64
	Date         time.Time // calendar date
	Value        string    // choice value or calendar target
	Weekday      time.Weekday
}

// Button is a labelled command, independent of the transport.
type Button struct {
	Text    string
	Command Command
}

func Ignore() Command { return Command{Kind: KindIgnore} }
func Cancel() Command { return Command{Kind: KindCancel} }

// Choice is a wizard selection such as "today" or "daily".
func Choice(value string) Command { return Command{Kind: KindChoice, Value: value} }

func Confirm(scheduleID int64, date time.Time) Command {
	return Command{Kind: KindConfirm, ScheduleID: scheduleID, Date: date}
}

func Snooze(scheduleID int64, date time.Time) Command {
	return Command{Kind: KindSnooze, ScheduleID: scheduleID, Date: date}
}

func Skip(scheduleID int64, date time.Time) Command {
	return Command{Kind: KindSkip, ScheduleID: scheduleID, Date: date}
}

func Delete(medicationID int64) Command {
	return Command{Kind: KindDelete, MedicationID: medicationID}
}

func DeleteCancel() Command { return Command{Kind: KindDeleteCancel} }

// Navigate re-pivots the calendar identified by target.
func Navigate(target string, pivot time.Time) Command {
	return Command{Kind: KindNavigate, Value: target, Date: pivot}
}

// Select picks a date on the calendar identified by target.
func Select(target string, date time.Time) Command {
	return Command{Kind: KindSelect, Value: target, Date: date}
}

func ToggleDay(d time.Weekday) Command { return Command{Kind: KindToggleDay, Weekday: d} }

// Encode renders c as a compact payload (well under Telegram's 64 byte limit).
func (c Command) Encode() string {
	switch c.Kind {
	case KindConfirm, KindSnooze, KindSkip:
		return join(c.Kind, strconv.FormatInt(c.ScheduleID, 10), domain.FormatDate(c.Date))
	case KindDelete:
		return join(c.Kind, strconv.FormatInt(c.MedicationID, 10))
	case KindChoice:
		return join(c.Kind, c.Value)
	case KindNavigate, KindSelect:
		return join(c.Kind, c.Value, domain.FormatDate(c.Date))
	case KindToggleDay:
		return join(c.Kind, strconv.Itoa(int(c.Weekday)))
	default:
		return string(c.Kind)
	}
}

func join(k Kind, parts ...string) string {
	return string(k) + sep + strings.Join(parts, sep)
}

// Parse decodes a payload produced by Encode.
func Parse(data string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(data), sep)
	kind := Kind(parts[0])
	args := parts[1:]

	switch kind {
	case KindIgnore, KindCancel, KindDeleteCancel:
		if len(args) != 0 {
			return Command{}, malformed(data)
		}
		return Command{Kind: kind}, nil

	case KindConfirm, KindSnooze, KindSkip:
		if len(args) != 2 {
			return Command{}, malformed(data)
		}
		id, err := parseID(args[0])
		if err != nil {
			return Command{}, malformed(data)
		}
		d, err := domain.ParseDate(args[1])
		if err != nil {
			return Command{}, malformed(data)
		}
		return Command{Kind: kind, ScheduleID: id, Date: d}, nil

	case KindDelete:
		if len(args) != 1 {
			return Command{}, malformed(data)
		}
		id, err := parseID(args[0])
		if err != nil {
			return Command{}, malformed(data)
		}
		return Delete(id), nil

	case KindChoice:
		if len(args) != 1 || args[0] == "" {
			return Command{}, malformed(data)
		}
		return Choice(args[0]), nil

	case KindNavigate, KindSelect:
		if len(args) != 2 || args[0] == "" {
			return Command{}, malformed(data)
		}
		d, err := domain.ParseDate(args[1])
		if err != nil {
			return Command{}, malformed(data)
		}
		return Command{Kind: kind, Value: args[0], Date: d}, nil

	case KindToggleDay:
		if len(args) != 1 {
			return Command{}, malformed(data)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n > 6 {
			return Command{}, malformed(data)
		}
		return ToggleDay(time.Weekday(n)), nil
	}
	return Command{}, malformed(data)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

func malformed(data string) error {
	return fmt.Errorf("%w: %q", ErrUnknownAction, data)
}
