package wizard

import (
	"fmt"
	"strings"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/calendar"
)

// Choice values carried by wizard buttons.
const (
	choiceSkip     = "skip"
	choiceToday    = "today"
	choiceTomorrow = "tomorrow"
	choiceCalendar = "calendar"
	choiceEndless  = "endless"
	choice7Days    = "7"
	choice14Days   = "14"
	choice30Days   = "30"
	choiceDaily    = "daily"
	choiceWeekly   = "weekly"
	choiceInterval = "interval"
	choiceOnce     = "x1"
	choiceTwice    = "x2"
	choiceThrice   = "x3"
	choiceCustom   = "custom"
	choiceSave     = "save"

	calendarDaysDone = calendar.ChoiceDaysDone
)

// Calendar targets.
const (
	targetStart = "start"
	targetEnd   = "end"
)

var durationDays = map[string]int{choice7Days: 7, choice14Days: 14, choice30Days: 30}

var doseCounts = map[string]int{choiceOnce: 1, choiceTwice: 2, choiceThrice: 3}

var notePresets = map[string]string{
	"before": "Before meals",
	"after":  "After meals",
	"with":   "With meals",
	"none":   "",
}

const (
	textName          = "📝 Enter the medication name:"
	textDescription   = "📄 Add a description (or send /skip):"
	textStartChoice   = "📅 When do you start taking it?"
	textStartCalendar = "📆 Choose the start date:"
	textDuration      = "⏱ How long will you take it?"
	textEndCalendar   = "📆 Choose the end date:"
	textFrequency     = "📆 How often?"
	textWeekdays      = "📅 Select the days of the week:"
	textInterval      = "🔢 Every how many days? (for example 2)"
	textDoseCount     = "🔢 How many times a day?"
	textCustomCount   = "🔢 Enter the number of doses per day (1 to 10):"
	textTime          = "⏰ Dose %d of %d\n\nEnter the time (for example 09:00):"
	textDosage        = "💊 Enter the dosage (for example 1 tablet, 5 ml):"
	textNotes         = "ℹ️ Any intake notes?"
	textSaved         = "✅ Medication added!"
	textCancelled     = "Cancelled. Start again with /add"

	textNameRequired   = "Please enter a name."
	textDosageRequired = "Please enter the dosage."
	textTooLong        = "❌ Too long, at most %d characters."
	textBadInterval    = "❌ Enter a whole number of days from 1 to %d."
	textBadDoseCount   = "❌ Enter a number from %d to %d."
	textBadTime        = "❌ Invalid time. Use HH:MM (for example 09:00)."
	textDoseSaved      = "✅ Dose %d saved!"
	textUseButtons     = "Please use the buttons below."
	textSaveFailed     = "❌ Could not save the medication. Please try again with /add"
	textInternalError  = "❌ Something went wrong. Please start again with /add"

	textStaleButton    = "This button is no longer active"
	textDatePicked     = "Date selected"
	textEndBeforeStart = "⚠️ The end date cannot be before the start date"
	textPickADay       = "⚠️ Select at least one day"
	textDaysPicked     = "✅ Days selected"
	textToastSaved     = "Saved!"
	textToastError     = "Error"
)

func button(text string, cmd action.Command) []action.Button {
	return []action.Button{{Text: text, Command: cmd}}
}

func cancelRow() []action.Button {
	return button("🔙 Cancel", action.Cancel())
}

// prompt renders the question for the session's current state.
func (w *Wizard) prompt(s *Session) Message {
	d := &s.Draft
	switch s.State {
	case StateAwaitName:
		return Message{Text: textName, Keyboard: [][]action.Button{cancelRow()}}
	case StateAwaitDescription:
		return Message{Text: textDescription, Keyboard: [][]action.Button{
			button("⏭ Skip", action.Choice(choiceSkip)),
			cancelRow(),
		}}
	case StateAwaitStartChoice:
		return Message{Text: textStartChoice, Keyboard: [][]action.Button{
			button("Today", action.Choice(choiceToday)),
			button("Tomorrow", action.Choice(choiceTomorrow)),
			button("📆 Pick a date", action.Choice(choiceCalendar)),
			cancelRow(),
		}}
	case StateStartCalendar:
		rows := calendar.Render(d.TempDate, targetStart, nil).Rows()
		return Message{Text: textStartCalendar, Keyboard: append(rows, cancelRow())}
	case StateAwaitDurationChoice:
		return Message{Text: textDuration, Keyboard: [][]action.Button{
			button("Indefinitely", action.Choice(choiceEndless)),
			button("7 days", action.Choice(choice7Days)),
			button("14 days", action.Choice(choice14Days)),
			button("30 days", action.Choice(choice30Days)),
			button("📆 Pick an end date", action.Choice(choiceCalendar)),
			cancelRow(),
		}}
	case StateEndCalendar:
		start := d.StartDate
		rows := calendar.Render(d.TempDate, targetEnd, &start).Rows()
		return Message{Text: textEndCalendar, Keyboard: append(rows, cancelRow())}
	case StateAwaitFrequencyChoice:
		return Message{Text: textFrequency, Keyboard: [][]action.Button{
			button("Every day", action.Choice(choiceDaily)),
			button("Days of the week", action.Choice(choiceWeekly)),
			button("Every N days", action.Choice(choiceInterval)),
			cancelRow(),
		}}
	case StateWeeklyPicker:
		return Message{Text: textWeekdays, Keyboard: calendar.WeekdayPicker(d.Rule.Weekdays)}
	case StateAwaitIntervalNumber:
		return Message{Text: textInterval, Keyboard: [][]action.Button{cancelRow()}}
	case StateAwaitDoseCountChoice:
		return Message{Text: textDoseCount, Keyboard: [][]action.Button{
			button("Once a day", action.Choice(choiceOnce)),
			button("Twice a day", action.Choice(choiceTwice)),
			button("3 times a day", action.Choice(choiceThrice)),
			button("📝 Other", action.Choice(choiceCustom)),
			cancelRow(),
		}}
	case StateAwaitCustomDoseCount:
		return Message{Text: textCustomCount, Keyboard: [][]action.Button{cancelRow()}}
	case StateAwaitTime:
		text := fmt.Sprintf(textTime, d.CurrentScheduleIndex+1, d.DosesPerDay)
		return Message{Text: text, Keyboard: [][]action.Button{cancelRow()}}
	case StateAwaitDosage:
		return Message{Text: textDosage, Keyboard: [][]action.Button{cancelRow()}}
	case StateAwaitNotesChoice:
		return Message{Text: textNotes, Keyboard: [][]action.Button{
			button("Before meals", action.Choice("before")),
			button("After meals", action.Choice("after")),
			button("With meals", action.Choice("with")),
			button("Skip", action.Choice("none")),
			cancelRow(),
		}}
	case StateAwaitFinalConfirm:
		return Message{Text: Summary(d) + "\n\nIs everything correct?", Keyboard: [][]action.Button{
			button("✅ Save", action.Choice(choiceSave)),
			button("❌ Cancel", action.Cancel()),
		}}
	case StateCommitted:
		return Message{Text: textSaved}
	default:
		return Message{Text: textCancelled}
	}
}

// Summary lists every field of the draft.
func Summary(d *Draft) string {
	var b strings.Builder
	b.WriteString("📋 Please check:\n\n")
	fmt.Fprintf(&b, "💊 Medication: %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "📝 Description: %s\n", d.Description)
	}
	fmt.Fprintf(&b, "📅 Start: %s\n", d.StartDate.Format(displayDate))
	if d.EndDate != nil {
		fmt.Fprintf(&b, "📅 End: %s\n", d.EndDate.Format(displayDate))
	} else {
		b.WriteString("📅 End: indefinitely\n")
	}
	fmt.Fprintf(&b, "📆 Frequency: %s\n", d.Rule.Describe())
	fmt.Fprintf(&b, "🔢 Times a day: %d\n\n", d.DosesPerDay)
	b.WriteString("⏰ Schedule:")
	for i, e := range d.Schedule {
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, e.Time, e.Dosage)
		if e.Notes != "" {
			fmt.Fprintf(&b, " (%s)", e.Notes)
		}
	}
	return b.String()
}

const displayDate = "02.01.2006"
