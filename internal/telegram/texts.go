package telegram

import (
	"fmt"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/domain"
	"github.com/ykvlv/medreminder-bot/internal/scheduler"
)

// UI texts in English
const (
	startText = "👋 Welcome to Med Reminder!\n\n" +
		"I will remind you to take your medications and keep track of every dose.\n\n" +
		"Use /add to add your first medication."
	alreadyRegisteredText = "✅ You are already registered! Use /help to see the commands."
	helpText              = "📖 Commands:\n\n" +
		"/add - add a medication\n" +
		"/list - your medications\n" +
		"/stats - intake statistics\n" +
		"/delete - remove a medication\n" +
		"/cancel - cancel adding a medication\n" +
		"/help - this message"
	notRegisteredText  = "You are not registered yet. Use /start"
	unknownCommandText = "Unknown command. Use /help to see the commands."
	useHelpText        = "Use /help to see the commands."
	nothingToCancel    = "Nothing to cancel."
	nothingToSkip      = "Nothing to skip."
	genericErrorText   = "Something went wrong. Please try again later."
	profileErrorText   = "Profile initialization error. Please try again later."

	noMedicationsText = "📋 You have no active medications yet.\n\nUse /add to add your first one."
	deleteChooseText  = "Choose the medication to delete:"
	deleteNothingText = "You have no active medications to delete."
	deletedText       = "✅ Medication deleted. Its reminders are stopped."
	deleteCancelled   = "Cancelled."

	takenSuffix   = "\n\n✅ Marked as taken"
	skippedSuffix = "\n\n❌ Skipped"

	toastTaken    = "✅ Taken!"
	toastSkipped  = "Skipped"
	toastSnoozed  = "⏰ I will remind you again at %s"
	toastResolved = "This dose is already recorded"
	toastNotFound = "Reminder not found"
	toastError    = "Error"
	toastStale    = "This button is no longer active"
)

const (
	displayDate  = "02.01.2006"
	displayShort = "02.01"
)

// mainMenuKeyboard is the persistent reply keyboard with the main commands.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/add"),
			tgbotapi.NewKeyboardButton("/list"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/stats"),
			tgbotapi.NewKeyboardButton("/delete"),
		),
	)
}

// inlineKeyboard converts transport-neutral buttons to Telegram markup.
func inlineKeyboard(rows [][]action.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Command.Encode()))
		}
		out = append(out, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func reminderKeyboard(r scheduler.Reminder) [][]action.Button {
	return [][]action.Button{
		{{Text: "✅ Taken", Command: action.Confirm(r.ScheduleID, r.Date)}},
		{{Text: "⏰ Remind me later", Command: action.Snooze(r.ScheduleID, r.Date)}},
		{{Text: "❌ Skip", Command: action.Skip(r.ScheduleID, r.Date)}},
	}
}

func reminderText(r scheduler.Reminder) string {
	var b strings.Builder
	if r.Repeat {
		b.WriteString("🔔 Reminder again!\n\n")
	} else {
		b.WriteString("💊 Time to take your medication!\n\n")
	}
	b.WriteString(r.Medication + "\n")
	fmt.Fprintf(&b, "💉 Dosage: %s\n", r.Dosage)
	fmt.Fprintf(&b, "⏰ Time: %s\n", r.Time)
	if r.Notes != "" {
		fmt.Fprintf(&b, "ℹ️ %s\n", r.Notes)
	}
	b.WriteString("\nPress a button after taking it:")
	return b.String()
}

func deleteKeyboard(meds []domain.Medication) [][]action.Button {
	rows := make([][]action.Button, 0, len(meds)+1)
	for _, m := range meds {
		rows = append(rows, []action.Button{{Text: "❌ " + m.Name, Command: action.Delete(m.ID)}})
	}
	return append(rows, []action.Button{{Text: "🔙 Cancel", Command: action.DeleteCancel()}})
}

func medicationListText(meds []domain.Medication) string {
	var b strings.Builder
	b.WriteString("💊 Your medications:\n")
	for i, m := range meds {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, m.Name)
		if m.Description != "" {
			fmt.Fprintf(&b, "   %s\n", m.Description)
		}
		fmt.Fprintf(&b, "   📅 Start: %s\n", m.StartDate.Format(displayDate))
		if m.EndDate != nil {
			fmt.Fprintf(&b, "   📅 End: %s\n", m.EndDate.Format(displayDate))
		}
		fmt.Fprintf(&b, "   📆 Frequency: %s\n", m.Rule.Describe())
		if len(m.Schedule) > 0 {
			b.WriteString("   ⏰ Doses:\n")
			for _, e := range m.Schedule {
				fmt.Fprintf(&b, "      • %s - %s", e.Time, e.Dosage)
				if e.Notes != "" {
					fmt.Fprintf(&b, " (%s)", e.Notes)
				}
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\nUse /delete to remove a medication.")
	return b.String()
}

// adherence is one line group of /stats.
type adherence struct {
	title     string
	confirmed int
	total     int
}

func statsText(groups []adherence) string {
	var b strings.Builder
	b.WriteString("📊 Intake statistics")
	for _, g := range groups {
		pct := percent(g.confirmed, g.total)
		fmt.Fprintf(&b, "\n\n%s\n", g.title)
		fmt.Fprintf(&b, "   Taken: %d of %d\n", g.confirmed, g.total)
		fmt.Fprintf(&b, "   %s", progressBar(pct))
	}
	return b.String()
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

// progressBar renders pct as ten segments followed by the number.
func progressBar(pct int) string {
	filled := int(math.Round(float64(pct) / 10))
	if filled < 0 {
		filled = 0
	}
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("▰", filled) + strings.Repeat("▱", 10-filled) + fmt.Sprintf(" %d%%", pct)
}
