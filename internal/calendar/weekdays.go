package calendar

import (
	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// Choice values emitted by the weekday picker.
const ChoiceDaysDone = "days_done"

// WeekdayPicker renders toggles for each weekday, two per row, Monday first,
// followed by a Done/Cancel row. Selected days are check-marked.
func WeekdayPicker(selected domain.WeekdaySet) [][]action.Button {
	var rows [][]action.Button
	var row []action.Button
	for i, d := range domain.Weekdays {
		label := weekdayLabels[i]
		if selected.Has(d) {
			label = "✅ " + label
		}
		row = append(row, action.Button{Text: label, Command: action.ToggleDay(d)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []action.Button{
		{Text: "✅ Done", Command: action.Choice(ChoiceDaysDone)},
		{Text: "🔙 Cancel", Command: action.Cancel()},
	})
	return rows
}
