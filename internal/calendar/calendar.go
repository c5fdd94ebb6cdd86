// Package calendar renders navigable month grids and the weekday picker as
// rows of action buttons.
package calendar

import (
	"strconv"
	"time"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// NavStep is how far prev/next moves the pivot. It approximates a month.
const NavStep = 30

const blank = " "

var weekdayLabels = [7]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// Grid is a rendered month page.
type Grid struct {
	Header   [3]action.Button // prev, month label, next
	Weekdays [7]action.Button
	Weeks    [][7]action.Button
}

// Render builds the month page containing pivot. target identifies the
// calendar in the emitted select/navigate commands. The selected date, if
// non-nil and inside the month, is highlighted.
func Render(pivot time.Time, target string, selected *time.Time) Grid {
	pivot = domain.DateOf(pivot)
	first := time.Date(pivot.Year(), pivot.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	var g Grid
	g.Header = [3]action.Button{
		{Text: "◀️", Command: action.Navigate(target, domain.AddDays(pivot, -NavStep))},
		{Text: pivot.Format("January 2006"), Command: action.Ignore()},
		{Text: "▶️", Command: action.Navigate(target, domain.AddDays(pivot, NavStep))},
	}
	for i, l := range weekdayLabels {
		g.Weekdays[i] = action.Button{Text: l, Command: action.Ignore()}
	}

	var week [7]action.Button
	col := FirstColumn(first)
	for i := 0; i < col; i++ {
		week[i] = blankCell()
	}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		label := strconv.Itoa(d.Day())
		if selected != nil && domain.DateOf(*selected).Equal(d) {
			label = "[" + label + "]"
		}
		week[col] = action.Button{Text: label, Command: action.Select(target, d)}
		col++
		if col == 7 {
			g.Weeks = append(g.Weeks, week)
			week = [7]action.Button{}
			col = 0
		}
	}
	if col > 0 {
		for ; col < 7; col++ {
			week[col] = blankCell()
		}
		g.Weeks = append(g.Weeks, week)
	}
	return g
}

// FirstColumn is the Monday-first column (0..6) of date's weekday.
func FirstColumn(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// Rows flattens the grid into keyboard rows.
func (g Grid) Rows() [][]action.Button {
	rows := make([][]action.Button, 0, len(g.Weeks)+2)
	rows = append(rows, g.Header[:], g.Weekdays[:])
	for i := range g.Weeks {
		rows = append(rows, g.Weeks[i][:])
	}
	return rows
}

func blankCell() action.Button {
	return action.Button{Text: blank, Command: action.Ignore()}
}
