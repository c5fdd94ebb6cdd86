package wizard

import (
	"context"

	"github.com/ykvlv/medreminder-bot/internal/action"
)

// State is a wizard step. Values are stable so a stored session can resume.
type State string

const (
	StateAwaitName            State = "await_name"
	StateAwaitDescription     State = "await_description"
	StateAwaitStartChoice     State = "await_start_choice"
	StateStartCalendar        State = "start_calendar"
	StateAwaitDurationChoice  State = "await_duration_choice"
	StateEndCalendar          State = "end_calendar"
	StateAwaitFrequencyChoice State = "await_frequency_choice"
	StateWeeklyPicker         State = "weekly_picker"
	StateAwaitIntervalNumber  State = "await_interval_number"
	StateAwaitDoseCountChoice State = "await_dose_count_choice"
	StateAwaitCustomDoseCount State = "await_custom_dose_count"
	StateAwaitTime            State = "await_time"
	StateAwaitDosage          State = "await_dosage"
	StateAwaitNotesChoice     State = "await_notes_choice"
	StateAwaitFinalConfirm    State = "await_final_confirm"
	StateCommitted            State = "committed"
	StateAborted              State = "aborted"
)

// Terminal reports whether s ends the conversation.
func (s State) Terminal() bool { return s == StateCommitted || s == StateAborted }

// EventKind is the kind of input the wizard consumes.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventAction
)

// Event is one user input: free text or a decoded button command.
type Event struct {
	Kind    EventKind
	Text    string
	Command action.Command
}

func Text(s string) Event { return Event{Kind: EventText, Text: s} }
func Action(c action.Command) Event { return Event{Kind: EventAction, Command: c} }

// Skip is the event of the description step's Skip button.
func Skip() Event { return Action(action.Choice(choiceSkip)) }

// edges lists the states reachable from each state besides itself.
// Every non-terminal state may also move to StateAborted. The notes step
// leads back to StateAwaitTime for the next dose and forward after the last.
var edges = map[State][]State{
	StateAwaitName:            {StateAwaitDescription},
	StateAwaitDescription:     {StateAwaitStartChoice},
	StateAwaitStartChoice:     {StateAwaitDurationChoice, StateStartCalendar},
	StateStartCalendar:        {StateAwaitDurationChoice},
	StateAwaitDurationChoice:  {StateAwaitFrequencyChoice, StateEndCalendar},
	StateEndCalendar:          {StateAwaitFrequencyChoice},
	StateAwaitFrequencyChoice: {StateAwaitDoseCountChoice, StateWeeklyPicker, StateAwaitIntervalNumber},
	StateWeeklyPicker:         {StateAwaitDoseCountChoice},
	StateAwaitIntervalNumber:  {StateAwaitDoseCountChoice},
	StateAwaitDoseCountChoice: {StateAwaitTime, StateAwaitCustomDoseCount},
	StateAwaitCustomDoseCount: {StateAwaitTime},
	StateAwaitTime:            {StateAwaitDosage},
	StateAwaitDosage:          {StateAwaitNotesChoice},
	StateAwaitNotesChoice:     {StateAwaitTime, StateAwaitFinalConfirm},
	StateAwaitFinalConfirm:    {StateCommitted},
}

func allowed(from, to State) bool {
	if from == to || to == StateAborted {
		return !from.Terminal()
	}
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// handler consumes one event in one state and reports where to go next.
type handler func(w *Wizard, ctx context.Context, s *Session, ev Event) step

// transitions is keyed by (state, event kind). A missing entry means the
// state does not accept that kind of input.
var transitions = map[State]map[EventKind]handler{
	StateAwaitName:            {EventText: (*Wizard).onName},
	StateAwaitDescription:     {EventText: (*Wizard).onDescriptionText, EventAction: (*Wizard).onDescriptionSkip},
	StateAwaitStartChoice:     {EventAction: (*Wizard).onStartChoice},
	StateStartCalendar:        {EventAction: (*Wizard).onStartCalendar},
	StateAwaitDurationChoice:  {EventAction: (*Wizard).onDurationChoice},
	StateEndCalendar:          {EventAction: (*Wizard).onEndCalendar},
	StateAwaitFrequencyChoice: {EventAction: (*Wizard).onFrequencyChoice},
	StateWeeklyPicker:         {EventAction: (*Wizard).onWeeklyPicker},
	StateAwaitIntervalNumber:  {EventText: (*Wizard).onIntervalNumber},
	StateAwaitDoseCountChoice: {EventAction: (*Wizard).onDoseCountChoice},
	StateAwaitCustomDoseCount: {EventText: (*Wizard).onCustomDoseCount},
	StateAwaitTime:            {EventText: (*Wizard).onTime},
	StateAwaitDosage:          {EventText: (*Wizard).onDosage},
	StateAwaitNotesChoice:     {EventAction: (*Wizard).onNotesChoice},
	StateAwaitFinalConfirm:    {EventAction: (*Wizard).onFinalConfirm},
}
