// Package wizard implements the conversational medication setup as an
// explicit state machine. It is independent of the chat transport: inputs are
// Events and replies are Outputs.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/action"
	"github.com/ykvlv/medreminder-bot/internal/domain"
)

var (
	// ErrNoSession is returned by Handle when the chat has no wizard running.
	ErrNoSession = errors.New("no wizard session")
	// ErrIllegalTransition means a handler picked a state the table forbids.
	ErrIllegalTransition = errors.New("illegal wizard transition")
)

const (
	maxNameLen        = 256
	maxDescriptionLen = 1024
	maxDosageLen      = 256
	maxIntervalDays   = 365
)

// Saver persists the finished medication.
type Saver interface {
	CreateMedication(ctx context.Context, m *domain.Medication) error
}

// Message is one reply. Edit asks the transport to replace the message the
// triggering button belongs to instead of sending a new one.
type Message struct {
	Text     string
	Keyboard [][]action.Button
	Edit     bool
}

// Output is everything the transport should do in response to an event.
type Output struct {
	Messages []Message
	Toast    string // short callback notification
	Done     bool   // the session ended
}

// step is a handler's verdict.
type step struct {
	next     State
	notice   string // shown before the next prompt; alone when input was rejected
	toast    string
	reprompt bool // input was not what the state expects
}

// Wizard drives sessions through the state table.
type Wizard struct {
	saver    Saver
	sessions *SessionStore
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Wizard.
func New(saver Saver, sessions *SessionStore, log *zap.Logger) *Wizard {
	return &Wizard{
		saver:    saver,
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}
}

// Begin starts a new session for chatID, replacing any running one.
func (w *Wizard) Begin(chatID int64, user domain.User) Output {
	s := &Session{
		ChatID:    chatID,
		User:      user,
		State:     StateAwaitName,
		StartedAt: w.now().UTC(),
	}
	w.sessions.Put(s)
	w.log.Debug("wizard started", zap.Int64("chatID", chatID))
	return Output{Messages: []Message{w.prompt(s)}}
}

// Active reports whether chatID has a running session.
func (w *Wizard) Active(chatID int64) bool {
	_, ok := w.sessions.Get(chatID)
	return ok
}

// State returns the current state of chatID's session.
func (w *Wizard) State(chatID int64) (State, bool) {
	s, ok := w.sessions.Get(chatID)
	if !ok {
		return "", false
	}
	return s.State, true
}

// Cancel aborts chatID's session. It reports false when none was running.
func (w *Wizard) Cancel(chatID int64) (Output, bool) {
	s, ok := w.sessions.Get(chatID)
	if !ok {
		return Output{}, false
	}
	return w.abort(s, false), true
}

// Handle feeds one event to chatID's session.
func (w *Wizard) Handle(ctx context.Context, chatID int64, ev Event) (Output, error) {
	s, ok := w.sessions.Get(chatID)
	if !ok {
		return Output{}, ErrNoSession
	}

	if ev.Kind == EventAction {
		switch ev.Command.Kind {
		case action.KindIgnore:
			return Output{}, nil
		case action.KindCancel:
			return w.abort(s, true), nil
		}
	}

	var st step
	if h := transitions[s.State][ev.Kind]; h != nil {
		st = h(w, ctx, s, ev)
	} else {
		st = w.unexpected(s, ev)
	}
	return w.apply(s, ev, st)
}

func (w *Wizard) apply(s *Session, ev Event, st step) (Output, error) {
	from := s.State
	if !allowed(from, st.next) {
		w.sessions.Delete(s.ChatID)
		w.log.Error("illegal wizard transition",
			zap.Int64("chatID", s.ChatID),
			zap.String("from", string(from)),
			zap.String("to", string(st.next)),
		)
		out := Output{Messages: []Message{{Text: textInternalError}}, Done: true}
		return out, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, st.next)
	}
	s.State = st.next

	out := Output{Toast: st.toast}
	edit := ev.Kind == EventAction && !st.reprompt

	switch {
	case st.next.Terminal():
		w.sessions.Delete(s.ChatID)
		text := st.notice
		if text == "" {
			text = w.prompt(s).Text
		}
		out.Messages = []Message{{Text: text, Edit: edit}}
		out.Done = true

	case st.next == from && st.notice != "" && !st.reprompt:
		// Rejected input. The notice says what to fix.
		w.sessions.Put(s)
		out.Messages = []Message{{Text: st.notice}}

	default:
		w.sessions.Put(s)
		if st.notice != "" {
			out.Messages = append(out.Messages, Message{Text: st.notice, Edit: edit})
			edit = false
		}
		p := w.prompt(s)
		p.Edit = edit
		out.Messages = append(out.Messages, p)
	}

	if from != st.next {
		w.log.Debug("wizard transition",
			zap.Int64("chatID", s.ChatID),
			zap.String("from", string(from)),
			zap.String("to", string(st.next)),
		)
	}
	return out, nil
}

func (w *Wizard) abort(s *Session, edit bool) Output {
	w.sessions.Delete(s.ChatID)
	s.State = StateAborted
	w.log.Debug("wizard cancelled", zap.Int64("chatID", s.ChatID))
	return Output{Messages: []Message{{Text: textCancelled, Edit: edit}}, Done: true}
}

// unexpected re-prompts without advancing.
func (w *Wizard) unexpected(s *Session, ev Event) step {
	if ev.Kind == EventText {
		return step{next: s.State, notice: textUseButtons, reprompt: true}
	}
	return step{next: s.State, toast: textStaleButton, reprompt: true}
}

func (w *Wizard) stay(s *Session, notice string) step {
	return step{next: s.State, notice: notice}
}

func (w *Wizard) today(s *Session) time.Time {
	return s.User.Today(w.now())
}

// choice returns the value of a Choice command.
func choice(ev Event) (string, bool) {
	if ev.Command.Kind != action.KindChoice {
		return "", false
	}
	return ev.Command.Value, true
}

// --- handlers ---

func (w *Wizard) onName(_ context.Context, s *Session, ev Event) step {
	name := strings.TrimSpace(ev.Text)
	switch {
	case name == "":
		return w.stay(s, textNameRequired)
	case utf8.RuneCountInString(name) > maxNameLen:
		return w.stay(s, fmt.Sprintf(textTooLong, maxNameLen))
	}
	s.Draft.Name = name
	return step{next: StateAwaitDescription}
}

func (w *Wizard) onDescriptionText(_ context.Context, s *Session, ev Event) step {
	text := strings.TrimSpace(ev.Text)
	if text == "/skip" {
		s.Draft.Description = ""
		return step{next: StateAwaitStartChoice}
	}
	if utf8.RuneCountInString(text) > maxDescriptionLen {
		return w.stay(s, fmt.Sprintf(textTooLong, maxDescriptionLen))
	}
	s.Draft.Description = text
	return step{next: StateAwaitStartChoice}
}

func (w *Wizard) onDescriptionSkip(_ context.Context, s *Session, ev Event) step {
	if v, ok := choice(ev); !ok || v != choiceSkip {
		return w.unexpected(s, ev)
	}
	s.Draft.Description = ""
	return step{next: StateAwaitStartChoice}
}

func (w *Wizard) onStartChoice(_ context.Context, s *Session, ev Event) step {
	v, _ := choice(ev)
	today := w.today(s)
	switch v {
	case choiceToday:
		s.Draft.StartDate = today
	case choiceTomorrow:
		s.Draft.StartDate = domain.AddDays(today, 1)
	case choiceCalendar:
		s.Draft.TempDate = today
		return step{next: StateStartCalendar}
	default:
		return w.unexpected(s, ev)
	}
	return step{next: StateAwaitDurationChoice}
}

func (w *Wizard) onStartCalendar(_ context.Context, s *Session, ev Event) step {
	cmd := ev.Command
	if cmd.Value != targetStart {
		return w.unexpected(s, ev)
	}
	switch cmd.Kind {
	case action.KindNavigate:
		s.Draft.TempDate = cmd.Date
		return step{next: s.State}
	case action.KindSelect:
		s.Draft.StartDate = domain.DateOf(cmd.Date)
		return step{next: StateAwaitDurationChoice, toast: textDatePicked}
	}
	return w.unexpected(s, ev)
}

func (w *Wizard) onDurationChoice(_ context.Context, s *Session, ev Event) step {
	v, _ := choice(ev)
	start := s.Draft.StartDate
	switch v {
	case choiceEndless:
		s.Draft.EndDate = nil
	case choice7Days, choice14Days, choice30Days:
		end := domain.AddDays(start, durationDays[v])
		s.Draft.EndDate = &end
	case choiceCalendar:
		s.Draft.TempDate = domain.AddDays(start, 7)
		return step{next: StateEndCalendar}
	default:
		return w.unexpected(s, ev)
	}
	return step{next: StateAwaitFrequencyChoice}
}

func (w *Wizard) onEndCalendar(_ context.Context, s *Session, ev Event) step {
	cmd := ev.Command
	if cmd.Value != targetEnd {
		return w.unexpected(s, ev)
	}
	switch cmd.Kind {
	case action.KindNavigate:
		s.Draft.TempDate = cmd.Date
		return step{next: s.State}
	case action.KindSelect:
		end := domain.DateOf(cmd.Date)
		if end.Before(s.Draft.StartDate) {
			return step{next: s.State, toast: textEndBeforeStart}
		}
		s.Draft.EndDate = &end
		return step{next: StateAwaitFrequencyChoice, toast: textDatePicked}
	}
	return w.unexpected(s, ev)
}

func (w *Wizard) onFrequencyChoice(_ context.Context, s *Session, ev Event) step {
	v, _ := choice(ev)
	switch v {
	case choiceDaily:
		s.Draft.Rule = domain.Daily()
		return step{next: StateAwaitDoseCountChoice}
	case choiceWeekly:
		s.Draft.Rule = domain.Weekly()
		return step{next: StateWeeklyPicker}
	case choiceInterval:
		return step{next: StateAwaitIntervalNumber}
	}
	return w.unexpected(s, ev)
}

func (w *Wizard) onWeeklyPicker(_ context.Context, s *Session, ev Event) step {
	cmd := ev.Command
	switch {
	case cmd.Kind == action.KindToggleDay:
		s.Draft.Rule.Weekdays = s.Draft.Rule.Weekdays.Toggle(cmd.Weekday)
		return step{next: s.State}
	case cmd.Kind == action.KindChoice && cmd.Value == calendarDaysDone:
		if s.Draft.Rule.Weekdays.Empty() {
			return step{next: s.State, toast: textPickADay}
		}
		return step{next: StateAwaitDoseCountChoice, toast: textDaysPicked}
	}
	return w.unexpected(s, ev)
}

func (w *Wizard) onIntervalNumber(_ context.Context, s *Session, ev Event) step {
	n, err := domain.ParseCount(ev.Text, 1, maxIntervalDays)
	if err != nil {
		return w.stay(s, fmt.Sprintf(textBadInterval, maxIntervalDays))
	}
	s.Draft.Rule = domain.EveryNDays(n)
	return step{next: StateAwaitDoseCountChoice}
}

func (w *Wizard) onDoseCountChoice(_ context.Context, s *Session, ev Event) step {
	v, _ := choice(ev)
	switch v {
	case choiceOnce, choiceTwice, choiceThrice:
		w.startDoses(s, doseCounts[v])
		return step{next: StateAwaitTime}
	case choiceCustom:
		return step{next: StateAwaitCustomDoseCount}
	}
	return w.unexpected(s, ev)
}

func (w *Wizard) onCustomDoseCount(_ context.Context, s *Session, ev Event) step {
	n, err := domain.ParseCount(ev.Text, domain.MinDosesPerDay, domain.MaxDosesPerDay)
	if err != nil {
		return w.stay(s, fmt.Sprintf(textBadDoseCount, domain.MinDosesPerDay, domain.MaxDosesPerDay))
	}
	w.startDoses(s, n)
	return step{next: StateAwaitTime}
}

func (w *Wizard) startDoses(s *Session, n int) {
	s.Draft.DosesPerDay = n
	s.Draft.Schedule = make([]domain.ScheduleEntry, n)
	s.Draft.CurrentScheduleIndex = 0
}

func (w *Wizard) onTime(_ context.Context, s *Session, ev Event) step {
	hhmm, err := domain.ParseClock(ev.Text)
	if err != nil {
		return w.stay(s, textBadTime)
	}
	s.Draft.Schedule[s.Draft.CurrentScheduleIndex].Time = hhmm
	return step{next: StateAwaitDosage}
}

func (w *Wizard) onDosage(_ context.Context, s *Session, ev Event) step {
	dosage := strings.TrimSpace(ev.Text)
	switch {
	case dosage == "":
		return w.stay(s, textDosageRequired)
	case utf8.RuneCountInString(dosage) > maxDosageLen:
		return w.stay(s, fmt.Sprintf(textTooLong, maxDosageLen))
	}
	s.Draft.Schedule[s.Draft.CurrentScheduleIndex].Dosage = dosage
	return step{next: StateAwaitNotesChoice}
}

func (w *Wizard) onNotesChoice(_ context.Context, s *Session, ev Event) step {
	v, _ := choice(ev)
	notes, ok := notePresets[v]
	if !ok {
		return w.unexpected(s, ev)
	}
	i := s.Draft.CurrentScheduleIndex
	s.Draft.Schedule[i].Notes = notes
	if i+1 < s.Draft.DosesPerDay {
		s.Draft.CurrentScheduleIndex = i + 1
		return step{next: StateAwaitTime, notice: fmt.Sprintf(textDoseSaved, i+1)}
	}
	return step{next: StateAwaitFinalConfirm}
}

func (w *Wizard) onFinalConfirm(ctx context.Context, s *Session, ev Event) step {
	if v, ok := choice(ev); !ok || v != choiceSave {
		return w.unexpected(s, ev)
	}
	m := s.Draft.Medication(s.User.ID)
	if err := w.saver.CreateMedication(ctx, m); err != nil {
		w.log.Error("save medication failed",
			zap.Int64("chatID", s.ChatID),
			zap.String("name", m.Name),
			zap.Error(err),
		)
		return step{next: StateAborted, notice: textSaveFailed, toast: textToastError}
	}
	w.log.Info("medication added",
		zap.Int64("chatID", s.ChatID),
		zap.Int64("medicationID", m.ID),
		zap.String("name", m.Name),
	)
	return step{next: StateCommitted, toast: textToastSaved}
}
