package wizard

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ykvlv/medreminder-bot/internal/domain"
)

// Draft accumulates answers until the medication is saved.
type Draft struct {
	Name        string
	Description string
	StartDate   time.Time
	EndDate     *time.Time
	Rule        domain.Rule
	DosesPerDay int
	Schedule    []domain.ScheduleEntry

	// CurrentScheduleIndex is the dose being collected in the dose loop.
	CurrentScheduleIndex int
	// TempDate is the pivot of the calendar currently on screen.
	TempDate time.Time
}

// Medication builds the medication to persist for userID.
func (d *Draft) Medication(userID int64) *domain.Medication {
	sched := make([]domain.ScheduleEntry, len(d.Schedule))
	copy(sched, d.Schedule)
	return &domain.Medication{
		UserID:      userID,
		Name:        d.Name,
		Description: d.Description,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		Rule:        d.Rule,
		DosesPerDay: d.DosesPerDay,
		Schedule:    sched,
	}
}

// Session is one in-progress wizard conversation.
type Session struct {
	ChatID    int64
	User      domain.User
	State     State
	Draft     Draft
	StartedAt time.Time
}

// SessionStore keeps sessions in memory keyed by chat. Idle sessions expire
// after the TTL.
type SessionStore struct {
	c *cache.Cache
}

// NewSessionStore creates a store whose entries expire after ttl of inactivity.
func NewSessionStore(ttl time.Duration) *SessionStore {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &SessionStore{c: cache.New(ttl, cleanup)}
}

func sessionKey(chatID int64) string { return strconv.FormatInt(chatID, 10) }

// Get returns the session for chatID.
func (s *SessionStore) Get(chatID int64) (*Session, bool) {
	v, ok := s.c.Get(sessionKey(chatID))
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Put stores sess and restarts its TTL.
func (s *SessionStore) Put(sess *Session) {
	s.c.Set(sessionKey(sess.ChatID), sess, cache.DefaultExpiration)
}

// Delete drops the session for chatID.
func (s *SessionStore) Delete(chatID int64) {
	s.c.Delete(sessionKey(chatID))
}

// Len is the number of live sessions.
func (s *SessionStore) Len() int { return s.c.ItemCount() }
