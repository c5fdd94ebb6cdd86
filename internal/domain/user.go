package domain

import "time"

// User is a registered chat participant. TZ is fixed at registration.
type User struct {
	ID        int64
	ChatID    int64 // external (Telegram) id
	FirstName string
	TZ        string
	CreatedAt time.Time // UTC
}

// Location resolves the user's timezone, falling back to UTC for unknown names.
func (u *User) Location() *time.Location {
	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns the user's local calendar date for the instant now.
func (u *User) Today(now time.Time) time.Time {
	return DateOf(now.In(u.Location()))
}
