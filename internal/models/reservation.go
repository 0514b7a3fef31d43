package models

import (
	"errors"
	"fmt"
)

// ErrNotAnnouncement is returned for messages that don't look like vacation
// announcements at all (wrong segment count). These are dropped silently.
var ErrNotAnnouncement = errors.New("message is not a vacation announcement")

// ErrNoNamePattern is returned when the first segment has no [name] bracket.
var ErrNoNamePattern = errors.New("announcement has no bracketed name")

// ErrNoDatePattern is returned when the second segment has no 'MM월 DD일' date.
var ErrNoDatePattern = errors.New("announcement has no vacation date")

// Table identifies one of the two reservation tables.
type Table string

const (
	// TableDayOf holds rosters posted on the vacation day itself.
	TableDayOf Table = "day-of"
	// TableDayBefore holds rosters posted on the eve of the vacation day.
	TableDayBefore Table = "day-before"
)

// Announcement is a parsed vacation announcement message.
type Announcement struct {
	Name    string `validate:"required"`
	RawText string `validate:"required"`
	Cancel  bool
	Month   int `validate:"gte=1,lte=12"`
	Day     int `validate:"gte=1,lte=31"`
}

// Entry formats the roster line persisted for this announcement.
func (a Announcement) Entry() string {
	return fmt.Sprintf("%s님 : %s", a.Name, a.RawText)
}

// Reservation is the stored roster for one day key. Entries keeps insertion
// order. A reservation with no entries is never stored; it is deleted instead.
type Reservation struct {
	Day     int64    `firestore:"day" json:"day"`
	Entries []string `firestore:"message" json:"entries"`
}

// ScheduledPost mirrors one element of Slack's chat.scheduledMessages.list
// response.
type ScheduledPost struct {
	ID        string
	ChannelID string
	PostAt    int64
	Text      string
}
