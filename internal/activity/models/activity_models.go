package models

import (
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
)

// PresenceState is the closed set of presence signals stored per event and
// per slot.
type PresenceState int

const (
	PresenceUnknown PresenceState = -1
	PresenceAway    PresenceState = 0
	PresenceActive  PresenceState = 1
)

// ParsePresence normalizes the upstream presence string. Anything other than
// "away" or "active" is Unknown.
func ParsePresence(s string) PresenceState {
	switch s {
	case "away":
		return PresenceAway
	case "active":
		return PresenceActive
	default:
		return PresenceUnknown
	}
}

func (p PresenceState) String() string {
	switch p {
	case PresenceAway:
		return "away"
	case PresenceActive:
		return "active"
	default:
		return "unknown"
	}
}

// RawActivityEvent is one presence change as reported upstream.
type RawActivityEvent struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	Timestamp    int64         `gorm:"column:ts;not null" json:"ts"`
	UserID       string        `gorm:"column:user_id;not null;index:idx_activity_date_user,priority:2" json:"userId"`
	UserPresence PresenceState `gorm:"column:user_presence;not null" json:"userPresence"`
	Date         string        `gorm:"column:date;not null;index:idx_activity_date_user,priority:1" json:"date"`
}

func (RawActivityEvent) TableName() string {
	return "activity"
}

// UserProfile is written once per user, first seen wins.
type UserProfile struct {
	UserID       string `gorm:"column:user_id;primaryKey" json:"userId"`
	UserName     string `gorm:"column:user_name" json:"userName"`
	UserRealName string `gorm:"column:user_real_name" json:"userRealName"`
}

func (UserProfile) TableName() string {
	return "users"
}

// DailyActivityRow is the compacted form of one user's day.
type DailyActivityRow struct {
	UserID   string
	Date     string
	Activity [timeslot.SlotsPerDay]int
}

// Member is a workspace member as listed by the presence source.
type Member struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RealName     string `json:"real_name"`
	Deleted      bool   `json:"deleted"`
	IsBot        bool   `json:"is_bot"`
	IsRestricted bool   `json:"is_restricted"`
}

// Trackable reports whether presence of this member should be recorded.
func (m Member) Trackable() bool {
	return !m.Deleted && !m.IsBot && !m.IsRestricted
}

func (m Member) Profile() UserProfile {
	return UserProfile{UserID: m.ID, UserName: m.Name, UserRealName: m.RealName}
}

// PresenceChange is a presence_change notification for one user.
type PresenceChange struct {
	UserID   string
	Presence string
}
