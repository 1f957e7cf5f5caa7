package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePresence(t *testing.T) {
	assert.Equal(t, PresenceAway, ParsePresence("away"))
	assert.Equal(t, PresenceActive, ParsePresence("active"))
	assert.Equal(t, PresenceUnknown, ParsePresence(""))
	assert.Equal(t, PresenceUnknown, ParsePresence("Active"))
	assert.Equal(t, PresenceUnknown, ParsePresence("dnd"))
}

func TestMemberTrackable(t *testing.T) {
	assert.True(t, Member{ID: "U1"}.Trackable())
	assert.False(t, Member{ID: "U2", Deleted: true}.Trackable())
	assert.False(t, Member{ID: "U3", IsBot: true}.Trackable())
	assert.False(t, Member{ID: "U4", IsRestricted: true}.Trackable())
}
