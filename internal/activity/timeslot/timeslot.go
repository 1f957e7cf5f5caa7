// Package timeslot maps unix timestamps onto calendar dates and five-minute
// slots under the single fixed offset the activity monitor reports in.
package timeslot

import (
	"fmt"
	"time"

	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

const (
	// Offset shifts UTC into the reporting locale (MSK, no DST).
	Offset = 3 * time.Hour

	// Width is the size of one activity slot.
	Width = 5 * time.Minute

	// SlotsPerDay is the number of slots in a calendar day.
	SlotsPerDay = int(24 * time.Hour / Width)

	// DateLayout is the format of every date key in storage and on the wire.
	DateLayout = "2006-01-02"

	zoneName = "MSK"
)

var weekDays = [...]string{"sun", "mon", "tue", "wed", "thur", "fri", "sat"}

// Location returns the fixed zone matching Offset.
func Location() *time.Location {
	return time.FixedZone(zoneName, int(Offset/time.Second))
}

// shifted returns ts+offset as a UTC time, so that calendar fields read off
// it are the local ones.
func shifted(ts int64, offset time.Duration) time.Time {
	return time.Unix(ts, 0).UTC().Add(offset)
}

// DateOf returns the YYYY-MM-DD date of ts in the frame shifted by offset.
func DateOf(ts int64, offset time.Duration) string {
	return shifted(ts, offset).Format(DateLayout)
}

// IntervalIndexOf returns the slot in [0, SlotsPerDay) that ts falls into.
func IntervalIndexOf(ts int64, offset time.Duration) (int, error) {
	if ts == 0 {
		return 0, apperrors.InvalidInput("interval index", "zero timestamp")
	}
	t := shifted(ts, offset)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(midnight) / Width), nil
}

// ParseDate validates a YYYY-MM-DD date key.
func ParseDate(date string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("malformed date", fmt.Sprintf("%q: want YYYY-MM-DD", date))
	}
	return d, nil
}

// Weekday returns the short weekday name of a date and whether it falls on a
// weekend.
func Weekday(date string) (string, bool, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", false, err
	}
	wd := d.Weekday()
	return weekDays[wd], wd == time.Sunday || wd == time.Saturday, nil
}
