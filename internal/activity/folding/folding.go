// Package folding turns one user's raw presence events for one day into the
// dense 288-slot encoding stored in the stats table.
package folding

import (
	"fmt"
	"sort"
	"time"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

// Options tunes the fold. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	Offset time.Duration

	// FutureValue is written to slots of the current day that have not
	// happened yet. It defaults to Away, which the front-end colour scale
	// cannot tell apart from real away time.
	FutureValue models.PresenceState
}

func DefaultOptions() Options {
	return Options{
		Offset:      timeslot.Offset,
		FutureValue: models.PresenceAway,
	}
}

// DayActivity is the folded result for one date.
type DayActivity struct {
	Date     string
	Activity [timeslot.SlotsPerDay]int
}

type Folder struct {
	opts Options
}

func NewFolder(opts Options) *Folder {
	return &Folder{opts: opts}
}

type slotted struct {
	slot  int
	state models.PresenceState
}

// Fold folds events (one user, one date) into a DayActivity. now decides
// which slots of the current date lie in the future.
//
// Within a slot every event updates the carried state, and any event with a
// state > 0 also writes the slot. An away event after an active one in the
// same slot therefore leaves the slot at active while carrying away forward.
func (f *Folder) Fold(events []models.RawActivityEvent, now int64) (*DayActivity, error) {
	date, slots, err := f.prepare(events)
	if err != nil {
		return nil, err
	}

	today := timeslot.DateOf(now, f.opts.Offset)
	nowSlot, err := timeslot.IntervalIndexOf(now, f.opts.Offset)
	if err != nil {
		return nil, err
	}

	day := &DayActivity{Date: date}
	lastState := models.PresenceAway
	cursor := 0

	for i := 0; i < timeslot.SlotsPerDay; i++ {
		found := false

		for cursor < len(slots) && slots[cursor].slot == i {
			lastState = slots[cursor].state
			if lastState > 0 {
				day.Activity[i] = int(lastState)
				found = true
			}
			cursor++
		}

		if date == today && i > nowSlot {
			day.Activity[i] = int(f.opts.FutureValue)
			continue
		}

		if !found {
			day.Activity[i] = int(lastState)
		}
	}

	return day, nil
}

// prepare checks that events cover exactly one date and resolves the slot of
// each event in timestamp order.
func (f *Folder) prepare(events []models.RawActivityEvent) (string, []slotted, error) {
	ordered := make([]models.RawActivityEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Timestamp < ordered[b].Timestamp
	})

	dates := make(map[string]struct{})
	slots := make([]slotted, 0, len(ordered))
	for _, ev := range ordered {
		slot, err := timeslot.IntervalIndexOf(ev.Timestamp, f.opts.Offset)
		if err != nil {
			return "", nil, err
		}
		dates[timeslot.DateOf(ev.Timestamp, f.opts.Offset)] = struct{}{}
		slots = append(slots, slotted{slot: slot, state: ev.UserPresence})
	}

	if len(dates) != 1 {
		keys := make([]string, 0, len(dates))
		for d := range dates {
			keys = append(keys, d)
		}
		sort.Strings(keys)
		return "", nil, apperrors.Consistency("fold expects exactly one date", fmt.Sprintf("got %d: %v", len(keys), keys))
	}

	var date string
	for d := range dates {
		date = d
	}
	return date, slots, nil
}
