// Package presence connects upstream presence feeds to the recorder.
package presence

import (
	"context"

	"github.com/jgirmay/slack-activity/internal/activity/models"
)

// Sink receives member listings and presence changes from a Source.
type Sink interface {
	// SyncMembers replaces the member directory and returns the ids whose
	// presence should be followed.
	SyncMembers(ctx context.Context, members []models.Member) ([]string, error)
	AddMember(ctx context.Context, member models.Member) error
	OnPresenceChange(ctx context.Context, change models.PresenceChange)
}

// Source feeds a Sink until ctx is cancelled or a fatal error occurs.
// Reconnecting after transient upstream failures is the source's job.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// Nop is a Source that never produces anything.
type Nop struct{}

func (Nop) Run(ctx context.Context, _ Sink) error {
	<-ctx.Done()
	return nil
}

func (Nop) Resubscribe(context.Context) error {
	return nil
}
