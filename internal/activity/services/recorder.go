package services

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/metrics"
)

// Recorder writes presence changes of known workspace members to the raw
// event store. It owns the member directory that decides who is known.
type Recorder struct {
	events  repository.RawEventRepository
	users   repository.UserRepository
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	members map[string]models.Member
}

func NewRecorder(events repository.RawEventRepository, users repository.UserRepository, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		events:  events,
		users:   users,
		clock:   clk,
		log:     log.Named("recorder"),
		metrics: m,
		members: make(map[string]models.Member),
	}
}

// SyncMembers replaces the member directory with the trackable members of
// list, storing a profile for each one not seen before. It returns the ids to
// subscribe to, sorted.
func (r *Recorder) SyncMembers(ctx context.Context, list []models.Member) ([]string, error) {
	directory := make(map[string]models.Member, len(list))
	for _, m := range list {
		if !m.Trackable() {
			continue
		}
		if _, err := r.users.InsertIfAbsent(ctx, m.Profile()); err != nil {
			return nil, err
		}
		directory[m.ID] = m
	}

	ids := make([]string, 0, len(directory))
	for id := range directory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.mu.Lock()
	r.members = directory
	r.mu.Unlock()

	r.log.Info("member directory synced", zap.Int("listed", len(list)), zap.Int("tracked", len(ids)))
	return ids, nil
}

// LoadMembers adds every stored profile to the member directory so presence
// of known users is recorded before the source lists the workspace again.
// Members already in the directory are kept as they are.
func (r *Recorder) LoadMembers(ctx context.Context) (int, error) {
	profiles, err := r.users.List(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	for _, p := range profiles {
		if _, ok := r.members[p.UserID]; ok {
			continue
		}
		r.members[p.UserID] = models.Member{ID: p.UserID, Name: p.UserName, RealName: p.UserRealName}
	}
	r.mu.Unlock()

	r.log.Info("member directory loaded", zap.Int("stored", len(profiles)))
	return len(profiles), nil
}

// AddMember tracks one member. A member that is no longer trackable is
// removed from the directory instead.
func (r *Recorder) AddMember(ctx context.Context, m models.Member) error {
	if !m.Trackable() {
		r.mu.Lock()
		delete(r.members, m.ID)
		r.mu.Unlock()
		return nil
	}

	if _, err := r.users.InsertIfAbsent(ctx, m.Profile()); err != nil {
		return err
	}

	r.mu.Lock()
	r.members[m.ID] = m
	r.mu.Unlock()
	return nil
}

// Known reports whether userID is in the member directory.
func (r *Recorder) Known(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[userID]
	return ok
}

// MemberIDs returns the tracked ids, sorted.
func (r *Recorder) MemberIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// OnPresenceChange stores one presence change stamped with the current time.
// Failures are logged and counted; the caller is never blocked on them.
func (r *Recorder) OnPresenceChange(ctx context.Context, change models.PresenceChange) {
	if !r.Known(change.UserID) {
		r.log.Error("presence change for unknown user", zap.String("user_id", change.UserID))
		r.metrics.PresenceDropped("unknown_user")
		return
	}

	state := models.ParsePresence(change.Presence)
	ts := r.clock.Now().Unix()

	if err := r.events.Append(ctx, change.UserID, state, ts); err != nil {
		r.log.Error("failed to store presence change",
			zap.String("user_id", change.UserID),
			zap.String("presence", change.Presence),
			zap.Error(err))
		r.metrics.PresenceDropped("store_error")
		return
	}

	r.metrics.PresenceRecorded(state.String())
	r.log.Debug("presence recorded",
		zap.String("user_id", change.UserID),
		zap.String("presence", state.String()),
		zap.Int64("ts", ts))
}
