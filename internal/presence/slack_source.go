package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/models"
)

// ErrNotConnected is returned by Resubscribe before the RTM session is up.
var ErrNotConnected = errors.New("slack rtm not connected")

// ErrInvalidAuth means the API token was rejected. It is not retried.
var ErrInvalidAuth = errors.New("slack rejected the api token")

// slackAPI is the part of *slack.RTM used after connecting.
type slackAPI interface {
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	NewSubscribeUserPresence(ids []string) *slack.OutgoingMessage
	SendMessage(msg *slack.OutgoingMessage)
}

// SlackSource follows workspace presence over the Slack RTM API.
type SlackSource struct {
	token      string
	log        *zap.Logger
	newBackOff func() backoff.BackOff

	mu   sync.Mutex
	api  slackAPI
	sink Sink

	// subscribeMu serializes subscribe. pending asks the running background
	// pass to go once more when it is done.
	subscribeMu sync.Mutex
	bgMu        sync.Mutex
	bgRunning   bool
	bgPending   bool
	bg          sync.WaitGroup
	fatal       chan error
}

func NewSlackSource(token string, log *zap.Logger) *SlackSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &SlackSource{
		token: token,
		log:   log.Named("slack"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		fatal: make(chan error, 1),
	}
}

// Run opens the RTM session and dispatches its events until ctx ends.
// The slack client reconnects on its own; only an invalid token stops Run.
func (s *SlackSource) Run(ctx context.Context, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer s.bg.Wait()
	defer cancel()

	api := slack.New(s.token, slack.OptionLog(zap.NewStdLog(s.log)))
	rtm := api.NewRTM()
	go rtm.ManageConnection()
	defer func() {
		if err := rtm.Disconnect(); err != nil {
			s.log.Debug("rtm disconnect", zap.Error(err))
		}
	}()

	s.attach(rtm, sink)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fatal:
			return err
		case ev, ok := <-rtm.IncomingEvents:
			if !ok {
				return nil
			}
			if err := s.handle(ctx, ev.Data); err != nil {
				return err
			}
		}
	}
}

// Resubscribe lists the workspace again and renews the presence
// subscription. Slack drops subscriptions over time, so this runs daily.
func (s *SlackSource) Resubscribe(ctx context.Context) error {
	return s.subscribe(ctx)
}

func (s *SlackSource) attach(api slackAPI, sink Sink) {
	s.mu.Lock()
	s.api = api
	s.sink = sink
	s.mu.Unlock()
}

func (s *SlackSource) conn() (slackAPI, Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api, s.sink
}

func (s *SlackSource) handle(ctx context.Context, data interface{}) error {
	switch ev := data.(type) {
	case *slack.ConnectedEvent:
		s.log.Info("rtm connected", zap.Int("connection_count", ev.ConnectionCount))
		s.subscribeInBackground(ctx)

	case *slack.PresenceChangeEvent:
		_, sink := s.conn()
		for _, change := range presenceChanges(ev) {
			sink.OnPresenceChange(ctx, change)
		}

	case *slack.TeamJoinEvent:
		_, sink := s.conn()
		if err := sink.AddMember(ctx, memberFromSlack(ev.User)); err != nil {
			s.log.Error("failed to add member", zap.String("user_id", ev.User.ID), zap.Error(err))
			return nil
		}
		s.subscribeInBackground(ctx)

	case *slack.InvalidAuthEvent:
		return ErrInvalidAuth

	case *slack.ConnectionErrorEvent:
		s.log.Warn("rtm connection error", zap.Int("attempt", ev.Attempt), zap.Error(ev.ErrorObj))

	case *slack.RTMError:
		s.log.Warn("rtm error", zap.Int("code", ev.Code), zap.String("msg", ev.Msg))
	}
	return nil
}

// subscribeInBackground runs subscribe off the event loop so presence
// changes keep flowing while users are listed. Requests arriving during a
// pass are folded into one more pass.
func (s *SlackSource) subscribeInBackground(ctx context.Context) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.bgRunning {
		s.bgPending = true
		return
	}
	s.bgRunning = true
	s.bg.Add(1)
	go s.subscribeLoop(ctx)
}

func (s *SlackSource) subscribeLoop(ctx context.Context) {
	defer s.bg.Done()
	for {
		if err := s.subscribe(ctx); err != nil {
			if errors.Is(err, ErrInvalidAuth) {
				select {
				case s.fatal <- err:
				default:
				}
			} else {
				s.log.Error("presence subscription failed", zap.Error(err))
			}
		}

		s.bgMu.Lock()
		if !s.bgPending || ctx.Err() != nil {
			s.bgRunning = false
			s.bgPending = false
			s.bgMu.Unlock()
			return
		}
		s.bgPending = false
		s.bgMu.Unlock()
	}
}

// subscribe lists members, syncs the directory and sends presence_sub for
// every tracked id. Listing is retried with exponential backoff.
func (s *SlackSource) subscribe(ctx context.Context) error {
	api, sink := s.conn()
	if api == nil || sink == nil {
		return ErrNotConnected
	}

	s.subscribeMu.Lock()
	defer s.subscribeMu.Unlock()

	var users []slack.User
	list := func() error {
		var err error
		users, err = api.GetUsersContext(ctx)
		if err != nil && isAuthError(err) {
			return backoff.Permanent(ErrInvalidAuth)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("listing users failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(list, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	members := make([]models.Member, 0, len(users))
	for _, u := range users {
		members = append(members, memberFromSlack(u))
	}

	ids, err := sink.SyncMembers(ctx, members)
	if err != nil {
		return fmt.Errorf("sync members: %w", err)
	}
	if len(ids) == 0 {
		s.log.Warn("no trackable members, presence subscription skipped")
		return nil
	}

	api.SendMessage(api.NewSubscribeUserPresence(ids))
	s.log.Info("subscribed to presence", zap.Int("users", len(ids)))
	return nil
}

func presenceChanges(ev *slack.PresenceChangeEvent) []models.PresenceChange {
	var out []models.PresenceChange
	if ev.User != "" {
		out = append(out, models.PresenceChange{UserID: ev.User, Presence: ev.Presence})
	}
	for _, id := range ev.Users {
		out = append(out, models.PresenceChange{UserID: id, Presence: ev.Presence})
	}
	return out
}

func memberFromSlack(u slack.User) models.Member {
	return models.Member{
		ID:           u.ID,
		Name:         u.Name,
		RealName:     u.RealName,
		Deleted:      u.Deleted,
		IsBot:        u.IsBot,
		IsRestricted: u.IsRestricted,
	}
}

func isAuthError(err error) bool {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return slackErr.Err == "invalid_auth" || slackErr.Err == "not_authed" || slackErr.Err == "account_inactive"
	}
	return err.Error() == "invalid_auth"
}
