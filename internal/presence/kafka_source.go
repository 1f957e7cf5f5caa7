package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/models"
)

// KafkaConfig captures the consumer settings of the Kafka source.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Envelope is one message on the presence topic.
type Envelope struct {
	Type string `json:"type"`

	// presence_change
	User     string   `json:"user,omitempty"`
	Users    []string `json:"users,omitempty"`
	Presence string   `json:"presence,omitempty"`

	// member
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	RealName     string `json:"real_name,omitempty"`
	Deleted      bool   `json:"deleted,omitempty"`
	IsBot        bool   `json:"is_bot,omitempty"`
	IsRestricted bool   `json:"is_restricted,omitempty"`
}

const (
	TypePresenceChange = "presence_change"
	TypeMember         = "member"
)

// ErrMalformed marks a message that cannot be decoded. It is skipped.
var ErrMalformed = errors.New("malformed presence message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes presence envelopes relayed from Slack by another
// process.
type KafkaSource struct {
	reader     messageReader
	log        *zap.Logger
	newBackOff func() backoff.BackOff
	closeOnce  sync.Once
}

func NewKafkaSource(cfg KafkaConfig, log *zap.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("presence topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaSource(reader, log), nil
}

func newKafkaSource(reader messageReader, log *zap.Logger) *KafkaSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSource{
		reader: reader,
		log:    log.Named("kafka"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run consumes until ctx is cancelled. Fetch errors are retried with
// backoff; offsets are committed once a message has been handled.
func (k *KafkaSource) Run(ctx context.Context, sink Sink) error {
	defer k.Close()

	retry := backoff.WithContext(k.newBackOff(), ctx)
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("fetch presence message: %w", err)
			}
			k.log.Warn("kafka fetch failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		if err := Dispatch(ctx, msg.Value, sink); err != nil {
			k.log.Error("presence message skipped",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.log.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Close shuts down the underlying Kafka reader. It is safe to call more than
// once.
func (k *KafkaSource) Close() {
	k.closeOnce.Do(func() {
		if err := k.reader.Close(); err != nil {
			k.log.Warn("kafka reader close", zap.Error(err))
		}
	})
}

// Dispatch decodes one envelope and hands it to sink.
func Dispatch(ctx context.Context, data []byte, sink Sink) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypePresenceChange:
		if env.User == "" && len(env.Users) == 0 {
			return fmt.Errorf("%w: presence_change without user", ErrMalformed)
		}
		if env.User != "" {
			sink.OnPresenceChange(ctx, models.PresenceChange{UserID: env.User, Presence: env.Presence})
		}
		for _, id := range env.Users {
			sink.OnPresenceChange(ctx, models.PresenceChange{UserID: id, Presence: env.Presence})
		}
		return nil

	case TypeMember:
		if env.ID == "" {
			return fmt.Errorf("%w: member without id", ErrMalformed)
		}
		return sink.AddMember(ctx, models.Member{
			ID:           env.ID,
			Name:         env.Name,
			RealName:     env.RealName,
			Deleted:      env.Deleted,
			IsBot:        env.IsBot,
			IsRestricted: env.IsRestricted,
		})

	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}
