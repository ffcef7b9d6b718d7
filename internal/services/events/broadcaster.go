package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// EventType is the kind of session event being broadcast
type EventType string

const (
	EventTypeSessionStarted   EventType = "session.started"
	EventTypeIterationDone    EventType = "session.iteration"
	EventTypeSessionCompleted EventType = "session.completed"
	EventTypeSessionFailed    EventType = "session.failed"
)

// ChannelPrefix prefixes the per-session channels; subscribe to
// ChannelPrefix+"*" to follow every session
const ChannelPrefix = "balance-events:"

// Event is one session progress message
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"session_id"`
	JobID     string           `json:"job_id,omitempty"`
	Path      string           `json:"path,omitempty"`
	Iteration *IterationDigest `json:"iteration,omitempty"`
	Outcome   tuner.Outcome    `json:"outcome,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// IterationDigest is the part of a tuner.Iteration worth broadcasting
type IterationDigest struct {
	Number           int            `json:"number"`
	Seed             int64          `json:"seed"`
	EndingCounts     map[string]int `json:"ending_counts"`
	DeadEndRate      float64        `json:"dead_end_rate"`
	EffectiveEndings float64        `json:"effective_endings"`
	Issues           []string       `json:"issues"`
	Adjustments      int            `json:"adjustments"`
}

// Digest summarises an iteration for broadcasting
func Digest(it tuner.Iteration) *IterationDigest {
	d := &IterationDigest{
		Number:      it.Number,
		Seed:        it.Seed,
		Issues:      make([]string, 0, len(it.Issues)),
		Adjustments: len(it.Adjustments),
	}
	if it.Stats != nil {
		d.EndingCounts = it.Stats.EndingCounts
		d.DeadEndRate = it.Stats.DeadEndRate()
		d.EffectiveEndings = it.Stats.EffectiveEndings()
	}
	for _, issue := range it.Issues {
		d.Issues = append(d.Issues, issue.String())
	}
	return d
}

// Channel is the pub/sub channel for one session
func Channel(sessionID uuid.UUID) string {
	return ChannelPrefix + sessionID.String()
}

// Broadcaster publishes session events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (b *Broadcaster) PublishSessionStarted(ctx context.Context, sessionID uuid.UUID, jobID, path string) error {
	return b.publish(ctx, sessionID, Event{
		Type:  EventTypeSessionStarted,
		JobID: jobID,
		Path:  path,
	})
}

func (b *Broadcaster) PublishIteration(ctx context.Context, sessionID uuid.UUID, it tuner.Iteration) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeIterationDone,
		Iteration: Digest(it),
	})
}

func (b *Broadcaster) PublishSessionCompleted(ctx context.Context, sessionID uuid.UUID, outcome tuner.Outcome) error {
	return b.publish(ctx, sessionID, Event{
		Type:    EventTypeSessionCompleted,
		Outcome: outcome,
	})
}

func (b *Broadcaster) PublishSessionFailed(ctx context.Context, sessionID uuid.UUID, errorMsg string) error {
	return b.publish(ctx, sessionID, Event{
		Type:  EventTypeSessionFailed,
		Error: errorMsg,
	})
}

func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	event.SessionID = sessionID.String()
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", "channel", channel, "event_type", event.Type)
	return nil
}

// Subscribe follows every session's events until ctx is done. The returned
// channel is closed when the subscription ends.
func Subscribe(ctx context.Context, redisClient *redis.Client, logger *slog.Logger) <-chan Event {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	out := make(chan Event)
	sub := redisClient.PSubscribe(ctx, ChannelPrefix+"*")

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("Skipping malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
