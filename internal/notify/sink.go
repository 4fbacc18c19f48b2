// Package notify hands "message posted" events to downstream delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// TaskTypeMessagePosted is the asynq task type for a new chat message
const TaskTypeMessagePosted = "debate:message_posted"

// ErrEmptyEvent is returned for a nil event
var ErrEmptyEvent = errors.New("notify: event is required")

// Enqueuer is the part of *asynq.Client the sink uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqSink enqueues one task per posted message
type AsynqSink struct {
	client   Enqueuer
	queue    string
	maxRetry int
}

// NewAsynqSink connects to the Redis instance behind redisURL
func NewAsynqSink(redisURL, queue string, maxRetry int) (*AsynqSink, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return NewAsynqSinkWithClient(asynq.NewClient(opt), queue, maxRetry), nil
}

func NewAsynqSinkWithClient(client Enqueuer, queue string, maxRetry int) *AsynqSink {
	return &AsynqSink{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
	}
}

// NewMessagePostedTask encodes event as an asynq task
func NewMessagePostedTask(event *types.MessagePostedEvent) (*asynq.Task, error) {
	if event == nil {
		return nil, ErrEmptyEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("notify: encode event: %w", err)
	}
	return asynq.NewTask(TaskTypeMessagePosted, payload), nil
}

// ParseMessagePostedTask decodes a task produced by NewMessagePostedTask
func ParseMessagePostedTask(task *asynq.Task) (*types.MessagePostedEvent, error) {
	if task.Type() != TaskTypeMessagePosted {
		return nil, fmt.Errorf("notify: unexpected task type %q", task.Type())
	}
	var event types.MessagePostedEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return nil, fmt.Errorf("notify: decode event: %w", err)
	}
	return &event, nil
}

// MessagePosted implements interfaces.NotificationSink
func (s *AsynqSink) MessagePosted(ctx context.Context, event *types.MessagePostedEvent) error {
	task, err := NewMessagePostedTask(event)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.TaskID(uuid.NewString())}
	if s.queue != "" {
		opts = append(opts, asynq.Queue(s.queue))
	}
	if s.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.maxRetry))
	}

	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	log.Printf("Notification enqueued: task=%s message=%d recipients=%d", info.ID, event.MessageID, len(event.Recipients))
	return nil
}

func (s *AsynqSink) Close() error {
	return s.client.Close()
}

// LogSink writes events to the log. Used when no queue is configured.
type LogSink struct{}

func (LogSink) MessagePosted(ctx context.Context, event *types.MessagePostedEvent) error {
	if event == nil {
		return ErrEmptyEvent
	}
	log.Printf("Message posted: message=%d session=%d sender=%d recipients=%v",
		event.MessageID, event.SessionID, event.SenderID, event.Recipients)
	return nil
}

// ParticipantLister lists a session's active members
type ParticipantLister interface {
	ActiveParticipants(ctx context.Context, sessionID int64) ([]*types.Participant, error)
}

// Recipients is every active participant plus the creator, minus the sender, ascending
func Recipients(ctx context.Context, members ParticipantLister, session *types.DebateSession, senderID int64) ([]int64, error) {
	participants, err := members.ActiveParticipants(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	seen := make(map[int64]bool, len(participants)+1)
	recipients := make([]int64, 0, len(participants)+1)
	add := func(id int64) {
		if id == senderID || seen[id] {
			return
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	for _, p := range participants {
		add(p.UserID)
	}
	add(session.CreatedBy)

	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	return recipients, nil
}

var (
	_ interfaces.NotificationSink = (*AsynqSink)(nil)
	_ interfaces.NotificationSink = LogSink{}
)
