package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"debatehall/internal/membership"
	"debatehall/internal/memstore"
	"debatehall/pkg/types"
)

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	opts   [][]asynq.Option
	fail   error
	closed bool
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: "notifications"}, nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() *types.MessagePostedEvent {
	return &types.MessagePostedEvent{
		MessageID:  10,
		SessionID:  2,
		SenderID:   3,
		SenderName: "alice",
		Content:    "hello",
		Recipients: []int64{1, 4},
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestAsynqSink_EnqueuesTask(t *testing.T) {
	client := &fakeEnqueuer{}
	sink := NewAsynqSinkWithClient(client, "notifications", 3)

	event := sampleEvent()
	if err := sink.MessagePosted(context.Background(), event); err != nil {
		t.Fatalf("MessagePosted() error = %v", err)
	}
	if len(client.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(client.tasks))
	}

	decoded, err := ParseMessagePostedTask(client.tasks[0])
	if err != nil {
		t.Fatalf("ParseMessagePostedTask() error = %v", err)
	}
	if decoded.MessageID != event.MessageID || decoded.Content != "hello" || len(decoded.Recipients) != 2 {
		t.Errorf("decoded event = %+v", decoded)
	}

	found := map[asynq.OptionType]interface{}{}
	for _, opt := range client.opts[0] {
		found[opt.Type()] = opt.Value()
	}
	if found[asynq.QueueOpt] != "notifications" {
		t.Errorf("queue option = %v", found[asynq.QueueOpt])
	}
	if found[asynq.MaxRetryOpt] != 3 {
		t.Errorf("max retry option = %v", found[asynq.MaxRetryOpt])
	}
	if id, _ := found[asynq.TaskIDOpt].(string); id == "" {
		t.Error("each task should carry a unique ID")
	}

	if err := sink.Close(); err != nil || !client.closed {
		t.Error("Close should close the client")
	}
}

func TestAsynqSink_Errors(t *testing.T) {
	client := &fakeEnqueuer{fail: errors.New("redis down")}
	sink := NewAsynqSinkWithClient(client, "", 0)

	if err := sink.MessagePosted(context.Background(), sampleEvent()); err == nil {
		t.Error("enqueue failure should be reported")
	}
	if err := sink.MessagePosted(context.Background(), nil); !errors.Is(err, ErrEmptyEvent) {
		t.Errorf("nil event error = %v", err)
	}
}

func TestNewAsynqSink_InvalidURL(t *testing.T) {
	if _, err := NewAsynqSink("not-a-redis-url", "notifications", 3); err == nil {
		t.Error("expected error for invalid redis URL")
	}
}

func TestParseMessagePostedTask_WrongType(t *testing.T) {
	if _, err := ParseMessagePostedTask(asynq.NewTask("other", nil)); err == nil {
		t.Error("expected error for foreign task type")
	}
	if _, err := ParseMessagePostedTask(asynq.NewTask(TaskTypeMessagePosted, []byte("{"))); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestLogSink(t *testing.T) {
	var sink LogSink
	if err := sink.MessagePosted(context.Background(), sampleEvent()); err != nil {
		t.Errorf("MessagePosted() error = %v", err)
	}
	if err := sink.MessagePosted(context.Background(), nil); !errors.Is(err, ErrEmptyEvent) {
		t.Errorf("nil event error = %v", err)
	}
}

func TestRecipients(t *testing.T) {
	ctx := context.Background()
	members := membership.NewManager(memstore.New())
	now := time.Now()
	session := &types.DebateSession{ID: 1, CreatedBy: 100, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), MaxParticipants: 10}

	for _, id := range []int64{3, 1, 2} {
		if _, err := members.Join(ctx, id, session, now); err != nil {
			t.Fatal(err)
		}
	}
	if err := members.Leave(ctx, 2, session.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		sender int64
		want   []int64
	}{
		{"participant sends", 1, []int64{3, 100}},
		{"creator sends", 100, []int64{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recipients(ctx, members, session, tt.sender)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Recipients() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Recipients() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
