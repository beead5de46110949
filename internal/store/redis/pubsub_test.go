package redis_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/domain"
	redisstore "github.com/gosuda/taskgate/internal/store/redis"
)

// ---------------------------------------------------------------------------
// In-memory Broker
// ---------------------------------------------------------------------------

type memBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memSub]struct{}
}

type memSub struct {
	ch   chan []byte
	once sync.Once
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string]map[*memSub]struct{})}
}

func (b *memBroker) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for s := range b.subs[channel] {
		select {
		case s.ch <- append([]byte(nil), payload...):
			n++
		default:
		}
	}
	return n, nil
}

func (b *memBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	s := &memSub{ch: make(chan []byte, 64)}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memSub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	cleanup := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return s.ch, cleanup, nil
}

func (b *memBroker) subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// ---------------------------------------------------------------------------
// Channel names
// ---------------------------------------------------------------------------

func TestRequestChannel(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "taskgate:rpc:TASK_SERVICE", redisstore.RequestChannel("TASK_SERVICE"))
	})

	t.Run("different services produce different channels", func(t *testing.T) {
		t.Parallel()

		assert.NotEqual(t, redisstore.RequestChannel("TASK_SERVICE"), redisstore.RequestChannel("USER_SERVICE"))
	})
}

func TestReplyChannel(t *testing.T) {
	t.Parallel()

	got := redisstore.ReplyChannel("TASK_SERVICE", "abc")
	assert.Equal(t, "taskgate:rpc:TASK_SERVICE:reply:abc", got)
	assert.True(t, strings.HasPrefix(got, redisstore.RequestChannel("TASK_SERVICE")+":"))
	assert.NotEqual(t, got, redisstore.ReplyChannel("TASK_SERVICE", "xyz"))
}

func TestChannelFunctions_NoCollisionAcrossTypes(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, redisstore.NotificationsChannel, redisstore.RequestChannel("notifications"))
	assert.NotEqual(t, redisstore.RequestChannel("A"), redisstore.ReplyChannel("A", ""))
}

// ---------------------------------------------------------------------------
// Request / reply
// ---------------------------------------------------------------------------

func serve(t *testing.T, broker redisstore.Broker, service string, router *command.Router) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = redisstore.ServeRequests(ctx, broker, service, router)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return broker.(*memBroker).subscribers(redisstore.RequestChannel(service)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRequester_RoundTrip(t *testing.T) {
	t.Parallel()

	broker := newMemBroker()
	router := command.NewRouter("tasks")
	require.NoError(t, router.Handle(command.PatternFindOneTask, func(_ context.Context, payload codec.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := command.Decode(payload, &req); err != nil {
			return nil, err
		}
		if req.ID == "missing" {
			return nil, command.Errorf(command.CodeNotFound, "task %s not found", req.ID)
		}
		return map[string]string{"id": req.ID}, nil
	}))
	serve(t, broker, "TASK_SERVICE", router)

	r, err := redisstore.NewRequester(context.Background(), broker, "TASK_SERVICE", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	t.Run("ok", func(t *testing.T) {
		reply, err := r.Request(context.Background(), command.NewEnvelope(command.PatternFindOneTask, map[string]any{"id": "t1"}))
		require.NoError(t, err)
		require.True(t, reply.OK)

		var out map[string]string
		require.NoError(t, reply.Decode(&out))
		assert.Equal(t, "t1", out["id"])
	})

	t.Run("not found", func(t *testing.T) {
		reply, err := r.Request(context.Background(), command.NewEnvelope(command.PatternFindOneTask, map[string]any{"id": "missing"}))
		require.NoError(t, err)
		require.False(t, reply.OK)
		assert.Equal(t, command.CodeNotFound, reply.Error.Code)
	})

	t.Run("concurrent replies are matched by id", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := uuid.NewString()
				reply, err := r.Request(context.Background(), command.NewEnvelope(command.PatternFindOneTask, map[string]any{"id": id}))
				if !assert.NoError(t, err, i) {
					return
				}
				var out map[string]string
				assert.NoError(t, reply.Decode(&out))
				assert.Equal(t, id, out["id"])
			}()
		}
		wg.Wait()
	})
}

func TestRequester_NoListener(t *testing.T) {
	t.Parallel()

	r, err := redisstore.NewRequester(context.Background(), newMemBroker(), "TASK_SERVICE", time.Second)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Request(context.Background(), command.NewEnvelope(command.PatternFindAllTasks, nil))
	require.ErrorIs(t, err, redisstore.ErrNoListener)
}

func TestRequester_MaxWait(t *testing.T) {
	t.Parallel()

	broker := newMemBroker()
	// A listener that never answers.
	_, cleanup, err := broker.Subscribe(context.Background(), redisstore.RequestChannel("TASK_SERVICE"))
	require.NoError(t, err)
	defer cleanup()

	r, err := redisstore.NewRequester(context.Background(), broker, "TASK_SERVICE", 50*time.Millisecond)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Request(context.Background(), command.NewEnvelope(command.PatternFindAllTasks, nil))
	require.ErrorIs(t, err, redisstore.ErrNoReply)
}

func TestRequester_Closed(t *testing.T) {
	t.Parallel()

	broker := newMemBroker()
	r, err := redisstore.NewRequester(context.Background(), broker, "TASK_SERVICE", time.Second)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Request(context.Background(), command.NewEnvelope(command.PatternFindAllTasks, nil))
	require.ErrorIs(t, err, redisstore.ErrClosed)
}

func TestServeRequests_BadEnvelope(t *testing.T) {
	t.Parallel()

	broker := newMemBroker()
	serve(t, broker, "TASK_SERVICE", command.NewRouter("tasks"))

	r, err := redisstore.NewRequester(context.Background(), broker, "TASK_SERVICE", time.Second)
	require.NoError(t, err)
	defer r.Close()

	reply, err := r.Request(context.Background(), command.NewEnvelope("noSuchPattern", nil))
	require.NoError(t, err)
	require.False(t, reply.OK)
	assert.Equal(t, command.CodeUnknownPattern, reply.Error.Code)
}

// ---------------------------------------------------------------------------
// Notification feed
// ---------------------------------------------------------------------------

func TestNotificationFeed(t *testing.T) {
	t.Parallel()

	broker := newMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, cleanup, err := redisstore.SubscribeNotifications(ctx, broker)
	require.NoError(t, err)
	defer cleanup()

	taskID := uuid.New()
	want := domain.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Type:      domain.TaskEventAssigned,
		Message:   "You were assigned a task",
		TaskID:    &taskID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	// Garbage on the feed is skipped.
	_, err = broker.Publish(ctx, redisstore.NotificationsChannel, []byte{0xff})
	require.NoError(t, err)
	require.NoError(t, redisstore.PublishNotification(ctx, broker, want))

	select {
	case got := <-feed:
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.UserID, got.UserID)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Message, got.Message)
		require.NotNil(t, got.TaskID)
		assert.Equal(t, taskID, *got.TaskID)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestPublishNotification_NoSubscribers(t *testing.T) {
	t.Parallel()

	err := redisstore.PublishNotification(context.Background(), newMemBroker(), domain.Notification{ID: uuid.New()})
	assert.NoError(t, err)
}
