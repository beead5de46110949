package board_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskgate/internal/board"
	"github.com/gosuda/taskgate/internal/domain"
)

type orderCall struct {
	ID    uuid.UUID
	Order int
}

// fakeAPI records every call. Unset funcs succeed with an echo of the
// requested change.
type fakeAPI struct {
	listFunc   func(ctx context.Context) ([]*domain.Task, error)
	statusFunc func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error)
	orderFunc  func(ctx context.Context, id uuid.UUID, order int) (*domain.Task, error)
	activeFunc func(ctx context.Context, id uuid.UUID, active bool) (*domain.Task, error)
	removeFunc func(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	mu           sync.Mutex
	listCalls   int
	statusCalls []domain.TaskStatus
	orderCalls  []orderCall
	activeCalls []bool
	removeCalls []uuid.UUID
}

func (f *fakeAPI) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.listFunc(ctx)
}

func (f *fakeAPI) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	f.mu.Lock()
	f.statusCalls = append(f.statusCalls, status)
	f.mu.Unlock()
	if f.statusFunc != nil {
		return f.statusFunc(ctx, id, status)
	}
	return &domain.Task{ID: id, Status: status, IsActive: true}, nil
}

func (f *fakeAPI) UpdateTaskOrder(ctx context.Context, id uuid.UUID, order int) (*domain.Task, error) {
	f.mu.Lock()
	f.orderCalls = append(f.orderCalls, orderCall{ID: id, Order: order})
	f.mu.Unlock()
	if f.orderFunc != nil {
		return f.orderFunc(ctx, id, order)
	}
	return nil, nil
}

func (f *fakeAPI) UpdateTaskActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Task, error) {
	f.mu.Lock()
	f.activeCalls = append(f.activeCalls, active)
	f.mu.Unlock()
	if f.activeFunc != nil {
		return f.activeFunc(ctx, id, active)
	}
	return &domain.Task{ID: id, IsActive: active}, nil
}

func (f *fakeAPI) RemoveTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, id)
	f.mu.Unlock()
	if f.removeFunc != nil {
		return f.removeFunc(ctx, id)
	}
	return &domain.Task{ID: id}, nil
}

func (f *fakeAPI) orders() []orderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.orderCalls)
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func task(title string, status domain.TaskStatus, order int) *domain.Task {
	return &domain.Task{
		ID:        uuid.New(),
		Title:     title,
		Status:    status,
		Order:     order,
		IsActive:  true,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

func listing(tasks ...*domain.Task) func(context.Context) ([]*domain.Task, error) {
	return func(context.Context) ([]*domain.Task, error) {
		out := make([]*domain.Task, len(tasks))
		for i, t := range tasks {
			out[i] = t.Clone()
		}
		return out, nil
	}
}

func loaded(t *testing.T, api *fakeAPI, confirm board.Confirmer) *board.Reconciler {
	t.Helper()
	r := board.New(api, confirm)
	require.NoError(t, r.Load(t.Context()))
	return r
}

func orders(v board.View, status domain.TaskStatus) []int {
	out := make([]int, 0, len(v[status]))
	for _, t := range v[status] {
		out = append(out, t.Order)
	}
	return out
}

func TestLoad_BucketsAndSorts(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 1)
	b := task("b", domain.TaskStatusTodo, 0)
	c := task("c", domain.TaskStatusDone, 0)
	archived := task("x", domain.TaskStatusTodo, 2)
	archived.IsActive = false

	r := loaded(t, &fakeAPI{listFunc: listing(a, b, c, archived)}, nil)
	v := r.View()

	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, v.IDs(domain.TaskStatusTodo))
	assert.Empty(t, v[domain.TaskStatusInProgress])
	assert.Equal(t, []uuid.UUID{c.ID}, v.IDs(domain.TaskStatusDone))
	assert.False(t, r.Pending())
}

func TestView_IsACopy(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	r := loaded(t, &fakeAPI{listFunc: listing(a)}, nil)

	v := r.View()
	v[domain.TaskStatusTodo][0].Title = "mutated"
	assert.Equal(t, "a", r.View()[domain.TaskStatusTodo][0].Title)
}

func TestMove_ReorderWithinColumn(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	api := &fakeAPI{listFunc: listing(a, b)}
	r := loaded(t, api, nil)

	require.NoError(t, r.Move(t.Context(), b.ID, domain.TaskStatusTodo, 0))

	v := r.View()
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, v.IDs(domain.TaskStatusTodo))
	assert.Equal(t, []int{0, 1}, orders(v, domain.TaskStatusTodo))
	assert.Empty(t, api.statusCalls, "same column never changes status")
	assert.ElementsMatch(t, []orderCall{{ID: a.ID, Order: 1}, {ID: b.ID, Order: 0}}, api.orders())
	assert.False(t, r.Pending())
}

func TestMove_AcrossColumns(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	c := task("c", domain.TaskStatusInProgress, 0)
	api := &fakeAPI{listFunc: listing(a, b, c)}
	r := loaded(t, api, nil)

	require.NoError(t, r.Move(t.Context(), a.ID, domain.TaskStatusInProgress, 1))

	v := r.View()
	assert.Equal(t, []uuid.UUID{b.ID}, v.IDs(domain.TaskStatusTodo))
	assert.Equal(t, []uuid.UUID{c.ID, a.ID}, v.IDs(domain.TaskStatusInProgress))
	assert.Equal(t, []int{0}, orders(v, domain.TaskStatusTodo))
	assert.Equal(t, []int{0, 1}, orders(v, domain.TaskStatusInProgress))
	assert.Equal(t, domain.TaskStatusInProgress, v[domain.TaskStatusInProgress][1].Status)

	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusInProgress}, api.statusCalls)
	assert.ElementsMatch(t, []orderCall{
		{ID: b.ID, Order: 0},
		{ID: c.ID, Order: 0},
		{ID: a.ID, Order: 1},
	}, api.orders())
}

func TestMove_ClampsIndex(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusDone, 0)
	r := loaded(t, &fakeAPI{listFunc: listing(a, b)}, nil)

	require.NoError(t, r.Move(t.Context(), a.ID, domain.TaskStatusDone, 99))
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, r.View().IDs(domain.TaskStatusDone))
}

func TestMove_SamePositionIssuesNothing(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	api := &fakeAPI{listFunc: listing(a)}
	r := loaded(t, api, nil)

	require.NoError(t, r.Move(t.Context(), a.ID, domain.TaskStatusTodo, 0))
	assert.Empty(t, api.statusCalls)
	assert.Empty(t, api.orders())
}

func TestMove_Rejections(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	r := loaded(t, &fakeAPI{listFunc: listing(a)}, nil)

	err := r.Move(t.Context(), uuid.New(), domain.TaskStatusDone, 0)
	require.ErrorIs(t, err, board.ErrTaskNotFound)

	err = r.Move(t.Context(), a.ID, "BLOCKED", 0)
	require.ErrorIs(t, err, board.ErrInvalidMove)
}

func TestMove_StatusFailureReloads(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	rejected := errors.New("INVALID_STATUS")
	api := &fakeAPI{
		listFunc: listing(a),
		statusFunc: func(context.Context, uuid.UUID, domain.TaskStatus) (*domain.Task, error) {
			return nil, rejected
		},
	}
	r := loaded(t, api, nil)

	err := r.Move(t.Context(), a.ID, domain.TaskStatusDone, 0)
	require.ErrorIs(t, err, rejected)

	v := r.View()
	assert.Equal(t, []uuid.UUID{a.ID}, v.IDs(domain.TaskStatusTodo), "reload restores the backend's column")
	assert.Empty(t, v[domain.TaskStatusDone])
	assert.Empty(t, api.orders(), "orders are not sent after a failed status change")
	assert.Equal(t, 2, api.listCalls)
	assert.False(t, r.Pending())
}

func TestMove_OrderFailureReloadsAndJoinsReloadError(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	orderErr := errors.New("order rejected")
	listErr := errors.New("service unavailable")

	var calls int
	api := &fakeAPI{
		listFunc: func(ctx context.Context) ([]*domain.Task, error) {
			calls++
			if calls > 1 {
				return nil, listErr
			}
			return listing(a, b)(ctx)
		},
		orderFunc: func(_ context.Context, id uuid.UUID, _ int) (*domain.Task, error) {
			if id == a.ID {
				return nil, orderErr
			}
			return nil, nil
		},
	}
	r := loaded(t, api, nil)

	err := r.Move(t.Context(), b.ID, domain.TaskStatusTodo, 0)
	require.ErrorIs(t, err, orderErr)
	require.ErrorIs(t, err, listErr)
	assert.Len(t, api.orders(), 2, "every order update is issued")
	assert.False(t, r.Pending())

	v := r.View()
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, v.IDs(domain.TaskStatusTodo), "board is back to its state before the move")
	assert.Equal(t, []int{0, 1}, orders(v, domain.TaskStatusTodo))
}

func TestMove_FailedReloadRestoresPreviousBoard(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	c := task("c", domain.TaskStatusDone, 0)
	down := errors.New("service unavailable")

	var mu sync.Mutex
	up := true
	api := &fakeAPI{
		listFunc: func(ctx context.Context) ([]*domain.Task, error) {
			mu.Lock()
			defer mu.Unlock()
			if !up {
				return nil, down
			}
			return listing(a, b, c)(ctx)
		},
		statusFunc: func(context.Context, uuid.UUID, domain.TaskStatus) (*domain.Task, error) {
			mu.Lock()
			up = false
			mu.Unlock()
			return nil, down
		},
	}
	r := loaded(t, api, nil)

	err := r.Move(t.Context(), a.ID, domain.TaskStatusDone, 0)
	require.ErrorIs(t, err, down)

	v := r.View()
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, v.IDs(domain.TaskStatusTodo))
	assert.Equal(t, []int{0, 1}, orders(v, domain.TaskStatusTodo))
	assert.Equal(t, []uuid.UUID{c.ID}, v.IDs(domain.TaskStatusDone))
	assert.Equal(t, domain.TaskStatusTodo, v[domain.TaskStatusTodo][0].Status)
	assert.False(t, r.Pending())
}

func TestMove_CancelledContextStillReloads(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	api := &fakeAPI{
		listFunc: func(ctx context.Context) ([]*domain.Task, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return listing(a)(ctx)
		},
		statusFunc: func(context.Context, uuid.UUID, domain.TaskStatus) (*domain.Task, error) {
			cancel()
			return nil, context.Canceled
		},
	}
	r := loaded(t, api, nil)

	err := r.Move(ctx, a.ID, domain.TaskStatusDone, 0)
	require.ErrorIs(t, err, context.Canceled)

	v := r.View()
	assert.Equal(t, []uuid.UUID{a.ID}, v.IDs(domain.TaskStatusTodo))
	assert.Empty(t, v[domain.TaskStatusDone])
	assert.Equal(t, 2, api.listCalls, "reload runs despite the cancelled context")
	assert.False(t, r.Pending())
}

func TestMove_SecondMoveWhilePending(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api := &fakeAPI{
		listFunc: listing(a, b),
		statusFunc: func(_ context.Context, id uuid.UUID, s domain.TaskStatus) (*domain.Task, error) {
			once.Do(func() { close(entered) })
			<-release
			return &domain.Task{ID: id, Status: s}, nil
		},
	}
	r := loaded(t, api, nil)

	done := make(chan error, 1)
	go func() { done <- r.Move(context.Background(), a.ID, domain.TaskStatusDone, 0) }()
	<-entered

	assert.True(t, r.Pending())
	require.ErrorIs(t, r.Move(t.Context(), b.ID, domain.TaskStatusDone, 0), board.ErrMovePending)
	_, err := r.Drop(t.Context(), b.ID, board.DropArchive)
	require.ErrorIs(t, err, board.ErrMovePending)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, r.Pending())
	require.NoError(t, r.Move(t.Context(), b.ID, domain.TaskStatusDone, 0))
}

func TestMove_QueuesEventsForPendingTask(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	other := task("o", domain.TaskStatusInProgress, 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		listFunc: listing(a, other),
		statusFunc: func(_ context.Context, id uuid.UUID, s domain.TaskStatus) (*domain.Task, error) {
			close(entered)
			<-release
			return &domain.Task{ID: id, Status: s}, nil
		},
	}
	r := loaded(t, api, nil)

	done := make(chan error, 1)
	go func() { done <- r.Move(context.Background(), a.ID, domain.TaskStatusDone, 0) }()
	<-entered

	renamed := a.Clone()
	renamed.Title = "renamed"
	renamed.Status = domain.TaskStatusDone
	renamed.UpdatedAt = epoch.Add(time.Minute)
	r.Apply(domain.TaskEvent{Type: domain.TaskEventUpdated, Task: renamed})

	otherRenamed := other.Clone()
	otherRenamed.Title = "other renamed"
	otherRenamed.UpdatedAt = epoch.Add(time.Minute)
	r.Apply(domain.TaskEvent{Type: domain.TaskEventUpdated, Task: otherRenamed})

	v := r.View()
	assert.Equal(t, "a", v[domain.TaskStatusDone][0].Title, "held until the move resolves")
	assert.Equal(t, "other renamed", v[domain.TaskStatusInProgress][0].Title, "other tasks merge immediately")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "renamed", r.View()[domain.TaskStatusDone][0].Title)
}

func TestApply(t *testing.T) {
	t.Parallel()

	newer := epoch.Add(time.Hour)

	tests := []struct {
		name   string
		event  func(a, b *domain.Task) domain.TaskEvent
		verify func(t *testing.T, v board.View, a, b *domain.Task)
	}{
		{
			name: "replace_in_place",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.Title = "edited"
				u.UpdatedAt = newer
				return domain.TaskEvent{Type: domain.TaskEventUpdated, Task: u}
			},
			verify: func(t *testing.T, v board.View, a, b *domain.Task) {
				assert.Equal(t, []uuid.UUID{a.ID, b.ID}, v.IDs(domain.TaskStatusTodo))
				assert.Equal(t, "edited", v[domain.TaskStatusTodo][0].Title)
			},
		},
		{
			name: "stale_ignored",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.Title = "old"
				u.UpdatedAt = epoch.Add(-time.Hour)
				return domain.TaskEvent{Type: domain.TaskEventUpdated, Task: u}
			},
			verify: func(t *testing.T, v board.View, _, _ *domain.Task) {
				assert.Equal(t, "a", v[domain.TaskStatusTodo][0].Title)
			},
		},
		{
			name: "status_change_rebuckets",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.Status = domain.TaskStatusDone
				u.Order = 0
				u.UpdatedAt = newer
				return domain.TaskEvent{Type: domain.TaskEventStatusChanged, Task: u}
			},
			verify: func(t *testing.T, v board.View, a, b *domain.Task) {
				assert.Equal(t, []uuid.UUID{b.ID}, v.IDs(domain.TaskStatusTodo))
				assert.Equal(t, []uuid.UUID{a.ID}, v.IDs(domain.TaskStatusDone))
			},
		},
		{
			name: "deleted_removes",
			event: func(_, b *domain.Task) domain.TaskEvent {
				return domain.TaskEvent{Type: domain.TaskEventDeleted, Task: b.Clone()}
			},
			verify: func(t *testing.T, v board.View, a, _ *domain.Task) {
				assert.Equal(t, []uuid.UUID{a.ID}, v.IDs(domain.TaskStatusTodo))
			},
		},
		{
			name: "archived_removes",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.IsActive = false
				u.UpdatedAt = newer
				return domain.TaskEvent{Type: domain.TaskEventArchived, Task: u}
			},
			verify: func(t *testing.T, v board.View, _, b *domain.Task) {
				assert.Equal(t, []uuid.UUID{b.ID}, v.IDs(domain.TaskStatusTodo))
			},
		},
		{
			name: "inactive_update_removes",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.IsActive = false
				u.UpdatedAt = newer
				return domain.TaskEvent{Type: domain.TaskEventUpdated, Task: u}
			},
			verify: func(t *testing.T, v board.View, _, b *domain.Task) {
				assert.Equal(t, []uuid.UUID{b.ID}, v.IDs(domain.TaskStatusTodo))
			},
		},
		{
			name: "new_task_inserted_by_order",
			event: func(_, _ *domain.Task) domain.TaskEvent {
				return domain.TaskEvent{Type: domain.TaskEventAssigned, Task: task("n", domain.TaskStatusTodo, 1)}
			},
			verify: func(t *testing.T, v board.View, a, b *domain.Task) {
				ids := v.IDs(domain.TaskStatusTodo)
				require.Len(t, ids, 3)
				assert.Equal(t, a.ID, ids[0])
				assert.Equal(t, b.ID, ids[2])
			},
		},
		{
			name: "reorder_moves_only_that_task",
			event: func(a, _ *domain.Task) domain.TaskEvent {
				u := a.Clone()
				u.Order = 5
				u.UpdatedAt = newer
				return domain.TaskEvent{Type: domain.TaskEventUpdated, Task: u}
			},
			verify: func(t *testing.T, v board.View, a, b *domain.Task) {
				assert.Equal(t, []uuid.UUID{b.ID, a.ID}, v.IDs(domain.TaskStatusTodo))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := task("a", domain.TaskStatusTodo, 0)
			b := task("b", domain.TaskStatusTodo, 2)
			r := loaded(t, &fakeAPI{listFunc: listing(a, b)}, nil)

			r.Apply(tt.event(a, b))
			tt.verify(t, r.View(), a, b)
		})
	}
}

func TestApply_NilTaskIgnored(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	r := loaded(t, &fakeAPI{listFunc: listing(a)}, nil)

	r.Apply(domain.TaskEvent{Type: domain.TaskEventDeleted})
	assert.Len(t, r.View()[domain.TaskStatusTodo], 1)
}

func TestDrop(t *testing.T) {
	t.Parallel()

	yes := board.ConfirmFunc(func(context.Context, board.DropTarget, *domain.Task) bool { return true })
	no := board.ConfirmFunc(func(context.Context, board.DropTarget, *domain.Task) bool { return false })

	t.Run("declined_issues_nothing", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		api := &fakeAPI{listFunc: listing(a)}
		r := loaded(t, api, no)

		ok, err := r.Drop(t.Context(), a.ID, board.DropDelete)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, api.removeCalls)
		assert.Len(t, r.View()[domain.TaskStatusTodo], 1)
	})

	t.Run("no_confirmer_declines", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		api := &fakeAPI{listFunc: listing(a)}
		r := loaded(t, api, nil)

		ok, err := r.Drop(t.Context(), a.ID, board.DropArchive)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, api.activeCalls)
	})

	t.Run("archive", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		var asked board.DropTarget
		api := &fakeAPI{listFunc: listing(a)}
		r := loaded(t, api, board.ConfirmFunc(func(_ context.Context, target board.DropTarget, got *domain.Task) bool {
			asked = target
			return got.ID == a.ID
		}))

		ok, err := r.Drop(t.Context(), a.ID, board.DropArchive)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, board.DropArchive, asked)
		assert.Equal(t, []bool{false}, api.activeCalls)
		assert.Empty(t, r.View()[domain.TaskStatusTodo])
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		api := &fakeAPI{listFunc: listing(a)}
		r := loaded(t, api, yes)

		ok, err := r.Drop(t.Context(), a.ID, board.DropDelete)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []uuid.UUID{a.ID}, api.removeCalls)
		assert.Empty(t, r.View()[domain.TaskStatusTodo])
	})

	t.Run("failure_reloads", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		removeErr := errors.New("NOT_FOUND")
		api := &fakeAPI{
			listFunc: listing(a),
			removeFunc: func(context.Context, uuid.UUID) (*domain.Task, error) {
				return nil, removeErr
			},
		}
		r := loaded(t, api, yes)

		ok, err := r.Drop(t.Context(), a.ID, board.DropDelete)
		require.ErrorIs(t, err, removeErr)
		assert.True(t, ok)
		assert.Equal(t, 2, api.listCalls)
		assert.Len(t, r.View()[domain.TaskStatusTodo], 1)
	})

	t.Run("pending_while_confirming", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		b := task("b", domain.TaskStatusTodo, 1)
		api := &fakeAPI{listFunc: listing(a, b)}

		var r *board.Reconciler
		r = loaded(t, api, board.ConfirmFunc(func(ctx context.Context, _ board.DropTarget, _ *domain.Task) bool {
			assert.True(t, r.Pending())
			assert.ErrorIs(t, r.Move(ctx, b.ID, domain.TaskStatusDone, 0), board.ErrMovePending)

			renamed := a.Clone()
			renamed.Title = "renamed"
			renamed.UpdatedAt = epoch.Add(time.Minute)
			r.Apply(domain.TaskEvent{Type: domain.TaskEventUpdated, Task: renamed})
			assert.Equal(t, "a", r.View()[domain.TaskStatusTodo][0].Title, "held while the drop is pending")
			return false
		}))

		ok, err := r.Drop(t.Context(), a.ID, board.DropArchive)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, r.Pending())
		assert.Empty(t, api.statusCalls)
		assert.Equal(t, "renamed", r.View()[domain.TaskStatusTodo][0].Title)
	})

	t.Run("held_events_discarded_after_drop", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		api := &fakeAPI{listFunc: listing(a)}

		var r *board.Reconciler
		r = loaded(t, api, board.ConfirmFunc(func(context.Context, board.DropTarget, *domain.Task) bool {
			renamed := a.Clone()
			renamed.Title = "renamed"
			renamed.UpdatedAt = epoch.Add(time.Minute)
			r.Apply(domain.TaskEvent{Type: domain.TaskEventUpdated, Task: renamed})
			return true
		}))

		ok, err := r.Drop(t.Context(), a.ID, board.DropDelete)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, r.View()[domain.TaskStatusTodo])
		assert.False(t, r.Pending())
	})

	t.Run("failure_with_cancelled_context_reloads", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		api := &fakeAPI{
			listFunc: func(ctx context.Context) ([]*domain.Task, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return listing(a)(ctx)
			},
			activeFunc: func(context.Context, uuid.UUID, bool) (*domain.Task, error) {
				cancel()
				return nil, context.Canceled
			},
		}
		r := loaded(t, api, yes)

		ok, err := r.Drop(ctx, a.ID, board.DropArchive)
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, ok)
		assert.Equal(t, 2, api.listCalls)
		assert.Equal(t, []uuid.UUID{a.ID}, r.View().IDs(domain.TaskStatusTodo))
		assert.False(t, r.Pending())
	})

	t.Run("unknown_target", func(t *testing.T) {
		t.Parallel()

		a := task("a", domain.TaskStatusTodo, 0)
		r := loaded(t, &fakeAPI{listFunc: listing(a)}, yes)

		_, err := r.Drop(t.Context(), a.ID, "trash")
		require.ErrorIs(t, err, board.ErrInvalidMove)
	})
}

func TestOnChange_ReceivesSnapshots(t *testing.T) {
	t.Parallel()

	a := task("a", domain.TaskStatusTodo, 0)
	b := task("b", domain.TaskStatusTodo, 1)
	r := loaded(t, &fakeAPI{listFunc: listing(a, b)}, nil)

	var mu sync.Mutex
	var seen []board.View
	r.OnChange(func(v board.View) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	require.NoError(t, r.Move(t.Context(), b.ID, domain.TaskStatusTodo, 0))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, seen[0].IDs(domain.TaskStatusTodo), "first snapshot is the optimistic one")
}
