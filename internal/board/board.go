// Package board keeps a client-side kanban view in step with the task
// service. Moves are applied locally first and confirmed afterwards; any
// failed confirmation replaces the view with a fresh findAllTasks.
package board

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/taskgate/internal/domain"
)

// reloadTimeout bounds the reload that follows a failed move or drop. It
// runs detached from the caller's context.
const reloadTimeout = 10 * time.Second

var (
	ErrMovePending  = errors.New("board: a move is already pending")
	ErrTaskNotFound = errors.New("board: task not on board")
	ErrInvalidMove  = errors.New("board: invalid move")
)

// TaskAPI is the slice of the task service the board drives.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error)
	UpdateTaskOrder(ctx context.Context, id uuid.UUID, order int) (*domain.Task, error)
	UpdateTaskActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Task, error)
	RemoveTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// DropTarget is a drop zone that takes a task off the board.
type DropTarget string

const (
	DropArchive DropTarget = "archive"
	DropDelete  DropTarget = "delete"
)

// Confirmer asks the user before a task is archived or deleted.
type Confirmer interface {
	Confirm(ctx context.Context, target DropTarget, task *domain.Task) bool
}

// ConfirmFunc adapts a plain function to Confirmer.
type ConfirmFunc func(ctx context.Context, target DropTarget, task *domain.Task) bool

func (f ConfirmFunc) Confirm(ctx context.Context, target DropTarget, task *domain.Task) bool {
	return f(ctx, target, task)
}

// View is a board snapshot: one ordered column per status.
type View map[domain.TaskStatus][]*domain.Task

// IDs returns the task ids of one column in display order.
func (v View) IDs(status domain.TaskStatus) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(v[status]))
	for _, t := range v[status] {
		ids = append(ids, t.ID)
	}
	return ids
}

type pendingMove struct {
	taskID     uuid.UUID
	fromStatus domain.TaskStatus
	toStatus   domain.TaskStatus
	fromIndex  int
	toIndex    int
}

type orderUpdate struct {
	id    uuid.UUID
	order int
}

// Reconciler owns one board. It is safe for concurrent use. At most one
// move or drop is in flight at a time, counting a drop awaiting its
// Confirmer.
type Reconciler struct {
	api     TaskAPI
	confirm Confirmer

	mu       sync.Mutex
	columns  map[domain.TaskStatus][]*domain.Task
	pending  *pendingMove
	queued   []domain.TaskEvent
	onChange func(View)
}

func New(api TaskAPI, confirm Confirmer) *Reconciler {
	return &Reconciler{
		api:     api,
		confirm: confirm,
		columns: emptyColumns(),
	}
}

// OnChange registers fn to receive a snapshot after every local change.
// fn runs with the board unlocked.
func (r *Reconciler) OnChange(fn func(View)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Load replaces the board with the task service's current state.
func (r *Reconciler) Load(ctx context.Context) error {
	if err := r.reload(ctx); err != nil {
		return fmt.Errorf("board.Reconciler.Load: %w", err)
	}
	return nil
}

// View returns a deep copy of the board.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Pending reports whether a move or drop is awaiting confirmation.
func (r *Reconciler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Move drags a task to index toIndex of column toStatus. The board is
// updated before the task service is called. Both affected columns are
// renumbered 0..n-1 and every task in them gets an order update. If any
// call fails the board is reloaded and the reload error, if any, is joined
// to the returned error. If the reload fails too, the board goes back to
// how it was before the move.
func (r *Reconciler) Move(ctx context.Context, taskID uuid.UUID, toStatus domain.TaskStatus, toIndex int) error {
	if !toStatus.Valid() {
		return fmt.Errorf("board.Reconciler.Move: %w: status %q", ErrInvalidMove, toStatus)
	}

	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		return ErrMovePending
	}
	fromStatus, fromIndex, ok := r.locateLocked(taskID)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("board.Reconciler.Move: %w: %s", ErrTaskNotFound, taskID)
	}

	before := r.cloneColumnsLocked()
	task := r.columns[fromStatus][fromIndex]
	r.columns[fromStatus] = slices.Delete(r.columns[fromStatus], fromIndex, fromIndex+1)
	toIndex = min(max(toIndex, 0), len(r.columns[toStatus]))
	if fromStatus == toStatus && fromIndex == toIndex {
		r.columns[fromStatus] = slices.Insert(r.columns[fromStatus], fromIndex, task)
		r.mu.Unlock()
		return nil
	}

	task = task.Clone()
	task.Status = toStatus
	r.columns[toStatus] = slices.Insert(r.columns[toStatus], toIndex, task)

	var updates []orderUpdate
	updates = append(updates, r.renumberLocked(fromStatus)...)
	if toStatus != fromStatus {
		updates = append(updates, r.renumberLocked(toStatus)...)
	}

	r.pending = &pendingMove{
		taskID:     taskID,
		fromStatus: fromStatus,
		toStatus:   toStatus,
		fromIndex:  fromIndex,
		toIndex:    toIndex,
	}
	r.notifyLocked()

	log.Debug().
		Str("task_id", taskID.String()).
		Str("from", string(fromStatus)).
		Str("to", string(toStatus)).
		Int("from_index", fromIndex).
		Int("to_index", toIndex).
		Msg("board: move applied locally")

	confirmed, err := r.confirmMove(ctx, taskID, fromStatus, toStatus, updates)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID.String()).Msg("board: move rejected, reloading")
		reloadErr := r.reloadOrRestore(ctx, before)
		r.resolve(nil)
		return errors.Join(fmt.Errorf("board.Reconciler.Move: %w", err), reloadErr)
	}
	r.resolve(confirmed)
	return nil
}

// confirmMove issues the status change, if any, then the order updates
// concurrently. It runs unlocked.
func (r *Reconciler) confirmMove(ctx context.Context, taskID uuid.UUID, from, to domain.TaskStatus, updates []orderUpdate) ([]*domain.Task, error) {
	if from != to {
		if _, err := r.api.UpdateTaskStatus(ctx, taskID, to); err != nil {
			return nil, err
		}
	}

	results := make([]*domain.Task, len(updates))
	var g errgroup.Group
	for i, u := range updates {
		g.Go(func() error {
			t, err := r.api.UpdateTaskOrder(ctx, u.id, u.order)
			if err != nil {
				return err
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Drop sends a task to the archive or delete zone. Nothing is issued unless
// the Confirmer agrees. The task counts as pending from the prompt until
// the drop resolves. It reports whether the drop was confirmed.
func (r *Reconciler) Drop(ctx context.Context, taskID uuid.UUID, target DropTarget) (bool, error) {
	if target != DropArchive && target != DropDelete {
		return false, fmt.Errorf("board.Reconciler.Drop: %w: target %q", ErrInvalidMove, target)
	}

	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		return false, ErrMovePending
	}
	status, index, ok := r.locateLocked(taskID)
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("board.Reconciler.Drop: %w: %s", ErrTaskNotFound, taskID)
	}
	task := r.columns[status][index].Clone()
	r.pending = &pendingMove{
		taskID:     taskID,
		fromStatus: status,
		toStatus:   status,
		fromIndex:  index,
		toIndex:    index,
	}
	r.mu.Unlock()

	if r.confirm == nil || !r.confirm.Confirm(ctx, target, task) {
		r.resolve(nil)
		return false, nil
	}

	var err error
	if target == DropArchive {
		_, err = r.api.UpdateTaskActive(ctx, taskID, false)
	} else {
		_, err = r.api.RemoveTask(ctx, taskID)
	}
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID.String()).Str("target", string(target)).Msg("board: drop rejected, reloading")
		reloadErr := r.reloadOrRestore(ctx, nil)
		r.resolve(nil)
		return true, errors.Join(fmt.Errorf("board.Reconciler.Drop: %w", err), reloadErr)
	}

	// Held events predate the drop and would put the task back.
	r.mu.Lock()
	r.removeLocked(taskID)
	r.queued = nil
	r.pending = nil
	r.notifyLocked()
	return true, nil
}

// Apply merges a taskUpdate event. Events for the task under a pending move
// wait until the move resolves.
func (r *Reconciler) Apply(ev domain.TaskEvent) {
	if ev.Task == nil {
		return
	}

	r.mu.Lock()
	if r.pending != nil && r.pending.taskID == ev.Task.ID {
		r.queued = append(r.queued, ev)
		r.mu.Unlock()
		return
	}
	changed := r.mergeLocked(ev)
	if !changed {
		r.mu.Unlock()
		return
	}
	r.notifyLocked()
}

// resolve leaves the pending state, folds in confirmed tasks and replays
// queued events.
func (r *Reconciler) resolve(confirmed []*domain.Task) {
	r.mu.Lock()
	for _, t := range confirmed {
		r.refreshLocked(t)
	}
	r.pending = nil
	queued := r.queued
	r.queued = nil
	for _, ev := range queued {
		r.mergeLocked(ev)
	}
	r.notifyLocked()
}

// reloadOrRestore reloads after a failed call, on a context that outlives
// the caller's. If the reload fails and before is non-nil, the board is put
// back to before.
func (r *Reconciler) reloadOrRestore(ctx context.Context, before map[domain.TaskStatus][]*domain.Task) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
	defer cancel()

	err := r.reload(ctx)
	if err == nil || before == nil {
		return err
	}
	log.Warn().Err(err).Msg("board: reload failed, restoring previous board")
	r.mu.Lock()
	r.columns = before
	r.notifyLocked()
	return err
}

func (r *Reconciler) reload(ctx context.Context) error {
	tasks, err := r.api.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	columns := emptyColumns()
	for _, t := range tasks {
		if t == nil || !t.IsActive || !t.Status.Valid() {
			continue
		}
		columns[t.Status] = append(columns[t.Status], t.Clone())
	}
	for _, col := range columns {
		slices.SortStableFunc(col, func(a, b *domain.Task) int {
			if a.Order != b.Order {
				return a.Order - b.Order
			}
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}

	r.mu.Lock()
	r.columns = columns
	r.notifyLocked()
	return nil
}

// mergeLocked applies one event and reports whether the board changed.
func (r *Reconciler) mergeLocked(ev domain.TaskEvent) bool {
	incoming := ev.Task
	status, index, exists := r.locateLocked(incoming.ID)

	if exists && ev.Type != domain.TaskEventDeleted {
		if incoming.UpdatedAt.Before(r.columns[status][index].UpdatedAt) {
			return false
		}
	}

	if ev.Removes() {
		if !exists {
			return false
		}
		r.removeLocked(incoming.ID)
		return true
	}
	if !incoming.Status.Valid() {
		return false
	}

	task := incoming.Clone()
	if exists && status == task.Status && r.columns[status][index].Order == task.Order {
		r.columns[status][index] = task
		return true
	}
	if exists {
		r.removeLocked(task.ID)
	}
	col := r.columns[task.Status]
	at, _ := slices.BinarySearchFunc(col, task.Order, func(t *domain.Task, order int) int {
		return t.Order - order
	})
	r.columns[task.Status] = slices.Insert(col, at, task)
	return true
}

// refreshLocked swaps in the service's copy of a task without moving it.
func (r *Reconciler) refreshLocked(t *domain.Task) {
	if t == nil {
		return
	}
	status, index, ok := r.locateLocked(t.ID)
	if !ok || status != t.Status {
		return
	}
	r.columns[status][index] = t.Clone()
}

// cloneColumnsLocked copies the column slices. Tasks are shared; every
// mutation swaps in a clone rather than editing a task in place.
func (r *Reconciler) cloneColumnsLocked() map[domain.TaskStatus][]*domain.Task {
	out := maps.Clone(r.columns)
	for status, col := range out {
		out[status] = slices.Clone(col)
	}
	return out
}

func (r *Reconciler) renumberLocked(status domain.TaskStatus) []orderUpdate {
	col := r.columns[status]
	updates := make([]orderUpdate, 0, len(col))
	for i, t := range col {
		if t.Order != i {
			t = t.Clone()
			t.Order = i
			col[i] = t
		}
		updates = append(updates, orderUpdate{id: t.ID, order: i})
	}
	return updates
}

func (r *Reconciler) locateLocked(id uuid.UUID) (domain.TaskStatus, int, bool) {
	for _, status := range domain.TaskStatuses {
		if i := slices.IndexFunc(r.columns[status], func(t *domain.Task) bool { return t.ID == id }); i >= 0 {
			return status, i, true
		}
	}
	return "", -1, false
}

func (r *Reconciler) removeLocked(id uuid.UUID) {
	status, index, ok := r.locateLocked(id)
	if !ok {
		return
	}
	r.columns[status] = slices.Delete(r.columns[status], index, index+1)
}

func (r *Reconciler) snapshotLocked() View {
	v := make(View, len(r.columns))
	for status, col := range r.columns {
		out := make([]*domain.Task, len(col))
		for i, t := range col {
			out[i] = t.Clone()
		}
		v[status] = out
	}
	return v
}

// notifyLocked unlocks r.mu and then calls the change hook.
func (r *Reconciler) notifyLocked() {
	fn := r.onChange
	var snap View
	if fn != nil {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func emptyColumns() map[domain.TaskStatus][]*domain.Task {
	columns := make(map[domain.TaskStatus][]*domain.Task, len(domain.TaskStatuses))
	for _, s := range domain.TaskStatuses {
		columns[s] = []*domain.Task{}
	}
	return columns
}
