package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/taskgate/internal/domain"
)

const taskColumns = `id, title, description, status, position, assigned_to, created_by, is_active, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func (r *TaskRepo) Create(ctx context.Context, t *domain.Task) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Title, t.Description, t.Status, t.Order,
		t.AssignedTo, t.CreatedBy, t.IsActive,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Create: %w", err)
	}

	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var t domain.Task

	err := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Order,
		&t.AssignedTo, &t.CreatedBy, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("taskRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("taskRepo.GetByID: %w", err)
	}

	return &t, nil
}

// List returns active tasks grouped by column and ordered by position.
func (r *TaskRepo) List(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE is_active
		 ORDER BY status, position, created_at
		 LIMIT 5000`,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.List: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows, "taskRepo.List")
}

func (r *TaskRepo) Update(ctx context.Context, t *domain.Task) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, position = $4,
		        assigned_to = $5, is_active = $6, updated_at = now()
		 WHERE id = $7
		 RETURNING updated_at`,
		t.Title, t.Description, t.Status, t.Order,
		t.AssignedTo, t.IsActive, t.ID,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("taskRepo.Update: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("taskRepo.Update: %w", err)
	}

	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("taskRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("taskRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

// NextOrder returns the position after the last active task in status.
func (r *TaskRepo) NextOrder(ctx context.Context, status domain.TaskStatus) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE status = $1 AND is_active`,
		status,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("taskRepo.NextOrder: %w", err)
	}

	return next, nil
}

func scanTasks(rows pgx.Rows, caller string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.Status, &t.Order,
			&t.AssignedTo, &t.CreatedBy, &t.IsActive,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return tasks, nil
}
