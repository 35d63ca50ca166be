package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasknest/apiserver/types"
)

const taskColumns = `id, owner_id, name, description, priority, due_date, completed, created_at, updated_at`

// TaskRepository handles persistence for tasks. Every query goes through
// an OwnerTasks obtained from ForOwner, so rows are always filtered by owner.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ForOwner returns the task repository restricted to ownerID.
func (r *TaskRepository) ForOwner(ownerID uuid.UUID) *OwnerTasks {
	return &OwnerTasks{db: r.db, ownerID: ownerID}
}

// OwnerTasks is a task repository pre-filtered to one owner.
type OwnerTasks struct {
	db      *sql.DB
	ownerID uuid.UUID
}

// OwnerID returns the identity this repository is scoped to.
func (o *OwnerTasks) OwnerID() uuid.UUID {
	return o.ownerID
}

func (o *OwnerTasks) List(ctx context.Context) ([]types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at, id`
	return o.queryTasks(ctx, query, o.ownerID)
}

func (o *OwnerTasks) Get(ctx context.Context, id uuid.UUID) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND owner_id = $2`
	return scanTask(o.db.QueryRowContext(ctx, query, id, o.ownerID))
}

// Search returns the owner's tasks whose name, description or priority
// contains term, ignoring case. An empty term matches every task.
func (o *OwnerTasks) Search(ctx context.Context, term string) ([]types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		  AND (name ILIKE $2 ESCAPE '\'
		       OR COALESCE(description, '') ILIKE $2 ESCAPE '\'
		       OR priority ILIKE $2 ESCAPE '\')
		ORDER BY created_at, id`
	return o.queryTasks(ctx, query, o.ownerID, containsPattern(term))
}

// NameExists reports whether the owner already has a task with exactly this name.
func (o *OwnerTasks) NameExists(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tasks WHERE owner_id = $1 AND name = $2)`
	var exists bool
	if err := o.db.QueryRowContext(ctx, query, o.ownerID, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts task for the owner. The owner and completion flag are
// always taken from the repository, never from the caller.
func (o *OwnerTasks) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	task.ID = uuid.New()
	task.OwnerID = o.ownerID
	task.Completed = false
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Priority == "" {
		task.Priority = types.PriorityLow
	}

	const query = `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := o.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.OwnerID,
		task.Name,
		task.Description,
		task.Priority,
		task.DueDate,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return types.Task{}, translateWriteErr(err)
	}
	return task, nil
}

// Update persists the mutable fields of task. The owner column is never written.
func (o *OwnerTasks) Update(ctx context.Context, task types.Task) (types.Task, error) {
	task.OwnerID = o.ownerID
	task.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE tasks
		SET name = $1,
			description = $2,
			priority = $3,
			due_date = $4,
			completed = $5,
			updated_at = $6
		WHERE id = $7 AND owner_id = $8`
	result, err := o.db.ExecContext(
		ctx,
		query,
		task.Name,
		task.Description,
		task.Priority,
		task.DueDate,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		o.ownerID,
	)
	if err != nil {
		return types.Task{}, translateWriteErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return task, nil
}

// ToggleCompleted flips the completion flag in one statement and returns the new row.
func (o *OwnerTasks) ToggleCompleted(ctx context.Context, id uuid.UUID) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET completed = NOT completed,
			updated_at = $1
		WHERE id = $2 AND owner_id = $3
		RETURNING ` + taskColumns
	return scanTask(o.db.QueryRowContext(ctx, query, time.Now().UTC(), id, o.ownerID))
}

func (o *OwnerTasks) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`
	result, err := o.db.ExecContext(ctx, query, id, o.ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (o *OwnerTasks) queryTasks(ctx context.Context, query string, args ...any) ([]types.Task, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	var priority string
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Name,
		&task.Description,
		&priority,
		&task.DueDate,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	task.Priority = types.Priority(priority)
	return task, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns term into an ILIKE pattern matching it as a literal substring.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
