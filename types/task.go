package types

import (
	"time"

	"github.com/google/uuid"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

const (
	// MaxTaskNameLength is the maximum number of characters in a task name.
	MaxTaskNameLength = 100

	// MaxTaskDescriptionLength is the maximum number of characters in a task description.
	MaxTaskDescriptionLength = 500
)

// Task represents a single to-do item owned by a user.
// The JSON layout matches what the web client expects.
type Task struct {
	// ID is the unique identifier of the task.
	ID uuid.UUID `json:"_id" db:"id"`

	// Name is the short title of the task. It is unique per owner.
	Name string `json:"name" db:"name"`

	// Description is an optional free-form note.
	Description *string `json:"description,omitempty" db:"description"`

	// Priority is one of low, medium or high.
	Priority Priority `json:"priority" db:"priority"`

	// DueDate is the optional deadline of the task.
	DueDate *time.Time `json:"dueDate,omitempty" db:"due_date"`

	// Completed marks the task as done.
	Completed bool `json:"completed" db:"completed"`

	// OwnerID references the user who created the task. It never changes.
	OwnerID uuid.UUID `json:"createdBy" db:"owner_id"`

	// CreatedAt is the timestamp at which the task was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the task.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TaskPatch carries the fields of a partial update.
// Nil fields are left untouched; the Clear flags unset optional fields.
type TaskPatch struct {
	Name        *string
	Description *string
	Priority    *Priority
	DueDate     *time.Time

	ClearDescription bool
	ClearDueDate     bool
}

// Apply copies every supplied field onto task.
func (p TaskPatch) Apply(task *Task) {
	if p.Name != nil {
		task.Name = *p.Name
	}
	if p.Description != nil {
		description := *p.Description
		task.Description = &description
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.DueDate != nil {
		due := *p.DueDate
		task.DueDate = &due
	}
	if p.ClearDescription {
		task.Description = nil
	}
	if p.ClearDueDate {
		task.DueDate = nil
	}
}
