package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/apperr"
	"github.com/tasknest/apiserver/internal/logger"
	"github.com/tasknest/apiserver/internal/mq"
	"github.com/tasknest/apiserver/internal/storage"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/internal/validation"
	"github.com/tasknest/apiserver/types"
)

const (
	msgTaskNotFound    = "Task not found"
	msgDuplicateTask   = "You already have a task with this name"
	msgExportNotFound  = "Export not found"
	msgNameRequired    = "Task name is required"
	msgInvalidPriority = "Task priority must be low, medium or high"
	msgInvalidDueDate  = "A valid due date is required"
)

// ErrExportDisabled is returned by Export when no object storage is configured.
var ErrExportDisabled = errors.New("task export is not configured")

// OwnerTaskRepository is a task repository already bound to one owner.
type OwnerTaskRepository interface {
	List(ctx context.Context) ([]types.Task, error)
	Get(ctx context.Context, id uuid.UUID) (types.Task, error)
	Search(ctx context.Context, term string) ([]types.Task, error)
	NameExists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	ToggleCompleted(ctx context.Context, id uuid.UUID) (types.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskScope returns the repository view of a single owner's tasks.
type TaskScope func(ownerID uuid.UUID) OwnerTaskRepository

// EventPublisher receives task lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event mq.TaskEvent) error
}

// ExportStore keeps JSON snapshots of an owner's tasks.
type ExportStore interface {
	Save(ctx context.Context, ownerID uuid.UUID, at time.Time, data []byte, count int) (storage.Export, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]storage.Export, error)
	Read(ctx context.Context, ownerID uuid.UUID, id string) ([]byte, storage.Export, error)
	Delete(ctx context.Context, ownerID uuid.UUID, id string) error
}

// TaskService encapsulates task use-cases. Every method takes the owner
// explicitly and only ever touches that owner's tasks.
type TaskService struct {
	scope   TaskScope
	events  EventPublisher
	exports ExportStore
	now     func() time.Time
}

func NewTaskService(scope TaskScope) *TaskService {
	return &TaskService{scope: scope, now: time.Now}
}

// WithEvents enables publishing of task events.
func (s *TaskService) WithEvents(events EventPublisher) *TaskService {
	s.events = events
	return s
}

// WithStorage enables task exports to object storage.
func (s *TaskService) WithStorage(objects storage.ObjectStorage) *TaskService {
	s.exports = storage.NewTaskExports(objects)
	return s
}

// ExportEnabled reports whether the export operations can be used.
func (s *TaskService) ExportEnabled() bool {
	return s.exports != nil
}

// CreateTaskInput is the payload of a task creation.
type CreateTaskInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
	Priority    string  `json:"priority" validate:"required,oneof=low medium high"`
	DueDate     string  `json:"dueDate" validate:"required,datetime_any"`
}

var createTaskMessages = validation.Messages{
	"Name.required":     msgNameRequired,
	"Name.max":          "Task name cannot exceed 100 characters",
	"Description.max":   "Task description cannot exceed 500 characters",
	"Priority.required": "Task priority is required",
	"Priority.oneof":    msgInvalidPriority,
	"DueDate":           msgInvalidDueDate,
}

// UpdateTaskInput carries the fields of a partial update. Absent fields are
// untouched. Null records the fields sent as an explicit JSON null: a null
// description or due date clears it, a null name or priority is rejected.
type UpdateTaskInput struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
	Priority    *string `json:"priority" validate:"omitnil,oneof=low medium high"`
	DueDate     *string `json:"dueDate" validate:"omitnil,datetime_any"`

	Null map[string]bool `json:"-"`
}

// UnmarshalJSON decodes the fields and notes which of them were null.
func (in *UpdateTaskInput) UnmarshalJSON(data []byte) error {
	type fields UpdateTaskInput
	var decoded fields
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if !bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		if decoded.Null == nil {
			decoded.Null = make(map[string]bool)
		}
		decoded.Null[key] = true
	}

	*in = UpdateTaskInput(decoded)
	return nil
}

var updateTaskMessages = validation.Messages{
	"Name.min":        msgNameRequired,
	"Name.max":        "Task name cannot exceed 100 characters",
	"Description.max": "Task description cannot exceed 500 characters",
	"Priority":        msgInvalidPriority,
	"DueDate":         msgInvalidDueDate,
}

func (s *TaskService) List(ctx context.Context, ownerID uuid.UUID) ([]types.Task, error) {
	tasks, err := s.scope(ownerID).List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list tasks")
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID, id uuid.UUID) (types.Task, error) {
	task, err := s.scope(ownerID).Get(ctx, id)
	if err != nil {
		return types.Task{}, taskErr(err, "failed to load task")
	}
	return task, nil
}

// Search matches term case-insensitively as a literal substring of name,
// description and priority. The term is used as given, so whitespace is
// significant. An empty term matches every task.
func (s *TaskService) Search(ctx context.Context, ownerID uuid.UUID, term string) ([]types.Task, error) {
	tasks, err := s.scope(ownerID).Search(ctx, term)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to search tasks")
	}
	return tasks, nil
}

func (s *TaskService) Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (types.Task, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = trimmed(in.Description)
	in.Priority = strings.TrimSpace(in.Priority)
	if err := validation.Struct(in, createTaskMessages); err != nil {
		return types.Task{}, err
	}
	due, err := validation.ParseDate(in.DueDate)
	if err != nil {
		return types.Task{}, apperr.Validation(msgInvalidDueDate)
	}

	tasks := s.scope(ownerID)
	exists, err := tasks.NameExists(ctx, in.Name)
	if err != nil {
		return types.Task{}, apperr.Wrap(err, "failed to check task name")
	}
	if exists {
		return types.Task{}, apperr.Conflict(msgDuplicateTask)
	}

	created, err := tasks.Create(ctx, types.Task{
		Name:        in.Name,
		Description: in.Description,
		Priority:    types.Priority(in.Priority),
		DueDate:     &due,
	})
	if err != nil {
		return types.Task{}, taskErr(err, "failed to create task")
	}

	s.publish(ctx, mq.TaskCreated, created)
	return created, nil
}

// Update applies only the supplied fields of in to the owned task id.
func (s *TaskService) Update(ctx context.Context, ownerID, id uuid.UUID, in UpdateTaskInput) (types.Task, error) {
	tasks := s.scope(ownerID)
	current, err := tasks.Get(ctx, id)
	if err != nil {
		return types.Task{}, taskErr(err, "failed to load task")
	}

	switch {
	case in.Null["name"]:
		return types.Task{}, apperr.Validation(msgNameRequired)
	case in.Null["priority"]:
		return types.Task{}, apperr.Validation(msgInvalidPriority)
	}

	in.Name = trimmed(in.Name)
	in.Description = trimmed(in.Description)
	if err := validation.Struct(in, updateTaskMessages); err != nil {
		return types.Task{}, err
	}

	patch := types.TaskPatch{
		Name:             in.Name,
		Description:      in.Description,
		ClearDescription: in.Null["description"],
		ClearDueDate:     in.Null["dueDate"],
	}
	if in.Priority != nil {
		priority := types.Priority(*in.Priority)
		patch.Priority = &priority
	}
	if in.DueDate != nil {
		due, err := validation.ParseDate(*in.DueDate)
		if err != nil {
			return types.Task{}, apperr.Validation(msgInvalidDueDate)
		}
		patch.DueDate = &due
	}
	patch.Apply(&current)

	updated, err := tasks.Update(ctx, current)
	if err != nil {
		return types.Task{}, taskErr(err, "failed to update task")
	}

	s.publish(ctx, mq.TaskUpdated, updated)
	return updated, nil
}

// ToggleCompletion flips the completed flag of the owned task id.
func (s *TaskService) ToggleCompletion(ctx context.Context, ownerID, id uuid.UUID) (types.Task, error) {
	toggled, err := s.scope(ownerID).ToggleCompleted(ctx, id)
	if err != nil {
		return types.Task{}, taskErr(err, "failed to update task")
	}

	s.publish(ctx, mq.TaskCompleted, toggled)
	return toggled, nil
}

func (s *TaskService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.scope(ownerID).Delete(ctx, id); err != nil {
		return taskErr(err, "failed to delete task")
	}

	s.publish(ctx, mq.TaskDeleted, types.Task{ID: id, OwnerID: ownerID})
	return nil
}

// Export writes a JSON snapshot of the owner's tasks to object storage.
func (s *TaskService) Export(ctx context.Context, ownerID uuid.UUID) (storage.Export, error) {
	if s.exports == nil {
		return storage.Export{}, apperr.Wrap(ErrExportDisabled, "task export is not available")
	}

	tasks, err := s.List(ctx, ownerID)
	if err != nil {
		return storage.Export{}, err
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return storage.Export{}, apperr.Wrap(err, "failed to encode tasks")
	}

	export, err := s.exports.Save(ctx, ownerID, s.now(), data, len(tasks))
	if err != nil {
		return storage.Export{}, apperr.Wrap(err, "failed to store export")
	}
	return export, nil
}

// ListExports returns the owner's stored snapshots, newest first.
func (s *TaskService) ListExports(ctx context.Context, ownerID uuid.UUID) ([]storage.Export, error) {
	if s.exports == nil {
		return nil, apperr.Wrap(ErrExportDisabled, "task export is not available")
	}

	exports, err := s.exports.List(ctx, ownerID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list exports")
	}
	return exports, nil
}

// ReadExport returns the JSON body of one of the owner's snapshots.
func (s *TaskService) ReadExport(ctx context.Context, ownerID uuid.UUID, id string) (json.RawMessage, storage.Export, error) {
	if s.exports == nil {
		return nil, storage.Export{}, apperr.Wrap(ErrExportDisabled, "task export is not available")
	}

	data, export, err := s.exports.Read(ctx, ownerID, id)
	if err != nil {
		return nil, storage.Export{}, exportErr(err, "failed to read export")
	}
	return json.RawMessage(data), export, nil
}

// DeleteExport removes one of the owner's snapshots.
func (s *TaskService) DeleteExport(ctx context.Context, ownerID uuid.UUID, id string) error {
	if s.exports == nil {
		return apperr.Wrap(ErrExportDisabled, "task export is not available")
	}

	if err := s.exports.Delete(ctx, ownerID, id); err != nil {
		return exportErr(err, "failed to delete export")
	}
	return nil
}

func (s *TaskService) publish(ctx context.Context, eventType mq.EventType, task types.Task) {
	if s.events == nil {
		return
	}

	event := mq.TaskEvent{
		Type:       eventType,
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		OccurredAt: s.now().UTC(),
	}
	if eventType == mq.TaskCompleted {
		completed := task.Completed
		event.Completed = &completed
	}

	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish task event",
			"event_type", eventType,
			"task_id", task.ID,
			"error", err,
		)
	}
}

func taskErr(err error, message string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(msgTaskNotFound)
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict(msgDuplicateTask)
	default:
		return apperr.Wrap(err, message)
	}
}

func exportErr(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidExportID) {
		return apperr.NotFound(msgExportNotFound)
	}
	return apperr.Wrap(err, message)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	text := strings.TrimSpace(*value)
	return &text
}
