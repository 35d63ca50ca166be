package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a task lifecycle change.
type EventType string

const (
	TaskCreated   EventType = "task.created"
	TaskUpdated   EventType = "task.updated"
	TaskCompleted EventType = "task.completion_toggled"
	TaskDeleted   EventType = "task.deleted"
)

const attrTaskID = "task_id"

// TaskEvent is published after a task changes.
type TaskEvent struct {
	Type       EventType `json:"type"`
	TaskID     uuid.UUID `json:"taskId"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Completed  *bool     `json:"completed,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// TaskEvents publishes and consumes TaskEvent values on one channel.
type TaskEvents struct {
	backend Backend
	channel string
}

// NewTaskEvents binds backend to channel.
func NewTaskEvents(backend Backend, channel string) *TaskEvents {
	return &TaskEvents{backend: backend, channel: channel}
}

// Publish encodes event as JSON and sends it keyed by owner, so one owner's
// events keep their order on brokers that support ordering keys.
func (e *TaskEvents) Publish(ctx context.Context, event TaskEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = e.backend.Publish(ctx, e.channel, Message{
		Type:       string(event.Type),
		Key:        event.OwnerID.String(),
		Data:       data,
		Attributes: map[string]string{attrTaskID: event.TaskID.String()},
	})
	return err
}

// Watch decodes each delivered event and passes it to fn until ctx is done.
// Messages that cannot be decoded are acknowledged and skipped.
func (e *TaskEvents) Watch(ctx context.Context, fn func(context.Context, TaskEvent) error) error {
	return e.backend.Subscribe(ctx, e.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeTaskEvent(msg)
		if err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// Close closes the underlying backend.
func (e *TaskEvents) Close() error {
	return e.backend.Close()
}

// DecodeTaskEvent parses a delivered message. The broker-level type fills in
// a body that omits it.
func DecodeTaskEvent(msg Message) (TaskEvent, error) {
	var event TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return TaskEvent{}, fmt.Errorf("decode task event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = EventType(msg.Type)
	}
	if event.Type == "" || event.TaskID == uuid.Nil {
		return TaskEvent{}, errors.New("task event is missing type or task id")
	}
	return event, nil
}
