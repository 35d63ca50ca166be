package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasknest/apiserver/config"
)

// memoryBackend delivers published messages synchronously to the last subscriber.
type memoryBackend struct {
	published []Message
	channels  []string
	handler   Handler
	closed    bool
}

func (m *memoryBackend) Publish(ctx context.Context, channel string, msg Message) (string, error) {
	msg.ID = uuid.NewString()
	m.published = append(m.published, msg)
	m.channels = append(m.channels, channel)
	if m.handler != nil {
		return msg.ID, m.handler(ctx, msg)
	}
	return msg.ID, nil
}

func (m *memoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	m.handler = handler
	return nil
}

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

func TestTaskEventsPublish(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	events := NewTaskEvents(backend, "task-events")

	taskID := uuid.New()
	ownerID := uuid.New()
	require.NoError(t, events.Publish(context.Background(), TaskEvent{Type: TaskCreated, TaskID: taskID, OwnerID: ownerID}))

	require.Len(t, backend.published, 1)
	assert.Equal(t, "task-events", backend.channels[0])
	assert.Equal(t, string(TaskCreated), backend.published[0].Type)
	assert.Equal(t, ownerID.String(), backend.published[0].Key)
	assert.Equal(t, taskID.String(), backend.published[0].Attributes[attrTaskID])

	var decoded TaskEvent
	require.NoError(t, json.Unmarshal(backend.published[0].Data, &decoded))
	assert.Equal(t, taskID, decoded.TaskID)
	assert.Equal(t, ownerID, decoded.OwnerID)
	assert.False(t, decoded.OccurredAt.IsZero())
}

func TestTaskEventsWatchSkipsUndecodable(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	events := NewTaskEvents(backend, "task-events")

	var seen []TaskEvent
	require.NoError(t, events.Watch(context.Background(), func(_ context.Context, event TaskEvent) error {
		seen = append(seen, event)
		return nil
	}))

	_, err := backend.Publish(context.Background(), "task-events", Message{Data: []byte("not json")})
	require.NoError(t, err)

	completed := true
	require.NoError(t, events.Publish(context.Background(), TaskEvent{Type: TaskCompleted, TaskID: uuid.New(), Completed: &completed}))

	require.Len(t, seen, 1)
	assert.Equal(t, TaskCompleted, seen[0].Type)
	require.NotNil(t, seen[0].Completed)
	assert.True(t, *seen[0].Completed)

	require.NoError(t, events.Close())
	assert.True(t, backend.closed)
}

func TestTaskEventsWatchPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	events := NewTaskEvents(backend, "task-events")
	boom := errors.New("boom")

	require.NoError(t, events.Watch(context.Background(), func(context.Context, TaskEvent) error { return boom }))
	err := events.Publish(context.Background(), TaskEvent{Type: TaskDeleted, TaskID: uuid.New()})
	assert.ErrorIs(t, err, boom)
}

func TestDecodeTaskEventRequiresIdentity(t *testing.T) {
	t.Parallel()

	_, err := DecodeTaskEvent(Message{Data: []byte(`{"type":"task.created"}`)})
	assert.Error(t, err)
}

func TestDecodeTaskEventTakesTypeFromBroker(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	event, err := DecodeTaskEvent(Message{
		Type: string(TaskDeleted),
		Data: []byte(`{"taskId":"` + taskID.String() + `"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, TaskDeleted, event.Type)
	assert.Equal(t, taskID, event.TaskID)
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	backend, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, backend)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: BackendRabbitMQ})
	assert.Error(t, err)
}
