package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/mq"
	"github.com/tasknest/apiserver/internal/storage"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[uuid.UUID]types.User)}
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.New()
	m.users[user.ID] = user
	return user, nil
}

type stubIssuer struct {
	issued []uuid.UUID
}

func (s *stubIssuer) Issue(ownerID uuid.UUID) (string, error) {
	s.issued = append(s.issued, ownerID)
	return "token-" + ownerID.String(), nil
}

// memoryTasks holds every owner's tasks; scope hands out owner-bound views.
type memoryTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]types.Task
	seq   int
	err   error
}

func newMemoryTasks() *memoryTasks {
	return &memoryTasks{tasks: make(map[uuid.UUID]types.Task)}
}

func (m *memoryTasks) scope(ownerID uuid.UUID) OwnerTaskRepository {
	return &memoryOwnerTasks{parent: m, ownerID: ownerID}
}

type memoryOwnerTasks struct {
	parent  *memoryTasks
	ownerID uuid.UUID
}

func (o *memoryOwnerTasks) owned() []types.Task {
	var out []types.Task
	for _, task := range o.parent.tasks {
		if task.OwnerID == o.ownerID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (o *memoryOwnerTasks) List(context.Context) ([]types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	if o.parent.err != nil {
		return nil, o.parent.err
	}
	return append([]types.Task{}, o.owned()...), nil
}

func (o *memoryOwnerTasks) Get(_ context.Context, id uuid.UUID) (types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	task, ok := o.parent.tasks[id]
	if !ok || task.OwnerID != o.ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (o *memoryOwnerTasks) Search(_ context.Context, term string) ([]types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	term = strings.ToLower(term)
	out := []types.Task{}
	for _, task := range o.owned() {
		description := ""
		if task.Description != nil {
			description = *task.Description
		}
		if strings.Contains(strings.ToLower(task.Name), term) ||
			strings.Contains(strings.ToLower(description), term) ||
			strings.Contains(string(task.Priority), term) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (o *memoryOwnerTasks) NameExists(_ context.Context, name string) (bool, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	for _, task := range o.owned() {
		if task.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (o *memoryOwnerTasks) Create(_ context.Context, task types.Task) (types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	o.parent.seq++
	now := time.Date(2025, 1, 1, 0, 0, o.parent.seq, 0, time.UTC)
	task.ID = uuid.New()
	task.OwnerID = o.ownerID
	task.Completed = false
	task.CreatedAt = now
	task.UpdatedAt = now
	o.parent.tasks[task.ID] = task
	return task, nil
}

func (o *memoryOwnerTasks) Update(_ context.Context, task types.Task) (types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	current, ok := o.parent.tasks[task.ID]
	if !ok || current.OwnerID != o.ownerID {
		return types.Task{}, store.ErrNotFound
	}
	for _, other := range o.owned() {
		if other.ID != task.ID && other.Name == task.Name {
			return types.Task{}, store.ErrConflict
		}
	}
	task.OwnerID = o.ownerID
	o.parent.tasks[task.ID] = task
	return task, nil
}

func (o *memoryOwnerTasks) ToggleCompleted(_ context.Context, id uuid.UUID) (types.Task, error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	task, ok := o.parent.tasks[id]
	if !ok || task.OwnerID != o.ownerID {
		return types.Task{}, store.ErrNotFound
	}
	task.Completed = !task.Completed
	o.parent.tasks[id] = task
	return task, nil
}

func (o *memoryOwnerTasks) Delete(_ context.Context, id uuid.UUID) error {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	task, ok := o.parent.tasks[id]
	if !ok || task.OwnerID != o.ownerID {
		return store.ErrNotFound
	}
	delete(o.parent.tasks, id)
	return nil
}

type recordingEvents struct {
	events []mq.TaskEvent
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, event mq.TaskEvent) error {
	r.events = append(r.events, event)
	return r.err
}

type memoryObjects struct {
	objects map[string][]byte
	infos   map[string]storage.ObjectInfo
	err     error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte), infos: make(map[string]storage.ObjectInfo)}
}

func (m *memoryObjects) EnsureBucket(context.Context) error { return nil }

func (m *memoryObjects) Put(_ context.Context, obj storage.Object) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	m.objects[obj.Key] = data
	m.infos[obj.Key] = storage.ObjectInfo{
		Key:         obj.Key,
		Size:        int64(len(data)),
		ContentType: obj.ContentType,
		Metadata:    obj.Metadata,
	}
	return nil
}

func (m *memoryObjects) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	info, err := m.Stat(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return io.NopCloser(bytes.NewReader(m.objects[key])), info, nil
}

func (m *memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	if m.err != nil {
		return storage.ObjectInfo{}, m.err
	}
	info, ok := m.infos[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return info, nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []storage.ObjectInfo
	for key, info := range m.infos {
		if strings.HasPrefix(key, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	delete(m.infos, key)
	return nil
}

func (m *memoryObjects) Bucket() string { return "exports" }
