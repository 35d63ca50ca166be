package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/apperr"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/storage"
)

// TaskHandler provides HTTP handlers for the caller's tasks.
type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// TaskRouter registers task routes on the given router. Every route sits
// behind authMiddleware.
func TaskRouter(r chi.Router, tasks *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(tasks)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.ListTasks)
		r.Post("/", handler.CreateTask)
		r.Get("/search", handler.SearchTasks)
		if tasks.ExportEnabled() {
			r.Post("/export", handler.ExportTasks)
			r.Route("/exports", func(r chi.Router) {
				r.Get("/", handler.ListExports)
				r.Get("/{exportID}", handler.GetExport)
				r.Delete("/{exportID}", handler.DeleteExport)
			})
		}
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", handler.GetTask)
			r.Patch("/", handler.UpdateTask)
			r.Delete("/", handler.DeleteTask)
			r.Patch("/complete", handler.ToggleTaskCompletion)
		})
	})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "Tasks retrieved successfully"
	if len(tasks) == 0 {
		message = "No tasks added yet"
	}
	writeOK(w, http.StatusOK, message, tasks)
}

func (h *TaskHandler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := h.tasks.Search(r.Context(), user.ID, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "Search results retrieved"
	if len(tasks) == 0 {
		message = "No matching tasks found"
	}
	writeOK(w, http.StatusOK, message, tasks)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, id, err := h.target(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Get(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Task retrieved successfully", task)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req services.CreateTaskInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Task created successfully", task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, id, err := h.target(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req services.UpdateTaskInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), user, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Task updated successfully", task)
}

func (h *TaskHandler) ToggleTaskCompletion(w http.ResponseWriter, r *http.Request) {
	user, id, err := h.target(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.ToggleCompletion(r.Context(), user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Task completion status updated", task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, id, err := h.target(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), user, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Task deleted successfully", nil)
}

func (h *TaskHandler) ExportTasks(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.tasks.Export(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Tasks exported successfully", result)
}

func (h *TaskHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	exports, err := h.tasks.ListExports(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "Exports retrieved successfully"
	if len(exports) == 0 {
		message = "No exports yet"
	}
	writeOK(w, http.StatusOK, message, exports)
}

// exportBody is a stored snapshot together with its tasks.
type exportBody struct {
	storage.Export
	Tasks json.RawMessage `json:"tasks"`
}

func (h *TaskHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, export, err := h.tasks.ReadExport(r.Context(), user.ID, chi.URLParam(r, "exportID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Export retrieved successfully", exportBody{Export: export, Tasks: data})
}

func (h *TaskHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.tasks.DeleteExport(r.Context(), user.ID, chi.URLParam(r, "exportID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Export deleted successfully", nil)
}

// target returns the caller and the task id from the path. A malformed id
// cannot name an owned task, so it is reported as not found.
func (h *TaskHandler) target(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	user, err := identity(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.NotFound("Task not found")
	}
	return user.ID, id, nil
}
