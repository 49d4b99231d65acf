// Package api implements the task, comment and admin REST handlers.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

// defaultEventLimit is the admin history page size when none is given.
const defaultEventLimit = 50

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks   *task.Service
	Users   *user.Service
	Bus     comms.Bus
	Logger  *slog.Logger
	Version string
	Dev     bool // expose error detail and stack traces
}

// RegisterRoutes registers the authenticated task routes on mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("GET /api/tasks/all", h.listAllTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("POST /api/tasks/{id}/comments", h.addComment)
	mux.HandleFunc("GET /api/tasks/{id}/comments", h.listComments)
}

// RegisterAdminRoutes registers the admin routes on mux. The caller guards
// them with an admin check.
func (h *Handlers) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/users", h.listUsers)
	mux.HandleFunc("PUT /api/admin/users/{id}/role", h.setRole)
	mux.HandleFunc("GET /api/admin/events", h.listEvents)
}

// principal returns the authenticated caller. The auth middleware always
// sets one; a missing principal is an internal error.
func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return auth.Principal{}, fmt.Errorf("no principal on request context")
	}
	return p, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

// queryID parses an optional positive id query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return n, nil
}

func pageRequest(r *http.Request) (task.PageRequest, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return task.PageRequest{}, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return task.PageRequest{}, err
	}
	return task.ParsePage(page, size)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

// --- Task handlers ---

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var cs task.ChangeSet
	if err := decode(r, &cs); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.Tasks.Create(r.Context(), p, cs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	authorID, err := queryID(r, "authorId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	assigneeID, err := queryID(r, "assigneeId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sort, err := task.ParseSort(r.URL.Query()["sort"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.Tasks.List(r.Context(), p, authorID, assigneeID, sort, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *Handlers) listAllTasks(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sort, err := task.ParseSort(r.URL.Query()["sort"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.Tasks.ListAll(r.Context(), p, sort, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.Tasks.Get(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var cs task.ChangeSet
	if err := decode(r, &cs); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.Tasks.Update(r.Context(), p, id, cs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Tasks.Delete(r.Context(), p, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Comment handlers ---

type commentRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) addComment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req commentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Tasks.AddComment(r.Context(), p, id, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

func (h *Handlers) listComments(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.Tasks.ListComments(r.Context(), p, id, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// --- Admin handlers ---

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	WriteJSON(w, http.StatusOK, users)
}

type roleRequest struct {
	Role auth.Role `json:"role"`
}

func (h *Handlers) setRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.SetRole(r.Context(), id, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	events, err := h.Bus.History(limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []*comms.Event{}
	}
	WriteJSON(w, http.StatusOK, events)
}

// --- Status ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}
