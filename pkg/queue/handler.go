package queue

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/httpserver"
)

// errTransitionRejected is returned when a status/restart transition is
// attempted on a task already in a terminal or otherwise invalid state.
var errTransitionRejected = errors.New("queue: status transition rejected")

// Handler exposes the Queue Scheduler's HTTP surface (spec.md §4.8/§6).
type Handler struct {
	store  *Store
	engine *Engine
}

// NewHandler creates a queue Handler backed by store and engine. engine is
// used only to serialize mutations against in-flight attempts via its
// per-task lock.
func NewHandler(store *Store, engine *Engine) *Handler {
	return &Handler{store: store, engine: engine}
}

// Mount registers the queue and purchase-history routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/queue", h.list)
	r.Get("/queue/paged", h.listPaged)
	r.Post("/queue", h.create)
	r.Put("/queue/{id}", h.update)
	r.Put("/queue/{id}/status", h.updateStatus)
	r.Put("/queue/{id}/restart", h.restart)
	r.Delete("/queue/{id}", h.delete)
	r.Delete("/queue/clear", h.clear)
	r.Get("/purchase-history", h.listHistory)
	r.Delete("/purchase-history", h.clearHistory)
}

// scopeAccountID resolves the header-selected account id for scope=self
// filtering. An empty return means "no valid account in scope" — callers
// treat that as matching nothing rather than erroring, since "default" (the
// fallback when X-OVH-Account is unset) is not itself an account id.
func scopeAccountID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(httpserver.AccountFromContext(r.Context()))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if r.URL.Query().Get("scope") != "all" {
		tasks = filterByAccount(tasks, r)
	}
	httpserver.Respond(w, http.StatusOK, tasks)
}

func (h *Handler) listPaged(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	start := params.Offset
	if start > len(tasks) {
		start = len(tasks)
	}
	end := start + params.PageSize
	if end > len(tasks) {
		end = len(tasks)
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(tasks[start:end], params, len(tasks)))
}

func filterByAccount(tasks []QueueTask, r *http.Request) []QueueTask {
	accountID, ok := scopeAccountID(r)
	if !ok {
		return nil
	}
	out := make([]QueueTask, 0, len(tasks))
	for _, t := range tasks {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if len(req.Datacenters) == 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "datacenters must not be empty")
		return
	}

	accountID, err := resolveAccountID(req.AccountID, r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	t := newTask(req, accountID)
	created, err := h.store.Insert(t)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, created)
}

func resolveAccountID(bodyID string, r *http.Request) (uuid.UUID, error) {
	if bodyID != "" {
		return uuid.Parse(bodyID)
	}
	if id, ok := scopeAccountID(r); ok {
		return id, nil
	}
	return uuid.UUID{}, errors.New("accountId is required")
}

func parseTaskID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if len(req.Datacenters) == 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "datacenters must not be empty")
		return
	}

	var updated QueueTask
	err = h.engine.withTaskTryLock(id, func() error {
		updated, err = h.store.Update(id, func(cur QueueTask) (QueueTask, error) {
			return cur.applyUpdate(req), nil
		})
		return err
	})
	h.respondUpdateResult(w, updated, err)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}
	var req StatusUpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var updated QueueTask
	err = h.engine.withTaskLock(id, func() error {
		updated, err = h.store.Update(id, func(cur QueueTask) (QueueTask, error) {
			if cur.isTerminal() {
				return cur, errTransitionRejected
			}
			cur.Status = req.Status
			cur.UpdatedAt = time.Now()
			if req.Status == StatusRunning {
				cur.NextAttemptAt = cur.UpdatedAt
			}
			return cur, nil
		})
		return err
	})
	h.respondUpdateResult(w, updated, err)
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}

	var updated QueueTask
	err = h.engine.withTaskLock(id, func() error {
		updated, err = h.store.Update(id, func(cur QueueTask) (QueueTask, error) {
			cur.Status = StatusRunning
			cur.Purchased = 0
			cur.RetryCount = 0
			cur.FailureCount = 0
			cur.RateLimitBackoffSeconds = 0
			cur.ErrorMessage = ""
			cur.UpdatedAt = time.Now()
			cur.NextAttemptAt = cur.UpdatedAt
			return cur, nil
		})
		return err
	})
	h.respondUpdateResult(w, updated, err)
}

func (h *Handler) respondUpdateResult(w http.ResponseWriter, updated QueueTask, err error) {
	if err != nil {
		var notFound *NotFoundError
		switch {
		case errors.As(err, &notFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, errTransitionRejected), errors.Is(err, errTaskBusy):
			httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
		default:
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}

	err = h.engine.withTaskLock(id, func() error { return h.store.Delete(id) })
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	var accountID *uuid.UUID
	if r.URL.Query().Get("scope") != "all" {
		id, ok := scopeAccountID(r)
		if !ok {
			httpserver.Respond(w, http.StatusOK, map[string]int{"removed": 0})
			return
		}
		accountID = &id
	}

	removed, err := h.store.Clear(accountID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListHistory()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if r.URL.Query().Get("scope") != "all" {
		accountID, ok := scopeAccountID(r)
		filtered := entries[:0]
		if ok {
			for _, e := range entries {
				if e.AccountID == accountID {
					filtered = append(filtered, e)
				}
			}
		}
		entries = filtered
	}
	httpserver.Respond(w, http.StatusOK, entries)
}

func (h *Handler) clearHistory(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.ClearHistory(); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
