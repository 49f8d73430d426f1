package monitor

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/httpserver"
)

// Handler exposes the Availability Monitor's HTTP surface (spec.md §4.8:
// "POST /vps-monitor/subscriptions etc — analogous subscription CRUD").
type Handler struct {
	store  *Store
	engine *Engine
}

// NewHandler creates a monitor Handler backed by store and engine. engine
// serializes mutations against in-flight polls via its per-subscription lock
// and answers GET /vps-monitor/status.
func NewHandler(store *Store, engine *Engine) *Handler {
	return &Handler{store: store, engine: engine}
}

// Mount registers the subscription CRUD and monitor status routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/vps-monitor/subscriptions", h.list)
	r.Post("/vps-monitor/subscriptions", h.create)
	r.Put("/vps-monitor/subscriptions/{id}", h.update)
	r.Put("/vps-monitor/subscriptions/{id}/enabled", h.updateEnabled)
	r.Delete("/vps-monitor/subscriptions/{id}", h.delete)
	r.Get("/vps-monitor/status", h.status)
}

func scopeAccountID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(httpserver.AccountFromContext(r.Context()))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.List()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if r.URL.Query().Get("scope") != "all" {
		accountID, ok := scopeAccountID(r)
		filtered := subs[:0]
		if ok {
			for _, sub := range subs {
				if sub.AccountID != nil && *sub.AccountID == accountID {
					filtered = append(filtered, sub)
				}
			}
		}
		subs = filtered
	}
	httpserver.Respond(w, http.StatusOK, subs)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	accountID, err := resolveAccountID(req.AccountID, r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sub := newSubscription(req, accountID)
	created, err := h.store.Insert(sub)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, created)
}

// resolveAccountID returns a pointer to the subscription's account scope: the
// request body's accountId if set, the header-selected account otherwise, or
// nil when the subscription should watch on behalf of no particular account
// (the monitor then probes through the first configured account — spec.md
// §3's accountId is explicitly optional).
func resolveAccountID(bodyID string, r *http.Request) (*uuid.UUID, error) {
	if bodyID != "" {
		id, err := uuid.Parse(bodyID)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if id, ok := scopeAccountID(r); ok {
		return &id, nil
	}
	return nil, nil
}

func parseSubscriptionID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubscriptionID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid subscription id")
		return
	}
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var updated Subscription
	err = h.engine.withSubscriptionLock(id, func() error {
		updated, err = h.store.Update(id, func(cur Subscription) (Subscription, error) {
			return cur.applyUpdate(req), nil
		})
		return err
	})
	h.respondUpdateResult(w, updated, err)
}

func (h *Handler) updateEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubscriptionID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid subscription id")
		return
	}
	var req EnabledUpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var updated Subscription
	err = h.engine.withSubscriptionLock(id, func() error {
		updated, err = h.store.Update(id, func(cur Subscription) (Subscription, error) {
			cur.Enabled = req.Enabled
			return cur, nil
		})
		return err
	})
	h.respondUpdateResult(w, updated, err)
}

func (h *Handler) respondUpdateResult(w http.ResponseWriter, updated Subscription, err error) {
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubscriptionID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid subscription id")
		return
	}

	err = h.engine.withSubscriptionLock(id, func() error { return h.store.Delete(id) })
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

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.engine.Status())
}
