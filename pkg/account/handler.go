package account

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/httpserver"
)

// Handler exposes the account CRUD surface (POST/GET /accounts, DELETE
// /accounts/{id}) — added in SPEC_FULL.md since spec.md describes the
// Account entity but never gives it an HTTP surface.
type Handler struct {
	store *Store
}

// NewHandler creates an account Handler backed by store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Mount registers the account routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/accounts", h.list)
	r.Post("/accounts", h.create)
	r.Delete("/accounts/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	accounts, err := h.store.List()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	redacted := make([]Account, len(accounts))
	for i, a := range accounts {
		redacted[i] = a.Redacted()
	}
	httpserver.Respond(w, http.StatusOK, redacted)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	a, err := h.store.Create(req)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, a.Redacted())
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid account id")
		return
	}

	if err := h.store.Delete(id); err != nil {
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
