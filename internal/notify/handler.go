package notify

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ovhfleet/acquire/internal/httpserver"
)

// Handler exposes POST /notifications/test (SPEC_FULL.md supplemental
// feature) so operators can verify their Telegram bot token/chat ID.
type Handler struct {
	notifier *Notifier
}

// NewHandler creates a notify Handler backed by notifier.
func NewHandler(notifier *Notifier) *Handler {
	return &Handler{notifier: notifier}
}

// Mount registers the notify routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/notifications/test", h.test)
}

func (h *Handler) test(w http.ResponseWriter, _ *http.Request) {
	if !h.notifier.Enabled() {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "notifier_disabled", "no Telegram bot token configured")
		return
	}
	h.notifier.Send("acquire: test notification")
	httpserver.Respond(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
