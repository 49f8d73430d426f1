package ovhclient

import "fmt"

// APIError is the base error returned for any non-2xx OVH API response that
// doesn't map to one of the more specific kinds below. Every ovhclient error
// carries the HTTP status and the OVH-reported message so callers (C3, C5)
// can log and surface it without re-parsing the response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ovh: %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// AuthError indicates invalid or expired application/consumer credentials
// (HTTP 401/403). Per spec.md §7, this is fatal: the scheduler marks the
// task failed rather than retrying.
type AuthError struct{ *APIError }

// NotFoundError indicates the plan code or datacenter does not exist
// (HTTP 404). Also fatal per spec.md §7.
type NotFoundError struct{ *APIError }

// ConflictError indicates a cart/order conflict (HTTP 409), e.g. the cart
// expired or the item can no longer be added. Retried next tick.
type ConflictError struct{ *APIError }

// ServerError indicates a transient 5xx response. Retried next tick.
type ServerError struct{ *APIError }

// RateLimitError indicates HTTP 429. The scheduler backs off per spec.md §7:
// max(retryInterval, 2×previous) capped at 600s.
type RateLimitError struct{ *APIError }

// NotAvailable indicates the plan/option/datacenter combination has no stock.
// This is not an HTTP error — it's a normal outcome of a cart add-to-cart
// probe — but it is modeled alongside the other kinds because C5 treats it
// identically to "no datacenter available" from C4.
type NotAvailable struct {
	PlanCode   string
	Datacenter string
}

func (e *NotAvailable) Error() string {
	return fmt.Sprintf("plan %s not available in %s", e.PlanCode, e.Datacenter)
}

// classify maps an HTTP status + body into the typed error taxonomy.
func classify(method, path string, status int, message string) error {
	base := &APIError{Method: method, Path: path, Status: status, Message: message}
	switch {
	case status == 401 || status == 403:
		return &AuthError{base}
	case status == 404:
		return &NotFoundError{base}
	case status == 409:
		return &ConflictError{base}
	case status == 429:
		return &RateLimitError{base}
	case status >= 500:
		return &ServerError{base}
	default:
		return base
	}
}
