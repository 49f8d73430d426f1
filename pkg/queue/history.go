package queue

import (
	"time"

	"github.com/google/uuid"
)

// historySoftCap bounds data/history.json; the oldest entries are trimmed
// once it is exceeded (spec.md §4.2).
const historySoftCap = 10000

// errorMessageMaxLen truncates PurchaseHistoryEntry.ErrorMessage (spec.md §7).
const errorMessageMaxLen = 500

// HistoryStatus is the outcome recorded for one purchase attempt.
type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "success"
	HistoryFailed  HistoryStatus = "failed"
)

// Price mirrors cart.Price for the persisted history entry, so the queue's
// public JSON shape does not change when internal/cart's checkout type does.
type Price struct {
	WithTax      float64 `json:"withTax"`
	WithoutTax   float64 `json:"withoutTax"`
	Tax          float64 `json:"tax"`
	CurrencyCode string  `json:"currencyCode"`
}

// PurchaseHistoryEntry is one recorded order attempt outcome (spec.md §3).
// Append-only from the scheduler's perspective; clearable by the operator.
type PurchaseHistoryEntry struct {
	ID         uuid.UUID     `json:"id"`
	TaskID     uuid.UUID     `json:"taskId"`
	AccountID  uuid.UUID     `json:"accountId"`
	PlanCode   string        `json:"planCode"`
	Datacenter string        `json:"datacenter"`
	Options    []string      `json:"options"`
	Status     HistoryStatus `json:"status"`

	OrderID      string `json:"orderId,omitempty"`
	OrderURL     string `json:"orderUrl,omitempty"`
	Price        *Price `json:"price,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Sequence is the n-th success for this task, 1-based (spec.md §3).
	// Zero on failed entries.
	Sequence int `json:"sequence"`

	PurchaseTime time.Time `json:"purchaseTime"`
}

// truncateErrorMessage enforces the 500-char cap spec.md §7 requires on
// user-visible failure messages.
func truncateErrorMessage(msg string) string {
	if len(msg) <= errorMessageMaxLen {
		return msg
	}
	return msg[:errorMessageMaxLen]
}
