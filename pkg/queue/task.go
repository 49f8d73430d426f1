// Package queue implements the Queue Scheduler (C5): it owns QueueTask
// lifecycle, paces retries against availability, drives the cart driver and
// availability probe, and records outcomes (spec.md §4.5).
package queue

import (
	"time"

	"github.com/google/uuid"
)

// MinRetryIntervalSeconds is the floor for QueueTask.RetryIntervalSeconds
// (spec.md §3), enforced by CreateRequest's validator tag.
const MinRetryIntervalSeconds = 15

// MaxQuantity bounds how many units a single task may request (spec.md §8
// boundary tests: 1..100).
const MaxQuantity = 100

// Status is a QueueTask's lifecycle state (spec.md §4.5 state machine).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// QueueTask is the unit of purchase intent (spec.md §3).
type QueueTask struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"accountId"`

	PlanCode    string   `json:"planCode"`
	Datacenters []string `json:"datacenters"`
	Options     []string `json:"options"`

	Quantity int  `json:"quantity"`
	AutoPay  bool `json:"autoPay"`

	// RetryIntervalSeconds is the wait between scheduler ticks for this task
	// (spec.md §6's wire field is "retryInterval", in seconds).
	RetryIntervalSeconds int `json:"retryInterval"`

	Status        Status    `json:"status"`
	RetryCount    int       `json:"retryCount"`
	FailureCount  int       `json:"failureCount"`
	Purchased     int       `json:"purchased"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`

	// RateLimitBackoffSeconds remembers the last computed RateLimitError
	// backoff so consecutive 429s double instead of resetting (spec.md §7).
	// Zero once a tick succeeds without hitting a rate limit.
	RateLimitBackoffSeconds int `json:"rateLimitBackoffSeconds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateRequest is the body of POST /queue (spec.md §6, exact field names).
type CreateRequest struct {
	PlanCode      string   `json:"planCode" validate:"required"`
	Datacenters   []string `json:"datacenters" validate:"required,min=1"`
	Options       []string `json:"options"`
	Quantity      int      `json:"quantity" validate:"required,gte=1,lte=100"`
	RetryInterval int      `json:"retryInterval" validate:"required,gte=15"`
	AutoPay       bool     `json:"autoPay"`
	AccountID     string   `json:"accountId"`
}

// StatusUpdateRequest is the body of PUT /queue/{id}/status.
type StatusUpdateRequest struct {
	Status Status `json:"status" validate:"required,oneof=running paused"`
}

// retryInterval returns RetryIntervalSeconds as a time.Duration.
func (t QueueTask) retryInterval() time.Duration {
	return time.Duration(t.RetryIntervalSeconds) * time.Second
}

// newTask builds a QueueTask from a validated CreateRequest.
func newTask(req CreateRequest, accountID uuid.UUID) QueueTask {
	now := time.Now()
	return QueueTask{
		ID:                   uuid.New(),
		AccountID:            accountID,
		PlanCode:             req.PlanCode,
		Datacenters:          req.Datacenters,
		Options:              req.Options,
		Quantity:             req.Quantity,
		RetryIntervalSeconds: req.RetryInterval,
		AutoPay:              req.AutoPay,
		Status:               StatusRunning,
		NextAttemptAt:        now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// applyUpdate overwrites the configurable fields of t from req, leaving
// runtime/audit fields untouched. Used by PUT /queue/{id}.
func (t QueueTask) applyUpdate(req CreateRequest) QueueTask {
	t.PlanCode = req.PlanCode
	t.Datacenters = req.Datacenters
	t.Options = req.Options
	t.Quantity = req.Quantity
	t.RetryIntervalSeconds = req.RetryInterval
	t.AutoPay = req.AutoPay
	t.UpdatedAt = time.Now()
	return t
}

// isDue reports whether t should be picked up on this tick (spec.md §4.5).
func (t QueueTask) isDue(now time.Time) bool {
	return t.Status == StatusRunning && !t.NextAttemptAt.After(now)
}

// isTerminal reports whether t is in a state the scheduler no longer acts on.
func (t QueueTask) isTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
