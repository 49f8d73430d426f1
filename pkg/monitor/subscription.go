// Package monitor implements the Availability Monitor (C6): a standing
// subscription-driven poller that watches plan/datacenter availability and
// raises notifications on state transitions, independent of the purchase
// queue (spec.md §4.6).
package monitor

import (
	"time"

	"github.com/google/uuid"
)

// DCStatus is the last observed availability for one datacenter.
type DCStatus struct {
	Available  bool      `json:"available"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ChangeType labels a transition recorded in a Subscription's history.
type ChangeType string

const (
	BecameAvailable   ChangeType = "became_available"
	BecameUnavailable ChangeType = "became_unavailable"
)

// ChangeEvent is one entry in a Subscription's bounded history ring
// (spec.md §4.6 step 3).
type ChangeEvent struct {
	Timestamp  time.Time  `json:"timestamp"`
	Datacenter string     `json:"datacenter"`
	ChangeType ChangeType `json:"changeType"`
	OldStatus  bool       `json:"oldStatus"`
}

// historyRingCap bounds Subscription.History; oldest entries are trimmed.
const historyRingCap = 200

// Subscription is a standing watch on one plan's availability across a set
// of datacenters (spec.md §3).
type Subscription struct {
	ID        uuid.UUID  `json:"id"`
	AccountID *uuid.UUID `json:"accountId,omitempty"`

	PlanCode      string   `json:"planCode"`
	OVHSubsidiary string   `json:"ovhSubsidiary"`
	Datacenters   []string `json:"datacenters"`

	MonitorLinux   bool `json:"monitorLinux"`
	MonitorWindows bool `json:"monitorWindows"`

	NotifyAvailable   bool `json:"notifyAvailable"`
	NotifyUnavailable bool `json:"notifyUnavailable"`

	Enabled bool `json:"enabled"`

	LastStatus map[string]DCStatus `json:"lastStatus"`
	History    []ChangeEvent       `json:"history"`

	CreatedAt time.Time `json:"createdAt"`
}

// CreateRequest is the body of POST /vps-monitor/subscriptions (spec.md §4.8).
type CreateRequest struct {
	PlanCode          string   `json:"planCode" validate:"required"`
	OVHSubsidiary     string   `json:"ovhSubsidiary" validate:"required"`
	Datacenters       []string `json:"datacenters"`
	MonitorLinux      bool     `json:"monitorLinux"`
	MonitorWindows    bool     `json:"monitorWindows"`
	NotifyAvailable   bool     `json:"notifyAvailable"`
	NotifyUnavailable bool     `json:"notifyUnavailable"`
	AccountID         string   `json:"accountId"`
}

// EnabledUpdateRequest is the body of PUT /vps-monitor/subscriptions/{id}/enabled.
type EnabledUpdateRequest struct {
	Enabled bool `json:"enabled"`
}

func newSubscription(req CreateRequest, accountID *uuid.UUID) Subscription {
	return Subscription{
		ID:                uuid.New(),
		AccountID:         accountID,
		PlanCode:          req.PlanCode,
		OVHSubsidiary:     req.OVHSubsidiary,
		Datacenters:       req.Datacenters,
		MonitorLinux:      req.MonitorLinux,
		MonitorWindows:    req.MonitorWindows,
		NotifyAvailable:   req.NotifyAvailable,
		NotifyUnavailable: req.NotifyUnavailable,
		Enabled:           true,
		LastStatus:        make(map[string]DCStatus),
		CreatedAt:         time.Now(),
	}
}

// applyUpdate overwrites the configurable fields of s from req, leaving
// runtime fields (lastStatus, history, enabled) untouched.
func (s Subscription) applyUpdate(req CreateRequest) Subscription {
	s.PlanCode = req.PlanCode
	s.OVHSubsidiary = req.OVHSubsidiary
	s.Datacenters = req.Datacenters
	s.MonitorLinux = req.MonitorLinux
	s.MonitorWindows = req.MonitorWindows
	s.NotifyAvailable = req.NotifyAvailable
	s.NotifyUnavailable = req.NotifyUnavailable
	return s
}

// appendHistory appends entry to history, trimming the oldest entries once
// historyRingCap is exceeded.
func appendHistory(history []ChangeEvent, entry ChangeEvent) []ChangeEvent {
	history = append(history, entry)
	if len(history) > historyRingCap {
		history = history[len(history)-historyRingCap:]
	}
	return history
}
