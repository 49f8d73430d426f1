package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/availability"
	"github.com/ovhfleet/acquire/internal/telemetry"
	"github.com/ovhfleet/acquire/pkg/account"
)

// defaultTickInterval and minTickInterval bound the monitor's poll cadence
// (spec.md §4.6: "default tick 60s (configurable, ≥ 30s)").
const defaultTickInterval = 60 * time.Second
const minTickInterval = 30 * time.Second

type prober interface {
	Probe(ctx context.Context, acct account.Account, planCode string, options, datacenters []string) (map[string]availability.State, error)
}

type sender interface {
	Send(text string)
}

type accountLookup interface {
	Get(id uuid.UUID) (account.Account, error)
	List() ([]account.Account, error)
}

// Engine runs the availability monitor's single dedicated polling worker
// (spec.md §4.6, §5: "C6 runs on a single dedicated worker").
type Engine struct {
	store    *Store
	accounts accountLookup
	prober   prober
	notifier sender
	logger   *slog.Logger
	interval time.Duration

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a monitor Engine. interval is clamped to
// [minTickInterval, +inf); zero selects defaultTickInterval.
func NewEngine(store *Store, accounts accountLookup, prober prober, notifier sender, logger *slog.Logger, interval time.Duration) *Engine {
	if interval == 0 {
		interval = defaultTickInterval
	}
	if interval < minTickInterval {
		interval = minTickInterval
	}
	return &Engine{
		store: store, accounts: accounts, prober: prober, notifier: notifier, logger: logger, interval: interval,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Start begins the polling loop if it is not already running. Idempotent
// (spec.md §4.6).
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	go e.run(runCtx)
}

// Stop halts the polling loop if running. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.running = false
	e.mu.Unlock()

	cancel()
	<-done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	e.logger.Info("availability monitor started", "checkInterval", e.interval)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("availability monitor stopped")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	subs, err := e.store.List()
	if err != nil {
		e.logger.Error("monitor tick: listing subscriptions", "error", err)
		return
	}
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		e.processSubscription(ctx, sub.ID)
	}
}

func (e *Engine) lockFor(id uuid.UUID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// withSubscriptionLock serializes an HTTP mutation against this
// subscription's lastStatus/history with any in-flight poll (spec.md §5's
// per-subscription lock; blocking so the caller gets read-your-writes).
func (e *Engine) withSubscriptionLock(id uuid.UUID, fn func() error) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// processSubscription runs one poll-compare-notify-persist cycle for a
// single subscription (spec.md §4.6 steps 1-4).
func (e *Engine) processSubscription(ctx context.Context, id uuid.UUID) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sub, err := e.store.Get(id)
	if err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			e.logger.Error("monitor tick: reloading subscription", "subscription", id, "error", err)
		}
		return
	}
	if !sub.Enabled {
		return
	}

	acct, err := e.resolveAccount(sub)
	if err != nil {
		e.logger.Warn("monitor tick: no account available for subscription", "subscription", id, "error", err)
		return
	}

	states, err := e.prober.Probe(ctx, acct, sub.PlanCode, nil, sub.Datacenters)
	if err != nil {
		e.logger.Error("monitor tick: probing availability", "subscription", id, "error", err)
		return
	}

	now := time.Now()
	lastStatus := cloneStatus(sub.LastStatus)
	history := sub.History

	for dc, state := range states {
		available := state == availability.Available
		prev, known := lastStatus[dc]

		if known && prev.Available != available {
			changeType := BecameUnavailable
			if available {
				changeType = BecameAvailable
			}
			history = appendHistory(history, ChangeEvent{
				Timestamp: now, Datacenter: dc, ChangeType: changeType, OldStatus: prev.Available,
			})
			telemetry.MonitorChangesTotal.WithLabelValues(string(changeType)).Inc()

			if available && sub.NotifyAvailable {
				e.notifier.Send(fmt.Sprintf("monitor: %s available in %s", sub.PlanCode, dc))
			}
			if !available && sub.NotifyUnavailable {
				e.notifier.Send(fmt.Sprintf("monitor: %s no longer available in %s", sub.PlanCode, dc))
			}
		}

		lastStatus[dc] = DCStatus{Available: available, LastSeenAt: now}
	}

	if _, err := e.store.Update(id, func(cur Subscription) (Subscription, error) {
		cur.LastStatus = lastStatus
		cur.History = history
		return cur, nil
	}); err != nil {
		e.logger.Error("monitor tick: persisting status", "subscription", id, "error", err)
	}
}

// resolveAccount picks the OVH account a subscription probes through: the
// account it names, or — since a subscription's accountId is optional
// (spec.md §3) — the first configured account as a default.
func (e *Engine) resolveAccount(sub Subscription) (account.Account, error) {
	if sub.AccountID != nil {
		return e.accounts.Get(*sub.AccountID)
	}
	accounts, err := e.accounts.List()
	if err != nil {
		return account.Account{}, err
	}
	if len(accounts) == 0 {
		return account.Account{}, fmt.Errorf("no accounts configured")
	}
	return accounts[0], nil
}

func cloneStatus(m map[string]DCStatus) map[string]DCStatus {
	out := make(map[string]DCStatus, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Status reports the monitor's current operational state (spec.md §4.6).
// CheckIntervalSeconds mirrors the queue scheduler's wire convention of
// sending durations as plain seconds rather than raw nanoseconds.
type Status struct {
	Running              bool `json:"running"`
	SubscriptionCount    int  `json:"subscriptionCount"`
	CheckIntervalSeconds int  `json:"checkInterval"`
}

// Status returns the Engine's current operational status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	count := 0
	if subs, err := e.store.List(); err == nil {
		count = len(subs)
	}
	return Status{Running: running, SubscriptionCount: count, CheckIntervalSeconds: int(e.interval.Seconds())}
}
