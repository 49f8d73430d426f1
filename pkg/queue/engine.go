package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/availability"
	"github.com/ovhfleet/acquire/internal/cart"
	"github.com/ovhfleet/acquire/internal/ovhclient"
	"github.com/ovhfleet/acquire/internal/telemetry"
	"github.com/ovhfleet/acquire/pkg/account"
)

// defaultTickInterval is how often the dispatcher wakes to look for due
// tasks when QUEUE_TICK_INTERVAL is unset (spec.md §4.5).
const defaultTickInterval = 1 * time.Second

// maxWorkers bounds the engine's worker pool regardless of account count
// (spec.md §5: min(32, 2×account_count)).
const maxWorkers = 32

// prober is the slice of *availability.Prober the engine needs, narrowed so
// tests can supply a fake instead of a real OVH-backed prober.
type prober interface {
	Probe(ctx context.Context, acct account.Account, planCode string, options, datacenters []string) (map[string]availability.State, error)
}

// orderDriver is the slice of *cart.Driver the engine needs.
type orderDriver interface {
	PlaceOrder(ctx context.Context, acct account.Account, planCode, datacenter string, options []string, autoPay bool) (cart.OrderResult, error)
}

// sender is the slice of *notify.Notifier the engine needs.
type sender interface {
	Send(text string)
}

// accountLookup is the slice of *account.Store the engine needs.
type accountLookup interface {
	Get(id uuid.UUID) (account.Account, error)
	List() ([]account.Account, error)
}

// Engine is the Queue Scheduler (C5): it owns QueueTask lifecycle, ticks a
// bounded worker pool against due tasks, and drives C3/C4 to advance them
// (spec.md §4.5, the central component).
type Engine struct {
	store    *Store
	accounts accountLookup
	prober   prober
	driver   orderDriver
	notifier sender
	logger   *slog.Logger

	tickInterval time.Duration
	sem          chan struct{}

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine constructs an Engine. tickInterval of 0 selects
// defaultTickInterval (QUEUE_TICK_INTERVAL). workerPoolSize of 0 derives the
// pool size from the current account count, bounded by maxWorkers
// (QUEUE_WORKER_POOL_SIZE); a positive value is used as given, capped at
// maxWorkers. Either way the pool has at least 2 workers.
func NewEngine(store *Store, accounts accountLookup, prober prober, driver orderDriver, notifier sender, logger *slog.Logger, tickInterval time.Duration, workerPoolSize int) *Engine {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &Engine{
		store:        store,
		accounts:     accounts,
		prober:       prober,
		driver:       driver,
		notifier:     notifier,
		logger:       logger,
		tickInterval: tickInterval,
		sem:          make(chan struct{}, resolveWorkerPoolSize(accounts, workerPoolSize)),
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func resolveWorkerPoolSize(accounts accountLookup, configured int) int {
	n := configured
	if n <= 0 {
		n = 2
		if accounts != nil {
			if list, err := accounts.List(); err == nil {
				n = 2 * len(list)
			}
		}
	}
	if n < 2 {
		n = 2
	}
	if n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// Run starts the dispatcher loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	defer close(e.done)

	e.logger.Info("queue scheduler started", "tickInterval", e.tickInterval, "workers", cap(e.sem))

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("queue scheduler stopped")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// Stop cancels the dispatcher loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// tick dispatches every due task to the worker pool (spec.md §4.5).
func (e *Engine) tick(ctx context.Context) {
	telemetry.QueueTicksTotal.Inc()

	tasks, err := e.store.List()
	if err != nil {
		e.logger.Error("queue tick: listing tasks", "error", err)
		return
	}

	now := time.Now()
	for _, t := range tasks {
		if !t.isDue(now) {
			continue
		}
		id := t.ID
		go e.dispatch(ctx, id)
	}
}

// dispatch tries the per-task lock (non-blocking) before consuming a worker
// pool slot, so a task already in flight from a prior tick is skipped rather
// than queued behind it (spec.md §4.5 step 1).
func (e *Engine) dispatch(ctx context.Context, id uuid.UUID) {
	lock := e.lockFor(id)
	if !lock.TryLock() {
		return
	}
	defer lock.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-e.sem }()

	e.processTask(ctx, id)
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

// withTaskLock runs fn while holding id's per-task lock, blocking until it is
// available. Used by HTTP mutation handlers so an in-flight attempt is never
// observed half-updated (spec.md §5: "blocking in C8 to provide
// read-your-writes").
func (e *Engine) withTaskLock(id uuid.UUID, fn func() error) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// errTaskBusy is returned by withTaskTryLock when an attempt is in flight.
var errTaskBusy = errors.New("queue: task update rejected, attempt in progress")

// withTaskTryLock runs fn only if id's per-task lock is immediately
// available, returning errTaskBusy otherwise (spec.md §4.8: "forbidden while
// attempt in progress → returns 409").
func (e *Engine) withTaskTryLock(id uuid.UUID, fn func() error) error {
	lock := e.lockFor(id)
	if !lock.TryLock() {
		return errTaskBusy
	}
	defer lock.Unlock()
	return fn()
}

// processTask runs the tick algorithm for one due task (spec.md §4.5 steps
// 2-9). The caller holds the task's lock.
func (e *Engine) processTask(ctx context.Context, id uuid.UUID) {
	t, err := e.store.Get(id)
	if err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			e.logger.Error("queue tick: reloading task", "task", id, "error", err)
		}
		return
	}
	if t.isTerminal() || t.Status != StatusRunning {
		return
	}

	if t.Purchased >= t.Quantity {
		e.completeTask(id)
		return
	}

	acct, err := e.accounts.Get(t.AccountID)
	if err != nil {
		e.failTask(id, "account removed")
		return
	}

	states, err := e.prober.Probe(ctx, acct, t.PlanCode, t.Options, t.Datacenters)
	if err != nil {
		e.retryTransient(id, "probing availability: "+err.Error())
		return
	}

	var chosenDC string
	for _, dc := range t.Datacenters {
		if states[dc] == availability.Available {
			chosenDC = dc
			break
		}
	}
	if chosenDC == "" {
		e.retryUnavailable(id)
		return
	}

	result, err := e.driver.PlaceOrder(ctx, acct, t.PlanCode, chosenDC, t.Options, t.AutoPay)
	if err == nil {
		e.recordSuccess(id, t, acct, chosenDC, result, "")
		return
	}
	e.handleOrderError(id, t, acct, chosenDC, result, err)
}

// handleOrderError classifies a PlaceOrder failure per spec.md §7's error
// taxonomy and applies the matching scheduler policy.
func (e *Engine) handleOrderError(id uuid.UUID, t QueueTask, acct account.Account, dc string, result cart.OrderResult, err error) {
	var notAvailable *ovhclient.NotAvailable
	if errors.As(err, &notAvailable) {
		telemetry.QueueAttemptsTotal.WithLabelValues("unavailable").Inc()
		e.retryUnavailable(id)
		return
	}

	if errors.Is(err, cart.ErrPaymentFailed) {
		// The order was created; the unit is still acquired, but the
		// payment failure is recorded on the history entry (spec.md §4.5
		// edge case).
		e.recordSuccess(id, t, acct, dc, result, err.Error())
		return
	}

	var authErr *ovhclient.AuthError
	if errors.As(err, &authErr) {
		telemetry.QueueAttemptsTotal.WithLabelValues("fatal_error").Inc()
		e.failTask(id, "auth error: "+err.Error())
		return
	}

	var notFound *ovhclient.NotFoundError
	if errors.As(err, &notFound) {
		telemetry.QueueAttemptsTotal.WithLabelValues("fatal_error").Inc()
		e.failTask(id, "plan or datacenter not found: "+err.Error())
		return
	}

	var rateLimit *ovhclient.RateLimitError
	if errors.As(err, &rateLimit) {
		telemetry.QueueAttemptsTotal.WithLabelValues("transient_error").Inc()
		e.retryRateLimited(id, t)
		return
	}

	// ConflictError, ServerError, and any unclassified (timeout/network)
	// failure are all transient: retry next tick (spec.md §7).
	telemetry.QueueAttemptsTotal.WithLabelValues("transient_error").Inc()
	e.retryTransient(id, "placing order: "+err.Error())
}

// recordSuccess appends a success history entry, advances purchased, and
// completes the task once its full quantity has been acquired (spec.md §4.5
// step 6). paymentError, when non-empty, is recorded on the history entry
// without blocking the purchase from counting (spec.md §4.5 edge case).
func (e *Engine) recordSuccess(id uuid.UUID, t QueueTask, acct account.Account, dc string, result cart.OrderResult, paymentError string) {
	sequence := NextSequence(t)
	entry := PurchaseHistoryEntry{
		ID:         uuid.New(),
		TaskID:     id,
		AccountID:  acct.ID,
		PlanCode:   t.PlanCode,
		Datacenter: dc,
		Options:    t.Options,
		Status:     HistorySuccess,
		OrderID:    result.OrderID,
		OrderURL:   result.URL,
		Price: &Price{
			WithTax:      result.Price.WithTax,
			WithoutTax:   result.Price.WithoutTax,
			Tax:          result.Price.Tax,
			CurrencyCode: result.Price.CurrencyCode,
		},
		ErrorMessage: truncateErrorMessage(paymentError),
		Sequence:     sequence,
		PurchaseTime: time.Now(),
	}
	if err := e.store.AppendHistory(entry); err != nil {
		e.logger.Error("queue tick: appending history", "task", id, "error", err)
	}
	telemetry.QueueAttemptsTotal.WithLabelValues("purchased").Inc()
	telemetry.QueueUnitsPurchasedTotal.Inc()

	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.Purchased = sequence
		cur.RateLimitBackoffSeconds = 0
		cur.UpdatedAt = time.Now()
		if cur.Purchased >= cur.Quantity {
			cur.Status = StatusCompleted
		} else {
			cur.NextAttemptAt = cur.UpdatedAt.Add(cur.retryInterval())
		}
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: persisting purchase", "task", id, "error", err)
		return
	}

	e.notifier.Send(fmt.Sprintf("acquire: purchased %s unit %d/%d in %s (order %s)", t.PlanCode, sequence, t.Quantity, dc, result.OrderID))
}

// completeTask transitions a task to completed without probing or ordering,
// for the case where an operator lowers quantity to at or below the already
// purchased count (spec.md line 110; the status=completed ⇔ purchased=quantity
// invariant must hold at any instant, spec.md line 246).
func (e *Engine) completeTask(id uuid.UUID) {
	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.Status = StatusCompleted
		cur.UpdatedAt = time.Now()
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: completing task", "task", id, "error", err)
	}
}

// retryUnavailable advances nextAttemptAt after no datacenter had stock
// (spec.md §4.5 step 4/7).
func (e *Engine) retryUnavailable(id uuid.UUID) {
	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.RetryCount++
		cur.UpdatedAt = time.Now()
		cur.NextAttemptAt = cur.UpdatedAt.Add(cur.retryInterval())
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: persisting unavailable retry", "task", id, "error", err)
	}
}

// retryTransient records a transient failure and retries next tick (spec.md
// §7/§4.5 step 8). It never transitions a task to failed.
func (e *Engine) retryTransient(id uuid.UUID, message string) {
	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.FailureCount++
		cur.ErrorMessage = truncateErrorMessage(message)
		cur.UpdatedAt = time.Now()
		cur.NextAttemptAt = cur.UpdatedAt.Add(cur.retryInterval())
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: persisting transient retry", "task", id, "error", err)
	}
}

// retryRateLimited backs off per spec.md §7: max(retryInterval, 2×previous)
// capped at 600s.
func (e *Engine) retryRateLimited(id uuid.UUID, t QueueTask) {
	previous := time.Duration(t.RateLimitBackoffSeconds) * time.Second
	backoff := ovhclient.NextRateLimitBackoff(previous, t.retryInterval())

	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.FailureCount++
		cur.RateLimitBackoffSeconds = int(backoff.Seconds())
		cur.ErrorMessage = "rate limited"
		cur.UpdatedAt = time.Now()
		cur.NextAttemptAt = cur.UpdatedAt.Add(backoff)
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: persisting rate-limit backoff", "task", id, "error", err)
	}
}

// failTask marks a task terminally failed (spec.md §7: AuthError,
// NotFoundError, deleted account).
func (e *Engine) failTask(id uuid.UUID, message string) {
	_, err := e.store.Update(id, func(cur QueueTask) (QueueTask, error) {
		cur.Status = StatusFailed
		cur.ErrorMessage = truncateErrorMessage(message)
		cur.UpdatedAt = time.Now()
		return cur, nil
	})
	if err != nil {
		e.logger.Error("queue tick: persisting task failure", "task", id, "error", err)
		return
	}

	entry := PurchaseHistoryEntry{
		ID:           uuid.New(),
		TaskID:       id,
		Status:       HistoryFailed,
		ErrorMessage: truncateErrorMessage(message),
		PurchaseTime: time.Now(),
	}
	if err := e.store.AppendHistory(entry); err != nil {
		e.logger.Error("queue tick: appending failure history", "task", id, "error", err)
	}
	e.notifier.Send(fmt.Sprintf("acquire: task %s failed: %s", id, message))
}

// Stats summarizes the scheduler's current state for GET /stats.
type Stats struct {
	Running             int
	Paused              int
	Completed           int
	Failed              int
	TotalUnitsPurchased int
}

// Stats aggregates task counts across all statuses.
func (e *Engine) Stats() Stats {
	tasks, err := e.store.List()
	if err != nil {
		return Stats{}
	}
	var s Stats
	for _, t := range tasks {
		switch t.Status {
		case StatusRunning, StatusPending:
			s.Running++
		case StatusPaused:
			s.Paused++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
		s.TotalUnitsPurchased += t.Purchased
	}
	return s
}
