package ovhclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/pkg/account"
)

// Pool caches one Client per account, built lazily and shared read-only
// thereafter (spec.md §5: "OVH clients in C1 are shared read-only after
// init").
type Pool struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	store   *account.Store
}

// NewPool constructs an empty pool backed by the account store.
func NewPool(store *account.Store) *Pool {
	return &Pool{
		clients: make(map[uuid.UUID]*Client),
		store:   store,
	}
}

// Get returns the cached client for accountID, building and caching one from
// the current account record on first use.
func (p *Pool) Get(accountID uuid.UUID) (*Client, error) {
	p.mu.RLock()
	c, ok := p.clients[accountID]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	acct, err := p.store.Get(accountID)
	if err != nil {
		return nil, fmt.Errorf("ovhclient: resolving account: %w", err)
	}

	client, err := newClient(acct)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.clients[accountID] = client
	p.mu.Unlock()
	return client, nil
}

// Invalidate drops a cached client, forcing the next Get to rebuild it from
// the current account record. Called after an account's credentials change.
func (p *Pool) Invalidate(accountID uuid.UUID) {
	p.mu.Lock()
	delete(p.clients, accountID)
	p.mu.Unlock()
}

// Do resolves the account's client and issues a signed request through it.
func (p *Pool) Do(ctx context.Context, accountID uuid.UUID, method, path string, body, out any) error {
	c, err := p.Get(accountID)
	if err != nil {
		return err
	}
	return c.Do(ctx, method, path, body, out)
}
