package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/store"
)

const collection = "accounts"

// file is the on-disk shape of data/accounts.json.
type file struct {
	Accounts []Account `json:"accounts"`
}

// NotFoundError is returned when an account id has no matching record.
type NotFoundError struct{ ID uuid.UUID }

func (e *NotFoundError) Error() string { return fmt.Sprintf("account %s not found", e.ID) }

// Store persists accounts through the shared collection store.
type Store struct {
	st *store.Store
}

// NewStore creates an account Store backed by st.
func NewStore(st *store.Store) *Store {
	return &Store{st: st}
}

// List returns every account.
func (s *Store) List() ([]Account, error) {
	f, err := store.Load[file](s.st, collection)
	if err != nil {
		return nil, err
	}
	return f.Accounts, nil
}

// Get returns the account with the given id.
func (s *Store) Get(id uuid.UUID) (Account, error) {
	f, err := store.Load[file](s.st, collection)
	if err != nil {
		return Account{}, err
	}
	for _, a := range f.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, &NotFoundError{ID: id}
}

// Create inserts a new account with a generated id and createdAt.
func (s *Store) Create(req CreateRequest) (Account, error) {
	a := Account{
		ID:                uuid.New(),
		Alias:             req.Alias,
		Zone:              req.Zone,
		EndpointRegion:    EndpointRegion(req.EndpointRegion),
		ApplicationKey:    req.ApplicationKey,
		ApplicationSecret: req.ApplicationSecret,
		ConsumerKey:       req.ConsumerKey,
		CreatedAt:         time.Now().UTC().Round(0),
	}

	_, err := store.Mutate(s.st, collection, func(f file) (file, error) {
		f.Accounts = append(f.Accounts, a)
		return f, nil
	})
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// Delete removes the account with the given id. Deleting an account does not
// cascade to queue tasks or subscriptions that reference it; the scheduler
// fails such tasks closed on their next tick (spec.md §9 Open Question), and
// the monitor skips such subscriptions on each tick.
func (s *Store) Delete(id uuid.UUID) error {
	_, err := store.Mutate(s.st, collection, func(f file) (file, error) {
		out := f.Accounts[:0]
		found := false
		for _, a := range f.Accounts {
			if a.ID == id {
				found = true
				continue
			}
			out = append(out, a)
		}
		if !found {
			return f, &NotFoundError{ID: id}
		}
		f.Accounts = out
		return f, nil
	})
	return err
}
