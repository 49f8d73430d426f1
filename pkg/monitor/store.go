package monitor

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/store"
)

const collection = "subscriptions"

// file is the on-disk shape of data/subscriptions.json.
type file struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

// NotFoundError is returned when a subscription id has no matching record.
type NotFoundError struct{ ID uuid.UUID }

func (e *NotFoundError) Error() string { return fmt.Sprintf("subscription %s not found", e.ID) }

// Store persists Subscriptions through the shared collection store.
type Store struct {
	st *store.Store
}

// NewStore creates a monitor Store backed by st.
func NewStore(st *store.Store) *Store {
	return &Store{st: st}
}

// List returns every subscription, ordered by createdAt ascending.
func (s *Store) List() ([]Subscription, error) {
	f, err := store.Load[file](s.st, collection)
	if err != nil {
		return nil, err
	}
	subs := f.Subscriptions
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

// Get returns the subscription with the given id.
func (s *Store) Get(id uuid.UUID) (Subscription, error) {
	f, err := store.Load[file](s.st, collection)
	if err != nil {
		return Subscription{}, err
	}
	for _, sub := range f.Subscriptions {
		if sub.ID == id {
			return sub, nil
		}
	}
	return Subscription{}, &NotFoundError{ID: id}
}

// Insert persists a newly created subscription.
func (s *Store) Insert(sub Subscription) (Subscription, error) {
	_, err := store.Mutate(s.st, collection, func(f file) (file, error) {
		f.Subscriptions = append(f.Subscriptions, sub)
		return f, nil
	})
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// Update loads the subscription with id, applies fn, and persists the
// result. fn returning an error aborts the mutation.
func (s *Store) Update(id uuid.UUID, fn func(Subscription) (Subscription, error)) (Subscription, error) {
	var updated Subscription
	_, err := store.Mutate(s.st, collection, func(f file) (file, error) {
		for i, sub := range f.Subscriptions {
			if sub.ID == id {
				next, err := fn(sub)
				if err != nil {
					return f, err
				}
				f.Subscriptions[i] = next
				updated = next
				return f, nil
			}
		}
		return f, &NotFoundError{ID: id}
	})
	if err != nil {
		return Subscription{}, err
	}
	return updated, nil
}

// Delete removes the subscription with the given id.
func (s *Store) Delete(id uuid.UUID) error {
	_, err := store.Mutate(s.st, collection, func(f file) (file, error) {
		out := f.Subscriptions[:0]
		found := false
		for _, sub := range f.Subscriptions {
			if sub.ID == id {
				found = true
				continue
			}
			out = append(out, sub)
		}
		if !found {
			return f, &NotFoundError{ID: id}
		}
		f.Subscriptions = out
		return f, nil
	})
	return err
}
