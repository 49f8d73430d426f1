package queue

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/store"
)

const (
	tasksCollection   = "queue"
	historyCollection = "history"
)

// tasksFile is the on-disk shape of data/queue.json.
type tasksFile struct {
	Tasks []QueueTask `json:"tasks"`
}

// historyFile is the on-disk shape of data/history.json.
type historyFile struct {
	Entries []PurchaseHistoryEntry `json:"entries"`
}

// NotFoundError is returned when a task id has no matching record.
type NotFoundError struct{ ID uuid.UUID }

func (e *NotFoundError) Error() string { return fmt.Sprintf("queue task %s not found", e.ID) }

// Store persists QueueTasks and PurchaseHistoryEntries through the shared
// collection store (spec.md §4.2).
type Store struct {
	st *store.Store
}

// NewStore creates a queue Store backed by st.
func NewStore(st *store.Store) *Store {
	return &Store{st: st}
}

// List returns every task, ordered by createdAt ascending (spec.md §4.5's
// tie-break for tasks due in the same second).
func (s *Store) List() ([]QueueTask, error) {
	f, err := store.Load[tasksFile](s.st, tasksCollection)
	if err != nil {
		return nil, err
	}
	tasks := f.Tasks
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// Get returns the task with the given id.
func (s *Store) Get(id uuid.UUID) (QueueTask, error) {
	f, err := store.Load[tasksFile](s.st, tasksCollection)
	if err != nil {
		return QueueTask{}, err
	}
	for _, t := range f.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return QueueTask{}, &NotFoundError{ID: id}
}

// Insert persists a newly created task.
func (s *Store) Insert(t QueueTask) (QueueTask, error) {
	_, err := store.Mutate(s.st, tasksCollection, func(f tasksFile) (tasksFile, error) {
		f.Tasks = append(f.Tasks, t)
		return f, nil
	})
	if err != nil {
		return QueueTask{}, err
	}
	return t, nil
}

// Update loads the task with id, applies fn, and persists the result. fn
// returning an error aborts the mutation (reload-on-failure discipline).
func (s *Store) Update(id uuid.UUID, fn func(QueueTask) (QueueTask, error)) (QueueTask, error) {
	var updated QueueTask
	_, err := store.Mutate(s.st, tasksCollection, func(f tasksFile) (tasksFile, error) {
		for i, t := range f.Tasks {
			if t.ID == id {
				next, err := fn(t)
				if err != nil {
					return f, err
				}
				f.Tasks[i] = next
				updated = next
				return f, nil
			}
		}
		return f, &NotFoundError{ID: id}
	})
	if err != nil {
		return QueueTask{}, err
	}
	return updated, nil
}

// Delete removes the task with the given id. History entries referencing it
// are retained (spec.md §4.8).
func (s *Store) Delete(id uuid.UUID) error {
	_, err := store.Mutate(s.st, tasksCollection, func(f tasksFile) (tasksFile, error) {
		out := f.Tasks[:0]
		found := false
		for _, t := range f.Tasks {
			if t.ID == id {
				found = true
				continue
			}
			out = append(out, t)
		}
		if !found {
			return f, &NotFoundError{ID: id}
		}
		f.Tasks = out
		return f, nil
	})
	return err
}

// Clear removes all tasks, or only those owned by accountID when non-nil
// (spec.md's `DELETE /queue/clear?scope=`). Returns the count removed.
func (s *Store) Clear(accountID *uuid.UUID) (int, error) {
	var removed int
	_, err := store.Mutate(s.st, tasksCollection, func(f tasksFile) (tasksFile, error) {
		if accountID == nil {
			removed = len(f.Tasks)
			f.Tasks = nil
			return f, nil
		}
		out := f.Tasks[:0]
		for _, t := range f.Tasks {
			if t.AccountID == *accountID {
				removed++
				continue
			}
			out = append(out, t)
		}
		f.Tasks = out
		return f, nil
	})
	return removed, err
}

// AppendHistory appends entry to data/history.json, trimming the oldest
// entries once the soft cap is exceeded (spec.md §4.2).
func (s *Store) AppendHistory(entry PurchaseHistoryEntry) error {
	_, err := store.Mutate(s.st, historyCollection, func(f historyFile) (historyFile, error) {
		f.Entries = append(f.Entries, entry)
		if len(f.Entries) > historySoftCap {
			f.Entries = f.Entries[len(f.Entries)-historySoftCap:]
		}
		return f, nil
	})
	return err
}

// ListHistory returns every retained history entry.
func (s *Store) ListHistory() ([]PurchaseHistoryEntry, error) {
	f, err := store.Load[historyFile](s.st, historyCollection)
	if err != nil {
		return nil, err
	}
	return f.Entries, nil
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory() error {
	_, err := store.Mutate(s.st, historyCollection, func(f historyFile) (historyFile, error) {
		f.Entries = nil
		return f, nil
	})
	return err
}

// NextSequence returns purchased+1, the sequence number for a task's next
// successful purchase (spec.md §3).
func NextSequence(t QueueTask) int { return t.Purchased + 1 }
