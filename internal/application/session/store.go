package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// Backend persists encoded sessions
type Backend interface {
	// Get returns the stored bytes for key; found is false when nothing is stored
	Get(ctx context.Context, key string) (data []byte, found bool, err error)

	// Set stores data under key, replacing any previous value
	Set(ctx context.Context, key string, data []byte) error

	// Delete removes key; deleting an absent key succeeds
	Delete(ctx context.Context, key string) error
}

// AtomicBackend is a Backend able to run a read-modify-write on one key atomically,
// including against writers in other processes
type AtomicBackend interface {
	Backend

	// Update calls fn with the current bytes (nil when absent) and stores the result
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

// Store is the merge cache for multi-step interactions.
// Writes to one key are serialized; writes to different keys proceed independently.
type Store struct {
	backend Backend
	locks   *keyedMutex
}

// NewStore creates a session store on top of backend
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		locks:   newKeyedMutex(),
	}
}

// Save merges a single field into the session stored under key
func (s *Store) Save(ctx context.Context, key Key, field string, value any) error {
	return s.SaveFields(ctx, key, Values{field: value})
}

// SaveFields merges every field into the session stored under key in one write.
// Existing fields not named in fields are kept.
func (s *Store) SaveFields(ctx context.Context, key Key, fields Values) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	encoded := make(map[string]json.RawMessage, len(fields))
	for field, value := range fields {
		if field == "" {
			return apperror.NewValidationError("field", "field name must not be empty")
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode session field %s: %w", field, err)
		}
		encoded[field] = raw
	}

	merge := func(current []byte) ([]byte, error) {
		object := map[string]json.RawMessage{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &object); err != nil {
				return nil, fmt.Errorf("stored session %s is not an object: %w", key, err)
			}
		}
		for field, raw := range encoded {
			object[field] = raw
		}
		return json.Marshal(object)
	}

	return s.update(ctx, key, merge)
}

// SaveObject replaces the session stored under key with object.
// object must encode to a JSON object.
func (s *Store) SaveObject(ctx context.Context, key Key, object any) error {
	if err := key.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("failed to encode session object: %w", err)
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(data, &asObject); err != nil || asObject == nil {
		return apperror.NewValidationError("object", "session object must be a JSON object")
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := s.backend.Set(ctx, key.String(), data); err != nil {
		return apperror.Dependency("save session object", err)
	}
	return nil
}

// Fetch returns the session stored under key. A missing session is an empty, non-nil Values.
func (s *Store) Fetch(ctx context.Context, key Key) (Values, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	data, found, err := s.backend.Get(ctx, key.String())
	if err != nil {
		return nil, apperror.Dependency("fetch session", err)
	}
	values := Values{}
	if !found || len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("stored session %s is not an object: %w", key, err)
	}
	if values == nil {
		values = Values{}
	}
	return values, nil
}

// Delete removes the session stored under key. Deleting an absent session succeeds.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := s.backend.Delete(ctx, key.String()); err != nil {
		return apperror.Dependency("delete session", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, key Key, fn func(current []byte) ([]byte, error)) error {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	if atomic, ok := s.backend.(AtomicBackend); ok {
		var mergeErr error
		err := atomic.Update(ctx, key.String(), func(current []byte) ([]byte, error) {
			next, err := fn(current)
			mergeErr = err
			return next, err
		})
		if mergeErr != nil {
			return mergeErr
		}
		if err != nil {
			return apperror.Dependency("merge session", err)
		}
		return nil
	}

	current, _, err := s.backend.Get(ctx, key.String())
	if err != nil {
		return apperror.Dependency("fetch session", err)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key.String(), next); err != nil {
		return apperror.Dependency("save session", err)
	}
	return nil
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine holds it
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
