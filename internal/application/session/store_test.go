package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// plainBackend hides Update so the store falls back to its own read-modify-write
type plainBackend struct {
	inner *MemoryBackend
	getFn func() error
}

func (p *plainBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p.getFn != nil {
		if err := p.getFn(); err != nil {
			return nil, false, err
		}
	}
	return p.inner.Get(ctx, key)
}

func (p *plainBackend) Set(ctx context.Context, key string, data []byte) error {
	return p.inner.Set(ctx, key, data)
}

func (p *plainBackend) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, key)
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func backends() map[string]func() Backend {
	return map[string]func() Backend{
		"atomic": func() Backend { return NewMemoryBackend(0) },
		"plain":  func() Backend { return &plainBackend{inner: NewMemoryBackend(0)} },
	}
}

func TestStore_SaveMergesFields(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(newBackend())
			key := NewKey(FlowTripRequest, "U123")

			require.NoError(t, store.Save(ctx, key, "rider", "U999"))
			require.NoError(t, store.Save(ctx, key, "pickup", "Epic Tower"))
			require.NoError(t, store.Save(ctx, key, "pickup", "Andela Nairobi"))
			require.NoError(t, store.Save(ctx, key, "passengers", 3))

			values, err := store.Fetch(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, Values{
				"rider":      "U999",
				"pickup":     "Andela Nairobi",
				"passengers": float64(3),
			}, values)
		})
	}
}

func TestStore_FetchMissingIsEmpty(t *testing.T) {
	store := NewStore(NewMemoryBackend(0))

	values, err := store.Fetch(context.Background(), NewKey(FlowRouteRequest, "nobody"))
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Empty(t, values)
}

func TestStore_FlowsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(0))

	require.NoError(t, store.Save(ctx, NewKey(FlowTripRequest, "U1"), "pickup", "A"))
	require.NoError(t, store.Save(ctx, NewKey(FlowDriverRegistration, "U1"), "driverName", "Dave"))

	trip, err := store.Fetch(ctx, NewKey(FlowTripRequest, "U1"))
	require.NoError(t, err)
	assert.Equal(t, Values{"pickup": "A"}, trip)
}

func TestStore_SaveObjectReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(0))
	key := NewKey(FlowTripRequest, "U1")

	require.NoError(t, store.Save(ctx, key, "stale", true))
	require.NoError(t, store.SaveObject(ctx, key, map[string]any{
		"pickup": "A",
		"nested": map[string]any{"lat": 1.5, "lng": -2.25},
		"tags":   []string{"x", "y"},
	}))

	values, err := store.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Values{
		"pickup": "A",
		"nested": map[string]any{"lat": 1.5, "lng": -2.25},
		"tags":   []any{"x", "y"},
	}, values)
}

func TestStore_SaveObjectRejectsNonObject(t *testing.T) {
	store := NewStore(NewMemoryBackend(0))

	err := store.SaveObject(context.Background(), NewKey(FlowTripRequest, "U1"), []string{"a"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(0))
	key := NewKey(FlowTripRequest, "U1")

	require.NoError(t, store.Save(ctx, key, "pickup", "A"))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	values, err := store.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStore_InvalidKey(t *testing.T) {
	store := NewStore(NewMemoryBackend(0))

	err := store.Save(context.Background(), Key{}, "pickup", "A")
	require.ErrorIs(t, err, apperror.ErrValidation)

	problems := apperror.Problems(err)
	require.Len(t, problems, 2)
	assert.Equal(t, "flow", problems[0].Field)
	assert.Equal(t, "actorId", problems[1].Field)
}

func TestStore_ConcurrentSavesKeepEveryField(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(newBackend())
			key := NewKey(FlowTripRequest, "U1")

			const writers = 50
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Save(ctx, key, fmt.Sprintf("field%d", i), i))
				}(i)
			}
			wg.Wait()

			values, err := store.Fetch(ctx, key)
			require.NoError(t, err)
			assert.Len(t, values, writers)
			assert.Zero(t, store.locks.size())
		})
	}
}

func TestStore_BackendFailureIsDependencyError(t *testing.T) {
	backend := &plainBackend{
		inner: NewMemoryBackend(0),
		getFn: func() error { return errors.New("connection refused") },
	}
	store := NewStore(backend)

	err := store.Save(context.Background(), NewKey(FlowTripRequest, "U1"), "pickup", "A")
	assert.ErrorIs(t, err, apperror.ErrDependency)

	_, err = store.Fetch(context.Background(), NewKey(FlowTripRequest, "U1"))
	assert.ErrorIs(t, err, apperror.ErrDependency)
}

func TestMemoryBackend_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend(time.Hour, WithClock(func() time.Time { return now }))
	store := NewStore(backend)
	ctx := context.Background()
	key := NewKey(FlowTripRequest, "U1")

	require.NoError(t, store.Save(ctx, key, "pickup", "A"))
	assert.Equal(t, 1, backend.Len())

	now = now.Add(61 * time.Minute)

	values, err := store.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.Equal(t, 0, backend.Len())
}

func TestValues_Accessors(t *testing.T) {
	values := Values{
		"name":       "  Jane ",
		"passengers": float64(2),
		"digits":     "4",
		"fraction":   1.5,
		"blank":      "   ",
	}

	assert.Equal(t, "Jane", values.String("name"))
	assert.Equal(t, "2", values.String("passengers"))
	assert.True(t, values.Has("name"))
	assert.False(t, values.Has("blank"))
	assert.False(t, values.Has("missing"))

	n, ok := values.Int("passengers")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = values.Int("digits")
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = values.Int("fraction")
	assert.False(t, ok)

	var draft struct {
		Name string `json:"name"`
	}
	require.NoError(t, values.Decode(&draft))
	assert.Equal(t, "  Jane ", draft.Name)
}
