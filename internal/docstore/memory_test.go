package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_InsertAndGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	version, err := store.Put(ctx, "things", "a", []byte(`{"x":1}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, int64(1), doc.Version)
	assert.JSONEq(t, `{"x":1}`, string(doc.Body))
}

func TestMemory_InsertTwiceConflicts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Put(ctx, "things", "a", []byte(`{}`), 0)
	require.NoError(t, err)

	_, err = store.Put(ctx, "things", "a", []byte(`{}`), 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemory_StaleVersionConflicts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	v1, err := store.Put(ctx, "things", "a", []byte(`{"n":1}`), 0)
	require.NoError(t, err)

	v2, err := store.Put(ctx, "things", "a", []byte(`{"n":2}`), v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	// Writing with the superseded token must fail and leave the
	// document untouched.
	_, err = store.Put(ctx, "things", "a", []byte(`{"n":3}`), v1)
	assert.ErrorIs(t, err, ErrConflict)

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(doc.Body))
}

func TestMemory_UpdateMissing(t *testing.T) {
	store := NewMemory()

	_, err := store.Put(context.Background(), "things", "ghost", []byte(`{}`), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Delete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Put(ctx, "things", "a", []byte(`{}`), 0)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "things", "a"))

	_, err = store.Get(ctx, "things", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "things", "a"), ErrNotFound)
}

func TestMemory_QueryPredicate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Put(ctx, "things", id, []byte(`{}`), 0)
		require.NoError(t, err)
	}

	docs, err := store.Query(ctx, "things", func(doc Document) bool {
		return doc.ID != "b"
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
}

// flakyStore fails every call with ErrUnavailable until failures hits
// zero, then delegates.
type flakyStore struct {
	Store
	failures int
}

func (s *flakyStore) Put(ctx context.Context, collection, id string, body []byte, version int64) (int64, error) {
	if s.failures > 0 {
		s.failures--
		return 0, ErrUnavailable
	}
	return s.Store.Put(ctx, collection, id, body, version)
}

func TestWithRetry_RecoversTransientWrite(t *testing.T) {
	inner := &flakyStore{Store: NewMemory(), failures: 2}
	store := WithRetry(inner, 3, time.Millisecond, time.Second)

	version, err := store.Put(context.Background(), "things", "a", []byte(`{}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	doc, err := store.Get(context.Background(), "things", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
}

func TestWithRetry_SurfacesAfterCap(t *testing.T) {
	inner := &flakyStore{Store: NewMemory(), failures: 10}
	store := WithRetry(inner, 3, time.Millisecond, time.Second)

	_, err := store.Put(context.Background(), "things", "a", []byte(`{}`), 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRetry_OnlyRetriesUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return ErrUnavailable
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("conflicts surface immediately", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return ErrConflict
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after capped attempts", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return errors.Join(ErrUnavailable)
		})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 3, calls)
	})
}
