package docstore

import (
	"context"
	"errors"
	"time"
)

// WithRetry wraps a Store so every call gets a per-attempt timeout and a
// bounded-backoff retry on ErrUnavailable. The Postgres store wraps
// deadline errors as ErrUnavailable, so slow calls are retried too.
func WithRetry(inner Store, attempts int, backoff, timeout time.Duration) Store {
	return &retryingStore{inner: inner, attempts: attempts, backoff: backoff, timeout: timeout}
}

type retryingStore struct {
	inner    Store
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

func (s *retryingStore) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return fn(ctx)
	})
}

func (s *retryingStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.inner.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (s *retryingStore) Query(ctx context.Context, collection string, pred Predicate) ([]Document, error) {
	var docs []Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		docs, err = s.inner.Query(ctx, collection, pred)
		return err
	})
	return docs, err
}

func (s *retryingStore) Put(ctx context.Context, collection, id string, body []byte, version int64) (int64, error) {
	var v int64
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.inner.Put(ctx, collection, id, body, version)
		return err
	})
	return v, err
}

func (s *retryingStore) Delete(ctx context.Context, collection, id string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, collection, id)
	})
}

// Retry runs fn up to attempts times, backing off exponentially between
// tries. Only ErrUnavailable is retried; conflicts and business errors
// surface immediately. A write that might have partially succeeded is
// safe to retry because every Put is version-checked.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
