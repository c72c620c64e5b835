package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and the seed tool's
// dry-run mode. Same version semantics as Postgres.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Document)}
}

func (s *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *Memory) Query(_ context.Context, collection string, pred Predicate) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, doc := range s.collections[collection] {
		if pred == nil || pred(doc) {
			out = append(out, copyDoc(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) Put(_ context.Context, collection, id string, body []byte, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}

	existing, exists := coll[id]
	if version == 0 {
		if exists {
			return 0, ErrConflict
		}
		coll[id] = Document{ID: id, Version: 1, Body: append([]byte(nil), body...), UpdatedAt: time.Now()}
		return 1, nil
	}

	if !exists {
		return 0, ErrNotFound
	}
	if existing.Version != version {
		return 0, ErrConflict
	}
	coll[id] = Document{ID: id, Version: version + 1, Body: append([]byte(nil), body...), UpdatedAt: time.Now()}
	return version + 1, nil
}

func (s *Memory) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	if _, ok := coll[id]; !ok {
		return ErrNotFound
	}
	delete(coll, id)
	return nil
}

func copyDoc(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	return doc
}
