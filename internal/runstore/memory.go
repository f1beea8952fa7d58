package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps runs in process memory. Records are stored as JSON so
// callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("memory store: marshal run %s: %w", run.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = memoryEntry{data: data, createdAt: run.CreatedAt}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	e, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeRun(e.data)
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	type keyed struct {
		id string
		memoryEntry
	}
	entries := make([]keyed, 0, len(s.runs))
	for id, e := range s.runs {
		entries = append(entries, keyed{id, e})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].createdAt.Equal(entries[j].createdAt) {
			return entries[i].id > entries[j].id
		}
		return entries[i].createdAt.After(entries[j].createdAt)
	})
	if n := listLimit(limit); len(entries) > n {
		entries = entries[:n]
	}

	out := make([]*Run, 0, len(entries))
	for _, e := range entries {
		run, err := decodeRun(e.data)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func decodeRun(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}
