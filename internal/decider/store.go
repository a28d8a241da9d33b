package decider

import (
	"context"
	"sync"
	"time"
)

// Record is what the decider remembers about one successful build: the
// fingerprint of the inputs and action that produced the output, the
// fingerprint of the output itself, and the file stats that allow the
// optional fast path.
type Record struct {
	InputHash  string     `json:"input_hash"`
	OutputHash string     `json:"output_hash"`
	Inputs     []FileStat `json:"inputs,omitempty"`
	Output     FileStat   `json:"output"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// RecordStore persists decider records keyed by output path.
type RecordStore interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, rec Record) error
	Close() error
}

// MemoryStore keeps records for the lifetime of the process. It is the
// default store for one-shot builds.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-process record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Close() error { return nil }
