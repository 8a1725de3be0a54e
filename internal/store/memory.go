package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in a map and searches exhaustively.
// Replacing a record swaps a pointer under the write lock, so readers see
// either the old or the new record and never a mix.
type MemoryStore struct {
	mu      sync.RWMutex
	spec    *IndexSpec
	records map[string]*Record
	closed  bool
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty, unprovisioned store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// CreateIndex implements VectorStore.
func (s *MemoryStore) CreateIndex(_ context.Context, spec IndexSpec) error {
	spec, err := normalizeSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}
	if s.spec != nil && len(s.records) > 0 {
		return checkCompatible(*s.spec, spec)
	}
	// Nothing is stored yet, so the index can be provisioned afresh.
	s.spec = &spec
	return nil
}

// Spec returns the provisioned index spec, or nil.
func (s *MemoryStore) Spec() *IndexSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.spec == nil {
		return nil
	}
	spec := *s.spec
	return &spec
}

// writable must be called with the lock held.
func (s *MemoryStore) writable() error {
	if s.closed {
		return errStoreClosed()
	}
	if s.spec == nil {
		return errNotCreated()
	}
	return nil
}

// Upsert implements VectorStore.
func (s *MemoryStore) Upsert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	if err := validateRecord(r, s.spec.Dimension); err != nil {
		return err
	}
	c := cloneRecord(r)
	s.records[r.ID] = &c
	return nil
}

// UpsertAll implements VectorStore. All valid records are written under
// one lock acquisition.
func (s *MemoryStore) UpsertAll(ctx context.Context, records []Record) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return nil, err
	}

	res := newBatchResult(len(records))
	for _, r := range records {
		if err := validateRecord(r, s.spec.Dimension); err != nil {
			res.Failed[r.ID] = err
			continue
		}
		c := cloneRecord(r)
		s.records[r.ID] = &c
		res.Succeeded = append(res.Succeeded, r.ID)
	}
	return res, nil
}

// Get implements VectorStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.writable(); err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, errNotFound(id)
	}
	c := cloneRecord(*r)
	return &c, nil
}

// Delete implements VectorStore.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

// DeleteBySource implements VectorStore.
func (s *MemoryStore) DeleteBySource(_ context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	n := 0
	for id, r := range s.records {
		if recordSource(r) == source {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Search implements VectorStore with an exact scan.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed()
	}
	if s.spec == nil || k <= 0 || len(s.records) == 0 {
		return []ScoredRecord{}, nil
	}
	if err := checkQuery(vector, s.spec.Dimension); err != nil {
		return nil, err
	}

	hits := make([]ScoredRecord, 0, len(s.records))
	for _, r := range s.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits = append(hits, ScoredRecord{Record: *r, Score: score(s.spec.Metric, vector, r.Vector)})
	}

	out := rank(hits, k, minScore)
	for i := range out {
		out[i].Record = cloneRecord(out[i].Record)
	}
	return out, nil
}

// Count implements VectorStore.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	return len(s.records), nil
}

// Close implements VectorStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// snapshot copies the index spec and every record.
func (s *MemoryStore) snapshot() (*IndexSpec, []Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spec *IndexSpec
	if s.spec != nil {
		c := *s.spec
		spec = &c
	}
	records := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, cloneRecord(*r))
	}
	return spec, records
}

// restore replaces the store's contents.
func (s *MemoryStore) restore(spec *IndexSpec, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spec = spec
	s.records = make(map[string]*Record, len(records))
	for i := range records {
		r := records[i]
		s.records[r.ID] = &r
	}
}
