package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// HNSW parameters accepted in IndexSpec.Params.
const (
	ParamM        = "m"
	ParamEfSearch = "ef_search"

	defaultHNSWM        = 16
	defaultHNSWEfSearch = 20

	// minHNSWFetch keeps small searches close to exact.
	minHNSWFetch = 32

	// The graph is rebuilt from live records once orphans reach both
	// limits.
	defaultOrphanThreshold = 0.2
	defaultMinOrphans      = 100
)

// HNSWStore implements VectorStore on a coder/hnsw graph.
//
// Nodes are never removed from the graph: replacing or deleting a record
// only drops its key mapping, and searches over-fetch to make up for the
// orphans. Deleting from coder/hnsw breaks the graph when the last node
// goes. Once orphans pass the compaction limits the graph is rebuilt
// from the live records.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	spec  *IndexSpec
	path  string

	idMap   map[string]uint64
	keyMap  map[uint64]string
	records map[string]*Record
	nextKey uint64

	orphanThreshold float64
	minOrphans      int

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMetadata is the gob sidecar saved next to the exported graph.
type hnswMetadata struct {
	Spec    IndexSpec
	IDMap   map[string]uint64
	NextKey uint64
	Records []Record
}

// OpenHNSWStore opens the store persisted at path, or creates an empty one.
// An empty path keeps the graph in memory only.
func OpenHNSWStore(path string) (*HNSWStore, error) {
	s := &HNSWStore{
		path:            path,
		idMap:           make(map[string]uint64),
		keyMap:          make(map[uint64]string),
		records:         make(map[string]*Record),
		orphanThreshold: defaultOrphanThreshold,
		minOrphans:      defaultMinOrphans,
	}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path + ".meta"); os.IsNotExist(err) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newGraph(spec IndexSpec) (*hnsw.Graph[uint64], error) {
	m, err := intParam(spec.Params, ParamM, defaultHNSWM)
	if err != nil {
		return nil, err
	}
	ef, err := intParam(spec.Params, ParamEfSearch, defaultHNSWEfSearch)
	if err != nil {
		return nil, err
	}
	if m < 2 || ef < 1 {
		return nil, errors.ConfigError(fmt.Sprintf("hnsw needs m >= 2 and ef_search >= 1, got m=%d ef_search=%d", m, ef), nil)
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	if spec.Metric == MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	}
	g.M = m
	g.EfSearch = ef
	g.Ml = 0.25
	return g, nil
}

// CreateIndex implements VectorStore.
func (s *HNSWStore) CreateIndex(_ context.Context, spec IndexSpec) error {
	spec, err := normalizeSpec(spec, ParamM, ParamEfSearch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}
	if s.spec != nil && len(s.idMap) > 0 {
		return checkCompatible(*s.spec, spec)
	}

	// An empty index is provisioned afresh, so a changed dimension or
	// metric replaces it.
	g, err := newGraph(spec)
	if err != nil {
		return err
	}
	s.graph = g
	s.spec = &spec
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.records = make(map[string]*Record)
	s.nextKey = 0
	return nil
}

func (s *HNSWStore) writable() error {
	if s.closed {
		return errStoreClosed()
	}
	if s.spec == nil {
		return errNotCreated()
	}
	return nil
}

// put must be called with the write lock held and a validated record.
func (s *HNSWStore) put(r Record) {
	if old, ok := s.idMap[r.ID]; ok {
		delete(s.keyMap, old)
	}

	key := s.nextKey
	s.nextKey++

	vec := append([]float32(nil), r.Vector...)
	if s.spec.Metric == MetricCosine {
		normalizeVectorInPlace(vec)
	}
	s.graph.Add(hnsw.MakeNode(key, vec))

	c := cloneRecord(r)
	s.idMap[r.ID] = key
	s.keyMap[key] = r.ID
	s.records[r.ID] = &c
}

// Upsert implements VectorStore.
func (s *HNSWStore) Upsert(ctx context.Context, r Record) error {
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
	s.put(r)
	return s.maybeCompactLocked()
}

// UpsertAll implements VectorStore.
func (s *HNSWStore) UpsertAll(ctx context.Context, records []Record) (*BatchResult, error) {
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
		s.put(r)
		res.Succeeded = append(res.Succeeded, r.ID)
	}
	if err := s.maybeCompactLocked(); err != nil {
		return nil, err
	}
	return res, nil
}

// Get implements VectorStore.
func (s *HNSWStore) Get(_ context.Context, id string) (*Record, error) {
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

// Delete implements VectorStore. The graph node stays as an orphan.
func (s *HNSWStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	s.drop(id)
	return s.maybeCompactLocked()
}

// DeleteBySource implements VectorStore.
func (s *HNSWStore) DeleteBySource(_ context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	if s.spec == nil {
		return 0, nil
	}
	n := 0
	for id, r := range s.records {
		if recordSource(r) == source {
			s.drop(id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.maybeCompactLocked()
}

// drop must be called with the write lock held.
func (s *HNSWStore) drop(id string) {
	if key, ok := s.idMap[id]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.records, id)
	}
}

// Compact rebuilds the graph from the live records, discarding orphans.
func (s *HNSWStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	return s.rebuildLocked()
}

// maybeCompactLocked rebuilds when orphans are both numerous and a large
// enough share of the graph.
func (s *HNSWStore) maybeCompactLocked() error {
	nodes := s.graph.Len()
	orphans := nodes - len(s.idMap)
	if orphans < s.minOrphans || nodes == 0 {
		return nil
	}
	if float64(orphans)/float64(nodes) < s.orphanThreshold {
		return nil
	}
	if err := s.rebuildLocked(); err != nil {
		return err
	}
	slog.Debug("hnsw_compacted",
		slog.Int("orphans_removed", orphans),
		slog.Int("nodes", s.graph.Len()))
	return nil
}

// rebuildLocked re-keys live records from zero in id order and inserts
// them into a fresh graph.
func (s *HNSWStore) rebuildLocked() error {
	g, err := newGraph(*s.spec)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	idMap := make(map[string]uint64, len(ids))
	keyMap := make(map[uint64]string, len(ids))
	nodes := make([]hnsw.Node[uint64], 0, len(ids))
	for i, id := range ids {
		key := uint64(i)
		vec := append([]float32(nil), s.records[id].Vector...)
		if s.spec.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}
		nodes = append(nodes, hnsw.MakeNode(key, vec))
		idMap[id] = key
		keyMap[key] = id
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}

	s.graph = g
	s.idMap = idMap
	s.keyMap = keyMap
	s.nextKey = uint64(len(ids))
	return nil
}

// Search implements VectorStore. Candidates come from the graph; scores are
// recomputed exactly against the stored vectors.
func (s *HNSWStore) Search(_ context.Context, vector []float32, k int, minScore float64) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed()
	}
	if s.spec == nil || k <= 0 || len(s.idMap) == 0 {
		return []ScoredRecord{}, nil
	}
	if err := checkQuery(vector, s.spec.Dimension); err != nil {
		return nil, err
	}

	query := append([]float32(nil), vector...)
	if s.spec.Metric == MetricCosine {
		normalizeVectorInPlace(query)
	}

	orphans := s.graph.Len() - len(s.idMap)
	fetch := min(max(k*2, minHNSWFetch)+orphans, s.graph.Len())
	nodes := s.graph.Search(query, fetch)

	hits := make([]ScoredRecord, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		r := s.records[id]
		hits = append(hits, ScoredRecord{
			Record: cloneRecord(*r),
			Score:  score(s.spec.Metric, vector, r.Vector),
		})
	}
	return rank(hits, k, minScore), nil
}

// Count implements VectorStore.
func (s *HNSWStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}
	return len(s.idMap), nil
}

// HNSWStats reports live records against graph nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns node accounting, useful to decide when to rebuild.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.graph == nil {
		return HNSWStats{}
	}
	return HNSWStats{
		ValidIDs:   len(s.idMap),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.idMap),
	}
}

// Save persists the graph and its sidecar. It is a no-op for in-memory
// stores and unprovisioned stores.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errStoreClosed()
	}
	return s.saveLocked()
}

func (s *HNSWStore) saveLocked() error {
	if s.path == "" || s.spec == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.IOError("create store directory", err)
	}

	if err := writeAtomic(s.path, s.graph.Export); err != nil {
		return errors.IOError("export hnsw graph", err)
	}

	meta := hnswMetadata{Spec: *s.spec, IDMap: s.idMap, NextKey: s.nextKey}
	meta.Records = make([]Record, 0, len(s.records))
	for _, r := range s.records {
		meta.Records = append(meta.Records, *r)
	}
	if err := writeAtomic(s.path+".meta", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		return errors.IOError("save hnsw metadata", err)
	}
	return nil
}

func (s *HNSWStore) load() error {
	metaFile, err := os.Open(s.path + ".meta")
	if err != nil {
		return errors.IOError("open hnsw metadata", err)
	}
	defer func() {
		if err := metaFile.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return corrupt(s.path+".meta", err)
	}

	g, err := newGraph(meta.Spec)
	if err != nil {
		return err
	}
	graphFile, err := os.Open(s.path)
	if err != nil {
		return errors.IOError("open hnsw graph", err)
	}
	defer func() { _ = graphFile.Close() }()

	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(graphFile)); err != nil {
		return corrupt(s.path, err)
	}

	spec := meta.Spec
	s.spec = &spec
	s.graph = g
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	s.records = make(map[string]*Record, len(meta.Records))
	for i := range meta.Records {
		r := meta.Records[i]
		s.records[r.ID] = &r
	}
	return nil
}

// Close saves a persistent store and releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	err := s.saveLocked()
	s.closed = true
	s.graph = nil
	return err
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
