package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the fixed vector width every item must match.
	Dimensions int
	// M is the HNSW max connections per layer.
	M int
	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns the tuning used in production.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorItem is one entry in the vector store: an opaque string id, a
// dense vector, and the metadata map carried alongside it.
type VectorItem struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// VectorHit is one nearest-neighbor match. Distance is cosine distance
// in [0, 2]; converting it to a score is the retrieval layer's job.
type VectorHit struct {
	ID       string
	Distance float32
	Metadata map[string]string
}

// HNSWStore is the vector index: a coder/hnsw graph over uint64 keys
// with a sidecar mapping key <-> string id plus per-item metadata.
// Deletion is lazy (mappings removed, graph node orphaned) because
// removing the last graph node corrupts the graph in coder/hnsw.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	meta    map[string]map[string]string
	nextKey uint64

	closed bool
}

// hnswSidecar is the gob-persisted companion of the graph export.
type hnswSidecar struct {
	IDMap   map[string]uint64
	Meta    map[string]map[string]string
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates an empty vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions < 1 {
		return nil, dircerrors.VectorStore(
			fmt.Sprintf("vector dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		meta:   make(map[string]map[string]string),
	}, nil
}

// Dimensions returns the configured vector width.
func (s *HNSWStore) Dimensions() int { return s.config.Dimensions }

// Add inserts items, replacing any existing entry with the same id.
func (s *HNSWStore) Add(ctx context.Context, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return dircerrors.FromContext(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dircerrors.VectorStore("vector store is closed", nil)
	}

	for _, item := range items {
		if len(item.Vector) != s.config.Dimensions {
			return dircerrors.New(dircerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector for %s has %d dimensions, store expects %d",
					item.ID, len(item.Vector), s.config.Dimensions), nil)
		}
	}

	for _, item := range items {
		if existing, ok := s.idMap[item.ID]; ok {
			delete(s.keyMap, existing)
			delete(s.idMap, item.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(item.Vector))
		copy(vec, item.Vector)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[item.ID] = key
		s.keyMap[key] = item.ID
		s.meta[item.ID] = copyMeta(item.Metadata)
	}
	return nil
}

// Search returns up to k nearest neighbors. A non-empty filter keeps
// only items whose metadata carries every filter entry; the store
// over-fetches candidates before filtering so that matching items just
// below the raw top-k are not lost.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]*VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, dircerrors.FromContext(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, dircerrors.VectorStore("vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, dircerrors.New(dircerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, store expects %d",
				len(query), s.config.Dimensions), nil)
	}
	if s.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	fetch := k
	if len(filter) > 0 {
		fetch = k * 4
	}

	nodes := s.graph.Search(normalized, fetch)
	hits := make([]*VectorHit, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		meta := s.meta[id]
		if !matchesFilter(meta, filter) {
			continue
		}
		hits = append(hits, &VectorHit{
			ID:       id,
			Distance: s.graph.Distance(normalized, node.Value),
			Metadata: copyMeta(meta),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes items by id. Missing ids are ignored.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return dircerrors.FromContext(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dircerrors.VectorStore("vector store is closed", nil)
	}

	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.meta, id)
		}
	}
	return nil
}

// Contains reports whether id is present.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live items.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// IDsForDocument returns the ids of every item whose metadata names the
// document. Used by verification and repair.
func (s *HNSWStore) IDsForDocument(documentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, meta := range s.meta {
		if meta["document_id"] == documentID {
			ids = append(ids, id)
		}
	}
	return ids
}

// CountForDocument returns how many items carry the document id.
func (s *HNSWStore) CountForDocument(documentID string) int {
	return len(s.IDsForDocument(documentID))
}

// Save persists the graph and sidecar atomically (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return dircerrors.VectorStore("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return dircerrors.VectorStore("failed to create vector directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return dircerrors.VectorStore("failed to create vector index file", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to export vector graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to close vector index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to rename vector index file", err)
	}

	return s.saveSidecar(path + ".meta")
}

func (s *HNSWStore) saveSidecar(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return dircerrors.VectorStore("failed to create vector sidecar file", err)
	}
	sidecar := hnswSidecar{
		IDMap:   s.idMap,
		Meta:    s.meta,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to encode vector sidecar", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to close vector sidecar file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return dircerrors.VectorStore("failed to rename vector sidecar file", err)
	}
	return nil
}

// Load restores a previously saved store. Missing files leave the store
// empty, which is the fresh-start case.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dircerrors.VectorStore("vector store is closed", nil)
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return dircerrors.VectorStore("failed to open vector index file", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return dircerrors.VectorStore("failed to import vector graph", err)
	}

	return s.loadSidecar(path + ".meta")
}

func (s *HNSWStore) loadSidecar(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return dircerrors.VectorStore("failed to open vector sidecar file", err)
	}
	defer file.Close()

	var sidecar hnswSidecar
	if err := gob.NewDecoder(file).Decode(&sidecar); err != nil {
		return dircerrors.VectorStore("failed to decode vector sidecar", err)
	}

	s.idMap = sidecar.IDMap
	s.meta = sidecar.Meta
	s.nextKey = sidecar.NextKey
	s.config = sidecar.Config
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
