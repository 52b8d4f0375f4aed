package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSWIndex wraps the HNSW graph for enrollment search.
// Nodes are keyed by the enrollment's insertion sequence number.
type HNSWIndex struct {
	graph *hnsw.Graph[int64]
	count int
	mu    sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / math.Log(float64(HNSWMaxNeighbors)) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromRecords builds the index from enrollments; the slice position is the node key.
func (h *HNSWIndex) BuildFromRecords(records []EnrollmentRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(records) == 0 {
		h.graph = nil
		h.count = 0
		return
	}

	g := newGraph()
	for i := range records {
		g.Add(hnsw.MakeNode(int64(i), records[i].Embedding))
	}
	h.graph = g
	h.count = len(records)
}

// Add adds a single embedding under the given sequence number.
func (h *HNSWIndex) Add(seq int64, embedding []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(seq, embedding))
	h.count++
}

// Search finds the k nearest neighbours to the query embedding.
// Returns sequence numbers and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		// Use the exact float64 distance, not the graph's float32 one.
		if d, err := CosineDistance(query, n.Value); err == nil {
			distances[i] = d
		}
	}
	return ids, distances, nil
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// SaveWithMetadata persists the graph to path and metadata to path+".meta".
func (h *HNSWIndex) SaveWithMetadata(path string, dim int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metaData, err := json.Marshal(HNSWIndexMetadata{
		Count:     h.count,
		Dim:       dim,
		BuildTime: time.Now(),
		Version:   hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load replaces the graph with the one stored at path.
// The caller must check the metadata against the current enrollments first.
func (h *HNSWIndex) Load(path string, count int) error {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.graph.Distance = hnsw.CosineDistance
	h.count = count
	return nil
}
