// Package enrollment holds enrolled identities and registers new ones.
package enrollment

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Store keeps every enrollment in memory, in insertion order, backed by a repository.
// Inserts are serialized; a record becomes visible only after it was persisted.
type Store struct {
	mu      sync.RWMutex
	repo    database.EnrollmentRepository
	dim     int
	records []database.EnrollmentRecord
	byID    map[string]int

	index     *database.HNSWIndex
	indexPath string
	minIndex  int
	k         int
}

// Option configures a Store.
type Option func(*Store)

// WithHNSW narrows matching candidates through an HNSW graph once the store
// holds enough enrollments. A non-empty path caches the graph on disk.
func WithHNSW(path string) Option {
	return func(s *Store) {
		s.index = database.NewHNSWIndex()
		s.indexPath = path
	}
}

// WithHNSWThreshold sets the enrollment count at which the index starts to be used.
func WithHNSWThreshold(n int) Option {
	return func(s *Store) { s.minIndex = n }
}

// Open loads all enrollments from repo. A dim of 0 adopts the dimension of the
// first stored record (or of the first insert when the store is empty).
func Open(ctx context.Context, repo database.EnrollmentRepository, dim int, opts ...Option) (*Store, error) {
	s := &Store{
		repo:     repo,
		dim:      dim,
		byID:     make(map[string]int),
		minIndex: database.HNSWMinEnrollments,
		k:        database.HNSWCandidates,
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := repo.LoadEnrollments(ctx)
	if err != nil {
		return nil, err
	}

	for i, rec := range records {
		if s.dim == 0 {
			s.dim = len(rec.Embedding)
		}
		if err := database.ValidateEmbedding(rec.Embedding, s.dim); err != nil {
			return nil, fmt.Errorf("stored enrollment %s: %w", rec.IdentityID, err)
		}
		if _, ok := s.byID[rec.IdentityID]; ok {
			return nil, fmt.Errorf("stored enrollment %s: %w", rec.IdentityID, database.ErrDuplicateIdentity)
		}
		s.byID[rec.IdentityID] = i
	}
	s.records = records

	if s.index != nil {
		s.loadIndex()
	}

	return s, nil
}

// loadIndex restores the cached graph when it matches the stored records, otherwise rebuilds it.
func (s *Store) loadIndex() {
	if s.indexPath != "" {
		meta, err := database.LoadHNSWMetadata(s.indexPath)
		if err == nil && meta.Count == len(s.records) && meta.Dim == s.dim {
			if err := s.index.Load(s.indexPath, meta.Count); err == nil {
				log.Printf("Loaded HNSW index with %d enrollments from %s", meta.Count, s.indexPath)
				return
			}
			log.Printf("Warning: failed to load HNSW index, rebuilding: %v", err)
		}
	}
	s.index.BuildFromRecords(s.records)
}

// SaveIndex writes the HNSW graph to its configured path, if any.
func (s *Store) SaveIndex() error {
	if s.index == nil || s.indexPath == "" {
		return nil
	}
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()
	return s.index.SaveWithMetadata(s.indexPath, dim)
}

// Dim returns the embedding dimension shared by all records (0 while undecided).
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// List returns a snapshot of all records in insertion order.
func (s *Store) List() []database.EnrollmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// FindByID looks up a record by identity.
func (s *Store) FindByID(identityID string) (database.EnrollmentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[identityID]
	if !ok {
		return database.EnrollmentRecord{}, false
	}
	return s.records[i], true
}

// Insert validates and persists rec, then makes it visible.
// On any error the store is left unchanged.
func (s *Store) Insert(ctx context.Context, rec database.EnrollmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.IdentityID]; ok {
		return database.ErrDuplicateIdentity
	}

	dim := s.dim
	if dim == 0 {
		dim = len(rec.Embedding)
	}
	if err := database.ValidateEmbedding(rec.Embedding, dim); err != nil {
		return err
	}

	rec.Embedding = slices.Clone(rec.Embedding)
	if err := s.repo.AppendEnrollment(ctx, rec); err != nil {
		return err
	}

	s.dim = dim
	s.byID[rec.IdentityID] = len(s.records)
	s.records = append(s.records, rec)
	if s.index != nil {
		s.index.Add(int64(len(s.records)-1), rec.Embedding)
	}
	return nil
}

// Search identifies probe among the enrolled records, see facematch.Search.
//
// With an index the exact decision is first made over the graph's nearest
// neighbours. The graph is approximate, so a miss there is confirmed by a
// scan over every record: an enrolled face is never reported unmatched
// because the graph skipped it.
func (s *Store) Search(probe []float32, threshold float64) (facematch.MatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	narrowed, ok := s.candidates(probe)
	if !ok {
		return facematch.Search(probe, s.records, threshold)
	}
	result, err := facematch.Search(probe, narrowed, threshold)
	if err != nil || result.Matched {
		return result, err
	}
	return facematch.Search(probe, s.records, threshold)
}

// candidates returns the graph's nearest neighbours of probe in insertion order.
// ok is false when the index is not in use and every record must be scanned.
// The caller must hold s.mu.
func (s *Store) candidates(probe []float32) (out []database.EnrollmentRecord, ok bool) {
	if s.index == nil || len(s.records) < s.minIndex || len(probe) != s.dim {
		return nil, false
	}

	seqs, _, err := s.index.Search(probe, s.k)
	if err != nil || len(seqs) == 0 {
		return nil, false
	}

	slices.Sort(seqs)
	out = make([]database.EnrollmentRecord, 0, len(seqs))
	for _, seq := range seqs {
		if seq >= 0 && int(seq) < len(s.records) {
			out = append(out, s.records[seq])
		}
	}
	return out, len(out) > 0
}
