package enrollment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func record(id string, emb ...float32) database.EnrollmentRecord {
	return database.EnrollmentRecord{IdentityID: id, DisplayName: "Student " + id, Group: "CSC", Embedding: emb}
}

func TestOpen_LoadsInInsertionOrder(t *testing.T) {
	repo := mock.NewMockRepository()
	repo.AddEnrollment(record("S2", 0, 1, 0))
	repo.AddEnrollment(record("S1", 1, 0, 0))

	store, err := Open(context.Background(), repo, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if store.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", store.Len())
	}
	if store.Dim() != 3 {
		t.Errorf("expected adopted dim 3, got %d", store.Dim())
	}
	list := store.List()
	if list[0].IdentityID != "S2" || list[1].IdentityID != "S1" {
		t.Errorf("expected insertion order S2, S1; got %s, %s", list[0].IdentityID, list[1].IdentityID)
	}
	if _, ok := store.FindByID("S1"); !ok {
		t.Error("expected to find S1")
	}
	if _, ok := store.FindByID("missing"); ok {
		t.Error("did not expect to find missing identity")
	}
}

func TestOpen_RejectsInvalidStoredData(t *testing.T) {
	tests := []struct {
		name    string
		records []database.EnrollmentRecord
		dim     int
		want    error
	}{
		{"wrong dimension", []database.EnrollmentRecord{record("S1", 1, 0)}, 3, database.ErrDimensionMismatch},
		{"mixed dimensions", []database.EnrollmentRecord{record("S1", 1, 0, 0), record("S2", 1, 0)}, 0, database.ErrDimensionMismatch},
		{"zero vector", []database.EnrollmentRecord{record("S1", 0, 0, 0)}, 3, database.ErrDegenerateVector},
		{"duplicate id", []database.EnrollmentRecord{record("S1", 1, 0, 0), record("S1", 0, 1, 0)}, 3, database.ErrDuplicateIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mock.NewMockRepository()
			for _, r := range tt.records {
				repo.AddEnrollment(r)
			}
			_, err := Open(context.Background(), repo, tt.dim)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOpen_StorageFailure(t *testing.T) {
	repo := mock.NewMockRepository()
	repo.LoadEnrollmentsError = database.Unavailable("load", errors.New("disk gone"))

	_, err := Open(context.Background(), repo, 3)
	if !errors.Is(err, database.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewMockRepository()
	store, err := Open(ctx, repo, 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := store.Insert(ctx, record("S1", 1, 0, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	tests := []struct {
		name string
		rec  database.EnrollmentRecord
		want error
	}{
		{"duplicate identity", record("S1", 0, 1, 0), database.ErrDuplicateIdentity},
		{"dimension mismatch", record("S2", 1, 0), database.ErrDimensionMismatch},
		{"zero vector", record("S3", 0, 0, 0), database.ErrDegenerateVector},
		{"infinite component", record("S4", float32(math.Inf(1)), 0, 0), database.ErrDegenerateVector},
		{"nan component", record("S5", float32(math.NaN()), 1, 0), database.ErrDegenerateVector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Insert(ctx, tt.rec); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if store.Len() != 1 || repo.EnrollmentCount() != 1 {
				t.Errorf("store changed after failed insert: len=%d persisted=%d", store.Len(), repo.EnrollmentCount())
			}
		})
	}
}

func TestInsert_StorageFailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewMockRepository()
	store, err := Open(ctx, repo, 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	repo.AppendEnrollmentError = database.Unavailable("save enrollment", errors.New("read-only file system"))
	err = store.Insert(ctx, record("S1", 1, 0, 0))
	if !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
	if _, ok := store.FindByID("S1"); ok {
		t.Error("record must not be visible after failed persistence")
	}

	repo.AppendEnrollmentError = nil
	if err := store.Insert(ctx, record("S1", 1, 0, 0)); err != nil {
		t.Errorf("retry after storage recovery failed: %v", err)
	}
}

func TestInsert_AdoptsDimension(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, mock.NewMockRepository(), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if store.Dim() != 0 {
		t.Fatalf("expected undecided dimension, got %d", store.Dim())
	}

	if err := store.Insert(ctx, record("S1", 1, 2)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if store.Dim() != 2 {
		t.Errorf("expected dim 2, got %d", store.Dim())
	}
	if err := store.Insert(ctx, record("S2", 1, 2, 3)); !errors.Is(err, database.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsert_CopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, mock.NewMockRepository(), 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	emb := []float32{1, 0, 0}
	if err := store.Insert(ctx, database.EnrollmentRecord{IdentityID: "S1", DisplayName: "A", Group: "B", Embedding: emb}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	emb[0] = 0

	got, _ := store.FindByID("S1")
	if got.Embedding[0] != 1 {
		t.Error("stored embedding must not alias the caller's slice")
	}
}

func TestInsert_ConcurrentSameIdentity(t *testing.T) {
	ctx := context.Background()
	repo := mock.NewMockRepository()
	store, err := Open(ctx, repo, 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Insert(ctx, record("S1", 1, 0, 0)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful insert, got %d", successes)
	}
	if store.Len() != 1 || repo.EnrollmentCount() != 1 {
		t.Errorf("expected one record, got len=%d persisted=%d", store.Len(), repo.EnrollmentCount())
	}
}

func randomEmbedding(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestSearch_WithoutIndexScansAll(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, mock.NewMockRepository(), 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Insert(ctx, record("S1", 1, 0, 0))
	store.Insert(ctx, record("S2", 0, 1, 0))

	if _, ok := store.candidates([]float32{1, 0, 0}); ok {
		t.Error("expected no narrowed candidate set without an index")
	}
	result, err := store.Search([]float32{0, 1, 0.1}, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !result.Matched || result.IdentityID != "S2" {
		t.Errorf("expected a match with S2, got %+v", result)
	}
}

// assertSelfLookup checks that every enrolled vector identifies its own record.
func assertSelfLookup(t *testing.T, store *Store) {
	t.Helper()
	missed := 0
	for _, rec := range store.List() {
		result, err := store.Search(rec.Embedding, 0.1)
		if err != nil {
			t.Fatalf("Search(%s) failed: %v", rec.IdentityID, err)
		}
		if !result.Matched || result.IdentityID != rec.IdentityID {
			missed++
		}
	}
	if missed > 0 {
		t.Errorf("%d of %d enrolled vectors did not identify their own record", missed, store.Len())
	}
}

func TestSearch_WithIndexFindsEveryEnrollment(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(1, 2))
	const dim = database.DefaultEmbeddingDim

	path := filepath.Join(t.TempDir(), "enrollments.hnsw")
	repo := mock.NewMockRepository()

	// Built incrementally through Insert.
	fresh, err := Open(ctx, repo, dim, WithHNSW(path), WithHNSWThreshold(10))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := range 400 {
		if err := fresh.Insert(ctx, record(fmt.Sprintf("S%03d", i), randomEmbedding(r, dim)...)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	narrowed, ok := fresh.candidates(randomEmbedding(r, dim))
	if !ok || len(narrowed) >= fresh.Len() {
		t.Fatalf("expected a narrowed candidate set, got %d of %d", len(narrowed), fresh.Len())
	}
	for i := 1; i < len(narrowed); i++ {
		if narrowed[i-1].IdentityID >= narrowed[i].IdentityID {
			t.Errorf("candidates not in insertion order: %s before %s", narrowed[i-1].IdentityID, narrowed[i].IdentityID)
		}
	}
	assertSelfLookup(t, fresh)

	if err := fresh.SaveIndex(); err != nil {
		t.Fatalf("SaveIndex failed: %v", err)
	}

	// Restored from the cached graph, then extended.
	reloaded, err := Open(ctx, repo, dim, WithHNSW(path), WithHNSWThreshold(10))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := reloaded.Insert(ctx, record("S400", randomEmbedding(r, dim)...)); err != nil {
		t.Fatalf("Insert after reload failed: %v", err)
	}
	assertSelfLookup(t, reloaded)

	// Built in bulk from the repository, without a cache.
	bulk, err := Open(ctx, repo, dim, WithHNSW(""), WithHNSWThreshold(10))
	if err != nil {
		t.Fatalf("bulk open failed: %v", err)
	}
	assertSelfLookup(t, bulk)
}

func TestSearch_WithIndexUnmatchedProbe(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(3, 4))
	const dim = 32

	repo := mock.NewMockRepository()
	for i := range 50 {
		repo.AddEnrollment(record(fmt.Sprintf("S%03d", i), randomEmbedding(r, dim)...))
	}
	store, err := Open(ctx, repo, dim, WithHNSW(""), WithHNSWThreshold(10))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	result, err := store.Search(randomEmbedding(r, dim), 0.01)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Matched {
		t.Errorf("expected no match for a random probe, got %+v", result)
	}
}
