package database

// DefaultEmbeddingDim is the face embedding dimension produced by InceptionResnetV1 (vggface2).
const DefaultEmbeddingDim = 512

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 200

	// HNSWCandidates is the number of nearest neighbours taken from the graph
	// before the exact distance decision is made.
	HNSWCandidates = 64

	// HNSWMinEnrollments is the enrollment count below which a linear scan is used anyway.
	HNSWMinEnrollments = 256
)
