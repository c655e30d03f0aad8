package duplicates

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/panbanda/connascence/pkg/models"
)

// Config holds duplicate detection configuration.
type Config struct {
	SimilarityThreshold float64
	MinStatements       int
	ShingleSize         int
	NumHashFunctions    int
	NumBands            int
	RowsPerBand         int
	MinGroupSize        int
}

// DefaultConfig returns the defaults used when no policy overrides them.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		MinStatements:       3,
		ShingleSize:         4,
		NumHashFunctions:    64,
		NumBands:            16,
		RowsPerBand:         4,
		MinGroupSize:        2,
	}
}

// MinHashSignature represents a MinHash signature for similarity estimation.
type MinHashSignature struct {
	Values []uint64 `json:"values"`
}

// JaccardSimilarity estimates similarity between two MinHash signatures.
func (s *MinHashSignature) JaccardSimilarity(other *MinHashSignature) float64 {
	if s == nil || other == nil || len(s.Values) != len(other.Values) || len(s.Values) == 0 {
		return 0.0
	}
	matches := 0
	for i := range s.Values {
		if s.Values[i] == other.Values[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(s.Values))
}

// Fragment is the structural fingerprint of one function body.
type Fragment struct {
	Location   models.FunctionLocation
	Statements int
	// Hash identifies the exact normalized structure.
	Hash uint64
	// Shingles holds the 32-bit hashes of token k-shingles.
	Shingles  *roaring.Bitmap
	Signature *MinHashSignature
}

// Similarity returns 1 for identical structure and the exact shingle
// Jaccard index otherwise.
func (f Fragment) Similarity(other Fragment) float64 {
	if f.Hash == other.Hash {
		return 1.0
	}
	if f.Shingles == nil || other.Shingles == nil {
		return 0
	}
	union := f.Shingles.OrCardinality(other.Shingles)
	if union == 0 {
		return 0
	}
	return float64(f.Shingles.AndCardinality(other.Shingles)) / float64(union)
}

// Result is the outcome of the global duplication pass.
type Result struct {
	Clusters   []models.DuplicateCluster
	Violations []models.Violation
	// Score is 1 for a project without duplication and falls toward 0 as
	// clusters grow in number, size and similarity.
	Score float64
}
