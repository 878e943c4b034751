package validation

import "context"

// Evidence is the immutable bundle the pattern rules reason over. Every
// field except Term and Category is optional; a nil source slot means the
// source was unavailable or returned nothing, with the failure recorded
// in Errors for the audit breakdown.
type Evidence struct {
	Term     string
	Category string

	Vision     *VisionEvidence
	KGraph     *KGraphEvidence
	Similarity *SimilarityEvidence
	Search     *SearchEvidence

	// Errors maps source name to the failure note when a source could not
	// contribute. Absence of a key means the source ran cleanly (possibly
	// returning no signal).
	Errors map[string]string
}

// VisionEvidence summarizes logo detections across the images associated
// with the term.
type VisionEvidence struct {
	Detections     []BrandShare `json:"detections"`
	DominantBrand  string       `json:"dominant_brand"`
	DominantShare  float64      `json:"dominant_share"`
	DistinctBrands int          `json:"distinct_brands"`
	ImagesTotal    int          `json:"images_total"`
}

type BrandShare struct {
	Brand string  `json:"brand"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// KGraphEvidence is the knowledge graph's declared identity for the term.
type KGraphEvidence struct {
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	Score           float64 `json:"score"`
	CategoryMatches bool    `json:"category_matches"`
}

// SimilarityEvidence is the embedding cosine between the raw term and its
// canonical name.
type SimilarityEvidence struct {
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
	Cost          float64 `json:"cost"`
}

// SearchEvidence compares category-filtered against unfiltered web search
// for the term.
type SearchEvidence struct {
	BrandOnlyCount       int `json:"brand_only_count"`
	BrandCategoryCount   int `json:"brand_category_count"`
	FilteredCorrect      int `json:"filtered_correct"`
	UnfilteredMismatched int `json:"unfiltered_mismatched"`
}

// Source interfaces are deliberately narrow so tests can stub one signal
// at a time. Each returns (nil, nil) when it ran but found no signal.

type VisionSource interface {
	Logos(ctx context.Context, term string, images [][]byte) (*VisionEvidence, error)
}

type KGraphSource interface {
	Lookup(ctx context.Context, term, category string) (*KGraphEvidence, error)
}

type SimilaritySource interface {
	Similarity(ctx context.Context, term, category string) (*SimilarityEvidence, error)
}

type SearchSource interface {
	Compare(ctx context.Context, term, category string) (*SearchEvidence, error)
}
