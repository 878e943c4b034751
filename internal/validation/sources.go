package validation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/surveylab/codeframe-backend/internal/clients/gcp"
	"github.com/surveylab/codeframe-backend/internal/clients/kgraph"
	"github.com/surveylab/codeframe-backend/internal/clients/openai"
	"github.com/surveylab/codeframe-backend/internal/clients/websearch"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// visionAdapter turns raw logo detections into the share summary the
// patterns consume. No images means the source ran but has no signal.
type visionAdapter struct {
	log    *logger.Logger
	client gcp.Vision
}

func NewVisionSource(baseLog *logger.Logger, client gcp.Vision) VisionSource {
	return &visionAdapter{log: baseLog.With("source", "vision"), client: client}
}

func (a *visionAdapter) Logos(ctx context.Context, term string, images [][]byte) (*VisionEvidence, error) {
	if len(images) == 0 {
		return nil, nil
	}
	res, err := a.client.DetectLogos(ctx, images)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Detections) == 0 {
		return nil, nil
	}
	ev := &VisionEvidence{
		DominantBrand:  res.DominantBrand(),
		DominantShare:  res.DominantShare(),
		DistinctBrands: len(res.Detections),
		ImagesTotal:    res.ImagesTotal,
	}
	for _, d := range res.Detections {
		ev.Detections = append(ev.Detections, BrandShare{
			Brand: d.Brand,
			Count: d.Count,
			Share: d.Share,
		})
	}
	return ev, nil
}

type kgraphAdapter struct {
	log    *logger.Logger
	client kgraph.Client
}

func NewKGraphSource(baseLog *logger.Logger, client kgraph.Client) KGraphSource {
	return &kgraphAdapter{log: baseLog.With("source", "kgraph"), client: client}
}

func (a *kgraphAdapter) Lookup(ctx context.Context, term, category string) (*KGraphEvidence, error) {
	entity, err := a.client.Lookup(ctx, term)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	return &KGraphEvidence{
		Name:            entity.Name,
		Category:        entity.Category,
		Score:           entity.Score,
		CategoryMatches: categoriesMatch(entity.Category, category),
	}, nil
}

// similarityAdapter derives the canonical name from the knowledge graph
// and measures embedding cosine between it and the raw term. A term the
// graph does not know has no canonical name, so no similarity signal.
type similarityAdapter struct {
	log *logger.Logger
	kg  kgraph.Client
	ai  openai.Client
}

func NewSimilaritySource(baseLog *logger.Logger, kg kgraph.Client, ai openai.Client) SimilaritySource {
	return &similarityAdapter{log: baseLog.With("source", "similarity"), kg: kg, ai: ai}
}

func (a *similarityAdapter) Similarity(ctx context.Context, term, category string) (*SimilarityEvidence, error) {
	entity, err := a.kg.Lookup(ctx, term)
	if err != nil {
		return nil, err
	}
	if entity == nil || strings.TrimSpace(entity.Name) == "" {
		return nil, nil
	}
	vecs, err := a.ai.Embed(ctx, []string{term, entity.Name})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 2 {
		return nil, fmt.Errorf("expected 2 embeddings, got %d", len(vecs))
	}
	return &SimilarityEvidence{
		CanonicalName: entity.Name,
		Score:         Cosine(vecs[0], vecs[1]),
		Cost:          envutil.Float("EMBEDDING_COST_PER_CALL", 0),
	}, nil
}

// searchAdapter runs the filtered vs unfiltered comparison. Correctness
// of a hit is judged by whether the category term appears in the title or
// snippet.
type searchAdapter struct {
	log    *logger.Logger
	client websearch.Client
}

func NewSearchSource(baseLog *logger.Logger, client websearch.Client) SearchSource {
	return &searchAdapter{log: baseLog.With("source", "search"), client: client}
}

func (a *searchAdapter) Compare(ctx context.Context, term, category string) (*SearchEvidence, error) {
	unfiltered, err := a.client.Search(ctx, term, 10)
	if err != nil {
		return nil, err
	}
	filtered, err := a.client.Search(ctx, term+" "+category, 10)
	if err != nil {
		return nil, err
	}

	ev := &SearchEvidence{
		BrandOnlyCount:     unfiltered.TotalCount,
		BrandCategoryCount: filtered.TotalCount,
	}
	cat := strings.ToLower(strings.TrimSpace(category))
	for _, item := range filtered.Items {
		if mentionsCategory(item, cat) {
			ev.FilteredCorrect++
		}
	}
	for _, item := range unfiltered.Items {
		if !mentionsCategory(item, cat) {
			ev.UnfilteredMismatched++
		}
	}
	return ev, nil
}

func mentionsCategory(item websearch.SearchItem, cat string) bool {
	if cat == "" {
		return false
	}
	return strings.Contains(strings.ToLower(item.Title), cat) ||
		strings.Contains(strings.ToLower(item.Snippet), cat)
}

func categoriesMatch(a, b string) bool {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Cosine is the similarity between two embedding vectors. Exported for
// reuse by the apply-phase answer assignment.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
