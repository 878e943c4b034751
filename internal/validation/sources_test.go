package validation

import (
	"context"
	"math"
	"testing"

	"github.com/surveylab/codeframe-backend/internal/clients/kgraph"
	"github.com/surveylab/codeframe-backend/internal/clients/websearch"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type stubKGraphClient struct {
	entity *kgraph.Entity
	err    error
}

func (c stubKGraphClient) Lookup(context.Context, string) (*kgraph.Entity, error) {
	return c.entity, c.err
}

type stubSearchClient struct {
	results map[string]*websearch.SearchResult
}

func (c stubSearchClient) Search(_ context.Context, query string, _ int) (*websearch.SearchResult, error) {
	if r, ok := c.results[query]; ok {
		return r, nil
	}
	return &websearch.SearchResult{Query: query}, nil
}

func sourceLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: %v", got)
	}
	if got := Cosine([]float32{1, 1}, []float32{1, 0}); math.Abs(got-1/math.Sqrt2) > 1e-6 {
		t.Fatalf("diagonal: %v", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Fatalf("empty vectors: %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Fatalf("length mismatch: %v", got)
	}
}

func TestCategoriesMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"toothpaste", "toothpaste", true},
		{" Toothpaste ", "toothpaste", true},
		{"oral care / toothpaste", "toothpaste", true},
		{"toothpaste", "oral care / toothpaste", true},
		{"toothpaste", "shampoo", false},
		{"", "toothpaste", false},
		{"toothpaste", "", false},
	}
	for _, tc := range cases {
		if got := categoriesMatch(tc.a, tc.b); got != tc.want {
			t.Fatalf("categoriesMatch(%q, %q): want=%v got=%v", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestKGraphSourceUnknownTerm(t *testing.T) {
	src := NewKGraphSource(sourceLog(t), stubKGraphClient{})
	ev, err := src.Lookup(context.Background(), "xyz123unknown", "toothpaste")
	if err != nil || ev != nil {
		t.Fatalf("unknown term: ev=%v err=%v", ev, err)
	}
}

func TestKGraphSourceCategoryMatch(t *testing.T) {
	src := NewKGraphSource(sourceLog(t), stubKGraphClient{entity: &kgraph.Entity{
		Name:     "Colgate",
		Category: "toothpaste",
		Score:    0.95,
	}})
	ev, err := src.Lookup(context.Background(), "colgate", "Toothpaste")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ev == nil || !ev.CategoryMatches || ev.Name != "Colgate" {
		t.Fatalf("evidence: %+v", ev)
	}
}

func TestSearchSourceCompare(t *testing.T) {
	src := NewSearchSource(sourceLog(t), stubSearchClient{results: map[string]*websearch.SearchResult{
		"colgate": {
			TotalCount: 12,
			Items: []websearch.SearchItem{
				{Title: "Colgate toothpaste review", Snippet: "whitening"},
				{Title: "Colgate the university", Snippet: "campus life"},
				{Title: "Colgate company history", Snippet: "founded 1806"},
			},
		},
		"colgate toothpaste": {
			TotalCount: 8,
			Items: []websearch.SearchItem{
				{Title: "Best toothpaste 2026", Snippet: "colgate leads"},
				{Title: "Colgate Total", Snippet: "a toothpaste for sensitive teeth"},
				{Title: "Colgate brand page", Snippet: "oral care"},
			},
		},
	}})

	ev, err := src.Compare(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if ev.BrandOnlyCount != 12 || ev.BrandCategoryCount != 8 {
		t.Fatalf("counts: %+v", ev)
	}
	if ev.FilteredCorrect != 2 {
		t.Fatalf("filtered items naming the category: want=2 got=%d", ev.FilteredCorrect)
	}
	if ev.UnfilteredMismatched != 2 {
		t.Fatalf("unfiltered items off category: want=2 got=%d", ev.UnfilteredMismatched)
	}
}
