package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type fakeEmbedder struct {
	calls  int
	inputs [][]string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, inputs)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type memEmbeddingRepo struct {
	entries map[uuid.UUID]*types.AnswerEmbedding
}

func newMemEmbeddingRepo() *memEmbeddingRepo {
	return &memEmbeddingRepo{entries: map[uuid.UUID]*types.AnswerEmbedding{}}
}

func (r *memEmbeddingRepo) GetByAnswerIDs(_ dbctx.Context, answerIDs []uuid.UUID) ([]*types.AnswerEmbedding, error) {
	var out []*types.AnswerEmbedding
	for _, id := range answerIDs {
		if e, ok := r.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEmbeddingRepo) UpsertBatch(_ dbctx.Context, entries []*types.AnswerEmbedding) error {
	for _, e := range entries {
		cp := *e
		r.entries[e.AnswerID] = &cp
	}
	return nil
}

func testCache(t *testing.T, embedder Embedder, repo *memEmbeddingRepo) *Cache {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewCache(nil, log, repo, embedder)
}

func answersFixture(texts ...string) []*types.Answer {
	out := make([]*types.Answer, 0, len(texts))
	for _, txt := range texts {
		out = append(out, &types.Answer{ID: uuid.New(), Text: txt})
	}
	return out
}

func TestEnsureEmbeddingsComputesOnlyOnce(t *testing.T) {
	emb := &fakeEmbedder{}
	repo := newMemEmbeddingRepo()
	cache := testCache(t, emb, repo)
	answers := answersFixture("colgate", "crest", "sensodyne")

	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("first EnsureEmbeddings: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("embed calls after cold run: want=1 got=%d", emb.calls)
	}
	if len(repo.entries) != 3 {
		t.Fatalf("persisted entries: want=3 got=%d", len(repo.entries))
	}

	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("second EnsureEmbeddings: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("warm run must not embed: calls=%d", emb.calls)
	}
}

func TestEnsureEmbeddingsRecomputesChangedText(t *testing.T) {
	emb := &fakeEmbedder{}
	repo := newMemEmbeddingRepo()
	cache := testCache(t, emb, repo)
	answers := answersFixture("colgate", "crest")

	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("EnsureEmbeddings: %v", err)
	}

	answers[0].Text = "colgate total"
	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("EnsureEmbeddings after edit: %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("embed calls: want=2 got=%d", emb.calls)
	}
	if got := emb.inputs[1]; len(got) != 1 || got[0] != "colgate total" {
		t.Fatalf("stale batch: want only edited text, got=%v", got)
	}
	if repo.entries[answers[0].ID].ContentHash != ContentHash("colgate total") {
		t.Fatalf("hash not refreshed for edited answer")
	}
}

func TestEnsureEmbeddingsWhitespaceIsNotStale(t *testing.T) {
	emb := &fakeEmbedder{}
	repo := newMemEmbeddingRepo()
	cache := testCache(t, emb, repo)
	answers := answersFixture("colgate")

	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("EnsureEmbeddings: %v", err)
	}
	answers[0].Text = "  colgate  "
	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("EnsureEmbeddings trimmed: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("trim-equal text must stay cached: calls=%d", emb.calls)
	}
}

func TestEnsureEmbeddingsEmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("upstream down")}
	repo := newMemEmbeddingRepo()
	cache := testCache(t, emb, repo)

	err := cache.EnsureEmbeddings(context.Background(), answersFixture("colgate"))
	if !errors.Is(err, pkgerrors.ErrDependencyUnavailable) {
		t.Fatalf("want ErrDependencyUnavailable, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatalf("no entries should persist on failure, got %d", len(repo.entries))
	}
}

func TestVectorsReturnsPersistedEntries(t *testing.T) {
	emb := &fakeEmbedder{}
	repo := newMemEmbeddingRepo()
	cache := testCache(t, emb, repo)
	answers := answersFixture("colgate", "crest")

	if err := cache.EnsureEmbeddings(context.Background(), answers); err != nil {
		t.Fatalf("EnsureEmbeddings: %v", err)
	}

	vecs, err := cache.Vectors(context.Background(), answers)
	if err != nil {
		t.Fatalf("Vectors: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("vectors: want=2 got=%d", len(vecs))
	}
	// fakeEmbedder encodes the batch index into the first dimension.
	if v := vecs[answers[0].ID]; len(v) != 2 || v[0] != 0 || v[1] != 1 {
		t.Fatalf("vector for first answer: %v", v)
	}
	if v := vecs[answers[1].ID]; len(v) != 2 || v[0] != 1 || v[1] != 1 {
		t.Fatalf("vector for second answer: %v", v)
	}
	if emb.calls != 1 {
		t.Fatalf("Vectors must read the cache, not embed: calls=%d", emb.calls)
	}
}

func TestVectorsSkipsUncachedAnswers(t *testing.T) {
	cache := testCache(t, &fakeEmbedder{}, newMemEmbeddingRepo())
	answers := answersFixture("colgate")

	vecs, err := cache.Vectors(context.Background(), answers)
	if err != nil {
		t.Fatalf("Vectors: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("uncached answers must be absent, got %v", vecs)
	}
}

func TestEnsureEmbeddingsEmptyInput(t *testing.T) {
	emb := &fakeEmbedder{}
	cache := testCache(t, emb, newMemEmbeddingRepo())
	if err := cache.EnsureEmbeddings(context.Background(), nil); err != nil {
		t.Fatalf("EnsureEmbeddings(nil): %v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("empty input must not embed: calls=%d", emb.calls)
	}
}
