package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/validation"
)

type fakeValidationCache struct {
	stored map[string][]byte
	getErr error
	setErr error
	gets   int
	sets   int
}

func (c *fakeValidationCache) key(term, category string) string { return term + "|" + category }

func (c *fakeValidationCache) Get(_ context.Context, term, category string) ([]byte, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	raw, ok := c.stored[c.key(term, category)]
	return raw, ok, nil
}

func (c *fakeValidationCache) Set(_ context.Context, term, category string, payload []byte) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	if c.stored == nil {
		c.stored = map[string][]byte{}
	}
	c.stored[c.key(term, category)] = payload
	return nil
}

func (c *fakeValidationCache) Close() error { return nil }

func newValidationFixture(t *testing.T, cache *fakeValidationCache) ValidationService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	engine := validation.NewEngine(log, nil, nil, nil, nil)
	return NewValidationService(log, engine, cache)
}

func TestValidateRequiresTermAndCategory(t *testing.T) {
	svc := newValidationFixture(t, nil)
	if _, err := svc.Validate(context.Background(), "  ", "toothpaste"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("empty term: want ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), "colgate", ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("empty category: want ErrInvalidArgument, got %v", err)
	}
}

func TestValidateCachesEngineResult(t *testing.T) {
	cache := &fakeValidationCache{}
	svc := newValidationFixture(t, cache)

	res, err := svc.Validate(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.PatternType != validation.PatternUnclear {
		t.Fatalf("sourceless engine must fall through to unclear, got %s", res.PatternType)
	}
	if cache.gets != 1 || cache.sets != 1 {
		t.Fatalf("cache traffic: gets=%d sets=%d", cache.gets, cache.sets)
	}

	// Second call is served from the cache, no new write.
	res2, err := svc.Validate(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("Validate (warm): %v", err)
	}
	if res2.PatternType != res.PatternType {
		t.Fatalf("cached result differs: %s vs %s", res2.PatternType, res.PatternType)
	}
	if cache.sets != 1 {
		t.Fatalf("cache hit must not rewrite, sets=%d", cache.sets)
	}
}

func TestValidateCacheHitShortCircuits(t *testing.T) {
	cached := validation.Result{Term: "colgate", Category: "toothpaste", PatternType: validation.PatternClearMatch, Confidence: 95, Action: validation.ActionApprove}
	raw, _ := json.Marshal(cached)
	cache := &fakeValidationCache{stored: map[string][]byte{"colgate|toothpaste": raw}}
	svc := newValidationFixture(t, cache)

	res, err := svc.Validate(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.PatternType != validation.PatternClearMatch || res.Confidence != 95 {
		t.Fatalf("want cached result, got %+v", res)
	}
}

func TestValidateSurvivesCacheFailures(t *testing.T) {
	cache := &fakeValidationCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc := newValidationFixture(t, cache)

	res, err := svc.Validate(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("cache failure must not fail validation: %v", err)
	}
	if res.PatternType != validation.PatternUnclear {
		t.Fatalf("engine fallback expected, got %s", res.PatternType)
	}
}

func TestValidateDropsMalformedCacheEntry(t *testing.T) {
	cache := &fakeValidationCache{stored: map[string][]byte{"colgate|toothpaste": []byte("{not json")}}
	svc := newValidationFixture(t, cache)

	res, err := svc.Validate(context.Background(), "colgate", "toothpaste")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.PatternType != validation.PatternUnclear {
		t.Fatalf("malformed entry must fall back to the engine, got %s", res.PatternType)
	}
}
