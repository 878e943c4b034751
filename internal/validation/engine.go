package validation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// TraceStep records one rule evaluation for the reviewer-facing decision
// trace.
type TraceStep struct {
	Pattern    string  `json:"pattern"`
	Priority   int     `json:"priority"`
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// Breakdown itemizes what each evidence source returned, for audit.
type Breakdown struct {
	Vision     *VisionEvidence     `json:"vision,omitempty"`
	KGraph     *KGraphEvidence     `json:"kgraph,omitempty"`
	Similarity *SimilarityEvidence `json:"similarity,omitempty"`
	Search     *SearchEvidence     `json:"search,omitempty"`
	Errors     map[string]string   `json:"errors,omitempty"`
}

// Result is the engine's verdict for one candidate term.
type Result struct {
	Term             string      `json:"term"`
	Category         string      `json:"category"`
	PatternType      string      `json:"pattern_type"`
	Confidence       float64     `json:"confidence"`
	Action           string      `json:"action"`
	Brand            *string     `json:"brand,omitempty"`
	ExpectedCategory string      `json:"expected_category,omitempty"`
	Breakdown        Breakdown   `json:"breakdown"`
	Trace            []TraceStep `json:"trace"`
	Reasoning        string      `json:"reasoning"`
	Cost             float64     `json:"cost"`
	LatencyMs        int64       `json:"latency_ms"`
}

// Engine gathers evidence from the four sources in parallel and runs the
// ordered pattern rules over the bundle. It is stateless and never
// returns an error: missing or failing sources degrade the verdict toward
// the unclear fallback instead.
type Engine struct {
	log        *logger.Logger
	vision     VisionSource
	kgraph     KGraphSource
	similarity SimilaritySource
	search     SearchSource
	patterns   []Pattern
	perSource  time.Duration
}

func NewEngine(baseLog *logger.Logger, vision VisionSource, kg KGraphSource, sim SimilaritySource, search SearchSource) *Engine {
	patterns := DefaultPatterns()
	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Priority() < patterns[j].Priority() })
	return &Engine{
		log:        baseLog.With("component", "ValidationEngine"),
		vision:     vision,
		kgraph:     kg,
		similarity: sim,
		search:     search,
		patterns:   patterns,
		perSource:  envutil.Duration("VALIDATION_SOURCE_TIMEOUT", 20*time.Second),
	}
}

// Validate classifies one candidate term against its expected category.
// Images are optional; without them the vision source simply contributes
// nothing.
func (e *Engine) Validate(ctx context.Context, term, category string, images [][]byte) Result {
	start := time.Now()
	term = strings.TrimSpace(term)
	category = strings.TrimSpace(category)

	ev := e.gather(ctx, term, category, images)

	res := Result{
		Term:     term,
		Category: category,
		Breakdown: Breakdown{
			Vision:     ev.Vision,
			KGraph:     ev.KGraph,
			Similarity: ev.Similarity,
			Search:     ev.Search,
			Errors:     ev.Errors,
		},
	}
	if ev.Similarity != nil {
		res.Cost = ev.Similarity.Cost
	}

	for _, p := range e.patterns {
		det, matched := p.Detect(ev)
		step := TraceStep{
			Pattern:  p.Name(),
			Priority: p.Priority(),
			Matched:  matched,
		}
		if matched {
			step.Confidence = det.Confidence
			step.Note = det.Reasoning
		}
		res.Trace = append(res.Trace, step)
		if matched {
			res.PatternType = p.Name()
			res.Confidence = det.Confidence
			res.Action = det.Action
			res.Brand = det.Brand
			res.ExpectedCategory = det.ExpectedCategory
			res.Reasoning = det.Reasoning
			break
		}
	}

	res.LatencyMs = time.Since(start).Milliseconds()
	e.log.Debug("Validated term",
		"term", term,
		"category", category,
		"pattern", res.PatternType,
		"confidence", res.Confidence,
		"latency_ms", res.LatencyMs,
	)
	return res
}

// gather fans out to all configured sources and waits for everything.
// Each source gets its own timeout so one slow dependency cannot eat the
// whole budget, and each failure lands in Errors rather than aborting the
// group.
func (e *Engine) gather(ctx context.Context, term, category string, images [][]byte) *Evidence {
	ev := &Evidence{
		Term:     term,
		Category: category,
		Errors:   map[string]string{},
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		ev.Errors[name] = err.Error()
	}

	if e.vision != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.perSource)
			defer cancel()
			out, err := e.vision.Logos(sctx, term, images)
			if err != nil {
				record("vision", err)
				return nil
			}
			mu.Lock()
			ev.Vision = out
			mu.Unlock()
			return nil
		})
	}
	if e.kgraph != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.perSource)
			defer cancel()
			out, err := e.kgraph.Lookup(sctx, term, category)
			if err != nil {
				record("kgraph", err)
				return nil
			}
			mu.Lock()
			ev.KGraph = out
			mu.Unlock()
			return nil
		})
	}
	if e.similarity != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.perSource)
			defer cancel()
			out, err := e.similarity.Similarity(sctx, term, category)
			if err != nil {
				record("similarity", err)
				return nil
			}
			mu.Lock()
			ev.Similarity = out
			mu.Unlock()
			return nil
		})
	}
	if e.search != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.perSource)
			defer cancel()
			out, err := e.search.Compare(sctx, term, category)
			if err != nil {
				record("search", err)
				return nil
			}
			mu.Lock()
			ev.Search = out
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	if len(ev.Errors) == 0 {
		ev.Errors = nil
	}
	return ev
}
