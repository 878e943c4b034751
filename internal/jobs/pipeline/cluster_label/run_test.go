package cluster_label

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/surveylab/codeframe-backend/internal/clients/openai"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	jobrt "github.com/surveylab/codeframe-backend/internal/jobs/runtime"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// ---- fakes ----

type memGenerationRepo struct {
	rows map[uuid.UUID]*types.Generation
}

func (r *memGenerationRepo) Create(_ dbctx.Context, gen *types.Generation) (*types.Generation, error) {
	r.rows[gen.ID] = gen
	return gen, nil
}

func (r *memGenerationRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Generation, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memGenerationRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	row, ok := r.rows[id]
	if !ok {
		return apperr.ErrNotFound
	}
	applyUpdates(row, updates)
	return nil
}

func (r *memGenerationRepo) UpdateFieldsUnlessStatus(_ dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	row, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if row.Status == s {
			return false, nil
		}
	}
	applyUpdates(row, updates)
	return true, nil
}

func (r *memGenerationRepo) DecrementPending(_ dbctx.Context, id uuid.UUID) (int, error) {
	row, ok := r.rows[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	if row.PendingClusters > 0 {
		row.PendingClusters--
	}
	return row.PendingClusters, nil
}

func (r *memGenerationRepo) AccumulateUsage(dbctx.Context, uuid.UUID, int, int, float64) error {
	return nil
}

func applyUpdates(row *types.Generation, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			row.Status, _ = v.(string)
		case "error":
			row.Error, _ = v.(string)
		case "completed_at":
			if ts, ok := v.(time.Time); ok {
				row.CompletedAt = &ts
			}
		}
	}
}

type memAnswerRepo struct {
	answers []*types.Answer
}

func (r *memAnswerRepo) Create(_ dbctx.Context, answers []*types.Answer) ([]*types.Answer, error) {
	r.answers = append(r.answers, answers...)
	return answers, nil
}

func (r *memAnswerRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Answer, error) {
	var out []*types.Answer
	for _, a := range r.answers {
		for _, id := range ids {
			if a.ID == id {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (r *memAnswerRepo) GetByCategory(_ dbctx.Context, categoryID uuid.UUID) ([]*types.Answer, error) {
	var out []*types.Answer
	for _, a := range r.answers {
		if a.CategoryID == categoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAnswerRepo) CountByCategory(dbc dbctx.Context, categoryID uuid.UUID) (int64, error) {
	out, _ := r.GetByCategory(dbc, categoryID)
	return int64(len(out)), nil
}

func (r *memAnswerRepo) AssignCode(dbctx.Context, uuid.UUID, uuid.UUID, float64, string) error {
	return nil
}

type memNodeRepo struct {
	nodes []*types.HierarchyNode
}

func (r *memNodeRepo) CreateBatch(_ dbctx.Context, nodes []*types.HierarchyNode) ([]*types.HierarchyNode, error) {
	r.nodes = append(r.nodes, nodes...)
	return nodes, nil
}

func (r *memNodeRepo) GetByID(dbctx.Context, uuid.UUID) (*types.HierarchyNode, error) {
	return nil, apperr.ErrNotFound
}

func (r *memNodeRepo) GetByGeneration(_ dbctx.Context, generationID uuid.UUID) ([]*types.HierarchyNode, error) {
	var out []*types.HierarchyNode
	for _, n := range r.nodes {
		if n.GenerationID == generationID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNodeRepo) GetByParentIDs(dbctx.Context, []uuid.UUID) ([]*types.HierarchyNode, error) {
	return nil, nil
}

func (r *memNodeRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (r *memNodeRepo) DeleteByIDs(dbctx.Context, []uuid.UUID) error { return nil }

// markedAI labels any cluster whose prompt does not mention the broken
// marker and errors on the one that does.
type markedAI struct {
	marker string
	calls  int
}

func (c *markedAI) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

func (c *markedAI) GenerateText(context.Context, string, string) (string, openai.Usage, error) {
	return "", openai.Usage{}, nil
}

func (c *markedAI) GenerateJSON(_ context.Context, _ string, user string, _ string, _ map[string]any) (map[string]any, openai.Usage, error) {
	c.calls++
	if c.marker != "" && strings.Contains(user, c.marker) {
		return nil, openai.Usage{}, errors.New("model unavailable")
	}
	return map[string]any{
		"theme": map[string]any{"name": fmt.Sprintf("Theme %d", c.calls), "description": "", "confidence": 0.9},
		"codes": []any{
			map[string]any{"name": fmt.Sprintf("Code %d", c.calls), "description": "", "confidence": 0.8, "examples": []any{}},
		},
	}, openai.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

// ---- harness ----

type runFixture struct {
	pipe    *Pipeline
	gens    *memGenerationRepo
	answers *memAnswerRepo
	nodes   *memNodeRepo
	genID   uuid.UUID
}

func newRunFixture(t *testing.T, ai openai.Client, pending int) *runFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	gens := &memGenerationRepo{rows: map[uuid.UUID]*types.Generation{}}
	answers := &memAnswerRepo{}
	nodes := &memNodeRepo{}

	genID := uuid.New()
	gens.rows[genID] = &types.Generation{
		ID:              genID,
		CategoryID:      uuid.New(),
		Status:          types.GenerationStatusProcessing,
		NClusters:       pending,
		PendingClusters: pending,
	}

	return &runFixture{
		pipe:    New(nil, log, gens, nodes, answers, ai, nil),
		gens:    gens,
		answers: answers,
		nodes:   nodes,
		genID:   genID,
	}
}

func (f *runFixture) clusterJob(t *testing.T, clusterID int, texts ...string) *jobrt.Context {
	t.Helper()
	ids := make([]string, 0, len(texts))
	for _, txt := range texts {
		a := &types.Answer{ID: uuid.New(), CategoryID: f.gens.rows[f.genID].CategoryID, Text: txt}
		f.answers.answers = append(f.answers.answers, a)
		ids = append(ids, a.ID.String())
	}
	payload, err := json.Marshal(map[string]any{
		"generation_id": f.genID.String(),
		"cluster_id":    clusterID,
		"answer_ids":    ids,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job := &types.JobRun{
		ID:      uuid.New(),
		JobType: types.JobTypeClusterLabel,
		Status:  types.JobStatusRunning,
		Payload: datatypes.JSON(payload),
	}
	return jobrt.NewContext(context.Background(), nil, job, nil, nil)
}

// ---- tests ----

func TestRunLabelsClusterAndDrainsPending(t *testing.T) {
	f := newRunFixture(t, &markedAI{}, 1)
	jc := f.clusterJob(t, 0, "whitens my teeth", "removes stains")

	if err := f.pipe.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jc.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status: want=%s got=%s", types.JobStatusSucceeded, jc.Job.Status)
	}
	if len(f.nodes.nodes) != 2 {
		t.Fatalf("want theme+code nodes, got %d", len(f.nodes.nodes))
	}
	gen := f.gens.rows[f.genID]
	if gen.PendingClusters != 0 || gen.Status != types.GenerationStatusCompleted {
		t.Fatalf("last cluster must complete the generation: %+v", gen)
	}
	if gen.CompletedAt == nil {
		t.Fatalf("completed_at must be set")
	}
}

func TestRunFailingClusterLeavesSiblingsAlone(t *testing.T) {
	ai := &markedAI{marker: "broken"}
	f := newRunFixture(t, ai, 3)

	good1 := f.clusterJob(t, 0, "whitens my teeth", "removes stains")
	bad := f.clusterJob(t, 1, "this cluster is broken")
	good2 := f.clusterJob(t, 2, "fresh breath", "minty taste")

	if err := f.pipe.Run(good1); err != nil {
		t.Fatalf("Run good1: %v", err)
	}
	if err := f.pipe.Run(bad); err != nil {
		t.Fatalf("Run bad: %v", err)
	}
	if err := f.pipe.Run(good2); err != nil {
		t.Fatalf("Run good2: %v", err)
	}

	if good1.Job.Status != types.JobStatusSucceeded || good2.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("sibling jobs: %s, %s", good1.Job.Status, good2.Job.Status)
	}
	if bad.Job.Status != types.JobStatusFailed {
		t.Fatalf("bad job status: %s", bad.Job.Status)
	}
	if len(f.nodes.nodes) != 4 {
		t.Fatalf("two clusters write two nodes each, got %d", len(f.nodes.nodes))
	}

	// With retries left the failed cluster holds its slot and the
	// generation keeps waiting.
	gen := f.gens.rows[f.genID]
	if gen.Status != types.GenerationStatusProcessing || gen.PendingClusters != 1 {
		t.Fatalf("generation must wait for the failed cluster's budget: %+v", gen)
	}

	// The worker invokes the exhaustion hook after the final attempt; the
	// released slot is the last one, so the generation completes with the
	// sibling clusters' nodes only.
	bad.Job.Attempts = 5
	f.pipe.OnExhausted(bad)
	gen = f.gens.rows[f.genID]
	if gen.Status != types.GenerationStatusCompleted || gen.PendingClusters != 0 {
		t.Fatalf("exhausted cluster must release its slot: %+v", gen)
	}
	if len(f.nodes.nodes) != 4 {
		t.Fatalf("exhaustion must not add nodes, got %d", len(f.nodes.nodes))
	}
}

func TestOnExhaustedSkipsTerminalGeneration(t *testing.T) {
	f := newRunFixture(t, &markedAI{marker: "broken"}, 2)
	f.gens.rows[f.genID].Status = types.GenerationStatusFailed

	jc := f.clusterJob(t, 0, "this cluster is broken")
	jc.Job.Attempts = 5
	f.pipe.OnExhausted(jc)

	gen := f.gens.rows[f.genID]
	if gen.PendingClusters != 2 {
		t.Fatalf("terminal generation must not release slots: %+v", gen)
	}
}

func TestRunSkipsTerminalGeneration(t *testing.T) {
	f := newRunFixture(t, &markedAI{}, 1)
	f.gens.rows[f.genID].Status = types.GenerationStatusApplied

	jc := f.clusterJob(t, 0, "whitens my teeth")
	if err := f.pipe.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jc.Job.Status != types.JobStatusSucceeded || jc.Job.Stage != "skipped" {
		t.Fatalf("terminal generation must skip: status=%s stage=%s", jc.Job.Status, jc.Job.Stage)
	}
	if len(f.nodes.nodes) != 0 {
		t.Fatalf("skip must not write nodes, got %d", len(f.nodes.nodes))
	}
}
