package cluster_label

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	jobrt "github.com/surveylab/codeframe-backend/internal/jobs/runtime"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
)

const (
	maxSampleTexts = 40
	maxTextLen     = 240
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	genID, ok := jc.PayloadUUID("generation_id")
	if !ok || genID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing generation_id"))
		return nil
	}
	clusterID, ok := jc.PayloadInt("cluster_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing cluster_id"))
		return nil
	}
	answerIDs := payloadUUIDList(jc, "answer_ids")
	if len(answerIDs) == 0 {
		jc.Fail("validate", fmt.Errorf("missing answer_ids"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}

	gen, err := p.generations.GetByID(dbc, genID)
	if err != nil {
		p.failCluster(jc, genID, "load", err)
		return nil
	}
	if gen.Terminal() {
		// A sibling run already failed the generation, or it was applied.
		jc.Succeed("skipped", map[string]any{"generation_id": genID.String(), "cluster_id": clusterID})
		return nil
	}

	answers, err := p.answers.GetByIDs(dbc, answerIDs)
	if err != nil {
		p.failCluster(jc, genID, "load", err)
		return nil
	}
	if len(answers) == 0 {
		p.failCluster(jc, genID, "load", fmt.Errorf("cluster %d has no persisted answers", clusterID))
		return nil
	}

	jc.Progress("label", 20, fmt.Sprintf("Labeling cluster %d (%d answers)", clusterID, len(answers)))

	sample := sampleTexts(answers)
	obj, usage, err := p.ai.GenerateJSON(
		jc.Ctx,
		"You name survey-response clusters. Given verbatim answers that an embedding model grouped together, "+
			"produce one theme and the distinct codes inside it. Codes must be grounded in the answers shown; "+
			"never invent topics the answers do not mention.",
		fmt.Sprintf("Cluster answers (one per line):\n%s\n\nName the theme and list its codes.", strings.Join(sample, "\n")),
		"cluster_labels",
		labelSchema(),
	)
	if err != nil {
		p.failCluster(jc, genID, "label", err)
		return nil
	}

	theme, codes, err := decodeLabels(obj)
	if err != nil {
		p.failCluster(jc, genID, "label", err)
		return nil
	}

	jc.Progress("persist", 70, fmt.Sprintf("Writing %d codes for cluster %d", len(codes), clusterID))

	cid := clusterID
	themeNode := &types.HierarchyNode{
		ID:           uuid.New(),
		GenerationID: genID,
		NodeType:     types.NodeTypeTheme,
		Name:         theme.Name,
		Description:  theme.Description,
		Level:        0,
		ClusterID:    &cid,
		Confidence:   theme.Confidence,
		DisplayOrder: clusterID,
	}
	batch := []*types.HierarchyNode{themeNode}
	for i, code := range codes {
		examples, _ := json.Marshal(code.Examples)
		parentID := themeNode.ID
		batch = append(batch, &types.HierarchyNode{
			ID:           uuid.New(),
			GenerationID: genID,
			ParentID:     &parentID,
			NodeType:     types.NodeTypeCode,
			Name:         code.Name,
			Description:  code.Description,
			Level:        1,
			ClusterID:    &cid,
			Confidence:   code.Confidence,
			Examples:     datatypes.JSON(examples),
			DisplayOrder: i,
		})
	}
	// Single batch insert so a cluster's nodes land atomically or not at all.
	if _, err := p.nodes.CreateBatch(dbc, batch); err != nil {
		p.failCluster(jc, genID, "persist", err)
		return nil
	}

	if err := p.generations.AccumulateUsage(dbc, genID, usage.PromptTokens, usage.CompletionTokens, usage.Cost); err != nil {
		p.log.Warn("Usage accumulation failed", "generation_id", genID, "error", err)
	}

	remaining, err := p.generations.DecrementPending(dbc, genID)
	if err != nil {
		p.failCluster(jc, genID, "finalize", err)
		return nil
	}
	if remaining == 0 {
		p.completeGeneration(jc, genID)
	} else if p.notify != nil {
		p.notify.GenerationProgress(genID, "labeling", progressPct(gen.NClusters, remaining), fmt.Sprintf("%d clusters remaining", remaining))
	}

	jc.Succeed("done", map[string]any{
		"generation_id": genID.String(),
		"cluster_id":    clusterID,
		"codes_written": len(codes),
		"remaining":     remaining,
	})
	return nil
}

// completeGeneration flips the generation to completed unless a sibling
// already drove it terminal.
func (p *Pipeline) completeGeneration(jc *jobrt.Context, genID uuid.UUID) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	now := time.Now()
	ok, err := p.generations.UpdateFieldsUnlessStatus(dbc, genID,
		[]string{types.GenerationStatusFailed, types.GenerationStatusApplied},
		map[string]interface{}{
			"status":       types.GenerationStatusCompleted,
			"completed_at": now,
			"error":        "",
		})
	if err != nil {
		p.log.Error("Generation completion write failed", "generation_id", genID, "error", err)
		return
	}
	if !ok {
		return
	}
	if p.notify != nil {
		if gen, gerr := p.generations.GetByID(dbc, genID); gerr == nil {
			p.notify.GenerationCompleted(gen)
		}
	}
}

// failCluster fails the job run only; a failed cluster never fails the
// generation. Its pending_clusters slot is released in OnExhausted, which
// the worker invokes on every exhausted failure path, including panics.
func (p *Pipeline) failCluster(jc *jobrt.Context, genID uuid.UUID, stage string, err error) {
	p.log.Warn("Cluster labeling attempt failed",
		"generation_id", genID, "stage", stage, "error", err)
	jc.Fail(stage, err)
}

// OnExhausted releases this run's pending_clusters slot once the retry
// budget is spent. The release is what lets the generation complete with
// fewer nodes instead of hanging in processing forever.
func (p *Pipeline) OnExhausted(jc *jobrt.Context) {
	if jc == nil || jc.Job == nil {
		return
	}
	genID, ok := jc.PayloadUUID("generation_id")
	if !ok || genID == uuid.Nil {
		return
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	gen, err := p.generations.GetByID(dbc, genID)
	if err != nil {
		p.log.Error("Pending release load failed", "generation_id", genID, "error", err)
		return
	}
	if gen.Terminal() {
		return
	}
	p.log.Warn("Cluster labeling abandoned after max attempts",
		"generation_id", genID, "job_id", jc.Job.ID)
	remaining, derr := p.generations.DecrementPending(dbc, genID)
	if derr != nil {
		p.log.Error("Pending release failed", "generation_id", genID, "error", derr)
		return
	}
	if remaining == 0 {
		p.completeGeneration(jc, genID)
	}
}

type labeledTheme struct {
	Name        string
	Description string
	Confidence  float64
}

type labeledCode struct {
	Name        string
	Description string
	Confidence  float64
	Examples    []string
}

func decodeLabels(obj map[string]any) (labeledTheme, []labeledCode, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return labeledTheme{}, nil, err
	}
	var decoded struct {
		Theme struct {
			Name        string  `json:"name"`
			Description string  `json:"description"`
			Confidence  float64 `json:"confidence"`
		} `json:"theme"`
		Codes []struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Confidence  float64  `json:"confidence"`
			Examples    []string `json:"examples"`
		} `json:"codes"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return labeledTheme{}, nil, err
	}
	if strings.TrimSpace(decoded.Theme.Name) == "" {
		return labeledTheme{}, nil, fmt.Errorf("model returned empty theme name")
	}
	if len(decoded.Codes) == 0 {
		return labeledTheme{}, nil, fmt.Errorf("model returned no codes")
	}
	theme := labeledTheme{
		Name:        strings.TrimSpace(decoded.Theme.Name),
		Description: strings.TrimSpace(decoded.Theme.Description),
		Confidence:  clamp01(decoded.Theme.Confidence),
	}
	codes := make([]labeledCode, 0, len(decoded.Codes))
	for _, c := range decoded.Codes {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if len(c.Examples) > 3 {
			c.Examples = c.Examples[:3]
		}
		codes = append(codes, labeledCode{
			Name:        name,
			Description: strings.TrimSpace(c.Description),
			Confidence:  clamp01(c.Confidence),
			Examples:    c.Examples,
		})
	}
	if len(codes) == 0 {
		return labeledTheme{}, nil, fmt.Errorf("model returned no usable codes")
	}
	return theme, codes, nil
}

func labelSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"theme": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"confidence":  map[string]any{"type": "number"},
				},
				"required":             []string{"name", "description", "confidence"},
				"additionalProperties": false,
			},
			"codes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"confidence":  map[string]any{"type": "number"},
						"examples": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required":             []string{"name", "description", "confidence", "examples"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"theme", "codes"},
		"additionalProperties": false,
	}
}

func sampleTexts(answers []*types.Answer) []string {
	out := make([]string, 0, maxSampleTexts)
	for _, a := range answers {
		if a == nil {
			continue
		}
		text := strings.TrimSpace(a.Text)
		if text == "" {
			continue
		}
		out = append(out, "- "+truncateText(text, maxTextLen))
		if len(out) >= maxSampleTexts {
			break
		}
	}
	return out
}

// truncateText cuts on a rune boundary so a split never leaves invalid
// UTF-8 in the prompt.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func payloadUUIDList(jc *jobrt.Context, key string) []uuid.UUID {
	v, ok := jc.Payload()[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(list))
	for _, item := range list {
		id, err := uuid.Parse(fmt.Sprint(item))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func progressPct(total, remaining int) int {
	if total <= 0 {
		return 0
	}
	done := total - remaining
	pct := 30 + (done*65)/total
	if pct > 95 {
		pct = 95
	}
	return pct
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
