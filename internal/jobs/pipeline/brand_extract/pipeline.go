package brand_extract

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
	"github.com/surveylab/codeframe-backend/internal/validation"
)

const (
	maxBatchTexts = 300
	maxTextLen    = 240
	maxBrands     = 30
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

	dbc := dbctx.Context{Ctx: jc.Ctx}

	gen, err := p.generations.GetByID(dbc, genID)
	if err != nil {
		p.failGeneration(jc, genID, "load", err)
		return nil
	}
	if gen.Terminal() {
		jc.Succeed("skipped", map[string]any{"generation_id": genID.String()})
		return nil
	}

	answers, err := p.answers.GetByCategory(dbc, gen.CategoryID)
	if err != nil {
		p.failGeneration(jc, genID, "load", err)
		return nil
	}
	if len(answers) == 0 {
		p.failGeneration(jc, genID, "load", fmt.Errorf("category %s has no answers", gen.CategoryID))
		return nil
	}

	category := categoryLabel(gen)
	jc.Progress("extract", 15, fmt.Sprintf("Extracting brands from %d answers", len(answers)))

	obj, usage, err := p.ai.GenerateJSON(
		jc.Ctx,
		"You extract brand mentions from survey answers. Normalize casing and obvious misspellings to one "+
			"canonical brand name, count how many answers mention each brand, and keep short verbatim examples. "+
			"Only report brands the answers actually mention.",
		fmt.Sprintf("Category: %s\nAnswers (one per line):\n%s", category, strings.Join(sampleTexts(answers), "\n")),
		"brand_mentions",
		brandSchema(),
	)
	if err != nil {
		p.failGeneration(jc, genID, "extract", err)
		return nil
	}
	brands, err := decodeBrands(obj)
	if err != nil {
		p.failGeneration(jc, genID, "extract", err)
		return nil
	}

	if err := p.generations.AccumulateUsage(dbc, genID, usage.PromptTokens, usage.CompletionTokens, usage.Cost); err != nil {
		p.log.Warn("Usage accumulation failed", "generation_id", genID, "error", err)
	}

	jc.Progress("validate", 45, fmt.Sprintf("Validating %d brands", len(brands)))

	validations := make(map[string]validation.Result, len(brands))
	if p.engine != nil {
		for _, b := range brands {
			res := p.engine.Validate(jc.Ctx, b.Name, category, nil)
			validations[b.Name] = res
			if res.Cost > 0 {
				if err := p.generations.AccumulateUsage(dbc, genID, 0, 0, res.Cost); err != nil {
					p.log.Warn("Usage accumulation failed", "generation_id", genID, "error", err)
				}
			}
		}
	}

	jc.Progress("persist", 75, fmt.Sprintf("Writing %d brand codes", len(brands)))

	themeNode := &types.HierarchyNode{
		ID:           uuid.New(),
		GenerationID: genID,
		NodeType:     types.NodeTypeTheme,
		Name:         "Brands",
		Description:  fmt.Sprintf("Brand mentions extracted from %d answers", len(answers)),
		Level:        0,
	}
	batch := []*types.HierarchyNode{themeNode}
	summaries := make([]map[string]any, 0, len(brands))
	for i, b := range brands {
		confidence := b.Confidence
		description := b.Description
		if res, ok := validations[b.Name]; ok {
			confidence = res.Confidence / 100
			if res.Reasoning != "" {
				description = res.Reasoning
			}
			summaries = append(summaries, map[string]any{
				"brand":      b.Name,
				"pattern":    res.PatternType,
				"confidence": res.Confidence,
				"action":     res.Action,
			})
		}
		examples, _ := json.Marshal(b.Examples)
		parentID := themeNode.ID
		batch = append(batch, &types.HierarchyNode{
			ID:           uuid.New(),
			GenerationID: genID,
			ParentID:     &parentID,
			NodeType:     types.NodeTypeCode,
			Name:         b.Name,
			Description:  description,
			Level:        1,
			Confidence:   confidence,
			Examples:     datatypes.JSON(examples),
			DisplayOrder: i,
		})
	}
	if _, err := p.nodes.CreateBatch(dbc, batch); err != nil {
		p.failGeneration(jc, genID, "persist", err)
		return nil
	}

	now := time.Now()
	ok, err = p.generations.UpdateFieldsUnlessStatus(dbc, genID,
		[]string{types.GenerationStatusFailed, types.GenerationStatusApplied},
		map[string]interface{}{
			"status":           types.GenerationStatusCompleted,
			"pending_clusters": 0,
			"completed_at":     now,
			"error":            "",
		})
	if err != nil {
		p.failGeneration(jc, genID, "finalize", err)
		return nil
	}
	if ok && p.notify != nil {
		if fresh, gerr := p.generations.GetByID(dbc, genID); gerr == nil {
			p.notify.GenerationCompleted(fresh)
		}
	}

	jc.Succeed("done", map[string]any{
		"generation_id":  genID.String(),
		"brands_written": len(brands),
		"validations":    summaries,
	})
	return nil
}

// failGeneration fails both the job and the generation. Brand extraction
// is the generation's only unit of work, so unlike a cluster job its
// terminal failure is the generation's failure.
func (p *Pipeline) failGeneration(jc *jobrt.Context, genID uuid.UUID, stage string, err error) {
	jc.Fail(stage, err)

	dbc := dbctx.Context{Ctx: jc.Ctx}
	msg := fmt.Sprintf("brand extraction failed: %v", err)
	ok, uerr := p.generations.UpdateFieldsUnlessStatus(dbc, genID,
		[]string{types.GenerationStatusCompleted, types.GenerationStatusApplied},
		map[string]interface{}{
			"status": types.GenerationStatusFailed,
			"error":  msg,
		})
	if uerr != nil {
		p.log.Error("Generation failure write failed", "generation_id", genID, "error", uerr)
		return
	}
	if ok && p.notify != nil {
		p.notify.GenerationFailed(genID, msg)
	}
}

// OnExhausted covers failure paths that bypass failGeneration, such as a
// handler panic: once the retry budget is spent the generation must not
// stay in processing.
func (p *Pipeline) OnExhausted(jc *jobrt.Context) {
	if jc == nil || jc.Job == nil {
		return
	}
	genID, ok := jc.PayloadUUID("generation_id")
	if !ok || genID == uuid.Nil {
		return
	}
	msg := "brand extraction failed"
	if jc.Job != nil && strings.TrimSpace(jc.Job.Error) != "" {
		msg = "brand extraction failed: " + jc.Job.Error
	}

	// Already-failed is excluded too: failGeneration notified once and a
	// second event for the same failure would be noise.
	dbc := dbctx.Context{Ctx: jc.Ctx}
	changed, err := p.generations.UpdateFieldsUnlessStatus(dbc, genID,
		[]string{types.GenerationStatusCompleted, types.GenerationStatusApplied, types.GenerationStatusFailed},
		map[string]interface{}{
			"status": types.GenerationStatusFailed,
			"error":  msg,
		})
	if err != nil {
		p.log.Error("Generation failure write failed", "generation_id", genID, "error", err)
		return
	}
	if changed && p.notify != nil {
		p.notify.GenerationFailed(genID, msg)
	}
}

type extractedBrand struct {
	Name        string
	Description string
	Count       int
	Confidence  float64
	Examples    []string
}

func decodeBrands(obj map[string]any) ([]extractedBrand, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Brands []struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Count       int      `json:"count"`
			Confidence  float64  `json:"confidence"`
			Examples    []string `json:"examples"`
		} `json:"brands"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := make([]extractedBrand, 0, len(decoded.Brands))
	for _, b := range decoded.Brands {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		if len(b.Examples) > 3 {
			b.Examples = b.Examples[:3]
		}
		out = append(out, extractedBrand{
			Name:        name,
			Description: strings.TrimSpace(b.Description),
			Count:       b.Count,
			Confidence:  b.Confidence,
			Examples:    b.Examples,
		})
		if len(out) >= maxBrands {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no brands")
	}
	return out, nil
}

func brandSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"brands": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"count":       map[string]any{"type": "integer"},
						"confidence":  map[string]any{"type": "number"},
						"examples": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required":             []string{"name", "description", "count", "confidence", "examples"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"brands"},
		"additionalProperties": false,
	}
}

func categoryLabel(gen *types.Generation) string {
	var cfg struct {
		CategoryName string `json:"category_name"`
	}
	if len(gen.Config) > 0 {
		_ = json.Unmarshal(gen.Config, &cfg)
	}
	if strings.TrimSpace(cfg.CategoryName) != "" {
		return cfg.CategoryName
	}
	return gen.CategoryID.String()
}

func sampleTexts(answers []*types.Answer) []string {
	out := make([]string, 0, maxBatchTexts)
	for _, a := range answers {
		if a == nil {
			continue
		}
		text := strings.TrimSpace(a.Text)
		if text == "" {
			continue
		}
		out = append(out, "- "+truncateText(text, maxTextLen))
		if len(out) >= maxBatchTexts {
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
