package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/surveylab/codeframe-backend/internal/coding/clustering"
	"github.com/surveylab/codeframe-backend/internal/coding/embedding"
	"github.com/surveylab/codeframe-backend/internal/coding/hierarchy"
	"github.com/surveylab/codeframe-backend/internal/data/repos"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/validation"
)

// StartGenerationInput is the request to begin building a codeframe for a
// category.
type StartGenerationInput struct {
	CategoryID  uuid.UUID
	RequestedBy uuid.UUID
	CodingType  string
	Config      types.GenerationConfig
}

// StartGenerationOutput is returned synchronously; the heavy work runs in
// the background and is observed by polling.
type StartGenerationOutput struct {
	Generation       *types.Generation `json:"generation"`
	EstimatedSeconds int               `json:"estimated_seconds"`
	PollPath         string            `json:"poll_path"`
}

// GenerationStatus is the poll response. Tree is populated once the
// generation has nodes to show.
type GenerationStatus struct {
	Generation *types.Generation     `json:"generation"`
	Tree       []*hierarchy.TreeNode `json:"tree,omitempty"`
}

// ApplyOutcome summarizes the apply phase's answer assignment.
type ApplyOutcome struct {
	Generation *types.Generation `json:"generation"`
	Auto       int               `json:"auto"`
	Suggested  int               `json:"suggested"`
	Unassigned int               `json:"unassigned"`
}

// GenerationService is the orchestrator: it owns the generation state
// machine and the fan-out to background work. Public operations respond
// immediately; multi-second work happens in cluster jobs observed through
// GetStatus.
type GenerationService interface {
	StartGeneration(ctx context.Context, in StartGenerationInput) (*StartGenerationOutput, error)
	GetStatus(ctx context.Context, generationID uuid.UUID) (*GenerationStatus, error)
	ApplyCodeframe(ctx context.Context, generationID uuid.UUID) (*ApplyOutcome, error)
	UpdateHierarchy(ctx context.Context, generationID uuid.UUID, action string, params hierarchy.EditParams) error
}

type generationService struct {
	log         *logger.Logger
	generations repos.GenerationRepo
	answersRepo repos.AnswerRepo
	nodesRepo   repos.HierarchyNodeRepo
	cache       *embedding.Cache
	coordinator *clustering.Coordinator
	store       *hierarchy.Store
	jobs        JobService
	notify      GenerationNotifier
	embedder    embedding.Embedder
}

func NewGenerationService(
	baseLog *logger.Logger,
	generations repos.GenerationRepo,
	answersRepo repos.AnswerRepo,
	nodesRepo repos.HierarchyNodeRepo,
	cache *embedding.Cache,
	coordinator *clustering.Coordinator,
	store *hierarchy.Store,
	jobs JobService,
	notify GenerationNotifier,
	embedder embedding.Embedder,
) GenerationService {
	return &generationService{
		log:         baseLog.With("service", "GenerationService"),
		generations: generations,
		answersRepo: answersRepo,
		nodesRepo:   nodesRepo,
		cache:       cache,
		coordinator: coordinator,
		store:       store,
		jobs:        jobs,
		notify:      notify,
		embedder:    embedder,
	}
}

func (s *generationService) StartGeneration(ctx context.Context, in StartGenerationInput) (*StartGenerationOutput, error) {
	if in.CategoryID == uuid.Nil {
		return nil, fmt.Errorf("%w: category_id required", apperr.ErrInvalidArgument)
	}
	if in.RequestedBy == uuid.Nil {
		return nil, fmt.Errorf("%w: requested_by required", apperr.ErrInvalidArgument)
	}
	codingType := strings.TrimSpace(in.CodingType)
	if codingType == "" {
		codingType = types.CodingTypeStandard
	}
	if codingType != types.CodingTypeStandard && codingType != types.CodingTypeBrand {
		return nil, fmt.Errorf("%w: unknown coding_type %q", apperr.ErrInvalidArgument, in.CodingType)
	}

	dbc := dbctx.Context{Ctx: ctx}

	// The minimum-answer precondition is checked before any row exists, so
	// a rejected request leaves no trace in storage.
	minAnswers := envutil.Int("GENERATION_MIN_ANSWERS", 10)
	count, err := s.answersRepo.CountByCategory(dbc, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	if count < int64(minAnswers) {
		return nil, fmt.Errorf("%w: category %s has %d answers, minimum is %d",
			apperr.ErrInvalidArgument, in.CategoryID, count, minAnswers)
	}

	switch codingType {
	case types.CodingTypeBrand:
		return s.startBrand(ctx, in, int(count))
	default:
		return s.startStandard(ctx, in, int(count))
	}
}

// startStandard runs the synchronous setup steps (embedding, clustering),
// creates the generation row with real counts, and fans out one labeling
// job per cluster. Setup failures surface to the caller; nothing is
// persisted for them.
func (s *generationService) startStandard(ctx context.Context, in StartGenerationInput, count int) (*StartGenerationOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	answers, err := s.answersRepo.GetByCategory(dbc, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	if err := s.cache.EnsureEmbeddings(ctx, answers); err != nil {
		return nil, fmt.Errorf("ensure embeddings: %w", err)
	}
	outcome, err := s.coordinator.Cluster(ctx, answers, in.Config)
	if err != nil {
		return nil, fmt.Errorf("cluster answers: %w", err)
	}

	cfg, _ := json.Marshal(in.Config)
	gen := &types.Generation{
		CategoryID:      in.CategoryID,
		RequestedBy:     in.RequestedBy,
		CodingType:      types.CodingTypeStandard,
		Status:          types.GenerationStatusProcessing,
		NClusters:       outcome.NClusters,
		NAnswers:        count,
		PendingClusters: outcome.NClusters,
		Config:          datatypes.JSON(cfg),
	}

	// All noise is a valid outcome: complete immediately with an empty tree.
	if outcome.NClusters == 0 {
		now := time.Now()
		gen.Status = types.GenerationStatusCompleted
		gen.CompletedAt = &now
	}

	created, err := s.generations.Create(dbc, gen)
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	if s.notify != nil {
		s.notify.GenerationCreated(created)
		if created.Status == types.GenerationStatusCompleted {
			s.notify.GenerationCompleted(created)
		}
	}

	for clusterID, cluster := range outcome.Clusters {
		ids := make([]string, 0, len(cluster.IDs))
		for _, id := range cluster.IDs {
			ids = append(ids, id.String())
		}
		if _, err := s.jobs.Enqueue(ctx, in.RequestedBy, types.JobTypeClusterLabel, "generation", created.ID, map[string]any{
			"generation_id": created.ID.String(),
			"cluster_id":    clusterID,
			"answer_ids":    ids,
		}); err != nil {
			// Enqueue failure after row creation is a background-path failure:
			// the generation is marked failed rather than erroring the caller
			// halfway through fan-out.
			s.failGeneration(ctx, created.ID, fmt.Errorf("enqueue cluster %d: %w", clusterID, err))
			out, _ := s.generations.GetByID(dbc, created.ID)
			if out == nil {
				out = created
			}
			return &StartGenerationOutput{Generation: out, PollPath: pollPath(created.ID)}, nil
		}
	}

	return &StartGenerationOutput{
		Generation:       created,
		EstimatedSeconds: estimateSeconds(outcome.NClusters),
		PollPath:         pollPath(created.ID),
	}, nil
}

// startBrand creates the row with a single pending unit and launches
// brand extraction as a detached job.
func (s *generationService) startBrand(ctx context.Context, in StartGenerationInput, count int) (*StartGenerationOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	cfg, _ := json.Marshal(in.Config)
	gen := &types.Generation{
		CategoryID:      in.CategoryID,
		RequestedBy:     in.RequestedBy,
		CodingType:      types.CodingTypeBrand,
		Status:          types.GenerationStatusProcessing,
		NClusters:       1,
		NAnswers:        count,
		PendingClusters: 1,
		Config:          datatypes.JSON(cfg),
	}
	created, err := s.generations.Create(dbc, gen)
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}
	if s.notify != nil {
		s.notify.GenerationCreated(created)
	}

	if _, err := s.jobs.Enqueue(ctx, in.RequestedBy, types.JobTypeBrandExtract, "generation", created.ID, map[string]any{
		"generation_id": created.ID.String(),
	}); err != nil {
		s.failGeneration(ctx, created.ID, fmt.Errorf("enqueue brand extraction: %w", err))
		out, _ := s.generations.GetByID(dbc, created.ID)
		if out == nil {
			out = created
		}
		return &StartGenerationOutput{Generation: out, PollPath: pollPath(created.ID)}, nil
	}

	return &StartGenerationOutput{
		Generation:       created,
		EstimatedSeconds: estimateSeconds(1) * 3,
		PollPath:         pollPath(created.ID),
	}, nil
}

func (s *generationService) GetStatus(ctx context.Context, generationID uuid.UUID) (*GenerationStatus, error) {
	gen, err := s.generations.GetByID(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return nil, err
	}
	status := &GenerationStatus{Generation: gen}
	if gen.Status == types.GenerationStatusCompleted || gen.Status == types.GenerationStatusApplied {
		tree, terr := s.store.Load(ctx, generationID)
		if terr != nil {
			return nil, fmt.Errorf("load tree: %w", terr)
		}
		status.Tree = tree
	}
	return status, nil
}

// ApplyCodeframe assigns every answer in the category to its closest code
// by embedding similarity, splitting assignments into auto (confidence at
// or above the threshold) and suggested. Only a completed generation can
// be applied; applying is what makes it terminal.
func (s *generationService) ApplyCodeframe(ctx context.Context, generationID uuid.UUID) (*ApplyOutcome, error) {
	dbc := dbctx.Context{Ctx: ctx}

	gen, err := s.generations.GetByID(dbc, generationID)
	if err != nil {
		return nil, err
	}
	if gen.Terminal() {
		return nil, fmt.Errorf("generation %s is %s: %w", generationID, gen.Status, apperr.ErrTerminalStatus)
	}
	if gen.Status != types.GenerationStatusCompleted {
		return nil, fmt.Errorf("%w: generation %s is %s, apply requires completed", apperr.ErrInvalidArgument, generationID, gen.Status)
	}

	nodes, err := s.nodesRepo.GetByGeneration(dbc, generationID)
	if err != nil {
		return nil, err
	}
	codes := make([]*types.HierarchyNode, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType == types.NodeTypeCode {
			codes = append(codes, n)
		}
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: generation %s has no codes to apply", apperr.ErrInvalidArgument, generationID)
	}

	answers, err := s.answersRepo.GetByCategory(dbc, gen.CategoryID)
	if err != nil {
		return nil, err
	}
	// Answer vectors come from the persisted cache: EnsureEmbeddings computes
	// only what is stale, so a re-apply of an unchanged category costs zero
	// embedding calls for answers. Only the code names are embedded fresh.
	if err := s.cache.EnsureEmbeddings(ctx, answers); err != nil {
		return nil, fmt.Errorf("ensure embeddings: %w", err)
	}
	answerVecs, err := s.cache.Vectors(ctx, answers)
	if err != nil {
		return nil, fmt.Errorf("load cached embeddings: %w", err)
	}

	codeTexts := make([]string, len(codes))
	for i, c := range codes {
		codeTexts[i] = c.Name
	}
	codeVecs, err := s.embedder.Embed(ctx, codeTexts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed codes: %v", apperr.ErrDependencyUnavailable, err)
	}
	if len(codeVecs) != len(codes) {
		return nil, fmt.Errorf("%w: expected %d code embeddings, got %d", apperr.ErrDependencyUnavailable, len(codes), len(codeVecs))
	}

	threshold := autoThreshold(gen)
	outcome := &ApplyOutcome{}
	for _, answer := range answers {
		vec, ok := answerVecs[answer.ID]
		if !ok {
			outcome.Unassigned++
			continue
		}
		bestIdx := -1
		bestScore := 0.0
		for j := range codes {
			score := validation.Cosine(vec, codeVecs[j])
			if score > bestScore {
				bestScore = score
				bestIdx = j
			}
		}
		if bestIdx < 0 {
			outcome.Unassigned++
			continue
		}
		source := types.CodeSourceSuggested
		if bestScore >= threshold {
			source = types.CodeSourceAuto
		}
		if err := s.answersRepo.AssignCode(dbc, answer.ID, codes[bestIdx].ID, bestScore, source); err != nil {
			return nil, fmt.Errorf("assign answer %s: %w", answer.ID, err)
		}
		if source == types.CodeSourceAuto {
			outcome.Auto++
		} else {
			outcome.Suggested++
		}
	}

	ok, err := s.generations.UpdateFieldsUnlessStatus(dbc, generationID,
		[]string{types.GenerationStatusFailed, types.GenerationStatusApplied},
		map[string]interface{}{"status": types.GenerationStatusApplied})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generation %s changed status during apply: %w", generationID, apperr.ErrTerminalStatus)
	}

	fresh, err := s.generations.GetByID(dbc, generationID)
	if err != nil {
		return nil, err
	}
	outcome.Generation = fresh
	return outcome, nil
}

func (s *generationService) UpdateHierarchy(ctx context.Context, generationID uuid.UUID, action string, params hierarchy.EditParams) error {
	gen, err := s.generations.GetByID(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return err
	}
	if gen.Terminal() {
		return fmt.Errorf("generation %s is %s: %w", generationID, gen.Status, apperr.ErrTerminalStatus)
	}
	if gen.Status != types.GenerationStatusCompleted {
		return fmt.Errorf("%w: generation %s is still %s", apperr.ErrInvalidArgument, generationID, gen.Status)
	}
	return s.store.Apply(ctx, generationID, action, params)
}

// failGeneration is the catch-all for background-path failures after the
// row exists: the caller never sees the error, only the poller does.
func (s *generationService) failGeneration(ctx context.Context, generationID uuid.UUID, cause error) {
	s.log.Error("Generation failed", "generation_id", generationID, "error", cause)
	_, err := s.generations.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, generationID,
		[]string{types.GenerationStatusCompleted, types.GenerationStatusApplied},
		map[string]interface{}{
			"status": types.GenerationStatusFailed,
			"error":  cause.Error(),
		})
	if err != nil {
		s.log.Error("Generation failure write failed", "generation_id", generationID, "error", err)
		return
	}
	if s.notify != nil {
		s.notify.GenerationFailed(generationID, cause.Error())
	}
}

func autoThreshold(gen *types.Generation) float64 {
	var cfg types.GenerationConfig
	if len(gen.Config) > 0 {
		_ = json.Unmarshal(gen.Config, &cfg)
	}
	if cfg.AutoThreshold > 0 {
		return cfg.AutoThreshold
	}
	return envutil.Float("APPLY_AUTO_THRESHOLD", 0.80)
}

func estimateSeconds(nClusters int) int {
	if nClusters <= 0 {
		return 0
	}
	// Labeling runs in parallel; the estimate covers queue drain, not sum.
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	waves := (nClusters + concurrency - 1) / concurrency
	return waves * 15
}

func pollPath(id uuid.UUID) string {
	return "/api/v1/generations/" + id.String()
}
