package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/repos"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// Embedder is the slice of the completion client the cache needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Cache guarantees that no embedding is ever recomputed for an answer whose
// text is unchanged. Staleness is decided by content hash alone.
type Cache struct {
	db       *gorm.DB
	log      *logger.Logger
	entries  repos.AnswerEmbeddingRepo
	embedder Embedder
}

func NewCache(db *gorm.DB, baseLog *logger.Logger, entries repos.AnswerEmbeddingRepo, embedder Embedder) *Cache {
	return &Cache{
		db:       db,
		log:      baseLog.With("component", "EmbeddingCache"),
		entries:  entries,
		embedder: embedder,
	}
}

// ContentHash is the cache key derivation: sha256 over the trimmed text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// EnsureEmbeddings computes vectors for exactly the answers whose cached
// hash no longer matches their live text, in one batched capability call.
// An unreachable embedder fails the whole step; there is no partial silent
// success.
func (c *Cache) EnsureEmbeddings(ctx context.Context, answers []*types.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ID)
	}

	cached, err := c.entries.GetByAnswerIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return fmt.Errorf("load embedding cache: %w", err)
	}
	cachedHash := make(map[uuid.UUID]string, len(cached))
	for _, e := range cached {
		cachedHash[e.AnswerID] = e.ContentHash
	}

	var (
		staleAnswers []*types.Answer
		staleHashes  []string
		staleTexts   []string
	)
	for _, a := range answers {
		h := ContentHash(a.Text)
		if cachedHash[a.ID] == h {
			continue
		}
		staleAnswers = append(staleAnswers, a)
		staleHashes = append(staleHashes, h)
		staleTexts = append(staleTexts, a.Text)
	}

	if len(staleAnswers) == 0 {
		c.log.Debug("Embedding cache fully warm", "answers", len(answers))
		return nil
	}

	c.log.Info("Computing embeddings for stale answers",
		"stale", len(staleAnswers),
		"total", len(answers),
	)

	vectors, err := c.embedder.Embed(ctx, staleTexts)
	if err != nil {
		return fmt.Errorf("%w: embed: %v", pkgerrors.ErrDependencyUnavailable, err)
	}
	if len(vectors) != len(staleAnswers) {
		return fmt.Errorf("%w: embed returned %d vectors for %d inputs", pkgerrors.ErrDependencyUnavailable, len(vectors), len(staleAnswers))
	}

	entries := make([]*types.AnswerEmbedding, 0, len(staleAnswers))
	for i, a := range staleAnswers {
		raw, mErr := json.Marshal(vectors[i])
		if mErr != nil {
			return fmt.Errorf("encode vector: %w", mErr)
		}
		entries = append(entries, &types.AnswerEmbedding{
			AnswerID:    a.ID,
			ContentHash: staleHashes[i],
			Vector:      datatypes.JSON(raw),
		})
	}
	if err := c.entries.UpsertBatch(dbctx.Context{Ctx: ctx}, entries); err != nil {
		return fmt.Errorf("persist embeddings: %w", err)
	}
	return nil
}

// Vectors returns the cached vector per answer id. Call EnsureEmbeddings
// first; answers without a persisted entry are simply absent from the map.
func (c *Cache) Vectors(ctx context.Context, answers []*types.Answer) (map[uuid.UUID][]float32, error) {
	if len(answers) == 0 {
		return map[uuid.UUID][]float32{}, nil
	}

	ids := make([]uuid.UUID, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ID)
	}
	entries, err := c.entries.GetByAnswerIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, fmt.Errorf("load embedding cache: %w", err)
	}

	out := make(map[uuid.UUID][]float32, len(entries))
	for _, e := range entries {
		var vec []float32
		if err := json.Unmarshal(e.Vector, &vec); err != nil {
			return nil, fmt.Errorf("decode vector for answer %s: %w", e.AnswerID, err)
		}
		out[e.AnswerID] = vec
	}
	return out, nil
}
