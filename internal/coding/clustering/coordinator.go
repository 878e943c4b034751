package clustering

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/surveylab/codeframe-backend/internal/clients/clusterer"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

const (
	DefaultMinClusterSize = 5
	DefaultMinSamples     = 3
)

// Coordinator shapes the clustering request and validates the outcome; the
// grouping algorithm itself is the clusterer capability's problem.
type Coordinator struct {
	log    *logger.Logger
	client clusterer.Client
}

func NewCoordinator(baseLog *logger.Logger, client clusterer.Client) *Coordinator {
	return &Coordinator{
		log:    baseLog.With("component", "ClusteringCoordinator"),
		client: client,
	}
}

// Cluster groups answers into topic clusters. An all-noise outcome (zero
// clusters) is a valid result and is returned as such, not as an error.
func (c *Coordinator) Cluster(ctx context.Context, answers []*types.Answer, cfg types.GenerationConfig) (*types.ClusterOutcome, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers to cluster", pkgerrors.ErrInvalidArgument)
	}

	minClusterSize := cfg.MinClusterSize
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	texts := make([]string, len(answers))
	ids := make([]uuid.UUID, len(answers))
	for i, a := range answers {
		texts[i] = a.Text
		ids[i] = a.ID
	}

	outcome, err := c.client.Cluster(ctx, texts, ids, minClusterSize, minSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster: %v", pkgerrors.ErrDependencyUnavailable, err)
	}

	c.log.Info("Clustering finished",
		"answers", len(answers),
		"n_clusters", outcome.NClusters,
		"noise_count", outcome.NoiseCount,
	)
	return outcome, nil
}
