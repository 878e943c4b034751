package domain

import "github.com/google/uuid"

// Cluster is one group of semantically similar answers produced by a single
// clustering call. Never persisted; consumed immediately to spawn labeling
// jobs.
type Cluster struct {
	ID    int         `json:"id"`
	Texts []string    `json:"texts"`
	IDs   []uuid.UUID `json:"ids"`
	Size  int         `json:"size"`
}

// ClusterOutcome is the full result of one clustering call. NClusters of
// zero with everything counted as noise is a valid outcome, not an error.
type ClusterOutcome struct {
	NClusters  int             `json:"n_clusters"`
	NoiseCount int             `json:"noise_count"`
	Clusters   map[int]Cluster `json:"clusters"`
}
