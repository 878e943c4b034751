package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	GenerationStatusProcessing = "processing"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
	GenerationStatusApplied    = "applied"

	CodingTypeStandard = "standard"
	CodingTypeBrand    = "brand"
)

// Generation is one run of the codeframe-building pipeline for a category.
// Status is terminal once failed or applied.
type Generation struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CategoryID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"category_id"`
	RequestedBy uuid.UUID      `gorm:"type:uuid;not null;index" json:"requested_by"`
	CodingType  string         `gorm:"column:coding_type;not null;default:standard" json:"coding_type"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	NClusters   int            `gorm:"column:n_clusters;not null;default:0" json:"n_clusters"`
	NAnswers    int            `gorm:"column:n_answers;not null;default:0" json:"n_answers"`
	// PendingClusters counts labeling jobs that have not written their nodes
	// yet; the worker that drains it to zero marks the generation completed.
	PendingClusters int            `gorm:"column:pending_clusters;not null;default:0" json:"pending_clusters"`
	Config          datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	Usage           datatypes.JSON `gorm:"column:usage;type:jsonb" json:"usage"`
	Error           string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Generation) TableName() string { return "generation" }

// Terminal reports whether the status can never change again.
func (g *Generation) Terminal() bool {
	return g.Status == GenerationStatusFailed || g.Status == GenerationStatusApplied
}

// GenerationConfig is the decoded shape of Generation.Config.
type GenerationConfig struct {
	MinClusterSize int     `json:"min_cluster_size"`
	MinSamples     int     `json:"min_samples"`
	Model          string  `json:"model,omitempty"`
	AutoThreshold  float64 `json:"auto_threshold,omitempty"`
	CategoryName   string  `json:"category_name,omitempty"`
}
