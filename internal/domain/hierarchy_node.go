package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	NodeTypeTheme = "theme"
	NodeTypeCode  = "code"
)

// HierarchyNode is one theme or code entry in a generation's taxonomy tree.
// ParentID nil means root. A node whose recorded parent does not exist in the
// same generation is treated as an orphaned root, never dropped.
type HierarchyNode struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GenerationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"generation_id"`
	ParentID     *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	NodeType     string         `gorm:"column:node_type;not null" json:"node_type"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Description  string         `gorm:"column:description" json:"description,omitempty"`
	Level        int            `gorm:"column:level;not null;default:0" json:"level"`
	ClusterID    *int           `gorm:"column:cluster_id;index" json:"cluster_id,omitempty"`
	Confidence   float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Examples     datatypes.JSON `gorm:"column:examples;type:jsonb" json:"examples"`
	DisplayOrder int            `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (HierarchyNode) TableName() string { return "hierarchy_node" }
