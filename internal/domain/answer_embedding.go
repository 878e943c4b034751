package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnswerEmbedding caches one answer's embedding vector keyed by a content
// hash of the text it was computed from. An entry is stale exactly when the
// stored hash no longer matches the live text's hash; wall-clock age is
// irrelevant.
type AnswerEmbedding struct {
	AnswerID    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"answer_id"`
	ContentHash string         `gorm:"column:content_hash;not null;index" json:"content_hash"`
	Vector      datatypes.JSON `gorm:"column:vector;type:jsonb" json:"vector"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnswerEmbedding) TableName() string { return "answer_embedding" }
