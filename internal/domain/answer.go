package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CodeSourceAuto      = "auto"
	CodeSourceSuggested = "suggested"
)

// Answer is one open-text survey response. CodeID is set by the apply phase.
type Answer struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CategoryID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"category_id"`
	RespondentID   uuid.UUID  `gorm:"type:uuid;index" json:"respondent_id"`
	Text           string     `gorm:"column:text;not null" json:"text"`
	CodeID         *uuid.UUID `gorm:"type:uuid;index" json:"code_id,omitempty"`
	CodeConfidence float64    `gorm:"column:code_confidence;not null;default:0" json:"code_confidence"`
	CodeSource     string     `gorm:"column:code_source" json:"code_source,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Answer) TableName() string { return "answer" }
