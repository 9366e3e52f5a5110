package narrative

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ReviewTypeValidator  = "validator"
	ReviewTypeManualEdit = "manual_edit"
	ReviewTypeHuman      = "human"
)

// ChapterVersionReview is bound to the exact text it judged through
// ContentHash. IsStale only ever goes from false to true.
type ChapterVersionReview struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterVersionID uuid.UUID `gorm:"type:uuid;column:chapter_version_id;not null;index" json:"chapter_version_id"`

	ContentHash string `gorm:"column:content_hash;size:64;not null;index" json:"content_hash"`
	IsStale     bool   `gorm:"column:is_stale;not null;default:false;index" json:"is_stale"`

	ReviewType string         `gorm:"column:review_type;not null;default:'validator';index" json:"review_type"`
	Payload    datatypes.JSON `gorm:"type:jsonb;column:payload;not null;default:'{}'" json:"payload"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ChapterVersionReview) TableName() string { return "chapter_version_review" }
