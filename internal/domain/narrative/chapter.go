package narrative

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChapterStatusNotGenerated      = "not_generated"
	ChapterStatusGenerating        = "generating"
	ChapterStatusWaitingForConfirm = "waiting_for_confirm"
	ChapterStatusSuccessful        = "successful"
	ChapterStatusFailed            = "failed"
)

// Chapter owns its versions. SelectedVersionID is the only pointer that moves
// when a user picks or edits a version.
type Chapter struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chapter_project_number,priority:1" json:"project_id"`

	ChapterNumber int    `gorm:"column:chapter_number;not null;uniqueIndex:idx_chapter_project_number,priority:2" json:"chapter_number"`
	Title         string `gorm:"column:title;not null;default:''" json:"title"`
	Status        string `gorm:"column:status;not null;default:'not_generated';index" json:"status"`

	SelectedVersionID *uuid.UUID `gorm:"type:uuid;column:selected_version_id" json:"selected_version_id,omitempty"`
	WordCount         int        `gorm:"column:word_count;not null;default:0" json:"word_count"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapter" }

func IsKnownChapterStatus(s string) bool {
	switch s {
	case ChapterStatusNotGenerated,
		ChapterStatusGenerating,
		ChapterStatusWaitingForConfirm,
		ChapterStatusSuccessful,
		ChapterStatusFailed:
		return true
	default:
		return false
	}
}
