package narrative

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VersionLabelManualEdit = "manual_edit"

	VersionSourceManualEdit = "manual_edit"
	VersionSourceGenerated  = "generated"
)

// ChapterVersion is an immutable snapshot of chapter text. Content is always
// stored normalized and ContentHash is always derived from it; neither
// column is ever updated after insert. NeedsVectorRetry is bookkeeping for
// downstream ingestion and is the only mutable column.
type ChapterVersion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_chapter_version_seq,priority:1" json:"chapter_id"`

	// Seq is a per-chapter insertion ordinal assigned under the chapter lock.
	Seq int `gorm:"column:seq;not null;uniqueIndex:idx_chapter_version_seq,priority:2" json:"seq"`

	Content     string `gorm:"column:content;type:text;not null" json:"content"`
	ContentHash string `gorm:"column:content_hash;size:64;not null;index" json:"content_hash"`

	ParentVersionID   *uuid.UUID `gorm:"type:uuid;column:parent_version_id;index" json:"parent_version_id,omitempty"`
	Label             string     `gorm:"column:label;not null;default:''" json:"label"`
	GenerationAttempt int        `gorm:"column:generation_attempt;not null;default:0" json:"generation_attempt"`

	Metadata         datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`
	NeedsVectorRetry bool           `gorm:"column:needs_vector_retry;not null;default:false;index" json:"needs_vector_retry"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ChapterVersion) TableName() string { return "chapter_version" }
