package domain

import (
	"github.com/yungbote/quillgate/internal/domain/narrative"
)

const (
	ChapterStatusNotGenerated      = narrative.ChapterStatusNotGenerated
	ChapterStatusGenerating        = narrative.ChapterStatusGenerating
	ChapterStatusWaitingForConfirm = narrative.ChapterStatusWaitingForConfirm
	ChapterStatusSuccessful        = narrative.ChapterStatusSuccessful
	ChapterStatusFailed            = narrative.ChapterStatusFailed

	ReviewTypeValidator  = narrative.ReviewTypeValidator
	ReviewTypeManualEdit = narrative.ReviewTypeManualEdit
	ReviewTypeHuman      = narrative.ReviewTypeHuman

	VersionLabelManualEdit  = narrative.VersionLabelManualEdit
	VersionSourceManualEdit = narrative.VersionSourceManualEdit
	VersionSourceGenerated  = narrative.VersionSourceGenerated
)

type Chapter = narrative.Chapter
type ChapterVersion = narrative.ChapterVersion
type ChapterVersionReview = narrative.ChapterVersionReview
