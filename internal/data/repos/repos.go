package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/repos/narrative"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type ChapterRepo = narrative.ChapterRepo
type ChapterVersionRepo = narrative.ChapterVersionRepo
type ChapterVersionReviewRepo = narrative.ChapterVersionReviewRepo

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return narrative.NewChapterRepo(db, baseLog)
}
func NewChapterVersionRepo(db *gorm.DB, baseLog *logger.Logger) ChapterVersionRepo {
	return narrative.NewChapterVersionRepo(db, baseLog)
}
func NewChapterVersionReviewRepo(db *gorm.DB, baseLog *logger.Logger) ChapterVersionReviewRepo {
	return narrative.NewChapterVersionReviewRepo(db, baseLog)
}
