package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/repos"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type Repos struct {
	Chapters repos.ChapterRepo
	Versions repos.ChapterVersionRepo
	Reviews  repos.ChapterVersionReviewRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Chapters: repos.NewChapterRepo(db, log),
		Versions: repos.NewChapterVersionRepo(db, log),
		Reviews:  repos.NewChapterVersionReviewRepo(db, log),
	}
}
