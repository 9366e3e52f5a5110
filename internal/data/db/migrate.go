package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/quillgate/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Chapter{},
		&types.ChapterVersion{},
		&types.ChapterVersionReview{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
