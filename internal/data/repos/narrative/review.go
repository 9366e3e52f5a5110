package narrative

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type ChapterVersionReviewRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChapterVersionReview) ([]*types.ChapterVersionReview, error)
	ListByVersionIDs(dbc dbctx.Context, versionIDs []uuid.UUID) ([]*types.ChapterVersionReview, error)
	// MarkStaleForSiblings flips is_stale on reviews of the chapter's other
	// versions whose bound hash differs from newHash. Only rows still fresh
	// are touched, so a repeat call returns 0.
	MarkStaleForSiblings(dbc dbctx.Context, chapterID uuid.UUID, newHash string, excludeVersionID uuid.UUID) (int64, error)
	// MarkStaleExcept is the set form used by fan-out rounds: reviews of
	// versions outside keepVersionIDs whose hash is not in keepHashes.
	MarkStaleExcept(dbc dbctx.Context, chapterID uuid.UUID, keepHashes []string, keepVersionIDs []uuid.UUID) (int64, error)
}

type chapterVersionReviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterVersionReviewRepo(db *gorm.DB, baseLog *logger.Logger) ChapterVersionReviewRepo {
	return &chapterVersionReviewRepo{db: db, log: baseLog.With("repo", "ChapterVersionReviewRepo")}
}

func (r *chapterVersionReviewRepo) Create(dbc dbctx.Context, rows []*types.ChapterVersionReview) ([]*types.ChapterVersionReview, error) {
	t := dbc.DB(r.db)
	if len(rows) == 0 {
		return []*types.ChapterVersionReview{}, nil
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if strings.TrimSpace(row.ReviewType) == "" {
			row.ReviewType = types.ReviewTypeValidator
		}
		if len(row.Payload) == 0 {
			row.Payload = emptyJSONObject()
		}
	}
	if err := t.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chapterVersionReviewRepo) ListByVersionIDs(dbc dbctx.Context, versionIDs []uuid.UUID) ([]*types.ChapterVersionReview, error) {
	t := dbc.DB(r.db)
	var out []*types.ChapterVersionReview
	if len(versionIDs) == 0 {
		return out, nil
	}
	if err := t.
		Where("chapter_version_id IN ?", versionIDs).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterVersionReviewRepo) MarkStaleForSiblings(dbc dbctx.Context, chapterID uuid.UUID, newHash string, excludeVersionID uuid.UUID) (int64, error) {
	return r.MarkStaleExcept(dbc, chapterID, []string{newHash}, []uuid.UUID{excludeVersionID})
}

func (r *chapterVersionReviewRepo) MarkStaleExcept(dbc dbctx.Context, chapterID uuid.UUID, keepHashes []string, keepVersionIDs []uuid.UUID) (int64, error) {
	t := dbc.DB(r.db)
	if chapterID == uuid.Nil {
		return 0, fmt.Errorf("missing chapter_id")
	}
	versions := t.
		Model(&types.ChapterVersion{}).
		Select("id").
		Where("chapter_id = ?", chapterID)
	if len(keepVersionIDs) > 0 {
		versions = versions.Where("id NOT IN ?", keepVersionIDs)
	}

	q := t.
		Model(&types.ChapterVersionReview{}).
		Where("is_stale = ?", false).
		Where("chapter_version_id IN (?)", versions)
	if len(keepHashes) > 0 {
		q = q.Where("content_hash NOT IN ?", keepHashes)
	}
	res := q.Update("is_stale", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
