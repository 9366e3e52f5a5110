package narrative

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

// ChapterVersionRepo exposes no content/hash update on purpose: versions are
// append-only.
type ChapterVersionRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChapterVersion) ([]*types.ChapterVersion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChapterVersion, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ChapterVersion, error)
	ListByChapterID(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.ChapterVersion, error)
	LatestByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterVersion, error)
	MaxSeq(dbc dbctx.Context, chapterID uuid.UUID) (int, error)
	ListNeedingVectorRetry(dbc dbctx.Context, limit int) ([]*types.ChapterVersion, error)
	SetNeedsVectorRetry(dbc dbctx.Context, id uuid.UUID, needsRetry bool) (bool, error)
}

type chapterVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterVersionRepo(db *gorm.DB, baseLog *logger.Logger) ChapterVersionRepo {
	return &chapterVersionRepo{db: db, log: baseLog.With("repo", "ChapterVersionRepo")}
}

func (r *chapterVersionRepo) Create(dbc dbctx.Context, rows []*types.ChapterVersion) ([]*types.ChapterVersion, error) {
	t := dbc.DB(r.db)
	if len(rows) == 0 {
		return []*types.ChapterVersion{}, nil
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if len(row.Metadata) == 0 {
			row.Metadata = emptyJSONObject()
		}
	}
	if err := t.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chapterVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChapterVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *chapterVersionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ChapterVersion, error) {
	t := dbc.DB(r.db)
	var out []*types.ChapterVersion
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.Where("id IN ?", ids).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterVersionRepo) ListByChapterID(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.ChapterVersion, error) {
	t := dbc.DB(r.db)
	var out []*types.ChapterVersion
	if chapterID == uuid.Nil {
		return out, nil
	}
	if err := t.
		Where("chapter_id = ?", chapterID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterVersionRepo) LatestByChapterID(dbc dbctx.Context, chapterID uuid.UUID) (*types.ChapterVersion, error) {
	t := dbc.DB(r.db)
	if chapterID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.ChapterVersion
	if err := t.
		Where("chapter_id = ?", chapterID).
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *chapterVersionRepo) MaxSeq(dbc dbctx.Context, chapterID uuid.UUID) (int, error) {
	t := dbc.DB(r.db)
	if chapterID == uuid.Nil {
		return 0, fmt.Errorf("missing chapter_id")
	}
	var max *int
	if err := t.
		Model(&types.ChapterVersion{}).
		Where("chapter_id = ?", chapterID).
		Select("MAX(seq)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *chapterVersionRepo) ListNeedingVectorRetry(dbc dbctx.Context, limit int) ([]*types.ChapterVersion, error) {
	t := dbc.DB(r.db)
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ChapterVersion
	if err := t.
		Where("needs_vector_retry = ?", true).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SetNeedsVectorRetry touches only the ingestion flag. Returns false when no
// row matched.
func (r *chapterVersionRepo) SetNeedsVectorRetry(dbc dbctx.Context, id uuid.UUID, needsRetry bool) (bool, error) {
	t := dbc.DB(r.db)
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	res := t.
		Model(&types.ChapterVersion{}).
		Where("id = ?", id).
		Update("needs_vector_retry", needsRetry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func emptyJSONObject() datatypes.JSON {
	return datatypes.JSON([]byte("{}"))
}
