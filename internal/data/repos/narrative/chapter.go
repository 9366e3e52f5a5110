package narrative

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quillgate/internal/domain"
	domainnarrative "github.com/yungbote/quillgate/internal/domain/narrative"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type ChapterRepo interface {
	Create(dbc dbctx.Context, rows []*types.Chapter) ([]*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	GetByProjectAndNumber(dbc dbctx.Context, projectID uuid.UUID, number int) (*types.Chapter, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Chapter, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// Delete removes the chapter together with its versions and reviews.
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) Create(dbc dbctx.Context, rows []*types.Chapter) ([]*types.Chapter, error) {
	t := dbc.DB(r.db)
	if len(rows) == 0 {
		return []*types.Chapter{}, nil
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.Status == "" {
			row.Status = types.ChapterStatusNotGenerated
		}
		if !domainnarrative.IsKnownChapterStatus(row.Status) {
			return nil, fmt.Errorf("unknown chapter status %q", row.Status)
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

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	t := dbc.DB(r.db)
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*types.Chapter
	if err := t.Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *chapterRepo) GetByProjectAndNumber(dbc dbctx.Context, projectID uuid.UUID, number int) (*types.Chapter, error) {
	t := dbc.DB(r.db)
	if projectID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.Chapter
	if err := t.
		Where("project_id = ? AND chapter_number = ?", projectID, number).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *chapterRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Chapter, error) {
	t := dbc.DB(r.db)
	var out []*types.Chapter
	if projectID == uuid.Nil {
		return out, nil
	}
	if err := t.
		Where("project_id = ?", projectID).
		Order("chapter_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LockByID takes a row lock for the rest of dbc.Tx. Drivers without
// SELECT ... FOR UPDATE (sqlite) ignore the clause.
func (r *chapterRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	var out types.Chapter
	if err := dbc.DB(nil).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chapterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.DB(r.db)
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	if st, ok := updates["status"].(string); ok && !domainnarrative.IsKnownChapterStatus(st) {
		return fmt.Errorf("unknown chapter status %q", st)
	}
	return t.
		Model(&types.Chapter{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *chapterRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	del := func(tx *gorm.DB) error {
		versionIDs := tx.Model(&types.ChapterVersion{}).Select("id").Where("chapter_id = ?", id)
		if err := tx.Where("chapter_version_id IN (?)", versionIDs).Delete(&types.ChapterVersionReview{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chapter_id = ?", id).Delete(&types.ChapterVersion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&types.Chapter{}).Error
	}
	if dbc.InTx() {
		return del(dbc.DB(nil))
	}
	return dbc.DB(r.db).Transaction(del)
}
