package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/normalization"
)

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, number int) *types.Chapter {
	tb.Helper()
	ch := &types.Chapter{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		ChapterNumber: number,
		Title:         "chapter",
		Status:        types.ChapterStatusNotGenerated,
		Metadata:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(ch).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return ch
}

// SeedVersion inserts a version row directly, bypassing the ledger. The hash
// is still derived from content.
func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, chapterID uuid.UUID, seq int, content string) *types.ChapterVersion {
	tb.Helper()
	norm := normalization.NormalizeContent(content)
	v := &types.ChapterVersion{
		ID:          uuid.New(),
		ChapterID:   chapterID,
		Seq:         seq,
		Content:     norm,
		ContentHash: normalization.ContentHash(norm),
		Metadata:    datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}

func SeedReview(tb testing.TB, ctx context.Context, tx *gorm.DB, v *types.ChapterVersion) *types.ChapterVersionReview {
	tb.Helper()
	r := &types.ChapterVersionReview{
		ID:               uuid.New(),
		ChapterVersionID: v.ID,
		ContentHash:      v.ContentHash,
		ReviewType:       types.ReviewTypeValidator,
		Payload:          datatypes.JSON([]byte(`{"ok":true}`)),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed review: %v", err)
	}
	return r
}
