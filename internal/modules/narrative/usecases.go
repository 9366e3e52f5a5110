package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/repos"
	types "github.com/yungbote/quillgate/internal/domain"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Chapters repos.ChapterRepo
	Versions repos.ChapterVersionRepo
	Reviews  repos.ChapterVersionReviewRepo
	Ledger   domainagg.ChapterLedger

	// Optional: generation is only wired when a provider is configured.
	Loop     *generation.Loop
	Contexts generation.ContextProvider
	Vectors  *generation.VectorRetrier
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

var ErrGenerationDisabled = fmt.Errorf("generation is not configured")

type (
	ManualEditInput  = domainagg.ManualEditInput
	ManualEditResult = domainagg.ManualEditResult

	SelectVersionInput  = domainagg.SelectVersionInput
	SelectVersionResult = domainagg.SelectVersionResult

	GenerateInput       = generation.RunInput
	GenerateFanOutInput = generation.FanOutInput
	GenerateOutcome     = generation.Outcome
	VectorRetryResult   = generation.RetryResult
	NarrativeContext    = validation.NarrativeContext
	ValidationResult    = validation.Result
)

// Validate runs the rule validator. It never touches the store.
func (u Usecases) Validate(text string, nc NarrativeContext) ValidationResult {
	return validation.Validate(text, nc)
}

// ValidateChapter validates text against the context registered for a chapter.
func (u Usecases) ValidateChapter(ctx context.Context, chapterID uuid.UUID, text string) (ValidationResult, error) {
	if u.deps.Contexts == nil {
		return ValidationResult{}, fmt.Errorf("no context provider configured")
	}
	nc, err := u.deps.Contexts.NarrativeContext(ctx, chapterID)
	if err != nil {
		return ValidationResult{}, err
	}
	return validation.Validate(text, nc), nil
}

type CreateChapterInput struct {
	ProjectID     uuid.UUID
	ChapterNumber int
	Title         string
}

func (u Usecases) CreateChapter(ctx context.Context, in CreateChapterInput) (*types.Chapter, error) {
	if u.deps.Chapters == nil {
		return nil, fmt.Errorf("chapter repo not configured")
	}
	if in.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("missing project_id")
	}
	if in.ChapterNumber <= 0 {
		return nil, fmt.Errorf("chapter_number must be positive")
	}
	rows, err := u.deps.Chapters.Create(dbctx.Context{Ctx: ctx}, []*types.Chapter{{
		ProjectID:     in.ProjectID,
		ChapterNumber: in.ChapterNumber,
		Title:         strings.TrimSpace(in.Title),
		Status:        types.ChapterStatusNotGenerated,
		Metadata:      datatypes.JSON([]byte("{}")),
	}})
	if err != nil {
		return nil, err
	}
	u.deps.Log.Info("chapter created", "chapter_id", rows[0].ID, "project_id", in.ProjectID, "chapter_number", in.ChapterNumber)
	return rows[0], nil
}

func (u Usecases) ManualEdit(ctx context.Context, in ManualEditInput) (ManualEditResult, error) {
	res, err := u.deps.Ledger.AppendManualEdit(ctx, in)
	if err != nil {
		return res, err
	}
	u.ingestFinalized(ctx, res.Version.ID)
	return res, nil
}

func (u Usecases) Select(ctx context.Context, in SelectVersionInput) (SelectVersionResult, error) {
	res, err := u.deps.Ledger.SelectVersion(ctx, in)
	if err != nil {
		return res, err
	}
	u.ingestFinalized(ctx, res.VersionID)
	return res, nil
}

// ingestFinalized is best effort; failures are flagged for RetryVectors.
func (u Usecases) ingestFinalized(ctx context.Context, versionID uuid.UUID) {
	if u.deps.Vectors == nil {
		return
	}
	res := u.deps.Vectors.Ingest(ctx, versionID)
	if res.Status == generation.RetryStatusFailed {
		u.deps.Log.Warn("finalized version not ingested", "version_id", versionID, "reason", res.Reason, "error", res.Err)
	}
}

func (u Usecases) Generate(ctx context.Context, in GenerateInput) (GenerateOutcome, error) {
	if u.deps.Loop == nil {
		return GenerateOutcome{}, ErrGenerationDisabled
	}
	return u.deps.Loop.Run(ctx, in), nil
}

func (u Usecases) GenerateCandidates(ctx context.Context, in GenerateFanOutInput) (GenerateOutcome, error) {
	if u.deps.Loop == nil {
		return GenerateOutcome{}, ErrGenerationDisabled
	}
	return u.deps.Loop.RunFanOut(ctx, in), nil
}

func (u Usecases) RetryVectors(ctx context.Context, limit int) ([]VectorRetryResult, error) {
	if u.deps.Vectors == nil {
		return nil, fmt.Errorf("vector retry not configured")
	}
	return u.deps.Vectors.RetryPending(ctx, limit)
}

type VersionHistory struct {
	Version  *types.ChapterVersion         `json:"version"`
	Reviews  []*types.ChapterVersionReview `json:"reviews"`
	Selected bool                          `json:"selected"`
}

type ChapterHistory struct {
	Chapter  *types.Chapter   `json:"chapter"`
	Versions []VersionHistory `json:"versions"`
}

// History lists a chapter's versions in insertion order with their reviews.
func (u Usecases) History(ctx context.Context, chapterID uuid.UUID) (ChapterHistory, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ch, err := u.deps.Chapters.GetByID(dbc, chapterID)
	if err != nil {
		return ChapterHistory{}, err
	}
	if ch == nil {
		return ChapterHistory{}, domainagg.NewError(domainagg.CodeNotFound, "Narrative.History", fmt.Sprintf("chapter not found: %s", chapterID), nil)
	}
	versions, err := u.deps.Versions.ListByChapterID(dbc, chapterID)
	if err != nil {
		return ChapterHistory{}, err
	}
	ids := make([]uuid.UUID, 0, len(versions))
	for _, v := range versions {
		ids = append(ids, v.ID)
	}
	reviews, err := u.deps.Reviews.ListByVersionIDs(dbc, ids)
	if err != nil {
		return ChapterHistory{}, err
	}
	byVersion := map[uuid.UUID][]*types.ChapterVersionReview{}
	for _, r := range reviews {
		byVersion[r.ChapterVersionID] = append(byVersion[r.ChapterVersionID], r)
	}

	out := ChapterHistory{Chapter: ch, Versions: make([]VersionHistory, 0, len(versions))}
	for _, v := range versions {
		out.Versions = append(out.Versions, VersionHistory{
			Version:  v,
			Reviews:  byVersion[v.ID],
			Selected: ch.SelectedVersionID != nil && *ch.SelectedVersionID == v.ID,
		})
	}
	return out, nil
}
