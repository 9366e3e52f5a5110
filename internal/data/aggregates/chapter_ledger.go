package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quillgate/internal/data/repos"
	types "github.com/yungbote/quillgate/internal/domain"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/normalization"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
)

type ChapterLedgerDeps struct {
	Base BaseDeps

	Chapters repos.ChapterRepo
	Versions repos.ChapterVersionRepo
	Reviews  repos.ChapterVersionReviewRepo

	// Locker defaults to an in-process keyed mutex.
	Locker ChapterLocker
}

type chapterLedger struct {
	deps ChapterLedgerDeps
}

func NewChapterLedger(deps ChapterLedgerDeps) domainagg.ChapterLedger {
	deps.Base = deps.Base.withDefaults()
	deps.Base.Log = deps.Base.Log.With("aggregate", "ChapterLedger")
	if deps.Locker == nil {
		deps.Locker = NewLocalChapterLocker()
	}
	return &chapterLedger{deps: deps}
}

func (a *chapterLedger) Contract() domainagg.Contract {
	return domainagg.ChapterLedgerContract
}

func (a *chapterLedger) CreateVersion(ctx context.Context, in domainagg.CreateVersionInput) (domainagg.CreateVersionResult, error) {
	const op = "Narrative.ChapterLedger.CreateVersion"
	var out domainagg.CreateVersionResult
	if in.ChapterID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_id", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	meta, err := toJSON(in.Metadata)
	if err != nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "metadata is not JSON-encodable", err)
	}

	err = a.withChapterLock(ctx, op, in.ChapterID, func() error {
		return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			if _, err := a.lockChapter(dbc, op, in.ChapterID); err != nil {
				return err
			}
			attempt := 0
			if in.ParentVersionID != nil && *in.ParentVersionID != uuid.Nil {
				parent, err := a.versionOfChapter(dbc, op, in.ChapterID, *in.ParentVersionID)
				if err != nil {
					return err
				}
				attempt = parent.GenerationAttempt + 1
			}

			v, err := a.insertVersion(dbc, in.ChapterID, newVersion{
				content:  in.Content,
				parentID: in.ParentVersionID,
				label:    in.Label,
				attempt:  attempt,
				metadata: meta,
			})
			if err != nil {
				return err
			}
			reviews, err := a.bindReviews(dbc, v, in.Reviews)
			if err != nil {
				return err
			}

			flipped, err := a.deps.Reviews.MarkStaleForSiblings(dbc, in.ChapterID, v.ContentHash, v.ID)
			if err != nil {
				return err
			}
			if in.AwaitConfirm {
				if err := a.deps.Chapters.UpdateFields(dbc, in.ChapterID, map[string]interface{}{
					"status": types.ChapterStatusWaitingForConfirm,
				}); err != nil {
					return err
				}
			}
			out = domainagg.CreateVersionResult{Version: v, Reviews: reviews, StaleFlipped: flipped}
			return nil
		})
	})
	if err != nil {
		return domainagg.CreateVersionResult{}, err
	}
	a.deps.Base.Hooks.AddStaleReviews(op, out.StaleFlipped)
	return out, nil
}

func (a *chapterLedger) ReplaceAllVersions(ctx context.Context, in domainagg.ReplaceVersionsInput) (domainagg.ReplaceVersionsResult, error) {
	const op = "Narrative.ChapterLedger.ReplaceAllVersions"
	var out domainagg.ReplaceVersionsResult
	if in.ChapterID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_id", nil)
	}
	if len(in.Candidates) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no candidates", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	metas := make([]datatypes.JSON, len(in.Candidates))
	for i, c := range in.Candidates {
		m, err := toJSON(c.Metadata)
		if err != nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("candidate %d metadata is not JSON-encodable", i), err)
		}
		metas[i] = m
	}

	err := a.withChapterLock(ctx, op, in.ChapterID, func() error {
		return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			if _, err := a.lockChapter(dbc, op, in.ChapterID); err != nil {
				return err
			}

			versions := make([]*types.ChapterVersion, 0, len(in.Candidates))
			reviews := make([][]*types.ChapterVersionReview, 0, len(in.Candidates))
			keepIDs := make([]uuid.UUID, 0, len(in.Candidates))
			keepHashes := make([]string, 0, len(in.Candidates))
			for i, c := range in.Candidates {
				v, err := a.insertVersion(dbc, in.ChapterID, newVersion{
					content:  c.Content,
					label:    fmt.Sprintf("v%d", i+1),
					metadata: metas[i],
				})
				if err != nil {
					return err
				}
				rs, err := a.bindReviews(dbc, v, c.Reviews)
				if err != nil {
					return err
				}
				versions = append(versions, v)
				reviews = append(reviews, rs)
				keepIDs = append(keepIDs, v.ID)
				keepHashes = append(keepHashes, v.ContentHash)
			}

			flipped, err := a.deps.Reviews.MarkStaleExcept(dbc, in.ChapterID, keepHashes, keepIDs)
			if err != nil {
				return err
			}
			if err := a.deps.Chapters.UpdateFields(dbc, in.ChapterID, map[string]interface{}{
				"selected_version_id": nil,
				"status":              types.ChapterStatusWaitingForConfirm,
			}); err != nil {
				return err
			}
			out = domainagg.ReplaceVersionsResult{Versions: versions, Reviews: reviews, StaleFlipped: flipped}
			return nil
		})
	})
	if err != nil {
		return domainagg.ReplaceVersionsResult{}, err
	}
	a.deps.Base.Hooks.AddStaleReviews(op, out.StaleFlipped)
	return out, nil
}

func (a *chapterLedger) AppendManualEdit(ctx context.Context, in domainagg.ManualEditInput) (domainagg.ManualEditResult, error) {
	const op = "Narrative.ChapterLedger.AppendManualEdit"
	var out domainagg.ManualEditResult
	if in.ChapterID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_id", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	// A manual edit becomes the selection, so it is held to the same rule.
	if normalization.IsBlank(in.Content) {
		return out, domainagg.NewError(domainagg.CodePreconditionFailed, op, "manual edit is empty", domainagg.ErrEmptyContent)
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		note = "manual edit"
	}

	err := a.withChapterLock(ctx, op, in.ChapterID, func() error {
		return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			ch, err := a.lockChapter(dbc, op, in.ChapterID)
			if err != nil {
				return err
			}

			var parent *types.ChapterVersion
			if ch.SelectedVersionID != nil && *ch.SelectedVersionID != uuid.Nil {
				parent, err = a.deps.Versions.GetByID(dbc, *ch.SelectedVersionID)
				if err != nil {
					return err
				}
			}
			if parent == nil {
				parent, err = a.deps.Versions.LatestByChapterID(dbc, in.ChapterID)
				if err != nil {
					return err
				}
			}
			nv := newVersion{
				content:  in.Content,
				label:    types.VersionLabelManualEdit,
				metadata: mustJSON(map[string]any{"source": types.VersionSourceManualEdit}),
			}
			if parent != nil {
				nv.parentID = &parent.ID
				nv.attempt = parent.GenerationAttempt + 1
			}

			v, err := a.insertVersion(dbc, in.ChapterID, nv)
			if err != nil {
				return err
			}
			flipped, err := a.deps.Reviews.MarkStaleForSiblings(dbc, in.ChapterID, v.ContentHash, v.ID)
			if err != nil {
				return err
			}
			reviews, err := a.bindReviews(dbc, v, []domainagg.ReviewSpec{{
				ReviewType: types.ReviewTypeManualEdit,
				Payload:    map[string]any{"note": note},
			}})
			if err != nil {
				return err
			}

			words := wordCount(v.Content)
			if err := a.deps.Chapters.UpdateFields(dbc, in.ChapterID, map[string]interface{}{
				"selected_version_id": v.ID,
				"status":              types.ChapterStatusSuccessful,
				"word_count":          words,
			}); err != nil {
				return err
			}
			out = domainagg.ManualEditResult{Version: v, Review: reviews[0], StaleFlipped: flipped, WordCount: words}
			return nil
		})
	})
	if err != nil {
		return domainagg.ManualEditResult{}, err
	}
	a.deps.Base.Hooks.AddStaleReviews(op, out.StaleFlipped)
	return out, nil
}

func (a *chapterLedger) SelectVersion(ctx context.Context, in domainagg.SelectVersionInput) (domainagg.SelectVersionResult, error) {
	const op = "Narrative.ChapterLedger.SelectVersion"
	var out domainagg.SelectVersionResult
	if in.ChapterID == uuid.Nil || in.VersionID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "chapter_id and version_id are required", nil)
	}
	if err := a.configured(op); err != nil {
		return out, err
	}

	err := a.withChapterLock(ctx, op, in.ChapterID, func() error {
		return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			ch, err := a.lockChapter(dbc, op, in.ChapterID)
			if err != nil {
				return err
			}
			v, err := a.versionOfChapter(dbc, op, in.ChapterID, in.VersionID)
			if err != nil {
				return err
			}
			if err := RequireStatusAllowed(ch.Status, types.ChapterStatusWaitingForConfirm); err != nil {
				return err
			}
			if normalization.IsBlank(v.Content) {
				return domainagg.NewError(domainagg.CodePreconditionFailed, op, "selected version is empty", domainagg.ErrEmptyContent)
			}

			words := wordCount(v.Content)
			ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, types.Chapter{}.TableName(), in.ChapterID,
				[]string{types.ChapterStatusWaitingForConfirm},
				map[string]any{
					"selected_version_id": v.ID,
					"status":              types.ChapterStatusSuccessful,
					"word_count":          words,
					"updated_at":          time.Now().UTC(),
				})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "chapter status changed while selecting"); err != nil {
				return err
			}
			out = domainagg.SelectVersionResult{
				ChapterID: in.ChapterID,
				VersionID: v.ID,
				WordCount: words,
				Status:    types.ChapterStatusSuccessful,
			}
			return nil
		})
	})
	if err != nil {
		return domainagg.SelectVersionResult{}, err
	}
	return out, nil
}

func (a *chapterLedger) CreateReview(ctx context.Context, in domainagg.CreateReviewInput) (*types.ChapterVersionReview, error) {
	const op = "Narrative.ChapterLedger.CreateReview"
	rows, err := a.createReviews(ctx, op, in.VersionID, []domainagg.ReviewSpec{{
		ReviewType: in.ReviewType,
		Payload:    in.Payload,
	}})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (a *chapterLedger) BulkCreateReviews(ctx context.Context, in domainagg.BulkCreateReviewsInput) ([]*types.ChapterVersionReview, error) {
	const op = "Narrative.ChapterLedger.BulkCreateReviews"
	if len(in.Reviews) == 0 {
		return []*types.ChapterVersionReview{}, nil
	}
	return a.createReviews(ctx, op, in.VersionID, in.Reviews)
}

func (a *chapterLedger) createReviews(ctx context.Context, op string, versionID uuid.UUID, specs []domainagg.ReviewSpec) ([]*types.ChapterVersionReview, error) {
	if versionID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing version_id", nil)
	}
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out []*types.ChapterVersionReview
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		v, err := a.deps.Versions.GetByID(dbc, versionID)
		if err != nil {
			return err
		}
		if v == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("version not found: %s", versionID), nil)
		}
		out, err = a.bindReviews(dbc, v, specs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *chapterLedger) MarkStaleForSiblings(ctx context.Context, in domainagg.MarkStaleInput) (int64, error) {
	const op = "Narrative.ChapterLedger.MarkStaleForSiblings"
	if in.ChapterID == uuid.Nil {
		return 0, domainagg.NewError(domainagg.CodeValidation, op, "missing chapter_id", nil)
	}
	if strings.TrimSpace(in.NewHash) == "" {
		return 0, domainagg.NewError(domainagg.CodeValidation, op, "missing new hash", nil)
	}
	if err := a.configured(op); err != nil {
		return 0, err
	}
	var flipped int64
	err := a.withChapterLock(ctx, op, in.ChapterID, func() error {
		return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
			n, err := a.deps.Reviews.MarkStaleForSiblings(dbc, in.ChapterID, in.NewHash, in.ExcludeVersionID)
			flipped = n
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	a.deps.Base.Hooks.AddStaleReviews(op, flipped)
	return flipped, nil
}

func (a *chapterLedger) MarkVectorRetry(ctx context.Context, versionID uuid.UUID, needsRetry bool) error {
	const op = "Narrative.ChapterLedger.MarkVectorRetry"
	if versionID == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing version_id", nil)
	}
	if err := a.configured(op); err != nil {
		return err
	}
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Versions.SetNeedsVectorRetry(dbc, versionID, needsRetry)
		if err != nil {
			return err
		}
		if !ok {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("version not found: %s", versionID), nil)
		}
		return nil
	})
}

type newVersion struct {
	content  string
	parentID *uuid.UUID
	label    string
	attempt  int
	metadata datatypes.JSON
}

// insertVersion normalizes and hashes content and appends it at the next
// seq. Must run under the chapter lock.
func (a *chapterLedger) insertVersion(dbc dbctx.Context, chapterID uuid.UUID, nv newVersion) (*types.ChapterVersion, error) {
	seq, err := a.deps.Versions.MaxSeq(dbc, chapterID)
	if err != nil {
		return nil, err
	}
	seq++
	content := normalization.NormalizeContent(nv.content)
	label := strings.TrimSpace(nv.label)
	if label == "" {
		label = fmt.Sprintf("v%d", seq)
	}
	v := &types.ChapterVersion{
		ID:                uuid.New(),
		ChapterID:         chapterID,
		Seq:               seq,
		Content:           content,
		ContentHash:       normalization.ContentHash(content),
		ParentVersionID:   nv.parentID,
		Label:             label,
		GenerationAttempt: nv.attempt,
		Metadata:          nv.metadata,
	}
	if _, err := a.deps.Versions.Create(dbc, []*types.ChapterVersion{v}); err != nil {
		return nil, err
	}
	return v, nil
}

// bindReviews captures v's hash on every review; callers cannot supply one.
func (a *chapterLedger) bindReviews(dbc dbctx.Context, v *types.ChapterVersion, specs []domainagg.ReviewSpec) ([]*types.ChapterVersionReview, error) {
	if len(specs) == 0 {
		return []*types.ChapterVersionReview{}, nil
	}
	rows := make([]*types.ChapterVersionReview, 0, len(specs))
	for _, spec := range specs {
		payload, err := toJSON(spec.Payload)
		if err != nil {
			return nil, ValidationError("review payload is not JSON-encodable: " + err.Error())
		}
		reviewType := strings.TrimSpace(spec.ReviewType)
		if reviewType == "" {
			reviewType = types.ReviewTypeValidator
		}
		rows = append(rows, &types.ChapterVersionReview{
			ID:               uuid.New(),
			ChapterVersionID: v.ID,
			ContentHash:      v.ContentHash,
			ReviewType:       reviewType,
			Payload:          payload,
		})
	}
	return a.deps.Reviews.Create(dbc, rows)
}

func (a *chapterLedger) lockChapter(dbc dbctx.Context, op string, chapterID uuid.UUID) (*types.Chapter, error) {
	ch, err := a.deps.Chapters.LockByID(dbc, chapterID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.ID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("chapter not found: %s", chapterID), nil)
	}
	return ch, nil
}

func (a *chapterLedger) versionOfChapter(dbc dbctx.Context, op string, chapterID, versionID uuid.UUID) (*types.ChapterVersion, error) {
	v, err := a.deps.Versions.GetByID(dbc, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("version not found: %s", versionID), nil)
	}
	if v.ChapterID != chapterID {
		return nil, InvariantError(fmt.Sprintf("version %s does not belong to chapter %s", versionID, chapterID))
	}
	return v, nil
}

func (a *chapterLedger) withChapterLock(ctx context.Context, op string, chapterID uuid.UUID, fn func() error) error {
	unlock, err := a.deps.Locker.Lock(ctx, chapterID)
	if err != nil {
		return MapError(op, err)
	}
	defer unlock()
	return fn()
}

func (a *chapterLedger) configured(op string) error {
	if a.deps.Chapters == nil || a.deps.Versions == nil || a.deps.Reviews == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "chapter ledger repos not configured", nil)
	}
	return nil
}

// wordCount counts runes: chapters are mostly CJK, where whitespace does not
// separate words.
func wordCount(content string) int {
	return utf8.RuneCountInString(content)
}

func toJSON(m map[string]any) (datatypes.JSON, error) {
	if len(m) == 0 {
		return datatypes.JSON([]byte("{}")), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func mustJSON(m map[string]any) datatypes.JSON {
	b, _ := toJSON(m)
	return b
}
