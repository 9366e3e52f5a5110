package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/domain/narrative"
)

var ChapterLedgerContract = Contract{
	Name:             "Narrative.ChapterLedger",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns version creation, review binding and sibling staling for one chapter as a single atomic unit.",
}

// ChapterLedger owns the version/review invariants of a chapter: content and
// hash never disagree, versions are never mutated, a review's hash is the
// hash of the text it judged, and staleness only latches on.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation,
// CodePreconditionFailed, CodeRetryable, CodeInternal.
type ChapterLedger interface {
	Aggregate

	// CreateVersion appends one version (optionally under a parent), binds
	// its reviews and stales diverged sibling reviews.
	CreateVersion(ctx context.Context, in CreateVersionInput) (CreateVersionResult, error)

	// ReplaceAllVersions persists one sibling per candidate from a fan-out
	// round and resets the chapter's selection. History is never deleted.
	ReplaceAllVersions(ctx context.Context, in ReplaceVersionsInput) (ReplaceVersionsResult, error)

	// AppendManualEdit records user-edited text as a new selected version.
	AppendManualEdit(ctx context.Context, in ManualEditInput) (ManualEditResult, error)

	// SelectVersion moves the chapter's selection pointer. Refuses empty text.
	SelectVersion(ctx context.Context, in SelectVersionInput) (SelectVersionResult, error)

	CreateReview(ctx context.Context, in CreateReviewInput) (*narrative.ChapterVersionReview, error)
	BulkCreateReviews(ctx context.Context, in BulkCreateReviewsInput) ([]*narrative.ChapterVersionReview, error)

	// MarkStaleForSiblings latches reviews of other versions of the chapter
	// whose bound hash differs from NewHash. Returns rows flipped.
	MarkStaleForSiblings(ctx context.Context, in MarkStaleInput) (int64, error)

	// MarkVectorRetry sets or clears the ingestion retry flag on a version.
	MarkVectorRetry(ctx context.Context, versionID uuid.UUID, needsRetry bool) error
}

// ReviewSpec describes one review to bind to a freshly created version.
type ReviewSpec struct {
	ReviewType string
	Payload    map[string]any
}

type CreateVersionInput struct {
	ChapterID       uuid.UUID
	Content         string
	ParentVersionID *uuid.UUID
	Label           string
	Metadata        map[string]any
	Reviews         []ReviewSpec
	// AwaitConfirm moves the chapter to waiting_for_confirm so the new
	// version can be selected. The selection pointer is left alone.
	AwaitConfirm bool
}

type CreateVersionResult struct {
	Version      *narrative.ChapterVersion
	Reviews      []*narrative.ChapterVersionReview
	StaleFlipped int64
}

// CandidateVersion is one fan-out candidate.
type CandidateVersion struct {
	Content  string
	Metadata map[string]any
	Reviews  []ReviewSpec
}

type ReplaceVersionsInput struct {
	ChapterID  uuid.UUID
	Candidates []CandidateVersion
}

type ReplaceVersionsResult struct {
	Versions     []*narrative.ChapterVersion
	Reviews      [][]*narrative.ChapterVersionReview
	StaleFlipped int64
}

type ManualEditInput struct {
	ChapterID uuid.UUID
	Content   string
	Note      string
}

type ManualEditResult struct {
	Version      *narrative.ChapterVersion       `json:"version"`
	Review       *narrative.ChapterVersionReview `json:"review"`
	StaleFlipped int64                           `json:"stale_flipped"`
	WordCount    int                             `json:"word_count"`
}

type SelectVersionInput struct {
	ChapterID uuid.UUID
	VersionID uuid.UUID
}

type SelectVersionResult struct {
	ChapterID uuid.UUID `json:"chapter_id"`
	VersionID uuid.UUID `json:"version_id"`
	WordCount int       `json:"word_count"`
	Status    string    `json:"status"`
}

type CreateReviewInput struct {
	VersionID  uuid.UUID
	ReviewType string
	Payload    map[string]any
}

type BulkCreateReviewsInput struct {
	VersionID uuid.UUID
	Reviews   []ReviewSpec
}

type MarkStaleInput struct {
	ChapterID        uuid.UUID
	NewHash          string
	ExcludeVersionID uuid.UUID
}
