package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/quillgate/internal/domain"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/normalization"
	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type State string

const (
	StateDrafting   State = "DRAFTING"
	StateValidating State = "VALIDATING"
	StateAccepted   State = "ACCEPTED"
	StateRetrying   State = "RETRYING"
	StateFailed     State = "FAILED"
)

// Reason explains a FAILED outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMaxRetriesExhausted Reason = "max_retries_exhausted"
	ReasonGenerationFailure   Reason = "generation_failure"
	ReasonGenerationTimeout   Reason = "generation_timeout"
	ReasonPersistenceFailure  Reason = "persistence_failure"
	ReasonContextUnavailable  Reason = "context_unavailable"
	ReasonInvalidRequest      Reason = "invalid_request"
)

const (
	modeRetry  = "retry"
	modeFanOut = "fanout"
)

// Candidate is one generated text and the verdict it received.
type Candidate struct {
	Index   int
	Text    string
	Hash    string
	Result  validation.Result
	Version *types.ChapterVersion
}

// Outcome is the terminal state of one run. FAILED outcomes carry Reason and,
// when any draft was validated, LastResult.
type Outcome struct {
	State      State
	Reason     Reason
	LastResult *validation.Result
	Version    *types.ChapterVersion
	Review     *types.ChapterVersionReview
	Attempts   int
	Candidates []Candidate
	Err        error
}

func (o Outcome) Accepted() bool { return o.State == StateAccepted }

type RunInput struct {
	ChapterID    uuid.UUID
	SystemPrompt string
	Conversation []Message
	// ParentVersionID links the accepted draft into the version tree.
	ParentVersionID *uuid.UUID
	Metadata        map[string]any
}

type FanOutInput struct {
	ChapterID    uuid.UUID
	SystemPrompt string
	Conversation []Message
	// Candidates overrides Config.FanOut when > 0.
	Candidates int
	Metadata   map[string]any
}

type LoopDeps struct {
	Log      *logger.Logger
	Provider Provider
	Ledger   domainagg.ChapterLedger
	Contexts ContextProvider
	Config   Config
}

type Loop struct {
	log      *logger.Logger
	provider Provider
	ledger   domainagg.ChapterLedger
	contexts ContextProvider
	cfg      Config
}

func NewLoop(deps LoopDeps) (*Loop, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("generation provider required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("chapter ledger required")
	}
	if deps.Contexts == nil {
		return nil, fmt.Errorf("context provider required")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Loop{
		log:      log.With("service", "GenerationLoop"),
		provider: deps.Provider,
		ledger:   deps.Ledger,
		contexts: deps.Contexts,
		cfg:      deps.Config,
	}, nil
}

// Run drafts until the validator accepts or MaxAttempts is spent. Each
// retry carries the previous verdict's directive appended to the system
// prompt. Only the accepted draft is persisted.
func (l *Loop) Run(ctx context.Context, in RunInput) (out Outcome) {
	ctx, span := observability.StartSpan(ctx, "generation.Loop.Run",
		attribute.String("chapter_id", in.ChapterID.String()),
		attribute.Int("max_attempts", l.cfg.MaxAttempts),
	)
	defer func() {
		span.SetAttributes(attribute.String("state", string(out.State)), attribute.String("reason", string(out.Reason)))
		observability.EndSpan(span, out.Err)
		l.observe(modeRetry, out)
	}()

	if in.ChapterID == uuid.Nil {
		return failed(ReasonInvalidRequest, fmt.Errorf("missing chapter_id"))
	}
	nc, err := l.contexts.NarrativeContext(ctx, in.ChapterID)
	if err != nil {
		return failed(ReasonContextUnavailable, err)
	}
	log := l.log.With("chapter_id", in.ChapterID)

	var (
		directive string
		last      *validation.Result
	)
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt
		log.Debug("drafting", "state", StateDrafting, "attempt", attempt, "has_directive", directive != "")

		text, err := l.generate(ctx, withDirective(in.SystemPrompt, directive), in.Conversation)
		if err != nil {
			log.Warn("generation failed", "attempt", attempt, "error", err)
			o := failed(generationReason(err), err)
			o.Attempts, o.LastResult = attempt, last
			return o
		}

		res := l.validate(text, nc)
		last = &res
		if res.Action != validation.ActionAccept {
			directive = res.RetryDirective
			log.Info("draft sent back", "state", StateRetrying, "attempt", attempt, "codes", res.Codes())
			continue
		}

		payload, err := res.Payload()
		if err != nil {
			o := failed(ReasonPersistenceFailure, err)
			o.Attempts, o.LastResult = attempt, last
			return o
		}
		meta := mergeMeta(in.Metadata, map[string]any{
			"source":           types.VersionSourceGenerated,
			"attempts":         attempt,
			"validator_action": string(res.Action),
		})
		created, err := l.ledger.CreateVersion(ctx, domainagg.CreateVersionInput{
			ChapterID:       in.ChapterID,
			Content:         text,
			ParentVersionID: in.ParentVersionID,
			Metadata:        meta,
			Reviews:         []domainagg.ReviewSpec{{ReviewType: types.ReviewTypeValidator, Payload: payload}},
			AwaitConfirm:    true,
		})
		if err != nil {
			log.Error("persist accepted draft failed", "attempt", attempt, "error", err)
			o := failed(ReasonPersistenceFailure, err)
			o.Attempts, o.LastResult = attempt, last
			return o
		}

		out.State = StateAccepted
		out.LastResult = last
		out.Version = created.Version
		if len(created.Reviews) > 0 {
			out.Review = created.Reviews[0]
		}
		out.Candidates = []Candidate{{Index: 0, Text: created.Version.Content, Hash: created.Version.ContentHash, Result: res, Version: created.Version}}
		log.Info("draft accepted", "attempt", attempt, "version_id", created.Version.ID, "stale_flipped", created.StaleFlipped)
		return out
	}

	// The loop is the caller that enforces the hard cap, so the final
	// verdict is reported as reject.
	if last != nil {
		rejected := *last
		rejected.OK = false
		rejected.Action = validation.ActionReject
		last = &rejected
	}
	log.Warn("retries exhausted", "attempts", out.Attempts)
	o := failed(ReasonMaxRetriesExhausted, nil)
	o.Attempts, o.LastResult = out.Attempts, last
	return o
}

// RunFanOut generates N independent candidates, validates each and persists
// all of them as siblings in one ledger write. Verdicts are advisory here:
// the chapter waits for a manual selection.
func (l *Loop) RunFanOut(ctx context.Context, in FanOutInput) (out Outcome) {
	n := in.Candidates
	if n <= 0 {
		n = l.cfg.FanOut
	}
	n = min(n, MaxFanOut)
	ctx, span := observability.StartSpan(ctx, "generation.Loop.RunFanOut",
		attribute.String("chapter_id", in.ChapterID.String()),
		attribute.Int("candidates", n),
	)
	defer func() {
		span.SetAttributes(attribute.String("state", string(out.State)), attribute.String("reason", string(out.Reason)))
		observability.EndSpan(span, out.Err)
		l.observe(modeFanOut, out)
	}()

	if in.ChapterID == uuid.Nil {
		return failed(ReasonInvalidRequest, fmt.Errorf("missing chapter_id"))
	}
	nc, err := l.contexts.NarrativeContext(ctx, in.ChapterID)
	if err != nil {
		return failed(ReasonContextUnavailable, err)
	}
	log := l.log.With("chapter_id", in.ChapterID, "candidates", n)

	texts := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.FanOutConcurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			text, err := l.generate(gctx, in.SystemPrompt, in.Conversation)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("fan-out generation failed", "error", err)
		o := failed(generationReason(err), err)
		o.Attempts = 1
		return o
	}

	cands := make([]Candidate, n)
	specs := make([]domainagg.CandidateVersion, n)
	for i, text := range texts {
		res := l.validate(text, nc)
		payload, err := res.Payload()
		if err != nil {
			o := failed(ReasonPersistenceFailure, err)
			o.Attempts = 1
			return o
		}
		cands[i] = Candidate{Index: i, Text: text, Hash: normalization.ContentHash(text), Result: res}
		specs[i] = domainagg.CandidateVersion{
			Content: text,
			Metadata: mergeMeta(in.Metadata, map[string]any{
				"source":           types.VersionSourceGenerated,
				"candidate":        i + 1,
				"validator_action": string(res.Action),
			}),
			Reviews: []domainagg.ReviewSpec{{ReviewType: types.ReviewTypeValidator, Payload: payload}},
		}
	}

	replaced, err := l.ledger.ReplaceAllVersions(ctx, domainagg.ReplaceVersionsInput{ChapterID: in.ChapterID, Candidates: specs})
	if err != nil {
		log.Error("persist fan-out round failed", "error", err)
		o := failed(ReasonPersistenceFailure, err)
		o.Attempts, o.Candidates = 1, cands
		return o
	}
	for i := range cands {
		if i < len(replaced.Versions) {
			cands[i].Version = replaced.Versions[i]
		}
	}

	out.State = StateAccepted
	out.Attempts = 1
	out.Candidates = cands
	best := pickAdvisory(cands)
	out.LastResult = &cands[best].Result
	out.Version = cands[best].Version
	log.Info("fan-out round persisted", "accepted", countAccepted(cands), "stale_flipped", replaced.StaleFlipped)
	return out
}

func (l *Loop) generate(ctx context.Context, system string, conv []Message) (string, error) {
	actx := ctx
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	text, err := l.provider.Generate(actx, GenerateRequest{
		SystemPrompt: system,
		Conversation: append([]Message(nil), conv...),
		Temperature:  l.cfg.temperature(),
		Timeout:      l.cfg.Timeout,
	})
	if err != nil {
		// A provider that ignores ctx still reports the deadline.
		if actx.Err() != nil && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return "", err
	}
	if normalization.IsBlank(text) {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func (l *Loop) validate(text string, nc validation.NarrativeContext) validation.Result {
	res := validation.Validate(text, nc)
	m := observability.Current()
	m.IncValidationResult(string(res.Action))
	for _, e := range res.Errors {
		m.IncValidationFinding(string(e.Code), string(e.Severity))
	}
	return res
}

func (l *Loop) observe(mode string, out Outcome) {
	observability.Current().ObserveLoopOutcome(mode, string(out.State), string(out.Reason), out.Attempts)
}

func failed(reason Reason, err error) Outcome {
	return Outcome{State: StateFailed, Reason: reason, Err: err}
}

func generationReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonGenerationTimeout
	}
	return ReasonGenerationFailure
}

func withDirective(base, directive string) string {
	directive = strings.TrimSpace(directive)
	if directive == "" {
		return base
	}
	if strings.TrimSpace(base) == "" {
		return directive
	}
	return base + "\n\n" + directive
}

func mergeMeta(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra)+1)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	out["generated_at"] = time.Now().UTC().Format(time.RFC3339)
	return out
}

// pickAdvisory returns the first accepted candidate, else the first one.
func pickAdvisory(cands []Candidate) int {
	for i, c := range cands {
		if c.Result.Action == validation.ActionAccept {
			return i
		}
	}
	return 0
}

func countAccepted(cands []Candidate) int {
	n := 0
	for _, c := range cands {
		if c.Result.Action == validation.ActionAccept {
			n++
		}
	}
	return n
}
