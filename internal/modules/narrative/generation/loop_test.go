package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/aggregates"
	aggtestutil "github.com/yungbote/quillgate/internal/data/aggregates/testutil"
	"github.com/yungbote/quillgate/internal/data/repos"
	"github.com/yungbote/quillgate/internal/data/repos/testutil"
	types "github.com/yungbote/quillgate/internal/domain"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
)

const (
	// Lowercase latin text yields no name candidates, so every check passes.
	cleanDraft = "the lamp flickered while he waited by the door."
	leakyDraft = "他并不知道的是，远处有人窥视。"
)

type reply struct {
	text string
	err  error
}

type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   []generation.GenerateRequest
}

func (p *scriptedProvider) Generate(ctx context.Context, req generation.GenerateRequest) (string, error) {
	p.mu.Lock()
	idx := len(p.calls)
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if idx >= len(p.replies) {
		return "", errors.New("script exhausted")
	}
	r := p.replies[idx]
	return r.text, r.err
}

func (p *scriptedProvider) requests() []generation.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]generation.GenerateRequest(nil), p.calls...)
}

type loopFixture struct {
	db       *gorm.DB
	ledger   domainagg.ChapterLedger
	versions repos.ChapterVersionRepo
	reviews  repos.ChapterVersionReviewRepo
	chapters repos.ChapterRepo
	chapter  *types.Chapter
}

func povContext() validation.NarrativeContext {
	return validation.NarrativeContext{POV: validation.POVConfig{Name: "张三"}}
}

func newLoopFixture(t *testing.T, runner aggregates.TxRunner) *loopFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	if r, ok := runner.(*aggtestutil.InjectedTxRunner); ok && r.DB == nil {
		r.DB = db
	}
	f := &loopFixture{
		db:       db,
		chapters: repos.NewChapterRepo(db, log),
		versions: repos.NewChapterVersionRepo(db, log),
		reviews:  repos.NewChapterVersionReviewRepo(db, log),
	}
	f.ledger = aggregates.NewChapterLedger(aggregates.ChapterLedgerDeps{
		Base:     aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		Chapters: f.chapters,
		Versions: f.versions,
		Reviews:  f.reviews,
	})
	f.chapter = testutil.SeedChapter(t, context.Background(), db, 1)
	return f
}

func (f *loopFixture) loop(t *testing.T, p generation.Provider, cfg generation.Config) *generation.Loop {
	t.Helper()
	l, err := generation.NewLoop(generation.LoopDeps{
		Log:      testutil.Logger(t),
		Provider: p,
		Ledger:   f.ledger,
		Contexts: generation.NewStaticContextProvider(povContext()),
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return l
}

func (f *loopFixture) versionsOf(t *testing.T) []*types.ChapterVersion {
	t.Helper()
	rows, err := f.versions.ListByChapterID(dbctx.Context{Ctx: context.Background()}, f.chapter.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	return rows
}

func (f *loopFixture) reloadChapter(t *testing.T) *types.Chapter {
	t.Helper()
	ch, err := f.chapters.GetByID(dbctx.Context{Ctx: context.Background()}, f.chapter.ID)
	if err != nil || ch == nil {
		t.Fatalf("reload chapter: %v", err)
	}
	return ch
}

func payloadOf(t *testing.T, r *types.ChapterVersionReview) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(r.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return out
}

func TestNewLoopRequiresDeps(t *testing.T) {
	if _, err := generation.NewLoop(generation.LoopDeps{Config: generation.DefaultConfig()}); err == nil {
		t.Fatalf("expected error without provider")
	}
	f := newLoopFixture(t, nil)
	_, err := generation.NewLoop(generation.LoopDeps{
		Provider: &scriptedProvider{},
		Ledger:   f.ledger,
		Contexts: generation.NewStaticContextProvider(povContext()),
		Config:   generation.Config{MaxAttempts: 0, FanOut: 1, FanOutConcurrency: 1},
	})
	if err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestRunAcceptsFirstDraft(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{
		ChapterID:    f.chapter.ID,
		SystemPrompt: "write chapter one",
	})

	if out.State != generation.StateAccepted || out.Reason != generation.ReasonNone || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Attempts != 1 || out.Version == nil || out.Review == nil {
		t.Fatalf("expected one persisted attempt, got %+v", out)
	}
	if out.Review.ContentHash != out.Version.ContentHash {
		t.Fatalf("review hash %s != version hash %s", out.Review.ContentHash, out.Version.ContentHash)
	}
	if got := payloadOf(t, out.Review)["action"]; got != "accept" {
		t.Fatalf("review payload action=%v", got)
	}
	if ch := f.reloadChapter(t); ch.Status != types.ChapterStatusWaitingForConfirm {
		t.Fatalf("chapter status=%s", ch.Status)
	}
	reqs := p.requests()
	if len(reqs) != 1 || reqs[0].SystemPrompt != "write chapter one" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	if reqs[0].Temperature == nil || *reqs[0].Temperature != 0.7 {
		t.Fatalf("temperature not forwarded: %+v", reqs[0].Temperature)
	}

	// The accepted draft is selectable.
	sel, err := f.ledger.SelectVersion(context.Background(), domainagg.SelectVersionInput{ChapterID: f.chapter.ID, VersionID: out.Version.ID})
	if err != nil {
		t.Fatalf("SelectVersion: %v", err)
	}
	if sel.Status != types.ChapterStatusSuccessful {
		t.Fatalf("status after select=%s", sel.Status)
	}
}

func TestRunRetriesWithDirective(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{text: leakyDraft}, {text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{
		ChapterID:    f.chapter.ID,
		SystemPrompt: "base",
		Conversation: []generation.Message{{Role: generation.RoleUser, Content: "continue"}},
	})
	if out.State != generation.StateAccepted || out.Attempts != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	reqs := p.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(reqs))
	}
	want := validation.Validate(leakyDraft, povContext()).RetryDirective
	if want == "" {
		t.Fatalf("leaky draft produced no directive")
	}
	if reqs[1].SystemPrompt != "base\n\n"+want {
		t.Fatalf("retry prompt=%q", reqs[1].SystemPrompt)
	}
	if len(reqs[1].Conversation) != 1 || reqs[1].Conversation[0].Content != "continue" {
		t.Fatalf("conversation not carried: %+v", reqs[1].Conversation)
	}

	// Rejected drafts never reach the ledger.
	vs := f.versionsOf(t)
	if len(vs) != 1 || vs[0].ID != out.Version.ID {
		t.Fatalf("expected only the accepted draft, got %d versions", len(vs))
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	f := newLoopFixture(t, nil)
	cfg := generation.DefaultConfig()
	cfg.MaxAttempts = 2
	p := &scriptedProvider{replies: []reply{{text: leakyDraft}, {text: leakyDraft}, {text: cleanDraft}}}
	out := f.loop(t, p, cfg).Run(context.Background(), generation.RunInput{ChapterID: f.chapter.ID})

	if out.State != generation.StateFailed || out.Reason != generation.ReasonMaxRetriesExhausted {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Attempts != 2 || len(p.requests()) != 2 {
		t.Fatalf("attempts=%d calls=%d", out.Attempts, len(p.requests()))
	}
	if out.LastResult == nil || out.LastResult.Action != validation.ActionReject || out.LastResult.OK {
		t.Fatalf("expected reject verdict, got %+v", out.LastResult)
	}
	if !out.LastResult.HasCode(validation.CodePOVLeak) {
		t.Fatalf("last result lost its findings: %+v", out.LastResult)
	}
	if vs := f.versionsOf(t); len(vs) != 0 {
		t.Fatalf("expected no versions, got %d", len(vs))
	}
}

func TestRunGenerationFailureIsNotRetried(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{err: errors.New("upstream 502")}, {text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{ChapterID: f.chapter.ID})

	if out.State != generation.StateFailed || out.Reason != generation.ReasonGenerationFailure {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "upstream 502") {
		t.Fatalf("err=%v", out.Err)
	}
	if out.LastResult != nil {
		t.Fatalf("no draft was validated, got %+v", out.LastResult)
	}
	if len(p.requests()) != 1 {
		t.Fatalf("provider retried: %d calls", len(p.requests()))
	}
}

func TestRunBlankDraftIsGenerationFailure(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{text: " \n\ufeff "}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{ChapterID: f.chapter.ID})
	if out.Reason != generation.ReasonGenerationFailure || !errors.Is(out.Err, generation.ErrEmptyGeneration) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRunGenerationTimeout(t *testing.T) {
	f := newLoopFixture(t, nil)
	cfg := generation.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := generation.ProviderFunc(func(ctx context.Context, req generation.GenerateRequest) (string, error) {
		if req.Timeout != cfg.Timeout {
			t.Errorf("timeout not forwarded: %v", req.Timeout)
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	out := f.loop(t, p, cfg).Run(context.Background(), generation.RunInput{ChapterID: f.chapter.ID})
	if out.State != generation.StateFailed || out.Reason != generation.ReasonGenerationTimeout {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	runner := &aggtestutil.InjectedTxRunner{FailCommit: errors.New("commit failed")}
	f := newLoopFixture(t, runner)
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{ChapterID: f.chapter.ID})

	if out.State != generation.StateFailed || out.Reason != generation.ReasonPersistenceFailure {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.LastResult == nil || out.LastResult.Action != validation.ActionAccept {
		t.Fatalf("accepted verdict should be reported, got %+v", out.LastResult)
	}
	if vs := f.versionsOf(t); len(vs) != 0 {
		t.Fatalf("rolled back write left %d versions", len(vs))
	}
}

func TestRunUnknownChapter(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{ChapterID: uuid.New()})
	if out.Reason != generation.ReasonPersistenceFailure || !domainagg.IsCode(out.Err, domainagg.CodeNotFound) {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	out = f.loop(t, p, generation.DefaultConfig()).Run(context.Background(), generation.RunInput{})
	if out.Reason != generation.ReasonInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", out)
	}
}

func TestRunFanOutPersistsEveryCandidate(t *testing.T) {
	f := newLoopFixture(t, nil)
	ctx := context.Background()
	// An earlier accepted draft whose review must go stale.
	prior, err := f.ledger.CreateVersion(ctx, domainagg.CreateVersionInput{
		ChapterID: f.chapter.ID,
		Content:   "an older draft of the chapter.",
		Reviews:   []domainagg.ReviewSpec{{Payload: map[string]any{"ok": true}}},
	})
	if err != nil {
		t.Fatalf("seed prior version: %v", err)
	}

	cfg := generation.DefaultConfig()
	cfg.FanOut = 3
	cfg.FanOutConcurrency = 2
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}, {text: leakyDraft}, {text: cleanDraft + " the night grew quiet."}}}
	out := f.loop(t, p, cfg).RunFanOut(ctx, generation.FanOutInput{ChapterID: f.chapter.ID, SystemPrompt: "base"})

	if out.State != generation.StateAccepted || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(out.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(out.Candidates))
	}
	accepted := 0
	for i, c := range out.Candidates {
		if c.Version == nil {
			t.Fatalf("candidate %d not persisted", i)
		}
		if c.Version.Label != []string{"v1", "v2", "v3"}[i] || c.Version.ParentVersionID != nil {
			t.Fatalf("candidate %d label=%s parent=%v", i, c.Version.Label, c.Version.ParentVersionID)
		}
		if c.Hash != c.Version.ContentHash {
			t.Fatalf("candidate %d hash mismatch", i)
		}
		rs := func() []*types.ChapterVersionReview {
			rows, err := f.reviews.ListByVersionIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{c.Version.ID})
			if err != nil {
				t.Fatalf("list reviews: %v", err)
			}
			return rows
		}()
		if len(rs) != 1 || rs[0].ReviewType != types.ReviewTypeValidator || rs[0].IsStale {
			t.Fatalf("candidate %d reviews: %+v", i, rs)
		}
		if got := payloadOf(t, rs[0])["action"]; got != string(c.Result.Action) {
			t.Fatalf("candidate %d payload action=%v result=%s", i, got, c.Result.Action)
		}
		if c.Result.Action == validation.ActionAccept {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("expected 2 accepted candidates, got %d", accepted)
	}
	if out.LastResult == nil || out.LastResult.Action != validation.ActionAccept {
		t.Fatalf("advisory result should be an accepted candidate: %+v", out.LastResult)
	}

	ch := f.reloadChapter(t)
	if ch.SelectedVersionID != nil || ch.Status != types.ChapterStatusWaitingForConfirm {
		t.Fatalf("chapter after fan-out: selected=%v status=%s", ch.SelectedVersionID, ch.Status)
	}
	old, err := f.reviews.ListByVersionIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{prior.Version.ID})
	if err != nil || len(old) != 1 || !old[0].IsStale {
		t.Fatalf("prior review should be stale: %+v err=%v", old, err)
	}
	if len(f.versionsOf(t)) != 4 {
		t.Fatalf("history must be kept")
	}
}

func TestRunFanOutFailureWritesNothing(t *testing.T) {
	f := newLoopFixture(t, nil)
	cfg := generation.DefaultConfig()
	cfg.FanOut = 3
	cfg.FanOutConcurrency = 1
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}, {err: errors.New("boom")}, {text: cleanDraft}}}
	out := f.loop(t, p, cfg).RunFanOut(context.Background(), generation.FanOutInput{ChapterID: f.chapter.ID})

	if out.State != generation.StateFailed || out.Reason != generation.ReasonGenerationFailure {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if vs := f.versionsOf(t); len(vs) != 0 {
		t.Fatalf("expected no versions, got %d", len(vs))
	}
}

func TestRunFanOutCandidatesOverride(t *testing.T) {
	f := newLoopFixture(t, nil)
	p := &scriptedProvider{replies: []reply{{text: cleanDraft}, {text: cleanDraft}}}
	out := f.loop(t, p, generation.DefaultConfig()).RunFanOut(context.Background(), generation.FanOutInput{
		ChapterID:  f.chapter.ID,
		Candidates: 2,
	})
	if out.State != generation.StateAccepted || len(out.Candidates) != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	// Identical texts share a hash, so neither review is staled by the other.
	for _, c := range out.Candidates {
		rows, err := f.reviews.ListByVersionIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{c.Version.ID})
		if err != nil || len(rows) != 1 || rows[0].IsStale {
			t.Fatalf("review of %s: %+v err=%v", c.Version.Label, rows, err)
		}
	}
}

func TestRunFanOutClampsCandidates(t *testing.T) {
	f := newLoopFixture(t, nil)
	replies := make([]reply, generation.MaxFanOut+4)
	for i := range replies {
		replies[i] = reply{text: cleanDraft}
	}
	p := &scriptedProvider{replies: replies}
	out := f.loop(t, p, generation.DefaultConfig()).RunFanOut(context.Background(), generation.FanOutInput{
		ChapterID:  f.chapter.ID,
		Candidates: generation.MaxFanOut + 4,
	})
	if out.State != generation.StateAccepted || len(out.Candidates) != generation.MaxFanOut {
		t.Fatalf("unexpected outcome: state=%s candidates=%d err=%v", out.State, len(out.Candidates), out.Err)
	}
	if calls := len(p.requests()); calls != generation.MaxFanOut {
		t.Fatalf("provider calls: want %d got %d", generation.MaxFanOut, calls)
	}
}
