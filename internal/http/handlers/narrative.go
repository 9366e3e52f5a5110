package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/http/response"
	"github.com/yungbote/quillgate/internal/modules/narrative"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/platform/ctxutil"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type NarrativeHandler struct {
	log       *logger.Logger
	narrative narrative.Usecases
}

func NewNarrativeHandler(log *logger.Logger, uc narrative.Usecases) *NarrativeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &NarrativeHandler{log: log.With("handler", "NarrativeHandler"), narrative: uc}
}

type validateRequest struct {
	Text    string                      `json:"text"`
	Context validation.NarrativeContext `json:"context"`
}

// POST /api/validate
func (h *NarrativeHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := generation.ValidateContext(req.Context); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_context", err)
		return
	}
	response.RespondOK(c, gin.H{"result": h.narrative.Validate(req.Text, req.Context)})
}

type createChapterRequest struct {
	ProjectID     uuid.UUID `json:"project_id" binding:"required"`
	ChapterNumber int       `json:"chapter_number" binding:"required,min=1"`
	Title         string    `json:"title"`
}

// POST /api/chapters
func (h *NarrativeHandler) CreateChapter(c *gin.Context) {
	var req createChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ch, err := h.narrative.CreateChapter(c.Request.Context(), narrative.CreateChapterInput{
		ProjectID:     req.ProjectID,
		ChapterNumber: req.ChapterNumber,
		Title:         req.Title,
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "create_chapter_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"chapter": ch})
}

// GET /api/chapters/:id/history
func (h *NarrativeHandler) History(c *gin.Context) {
	chapterID, ok := chapterParam(c)
	if !ok {
		return
	}
	hist, err := h.narrative.History(c.Request.Context(), chapterID)
	if err != nil {
		response.RespondLedgerError(c, "history_failed", err)
		return
	}
	response.RespondOK(c, hist)
}

type validateChapterRequest struct {
	Text string `json:"text"`
}

// POST /api/chapters/:id/validate
func (h *NarrativeHandler) ValidateChapter(c *gin.Context) {
	chapterID, ok := chapterParam(c)
	if !ok {
		return
	}
	var req validateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.narrative.ValidateChapter(c.Request.Context(), chapterID, req.Text)
	if err != nil {
		response.RespondError(c, http.StatusUnprocessableEntity, "context_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

type manualEditRequest struct {
	Content string `json:"content" binding:"required"`
	Note    string `json:"note"`
}

// POST /api/chapters/:id/edits
func (h *NarrativeHandler) ManualEdit(c *gin.Context) {
	chapterID, ok := chapterParam(c)
	if !ok {
		return
	}
	var req manualEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.narrative.ManualEdit(c.Request.Context(), narrative.ManualEditInput{
		ChapterID: chapterID,
		Content:   req.Content,
		Note:      req.Note,
	})
	if err != nil {
		response.RespondLedgerError(c, "manual_edit_failed", err)
		return
	}
	response.RespondCreated(c, res)
}

type selectRequest struct {
	VersionID uuid.UUID `json:"version_id" binding:"required"`
}

// POST /api/chapters/:id/select
func (h *NarrativeHandler) Select(c *gin.Context) {
	chapterID, ok := chapterParam(c)
	if !ok {
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.narrative.Select(c.Request.Context(), narrative.SelectVersionInput{ChapterID: chapterID, VersionID: req.VersionID})
	if err != nil {
		response.RespondLedgerError(c, "select_failed", err)
		return
	}
	response.RespondOK(c, res)
}

type messageDTO struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type generateRequest struct {
	SystemPrompt    string         `json:"system_prompt"`
	Conversation    []messageDTO   `json:"conversation" binding:"dive"`
	ParentVersionID *uuid.UUID     `json:"parent_version_id"`
	Candidates      int            `json:"candidates" binding:"min=0,max=16"`
	Metadata        map[string]any `json:"metadata"`
}

// POST /api/chapters/:id/generate
func (h *NarrativeHandler) Generate(c *gin.Context) {
	chapterID, req, ok := bindGenerate(c)
	if !ok {
		return
	}
	out, err := h.narrative.Generate(c.Request.Context(), narrative.GenerateInput{
		ChapterID:       chapterID,
		SystemPrompt:    req.SystemPrompt,
		Conversation:    toMessages(req.Conversation),
		ParentVersionID: req.ParentVersionID,
		Metadata:        req.Metadata,
	})
	h.respondOutcome(c, out, err)
}

// POST /api/chapters/:id/candidates
func (h *NarrativeHandler) GenerateCandidates(c *gin.Context) {
	chapterID, req, ok := bindGenerate(c)
	if !ok {
		return
	}
	out, err := h.narrative.GenerateCandidates(c.Request.Context(), narrative.GenerateFanOutInput{
		ChapterID:    chapterID,
		SystemPrompt: req.SystemPrompt,
		Conversation: toMessages(req.Conversation),
		Candidates:   req.Candidates,
		Metadata:     req.Metadata,
	})
	h.respondOutcome(c, out, err)
}

type retryVectorsRequest struct {
	Limit int `json:"limit" binding:"min=0,max=500"`
}

// POST /api/vectors/retry
func (h *NarrativeHandler) RetryVectors(c *gin.Context) {
	var req retryVectorsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	results, err := h.narrative.RetryVectors(c.Request.Context(), req.Limit)
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "vector_retry_unavailable", err)
		return
	}
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		item := gin.H{"version_id": r.VersionID, "status": r.Status, "reason": r.Reason}
		if r.Err != nil {
			item["error"] = r.Err.Error()
		}
		out = append(out, item)
	}
	response.RespondOK(c, gin.H{"results": out})
}

type candidateView struct {
	Index   int                   `json:"index"`
	Hash    string                `json:"content_hash"`
	Result  validation.Result     `json:"result"`
	Version *types.ChapterVersion `json:"version,omitempty"`
}

type outcomeView struct {
	State      generation.State            `json:"state"`
	Reason     generation.Reason           `json:"reason,omitempty"`
	Attempts   int                         `json:"attempts"`
	LastResult *validation.Result          `json:"last_result,omitempty"`
	Version    *types.ChapterVersion       `json:"version,omitempty"`
	Review     *types.ChapterVersionReview `json:"review,omitempty"`
	Candidates []candidateView             `json:"candidates,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// respondOutcome always answers 200 for a finished run; a FAILED state is a
// result, not a transport error.
func (h *NarrativeHandler) respondOutcome(c *gin.Context, out narrative.GenerateOutcome, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, narrative.ErrGenerationDisabled) {
			status = http.StatusServiceUnavailable
		}
		response.RespondError(c, status, "generation_unavailable", err)
		return
	}
	view := outcomeView{
		State:      out.State,
		Reason:     out.Reason,
		Attempts:   out.Attempts,
		LastResult: out.LastResult,
		Version:    out.Version,
		Review:     out.Review,
	}
	for _, cand := range out.Candidates {
		view.Candidates = append(view.Candidates, candidateView{Index: cand.Index, Hash: cand.Hash, Result: cand.Result, Version: cand.Version})
	}
	if out.Err != nil {
		view.Error = out.Err.Error()
		fields := append([]interface{}{"state", out.State, "reason", out.Reason, "error", out.Err},
			ctxutil.GetRequestMeta(c.Request.Context()).LogFields()...)
		h.log.Warn("generation run failed", fields...)
	}
	response.RespondOK(c, view)
}

func bindGenerate(c *gin.Context) (uuid.UUID, generateRequest, bool) {
	var req generateRequest
	chapterID, ok := chapterParam(c)
	if !ok {
		return uuid.Nil, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return uuid.Nil, req, false
	}
	return chapterID, req, true
}

func toMessages(in []messageDTO) []generation.Message {
	out := make([]generation.Message, 0, len(in))
	for _, m := range in {
		out = append(out, generation.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func chapterParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_chapter_id", err)
		return uuid.Nil, false
	}
	return id, true
}
