package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
)

func TestRespondLedgerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{"not found", domainagg.NewError(domainagg.CodeNotFound, "op", "missing", nil), http.StatusNotFound, "not_found"},
		{"conflict", domainagg.NewError(domainagg.CodeConflict, "op", "busy", nil), http.StatusConflict, "conflict"},
		{"empty content", domainagg.NewError(domainagg.CodePreconditionFailed, "op", "empty", domainagg.ErrEmptyContent), http.StatusUnprocessableEntity, "precondition_failed"},
		{"retryable", domainagg.NewError(domainagg.CodeRetryable, "op", "lock", nil), http.StatusServiceUnavailable, "retryable"},
		{"uncoded", errors.New("disk full"), http.StatusInternalServerError, "select_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			RespondLedgerError(c, "select_failed", tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, rec.Code)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.wantCode || env.Error.Message == "" {
				t.Fatalf("unexpected envelope: %+v", env)
			}
		})
	}
}
