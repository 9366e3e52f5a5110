package validation

import (
	"encoding/json"
	"fmt"
)

// ErrorCode is closed: the three checks below are the only producers.
type ErrorCode string

const (
	CodePOVLeak              ErrorCode = "E_POV_LEAK"
	CodeCharacterAbruptIntro ErrorCode = "E_CHARACTER_ABRUPT_INTRO"
	CodeOutlineCompression   ErrorCode = "E_OUTLINE_COMPRESSION"
)

// Codes lists every ErrorCode in check order.
var Codes = []ErrorCode{CodePOVLeak, CodeCharacterAbruptIntro, CodeOutlineCompression}

func (c ErrorCode) Valid() bool {
	switch c {
	case CodePOVLeak, CodeCharacterAbruptIntro, CodeOutlineCompression:
		return true
	default:
		return false
	}
}

type Severity string

const (
	SeverityBlock Severity = "BLOCK"
	SeverityWarn  Severity = "WARN"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionRetry  Action = "retry"
	// ActionReject is reserved for callers that enforce a hard retry cap.
	// Validate never returns it.
	ActionReject Action = "reject"
)

const maxEvidence = 5

const (
	metaPOV               = "pov"
	metaNewCharacters     = "new_characters"
	metaForbiddenNodesHit = "forbidden_nodes_hit"
)

type ErrorDetail struct {
	Code     ErrorCode      `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Evidence []string       `json:"evidence_snippets"`
	Metadata map[string]any `json:"metadata"`
}

type Result struct {
	OK             bool          `json:"ok"`
	Errors         []ErrorDetail `json:"errors"`
	Action         Action        `json:"action"`
	RetryDirective string        `json:"retry_directive,omitempty"`
}

// HasCode reports whether r carries an error with code c.
func (r Result) HasCode(c ErrorCode) bool {
	_, ok := r.Find(c)
	return ok
}

func (r Result) Find(c ErrorCode) (ErrorDetail, bool) {
	for _, e := range r.Errors {
		if e.Code == c {
			return e, true
		}
	}
	return ErrorDetail{}, false
}

// Codes returns the codes present, in check order.
func (r Result) Codes() []ErrorCode {
	out := make([]ErrorCode, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}

// Payload renders r as the JSON object stored on a validator review.
func (r Result) Payload() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal validation result: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal validation result: %w", err)
	}
	return out, nil
}

type POVLeakPayload struct {
	POV string
}

type AbruptIntroPayload struct {
	NewCharacters []string
}

type OutlineCompressionPayload struct {
	ForbiddenNodesHit []string
}

// POVLeak returns the typed payload when d is an E_POV_LEAK detail.
func (d ErrorDetail) POVLeak() (POVLeakPayload, bool) {
	if d.Code != CodePOVLeak {
		return POVLeakPayload{}, false
	}
	pov, _ := d.Metadata[metaPOV].(string)
	return POVLeakPayload{POV: pov}, true
}

func (d ErrorDetail) AbruptIntro() (AbruptIntroPayload, bool) {
	if d.Code != CodeCharacterAbruptIntro {
		return AbruptIntroPayload{}, false
	}
	return AbruptIntroPayload{NewCharacters: stringList(d.Metadata[metaNewCharacters])}, true
}

func (d ErrorDetail) OutlineCompression() (OutlineCompressionPayload, bool) {
	if d.Code != CodeOutlineCompression {
		return OutlineCompressionPayload{}, false
	}
	return OutlineCompressionPayload{ForbiddenNodesHit: stringList(d.Metadata[metaForbiddenNodesHit])}, true
}

// stringList accepts both the in-memory []string and the []any that comes
// back from a JSON round trip.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// OutlineHit is one entry of outline-compression evidence.
type OutlineHit struct {
	Node     string   `json:"node"`
	Hits     int      `json:"hits"`
	Keywords []string `json:"keywords"`
	Strong   bool     `json:"strong"`
}

func (h OutlineHit) String() string {
	kws := h.Keywords
	if kws == nil {
		kws = []string{}
	}
	raw, err := json.Marshal(OutlineHit{Node: h.Node, Hits: h.Hits, Keywords: kws, Strong: h.Strong})
	if err != nil {
		return h.Node
	}
	return string(raw)
}

// ParseResult decodes a review payload written by Result.Payload.
func ParseResult(raw []byte) (Result, error) {
	var out Result
	if len(raw) == 0 {
		return out, fmt.Errorf("empty validation payload")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode validation payload: %w", err)
	}
	return out, nil
}
