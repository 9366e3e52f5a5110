package validation

import (
	"strings"
)

var stageLeapTerms = []string{"反杀", "回击", "反转", "决战", "大胜", "终局", "最终对决"}

const (
	outlineNodeThreshold      = 2
	stageLeapNode             = "stage_leap"
	unknownNode               = "unknown"
	outlineCompressionMessage = "检测到章节推进超出允许的大纲节点"
)

func isStageLeap(kw string) bool {
	for _, s := range stageLeapTerms {
		if s == kw {
			return true
		}
	}
	return false
}

func nodeID(n OutlineNode) string {
	if id := strings.TrimSpace(n.ID); id != "" {
		return id
	}
	return unknownNode
}

func checkOutlineCompression(t runeText, nc NarrativeContext) *ErrorDetail {
	lower := strings.ToLower(t.s)
	var hits []OutlineHit

	for _, node := range nc.Outline.Forbidden {
		count := 0
		strong := false
		for _, kw := range node.Keywords {
			if kw == "" {
				continue
			}
			n := strings.Count(lower, strings.ToLower(kw))
			if n == 0 {
				continue
			}
			count += n
			if isStageLeap(kw) {
				strong = true
			}
		}
		if count >= outlineNodeThreshold {
			hits = append(hits, OutlineHit{
				Node:     nodeID(node),
				Hits:     count,
				Keywords: node.Keywords,
				Strong:   strong,
			})
		}
	}

	for _, kw := range stageLeapTerms {
		if strings.Contains(t.s, kw) {
			hits = append(hits, OutlineHit{Node: stageLeapNode, Hits: 1, Keywords: []string{kw}, Strong: true})
		}
	}

	if len(hits) == 0 {
		return nil
	}

	severity := SeverityWarn
	nodes := make([]string, 0, len(hits))
	evidence := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Strong {
			severity = SeverityBlock
		}
		nodes = append(nodes, h.Node)
		evidence = append(evidence, h.String())
	}
	return &ErrorDetail{
		Code:     CodeOutlineCompression,
		Message:  outlineCompressionMessage,
		Severity: severity,
		Evidence: capEvidence(evidence),
		Metadata: map[string]any{metaForbiddenNodesHit: nodes},
	}
}
