package validation

import (
	"regexp"
	"sort"
	"strings"
)

var (
	introMarkers       = []string{"名叫", "叫做", "外号", "传闻", "据说", "是个", "来自", "身穿", "看起来", "自称", "介绍", "第一次见"}
	backgroundKeywords = []string{"掌门", "皇子", "真身", "真实身份", "幕后", "背后", "身为", "血脉", "继承人"}

	cjkNameRe   = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]{2,4}`)
	latinNameRe = regexp.MustCompile(`[A-Z][a-z]{1,15}`)
)

const (
	introWindow        = 25
	abruptIntroMessage = "检测到未介绍的新角色或直接给出背景"
)

// extractNameCandidates is a lexical heuristic: every 2-4 ideogram run and
// every capitalized Latin word counts, ordered by first occurrence.
func extractNameCandidates(text string) []string {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{cjkNameRe, latinNameRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{pos: loc[0], name: text[loc[0]:loc[1]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := map[string]struct{}{}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.name]; ok {
			continue
		}
		seen[h.name] = struct{}{}
		out = append(out, h.name)
	}
	return out
}

func checkAbruptIntro(t runeText, nc NarrativeContext) *ErrorDetail {
	introduced := nc.introducedSet()
	var newNames []string
	for _, name := range extractNameCandidates(t.s) {
		if _, ok := introduced[name]; !ok {
			newNames = append(newNames, name)
		}
	}
	if len(newNames) == 0 {
		return nil
	}

	ephemeral := nc.ephemeralSet()
	var blockEvidence, warnEvidence []string
	for _, name := range newNames {
		at := t.runeIndex(strings.Index(t.s, name))
		window := t.slice(at-introWindow, at+introWindow)
		announced := containsAny(window, introMarkers)
		leaked := containsAny(window, backgroundKeywords)

		if _, ok := ephemeral[name]; ok && !leaked {
			if !announced {
				warnEvidence = append(warnEvidence, strings.TrimSpace(window))
			}
			continue
		}
		if leaked || !announced {
			blockEvidence = append(blockEvidence, strings.TrimSpace(window))
		}
	}
	if len(blockEvidence) == 0 && len(warnEvidence) == 0 {
		return nil
	}

	severity := SeverityWarn
	if len(blockEvidence) > 0 {
		severity = SeverityBlock
	}
	evidence := append(append([]string{}, blockEvidence...), warnEvidence...)
	return &ErrorDetail{
		Code:     CodeCharacterAbruptIntro,
		Message:  abruptIntroMessage,
		Severity: severity,
		Evidence: capEvidence(evidence),
		Metadata: map[string]any{metaNewCharacters: newNames},
	}
}
