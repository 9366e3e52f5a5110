package validation

import (
	"regexp"
	"strings"
)

var (
	strongPOVCues = []string{"他并不知道", "她并不知道", "他们并不知道", "殊不知"}
	softPOVCues   = []string{"与此同时", "另一边", "远在", "同一时间", "在.*不知道的地方"}

	strongPOVCueRe = regexp.MustCompile(strings.Join(strongPOVCues, "|"))
	softPOVCueRe   = regexp.MustCompile(strings.Join(softPOVCues, "|"))
)

const (
	innerMonologueVerbs = `(?:心想|暗想|暗道|打定主意|意识到|暗自决定|盘算)`
	monologueWindow     = `.{0,6}`

	cuePadding       = 10
	monologuePadding = 5

	povLeakMessage = "检测到全知视角或非POV内心描写"
)

func monologuePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(name) + monologueWindow + innerMonologueVerbs)
}

func checkPOVLeak(t runeText, nc NarrativeContext) *ErrorDetail {
	var (
		snippets []string
		severity Severity
	)

	if !nc.POV.SwitchAllowed {
		for _, loc := range strongPOVCueRe.FindAllStringIndex(t.s, -1) {
			snippets = append(snippets, t.snippet(loc, cuePadding))
			severity = SeverityBlock
		}
		for _, loc := range softPOVCueRe.FindAllStringIndex(t.s, -1) {
			snippets = append(snippets, t.snippet(loc, cuePadding))
			if severity != SeverityBlock {
				severity = SeverityWarn
			}
		}
	}

	seen := map[string]struct{}{}
	for _, name := range nc.introducedNames() {
		if name == nc.POV.Name {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if nc.POV.allowsPOV(name) {
			continue
		}
		for _, loc := range monologuePattern(name).FindAllStringIndex(t.s, -1) {
			snippets = append(snippets, t.snippet(loc, monologuePadding))
			severity = SeverityBlock
		}
	}

	if len(snippets) == 0 {
		return nil
	}
	return &ErrorDetail{
		Code:     CodePOVLeak,
		Message:  povLeakMessage,
		Severity: severity,
		Evidence: capEvidence(snippets),
		Metadata: map[string]any{metaPOV: nc.POV.Name},
	}
}
