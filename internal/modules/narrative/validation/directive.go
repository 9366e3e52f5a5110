package validation

import (
	"fmt"
	"strings"
)

// Directive wording is fed verbatim to the generation model; do not reword.
const (
	directiveHeader        = "请修正以下问题后重写本章："
	directivePOVRule       = "1) 严禁全知视角措辞（如“殊不知/与此同时/他并不知道”），仅写 POV 所知。"
	directivePOVNameFmt    = "POV 角色：%s，禁止描写其他角色的内心活动。"
	directiveIntroRule     = "2) 新角色首次出现的两句内必须有外观/身份/与POV关系的介绍，禁止直接暴露真实身份。"
	directiveOutlineFmt    = "3) 只推进节点：%s；禁止推进：%s"
	directiveStageLeapRule = "禁止出现“反杀/回击/反转/决战/大胜”等强推进词。"
)

func composeRetryDirective(errs []ErrorDetail, nc NarrativeContext) string {
	lines := []string{directiveHeader}
	seen := map[ErrorCode]struct{}{}
	for _, e := range errs {
		if _, dup := seen[e.Code]; dup {
			continue
		}
		seen[e.Code] = struct{}{}

		switch e.Code {
		case CodePOVLeak:
			lines = append(lines, directivePOVRule)
			if pov := strings.TrimSpace(nc.POV.Name); pov != "" {
				lines = append(lines, fmt.Sprintf(directivePOVNameFmt, pov))
			}
		case CodeCharacterAbruptIntro:
			lines = append(lines, directiveIntroRule)
		case CodeOutlineCompression:
			forbidden := make([]string, 0, len(nc.Outline.Forbidden))
			for _, n := range nc.Outline.Forbidden {
				forbidden = append(forbidden, n.ID)
			}
			lines = append(lines,
				fmt.Sprintf(directiveOutlineFmt, quotedList(nc.Outline.Allowed), quotedList(forbidden)),
				directiveStageLeapRule,
			)
		}
	}
	return strings.Join(lines, "\n")
}

// quotedList renders ids as ['a', 'b'], the list shape the generation
// prompts were tuned against.
func quotedList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, "'"+it+"'")
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
