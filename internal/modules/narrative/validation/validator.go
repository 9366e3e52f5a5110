// Package validation is the deterministic post-generation gate for chapter
// text. It never performs I/O and is safe for concurrent use.
package validation

type check func(t runeText, nc NarrativeContext) *ErrorDetail

// Order matters: errors and directive paragraphs follow it.
var checks = []check{
	checkPOVLeak,
	checkAbruptIntro,
	checkOutlineCompression,
}

// Validate runs every check against text and decides the action. Any BLOCK
// finding yields retry; warnings alone are accepted but still reported.
func Validate(text string, nc NarrativeContext) Result {
	t := newRuneText(text)

	errs := make([]ErrorDetail, 0, len(checks))
	for _, c := range checks {
		if d := c(t, nc); d != nil {
			errs = append(errs, *d)
		}
	}
	if len(errs) == 0 {
		return Result{OK: true, Errors: errs, Action: ActionAccept}
	}

	action := ActionAccept
	for _, e := range errs {
		if e.Severity != SeverityWarn {
			action = ActionRetry
			break
		}
	}
	return Result{
		OK:             action == ActionAccept,
		Errors:         errs,
		Action:         action,
		RetryDirective: composeRetryDirective(errs, nc),
	}
}
