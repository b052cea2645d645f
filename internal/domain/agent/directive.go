package agent

import (
	"strings"
	"unicode"
)

// DirectiveKind enumerates the control keywords the model may open a plain
// text response with in directive mode.
type DirectiveKind string

const (
	// DirectivePlan shares the model's plan; the run acknowledges and
	// continues.
	DirectivePlan DirectiveKind = "plan"
	// DirectiveWait pauses the run until the user replies.
	DirectiveWait DirectiveKind = "wait"
	// DirectiveDone marks the task finished with no reply expected.
	DirectiveDone DirectiveKind = "done"
	// DirectiveUnknown covers empty text and anything that is not one of the
	// keywords above.
	DirectiveUnknown DirectiveKind = "unknown"
)

// Directive is the parsed form of a plain text model response in directive
// mode. Body carries the text after the keyword for PLAN, and the raw
// response for unknown directives so it can be logged.
type Directive struct {
	Kind DirectiveKind
	Body string
}

// ParseDirective classifies a plain text response into one of the closed set
// of directives. The keyword must be the first token of the response and is
// matched case-sensitively; trailing punctuation on the token is tolerated.
func ParseDirective(text string) Directive {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Directive{Kind: DirectiveUnknown}
	}

	token := trimmed
	rest := ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		token = trimmed[:i]
		rest = strings.TrimSpace(trimmed[i:])
	}
	token = strings.TrimRight(token, ".,:;!")

	switch token {
	case "PLAN":
		return Directive{Kind: DirectivePlan, Body: rest}
	case "WAIT":
		return Directive{Kind: DirectiveWait}
	case "DONE":
		return Directive{Kind: DirectiveDone}
	default:
		return Directive{Kind: DirectiveUnknown, Body: trimmed}
	}
}
