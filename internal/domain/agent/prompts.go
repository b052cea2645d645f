package agent

import (
	"fmt"
	"strings"
)

// Mode selects how the engine interprets model responses.
type Mode string

const (
	// ModeToolCall requires every response to be a tool call; plain text is
	// corrected in-loop.
	ModeToolCall Mode = "toolcall"
	// ModeDirective allows plain text responses that open with PLAN, WAIT or
	// DONE, and restricts each response to a single tool call.
	ModeDirective Mode = "directive"
)

// Corrective messages appended as user turns when the model breaks the
// response contract of its mode.
const (
	correctiveToolCall  = "Please respond with a tool call"
	correctiveDirective = "Invalid response. Respond with a single tool call, or with text starting with PLAN, WAIT, or DONE."
	planAcknowledged    = "Plan accepted, proceed."
)

// DefaultSystemPrompt builds the system message for a fresh conversation.
// toolNames is the registry's full name list, quoted into the prompt so the
// model never invents a tool.
func DefaultSystemPrompt(mode Mode, toolNames []string) string {
	quoted := make([]string, len(toolNames))
	for i, name := range toolNames {
		quoted[i] = fmt.Sprintf("`%s`", name)
	}
	names := strings.Join(quoted, ", ")

	switch mode {
	case ModeDirective:
		return strings.Join([]string{
			"- Respond to the user's instructions carefully",
			"- The user is only able to respond to emails, so if you have a message to send, use the `mailroom_send_email` tool",
			"- Email content should be formatted as email compliant html",
			"- When sending emails, prefer responding to an existing email thread over starting a new one",
			"- To make progress, respond with exactly one tool call at a time - the only valid tool names are " + names,
			"- To share your plan before acting, respond with text starting with PLAN followed by the plan",
			"- If you need the user to answer before you can continue, respond with text starting with WAIT",
			"- When the task is complete and no further reply is needed, respond with text starting with DONE",
		}, "\n")
	default:
		return strings.Join([]string{
			"- Respond to the user's instructions carefully",
			"- The user is only able to respond to emails, so if you have a message to send, use the `mailroom_send_email` tool",
			"- Email content should be formatted as email compliant html",
			"- When sending emails, prefer responding to an existing email thread over starting a new one",
			"- Only use one tool at a time",
			"- Always respond with a tool call - the only valid tool names are " + names,
		}, "\n")
	}
}
