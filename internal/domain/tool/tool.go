// Package tool defines the in-process tool registry the agent executes against.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mailagent/internal/domain/conversation"
)

// OutboundPrefix marks tools that communicate back to the user. Executing one
// of them is what ends a toolcall-mode run: the reply email is the terminal
// act of the conversation cycle.
const OutboundPrefix = "mailroom_"

// IsOutbound reports whether the named tool sends outbound communication.
func IsOutbound(name string) bool {
	return strings.HasPrefix(name, OutboundPrefix)
}

// Handler executes a tool call. The returned string is appended to the
// conversation as the tool result. A non-nil error is fatal to the run.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Definition describes a tool to the model: its name, what it does, and a
// JSON schema for its parameters.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Call is a parsed tool invocation ready for execution.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ParseCall validates a requested tool call. Arguments must decode as a JSON
// object; empty arguments normalize to {}.
func ParseCall(tc conversation.ToolCall) (Call, error) {
	args := tc.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(args, &probe); err != nil {
		return Call{}, fmt.Errorf("tool call %s (%s): arguments are not a JSON object: %w", tc.ID, tc.Name, err)
	}

	return Call{
		ID:        tc.ID,
		Name:      tc.Name,
		Arguments: args,
	}, nil
}
