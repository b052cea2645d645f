package mailroom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mailagent/internal/domain/tool"
)

// SendEmailToolName is the outbound send tool. The mailroom_ prefix marks it
// as outbound communication.
const SendEmailToolName = "mailroom_send_email"

type sendEmailArgs struct {
	To             []string `json:"to"`
	CC             []string `json:"cc,omitempty"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	ReplyToEmailID string   `json:"reply_to_email_id,omitempty"`
}

// SendEmailTool returns the definition and handler for the outbound send
// tool backed by the mailroom API.
func SendEmailTool(client *Client) (tool.Definition, tool.Handler) {
	def := tool.Definition{
		Name:        SendEmailToolName,
		Description: "Send an email to the user. Prefer replying to an existing thread via reply_to_email_id over starting a new one.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"to": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Recipient email addresses",
				},
				"cc": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "CC email addresses",
				},
				"subject": map[string]interface{}{
					"type":        "string",
					"description": "Email subject line",
				},
				"body": map[string]interface{}{
					"type":        "string",
					"description": "Email body as email compliant HTML",
				},
				"reply_to_email_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the email being replied to; omit to start a new thread",
				},
			},
			"required": []string{"to", "subject", "body"},
		},
	}

	handler := func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args sendEmailArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode send_email arguments: %w", err)
		}
		if len(args.To) == 0 {
			return "", fmt.Errorf("send_email requires at least one recipient")
		}
		if strings.TrimSpace(args.Subject) == "" {
			return "", fmt.Errorf("send_email requires a subject")
		}

		html, err := EnsureHTML(args.Body)
		if err != nil {
			return "", err
		}

		sent, err := client.SendEmail(ctx, SendEmailParams{
			To:             args.To,
			CC:             args.CC,
			Subject:        args.Subject,
			BodyHTML:       html,
			ReplyToEmailID: args.ReplyToEmailID,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Email sent to %s (id: %s)", strings.Join(args.To, ", "), sent.ID), nil
	}

	return def, handler
}
