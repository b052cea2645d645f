// Package mail defines the inbound email payload the webhook delivers.
package mail

import (
	"fmt"
	"strings"
	"time"
)

// Address is an email address with an optional display name.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

func (a Address) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}

// Attachment is a file carried by the inbound email. Content holds the
// base64-decoded bytes when the provider inlines the file; URL points at the
// provider's copy otherwise.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content,omitempty"`
	URL         string `json:"url,omitempty"`
}

// PreviousEmail references an earlier message in the same thread, oldest
// first.
type PreviousEmail struct {
	ID      string  `json:"id"`
	From    Address `json:"from_address"`
	Subject string  `json:"subject,omitempty"`
}

// InboundEmail is the domain form of the webhook payload.
type InboundEmail struct {
	ID             string          `json:"id"`
	FromAddress    Address         `json:"from_address"`
	ToAddresses    []Address       `json:"to_addresses,omitempty"`
	Subject        string          `json:"subject"`
	Body           string          `json:"body"`
	ThreadPrompt   string          `json:"thread_prompt,omitempty"`
	PreviousEmails []PreviousEmail `json:"previous_emails,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	ReceivedAt     time.Time       `json:"received_at,omitempty"`
}

// ConversationID derives the stable conversation key for this email: the id
// of the thread's root message when the mail continues a thread, otherwise
// the email's own id.
func (e InboundEmail) ConversationID() string {
	if len(e.PreviousEmails) > 0 && e.PreviousEmails[0].ID != "" {
		return e.PreviousEmails[0].ID
	}
	return e.ID
}

// Prompt renders the email as the user message for the model. The provider's
// pre-rendered thread prompt wins when present; otherwise a compact header
// plus body is built from the payload fields.
func (e InboundEmail) Prompt() string {
	if strings.TrimSpace(e.ThreadPrompt) != "" {
		return e.ThreadPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Email from %s\n", e.FromAddress.String())
	if e.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	}
	b.WriteString("\n")
	b.WriteString(e.Body)
	return b.String()
}
