// Package mailroom is the client for the mailroom email API: the inbound
// webhook's counterpart used to send replies.
package mailroom

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/retry"
)

// Client talks to the mailroom HTTP API.
type Client struct {
	httpClient *resty.Client
	policy     retry.Policy
	log        zerolog.Logger
}

// NewClient constructs the mailroom client. Retries are handled here rather
// than in resty so transient failures share the transport retry policy.
func NewClient(apiKey, baseURL string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json").
			SetRetryCount(0).
			SetTimeout(30 * time.Second),
		policy: retry.ConservativePolicy(),
		log:    log.With().Str("component", "mailroom").Logger(),
	}
}

// SendEmailParams describes an outbound email. ReplyToEmailID threads the
// reply onto an existing conversation; empty starts a new thread.
type SendEmailParams struct {
	To             []string `json:"to"`
	CC             []string `json:"cc,omitempty"`
	BCC            []string `json:"bcc,omitempty"`
	Subject        string   `json:"subject"`
	BodyHTML       string   `json:"body_html"`
	ReplyToEmailID string   `json:"reply_to_email_id,omitempty"`
}

// SentEmail is the API's acknowledgment of a sent email.
type SentEmail struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

// SendEmail posts an outbound email. Rate limits and server errors are
// retried; a 4xx rejection fails immediately since resending the same
// payload cannot succeed.
func (c *Client) SendEmail(ctx context.Context, params SendEmailParams) (*SentEmail, error) {
	sent, err := retry.ExecuteWithResult(ctx, c.policy, func(ctx context.Context, attempt int) (*SentEmail, error) {
		var sent SentEmail
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetBody(params).
			SetResult(&sent).
			Post("/emails/send")
		if err != nil {
			return nil, fmt.Errorf("send email: %w", err)
		}
		if resp.IsError() {
			return nil, classifySendError(resp.StatusCode(), resp.String())
		}
		return &sent, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("email_id", sent.ID).
		Strs("to", params.To).
		Str("subject", params.Subject).
		Msg("email sent")
	return sent, nil
}

func classifySendError(status int, body string) error {
	err := fmt.Errorf("mailroom send error (%d): %s", status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return agenterrors.WrapRetryable(err, agenterrors.ErrCodeToolExecution, "mailroom unavailable")
	}
	return agenterrors.WrapFatal(err, agenterrors.ErrCodeToolExecution, "mailroom rejected email")
}
