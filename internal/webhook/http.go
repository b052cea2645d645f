package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPService implements run notifications via HTTP POST to a fixed URL.
// An empty URL disables delivery.
type HTTPService struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPService creates a new HTTP-based webhook service.
func NewHTTPService(url string, log zerolog.Logger) *HTTPService {
	return &HTTPService{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:        log.With().Str("component", "webhook").Logger(),
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// NotifyRunFinished reports a terminal run outcome for a conversation.
func (s *HTTPService) NotifyRunFinished(ctx context.Context, event RunEvent) error {
	if s.url == "" {
		s.log.Debug().Str("conversation_id", event.ConversationID).Msg("no webhook URL configured, skipping notification")
		return nil
	}

	payload := Payload{
		Event:          eventName(event),
		ConversationID: event.ConversationID,
		Outcome:        event.Outcome,
		Cycles:         event.Cycles,
		Error:          event.Error,
		FinishedAt:     event.FinishedAt.Format(time.RFC3339),
	}

	return s.send(ctx, payload)
}

func eventName(event RunEvent) string {
	switch event.Outcome {
	case "done":
		return "run.completed"
	case "waiting_reply":
		return "run.waiting_reply"
	case "cycle_limit":
		return "run.cycle_limited"
	default:
		return "run.failed"
	}
}

func (s *HTTPService) send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create webhook request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "mail-agent/1.0")
		req.Header.Set("X-MailAgent-Event", payload.Event)
		req.Header.Set("X-MailAgent-Conversation-ID", payload.ConversationID)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send webhook (attempt %d/%d): %w", attempt, s.maxRetries, err)
			s.log.Warn().Err(err).Str("url", s.url).Int("attempt", attempt).Msg("webhook delivery failed")

			if attempt < s.maxRetries {
				time.Sleep(s.retryDelay)
				continue
			}
			break
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("url", s.url).Int("status", resp.StatusCode).Str("conversation_id", payload.ConversationID).Msg("webhook delivered")
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d (attempt %d/%d)", resp.StatusCode, attempt, s.maxRetries)
		s.log.Warn().Int("status", resp.StatusCode).Str("url", s.url).Int("attempt", attempt).Msg("webhook delivery failed")

		if attempt < s.maxRetries {
			time.Sleep(s.retryDelay)
		}
	}

	return lastErr
}
