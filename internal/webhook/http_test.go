package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailagent/internal/webhook"
)

func TestNotifyRunFinishedDeliversPayload(t *testing.T) {
	var gotEvent string
	var gotPayload webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		gotEvent = r.Header.Get("X-MailAgent-Event")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	svc := webhook.NewHTTPService(srv.URL, zerolog.Nop())
	finished := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	err := svc.NotifyRunFinished(context.Background(), webhook.RunEvent{
		ConversationID: "conv-1",
		Outcome:        "done",
		Cycles:         3,
		FinishedAt:     finished,
	})
	if err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}

	if gotEvent != "run.completed" {
		t.Errorf("event header = %q, want run.completed", gotEvent)
	}
	if gotPayload.Event != "run.completed" || gotPayload.ConversationID != "conv-1" {
		t.Errorf("payload = %+v", gotPayload)
	}
	if gotPayload.Cycles != 3 {
		t.Errorf("cycles = %d, want 3", gotPayload.Cycles)
	}
	if gotPayload.FinishedAt != finished.Format(time.RFC3339) {
		t.Errorf("finished_at = %q", gotPayload.FinishedAt)
	}
}

func TestNotifyRunFinishedEventNames(t *testing.T) {
	tests := []struct {
		outcome string
		event   string
	}{
		{"done", "run.completed"},
		{"waiting_reply", "run.waiting_reply"},
		{"cycle_limit", "run.cycle_limited"},
		{"error", "run.failed"},
	}

	var gotPayload webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	svc := webhook.NewHTTPService(srv.URL, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			event := webhook.RunEvent{ConversationID: "conv-1", Outcome: tt.outcome, FinishedAt: time.Now()}
			if tt.outcome == "error" {
				event.Error = &webhook.ErrorDetails{Code: "MODEL_GATEWAY_FAILURE", Message: "provider unavailable"}
			}
			if err := svc.NotifyRunFinished(context.Background(), event); err != nil {
				t.Fatalf("NotifyRunFinished: %v", err)
			}
			if gotPayload.Event != tt.event {
				t.Errorf("event = %q, want %q", gotPayload.Event, tt.event)
			}
			if tt.outcome == "error" && (gotPayload.Error == nil || gotPayload.Error.Code != "MODEL_GATEWAY_FAILURE") {
				t.Errorf("error details not delivered: %+v", gotPayload.Error)
			}
		})
	}
}

func TestNotifyRunFinishedSkipsWithoutURL(t *testing.T) {
	svc := webhook.NewHTTPService("", zerolog.Nop())
	err := svc.NotifyRunFinished(context.Background(), webhook.RunEvent{
		ConversationID: "conv-1",
		Outcome:        "done",
		FinishedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
}
