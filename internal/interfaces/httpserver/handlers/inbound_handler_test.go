package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/mail"
	"mailagent/internal/infrastructure/queue"
	"mailagent/internal/interfaces/httpserver/handlers"
)

// MockJobQueue is a mock implementation of queue.JobQueue for testing.
type MockJobQueue struct {
	EnqueueFunc func(ctx context.Context, email *mail.InboundEmail) error
}

func (m *MockJobQueue) Enqueue(ctx context.Context, email *mail.InboundEmail) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, email)
	}
	return nil
}

func (m *MockJobQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	return nil, nil
}

func (m *MockJobQueue) MarkCompleted(ctx context.Context, job *queue.Job) error {
	return nil
}

func (m *MockJobQueue) MarkFailed(ctx context.Context, job *queue.Job, jobErr error) error {
	return nil
}

func (m *MockJobQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (m *MockJobQueue) Depth(ctx context.Context) (int64, error) {
	return 0, nil
}

func setupInboundTestRouter(handler *handlers.InboundHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/receive-email", handler.Receive)
	return r
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postEmail(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/receive-email", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInboundHandler_Receive(t *testing.T) {
	var enqueued *mail.InboundEmail
	mockQueue := &MockJobQueue{
		EnqueueFunc: func(ctx context.Context, email *mail.InboundEmail) error {
			enqueued = email
			return nil
		},
	}

	handler := handlers.NewInboundHandler(mockQueue, "topsecret", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	body := []byte(`{"id":"em_1","from_address":{"address":"user@example.com"},"subject":"hi","body":"please help"}`)
	w := postEmail(router, body, sign(body, "topsecret"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}
	if enqueued == nil {
		t.Fatal("email was not enqueued")
	}
	if enqueued.ID != "em_1" {
		t.Errorf("enqueued email ID = %q, want em_1", enqueued.ID)
	}
	if enqueued.ConversationID() != "em_1" {
		t.Errorf("conversation ID = %q, want em_1", enqueued.ConversationID())
	}
}

func TestInboundHandler_RejectsBadSignature(t *testing.T) {
	mockQueue := &MockJobQueue{
		EnqueueFunc: func(ctx context.Context, email *mail.InboundEmail) error {
			t.Error("email with a bad signature was enqueued")
			return nil
		},
	}

	handler := handlers.NewInboundHandler(mockQueue, "topsecret", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	body := []byte(`{"id":"em_1"}`)
	w := postEmail(router, body, sign(body, "wrong-secret"))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
}

func TestInboundHandler_RejectsMissingSignature(t *testing.T) {
	handler := handlers.NewInboundHandler(&MockJobQueue{}, "topsecret", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	w := postEmail(router, []byte(`{"id":"em_1"}`), "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
}

func TestInboundHandler_SkipsVerificationWithoutSecret(t *testing.T) {
	handler := handlers.NewInboundHandler(&MockJobQueue{}, "", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	w := postEmail(router, []byte(`{"id":"em_1"}`), "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInboundHandler_RejectsMalformedPayload(t *testing.T) {
	handler := handlers.NewInboundHandler(&MockJobQueue{}, "topsecret", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	body := []byte(`{"id":`)
	w := postEmail(router, body, sign(body, "topsecret"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
}

func TestInboundHandler_RequiresEmailID(t *testing.T) {
	handler := handlers.NewInboundHandler(&MockJobQueue{}, "topsecret", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	body := []byte(`{"subject":"no id"}`)
	w := postEmail(router, body, sign(body, "topsecret"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
}

func TestInboundHandler_QueueErrors(t *testing.T) {
	mockQueue := &MockJobQueue{
		EnqueueFunc: func(ctx context.Context, email *mail.InboundEmail) error {
			return errors.New("database is down")
		},
	}

	handler := handlers.NewInboundHandler(mockQueue, "", zerolog.Nop())
	router := setupInboundTestRouter(handler)

	w := postEmail(router, []byte(`{"id":"em_1"}`), "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
}
