package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/mail"
	"mailagent/internal/infrastructure/mailroom"
	"mailagent/internal/infrastructure/metrics"
	"mailagent/internal/infrastructure/queue"
)

// maxInboundBody caps webhook payloads; inline attachments make them large
// but not unbounded.
const maxInboundBody = 25 << 20

// InboundHandler accepts provider webhook deliveries and queues them for the
// agent. The request is acked as soon as the job is durable.
type InboundHandler struct {
	jobs          queue.JobQueue
	webhookSecret string
	log           zerolog.Logger
}

// NewInboundHandler constructs the webhook handler.
func NewInboundHandler(jobs queue.JobQueue, webhookSecret string, log zerolog.Logger) *InboundHandler {
	h := &InboundHandler{
		jobs:          jobs,
		webhookSecret: webhookSecret,
		log:           log.With().Str("handler", "inbound").Logger(),
	}
	if webhookSecret == "" {
		h.log.Warn().Msg("MAILROOM_WEBHOOK_SECRET is not set; inbound signatures are not verified")
	}
	return h
}

// Receive handles POST /receive-email
// @Summary Receive an inbound email
// @Description Verifies the delivery signature, queues the email for background processing and acks immediately.
// @Tags Webhook
// @Accept json
// @Param X-Signature header string false "Hex HMAC-SHA256 of the raw body"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /receive-email [post]
func (h *InboundHandler) Receive(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxInboundBody)
	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.RecordInboundEmail("invalid")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		metrics.RecordInboundEmail("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}

	if h.webhookSecret != "" {
		if err := mailroom.VerifySignature(c.GetHeader(mailroom.SignatureHeader), body, h.webhookSecret); err != nil {
			h.log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("webhook signature rejected")
			metrics.RecordInboundEmail("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	var email mail.InboundEmail
	if err := json.Unmarshal(body, &email); err != nil {
		metrics.RecordInboundEmail("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if email.ID == "" {
		metrics.RecordInboundEmail("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "email id is required"})
		return
	}

	if err := h.jobs.Enqueue(c.Request.Context(), &email); err != nil {
		h.log.Error().Err(err).Str("email_id", email.ID).Msg("enqueue inbound email")
		metrics.RecordInboundEmail("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue unavailable"})
		return
	}

	h.log.Info().
		Str("email_id", email.ID).
		Str("conversation_id", email.ConversationID()).
		Msg("inbound email accepted")
	metrics.RecordInboundEmail("accepted")
	c.Status(http.StatusNoContent)
}
