package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/status"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/infrastructure/objectstore"
	"mailagent/internal/interfaces/httpserver/dto"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AttachmentDownloader streams stored attachment objects.
type AttachmentDownloader interface {
	Enabled() bool
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// ConversationHandler exposes the admin API over conversations.
type ConversationHandler struct {
	service     agent.Service
	usage       *tokenusage.Service
	attachments AttachmentDownloader
	log         zerolog.Logger
}

// NewConversationHandler constructs the handler. attachments may be nil when
// no object store is configured.
func NewConversationHandler(
	service agent.Service,
	usage *tokenusage.Service,
	attachments AttachmentDownloader,
	log zerolog.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		service:     service,
		usage:       usage,
		attachments: attachments,
		log:         log.With().Str("handler", "conversation").Logger(),
	}
}

// List handles GET /v1/conversations
// @Summary List conversations
// @Tags Conversations
// @Produce json
// @Param status query string false "Filter by lifecycle status"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.ConversationList
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	filter := conversation.ListFilter{Limit: defaultListLimit}

	if raw := c.Query("status"); raw != "" {
		s, err := status.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = s
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = offset
	}

	conversations, total, err := h.service.ListConversations(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	list := dto.ConversationList{
		Object: "list",
		Data:   make([]dto.ConversationSummary, len(conversations)),
		Total:  total,
	}
	for i, conv := range conversations {
		list.Data[i] = dto.SummaryFromDomain(conv)
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/conversations/:conversation_id
// @Summary Get a conversation with its full history
// @Tags Conversations
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Success 200 {object} dto.ConversationDetail
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/conversations/{conversation_id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	id := c.Param("conversation_id")
	conv, err := h.service.GetConversation(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DetailFromDomain(conv))
}

// Delete handles DELETE /v1/conversations/:conversation_id
// @Summary Delete a conversation and its history
// @Tags Conversations
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/conversations/{conversation_id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	id := c.Param("conversation_id")
	if err := h.service.DeleteConversation(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"object":  "conversation.deleted",
		"deleted": true,
	})
}

// Usage handles GET /v1/conversations/:conversation_id/usage
// @Summary Report a conversation's token usage
// @Tags Conversations
// @Produce json
// @Param conversation_id path string true "Conversation ID"
// @Success 200 {object} dto.UsageReport
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/conversations/{conversation_id}/usage [get]
func (h *ConversationHandler) Usage(c *gin.Context) {
	id := c.Param("conversation_id")
	if _, err := h.service.GetConversation(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	runs, summary, err := h.usage.ConversationUsage(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UsageReportFromDomain(id, runs, summary))
}

// DownloadAttachment handles GET /v1/conversations/:conversation_id/attachments/:object
// @Summary Download a stored email attachment
// @Tags Conversations
// @Produce octet-stream
// @Param conversation_id path string true "Conversation ID"
// @Param object path string true "Stored object name"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/conversations/{conversation_id}/attachments/{object} [get]
func (h *ConversationHandler) DownloadAttachment(c *gin.Context) {
	if h.attachments == nil || !h.attachments.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment storage is not configured"})
		return
	}

	id := c.Param("conversation_id")
	object := c.Param("object")
	key := objectstore.StoredKey(id, object)

	reader, contentType, err := h.attachments.Download(c.Request.Context(), key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("attachment download failed")
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}

func (h *ConversationHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	h.log.Error().Err(err).Msg("conversation request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
