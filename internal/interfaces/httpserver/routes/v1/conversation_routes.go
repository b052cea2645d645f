package v1

import (
	"github.com/gin-gonic/gin"

	"mailagent/internal/interfaces/httpserver/handlers"
)

func registerConversationRoutes(group *gin.RouterGroup, handler *handlers.ConversationHandler) {
	conversations := group.Group("/conversations")
	conversations.GET("", handler.List)
	conversations.GET("/:conversation_id", handler.Get)
	conversations.DELETE("/:conversation_id", handler.Delete)
	conversations.GET("/:conversation_id/usage", handler.Usage)
	conversations.GET("/:conversation_id/attachments/:object", handler.DownloadAttachment)
}
