// Package v1 registers the versioned admin API.
package v1

import (
	"github.com/gin-gonic/gin"

	"mailagent/internal/infrastructure/auth"
	"mailagent/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	auth     *auth.Validator
}

// NewRoutes builds the v1 route registrar.
func NewRoutes(handlerProvider *handlers.Provider, authValidator *auth.Validator) *Routes {
	return &Routes{
		handlers: handlerProvider,
		auth:     authValidator,
	}
}

// Register attaches all v1 routes under the /v1 prefix.
func (r *Routes) Register(engine *gin.Engine) {
	group := engine.Group("/v1")
	if r.auth != nil {
		group.Use(r.auth.Middleware())
	}

	registerConversationRoutes(group, r.handlers.Conversation)
}
