// Package routes coordinates all route registrations.
package routes

import (
	"github.com/gin-gonic/gin"

	"mailagent/internal/infrastructure/auth"
	"mailagent/internal/interfaces/httpserver/handlers"
	v1 "mailagent/internal/interfaces/httpserver/routes/v1"
)

// Provider coordinates all route registrations.
type Provider struct {
	handlers *handlers.Provider
	V1       *v1.Routes
}

// NewProvider constructs the route provider.
func NewProvider(handlerProvider *handlers.Provider, authValidator *auth.Validator) *Provider {
	return &Provider{
		handlers: handlerProvider,
		V1:       v1.NewRoutes(handlerProvider, authValidator),
	}
}

// Register attaches all available routes to the gin engine.
func (p *Provider) Register(engine *gin.Engine) {
	// The webhook authenticates with the provider's HMAC signature, never JWT.
	engine.POST("/receive-email", p.handlers.Inbound.Receive)

	p.V1.Register(engine)
}
