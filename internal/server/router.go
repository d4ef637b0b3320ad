package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GatewayHandler describes the component that mediates a request between the
// network and the cache store. It allows injecting fake handlers during tests.
type GatewayHandler interface {
	Handle(fiber.Ctx) error
}

// GatewayHandlerFunc adapts a function to the GatewayHandler interface.
type GatewayHandlerFunc func(fiber.Ctx) error

// Handle makes GatewayHandlerFunc satisfy GatewayHandler.
func (f GatewayHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Origin     *Origin
	Gateway    GatewayHandler
	ListenPort int
}

const contextKeyRequestID = "_shellgate_request_id"

// NewApp builds a Fiber application with request-ID middleware and
// structured error handling. Every request, same-origin or foreign,
// ends up in the gateway handler; the origin decision lives there.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Origin == nil {
		return nil, errors.New("origin is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Origin))

	app.All("/*", func(c fiber.Ctx) error {
		return opts.Gateway.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并标记当前控制请求的缓存世代。
func requestContextMiddleware(origin *Origin) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		c.Set("X-Shell-Gate-Generation", origin.Generation)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// HostHeader 返回请求的 Host 头；缺省时退回 fiber 解析出的 Hostname。
func HostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}
