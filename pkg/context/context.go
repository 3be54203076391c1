package context

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type ctxKey string

const RequestIDKey ctxKey = "request_id"

// fiberRequestIDKey mirrors the header and Locals key used by the request id
// middleware.
const fiberRequestIDKey = "X-Request-ID"

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	requestID, ok := ctx.Value(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}

// FromFiberCtx returns the request's user context. When the request id
// middleware did not run, the id is looked up in Locals or the header instead.
func FromFiberCtx(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	if GetRequestID(ctx) != "unknown" {
		return ctx
	}

	requestID, _ := c.Locals(fiberRequestIDKey).(string)
	if requestID == "" {
		requestID = c.Get(fiberRequestIDKey)
	}
	if requestID == "" {
		return ctx
	}

	return WithRequestID(ctx, requestID)
}
