// Package middleware holds gin middleware shared across Pentagon's HTTP
// surface.
package middleware

import (
	"strings"

	"pentagon/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
	headerUserID    = "X-User-Id"
)

// CorrelationOptions controls how the incoming user-id header is treated.
type CorrelationOptions struct {
	// TrustUserIDHeader accepts an inbound X-User-Id header as-is. Off by
	// default: Pentagon has no authentication layer, so nothing upstream
	// of this middleware has actually verified the header's claim.
	TrustUserIDHeader bool
	// EchoUserIDHeader mirrors a trusted user id back onto the response.
	EchoUserIDHeader bool
}

// CorrelationMiddleware attaches trace, request, and (optionally) user IDs
// to the request context and to matching response headers, generating a
// fresh ID for any of the first two that arrived blank.
func CorrelationMiddleware() gin.HandlerFunc {
	return CorrelationMiddlewareWithOptions(CorrelationOptions{
		TrustUserIDHeader: true,
		EchoUserIDHeader:  true,
	})
}

// CorrelationMiddlewareWithOptions is the configurable form of
// CorrelationMiddleware.
func CorrelationMiddlewareWithOptions(opts CorrelationOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := coalesceHeader(c, headerTraceID)
		requestID := coalesceHeader(c, headerRequestID)

		ctx := contextkey.WithTraceID(c.Request.Context(), traceID)
		ctx = contextkey.WithRequestID(ctx, requestID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, requestID)

		if opts.TrustUserIDHeader {
			if userID := strings.TrimSpace(c.GetHeader(headerUserID)); userID != "" {
				ctx = contextkey.WithUserID(ctx, userID)
				if opts.EchoUserIDHeader {
					c.Writer.Header().Set(headerUserID, userID)
				}
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// coalesceHeader returns the trimmed header value, or a freshly generated
// UUID when it is absent or blank.
func coalesceHeader(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}
