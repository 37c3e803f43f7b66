package middleware

import (
	"context"
	"strings"

	"arena/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader     = "X-Trace-Id"
	requestIDHeader   = "X-Request-Id"
	participantHeader = "X-Participant-Id"

	traceIDContextKey     = "trace_id"
	requestIDContextKey   = "request_id"
	participantContextKey = "participant_id"
)

// TraceContextMiddleware ensures trace/request/participant ids are in the
// request context and echoed back in response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(c.Request.Context(), contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(requestIDHeader, requestID)

		participantID := strings.TrimSpace(c.GetHeader(participantHeader))
		if participantID != "" {
			c.Set(participantContextKey, participantID)
			ctx = context.WithValue(c.Request.Context(), contextkey.ParticipantID, participantID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}
