// Package middleware holds the Gin middleware in front of the layover API
// handlers. RequestID runs first; RedactingLogger and Recovery follow so
// that panics are logged with the request-scoped logger.
package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client-supplied correlation ids.
	maxRequestIDLen = 128
)

// RequestID adopts the caller's X-Request-ID when it is printable ASCII of
// reasonable length, otherwise mints a UUIDv4. The id is echoed on the
// response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation id of the request, if any.
func RequestIDFrom(c *gin.Context) string {
	return ctxString(c, requestIDKey)
}

// LoggerFrom returns the logger RedactingLogger attached to the request, or
// the global logger. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	l := log.Logger
	return &l
}

// Recovery turns a handler panic into a 500 envelope. A panic after the
// response started (an upgraded WebSocket, a streamed body) only aborts.
// http.ErrAbortHandler is the conventional silent abort and is not logged
// as an error.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			lg := LoggerFrom(c)
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				lg.Debug().Msg("handler aborted")
				c.Abort()
				return
			}
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", RequestIDFrom(c)).
				Str("user_id", UserID(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abort(c, http.StatusInternalServerError, codeInternal, internalErrorMessage)
		}()
		c.Next()
	}
}
