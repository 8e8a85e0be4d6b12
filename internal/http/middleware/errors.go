package middleware

import "github.com/gin-gonic/gin"

// Envelope codes written before a handler runs. The handlers package
// declares the same values for the codes it shares.
const (
	codeUnauthorized     = "unauthorized"
	codeRateLimited      = "too_many_requests"
	codeInternal         = "internal_error"
	codeBadIdempotency   = "bad_idempotency_key"
	internalErrorMessage = "internal server error"
)

// abort ends the chain with the JSON error envelope used across the API.
func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

func ctxString(c *gin.Context, key string) string {
	s, _ := c.Value(key).(string)
	return s
}
