package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyUserID holds the authenticated traveler id in the Gin context.
const ctxKeyUserID = "userID"

// Authenticator resolves a bearer access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// RequireAuth rejects requests without a valid access token with 401 and
// stores the resolved user id for downstream handlers.
//
// The token is read from "Authorization: Bearer <token>". WebSocket upgrades
// cannot set headers from a browser, so for those the "access_token" query
// parameter is accepted as well.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" && c.IsWebsocket() {
			token = c.Query("access_token")
		}
		if token == "" {
			abortUnauthorized(c, "missing access token")
			return
		}
		uid, err := a.Authenticate(c.Request.Context(), token)
		if err != nil || uid == "" {
			abortUnauthorized(c, "invalid or expired access token")
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return ctxString(c, ctxKeyUserID)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	abort(c, http.StatusUnauthorized, codeUnauthorized, msg)
}
