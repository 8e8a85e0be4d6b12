package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/http/middleware"
)

// ServeWS godoc
// @ID          websocket
// @Summary     Realtime channel
// @Description Upgrades to a WebSocket. Client events: join_chat, leave_chat, send_message. Server events: new_message, notification, error. Browsers pass the access token as the access_token query parameter.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       access_token  query  string  false  "Access token (alternative to the Authorization header)"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /ws [get]
func (h *Handlers) ServeWS(c *gin.Context) {
	if !c.IsWebsocket() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "websocket upgrade required")
		return
	}
	if err := h.realtime.ServeWS(c.Writer, c.Request, userID(c)); err != nil {
		// The upgrader has already answered the client.
		middleware.LoggerFrom(c).Warn().Err(err).Str("user_id", userID(c)).Msg("websocket upgrade failed")
		c.Abort()
	}
}
