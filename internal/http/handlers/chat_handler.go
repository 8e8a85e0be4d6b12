// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - GET  /chats/journey/{journeyId}   (summaries, ETag support)
//   - POST /chats/{id}/read             (reset my unread count)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListChats godoc
// @ID          listChats
// @Summary     Chats of one of my journeys
// @Description Chat summaries (counterpart, last message, my unread count) ordered by latest activity. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       journeyId      path    string  true   "Journey ID"                  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   services.ChatSummary
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Journey not found"
// @Router      /chats/journey/{journeyId} [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	jid, valid := uuidParam(c, "journeyId")
	if !valid {
		return
	}

	count, newest, err := h.chats.Stats(ctx, uid, jid)
	if err != nil {
		failService(c, err)
		return
	}
	if notModified(c, weakETag("chats", uid+":"+jid, count, newest)) {
		return
	}

	items, err := h.chats.ListForJourney(ctx, uid, jid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// MarkChatRead godoc
// @ID          markChatRead
// @Summary     Mark a chat as read
// @Description Moves my read marker to now; my unread count for this chat becomes 0.
// @Tags        Chats
// @Security    BearerAuth
// @Param       id   path      string  true  "Chat ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/read [post]
func (h *Handlers) MarkChatRead(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	if err := h.chats.MarkRead(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
