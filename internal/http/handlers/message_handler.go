// Message HTTP handlers.
//
//   - GET  /chats/{id}/messages   (cursor pagination, newest first, ETag)
//   - POST /chats/{id}/messages   (send fallback when the realtime channel
//     is unavailable; honors Idempotency-Key)
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/http/middleware"
	"github.com/tbourn/go-layover-backend/internal/services"
	"github.com/tbourn/go-layover-backend/internal/utils"
)

// HeaderReplayed marks a response served from a previously stored send.
const HeaderReplayed = "Idempotency-Replayed"

// PostMessageRequest is the JSON body for sending a message over HTTP.
type PostMessageRequest struct {
	// Content is trimmed; it must not be blank.
	Content string `json:"content" binding:"required" example:"Coffee at gate B12?"`
	// TempID is the client's optimistic id, echoed on the stored message.
	TempID string `json:"tempId,omitempty" binding:"omitempty,max=64" example:"3f0d5c1e-5b9e-4a77-9a43-0b0c1e2d3f4a"`
}

// ListMessagesResponse is one page of history, newest first.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Chat history
// @Description One page of messages, newest first. Pass nextCursor back as cursor for older messages. Supports weak ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Chat ID"  format(uuid)
// @Param       cursor         query   string  false  "Opaque cursor from a previous page"
// @Param       limit          query   int     false  "Page size"  minimum(1) maximum(100) default(30)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid cursor"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	chatID, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	cursor := c.Query("cursor")
	limit := utils.ParseLimit(c.Query("limit"), services.DefaultPageSize, services.MaxPageSize)

	count, newest, err := h.messages.Stats(ctx, uid, chatID)
	if err != nil {
		failService(c, err)
		return
	}
	scope := fmt.Sprintf("%s:%s:%d", chatID, cursor, limit)
	if notModified(c, weakETag("messages", scope, count, newest)) {
		return
	}

	page, err := h.messages.List(ctx, uid, chatID, cursor, limit)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: page.Messages, NextCursor: page.NextCursor})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message (HTTP fallback)
// @Description Stores a message and delivers it to the chat over the realtime channel. A repeated Idempotency-Key (or tempId) returns the stored message with Idempotency-Replayed: true instead of inserting a duplicate.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"
// @Param       id               path    string  true   "Chat ID"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message"
// @Success     201  {object}  domain.Message  "Stored"
// @Success     200  {object}  domain.Message  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true on replays"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	chatID, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	var req PostMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.messages.Send(c.Request.Context(), services.SendInput{
		UserID:    userID(c),
		ChatID:    chatID,
		Content:   req.Content,
		TempID:    req.TempID,
		Key:       key,
		Transport: services.TransportHTTP,
	})
	if err != nil {
		failService(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.Header(HeaderReplayed, strconv.FormatBool(res.Replayed))
	ok(c, status, res.Message)
}
