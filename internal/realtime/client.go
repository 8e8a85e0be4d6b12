package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
	"github.com/tbourn/go-layover-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Connections authenticate with a bearer access token, not cookies, so
	// the origin check adds nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one authenticated WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	// ctx scopes work done for this connection. It ends when either pump
	// exits or the request context does.
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the hub's Run goroutine.
	rooms map[string]struct{}
}

// ServeWS upgrades the request and serves the connection as userID until it
// closes. The caller must have authenticated userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, h.opts.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]struct{}),
	}
	select {
	case h.register <- c:
	case <-h.done:
		cancel()
		_ = conn.Close()
		return errors.New("realtime hub stopped")
	}
	h.Log.Debug().Str("user_id", userID).Msg("connection opened")

	go c.writePump()
	c.readPump()
	return nil
}

// readPump decodes frames until the connection fails. Sends are handled
// inline, so frames from one connection are processed in order.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
		c.hub.Log.Debug().Str("user_id", c.userID).Msg("connection closed")
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.Log.Debug().Err(err).Str("user_id", c.userID).Msg("read failed")
			}
			return
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame []byte) {
	env, err := wire.Decode(frame)
	if err != nil {
		c.fail(wire.CodeBadRequest, "malformed frame", "")
		return
	}
	ctx := c.ctx

	switch env.Type {
	case wire.EventJoinChat:
		var ref wire.ChatRef
		if err := wire.DecodeData(env, &ref); err != nil || strings.TrimSpace(ref.ChatID) == "" {
			c.fail(wire.CodeBadRequest, "chatId is required", "")
			return
		}
		if _, err := c.hub.Chats.Get(ctx, c.userID, ref.ChatID); err != nil {
			code, msg := errorCode(err)
			c.fail(code, msg, "")
			return
		}
		c.membership(c.hub.join, ref.ChatID)

	case wire.EventLeaveChat:
		var ref wire.ChatRef
		if err := wire.DecodeData(env, &ref); err != nil {
			c.fail(wire.CodeBadRequest, "chatId is required", "")
			return
		}
		c.membership(c.hub.leave, ref.ChatID)

	case wire.EventSendMessage:
		var in wire.SendMessage
		if err := wire.DecodeData(env, &in); err != nil || strings.TrimSpace(in.ChatID) == "" {
			c.fail(wire.CodeBadRequest, "chatId is required", in.TempID)
			return
		}
		if len(in.TempID) > domain.MaxTempIDLen {
			c.fail(wire.CodeBadRequest, "tempId is too long", "")
			return
		}
		res, err := c.hub.Messages.Send(ctx, services.SendInput{
			UserID:    c.userID,
			ChatID:    in.ChatID,
			Content:   in.Content,
			TempID:    in.TempID,
			Transport: services.TransportRealtime,
		})
		if err != nil {
			code, msg := errorCode(err)
			c.fail(code, msg, in.TempID)
			return
		}
		// Replays are not broadcast again; confirm them to this connection.
		if res.Replayed {
			if frame, err := wire.Encode(wire.EventNewMessage, toWire(*res.Message)); err == nil {
				c.enqueue(frame)
			}
		}

	default:
		c.fail(wire.CodeBadRequest, "unknown event "+env.Type, "")
	}
}

func (c *Client) membership(ch chan membership, chatID string) {
	select {
	case ch <- membership{client: c, chatID: chatID}:
	case <-c.hub.done:
	}
}

// fail sends an error frame to this connection only.
func (c *Client) fail(code, message, tempID string) {
	frame, err := wire.Encode(wire.EventError, wire.Error{Code: code, Message: message, TempID: tempID})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// enqueue hands frame to the write pump through the hub so the send channel
// is only ever closed by its single owner.
func (c *Client) enqueue(frame []byte) {
	done := make(chan struct{})
	select {
	case c.hub.query <- func() {
		if _, ok := c.hub.clients[c]; ok {
			c.hub.deliver(c, frame)
		}
		close(done)
	}:
		<-done
	case <-c.hub.done:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
	}()
	wt := c.hub.opts.WriteTimeout

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wt))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wt))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return wire.CodeNotFound, err.Error()
	case errors.Is(err, services.ErrEmptyContent):
		return wire.CodeEmptyContent, err.Error()
	case errors.Is(err, services.ErrTooLong):
		return wire.CodeTooLong, err.Error()
	default:
		return wire.CodeInternal, "internal error"
	}
}
