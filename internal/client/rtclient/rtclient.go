// Package rtclient is the client side of the realtime channel. It carries
// Commands from the client core to the server and decodes server frames
// into Events, one reader goroutine per connection.
package rtclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
)

// Connection lifecycle events, delivered alongside the wire events.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Command is an outbound client event.
type Command struct {
	Type    string
	ChatID  string
	Content string
	TempID  string
}

// JoinChat subscribes the connection to a chat room.
func JoinChat(chatID string) Command { return Command{Type: wire.EventJoinChat, ChatID: chatID} }

// LeaveChat unsubscribes the connection from a chat room.
func LeaveChat(chatID string) Command { return Command{Type: wire.EventLeaveChat, ChatID: chatID} }

// SendMessage sends content to a chat; the confirmation echoes tempID.
func SendMessage(chatID, content, tempID string) Command {
	return Command{Type: wire.EventSendMessage, ChatID: chatID, Content: content, TempID: tempID}
}

func (c Command) frame() ([]byte, error) {
	switch c.Type {
	case wire.EventJoinChat, wire.EventLeaveChat:
		return wire.Encode(c.Type, wire.ChatRef{ChatID: c.ChatID})
	case wire.EventSendMessage:
		return wire.Encode(c.Type, wire.SendMessage{ChatID: c.ChatID, Content: c.Content, TempID: c.TempID})
	}
	return nil, fmt.Errorf("rtclient: unknown command %q", c.Type)
}

// Event is one inbound event. Exactly one payload is set for wire events;
// Err carries the cause of EventDisconnected, nil on a clean shutdown.
type Event struct {
	Type         string
	Message      *wire.Message
	Error        *wire.Error
	Notification *wire.Notification
	Err          error
}

// Client dials the realtime endpoint with the current access token.
type Client struct {
	URL          string
	Tokens       oauth2.TokenSource
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
	MaxFrame     int64
	Log          zerolog.Logger
}

// New returns a client for the ws:// or wss:// url.
func New(url string, tokens oauth2.TokenSource, log zerolog.Logger) *Client {
	return &Client{
		URL:          url,
		Tokens:       tokens,
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: 10 * time.Second,
		MaxFrame:     1 << 20,
		Log:          log.With().Str("component", "rtclient").Logger(),
	}
}

// Run serves one connection: it emits EventConnected, writes every command
// received on cmds, emits decoded frames on events, and returns when ctx
// ends, cmds is closed or the connection fails. EventDisconnected is always
// the last event of a connection that was established. Callers reconnect by
// calling Run again.
func (c *Client) Run(ctx context.Context, cmds <-chan Command, events chan<- Event) error {
	tok, err := c.Tokens.Token()
	if err != nil {
		return fmt.Errorf("rtclient: token: %w", err)
	}
	hdr := http.Header{}
	hdr.Set("Authorization", tok.Type()+" "+tok.AccessToken)

	conn, res, err := c.Dialer.DialContext(ctx, c.URL, hdr)
	if err != nil {
		if res != nil && res.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("rtclient: dial: %w", apiclient.ErrUnauthorized)
		}
		return fmt.Errorf("rtclient: dial: %w", err)
	}
	conn.SetReadLimit(c.MaxFrame)
	c.Log.Debug().Str("url", c.URL).Msg("connected")
	emit(ctx, events, Event{Type: EventConnected})

	readErr := make(chan error, 1)
	go func() { readErr <- c.read(ctx, conn, events) }()

	closeConn := func() error {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
		return <-readErr
	}

	var cause error
loop:
	for {
		select {
		case <-ctx.Done():
			closeConn()
			break loop
		case err := <-readErr:
			cause = err
			_ = conn.Close()
			break loop
		case cmd, ok := <-cmds:
			if !ok {
				closeConn()
				break loop
			}
			if err := c.write(conn, cmd); err != nil {
				cause = err
				closeConn()
				break loop
			}
		}
	}

	c.Log.Debug().Err(cause).Msg("disconnected")
	emit(ctx, events, Event{Type: EventDisconnected, Err: cause})
	return cause
}

func (c *Client) write(conn *websocket.Conn, cmd Command) error {
	frame, err := cmd.frame()
	if err != nil {
		c.Log.Warn().Err(err).Msg("command dropped")
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn, events chan<- Event) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		ev, ok := c.decode(frame)
		if !ok {
			continue
		}
		if !emit(ctx, events, ev) {
			return nil
		}
	}
}

func (c *Client) decode(frame []byte) (Event, bool) {
	env, err := wire.Decode(frame)
	if err != nil {
		c.Log.Warn().Err(err).Msg("malformed frame")
		return Event{}, false
	}
	ev := Event{Type: env.Type}
	switch env.Type {
	case wire.EventNewMessage:
		ev.Message = &wire.Message{}
		err = wire.DecodeData(env, ev.Message)
	case wire.EventError:
		ev.Error = &wire.Error{}
		err = wire.DecodeData(env, ev.Error)
	case wire.EventNotification:
		ev.Notification = &wire.Notification{}
		err = wire.DecodeData(env, ev.Notification)
	default:
		c.Log.Debug().Str("type", env.Type).Msg("unknown event ignored")
		return Event{}, false
	}
	if err != nil {
		c.Log.Warn().Err(err).Str("type", env.Type).Msg("malformed payload")
		return Event{}, false
	}
	return ev, true
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
