// Package realtime hosts the WebSocket hub. Each connection authenticates as
// one traveler, joins and leaves chat rooms, and sends messages; the hub
// fans stored messages out to the room and notifies participants who are
// not in it.
//
// All room and connection bookkeeping is owned by the Run goroutine and
// mutated only through channels. Each connection has a read pump and a write
// pump goroutine.
package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// ChatAuthorizer reports whether a traveler may join a chat.
type ChatAuthorizer interface {
	Get(ctx context.Context, userID, chatID string) (*domain.Chat, error)
}

// MessageSender stores a message sent over a connection.
type MessageSender interface {
	Send(ctx context.Context, in services.SendInput) (*services.SendResult, error)
}

// Options tunes connection handling.
type Options struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue is full is dropped.
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 8192
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type membership struct {
	client *Client
	chatID string
}

type outbound struct {
	chatID       string
	frame        []byte
	notify       []byte
	participants []string
	senderID     string
}

type directed struct {
	userID string
	frame  []byte
}

// Hub tracks connections and chat rooms.
type Hub struct {
	Chats    ChatAuthorizer
	Messages MessageSender
	Metrics  *observability.Metrics
	Log      zerolog.Logger
	opts     Options

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	publish    chan outbound
	direct     chan directed
	query      chan func()
	done       chan struct{}

	// Owned by Run.
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub constructs a Hub. Call Run before serving connections.
func NewHub(chats ChatAuthorizer, messages MessageSender, m *observability.Metrics, log zerolog.Logger, opts Options) *Hub {
	return &Hub{
		Chats:      chats,
		Messages:   messages,
		Metrics:    m,
		Log:        log.With().Str("component", "realtime").Logger(),
		opts:       opts.withDefaults(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		publish:    make(chan outbound, 256),
		direct:     make(chan directed, 256),
		query:      make(chan func()),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		users:      make(map[string]map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Run processes hub events until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			addTo(h.users, c.userID, c)
			h.Metrics.ConnOpened()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case m := <-h.join:
			if _, ok := h.clients[m.client]; !ok {
				continue
			}
			addTo(h.rooms, m.chatID, m.client)
			m.client.rooms[m.chatID] = struct{}{}

		case m := <-h.leave:
			removeFrom(h.rooms, m.chatID, m.client)
			delete(m.client.rooms, m.chatID)

		case ev := <-h.publish:
			h.fanOut(ev)

		case d := <-h.direct:
			for c := range h.users[d.userID] {
				h.deliver(c, d.frame)
			}

		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) fanOut(ev outbound) {
	for c := range h.rooms[ev.chatID] {
		h.deliver(c, ev.frame)
	}
	if ev.notify == nil {
		return
	}
	for _, uid := range ev.participants {
		if uid == ev.senderID || h.inRoom(uid, ev.chatID) {
			continue
		}
		for c := range h.users[uid] {
			h.deliver(c, ev.notify)
		}
	}
}

func (h *Hub) inRoom(userID, chatID string) bool {
	for c := range h.rooms[chatID] {
		if c.userID == userID {
			return true
		}
	}
	return false
}

// deliver queues frame on c, dropping c when its queue is full.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.Log.Warn().Str("user_id", c.userID).Msg("dropping slow connection")
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	removeFrom(h.users, c.userID, c)
	for chatID := range c.rooms {
		removeFrom(h.rooms, chatID, c)
	}
	close(c.send)
	h.Metrics.ConnClosed()
}

// PublishMessage implements services.Publisher.
func (h *Hub) PublishMessage(msg domain.Message, participants []string, senderName string) {
	payload := toWire(msg)
	frame, err := wire.Encode(wire.EventNewMessage, payload)
	if err != nil {
		h.Log.Error().Err(err).Msg("encode new_message")
		return
	}
	// The notification omits the sender's tempId.
	quiet := payload
	quiet.TempID = ""
	note, err := wire.Encode(wire.EventNotification, wire.Notification{
		Type:       string(services.NotifyNewMessage),
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Message:    &quiet,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("encode notification")
		return
	}
	ev := outbound{chatID: msg.ChatID, frame: frame, notify: note, participants: participants, senderID: msg.SenderID}
	select {
	case h.publish <- ev:
	case <-h.done:
	}
}

// Notify implements services.Publisher.
func (h *Hub) Notify(userID string, n services.Notification) {
	wn := wire.Notification{
		Type:       string(n.Type),
		ChatID:     n.ChatID,
		MessageID:  n.MessageID,
		SenderID:   n.SenderID,
		SenderName: n.SenderName,
		RequestID:  n.RequestID,
	}
	if n.Message != nil {
		m := toWire(*n.Message)
		wn.Message = &m
	}
	frame, err := wire.Encode(wire.EventNotification, wn)
	if err != nil {
		h.Log.Error().Err(err).Msg("encode notification")
		return
	}
	select {
	case h.direct <- directed{userID: userID, frame: frame}:
	case <-h.done:
	}
}

// Online reports whether userID has at least one open connection.
func (h *Hub) Online(userID string) bool {
	var ok bool
	h.inspect(func() { ok = len(h.users[userID]) > 0 })
	return ok
}

// RoomSize returns the number of connections joined to chatID.
func (h *Hub) RoomSize(chatID string) int {
	var n int
	h.inspect(func() { n = len(h.rooms[chatID]) })
	return n
}

func (h *Hub) inspect(fn func()) {
	wait := make(chan struct{})
	select {
	case h.query <- func() { fn(); close(wait) }:
		<-wait
	case <-h.done:
	}
}

func toWire(m domain.Message) wire.Message {
	return wire.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		TempID:    m.TempID,
	}
}

func addTo(set map[string]map[*Client]struct{}, key string, c *Client) {
	m, ok := set[key]
	if !ok {
		m = make(map[*Client]struct{})
		set[key] = m
	}
	m[c] = struct{}{}
}

func removeFrom(set map[string]map[*Client]struct{}, key string, c *Client) {
	m, ok := set[key]
	if !ok {
		return
	}
	delete(m, c)
	if len(m) == 0 {
		delete(set, key)
	}
}

var _ services.Publisher = (*Hub)(nil)
