package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// fakeChats allows ada and bo into chat c1.
type fakeChats struct{}

func (fakeChats) Get(_ context.Context, userID, chatID string) (*domain.Chat, error) {
	if chatID != "c1" || (userID != "ada" && userID != "bo") {
		return nil, services.ErrChatNotFound
	}
	return &domain.Chat{ID: "c1", Match: domain.MatchRequest{SenderID: "ada", ReceiverID: "bo"}}, nil
}

// fakeSender stores messages in memory and publishes through the hub.
type fakeSender struct {
	mu   sync.Mutex
	hub  *Hub
	seen map[string]domain.Message
}

func (f *fakeSender) Send(_ context.Context, in services.SendInput) (*services.SendResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, services.ErrEmptyContent
	}
	if _, err := (fakeChats{}).Get(context.Background(), in.UserID, in.ChatID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.seen == nil {
		f.seen = map[string]domain.Message{}
	}
	if m, ok := f.seen[in.TempID]; ok && in.TempID != "" {
		f.mu.Unlock()
		m.TempID = in.TempID
		return &services.SendResult{Message: &m, Replayed: true}, nil
	}
	m := domain.Message{ID: "m" + in.TempID, ChatID: in.ChatID, SenderID: in.UserID, Content: in.Content, CreatedAt: time.Now().UTC(), TempID: in.TempID}
	f.seen[in.TempID] = m
	f.mu.Unlock()

	f.hub.PublishMessage(m, []string{"ada", "bo"}, in.UserID)
	return &services.SendResult{Message: &m}, nil
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	sender := &fakeSender{}
	h := NewHub(fakeChats{}, sender, nil, zerolog.Nop(), Options{PongTimeout: 5 * time.Second})
	sender.hub = h

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, h *Hub, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	waitFor(t, func() bool { return h.Online(user) })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	frame, err := wire.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := wire.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func join(t *testing.T, h *Hub, conn *websocket.Conn, chatID string, want int) {
	t.Helper()
	send(t, conn, wire.EventJoinChat, wire.ChatRef{ChatID: chatID})
	waitFor(t, func() bool { return h.RoomSize(chatID) == want })
}

func TestHub_RoomBroadcastEchoesTempID(t *testing.T) {
	h, srv := newTestHub(t)
	ada := dial(t, h, srv, "ada")
	bo := dial(t, h, srv, "bo")
	join(t, h, ada, "c1", 1)
	join(t, h, bo, "c1", 2)

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "hi", TempID: "t1"})

	for _, conn := range []*websocket.Conn{ada, bo} {
		env := read(t, conn)
		if env.Type != wire.EventNewMessage {
			t.Fatalf("type = %s", env.Type)
		}
		var m wire.Message
		if err := wire.DecodeData(env, &m); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if m.Content != "hi" || m.TempID != "t1" || m.SenderID != "ada" || m.ChatID != "c1" {
			t.Fatalf("message = %+v", m)
		}
	}
}

func TestHub_NotifiesParticipantOutsideRoom(t *testing.T) {
	h, srv := newTestHub(t)
	ada := dial(t, h, srv, "ada")
	bo := dial(t, h, srv, "bo")
	join(t, h, ada, "c1", 1)

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "are you at B12?", TempID: "t2"})

	if env := read(t, ada); env.Type != wire.EventNewMessage {
		t.Fatalf("sender got %s", env.Type)
	}
	env := read(t, bo)
	if env.Type != wire.EventNotification {
		t.Fatalf("outside participant got %s", env.Type)
	}
	var n wire.Notification
	if err := wire.DecodeData(env, &n); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if n.Type != "NEW_MESSAGE" || n.ChatID != "c1" || n.SenderID != "ada" || n.Message == nil || n.Message.TempID != "" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h, srv := newTestHub(t)
	ada := dial(t, h, srv, "ada")
	bo := dial(t, h, srv, "bo")
	join(t, h, ada, "c1", 1)
	join(t, h, bo, "c1", 2)

	send(t, bo, wire.EventLeaveChat, wire.ChatRef{ChatID: "c1"})
	waitFor(t, func() bool { return h.RoomSize("c1") == 1 })

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "still there?", TempID: "t3"})
	if env := read(t, bo); env.Type != wire.EventNotification {
		t.Fatalf("after leave expected a notification, got %s", env.Type)
	}
}

func TestHub_Errors(t *testing.T) {
	h, srv := newTestHub(t)
	ada := dial(t, h, srv, "ada")
	eve := dial(t, h, srv, "eve")

	send(t, eve, wire.EventJoinChat, wire.ChatRef{ChatID: "c1"})
	env := read(t, eve)
	var e wire.Error
	_ = wire.DecodeData(env, &e)
	if env.Type != wire.EventError || e.Code != wire.CodeNotFound {
		t.Fatalf("stranger join = %s %+v", env.Type, e)
	}
	if h.RoomSize("c1") != 0 {
		t.Fatalf("stranger must not join")
	}

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "   ", TempID: "t4"})
	env = read(t, ada)
	e = wire.Error{}
	_ = wire.DecodeData(env, &e)
	if env.Type != wire.EventError || e.Code != wire.CodeEmptyContent || e.TempID != "t4" {
		t.Fatalf("empty send = %s %+v", env.Type, e)
	}

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "hi", TempID: strings.Repeat("x", domain.MaxTempIDLen+1)})
	env = read(t, ada)
	e = wire.Error{}
	_ = wire.DecodeData(env, &e)
	if env.Type != wire.EventError || e.Code != wire.CodeBadRequest || e.TempID != "" {
		t.Fatalf("oversized tempId = %s %+v", env.Type, e)
	}

	send(t, ada, "dance", nil)
	if env := read(t, ada); env.Type != wire.EventError {
		t.Fatalf("unknown event = %s", env.Type)
	}
}

func TestHub_ReplayConfirmsSenderOnly(t *testing.T) {
	h, srv := newTestHub(t)
	ada := dial(t, h, srv, "ada")
	bo := dial(t, h, srv, "bo")
	join(t, h, ada, "c1", 1)
	join(t, h, bo, "c1", 2)

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "once", TempID: "t5"})
	read(t, ada)
	read(t, bo)

	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "once", TempID: "t5"})
	env := read(t, ada)
	var m wire.Message
	_ = wire.DecodeData(env, &m)
	if env.Type != wire.EventNewMessage || m.ID != "mt5" || m.TempID != "t5" {
		t.Fatalf("replay = %s %+v", env.Type, m)
	}

	_ = bo.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := bo.ReadMessage(); err == nil {
		t.Fatalf("replay must not be broadcast")
	}
}

func TestHub_NotifyAndDisconnect(t *testing.T) {
	h, srv := newTestHub(t)
	bo := dial(t, h, srv, "bo")

	h.Notify("bo", services.Notification{Type: services.NotifyRequest, RequestID: "r1", SenderID: "ada"})
	env := read(t, bo)
	var n wire.Notification
	_ = wire.DecodeData(env, &n)
	if env.Type != wire.EventNotification || n.Type != "REQUEST" || n.RequestID != "r1" {
		t.Fatalf("notify = %s %+v", env.Type, n)
	}

	_ = bo.Close()
	waitFor(t, func() bool { return !h.Online("bo") })
	// Delivery to an offline user is a no-op.
	h.Notify("bo", services.Notification{Type: services.NotifyRequest})
}

// blockingSender parks every send until its context ends.
type blockingSender struct {
	started chan struct{}
	ended   chan error
}

func (b *blockingSender) Send(ctx context.Context, _ services.SendInput) (*services.SendResult, error) {
	close(b.started)
	<-ctx.Done()
	b.ended <- ctx.Err()
	return nil, ctx.Err()
}

func TestHub_StopCancelsInFlightSend(t *testing.T) {
	sender := &blockingSender{started: make(chan struct{}), ended: make(chan error, 1)}
	h := NewHub(fakeChats{}, sender, nil, zerolog.Nop(), Options{PongTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	ada := dial(t, h, srv, "ada")
	send(t, ada, wire.EventSendMessage, wire.SendMessage{ChatID: "c1", Content: "hi", TempID: "t9"})
	select {
	case <-sender.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("send never reached the message service")
	}

	cancel()
	select {
	case err := <-sender.ended:
		if err != context.Canceled {
			t.Fatalf("send context err = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight send outlived its connection")
	}
}
