// Package chatsync keeps the client's view of chats consistent: journey
// chat lists with unread counts and last messages, per-chat message
// sequences oldest first, optimistic sends reconciled by tempId, and the
// inbound realtime events that change them.
//
// All state lives in copy-on-write stores and every change replaces a whole
// entry, so readers never observe a half-applied update. Inbound events are
// drained from a channel by Run and outbound realtime commands are published
// on the channel returned by Outbound.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
	"github.com/tbourn/go-layover-backend/internal/client/rtclient"
	"github.com/tbourn/go-layover-backend/internal/client/state"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
)

var (
	// ErrDiscarded is returned by LoadMessages when the chat was closed
	// while the page was in flight; the page is not applied.
	ErrDiscarded = errors.New("chatsync: chat closed before the page arrived")
	// ErrNoFailedMessage is returned by RetryMessage when no failed send
	// with that tempId exists.
	ErrNoFailedMessage = errors.New("chatsync: no failed message with that tempId")
	// ErrOffline fails sends that were pending when the realtime
	// connection dropped.
	ErrOffline = errors.New("chatsync: realtime connection lost")
)

// Status is the delivery state of an entry.
type Status int

const (
	StatusSent Status = iota
	StatusPending
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	}
	return "sent"
}

// Entry is one message in a chat. TempID is set only while the entry is an
// unconfirmed local send.
type Entry struct {
	apiclient.Message
	Status Status
	Reason string
}

// Chat is the client state of one chat.
type Chat struct {
	Summary    apiclient.ChatSummary
	Messages   []Entry // oldest first
	NextCursor string
}

// Page is the result of LoadMessages, oldest first.
type Page struct {
	Messages   []Entry
	NextCursor string
}

// API is the subset of the HTTP client the synchronizer uses.
type API interface {
	ListChats(ctx context.Context, journeyID, etag string) (apiclient.ChatList, error)
	ListMessages(ctx context.Context, chatID, cursor string, limit int) (apiclient.MessagePage, error)
	PostMessage(ctx context.Context, chatID string, in apiclient.PostMessage) (apiclient.Message, bool, error)
	MarkChatRead(ctx context.Context, chatID string) error
}

// Options configures a Synchronizer.
type Options struct {
	// Self is the signed-in traveler; their own messages never count as
	// unread.
	Self string
	Log  zerolog.Logger
	// OutboundBuffer sizes the command channel. Defaults to 64.
	OutboundBuffer int
	// NewTempID generates optimistic ids. Defaults to random UUIDs.
	NewTempID func() string
	Now       func() time.Time
}

type journeyChats struct {
	ids     []string
	etag    string
	loading bool
}

type room struct {
	open int
	gen  uint64
}

// Synchronizer is safe for concurrent use.
type Synchronizer struct {
	api  API
	self string
	log  zerolog.Logger

	chats    *state.Store[string, Chat]
	journeys *state.Store[string, journeyChats]
	rooms    *state.Store[string, room]

	online        atomic.Bool
	out           chan rtclient.Command
	notifications chan wire.Notification

	newTempID func() string
	now       func() time.Time
}

// New returns an offline synchronizer; sends use the HTTP fallback until
// Run sees the realtime connection come up.
func New(api API, opts Options) *Synchronizer {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = 64
	}
	if opts.NewTempID == nil {
		opts.NewTempID = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Synchronizer{
		api:           api,
		self:          opts.Self,
		log:           opts.Log.With().Str("component", "chatsync").Logger(),
		chats:         state.New[string, Chat](),
		journeys:      state.New[string, journeyChats](),
		rooms:         state.New[string, room](),
		out:           make(chan rtclient.Command, opts.OutboundBuffer),
		notifications: make(chan wire.Notification, opts.OutboundBuffer),
		newTempID:     opts.NewTempID,
		now:           opts.Now,
	}
}

// Outbound carries commands for the realtime connection.
func (s *Synchronizer) Outbound() <-chan rtclient.Command { return s.out }

// Notifications carries realtime notifications for the UI. Notifications
// are dropped when nobody drains the channel.
func (s *Synchronizer) Notifications() <-chan wire.Notification { return s.notifications }

// Online reports whether sends currently go over the realtime channel.
func (s *Synchronizer) Online() bool { return s.online.Load() }

// ---- chat lists ----

// LoadChats refreshes the chat list of a journey. The previous ETag makes
// the fetch conditional; on 304 the cached list is returned.
func (s *Synchronizer) LoadChats(ctx context.Context, journeyID string) ([]apiclient.ChatSummary, error) {
	var etag string
	s.journeys.Update(journeyID, func(cur journeyChats, _ bool) (journeyChats, bool) {
		etag = cur.etag
		cur.loading = true
		return cur, true
	})
	list, err := s.api.ListChats(ctx, journeyID, etag)
	if err != nil {
		s.setLoading(journeyID, false)
		return nil, err
	}

	if !list.NotModified {
		ids := make([]string, 0, len(list.Chats))
		for _, sum := range list.Chats {
			sum := sum
			ids = append(ids, sum.ID)
			s.chats.Update(sum.ID, func(cur Chat, _ bool) (Chat, bool) {
				cur.Summary = sum
				return cur, true
			})
		}
		s.journeys.Update(journeyID, func(cur journeyChats, _ bool) (journeyChats, bool) {
			cur.ids, cur.etag = ids, list.ETag
			return cur, true
		})
	}
	s.setLoading(journeyID, false)
	return s.Chats(journeyID), nil
}

func (s *Synchronizer) setLoading(journeyID string, v bool) {
	s.journeys.Update(journeyID, func(cur journeyChats, _ bool) (journeyChats, bool) {
		cur.loading = v
		return cur, true
	})
}

// Loading reports whether a chat list fetch for the journey is in flight.
func (s *Synchronizer) Loading(journeyID string) bool {
	j, _ := s.journeys.Get(journeyID)
	return j.loading
}

// Chats returns the journey's chat summaries, most recent activity first.
func (s *Synchronizer) Chats(journeyID string) []apiclient.ChatSummary {
	j, _ := s.journeys.Get(journeyID)
	chats := s.chats.Snapshot()
	out := make([]apiclient.ChatSummary, 0, len(j.ids))
	for _, id := range j.ids {
		if c, ok := chats[id]; ok {
			out = append(out, c.Summary)
		}
	}
	return out
}

// Chat returns the state of one chat.
func (s *Synchronizer) Chat(chatID string) (Chat, bool) { return s.chats.Get(chatID) }

// Messages returns a chat's messages, oldest first.
func (s *Synchronizer) Messages(chatID string) []Entry {
	c, _ := s.chats.Get(chatID)
	return c.Messages
}

// ---- history ----

// LoadMessages fetches a page of history. An empty cursor loads the newest
// page and replaces what is held, keeping unconfirmed sends; a cursor from
// a previous page prepends older messages. Limit <= 0 uses the default page
// size.
func (s *Synchronizer) LoadMessages(ctx context.Context, chatID, cursor string, limit int) (Page, error) {
	gen := s.generation(chatID)
	res, err := s.api.ListMessages(ctx, chatID, cursor, limit)
	if err != nil {
		return Page{}, err
	}
	if s.generation(chatID) != gen {
		s.log.Debug().Str("chat_id", chatID).Msg("history page discarded")
		return Page{}, ErrDiscarded
	}

	page := Page{Messages: make([]Entry, 0, len(res.Messages)), NextCursor: res.NextCursor}
	for i := len(res.Messages) - 1; i >= 0; i-- {
		m := res.Messages[i]
		m.TempID = ""
		page.Messages = append(page.Messages, Entry{Message: m, Status: StatusSent})
	}

	s.chats.Update(chatID, func(cur Chat, _ bool) (Chat, bool) {
		if cursor == "" {
			cur.Messages = mergeNewest(page.Messages, cur.Messages)
		} else {
			cur.Messages = prependOlder(page.Messages, cur.Messages)
		}
		cur.NextCursor = page.NextCursor
		return cur, true
	})
	return page, nil
}

// mergeNewest keeps the fetched page plus held entries it cannot contain:
// unconfirmed sends and messages that arrived after the page was cut.
func mergeNewest(page, held []Entry) []Entry {
	out := make([]Entry, 0, len(page)+len(held))
	out = append(out, page...)
	seen := make(map[string]struct{}, len(page))
	for _, e := range page {
		seen[e.ID] = struct{}{}
	}
	var newest time.Time
	if n := len(page); n > 0 {
		newest = page[n-1].CreatedAt
	}
	for _, e := range held {
		if e.Status != StatusSent {
			out = append(out, e)
			continue
		}
		if _, dup := seen[e.ID]; !dup && e.CreatedAt.After(newest) {
			out = append(out, e)
		}
	}
	return out
}

func prependOlder(page, held []Entry) []Entry {
	have := make(map[string]struct{}, len(held))
	for _, e := range held {
		if e.ID != "" {
			have[e.ID] = struct{}{}
		}
	}
	out := make([]Entry, 0, len(page)+len(held))
	for _, e := range page {
		if _, dup := have[e.ID]; !dup {
			out = append(out, e)
		}
	}
	return append(out, held...)
}

// ---- sending ----

// SendMessage appends an optimistic entry and sends it over the realtime
// channel, or over HTTP while offline. It returns the entry's tempId; a
// failed send leaves the entry in place marked StatusFailed.
func (s *Synchronizer) SendMessage(ctx context.Context, chatID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apiclient.ErrEmptyContent
	}
	e := Entry{
		Message: apiclient.Message{
			ChatID:    chatID,
			SenderID:  s.self,
			Content:   content,
			CreatedAt: s.now(),
			TempID:    s.newTempID(),
		},
		Status: StatusPending,
	}
	s.chats.Update(chatID, func(cur Chat, _ bool) (Chat, bool) {
		cur.Messages = appendEntry(cur.Messages, e)
		return cur, true
	})
	return e.TempID, s.dispatch(ctx, e)
}

// RetryMessage re-sends a failed entry with the same tempId.
func (s *Synchronizer) RetryMessage(ctx context.Context, chatID, tempID string) error {
	var (
		e     Entry
		found bool
	)
	s.chats.Update(chatID, func(cur Chat, ok bool) (Chat, bool) {
		found = false
		i := indexTemp(cur.Messages, tempID)
		if i < 0 || cur.Messages[i].Status != StatusFailed {
			return cur, ok
		}
		found = true
		e = cur.Messages[i]
		e.Status, e.Reason = StatusPending, ""
		cur.Messages = replaceAt(cur.Messages, i, e)
		return cur, true
	})
	if !found {
		return ErrNoFailedMessage
	}
	return s.dispatch(ctx, e)
}

func (s *Synchronizer) dispatch(ctx context.Context, e Entry) error {
	log := s.log.With().Str("chat_id", e.ChatID).Str("temp_id", e.TempID).Logger()
	if s.online.Load() {
		select {
		case s.out <- rtclient.SendMessage(e.ChatID, e.Content, e.TempID):
			return nil
		case <-ctx.Done():
			s.markFailed(e.ChatID, e.TempID, ctx.Err())
			return ctx.Err()
		}
	}

	msg, replayed, err := s.api.PostMessage(ctx, e.ChatID, apiclient.PostMessage{
		Content:        e.Content,
		TempID:         e.TempID,
		IdempotencyKey: e.TempID,
	})
	if err != nil {
		log.Warn().Err(err).Msg("send failed")
		s.markFailed(e.ChatID, e.TempID, err)
		return fmt.Errorf("send message: %w", err)
	}
	log.Debug().Bool("replayed", replayed).Msg("sent over http")
	msg.TempID = e.TempID
	s.ApplyIncomingMessage(msg)
	return nil
}

func (s *Synchronizer) markFailed(chatID, tempID string, cause error) {
	s.chats.Update(chatID, func(cur Chat, ok bool) (Chat, bool) {
		i := indexTemp(cur.Messages, tempID)
		if i < 0 || cur.Messages[i].Status != StatusPending {
			return cur, ok
		}
		e := cur.Messages[i]
		e.Status, e.Reason = StatusFailed, cause.Error()
		cur.Messages = replaceAt(cur.Messages, i, e)
		return cur, true
	})
}

// failByTempID marks a pending send failed without knowing its chat, as
// for realtime error frames.
func (s *Synchronizer) failByTempID(tempID string, cause error) bool {
	for id, c := range s.chats.Snapshot() {
		if indexTemp(c.Messages, tempID) >= 0 {
			s.markFailed(id, tempID, cause)
			return true
		}
	}
	return false
}

func (s *Synchronizer) failAllPending(cause error) {
	for id, c := range s.chats.Snapshot() {
		for _, e := range c.Messages {
			if e.Status == StatusPending {
				s.markFailed(id, e.TempID, cause)
			}
		}
	}
}

// ---- inbound ----

// ApplyIncomingMessage folds a server message into the chat. A message
// carrying the tempId of a local send replaces that entry in place;
// otherwise it is appended once, deduplicated by id. Messages from the
// other participant bump the unread count, and the chat moves to the front
// of every journey list holding it. It reports whether anything changed.
func (s *Synchronizer) ApplyIncomingMessage(msg apiclient.Message) bool {
	var (
		changed bool
		stored  = msg
	)
	stored.TempID = ""

	s.chats.Update(msg.ChatID, func(cur Chat, ok bool) (Chat, bool) {
		changed = false
		confirmed := false
		if msg.TempID != "" {
			if i := indexTemp(cur.Messages, msg.TempID); i >= 0 {
				if j := indexID(cur.Messages, msg.ID); j >= 0 {
					// Another connection of ours already delivered it.
					cur.Messages = removeAt(cur.Messages, i)
				} else {
					cur.Messages = replaceAt(cur.Messages, i, Entry{Message: stored, Status: StatusSent})
				}
				confirmed = true
			}
		}
		if !confirmed {
			if indexID(cur.Messages, msg.ID) >= 0 {
				return cur, ok
			}
			cur.Messages = appendEntry(cur.Messages, Entry{Message: stored, Status: StatusSent})
			if msg.SenderID != s.self {
				cur.Summary.UnreadCount++
			}
		}
		last := stored
		at := stored.CreatedAt
		cur.Summary.LastMessage = &last
		cur.Summary.LastMessageAt = &at
		changed = true
		return cur, true
	})

	if changed {
		s.moveToFront(msg.ChatID)
	}
	return changed
}

func (s *Synchronizer) moveToFront(chatID string) {
	for jid, j := range s.journeys.Snapshot() {
		if indexOf(j.ids, chatID) < 0 {
			continue
		}
		s.journeys.Update(jid, func(cur journeyChats, ok bool) (journeyChats, bool) {
			i := indexOf(cur.ids, chatID)
			if i <= 0 {
				return cur, ok
			}
			ids := make([]string, 0, len(cur.ids))
			ids = append(ids, chatID)
			ids = append(ids, cur.ids[:i]...)
			ids = append(ids, cur.ids[i+1:]...)
			cur.ids = ids
			return cur, true
		})
	}
}

// MarkChatAsRead zeroes the chat's unread count locally and on the server.
func (s *Synchronizer) MarkChatAsRead(ctx context.Context, chatID string) error {
	s.chats.Update(chatID, func(cur Chat, ok bool) (Chat, bool) {
		if ok {
			cur.Summary.UnreadCount = 0
		}
		return cur, ok
	})
	return s.api.MarkChatRead(ctx, chatID)
}

// Run drains realtime events until ctx ends or events is closed.
func (s *Synchronizer) Run(ctx context.Context, events <-chan rtclient.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.online.Store(false)
				return nil
			}
			s.handle(ev)
		}
	}
}

func (s *Synchronizer) handle(ev rtclient.Event) {
	switch ev.Type {
	case rtclient.EventConnected:
		s.online.Store(true)
		for id, r := range s.rooms.Snapshot() {
			if r.open > 0 {
				s.publish(rtclient.JoinChat(id))
			}
		}
	case rtclient.EventDisconnected:
		s.online.Store(false)
		s.failAllPending(ErrOffline)
	case wire.EventNewMessage:
		if ev.Message != nil {
			s.ApplyIncomingMessage(fromWire(*ev.Message))
		}
	case wire.EventError:
		if ev.Error == nil {
			return
		}
		cause := fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)
		if ev.Error.TempID == "" || !s.failByTempID(ev.Error.TempID, cause) {
			s.log.Warn().Str("code", ev.Error.Code).Msg("realtime error")
		}
	case wire.EventNotification:
		if ev.Notification == nil {
			return
		}
		if m := ev.Notification.Message; m != nil {
			s.ApplyIncomingMessage(fromWire(*m))
		}
		select {
		case s.notifications <- *ev.Notification:
		default:
			s.log.Debug().Str("type", ev.Notification.Type).Msg("notification dropped")
		}
	}
}

func fromWire(m wire.Message) apiclient.Message {
	return apiclient.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		TempID:    m.TempID,
	}
}

// publish enqueues a room command without blocking; it is dropped when the
// buffer is full since EventConnected replays joins for every open room.
func (s *Synchronizer) publish(cmd rtclient.Command) {
	select {
	case s.out <- cmd:
	default:
		s.log.Warn().Str("type", cmd.Type).Str("chat_id", cmd.ChatID).Msg("command dropped")
	}
}

// ---- rooms ----

// Room is an open chat screen. Close it when the screen goes away.
type Room struct {
	s      *Synchronizer
	chatID string
	once   sync.Once
}

// OpenChat joins the chat's realtime room.
func (s *Synchronizer) OpenChat(chatID string) *Room {
	r := s.rooms.Update(chatID, func(cur room, _ bool) (room, bool) {
		cur.open++
		return cur, true
	})
	if r.open == 1 && s.online.Load() {
		s.publish(rtclient.JoinChat(chatID))
	}
	return &Room{s: s, chatID: chatID}
}

// ChatID is the chat the room belongs to.
func (r *Room) ChatID() string { return r.chatID }

// Close leaves the room and discards history pages still in flight for it.
func (r *Room) Close() {
	r.once.Do(func() {
		next := r.s.rooms.Update(r.chatID, func(cur room, _ bool) (room, bool) {
			if cur.open > 0 {
				cur.open--
			}
			cur.gen++
			return cur, true
		})
		if next.open == 0 && r.s.online.Load() {
			r.s.publish(rtclient.LeaveChat(r.chatID))
		}
	})
}

func (s *Synchronizer) generation(chatID string) uint64 {
	r, _ := s.rooms.Get(chatID)
	return r.gen
}

// ---- reset ----

// ClearChatsForJourney forgets a journey's chat list and every chat no other
// journey list references.
func (s *Synchronizer) ClearChatsForJourney(journeyID string) {
	j, ok := s.journeys.Get(journeyID)
	if !ok {
		return
	}
	s.journeys.Delete(journeyID)
	keep := make(map[string]struct{})
	for _, other := range s.journeys.Snapshot() {
		for _, id := range other.ids {
			keep[id] = struct{}{}
		}
	}
	drop := make(map[string]struct{}, len(j.ids))
	for _, id := range j.ids {
		if _, kept := keep[id]; !kept {
			drop[id] = struct{}{}
		}
	}
	s.chats.DeleteFunc(func(id string, _ Chat) bool {
		_, d := drop[id]
		return d
	})
}

// ClearAll forgets every chat, as on logout. Open rooms stay open.
func (s *Synchronizer) ClearAll() {
	s.chats.Reset()
	s.journeys.Reset()
}

// ---- slice helpers; every result is a fresh slice ----

func appendEntry(held []Entry, e Entry) []Entry {
	out := make([]Entry, len(held), len(held)+1)
	copy(out, held)
	return append(out, e)
}

func replaceAt(held []Entry, i int, e Entry) []Entry {
	out := make([]Entry, len(held))
	copy(out, held)
	out[i] = e
	return out
}

func removeAt(held []Entry, i int) []Entry {
	out := make([]Entry, 0, len(held)-1)
	out = append(out, held[:i]...)
	return append(out, held[i+1:]...)
}

func indexTemp(held []Entry, tempID string) int {
	if tempID == "" {
		return -1
	}
	for i, e := range held {
		if e.TempID == tempID {
			return i
		}
	}
	return -1
}

func indexID(held []Entry, id string) int {
	if id == "" {
		return -1
	}
	for i, e := range held {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
