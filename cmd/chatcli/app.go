package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
	"github.com/tbourn/go-layover-backend/internal/client/chatsync"
	"github.com/tbourn/go-layover-backend/internal/client/matchview"
	"github.com/tbourn/go-layover-backend/internal/client/rtclient"
	"github.com/tbourn/go-layover-backend/internal/client/session"
	"github.com/tbourn/go-layover-backend/internal/matching"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
)

const usage = `commands:
  journeys                 list my journeys
  use <journeyId>          switch journey
  matches                  discover travelers for the journey
  request <userId>         send a match request
  dismiss <userId>         hide a traveler
  pending                  requests waiting on the journey
  accept|reject <userId>   decide on a sender's requests
  chats                    chat list for the journey
  open <chatId>            open a chat and show recent messages
  more                     load older messages
  send <text>              send to the open chat
  retry <tempId>           re-send a failed message
  close                    close the open chat
  logout | quit`

type app struct {
	api     *apiclient.Client
	coord   *session.Coordinator
	chats   *chatsync.Synchronizer
	matches *matchview.View
	self    string
	journey string
	out     io.Writer
	log     zerolog.Logger

	room   atomic.Pointer[chatsync.Room]
	mu     sync.Mutex
	stopRT context.CancelFunc
	rtDone chan struct{}
}

func newApp(api *apiclient.Client, coord *session.Coordinator, self, journey string, out io.Writer, log zerolog.Logger) *app {
	return &app{
		api:     api,
		coord:   coord,
		chats:   chatsync.New(api, chatsync.Options{Self: self, Log: log}),
		matches: matchview.New(api, log),
		self:    self,
		journey: journey,
		out:     out,
		log:     log,
	}
}

// tee prints messages for the open chat and forwards every event.
func (a *app) tee(in <-chan rtclient.Event, out chan<- rtclient.Event) {
	defer close(out)
	for ev := range in {
		if ev.Type == wire.EventNewMessage && ev.Message != nil {
			if r := a.room.Load(); r != nil && r.ChatID() == ev.Message.ChatID && ev.Message.SenderID != a.self {
				fmt.Fprintf(a.out, "  [%s] %s\n", ev.Message.CreatedAt.Local().Format("15:04"), ev.Message.Content)
			}
		}
		out <- ev
	}
}

func (a *app) printNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-a.chats.Notifications():
			switch {
			case n.Type == "REQUEST":
				fmt.Fprintf(a.out, "* new match request from %s\n", n.SenderName)
			case n.ChatID != "" && (a.room.Load() == nil || a.room.Load().ChatID() != n.ChatID):
				fmt.Fprintf(a.out, "* new message from %s in %s\n", n.SenderName, n.ChatID)
			}
		}
	}
}

func (a *app) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(a.out, `type "help" for commands`)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if cmd == "logout" {
			return a.logout(ctx)
		}
		if err := a.exec(ctx, cmd, arg); err != nil {
			if errors.Is(err, session.ErrSignedOut) {
				return err
			}
			fmt.Fprintf(a.out, "! %v\n", err)
		}
	}
	return sc.Err()
}

func (a *app) exec(ctx context.Context, cmd, arg string) error {
	needJourney := map[string]bool{"matches": true, "request": true, "dismiss": true, "pending": true, "accept": true, "reject": true, "chats": true}
	if needJourney[cmd] && a.journey == "" {
		return errors.New(`no journey selected; run "use <journeyId>"`)
	}
	needArg := map[string]bool{"use": true, "request": true, "dismiss": true, "accept": true, "reject": true, "open": true, "send": true, "retry": true}
	if needArg[cmd] && arg == "" {
		return fmt.Errorf("%s needs an argument", cmd)
	}

	switch cmd {
	case "help":
		fmt.Fprintln(a.out, usage)
	case "journeys":
		js, err := a.api.ListJourneys(ctx)
		if err != nil {
			return err
		}
		for _, j := range js {
			var route []string
			for i, l := range j.Legs {
				if i == 0 {
					route = append(route, l.DepartureAirport)
				}
				route = append(route, l.ArrivalAirport)
			}
			fmt.Fprintf(a.out, "%s  %-8s %s\n", j.ID, j.JourneyType, strings.Join(route, " > "))
		}
	case "use":
		a.journey = arg
	case "matches":
		list, err := a.matches.LoadDiscovery(ctx, a.journey)
		if err != nil {
			return err
		}
		for _, u := range list {
			a.printMatch(u)
		}
	case "request":
		_, err := a.matches.SendRequest(ctx, a.journey, arg)
		if errors.Is(err, apiclient.ErrDuplicateRequest) {
			fmt.Fprintln(a.out, "already requested")
			return nil
		}
		return err
	case "dismiss":
		return a.matches.Dismiss(ctx, a.journey, arg)
	case "pending":
		groups, err := a.matches.LoadPending(ctx, a.journey)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Fprintf(a.out, "%s  %s %s\n", g.Sender.ID, g.Sender.FirstName, g.Sender.LastName)
			for _, t := range []string{g.FlightText, g.LayoverText} {
				if t != "" {
					fmt.Fprintf(a.out, "    %s\n", t)
				}
			}
		}
	case "accept":
		d, err := a.matches.Accept(ctx, a.journey, arg)
		if err != nil {
			return err
		}
		for _, c := range d.Chats {
			fmt.Fprintf(a.out, "chat %s opened\n", c.ID)
		}
	case "reject":
		_, err := a.matches.Reject(ctx, a.journey, arg)
		return err
	case "chats":
		sums, err := a.chats.LoadChats(ctx, a.journey)
		if err != nil {
			return err
		}
		for _, c := range sums {
			other := c.Counterpart(a.self)
			last := ""
			if c.LastMessage != nil {
				last = c.LastMessage.Content
			}
			fmt.Fprintf(a.out, "%s  %s %s (%d unread)  %s\n", c.ID, other.FirstName, other.LastName, c.UnreadCount, last)
		}
	case "open":
		return a.open(ctx, arg)
	case "more":
		r := a.room.Load()
		if r == nil {
			return errors.New("no open chat")
		}
		c, _ := a.chats.Chat(r.ChatID())
		if c.NextCursor == "" {
			fmt.Fprintln(a.out, "no older messages")
			return nil
		}
		page, err := a.chats.LoadMessages(ctx, r.ChatID(), c.NextCursor, 0)
		if err != nil {
			return err
		}
		a.printEntries(page.Messages)
	case "send":
		r := a.room.Load()
		if r == nil {
			return errors.New("no open chat")
		}
		_, err := a.chats.SendMessage(ctx, r.ChatID(), arg)
		return err
	case "retry":
		r := a.room.Load()
		if r == nil {
			return errors.New("no open chat")
		}
		return a.chats.RetryMessage(ctx, r.ChatID(), arg)
	case "close":
		if r := a.room.Swap(nil); r != nil {
			r.Close()
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (a *app) open(ctx context.Context, chatID string) error {
	if prev := a.room.Swap(a.chats.OpenChat(chatID)); prev != nil {
		prev.Close()
	}
	page, err := a.chats.LoadMessages(ctx, chatID, "", 0)
	if errors.Is(err, chatsync.ErrDiscarded) {
		return nil
	}
	if err != nil {
		return err
	}
	a.printEntries(page.Messages)
	return a.chats.MarkChatAsRead(ctx, chatID)
}

func (a *app) printMatch(u matching.UnifiedMatch) {
	flights, layovers := matching.Summary(u)
	fmt.Fprintf(a.out, "%s  %s %s\n", u.User.ID, u.User.FirstName, u.User.LastName)
	for _, t := range []string{flights, layovers} {
		if t != "" {
			fmt.Fprintf(a.out, "    %s\n", t)
		}
	}
}

func (a *app) printEntries(entries []chatsync.Entry) {
	for _, e := range entries {
		who := "them"
		if e.SenderID == a.self {
			who = "me"
		}
		line := fmt.Sprintf("  [%s] %-4s %s", e.CreatedAt.Local().Format("15:04"), who, e.Content)
		if e.Status != chatsync.StatusSent {
			line += fmt.Sprintf(" (%s %s)", e.Status, e.TempID)
		}
		fmt.Fprintln(a.out, line)
	}
}
