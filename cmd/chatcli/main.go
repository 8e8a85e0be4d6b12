// Command chatcli is a line-oriented client for the layover matching API.
// It signs in, keeps the realtime channel connected and reads commands from
// stdin; type "help" for the list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
	"github.com/tbourn/go-layover-backend/internal/client/rtclient"
	"github.com/tbourn/go-layover-backend/internal/client/session"
	"github.com/tbourn/go-layover-backend/internal/sysutil"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	reconnectDelay = 2 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	baseURL  string
	email    string
	password string
	journey  string
}

func parseFlags(args []string) (options, error) {
	var o options
	flags := pflag.NewFlagSet("chatcli", pflag.ContinueOnError)
	flags.StringVar(&o.baseURL, "base-url", "", "API base URL (env LAYOVER_BASE_URL)")
	flags.StringVar(&o.email, "email", "", "account email (env LAYOVER_EMAIL)")
	flags.StringVar(&o.password, "password", "", "account password (env LAYOVER_PASSWORD)")
	flags.StringVar(&o.journey, "journey", "", "journey to work with (env LAYOVER_JOURNEY)")
	if err := flags.Parse(args); err != nil {
		return o, err
	}
	o.baseURL = sysutil.FirstNonEmpty(o.baseURL, os.Getenv("LAYOVER_BASE_URL"), defaultBaseURL)
	o.email = sysutil.FirstNonEmpty(o.email, os.Getenv("LAYOVER_EMAIL"))
	o.password = sysutil.FirstNonEmpty(o.password, os.Getenv("LAYOVER_PASSWORD"))
	o.journey = sysutil.FirstNonEmpty(o.journey, os.Getenv("LAYOVER_JOURNEY"))
	if o.email == "" || o.password == "" {
		return o, errors.New("--email and --password are required")
	}
	return o, nil
}

func run(args []string, in io.Reader, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	sysutil.SetLogLevel(sysutil.FirstNonEmpty(os.Getenv("LOG_LEVEL"), "warn"))
	logger := sysutil.NewLogger(os.Stderr, sysutil.IsTruthy(os.Getenv("LOG_PRETTY")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := apiclient.New(opts.baseURL, apiclient.WithLogger(logger))
	if err != nil {
		return err
	}
	coord := session.New(api, logger)
	api.Auth = coord

	s, err := api.Login(ctx, opts.email, opts.password)
	if err != nil {
		return err
	}
	coord.Set(s)
	fmt.Fprintf(out, "signed in as %s %s\n", s.User.FirstName, s.User.LastName)

	a := newApp(api, coord, s.User.ID, opts.journey, out, logger)
	a.connect(ctx)
	go a.watchSignOut(ctx)

	err = a.repl(ctx, in)
	a.disconnect()
	return err
}

// connect starts the realtime loop: it redials after drops and refreshes the
// credential when the dial is rejected.
func (a *app) connect(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.mu.Lock()
	a.stopRT = cancel

	rt := rtclient.New(a.api.WebSocketURL(), a.coord.TokenSource(), a.log)
	raw := make(chan rtclient.Event, 16)
	events := make(chan rtclient.Event, 16)
	done := make(chan struct{})
	a.rtDone = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		defer close(raw)
		for {
			err := a.coord.Do(ctx, func(ctx context.Context, _ *oauth2.Token) error {
				return rt.Run(ctx, a.chats.Outbound(), raw)
			})
			if ctx.Err() != nil || errors.Is(err, session.ErrSignedOut) {
				return
			}
			a.log.Info().Err(err).Dur("retry_in", reconnectDelay).Msg("realtime disconnected")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	go a.tee(raw, events)
	// Drains until the tee closes events, so no event is left blocked.
	go func() { _ = a.chats.Run(context.Background(), events) }()
	go a.printNotifications(ctx)
}

func (a *app) disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopRT == nil {
		return
	}
	a.stopRT()
	<-a.rtDone
	a.stopRT = nil
}

func (a *app) watchSignOut(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-a.coord.SignedOut():
		fmt.Fprintln(a.out, "session expired; sign in again")
		a.disconnect()
		a.reset()
	}
}

// logout resets chat state and the realtime channel before dropping the
// credential.
func (a *app) logout(ctx context.Context) error {
	a.disconnect()
	a.reset()
	err := a.api.Logout(ctx)
	a.coord.Clear()
	return err
}

func (a *app) reset() {
	if r := a.room.Swap(nil); r != nil {
		r.Close()
	}
	a.chats.ClearAll()
	a.matches.ResetAll()
}
