// Package session keeps the client's credential and coordinates refreshes:
// at most one POST /auth/refresh is in flight per process, every call that
// hit 401 meanwhile waits for it and then retries once with the new token.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
)

// ErrSignedOut is returned when no credential is held. It matches
// apiclient.ErrUnauthorized.
var ErrSignedOut = fmt.Errorf("session: signed out: %w", apiclient.ErrUnauthorized)

// Refresher exchanges the refresh cookie for a new session.
type Refresher interface {
	Refresh(ctx context.Context) (*apiclient.Session, error)
}

// Coordinator holds the current credential. It implements
// apiclient.Authorizer.
type Coordinator struct {
	refresher Refresher
	log       zerolog.Logger

	mu   sync.Mutex
	tok  *oauth2.Token
	user apiclient.User
	// failure is the error of the refresh that dropped tok, until the next
	// Set or Clear.
	failure error

	flight     singleflight.Group
	refreshing atomic.Bool
	signedOut  chan struct{}
}

// New returns a signed-out coordinator.
func New(r Refresher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		refresher: r,
		log:       log.With().Str("component", "session").Logger(),
		signedOut: make(chan struct{}, 1),
	}
}

// Set stores a session obtained from login or register.
func (c *Coordinator) Set(s *apiclient.Session) {
	if s == nil || s.Token == nil {
		return
	}
	c.mu.Lock()
	c.tok, c.user, c.failure = s.Token, s.User, nil
	c.mu.Unlock()
}

// Token returns the current credential, nil when signed out.
func (c *Coordinator) Token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok
}

// User returns the signed-in traveler.
func (c *Coordinator) User() (apiclient.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.tok != nil
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool { return c.refreshing.Load() }

// SignedOut receives once each time a failed refresh drops the credential.
func (c *Coordinator) SignedOut() <-chan struct{} { return c.signedOut }

// Clear drops the credential without notifying SignedOut, as on logout.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.tok, c.user, c.failure = nil, apiclient.User{}, nil
	c.mu.Unlock()
}

// Do runs call with the current token. On 401 the call is retried exactly
// once with a refreshed token; a second 401 is returned to the caller.
func (c *Coordinator) Do(ctx context.Context, call func(context.Context, *oauth2.Token) error) error {
	tok := c.Token()
	if tok == nil {
		return ErrSignedOut
	}
	err := call(ctx, tok)
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return err
	}
	fresh, rerr := c.refreshFrom(ctx, tok)
	if rerr != nil {
		return rerr
	}
	return call(ctx, fresh)
}

// refreshFrom returns a token newer than stale. If stale was already
// superseded the current token is returned without a network call.
func (c *Coordinator) refreshFrom(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	if tok, err := c.newerThan(stale); tok != nil || err != nil {
		return tok, err
	}
	ch := c.flight.DoChan("refresh", func() (any, error) {
		if tok, err := c.newerThan(stale); tok != nil || err != nil {
			return tok, err
		}
		c.refreshing.Store(true)
		defer c.refreshing.Store(false)

		// Waiters share this refresh; one caller giving up must not fail it.
		s, err := c.refresher.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			c.dropAfterFailure(err)
			return nil, err
		}
		if s == nil || s.Token == nil {
			err := fmt.Errorf("refresh: %w", apiclient.ErrParse)
			c.dropAfterFailure(err)
			return nil, err
		}
		c.Set(s)
		c.log.Debug().Str("user_id", s.User.ID).Msg("credential refreshed")
		return s.Token, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

// newerThan returns the held token when it already replaced stale. With no
// token it returns the error of the refresh that dropped it, or
// ErrSignedOut. Both nil means stale is still current and needs a refresh.
func (c *Coordinator) newerThan(stale *oauth2.Token) (*oauth2.Token, error) {
	c.mu.Lock()
	cur, failure := c.tok, c.failure
	c.mu.Unlock()
	switch {
	case cur == nil && failure != nil:
		return nil, failure
	case cur == nil:
		return nil, ErrSignedOut
	case cur.AccessToken != stale.AccessToken:
		return cur, nil
	}
	return nil, nil
}

func (c *Coordinator) dropAfterFailure(err error) {
	c.log.Warn().Err(err).Msg("refresh failed, signing out")
	c.mu.Lock()
	c.tok, c.user, c.failure = nil, apiclient.User{}, err
	c.mu.Unlock()
	select {
	case c.signedOut <- struct{}{}:
	default:
	}
}

// TokenSource adapts the coordinator for consumers of oauth2.TokenSource,
// such as the realtime dialer.
func (c *Coordinator) TokenSource() oauth2.TokenSource { return tokenSource{c} }

type tokenSource struct{ c *Coordinator }

func (s tokenSource) Token() (*oauth2.Token, error) {
	if tok := s.c.Token(); tok != nil {
		return tok, nil
	}
	return nil, ErrSignedOut
}
