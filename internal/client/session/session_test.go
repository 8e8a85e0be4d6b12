package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
)

var errExpired = &apiclient.APIError{Status: http.StatusUnauthorized, Code: "unauthorized"}

func sessionFor(access string) *apiclient.Session {
	return &apiclient.Session{
		Token: &oauth2.Token{AccessToken: access, TokenType: "Bearer"},
		User:  apiclient.User{ID: "u1", Email: "ada@example.com"},
	}
}

type fakeRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	next    *apiclient.Session
	err     error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*apiclient.Session, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.next, f.err
}

// acceptOnly answers 401 to every token but want.
func acceptOnly(want string, calls *atomic.Int32) func(context.Context, *oauth2.Token) error {
	return func(_ context.Context, tok *oauth2.Token) error {
		calls.Add(1)
		if tok.AccessToken != want {
			return errExpired
		}
		return nil
	}
}

func TestDo_SignedOut(t *testing.T) {
	c := New(&fakeRefresher{}, zerolog.Nop())
	called := false
	err := c.Do(context.Background(), func(context.Context, *oauth2.Token) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.False(t, called)
}

func TestDo_PassesThroughOtherErrors(t *testing.T) {
	r := &fakeRefresher{next: sessionFor("a2")}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	notFound := &apiclient.APIError{Status: http.StatusNotFound, Code: "not_found"}
	err := c.Do(context.Background(), func(context.Context, *oauth2.Token) error { return notFound })
	assert.ErrorIs(t, err, apiclient.ErrNotFound)
	assert.Zero(t, r.calls.Load())
	assert.Equal(t, "a1", c.Token().AccessToken)
}

func TestDo_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	const callers = 16
	r := &fakeRefresher{release: make(chan struct{}), next: sessionFor("a2")}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var (
		attempts atomic.Int32
		wg       sync.WaitGroup
		errs     = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Do(context.Background(), acceptOnly("a2", &attempts))
		}()
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 && c.Refreshing() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return attempts.Load() == callers }, time.Second, time.Millisecond)
	close(r.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, r.calls.Load(), "one refresh for every queued caller")
	assert.EqualValues(t, 2*callers, attempts.Load(), "each caller retries exactly once")
	assert.False(t, c.Refreshing())
	assert.Equal(t, "a2", c.Token().AccessToken)
}

func TestDo_RefreshFailureSignsOutEveryWaiter(t *testing.T) {
	const callers = 4
	refreshErr := &apiclient.APIError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	r := &fakeRefresher{release: make(chan struct{}), err: refreshErr}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var (
		attempts atomic.Int32
		wg       sync.WaitGroup
		errs     = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Do(context.Background(), acceptOnly("never", &attempts))
		}()
	}
	require.Eventually(t, func() bool { return attempts.Load() == callers }, time.Second, time.Millisecond)
	close(r.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	}
	assert.EqualValues(t, 1, r.calls.Load())
	assert.EqualValues(t, callers, attempts.Load(), "no retry after a failed refresh")
	assert.Nil(t, c.Token())
	_, ok := c.User()
	assert.False(t, ok)

	select {
	case <-c.SignedOut():
	default:
		t.Fatal("SignedOut must fire after a failed refresh")
	}

	err := c.Do(context.Background(), acceptOnly("never", &attempts))
	assert.ErrorIs(t, err, ErrSignedOut)
}

func TestDo_LateUnauthorizedGetsTheRefreshError(t *testing.T) {
	refreshErr := errors.New("refresh cookie revoked")
	r := &fakeRefresher{err: refreshErr}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var attempts atomic.Int32
	inFlight, failed := make(chan struct{}), make(chan struct{})
	late := make(chan error, 1)
	go func() {
		late <- c.Do(context.Background(), func(_ context.Context, tok *oauth2.Token) error {
			attempts.Add(1)
			close(inFlight)
			<-failed
			return errExpired
		})
	}()

	<-inFlight
	err := c.Do(context.Background(), acceptOnly("never", &attempts))
	require.ErrorIs(t, err, refreshErr)
	close(failed)

	assert.ErrorIs(t, <-late, refreshErr, "a 401 after the failed refresh reports that failure")
	assert.EqualValues(t, 1, r.calls.Load())
	assert.EqualValues(t, 2, attempts.Load())

	// A deliberate logout forgets the failure.
	c.Clear()
	assert.ErrorIs(t, c.Do(context.Background(), acceptOnly("never", &attempts)), ErrSignedOut)
}

func TestDo_SecondUnauthorizedIsSurfaced(t *testing.T) {
	r := &fakeRefresher{next: sessionFor("a2")}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var attempts atomic.Int32
	err := c.Do(context.Background(), acceptOnly("never", &attempts))
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.EqualValues(t, 2, attempts.Load())
	assert.EqualValues(t, 1, r.calls.Load())
	assert.Equal(t, "a2", c.Token().AccessToken, "a rejected retry keeps the session")
}

func TestDo_SupersededCredentialRetriesWithoutRefresh(t *testing.T) {
	r := &fakeRefresher{next: sessionFor("a3")}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var used []string
	err := c.Do(context.Background(), func(_ context.Context, tok *oauth2.Token) error {
		used = append(used, tok.AccessToken)
		if tok.AccessToken == "a1" {
			// Another caller refreshed while this request was in flight.
			c.Set(sessionFor("a2"))
			return errExpired
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, used)
	assert.Zero(t, r.calls.Load())
}

func TestDo_WaiterCancellationDoesNotAbortRefresh(t *testing.T) {
	r := &fakeRefresher{release: make(chan struct{}), next: sessionFor("a2")}
	c := New(r, zerolog.Nop())
	c.Set(sessionFor("a1"))

	var attempts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Do(ctx, acceptOnly("a2", &attempts)) }()

	require.Eventually(t, func() bool { return c.Refreshing() }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(r.release)
	require.Eventually(t, func() bool { return !c.Refreshing() }, time.Second, time.Millisecond)
	assert.Equal(t, "a2", c.Token().AccessToken)
}

func TestClearAndSet(t *testing.T) {
	c := New(&fakeRefresher{}, zerolog.Nop())
	c.Set(nil)
	assert.Nil(t, c.Token())

	c.Set(sessionFor("a1"))
	u, ok := c.User()
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)

	c.Clear()
	assert.Nil(t, c.Token())
	select {
	case <-c.SignedOut():
		t.Fatal("Clear is a deliberate logout and must not signal")
	default:
	}
	assert.False(t, errors.Is(ErrSignedOut, apiclient.ErrNotFound))
}

func TestTokenSource(t *testing.T) {
	c := New(&fakeRefresher{}, zerolog.Nop())
	ts := c.TokenSource()

	_, err := ts.Token()
	assert.ErrorIs(t, err, ErrSignedOut)

	c.Set(sessionFor("a1"))
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
}
