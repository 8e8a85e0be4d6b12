// Package apiclient is the typed HTTP transport of the client core. It
// speaks the server's REST surface, keeps the refresh cookie in a jar, and
// turns non-2xx answers into *APIError values that match the package
// sentinels with errors.Is.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/sysutil"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotency-Replayed"

	// DefaultPageSize is the message page size used when none is given.
	DefaultPageSize = 30
)

// Authorizer runs call with the current access token and owns what happens
// when the server answers 401. The session coordinator implements it.
type Authorizer interface {
	Do(ctx context.Context, call func(ctx context.Context, tok *oauth2.Token) error) error
}

// Client talks to one API base URL, e.g. http://localhost:8080/api/v1.
type Client struct {
	// Auth wraps every authenticated call. Nil sends them without a token.
	Auth Authorizer

	base     *url.URL
	http     *http.Client
	log      zerolog.Logger
	validate *validator.Validate
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A client without a
// cookie jar gets one, since refresh depends on it.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger for request tracing at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("apiclient: invalid base url %q", baseURL)
	}
	c := &Client{
		base:     u,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      zerolog.Nop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("apiclient: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// WebSocketURL is the realtime endpoint derived from the base URL.
func (c *Client) WebSocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// ---- auth ----

// Register creates an account and opens a session.
func (c *Client) Register(ctx context.Context, email, password, firstName, lastName string) (*Session, error) {
	var out authResponse
	body := map[string]string{"email": email, "password": password, "firstName": firstName, "lastName": lastName}
	if _, err := c.do(ctx, nil, call{method: http.MethodPost, path: "/auth/register", body: body, out: &out}); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return out.session(), nil
}

// Login opens a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out authResponse
	body := map[string]string{"email": email, "password": password}
	if _, err := c.do(ctx, nil, call{method: http.MethodPost, path: "/auth/login", body: body, out: &out}); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return out.session(), nil
}

// Refresh exchanges the refresh cookie for a new access token; the server
// rotates the cookie.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	var out authResponse
	if _, err := c.do(ctx, nil, call{method: http.MethodPost, path: "/auth/refresh", out: &out}); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return out.session(), nil
}

// Logout revokes the refresh cookie server side.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, nil, call{method: http.MethodPost, path: "/auth/logout"}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me returns the signed-in traveler.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.authed(ctx, call{method: http.MethodGet, path: "/auth/me", out: &out})
	return out, wrap("me", err)
}

// ---- profiles ----

// MyProfile returns my account with its profile.
func (c *Client) MyProfile(ctx context.Context) (UserProfile, error) {
	var out UserProfile
	err := c.authed(ctx, call{method: http.MethodGet, path: "/users/me", out: &out})
	return out, wrap("my profile", err)
}

// UpdateProfile applies a partial edit to my profile.
func (c *Client) UpdateProfile(ctx context.Context, patch ProfilePatch) (domain.Profile, error) {
	var out domain.Profile
	err := c.authed(ctx, call{method: http.MethodPatch, path: "/users/me/profile", body: patch, out: &out})
	return out, wrap("update profile", err)
}

// UserProfile returns another traveler's public profile.
func (c *Client) UserProfile(ctx context.Context, userID string) (UserProfile, error) {
	var out UserProfile
	err := c.authed(ctx, call{method: http.MethodGet, path: "/users/" + url.PathEscape(userID) + "/profile", out: &out})
	return out, wrap("user profile", err)
}

// ---- journeys ----

// CreateJourney stores an itinerary.
func (c *Client) CreateJourney(ctx context.Context, legs []LegInput) (Journey, error) {
	var out Journey
	err := c.authed(ctx, call{method: http.MethodPost, path: "/journeys", body: map[string]any{"legs": legs}, out: &out})
	return out, wrap("create journey", err)
}

// ListJourneys returns my journeys.
func (c *Client) ListJourneys(ctx context.Context) ([]Journey, error) {
	var out []Journey
	err := c.authed(ctx, call{method: http.MethodGet, path: "/journeys", out: &out})
	return out, wrap("list journeys", err)
}

// GetJourney returns one of my journeys.
func (c *Client) GetJourney(ctx context.Context, id string) (Journey, error) {
	var out Journey
	err := c.authed(ctx, call{method: http.MethodGet, path: "/journeys/" + url.PathEscape(id), out: &out})
	return out, wrap("get journey", err)
}

// DeleteJourney removes a journey with its requests and chats.
func (c *Client) DeleteJourney(ctx context.Context, id string) error {
	return wrap("delete journey", c.authed(ctx, call{method: http.MethodDelete, path: "/journeys/" + url.PathEscape(id)}))
}

// ---- matches ----

// DiscoverMatches returns raw same-flight and layover matches for a journey.
func (c *Client) DiscoverMatches(ctx context.Context, journeyID string) (Discovery, error) {
	var out Discovery
	err := c.authed(ctx, call{method: http.MethodGet, path: "/matches/journey/" + url.PathEscape(journeyID), out: &out})
	return out, wrap("discover matches", err)
}

// PendingRequests returns requests addressed to a journey, grouped by sender.
func (c *Client) PendingRequests(ctx context.Context, journeyID string) ([]PendingGroup, error) {
	var out []PendingGroup
	err := c.authed(ctx, call{method: http.MethodGet, path: "/matches/pending/" + url.PathEscape(journeyID), out: &out})
	return out, wrap("pending requests", err)
}

// GetMatch returns one request I sent or received, with why it matched.
func (c *Client) GetMatch(ctx context.Context, requestID string) (MatchContext, error) {
	var out MatchContext
	err := c.authed(ctx, call{method: http.MethodGet, path: "/matches/" + url.PathEscape(requestID), out: &out})
	return out, wrap("get match", err)
}

// SendMatchRequest asks the counterpart to connect.
func (c *Client) SendMatchRequest(ctx context.Context, t MatchTarget) (MatchRequest, error) {
	var out MatchRequest
	err := c.authed(ctx, call{method: http.MethodPost, path: "/matches/request", body: t, out: &out})
	return out, wrap("send request", err)
}

// DismissMatch hides the counterpart from future discovery for the journey.
func (c *Client) DismissMatch(ctx context.Context, t MatchTarget) error {
	return wrap("dismiss", c.authed(ctx, call{method: http.MethodPost, path: "/matches/dismiss", body: t}))
}

// AcceptMatch accepts the group represented by requestID.
func (c *Client) AcceptMatch(ctx context.Context, requestID string) (Decision, error) {
	var out Decision
	err := c.authed(ctx, call{method: http.MethodPost, path: "/matches/" + url.PathEscape(requestID) + "/accept", out: &out})
	return out, wrap("accept", err)
}

// RejectMatch rejects the group represented by requestID.
func (c *Client) RejectMatch(ctx context.Context, requestID string) (Decision, error) {
	var out Decision
	err := c.authed(ctx, call{method: http.MethodPost, path: "/matches/" + url.PathEscape(requestID) + "/reject", out: &out})
	return out, wrap("reject", err)
}

// ---- chats ----

// ListChats fetches the chat list of a journey. A non-empty etag makes the
// request conditional.
func (c *Client) ListChats(ctx context.Context, journeyID, etag string) (ChatList, error) {
	var (
		out  []ChatSummary
		list ChatList
	)
	hdr := http.Header{}
	if etag != "" {
		hdr.Set("If-None-Match", etag)
	}
	err := c.authed(ctx, call{
		method: http.MethodGet, path: "/chats/journey/" + url.PathEscape(journeyID), header: hdr, out: &out,
		onResponse: func(res *http.Response) {
			list.ETag = res.Header.Get("ETag")
			list.NotModified = res.StatusCode == http.StatusNotModified
		},
	})
	if err != nil {
		return ChatList{}, wrap("list chats", err)
	}
	if list.NotModified && list.ETag == "" {
		list.ETag = etag
	}
	list.Chats = out
	return list, nil
}

// MarkChatRead resets my unread count for a chat.
func (c *Client) MarkChatRead(ctx context.Context, chatID string) error {
	return wrap("mark read", c.authed(ctx, call{method: http.MethodPost, path: "/chats/" + url.PathEscape(chatID) + "/read"}))
}

// ListMessages fetches one page of history, newest first. Limit <= 0 uses
// DefaultPageSize.
func (c *Client) ListMessages(ctx context.Context, chatID, cursor string, limit int) (MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out MessagePage
	err := c.authed(ctx, call{method: http.MethodGet, path: "/chats/" + url.PathEscape(chatID) + "/messages", query: q, out: &out})
	return out, wrap("list messages", err)
}

// PostMessage sends a message over HTTP. replayed reports that the server
// matched the idempotency key to an earlier send.
func (c *Client) PostMessage(ctx context.Context, chatID string, in PostMessage) (msg Message, replayed bool, err error) {
	hdr := http.Header{}
	if key := sysutil.FirstNonEmpty(in.IdempotencyKey, in.TempID); key != "" {
		hdr.Set(headerIdempotencyKey, key)
	}
	err = c.authed(ctx, call{
		method: http.MethodPost, path: "/chats/" + url.PathEscape(chatID) + "/messages", body: in, header: hdr, out: &msg,
		onResponse: func(res *http.Response) {
			replayed = res.Header.Get(headerReplayed) == "true"
		},
	})
	return msg, replayed, wrap("post message", err)
}

// ---- plumbing ----

type call struct {
	method     string
	path       string
	query      url.Values
	header     http.Header
	body       any
	out        any
	onResponse func(*http.Response)
}

func (c *Client) authed(ctx context.Context, cl call) error {
	if c.Auth == nil {
		_, err := c.do(ctx, nil, cl)
		return err
	}
	return c.Auth.Do(ctx, func(ctx context.Context, tok *oauth2.Token) error {
		_, err := c.do(ctx, tok, cl)
		return err
	})
}

func (c *Client) do(ctx context.Context, tok *oauth2.Token, cl call) (int, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + cl.path
	if cl.query != nil {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %s %s: %v", ErrTransientNetwork, cl.method, cl.path, err)
	}
	defer res.Body.Close()
	c.log.Debug().
		Str("method", cl.method).
		Str("path", cl.path).
		Int("status", res.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if cl.onResponse != nil {
		cl.onResponse(res)
	}

	switch {
	case res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotModified:
		_, _ = io.Copy(io.Discard, res.Body)
		return res.StatusCode, nil
	case res.StatusCode >= 400:
		return res.StatusCode, decodeError(res)
	}

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return res.StatusCode, nil
	}
	if err := json.NewDecoder(res.Body).Decode(cl.out); err != nil {
		return res.StatusCode, fmt.Errorf("%w: %s %s: %v", ErrParse, cl.method, cl.path, err)
	}
	if err := c.check(cl.out); err != nil {
		return res.StatusCode, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	return res.StatusCode, nil
}

// check validates decoded DTOs, element by element for slices.
func (c *Client) check(v any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Struct:
		if err := c.validate.Struct(rv.Interface()); err != nil {
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrParse, err)
		}
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := c.check(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode, RequestID: res.Header.Get("X-Request-ID")}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
		if env.RequestID != "" {
			apiErr.RequestID = env.RequestID
		}
	}
	return apiErr
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
