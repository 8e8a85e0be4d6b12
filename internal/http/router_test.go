package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-layover-backend/internal/config"
	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/http/handlers"
	"github.com/tbourn/go-layover-backend/internal/http/middleware"
	"github.com/tbourn/go-layover-backend/internal/realtime"
	"github.com/tbourn/go-layover-backend/internal/realtime/wire"
	"github.com/tbourn/go-layover-backend/internal/repo"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:     "/api/v1",
		RateRPS:         100,
		RateBurst:       100,
		MessageMaxRunes: 2000,
		IdempotencyTTL:  time.Hour,
		Auth: config.AuthConfig{
			Secret:          "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Realtime: config.RealtimeConfig{
			WriteTimeout:    5 * time.Second,
			PongTimeout:     30 * time.Second,
			MaxMessageBytes: 8192,
		},
		OTEL: config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newRouter wires routes over a private registry and runs the hub for the
// duration of the test.
func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *realtime.Hub, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	hub := RegisterRoutes(r, Deps{DB: db, Registry: prometheus.NewRegistry(), Log: zerolog.Nop()}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, hub, db
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _, _ := newRouter(t, testConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing: %q", got)
	}

	// /metrics exposes HTTP and domain series from the injected registry
	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, series := range []string{"layover_http_requests_total", "layover_ws_connections"} {
		if !strings.Contains(body, series) {
			t.Fatalf("/metrics missing %s", series)
		}
	}

	// NoRoute → 404 envelope
	w = serve(r, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	// NoMethod → 405 (POST /health)
	w = serve(r, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Protected routes require a bearer token
	w = serve(r, http.MethodGet, "/api/v1/journeys", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /journeys without token = %d", w.Code)
	}

	// Swagger is off unless enabled
	if w = serve(r, http.MethodGet, "/swagger/index.html", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("listed origins must be allowed to send the refresh cookie, got %q", got)
	}
}

func TestRegisterRoutes_GzipAndSwagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response")
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, _ := io.ReadAll(zr)
	if !strings.Contains(string(raw), `"ok"`) {
		t.Fatalf("unexpected body %q", raw)
	}

	if w = serve(r, http.MethodGet, "/swagger/index.html", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/index.html = %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_idempotencyLookup(t *testing.T) {
	db := newTestDB(t)
	lookup := idempotencyLookup(db)
	ctx := context.Background()
	now := time.Now().UTC()

	// Miss
	if hit, err := lookup(ctx, "u1", "c1", "k1", now); hit || err != nil {
		t.Fatalf("miss: hit=%v err=%v", hit, err)
	}

	// Hit (no FK rows needed: foreign keys only cover chats/messages)
	seed := &domain.Idempotency{
		ID: "idem-1", UserID: "u1", ChatID: "c1", Key: "k1", MessageID: "m1",
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if hit, err := lookup(ctx, "u1", "c1", "k1", now); !hit || err != nil {
		t.Fatalf("hit: hit=%v err=%v", hit, err)
	}
	// Expired keys no longer count
	if hit, _ := lookup(ctx, "u1", "c1", "k1", now.Add(2*time.Hour)); hit {
		t.Fatalf("expired key must miss")
	}

	// Storage failures surface as errors
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if hit, err := lookup(ctx, "u1", "c1", "k1", now); hit || err == nil {
		t.Fatalf("closed db: hit=%v err=%v", hit, err)
	}
}

// --- end-to-end over a real listener ---

type e2eClient struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
	user  domain.User
}

func newE2EClient(t *testing.T, srv *httptest.Server) *e2eClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &e2eClient{t: t, base: srv.URL + "/api/v1", http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (c *e2eClient) do(method, path string, body any, headers map[string]string, out any) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s: %v", path, err)
		}
	}
	return res
}

func (c *e2eClient) register(first string) {
	c.t.Helper()
	var res handlers.AuthResponse
	r := c.do(http.MethodPost, "/auth/register", handlers.RegisterRequest{
		Email: first + "@example.com", Password: "long enough password", FirstName: first, LastName: "T",
	}, nil, &res)
	if r.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s = %d", first, r.StatusCode)
	}
	c.token, c.user = res.AccessToken, res.User
}

func (c *e2eClient) journey() domain.Journey {
	c.t.Helper()
	dep := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	var j domain.Journey
	r := c.do(http.MethodPost, "/journeys", handlers.CreateJourneyRequest{Legs: []services.LegInput{{
		FlightNumber: "EK2", DepartureAirport: "DXB", ArrivalAirport: "LHR",
		DepartureTime: dep, ArrivalTime: dep.Add(7 * time.Hour),
	}}}, nil, &j)
	if r.StatusCode != http.StatusCreated {
		c.t.Fatalf("create journey = %d", r.StatusCode)
	}
	return j
}

func (c *e2eClient) dial(srv *httptest.Server) *websocket.Conn {
	c.t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + c.token
	conn, res, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		c.t.Fatalf("dial: %v (status %d)", err, status)
	}
	c.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, want string) wire.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", want, err)
		}
		env, err := wire.Decode(raw)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if env.Type == want {
			return env
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEndToEnd_MatchChatAndRealtime(t *testing.T) {
	cfg := testConfig()
	r, hub, _ := newRouter(t, cfg)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ada, bo := newE2EClient(t, srv), newE2EClient(t, srv)
	ada.register("ada")
	bo.register("bo")
	adaJ, boJ := ada.journey(), bo.journey()

	boConn := bo.dial(srv)
	waitFor(t, "bo online", func() bool { return hub.Online(bo.user.ID) })

	// Ada discovers Bo and sends a request; Bo is notified.
	var disc services.Discovery
	ada.do(http.MethodGet, "/matches/journey/"+adaJ.ID, nil, nil, &disc)
	if len(disc.SameFlightMatches) != 1 || disc.SameFlightMatches[0].OtherLeg.JourneyID != boJ.ID {
		t.Fatalf("unexpected discovery: %+v", disc)
	}
	var req domain.MatchRequest
	res := ada.do(http.MethodPost, "/matches/request", handlers.MatchTargetRequest{
		SenderJourneyID: adaJ.ID, ReceiverID: bo.user.ID, ReceiverJourneyID: boJ.ID,
	}, nil, &req)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send request = %d", res.StatusCode)
	}
	var note wire.Notification
	if err := wire.DecodeData(readFrame(t, boConn, wire.EventNotification), &note); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if note.Type != string(services.NotifyRequest) || note.RequestID != req.ID {
		t.Fatalf("unexpected notification: %+v", note)
	}

	var mc services.MatchContext
	if res := bo.do(http.MethodGet, "/matches/"+req.ID, nil, nil, &mc); res.StatusCode != http.StatusOK || mc.Counterpart.ID != ada.user.ID {
		t.Fatalf("get match = %d, %+v", res.StatusCode, mc)
	}
	var prof services.UserProfile
	if res := bo.do(http.MethodGet, "/users/"+ada.user.ID+"/profile", nil, nil, &prof); res.StatusCode != http.StatusOK || prof.Email != "" {
		t.Fatalf("public profile = %d, %+v", res.StatusCode, prof)
	}

	var dec services.Decision
	bo.do(http.MethodPost, "/matches/"+req.ID+"/accept", nil, nil, &dec)
	if len(dec.Chats) != 1 {
		t.Fatalf("unexpected decision: %+v", dec)
	}
	chatID := dec.Chats[0].ID

	// Bo joins the room; Ada sends over the HTTP fallback.
	join, _ := wire.Encode(wire.EventJoinChat, wire.ChatRef{ChatID: chatID})
	if err := boConn.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, "bo in room", func() bool { return hub.RoomSize(chatID) == 1 })

	key := map[string]string{middleware.HeaderIdempotencyKey: "e2e-1"}
	var sent domain.Message
	res = ada.do(http.MethodPost, "/chats/"+chatID+"/messages", handlers.PostMessageRequest{Content: "See you at B12"}, key, &sent)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post message = %d", res.StatusCode)
	}

	var got wire.Message
	if err := wire.DecodeData(readFrame(t, boConn, wire.EventNewMessage), &got); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if got.ID != sent.ID || got.Content != "See you at B12" || got.SenderID != ada.user.ID {
		t.Fatalf("unexpected delivery: %+v", got)
	}

	// A replay is answered from storage and not delivered again.
	var replay domain.Message
	res = ada.do(http.MethodPost, "/chats/"+chatID+"/messages", handlers.PostMessageRequest{Content: "See you at B12"}, key, &replay)
	if res.StatusCode != http.StatusOK || res.Header.Get(handlers.HeaderReplayed) != "true" || replay.ID != sent.ID {
		t.Fatalf("replay = %d %q %s", res.StatusCode, res.Header.Get(handlers.HeaderReplayed), replay.ID)
	}

	// Bo answers over the socket; the confirmation echoes the tempId.
	send, _ := wire.Encode(wire.EventSendMessage, wire.SendMessage{ChatID: chatID, Content: "On my way", TempID: "tmp-bo-1"})
	if err := boConn.WriteMessage(websocket.TextMessage, send); err != nil {
		t.Fatalf("send: %v", err)
	}
	var confirm wire.Message
	if err := wire.DecodeData(readFrame(t, boConn, wire.EventNewMessage), &confirm); err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if confirm.TempID != "tmp-bo-1" || confirm.Content != "On my way" {
		t.Fatalf("unexpected confirmation: %+v", confirm)
	}

	var page handlers.ListMessagesResponse
	ada.do(http.MethodGet, "/chats/"+chatID+"/messages", nil, nil, &page)
	if len(page.Messages) != 2 || page.Messages[0].Content != "On my way" {
		t.Fatalf("unexpected history: %+v", page.Messages)
	}

	// Refresh through the cookie jar, then log out.
	var refreshed handlers.AuthResponse
	if res = ada.do(http.MethodPost, "/auth/refresh", nil, nil, &refreshed); res.StatusCode != http.StatusOK {
		t.Fatalf("refresh = %d", res.StatusCode)
	}
	if refreshed.User.ID != ada.user.ID {
		t.Fatalf("refresh returned %s", refreshed.User.ID)
	}
	if res = ada.do(http.MethodPost, "/auth/logout", nil, nil, nil); res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout = %d", res.StatusCode)
	}
	if res = ada.do(http.MethodPost, "/auth/refresh", nil, nil, nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d", res.StatusCode)
	}
}

func TestEndToEnd_WebSocketRequiresToken(t *testing.T) {
	r, _, _ := newRouter(t, testConfig())
	srv := httptest.NewServer(r)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	_, res, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("dial without token must fail")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", res)
	}
}
