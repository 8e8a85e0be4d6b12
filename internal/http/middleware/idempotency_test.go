package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, chatID, key string
}

func idemRouter(t *testing.T, opts IdempotencyOptions, lookup IdempotencyLookup, user string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != "" {
			c.Set(ctxKeyUserID, user)
		}
		c.Next()
	})
	r.POST("/chats/:id/messages", IdempotencyValidator(opts, lookup), func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{
			"key":    key,
			"hasKey": ok,
			"replay": IsReplay(c),
			"bypass": IsRateBypass(c),
		})
	})
	return r
}

func postWithKey(r http.Handler, chatID, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chats/"+chatID+"/messages", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeFlags(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestIdempotencyHelpers_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected no key")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay must read as false")
	}
}

func TestIdempotencyValidator_NoHeader_SkipsLookup(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	w := postWithKey(idemRouter(t, IdempotencyOptions{}, lookup, "ada"), "c1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a key")
	}
	if body := decodeFlags(t, w); body["hasKey"] != false || body["replay"] != false {
		t.Fatalf("unexpected flags: %v", body)
	}
}

func TestIdempotencyValidator_RejectsInvalidKeys(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 4}, "abcdef"},
		{"bad chars", IdempotencyOptions{}, "has space"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postWithKey(idemRouter(t, tc.opts, nil, "ada"), "c1", tc.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d; want 400", w.Code)
			}
			if body := decodeFlags(t, w); body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	var calls []lookupCall
	stored := map[string]bool{"ada|c1|tmp-1": true}
	lookup := func(_ context.Context, uid, chatID, key string, now time.Time) (bool, error) {
		if now.IsZero() {
			t.Fatalf("lookup received zero time")
		}
		calls = append(calls, lookupCall{uid, chatID, key})
		return stored[uid+"|"+chatID+"|"+key], nil
	}
	r := idemRouter(t, IdempotencyOptions{}, lookup, "ada")

	miss := decodeFlags(t, postWithKey(r, "c1", "tmp-2"))
	if miss["key"] != "tmp-2" || miss["replay"] != false || miss["bypass"] != false {
		t.Fatalf("miss flags: %v", miss)
	}

	hit := decodeFlags(t, postWithKey(r, "c1", "tmp-1"))
	if hit["replay"] != true || hit["bypass"] != true {
		t.Fatalf("hit flags: %v", hit)
	}

	// The chat id comes from the route, so another chat is a miss.
	other := decodeFlags(t, postWithKey(r, "c2", "tmp-1"))
	if other["replay"] != false {
		t.Fatalf("other chat must not replay: %v", other)
	}

	if len(calls) != 3 || calls[1] != (lookupCall{"ada", "c1", "tmp-1"}) {
		t.Fatalf("unexpected lookup calls: %+v", calls)
	}
}

func TestIdempotencyValidator_AnonymousSkipsLookup(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	body := decodeFlags(t, postWithKey(idemRouter(t, IdempotencyOptions{}, lookup, ""), "c1", "tmp-1"))
	if called || body["replay"] != false || body["key"] != "tmp-1" {
		t.Fatalf("anonymous request must keep the key but skip lookup: %v", body)
	}
}

func TestIdempotencyValidator_LookupErrorIsLoggedNotFatal(t *testing.T) {
	buf := captureLogger(t)
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		return false, errors.New("database is locked")
	}
	w := postWithKey(idemRouter(t, IdempotencyOptions{}, lookup, "ada"), "c1", "tmp-1")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup failure must not block the send, got %d", w.Code)
	}
	if body := decodeFlags(t, w); body["replay"] != false || body["key"] != "tmp-1" {
		t.Fatalf("unexpected flags: %v", body)
	}
	if !strings.Contains(buf.String(), "idempotency lookup failed") || !strings.Contains(buf.String(), `"chat_id":"c1"`) {
		t.Fatalf("lookup error not logged: %s", buf.String())
	}
}
