package handlers

import (
	"errors"
	"net/http"
	"sync"
	"testing"
)

type fakeRealtime struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (f *fakeRealtime) ServeWS(w http.ResponseWriter, _ *http.Request, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	if f.err != nil {
		http.Error(w, "bad handshake", http.StatusBadRequest)
		return f.err
	}
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

var upgradeHeaders = map[string]string{"Connection": "Upgrade", "Upgrade": "websocket"}

func TestServeWS(t *testing.T) {
	rt := &fakeRealtime{}
	api := newTestAPI(t, rt)
	ada := api.register("ada")

	// Plain GETs are refused before reaching the hub.
	expectError(t, api.do(call{method: http.MethodGet, path: "/ws", token: ada.token}),
		http.StatusBadRequest, ErrCodeBadRequest)

	w := api.do(call{method: http.MethodGet, path: "/ws", token: ada.token, headers: upgradeHeaders})
	expectStatus(t, w, http.StatusSwitchingProtocols)

	// Browsers cannot set headers on upgrades; the query token is accepted.
	w = api.do(call{method: http.MethodGet, path: "/ws?access_token=" + ada.token, headers: upgradeHeaders})
	expectStatus(t, w, http.StatusSwitchingProtocols)

	expectError(t, api.do(call{method: http.MethodGet, path: "/ws", headers: upgradeHeaders}),
		http.StatusUnauthorized, ErrCodeUnauthorized)

	if len(rt.users) != 2 || rt.users[0] != ada.user.ID || rt.users[1] != ada.user.ID {
		t.Fatalf("hub calls = %v", rt.users)
	}
}

func TestServeWS_HandshakeFailure(t *testing.T) {
	rt := &fakeRealtime{err: errors.New("websocket: bad handshake")}
	api := newTestAPI(t, rt)
	ada := api.register("ada")

	w := api.do(call{method: http.MethodGet, path: "/ws", token: ada.token, headers: upgradeHeaders})
	// The hub's own answer is kept.
	expectStatus(t, w, http.StatusBadRequest)
	if len(rt.users) != 1 {
		t.Fatalf("hub calls = %v", rt.users)
	}
}
