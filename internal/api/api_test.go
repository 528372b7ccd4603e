package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/twinlabs/twind/internal/history"
	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/sharing"
	"github.com/twinlabs/twind/internal/storage"
)

const (
	testToken = "test-token"
	testUser  = "ana@example.com"
)

func newTestDeps(t *testing.T) AppDeps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return AppDeps{
		Store:   store,
		Engine:  persona.NewEngine(store),
		History: history.NewMemoryStore(history.DefaultLimit, history.DefaultTTL),
		LLM:     proxy.NewClient(""),
		Shares:  sharing.NewService(store),
		Model:   "test-model",
		Token:   testToken,
	}
}

// doJSON sends an authenticated request as testUser and returns the recorder.
func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONAs(t, h, method, path, testUser, body)
}

func doJSONAs(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Twin-User", user)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h := NewAppHandler(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestBearerAuthRejectsBadToken(t *testing.T) {
	h := NewAppHandler(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/persona-memory", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-Twin-User", testUser)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	if resp.Error.Type != "authentication_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestMissingUserHeaderRejected(t *testing.T) {
	h := NewAppHandler(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/persona-memory", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
