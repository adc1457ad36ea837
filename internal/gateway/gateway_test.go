package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/config"
	"github.com/puce/registro/internal/logging"
	"github.com/puce/registro/internal/middleware"
)

const nationalID = "1712345678"

type fakeRemote struct {
	mu      sync.Mutex
	entries []attendance.Entry
	submits int
	down    bool
}

func (f *fakeRemote) Authenticate(_ context.Context, user, pass string) (attendance.Identity, error) {
	if f.down {
		return attendance.Identity{}, &attendance.ConnectionError{Op: "authenticate", Status: http.StatusBadGateway}
	}
	if user != "ana" || pass != "secret" {
		return attendance.Identity{}, attendance.ErrNotFound
	}
	return attendance.Identity{RecordID: 7, NationalID: nationalID, FirstNames: "Ana", LastNames: "Torres", LoginName: "ana"}, nil
}

func (f *fakeRemote) ListUsers(context.Context) ([]attendance.Identity, error) {
	return []attendance.Identity{{RecordID: 7, LoginName: "ana"}}, nil
}

func (f *fakeRemote) SubmitAttendance(_ context.Context, recordID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.entries = append(f.entries, attendance.Entry{RecordID: recordID, Date: "2026-10-15", Time: "08:00:00", FullTimestamp: "2026-10-15 08:00:00"})
	return true, nil
}

func (f *fakeRemote) ListAttendance(context.Context, int64) ([]attendance.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]attendance.Entry{{RecordID: 7, Date: "2026-09-01", Time: "08:00:00"}}, f.entries...)
	return out, nil
}

func (f *fakeRemote) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.AppEnv = "test"
	cfg.SessionTTL = time.Hour
	cfg.IdempotencyTTL = time.Minute
	return cfg
}

func newTestApp(t *testing.T, remote *fakeRemote, cache *redis.Client) *fiber.App {
	t.Helper()
	cfg := testConfig()
	app := NewApp(cfg)
	err := Setup(app, Deps{
		Cfg:    cfg,
		Cache:  cache,
		Logger: logging.Discard(),
		Remote: remote,
		Now:    func() time.Time { return time.Date(2026, time.October, 15, 9, 0, 0, 0, time.Local) },
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func do(t *testing.T, app *fiber.App, c call) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s body %q: %v", c.method, c.path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	status, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login", body: loginRequest{User: "ana", Pass: "secret"}})
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", body)
	}
	return token
}

// answer returns the digits that satisfy the challenge in body.
func answer(t *testing.T, body map[string]any) submitRequest {
	t.Helper()
	ch, ok := body["challenge"].(map[string]any)
	if !ok {
		t.Fatalf("missing challenge in %v", body)
	}
	a := int(ch["position_a"].(float64))
	b := int(ch["position_b"].(float64))
	return submitRequest{First: nationalID[a-1 : a], Second: nationalID[b-1 : b]}
}

func wrong(digit string) string {
	if digit == "0" {
		return "1"
	}
	return "0"
}

func TestHealthzWithoutBackends(t *testing.T) {
	app := newTestApp(t, &fakeRemote{}, nil)
	status, body := do(t, app, call{method: http.MethodGet, path: "/healthz"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	backends := body["status"].(map[string]any)
	if backends["postgres"] != "memory" || backends["redis"] != "memory" {
		t.Fatalf("unexpected backend status %v", backends)
	}
}

func TestPingEchoesRequestID(t *testing.T) {
	app := newTestApp(t, &fakeRemote{}, nil)
	_, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/ping", headers: map[string]string{middleware.RequestIDHeader: "req-1"}})
	if body["request_id"] != "req-1" {
		t.Fatalf("expected request id echo, got %v", body)
	}
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t, &fakeRemote{}, nil)

	status, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login", body: loginRequest{User: "ana"}})
	if status != http.StatusUnprocessableEntity || body["error"] != "enter username and password" {
		t.Fatalf("expected 422 for missing password, got %d %v", status, body)
	}

	status, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login", body: loginRequest{User: "ana", Pass: "nope"}})
	if status != http.StatusUnprocessableEntity || body["error"] != "incorrect username or password" {
		t.Fatalf("expected 422 for wrong password, got %d %v", status, body)
	}
}

func TestLoginConnectionErrorIsBadGateway(t *testing.T) {
	app := newTestApp(t, &fakeRemote{down: true}, nil)
	status, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/login", body: loginRequest{User: "ana", Pass: "secret"}})
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if body["error"] != "Connection error. Please try again." {
		t.Fatalf("unexpected message %v", body)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app := newTestApp(t, &fakeRemote{}, nil)
	for _, path := range []string{"/api/v1/challenge", "/api/v1/attendance", "/api/v1/users", "/api/v1/receipts"} {
		if status, _ := do(t, app, call{method: http.MethodGet, path: path}); status != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, status)
		}
		if status, _ := do(t, app, call{method: http.MethodGet, path: path, token: "unknown"}); status != http.StatusUnauthorized {
			t.Fatalf("%s with unknown token: expected 401, got %d", path, status)
		}
	}
}

func TestRegistrationFlow(t *testing.T) {
	remote := &fakeRemote{}
	app := newTestApp(t, remote, nil)
	token := login(t, app)

	status, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/challenge", token: token})
	if status != http.StatusOK {
		t.Fatalf("challenge: expected 200, got %d", status)
	}
	digits := answer(t, body)

	status, body = do(t, app, call{method: http.MethodPost, path: "/api/v1/attendance", token: token, body: digits})
	if status != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d (%v)", status, body)
	}
	if _, ok := body["next"].(map[string]any); !ok {
		t.Fatalf("expected next challenge, got %v", body)
	}
	if history, _ := body["history"].([]any); len(history) != 2 {
		t.Fatalf("expected refreshed history of 2, got %v", body["history"])
	}

	status, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/attendance?filter=today", token: token})
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	if body["total"].(float64) != 2 {
		t.Fatalf("expected total 2, got %v", body["total"])
	}
	if entries := body["entries"].([]any); len(entries) != 1 {
		t.Fatalf("expected 1 entry for today, got %d", len(entries))
	}

	status, body = do(t, app, call{method: http.MethodGet, path: "/api/v1/receipts", token: token})
	if status != http.StatusOK {
		t.Fatalf("receipts: expected 200, got %d", status)
	}
	if receipts := body["receipts"].([]any); len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}

	if status, _ := do(t, app, call{method: http.MethodPost, path: "/api/v1/auth/logout", token: token}); status != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", status)
	}
	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/v1/challenge", token: token}); status != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401, got %d", status)
	}
}

func TestSubmitMismatchReturnsExpected(t *testing.T) {
	remote := &fakeRemote{}
	app := newTestApp(t, remote, nil)
	token := login(t, app)

	_, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/challenge", token: token})
	digits := answer(t, body)
	digits.First = wrong(digits.First)

	status, body := do(t, app, call{method: http.MethodPost, path: "/api/v1/attendance", token: token, body: digits})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if expected, _ := body["expected"].([]any); len(expected) != 2 {
		t.Fatalf("expected two expected characters, got %v", body)
	}
	if remote.submitCount() != 0 {
		t.Fatalf("mismatch must not reach the remote")
	}
}

func TestHistoryRejectsUnknownFilter(t *testing.T) {
	app := newTestApp(t, &fakeRemote{}, nil)
	token := login(t, app)
	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/v1/attendance?filter=year", token: token}); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
}

func TestSubmitIsIdempotentWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	remote := &fakeRemote{}
	app := newTestApp(t, remote, cache)
	token := login(t, app)

	_, body := do(t, app, call{method: http.MethodGet, path: "/api/v1/challenge", token: token})
	digits := answer(t, body)

	status, _ := do(t, app, call{method: http.MethodPost, path: "/api/v1/attendance", token: token, body: digits})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", status)
	}

	headers := map[string]string{middleware.IdempotencyKeyHeader: "tap-1"}
	status, first := do(t, app, call{method: http.MethodPost, path: "/api/v1/attendance", token: token, body: digits, headers: headers})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, first)
	}
	status, second := do(t, app, call{method: http.MethodPost, path: "/api/v1/attendance", token: token, body: digits, headers: headers})
	if status != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", status)
	}
	if first["receipt"].(map[string]any)["id"] != second["receipt"].(map[string]any)["id"] {
		t.Fatalf("expected the same receipt on replay")
	}
	if remote.submitCount() != 1 {
		t.Fatalf("expected one remote submission, got %d", remote.submitCount())
	}
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	if err := Setup(NewApp(cfg), Deps{Cfg: cfg, Remote: &fakeRemote{}}); err == nil {
		t.Fatalf("expected error without database in production")
	}
}
