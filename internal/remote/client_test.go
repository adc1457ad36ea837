package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/puce/registro/internal/attendance"
)

const endpointPath = "/api/examen.php"

// startRemote serves handler on a loopback listener and returns the endpoint URL.
func startRemote(t *testing.T, handler fiber.Handler) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(handler)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String() + endpointPath
}

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(Options{Endpoint: endpoint, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAuthenticateArrayResponse(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.SendStatus(fiber.StatusMethodNotAllowed)
		}
		if c.Query("user") != "ana" || c.Query("pass") != "s3cret" {
			return c.JSON([]any{})
		}
		if c.Get(fiber.HeaderContentType) != fiber.MIMEApplicationJSON {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.JSON([]fiber.Map{{"record": 12, "id": "1712345678", "names": "Ana", "lastnames": "Paredes", "user": "ana"}})
	})
	client := newClient(t, endpoint)

	id, err := client.Authenticate(context.Background(), "ana", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.RecordID != 12 || id.NationalID != "1712345678" || id.LoginName != "ana" {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := client.Authenticate(context.Background(), "ana", "wrong"); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthenticateObjectResponse(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		if c.Query("user") == "nobody" {
			return c.JSON(fiber.Map{"error": "invalid credentials"})
		}
		return c.JSON(fiber.Map{"record": "5", "id": "0102", "user": "luis"})
	})
	client := newClient(t, endpoint)

	id, err := client.Authenticate(context.Background(), "luis", "x")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.RecordID != 5 {
		t.Fatalf("expected record 5, got %d", id.RecordID)
	}
	if _, err := client.Authenticate(context.Background(), "nobody", "x"); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("expected not found for object without record, got %v", err)
	}
}

func TestNonSuccessStatusIsConnectionError(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusInternalServerError).SendString("boom")
	})
	client := newClient(t, endpoint)

	_, err := client.ListUsers(context.Background())
	var cerr *attendance.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if cerr.Status != fiber.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", cerr.Status)
	}
}

func TestTransportFailureIsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := newClient(t, "http://"+addr+endpointPath)
	_, err = client.ListAttendance(context.Background(), 1)
	var cerr *attendance.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestMalformedJSONIsConnectionError(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		return c.SendString("<html>oops</html>")
	})
	client := newClient(t, endpoint)

	if _, err := client.ListUsers(context.Background()); err == nil {
		t.Fatalf("expected error for html body")
	}
	if _, err := client.Authenticate(context.Background(), "a", "b"); err == nil {
		t.Fatalf("expected error for html body")
	}
}

func TestListUsersNonArrayIsEmpty(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "no users"})
	})
	users, err := newClient(t, endpoint).ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no users, got %d", len(users))
	}
}

func TestListAttendanceSendsRecord(t *testing.T) {
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		if c.Query("record") != "12" {
			return c.JSON([]any{})
		}
		return c.JSON([]fiber.Map{
			{"record": 12, "date": "2026-10-15", "time": "08:00:00", "join_date": "2026-10-15 08:00:00"},
			{"record": 12, "date": "2026-10-14", "time": "08:05:00", "join_date": "2026-10-14 08:05:00"},
		})
	})
	entries, err := newClient(t, endpoint).ListAttendance(context.Background(), 12)
	if err != nil {
		t.Fatalf("list attendance: %v", err)
	}
	if len(entries) != 2 || entries[1].Time != "08:05:00" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestSubmitAttendance(t *testing.T) {
	cases := []struct {
		name     string
		response any
		want     bool
	}{
		{"success flag", fiber.Map{"success": true}, true},
		{"status literal", fiber.Map{"status": "success"}, true},
		{"message only", fiber.Map{"message": "Error: duplicate"}, false},
		{"false flag", fiber.Map{"success": false, "message": "saved"}, false},
		{"empty", fiber.Map{}, false},
		{"success flag with numeric status", fiber.Map{"success": true, "status": 200}, true},
		{"status literal with odd success", fiber.Map{"success": "yes", "status": "success"}, true},
		{"array body", []any{fiber.Map{"success": true}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got submitRequest
			endpoint := startRemote(t, func(c *fiber.Ctx) error {
				if c.Method() != fiber.MethodPost {
					return c.SendStatus(fiber.StatusMethodNotAllowed)
				}
				if err := json.Unmarshal(c.Body(), &got); err != nil {
					return c.SendStatus(fiber.StatusBadRequest)
				}
				return c.JSON(tc.response)
			})
			ok, err := newClient(t, endpoint).SubmitAttendance(context.Background(), 33)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, ok)
			}
			if got.RecordUser != 33 || got.JoinUser != 33 {
				t.Fatalf("expected record in both fields, got %+v", got)
			}
		})
	}
}

func TestPrefixRelayRoutesThroughRelay(t *testing.T) {
	var hits atomic.Int32
	relay := startRemote(t, func(c *fiber.Ctx) error {
		if !strings.Contains(c.OriginalURL(), "remote.invalid/api/examen.php") {
			return c.SendStatus(fiber.StatusNotFound)
		}
		hits.Add(1)
		return c.JSON([]any{})
	})
	relayBase := strings.TrimSuffix(relay, endpointPath)

	client, err := New(Options{Endpoint: "https://remote.invalid/api/examen.php", Relay: RelayFor(relayBase)})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListUsers(context.Background()); err != nil {
		t.Fatalf("list users through relay: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected relay to be hit once, got %d", hits.Load())
	}
}

func TestRelayFor(t *testing.T) {
	if _, ok := RelayFor("  ").(Direct); !ok {
		t.Fatalf("expected Direct for empty prefix")
	}
	got := RelayFor("https://relay.example").Route("https://api.example/x")
	if got != "https://relay.example/https://api.example/x" {
		t.Fatalf("unexpected routed url %q", got)
	}
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	endpoint := startRemote(t, func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.JSON([]any{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newClient(t, endpoint).ListUsers(ctx); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request, got %d", hits.Load())
	}
}
