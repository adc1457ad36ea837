package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/puce/registro/internal/logging"
)

func setupTestApp(t *testing.T, handler fiber.Handler) *fiber.App {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/attendance", handler)
	return app
}

func postAttendance(t *testing.T, app *fiber.App, key, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/attendance", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app := setupTestApp(t, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	if status, _ := postAttendance(t, app, "", "tok"); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	var calls atomic.Int32
	app := setupTestApp(t, func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})

	status, first := postAttendance(t, app, "abc123", "tok")
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	status, second := postAttendance(t, app, "abc123", "tok")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyScopedPerSession(t *testing.T) {
	var calls atomic.Int32
	app := setupTestApp(t, func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.SendStatus(fiber.StatusCreated)
	})
	postAttendance(t, app, "same", "alice")
	postAttendance(t, app, "same", "bob")
	if calls.Load() != 2 {
		t.Fatalf("different sessions must not share replays, got %d calls", calls.Load())
	}
}

func TestIdempotencyDoesNotReplayFailures(t *testing.T) {
	var calls atomic.Int32
	app := setupTestApp(t, func(c *fiber.Ctx) error {
		if calls.Add(1) == 1 {
			return fiber.NewError(fiber.StatusBadGateway, "remote down")
		}
		return c.SendStatus(fiber.StatusCreated)
	})
	if status, _ := postAttendance(t, app, "retry", "tok"); status != fiber.StatusBadGateway {
		t.Fatalf("expected first attempt to fail, got %d", status)
	}
	if status, _ := postAttendance(t, app, "retry", "tok"); status != fiber.StatusCreated {
		t.Fatalf("expected retry to reach the handler, got %d", status)
	}
}
