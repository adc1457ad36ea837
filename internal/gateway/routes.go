package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/puce/registro/internal/config"
	"github.com/puce/registro/internal/desk"
	"github.com/puce/registro/internal/journal"
	"github.com/puce/registro/internal/logging"
	"github.com/puce/registro/internal/middleware"
	"github.com/puce/registro/internal/remote"
	"github.com/puce/registro/internal/session"
)

// Deps aggregates shared dependencies required to wire routes. Remote is
// built from Cfg when nil.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	Remote desk.Remote
	Now    func() time.Time
}

// Setup configures middlewares and all gateway routes. Outside development
// both Postgres and Redis are required; in development missing ones fall
// back to memory.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	if d.Remote == nil {
		client, err := remote.New(remote.Options{
			Endpoint: d.Cfg.Endpoint,
			Relay:    remote.RelayFor(d.Cfg.Relay),
			Timeout:  d.Cfg.RequestTimeout,
			Logger:   d.Logger,
		})
		if err != nil {
			return err
		}
		d.Remote = client
	}

	var store session.Store
	if d.Cache != nil {
		store = session.NewRedisStore(d.Cache, d.Cfg.SessionTTL)
	} else {
		store = session.NewMemoryStore()
	}

	var receipts journal.Journal
	if d.DB != nil {
		pg := journal.NewPostgresJournal(d.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		receipts = pg
	} else {
		receipts = journal.NewInMemory()
	}

	dk, err := desk.New(desk.Options{
		Remote:  d.Remote,
		Store:   store,
		Journal: receipts,
		Now:     d.Now,
		Logger:  d.Logger,
	})
	if err != nil {
		return err
	}
	h := &handler{desk: dk, logger: d.Logger}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	auth := api.Group("/auth")
	auth.Post("/login", middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts), h.login)
	auth.Post("/logout", requireSession, h.logout)

	protected := api.Group("", requireSession)
	protected.Get("/users", h.users)
	protected.Get("/challenge", h.challenge)
	protected.Get("/attendance", h.history)
	protected.Get("/receipts", h.receipts)
	if d.Cache != nil {
		protected.Post("/attendance", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger), h.submit)
	} else {
		protected.Post("/attendance", h.submit)
	}

	return nil
}
