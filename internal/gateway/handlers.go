package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/desk"
)

const sessionKeyLocal = "session_key"

type handler struct {
	desk   *desk.Desk
	logger *slog.Logger
}

type loginRequest struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type submitRequest struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// requireSession reads the bearer token issued by login. Whether it still
// names a live session is decided by the desk.
func requireSession(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return fiber.NewError(http.StatusUnauthorized, attendance.Message(attendance.ErrNoSession))
	}
	c.Locals(sessionKeyLocal, token)
	return c.Next()
}

func sessionKey(c *fiber.Ctx) string {
	key, _ := c.Locals(sessionKeyLocal).(string)
	return key
}

func (h *handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	s, err := h.desk.Login(c.UserContext(), desk.Credentials{Username: req.User, Password: req.Pass}, "")
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"token": s.Key, "identity": s.Identity})
}

func (h *handler) logout(c *fiber.Ctx) error {
	if err := h.desk.Logout(c.UserContext(), sessionKey(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *handler) users(c *fiber.Ctx) error {
	if _, err := h.desk.Current(c.UserContext(), sessionKey(c)); err != nil {
		return writeError(c, err)
	}
	users, err := h.desk.Users(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

func (h *handler) challenge(c *fiber.Ctx) error {
	s, err := h.desk.Enter(c.UserContext(), sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"identity":  s.Identity,
		"challenge": s.Challenge,
	})
}

func (h *handler) submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	receipt, err := h.desk.Submit(c.UserContext(), sessionKey(c), req.First, req.Second)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"receipt": receipt.Receipt,
		"next":    receipt.Next,
		"history": receipt.History,
	})
}

func (h *handler) history(c *fiber.Ctx) error {
	mode, err := attendance.ParseFilterMode(c.Query("filter"))
	if err != nil {
		return writeError(c, err)
	}
	f := attendance.Filter{Mode: mode, From: c.Query("from"), To: c.Query("to")}
	hist, err := h.desk.History(c.UserContext(), sessionKey(c), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"filter":  f.String(),
		"total":   len(hist.All),
		"entries": hist.Shown,
	})
}

func (h *handler) receipts(c *fiber.Ctx) error {
	list, err := h.desk.Receipts(c.UserContext(), sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"receipts": list})
}

// writeError maps workflow errors onto HTTP responses. Validation failures
// carry the expected characters so the client can show them.
func writeError(c *fiber.Ctx, err error) error {
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		body := fiber.Map{"error": verr.Reason}
		if len(verr.Expected) > 0 {
			body["expected"] = verr.Expected
		}
		return c.Status(http.StatusUnprocessableEntity).JSON(body)
	}
	var cerr *attendance.ConnectionError
	switch {
	case errors.As(err, &cerr):
		return fiber.NewError(http.StatusBadGateway, attendance.Message(err))
	case errors.Is(err, attendance.ErrNoSession):
		return fiber.NewError(http.StatusUnauthorized, attendance.Message(err))
	case errors.Is(err, attendance.ErrBusy):
		return fiber.NewError(http.StatusConflict, attendance.Message(err))
	}
	return err
}
