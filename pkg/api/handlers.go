package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/posync/posync/pkg/log"
)

// SessionHandler holds dependencies for the session status endpoints.
type SessionHandler struct {
	view   SessionView
	info   Info
	logger customlog.Logger
}

// NewSessionHandler creates a new handler for session endpoints.
func NewSessionHandler(view SessionView, info Info, logger customlog.Logger) *SessionHandler {
	if view == nil {
		panic("SessionView cannot be nil in NewSessionHandler")
	}
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	return &SessionHandler{
		view:   view,
		info:   info,
		logger: logger,
	}
}

// RegisterSessionRoutes registers the health and session endpoints with the Fiber app.
func RegisterSessionRoutes(app *fiber.App, view SessionView, info Info, logger customlog.Logger) {
	h := NewSessionHandler(view, info, logger)

	app.Get("/health", h.handleHealth)

	apiGroup := app.Group("/api/v1")
	apiGroup.Get("/session", h.handleGetSession)
	apiGroup.Get("/peers", h.handleListPeers)
	apiGroup.Get("/peers/:id", h.handleGetPeer)
	apiGroup.Get("/stats", h.handleGetStats)

	h.logger.Infof("Registered session API endpoints under /api/v1")
}

func (h *SessionHandler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "role": h.view.Role()})
}

func (h *SessionHandler) handleGetSession(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/session")
	return c.JSON(SessionResponse{
		Info:          h.info,
		Role:          h.view.Role(),
		LocalEndpoint: h.view.LocalEndpoint().String(),
		Phase:         h.view.Phase().String(),
		Stats:         h.view.Stats(),
	})
}

func (h *SessionHandler) handleListPeers(c *fiber.Ctx) error {
	peers := h.view.Peers()
	return c.JSON(PeersResponse{Count: len(peers), Peers: peers})
}

func (h *SessionHandler) handleGetPeer(c *fiber.Ctx) error {
	id := c.Params("id")
	for _, p := range h.view.Peers() {
		if p.ID == id {
			return c.JSON(p)
		}
	}
	return c.Status(http.StatusNotFound).JSON(fiber.Map{
		"error": "peer not found: " + id,
	})
}

func (h *SessionHandler) handleGetStats(c *fiber.Ctx) error {
	return c.JSON(h.view.Stats())
}

// ErrorHandler renders errors as JSON bodies.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
