package scan

import (
	"errors"
	"net/http"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/security"

	"github.com/labstack/echo/v5"
)

// Server is the standalone HTTP surface gate scanners talk to. It runs
// beside the main application so venue hardware needs nothing but this
// one endpoint.
type Server struct {
	validator *Validator
	echo      *echo.Echo
}

func NewServer(validator *Validator, limiter *security.RateLimiter) *Server {
	e := echo.New()

	if limiter != nil {
		e.Use(limiter.ScanRateLimit())
	}

	s := &Server{validator: validator, echo: e}
	e.POST("/api/v1/scan", s.handleScan)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	return s
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) handleScan(c echo.Context) error {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := c.Bind(&req); err != nil || req.Credential == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "credential required"})
	}

	ticket, err := s.validator.Scan(c.Request().Context(), req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"result": "rejected", "reason": "unknown credential"})
		case errors.Is(err, status.ErrCredentialInvalid):
			return c.JSON(http.StatusConflict, map[string]string{"result": "rejected", "reason": "credential no longer valid"})
		case errors.Is(err, status.ErrAlreadyScanned):
			return c.JSON(http.StatusConflict, map[string]string{"result": "rejected", "reason": "credential already used"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "scan failed"})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"result":    "admitted",
		"ticket_id": ticket.ID,
		"event_id":  ticket.EventID,
	})
}
