package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wayli-app/ocrserve/internal/ocr"
)

// HealthHandler serves the ping endpoints. Neither checks the engine.
type HealthHandler struct {
	holder *ocr.Holder
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(holder *ocr.Holder) *HealthHandler {
	return &HealthHandler{holder: holder}
}

// HandlePing answers GET /ping on the main port with the engine name
func (h *HealthHandler) HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"engine": h.holder.Name(),
	})
}

// HandleLiveness answers GET /ping on the health port
func (h *HealthHandler) HandleLiveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
