package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/wayli-app/ocrserve/internal/inference"
)

const msgNoJSON = "No JSON data provided"

var errNoJSON = errors.New(msgNoJSON)

// OCRHandler serves POST /
type OCRHandler struct {
	service *inference.Service
}

// NewOCRHandler creates a new OCR handler
func NewOCRHandler(service *inference.Service) *OCRHandler {
	return &OCRHandler{service: service}
}

// HandleOCR decodes {"images": ...}, runs the batch and maps the outcome to a status code
func (h *OCRHandler) HandleOCR(c *fiber.Ctx) error {
	images, err := parseImages(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(inference.Response{
			Success: false,
			Error:   err.Error(),
		})
	}

	results, err := h.service.Process(c.UserContext(), images)
	if err != nil {
		return c.Status(statusFor(err)).JSON(inference.Failed(err))
	}

	return c.JSON(inference.Succeeded(results))
}

// parseImages reads the images field from a JSON object body.
// An empty body, a body that is not a JSON object, or an empty object is errNoJSON.
func parseImages(body []byte) (inference.ImageList, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errNoJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		return nil, errNoJSON
	}

	raw, ok := fields["images"]
	if !ok {
		return nil, nil
	}

	var images inference.ImageList
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// statusFor maps a batch error kind to an HTTP status
func statusFor(err error) int {
	switch inference.AsError(err).Kind {
	case inference.KindInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
