package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/model"
	"github.com/auralis/api/internal/service"
	"github.com/auralis/api/pkg/response"
)

type GenerateHandler struct {
	service *service.GenerateService
	log     logrus.FieldLogger
}

func NewGenerateHandler(svc *service.GenerateService, log logrus.FieldLogger) *GenerateHandler {
	return &GenerateHandler{
		service: svc,
		log:     log,
	}
}

// Generate handles POST /api/generate
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	// The body is read regardless of Content-Type and a malformed one counts
	// as empty, which then fails on the missing prompt.
	var body model.GenerateRequestBody
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			body = model.GenerateRequestBody{}
		}
	}

	req := model.NewGenerationRequest(body)
	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return response.OK(c, result)
}
