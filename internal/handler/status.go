package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/service"
	"github.com/auralis/api/pkg/response"
)

type StatusHandler struct {
	service *service.StatusService
	log     logrus.FieldLogger
}

func NewStatusHandler(svc *service.StatusService, log logrus.FieldLogger) *StatusHandler {
	return &StatusHandler{
		service: svc,
		log:     log,
	}
}

// Status handles GET /api/status/:jobId
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	report, err := h.service.Poll(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return writeError(c, h.log, err)
	}

	// Failed and canceled jobs keep the report body but not a 2xx status.
	if kind, failed := service.ReportFailure(report); failed {
		return c.Status(kind.HTTPStatus()).JSON(report)
	}

	return response.OK(c, report)
}
