package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/service"
)

type AudioHandler struct {
	service *service.RelayService
	log     logrus.FieldLogger
}

func NewAudioHandler(svc *service.RelayService, log logrus.FieldLogger) *AudioHandler {
	return &AudioHandler{
		service: svc,
		log:     log,
	}
}

// Stream handles GET /api/stream
func (h *AudioHandler) Stream(c *fiber.Ctx) error {
	return h.relay(c, service.ModeInline)
}

// Download handles GET /api/download
func (h *AudioHandler) Download(c *fiber.Ctx) error {
	return h.relay(c, service.ModeAttachment)
}

func (h *AudioHandler) relay(c *fiber.Ctx, mode service.RelayMode) error {
	// Query already percent-decodes the parameter; decoding again would
	// corrupt URLs that legitimately contain escapes.
	stream, err := h.service.Open(c.UserContext(), c.Query("url"), mode)
	if err != nil {
		return writeError(c, h.log, err)
	}

	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Set(fiber.HeaderContentDisposition, stream.Disposition)
	c.Set(fiber.HeaderCacheControl, "no-store")

	// Unknown size makes fasthttp use chunked encoding. It closes the stream
	// once the body is written or the connection drops.
	c.Context().SetBodyStream(stream, -1)
	return nil
}
