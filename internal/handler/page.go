package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/pkg/response"
	"github.com/auralis/api/web"
)

type PageHandler struct {
	generator client.MusicGenerator
	redis     *redis.Client
}

// NewPageHandler builds the handler for the landing page and probes.
// redisClient may be nil when Redis is not configured.
func NewPageHandler(generator client.MusicGenerator, redisClient *redis.Client) *PageHandler {
	return &PageHandler{
		generator: generator,
		redis:     redisClient,
	}
}

// Index handles GET /
func (h *PageHandler) Index(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(web.IndexHTML)
}

// Favicon handles GET /favicon.ico
func (h *PageHandler) Favicon(c *fiber.Ctx) error {
	return response.NoContent(c)
}

// Health handles GET /health
func (h *PageHandler) Health(c *fiber.Ctx) error {
	redisUp := false
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		redisUp = h.redis.Ping(ctx).Err() == nil
	}

	return response.OK(c, fiber.Map{
		"status": "ok",
		"services": fiber.Map{
			"replicate": h.generator.IsConfigured(),
			"redis":     redisUp,
		},
	})
}
