package observe

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Middleware records the duration of every inbound request, labelled by the
// matched route pattern rather than the raw path so job ids do not explode
// label cardinality.
func Middleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		m.RecordHTTPRequest(c.UserContext(), c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
