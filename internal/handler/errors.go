package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/service"
	"github.com/auralis/api/pkg/response"
)

// MsgMethodNotAllowed points lost callers at the one write endpoint.
const MsgMethodNotAllowed = "Method not allowed. Use POST to /api/generate with a JSON body (prompt, duration, model_version)."

// writeError renders err as the JSON error body. Unclassified errors are
// logged and reported as a generic 500.
func writeError(c *fiber.Ctx, log logrus.FieldLogger, err error) error {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return response.Error(c, svcErr.Kind.HTTPStatus(), svcErr.Kind.Code(), svcErr.Message, svcErr.Details)
	}

	log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
	return response.ServiceError(c, service.MsgUnexpectedFault)
}

// ErrorHandler is the Fiber error handler. Routing errors keep their status;
// everything else goes through writeError so no failure leaves as non-JSON.
func ErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			switch fe.Code {
			case fiber.StatusMethodNotAllowed:
				return response.Error(c, fe.Code, response.CodeMethodNotAllowed, MsgMethodNotAllowed, nil)
			case fiber.StatusNotFound:
				return response.NotFound(c, "Not found")
			case fiber.StatusInternalServerError:
				log.WithError(err).WithField("path", c.Path()).Error("internal error")
				return response.ServiceError(c, service.MsgUnexpectedFault)
			}
			return response.Error(c, fe.Code, codeForStatus(fe.Code), fe.Message, nil)
		}
		return writeError(c, log, err)
	}
}

func codeForStatus(status int) string {
	switch {
	case status == fiber.StatusTooManyRequests:
		return response.CodeRateLimited
	case status == fiber.StatusUnauthorized:
		return response.CodeUnauthorized
	case status < fiber.StatusInternalServerError:
		return response.CodeValidationError
	default:
		return response.CodeServiceError
	}
}
