package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LivenessText is the static body served on GET /.
const LivenessText = "imghub is running"

// AssetHandler serves and deletes assets of one collection. It allows
// injecting fake handlers during tests.
type AssetHandler interface {
	Serve(fiber.Ctx, *CollectionRoute) error
	Delete(fiber.Ctx, *CollectionRoute) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger       *logrus.Logger
	Registry     *CollectionRegistry
	Assets       AssetHandler
	URLPrefix    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const contextKeyRequestID = "_imghub_request_id"

// NewApp builds a Fiber application with request-ID middleware, panic
// recovery, the liveness endpoint and a GET/DELETE route pair per collection:
//
//	<prefix>/<collection>/:seg1/:seg2/:filename
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("collection registry is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("asset handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ReadTimeout:   opts.ReadTimeout,
		WriteTimeout:  opts.WriteTimeout,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/", liveness)

	var router fiber.Router = app
	if opts.URLPrefix != "" {
		router = app.Group(opts.URLPrefix)
		router.Get("/", liveness)
	}

	for _, route := range opts.Registry.ordered {
		pattern := "/" + route.Name + "/:seg1/:seg2/:filename"
		router.Get(pattern, func(c fiber.Ctx) error {
			return opts.Assets.Serve(c, route)
		})
		router.Delete(pattern, func(c fiber.Ctx) error {
			return opts.Assets.Delete(c, route)
		})
	}

	return app, nil
}

func liveness(c fiber.Ctx) error {
	return c.SendString(LivenessText)
}

// requestContextMiddleware 为每个请求生成请求 ID，并通过响应头回传。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// errorHandler renders routing errors as plain text. Unknown errors are
// logged and surface as a bare 500 so internal detail never reaches clients.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			if fiberErr.Code == fiber.StatusNotFound {
				return c.Status(fiber.StatusNotFound).SendString("Not Found")
			}
			return c.Status(fiberErr.Code).SendString(fiberErr.Message)
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"action":     "http",
			"path":       c.Path(),
			"request_id": RequestID(c),
		}).Error("unhandled_error")
		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
