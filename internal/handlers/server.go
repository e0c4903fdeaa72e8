package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ad/go-workshop-progress/internal/middleware"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AppOptions struct {
	JWTKey       string
	ErrorManager *services.ErrorManager
	// AccessLog receives one line per request; nil disables the access log.
	AccessLog io.Writer
	Logger    *zap.Logger
}

func NewApp(progressHandler *ProgressHandler, opts AppOptions) *fiber.App {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	app := fiber.New(fiber.Config{
		AppName:               "workshop-progress",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error("panic in handler",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Any("panic", e))
			if opts.ErrorManager == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			opts.ErrorManager.NotifyAdmin(ctx, e, services.RequestInfo{
				Method:    c.Method(),
				Path:      c.Path(),
				UserID:    middleware.UserID(c),
				RequestID: c.GetRespHeader(fiber.HeaderXRequestID),
			})
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST",
		AllowHeaders: "Content-Type,Authorization",
	}))

	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${respHeader:X-Request-ID} ${ip} ${method} ${path} ${status} ${latency}\n",
			Output: opts.AccessLog,
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	progressHandler.Register(app, middleware.JWTMiddleware(opts.JWTKey))

	return app
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		return middleware.JsonError(c, code, message)
	}
}
