package config

import (
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	bodyLimitMB, err := strconv.Atoi(os.Getenv("UPLOAD_MAX_MB"))
	if err != nil || bodyLimitMB <= 0 {
		bodyLimitMB = 20
	}

	app := fiber.New(
		fiber.Config{
			AppName:               "GeoDetect",
			BodyLimit:             (bodyLimitMB + 1) * 1024 * 1024,
			DisableKeepalive:      false,
			StrictRouting:         true,
			CaseSensitive:         true,
			EnablePrintRoutes:     os.Getenv("APP_ENV") == "development",
			DisableStartupMessage: os.Getenv("APP_ENV") == "test",
			JSONEncoder:           jsoniter.Marshal,
			JSONDecoder:           jsoniter.Unmarshal,
		})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.WithField("path", c.Path()).Errorf("Recovered from panic: %v", e)
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization,X-Request-ID",
	}))

	return app
}
