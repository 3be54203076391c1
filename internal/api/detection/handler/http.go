package detectionHandler

import (
	detectionService "GeoDetect/internal/api/detection/service"
	"GeoDetect/internal/middleware"
	"GeoDetect/pkg/storage"
	"GeoDetect/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	storage          storage.IStorage
	utils            utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	storage storage.IStorage,
	utils utils.IUtils,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		storage:          storage,
		utils:            utils,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	detect := srv.Group("/detect")
	detect.Use("/ws", wsMiddleware)
	detect.Get("/ws", websocket.New(h.handleStream))
	srv.Post("/detect", h.middleware.NewRateLimiter, h.Detect)
	srv.Post("/detect-demo", h.middleware.NewRateLimiter, h.DetectDemo)

	srv.Get("/detections", h.ListDetections)
	detections := srv.Group("/detections")
	detections.Get("/:id", h.GetDetection)
	detections.Delete("/:id", h.middleware.NewTokenMiddleware, h.DeleteDetection)
}

// StartStatic mounts the annotated image route outside the API group.
func (h *DetectionHandler) StartStatic(app fiber.Router) {
	app.Get(detectionService.AnnotatedPath+":filename", h.ServeAnnotated)
}
