package config

import (
	"GeoDetect/database/postgres"
	"GeoDetect/internal/api/detection"
	detectionHandler "GeoDetect/internal/api/detection/handler"
	detectionRepository "GeoDetect/internal/api/detection/repository"
	detectionService "GeoDetect/internal/api/detection/service"
	"GeoDetect/internal/middleware"
	"GeoDetect/pkg/gemini"
	"GeoDetect/pkg/metrics"
	"GeoDetect/pkg/openai"
	"GeoDetect/pkg/redis"
	"GeoDetect/pkg/s3"
	"GeoDetect/pkg/storage"
	"GeoDetect/pkg/utils"
	websocketPkg "GeoDetect/pkg/websocket"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	storage     storage.IStorage
	detector    detectionService.Detector
	closers     []func()
	opts        detectionService.Options
	static      *detectionHandler.DetectionHandler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{opts: detectionService.OptionsFromEnv()}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return err
		}

		s.db = db
		s.closers = append(s.closers, func() { db.Close() })
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		s.closers = append(s.closers, func() { redisServer.Close() })
		return nil
	}
}

// WithStorage picks local disk or S3 from STORAGE_DRIVER.
func WithStorage() ServerOption {
	return func(s *Server) error {
		switch driver := os.Getenv("STORAGE_DRIVER"); driver {
		case "s3":
			client, err := s3.New()
			if err != nil {
				if s.log != nil {
					s.log.Errorf("Failed to initialize S3 client: %v", err)
				}
				return fmt.Errorf("failed to create S3 client: %w", err)
			}
			s.storage = storage.NewS3(client)
		case "", "local":
			dir := os.Getenv("STORAGE_DIR")
			if dir == "" {
				dir = "./storage/annotated"
			}
			local, err := storage.NewLocal(dir)
			if err != nil {
				return err
			}
			s.storage = local
		default:
			return fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
		}
		return nil
	}
}

// WithDetector connects the configured backend. A backend that cannot start is
// logged and left unset so detection endpoints answer 503 instead of the
// server refusing to boot.
func WithDetector() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before detector")
		}

		switch s.opts.Backend {
		case detection.WebsocketBackend:
			client := websocketPkg.NewInferenceClient(s.log)
			s.detector = client
			s.closers = append(s.closers, client.CloseConnections)
		case detection.GeminiBackend:
			client, err := gemini.NewGeminiClient()
			if err != nil {
				s.log.Errorf("Failed to create Gemini client: %v", err)
				return nil
			}
			s.detector = client
			s.closers = append(s.closers, client.Close)
		case detection.OpenAIBackend:
			client, err := openai.NewVisionClient()
			if err != nil {
				s.log.Errorf("Failed to create OpenAI vision client: %v", err)
				return nil
			}
			s.detector = client
		default:
			return fmt.Errorf("unknown DETECTOR_BACKEND %q", s.opts.Backend)
		}

		s.log.WithField("backend", s.opts.Backend).Info("Detector backend configured")
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Detection
	detectionRepo := detectionRepository.New(s.db, s.log)
	detectionServices := detectionService.NewDetectionService(s.log, detectionRepo, s.detector, s.storage, s.redisServer, s.utils, s.opts)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.storage, s.utils)

	s.static = detectionHandlers
	s.handlers = append(s.handlers, detectionHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware)
	s.engine.Use(metrics.Middleware())

	s.setupHealthCheck()
	s.engine.Get("/metrics", metrics.Handler())

	if s.static != nil {
		s.static.StartStatic(s.engine)
	}

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "5000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting requests and releases every backing client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.ShutdownWithContext(ctx)

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":  "Server is Healthy!",
			"backend":  s.opts.Backend,
			"detector": s.detector != nil,
		})
	})
}
