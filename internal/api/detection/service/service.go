package detectionService

import (
	"GeoDetect/internal/api/detection"
	detectionRepository "GeoDetect/internal/api/detection/repository"
	"GeoDetect/internal/entity"
	"GeoDetect/pkg/geotag"
	"GeoDetect/pkg/redis"
	"GeoDetect/pkg/storage"
	"GeoDetect/pkg/utils"
	"context"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Detector finds objects in an encoded image and reports pixel xyxy boxes.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]entity.RawDetection, error)
}

type IDetectionService interface {
	Detect(ctx context.Context, input detection.DetectInput) (detection.DetectResponse, error)
	DetectDemo(ctx context.Context) (detection.DemoResponse, error)
	DetectFrame(ctx context.Context, frame []byte) (detection.FrameResponse, error)
	GetDetection(ctx context.Context, id string) (detection.DetectionRecordResponse, error)
	ListDetections(ctx context.Context, page, limit int) (detection.DetectionListResponse, error)
	DeleteDetection(ctx context.Context, id string) error
}

const AnnotatedPath = "/static/annotated/"

type Options struct {
	Backend       detection.DetectorBackend
	MinConfidence float64
	CacheTTL      time.Duration
	DataDir       string
}

func OptionsFromEnv() Options {
	opts := Options{
		Backend:       detection.DetectorBackend(os.Getenv("DETECTOR_BACKEND")),
		MinConfidence: 0.3,
		CacheTTL:      24 * time.Hour,
		DataDir:       os.Getenv("DATA_DIR"),
	}

	if opts.Backend == "" {
		opts.Backend = detection.WebsocketBackend
	}
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	if v, err := strconv.ParseFloat(os.Getenv("DETECTION_MIN_CONFIDENCE"), 64); err == nil && v >= 0 && v <= 1 {
		opts.MinConfidence = v
	}
	if v, err := time.ParseDuration(os.Getenv("DETECTION_CACHE_TTL")); err == nil && v > 0 {
		opts.CacheTTL = v
	}

	return opts
}

type detectionService struct {
	log        *logrus.Logger
	repository detectionRepository.Repository
	detector   Detector
	storage    storage.IStorage
	cache      redis.IRedis
	geotag     *geotag.Extractor
	utils      utils.IUtils
	opts       Options
}

// NewDetectionService wires the pipeline. detector and cache may be nil: a nil
// detector makes every detection fail with ErrModelNotInitialized and a nil
// cache disables result caching.
func NewDetectionService(
	log *logrus.Logger,
	repository detectionRepository.Repository,
	detector Detector,
	storage storage.IStorage,
	cache redis.IRedis,
	utils utils.IUtils,
	opts Options,
) IDetectionService {
	return &detectionService{
		log:        log,
		repository: repository,
		detector:   detector,
		storage:    storage,
		cache:      cache,
		geotag:     geotag.New(log),
		utils:      utils,
		opts:       opts,
	}
}
