package detection

import (
	"GeoDetect/internal/entity"
	"GeoDetect/pkg/geotag"
	"time"
)

type DetectRequest struct {
	ManualLat string `form:"manual_lat" validate:"required_with=ManualLng,omitempty,latitude"`
	ManualLng string `form:"manual_lng" validate:"required_with=ManualLat,omitempty,longitude"`
}

type DetectInput struct {
	Image    []byte
	Filename string
	Override *geotag.GeoCoordinate
}

type DetectResponse struct {
	ID                string                `json:"id,omitempty"`
	Detections        []entity.Detection    `json:"detections"`
	AnnotatedImageURL string                `json:"annotated_image_url,omitempty"`
	TotalDetections   int                   `json:"total_detections"`
	ImageLocation     *entity.Location      `json:"image_location"`
	LocationSource    entity.LocationSource `json:"location_source,omitempty"`
	Cached            bool                  `json:"cached,omitempty"`
}

type DemoResult struct {
	Filename string `json:"filename"`
	DetectResponse
}

type DemoResponse struct {
	Results     []DemoResult `json:"results"`
	TotalImages int          `json:"total_images"`
}

type FrameResponse struct {
	Detections      []entity.Detection `json:"detections"`
	TotalDetections int                `json:"total_detections"`
	ImageLocation   *entity.Location   `json:"image_location"`
	Error           string             `json:"error,omitempty"`
}

type DetectionRecordResponse struct {
	ID                string                `json:"id"`
	Filename          string                `json:"filename"`
	Detections        []entity.Detection    `json:"detections"`
	TotalDetections   int                   `json:"total_detections"`
	AnnotatedImageURL string                `json:"annotated_image_url"`
	ImageLocation     *entity.Location      `json:"image_location"`
	LocationSource    entity.LocationSource `json:"location_source,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

type DetectionListResponse struct {
	Detections []DetectionRecordResponse `json:"detections"`
	Total      int                       `json:"total"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	TotalPages int                       `json:"total_pages"`
}

type DetectorBackend string

const (
	WebsocketBackend DetectorBackend = "websocket"
	GeminiBackend    DetectorBackend = "gemini"
	OpenAIBackend    DetectorBackend = "openai"
)

type ListDetectionsRequest struct {
	Page  int `query:"page" validate:"omitempty,min=1"`
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}
