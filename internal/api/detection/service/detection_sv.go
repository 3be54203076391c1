package detectionService

import (
	"GeoDetect/internal/api/detection"
	"GeoDetect/internal/entity"
	"GeoDetect/pkg/annotate"
	contextPkg "GeoDetect/pkg/context"
	"GeoDetect/pkg/geotag"
	"GeoDetect/pkg/metrics"
	"GeoDetect/pkg/redis"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func (s *detectionService) Detect(ctx context.Context, input detection.DetectInput) (detection.DetectResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.detector == nil {
		return detection.DetectResponse{}, detection.ErrModelNotInitialized
	}

	img, err := annotate.Decode(input.Image)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"filename":   input.Filename,
			"error":      err.Error(),
		}).Warn("Uploaded file is not a decodable image")
		return detection.DetectResponse{}, detection.ErrInvalidImage
	}

	location, source := s.resolveLocation(ctx, input.Image, input.Override)
	imageHash := s.utils.HashImage(input.Image)

	raw, cached, err := s.detect(ctx, imageHash, img)
	if err != nil {
		return detection.DetectResponse{}, err
	}

	detections := s.filterDetections(raw)

	boxes := make([]annotate.Box, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, annotate.Box{
			Rect:  d.BBox,
			Label: fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence),
		})
	}

	annotated, err := annotate.EncodeJPEG(annotate.Draw(img, boxes))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to encode annotated image")
		return detection.DetectResponse{}, detection.ErrInternalServerError
	}

	now := time.Now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return detection.DetectResponse{}, detection.ErrInternalServerError
	}

	key := id + ".jpg"
	if err := s.storage.Save(ctx, key, annotated, "image/jpeg"); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"key":        key,
			"error":      err.Error(),
		}).Error("Failed to store annotated image")
		return detection.DetectResponse{}, detection.ErrStoreImage
	}

	record := entity.DetectionRecord{
		ID:                id,
		Filename:          filepath.Base(input.Filename),
		ImageHash:         imageHash,
		Detections:        detections,
		TotalDetections:   len(detections),
		AnnotatedImageKey: key,
		Location:          location,
		LocationSource:    source,
		CreatedAt:         now,
	}

	if err := s.saveRecord(ctx, record); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"key":        key,
				"error":      delErr.Error(),
			}).Warn("Failed to remove orphaned annotated image")
		}
		return detection.DetectResponse{}, err
	}

	s.log.WithFields(logrus.Fields{
		"request_id":      requestID,
		"id":              id,
		"detections":      len(detections),
		"location_source": source,
		"cached":          cached,
	}).Info("Successfully processed image")

	return detection.DetectResponse{
		ID:                id,
		Detections:        detections,
		AnnotatedImageURL: AnnotatedPath + key,
		TotalDetections:   len(detections),
		ImageLocation:     location,
		LocationSource:    source,
		Cached:            cached,
	}, nil
}

func (s *detectionService) DetectFrame(ctx context.Context, frame []byte) (detection.FrameResponse, error) {
	if s.detector == nil {
		return detection.FrameResponse{}, detection.ErrModelNotInitialized
	}

	img, err := annotate.Decode(frame)
	if err != nil {
		return detection.FrameResponse{}, detection.ErrInvalidImage
	}

	location, _ := s.resolveLocation(ctx, frame, nil)

	raw, _, err := s.detect(ctx, "", img)
	if err != nil {
		return detection.FrameResponse{}, err
	}

	detections := s.filterDetections(raw)

	return detection.FrameResponse{
		Detections:      detections,
		TotalDetections: len(detections),
		ImageLocation:   location,
	}, nil
}

// resolveLocation prefers the caller's override and falls back to the image's
// EXIF GPS block. A missing or broken geotag never fails the request.
func (s *detectionService) resolveLocation(ctx context.Context, data []byte, override *geotag.GeoCoordinate) (*entity.Location, entity.LocationSource) {
	if override != nil {
		metrics.LocationResolved.WithLabelValues(string(entity.LocationSourceManual)).Inc()
		return &entity.Location{Lat: override.Latitude, Lng: override.Longitude}, entity.LocationSourceManual
	}

	md, err := geotag.ReadMetadata(bytes.NewReader(data))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Debug("No EXIF metadata in image")
		metrics.LocationResolved.WithLabelValues("none").Inc()
		return nil, entity.LocationSourceNone
	}

	coord, ok := s.geotag.Extract(md)
	if !ok {
		metrics.LocationResolved.WithLabelValues("none").Inc()
		return nil, entity.LocationSourceNone
	}

	metrics.LocationResolved.WithLabelValues(string(entity.LocationSourceEXIF)).Inc()
	return &entity.Location{Lat: coord.Latitude, Lng: coord.Longitude}, entity.LocationSourceEXIF
}

// detect returns the backend's raw output for img, served from the cache when
// imageHash is set and a previous run is still stored.
func (s *detectionService) detect(ctx context.Context, imageHash string, img image.Image) ([]entity.RawDetection, bool, error) {
	requestID := contextPkg.GetRequestID(ctx)
	cacheKey := s.cacheKey(imageHash)

	if cacheKey != "" {
		if raw, ok := s.cachedDetections(ctx, cacheKey); ok {
			return raw, true, nil
		}
	}

	frame, err := annotate.EncodeJPEG(img)
	if err != nil {
		return nil, false, detection.ErrInvalidImage
	}

	start := time.Now()
	raw, err := s.detector.Detect(ctx, frame)
	metrics.DetectorDuration.WithLabelValues(string(s.opts.Backend)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectorErrors.WithLabelValues(string(s.opts.Backend)).Inc()
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"backend":    s.opts.Backend,
			"error":      err.Error(),
		}).Error("Detector backend failed")
		return nil, false, fmt.Errorf("%w: %v", detection.ErrDetectionFailed, err)
	}

	if cacheKey != "" {
		s.storeDetections(ctx, cacheKey, raw)
	}

	return raw, false, nil
}

func (s *detectionService) cacheKey(imageHash string) string {
	if s.cache == nil || imageHash == "" {
		return ""
	}
	return fmt.Sprintf("detections:%s:%s", s.opts.Backend, imageHash)
}

func (s *detectionService) cachedDetections(ctx context.Context, key string) ([]entity.RawDetection, bool) {
	payload, err := s.cache.GetResult(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			metrics.CacheMisses.WithLabelValues("detections").Inc()
		}
		return nil, false
	}

	var raw []entity.RawDetection
	if err := jsoniter.Unmarshal(payload, &raw); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"key":        key,
			"error":      err.Error(),
		}).Warn("Discarding unreadable cached detections")
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("detections").Inc()
	return raw, true
}

func (s *detectionService) storeDetections(ctx context.Context, key string, raw []entity.RawDetection) {
	payload, err := jsoniter.Marshal(raw)
	if err != nil {
		return
	}
	// a cache write failure only costs a later recompute
	_ = s.cache.SetResult(ctx, key, payload, s.opts.CacheTTL)
}

func (s *detectionService) filterDetections(raw []entity.RawDetection) []entity.Detection {
	detections := make([]entity.Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < s.opts.MinConfidence {
			continue
		}

		name := entity.ClassName(r.Class)
		metrics.DetectionsTotal.WithLabelValues(name).Inc()

		detections = append(detections, entity.Detection{
			BBox:       r.BBox,
			Confidence: r.Confidence,
			Class:      r.Class,
			ClassName:  name,
		})
	}
	return detections
}

func (s *detectionService) saveRecord(ctx context.Context, record entity.DetectionRecord) error {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.repository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return detection.ErrSaveDetection
	}

	if err := repo.Detection.CreateDetection(ctx, record); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"id":         record.ID,
			"error":      err.Error(),
		}).Error("Failed to save detection record")
		return detection.ErrSaveDetection
	}

	return nil
}
