package detectionService

import (
	"GeoDetect/internal/api/detection"
	"GeoDetect/internal/entity"
	contextPkg "GeoDetect/pkg/context"
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

const MaxPageSize = 100

func (s *detectionService) GetDetection(ctx context.Context, id string) (detection.DetectionRecordResponse, error) {
	repo, err := s.repository.NewClient(false)
	if err != nil {
		return detection.DetectionRecordResponse{}, detection.ErrInternalServerError
	}

	record, err := repo.Detection.GetDetectionByID(ctx, id)
	if err != nil {
		if errors.Is(err, detection.ErrDetectionNotFound) {
			return detection.DetectionRecordResponse{}, err
		}
		return detection.DetectionRecordResponse{}, detection.ErrInternalServerError
	}

	return makeRecordResponse(record), nil
}

func (s *detectionService) ListDetections(ctx context.Context, page, limit int) (detection.DetectionListResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	repo, err := s.repository.NewClient(false)
	if err != nil {
		return detection.DetectionListResponse{}, detection.ErrInternalServerError
	}

	total, err := repo.Detection.CountDetections(ctx)
	if err != nil {
		return detection.DetectionListResponse{}, detection.ErrInternalServerError
	}

	records, err := repo.Detection.ListDetections(ctx, limit, (page-1)*limit)
	if err != nil {
		return detection.DetectionListResponse{}, detection.ErrInternalServerError
	}

	items := make([]detection.DetectionRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, makeRecordResponse(r))
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"page":       page,
		"returned":   len(items),
		"total":      total,
	}).Debug("Listed detections")

	return detection.DetectionListResponse{
		Detections: items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// DeleteDetection removes the record inside a transaction and only commits once
// the stored image is gone too.
func (s *detectionService) DeleteDetection(ctx context.Context, id string) error {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.repository.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return detection.ErrInternalServerError
	}
	defer repo.Rollback()

	record, err := repo.Detection.GetDetectionByID(ctx, id)
	if err != nil {
		if errors.Is(err, detection.ErrDetectionNotFound) {
			return err
		}
		return detection.ErrInternalServerError
	}

	if err := repo.Detection.DeleteDetection(ctx, id); err != nil {
		if errors.Is(err, detection.ErrDetectionNotFound) {
			return err
		}
		return detection.ErrInternalServerError
	}

	if err := s.storage.Delete(ctx, record.AnnotatedImageKey); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"key":        record.AnnotatedImageKey,
			"error":      err.Error(),
		}).Error("Failed to delete annotated image")
		return detection.ErrInternalServerError
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit detection delete")
		return detection.ErrInternalServerError
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"id":         id,
	}).Info("Detection deleted")

	return nil
}

func makeRecordResponse(r entity.DetectionRecord) detection.DetectionRecordResponse {
	detections := r.Detections
	if detections == nil {
		detections = []entity.Detection{}
	}

	return detection.DetectionRecordResponse{
		ID:                r.ID,
		Filename:          r.Filename,
		Detections:        detections,
		TotalDetections:   r.TotalDetections,
		AnnotatedImageURL: AnnotatedPath + r.AnnotatedImageKey,
		ImageLocation:     r.Location,
		LocationSource:    r.LocationSource,
		CreatedAt:         r.CreatedAt,
	}
}
