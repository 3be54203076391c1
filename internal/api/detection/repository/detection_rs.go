package detectionRepository

import (
	"GeoDetect/internal/api/detection"
	"GeoDetect/internal/entity"
	contextPkg "GeoDetect/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type DetectionDB struct {
	ID                sql.NullString  `db:"id"`
	Filename          sql.NullString  `db:"filename"`
	ImageHash         sql.NullString  `db:"image_hash"`
	Detections        []byte          `db:"detections"`
	TotalDetections   sql.NullInt64   `db:"total_detections"`
	AnnotatedImageKey sql.NullString  `db:"annotated_image_key"`
	Latitude          sql.NullFloat64 `db:"latitude"`
	Longitude         sql.NullFloat64 `db:"longitude"`
	LocationSource    sql.NullString  `db:"location_source"`
	CreatedAt         time.Time       `db:"created_at"`
}

func (r *detectionRepository) CreateDetection(c context.Context, record entity.DetectionRecord) error {
	requestID := contextPkg.GetRequestID(c)

	payload, err := jsoniter.Marshal(record.Detections)
	if err != nil {
		return err
	}

	var lat, lng sql.NullFloat64
	if record.Location != nil {
		lat = sql.NullFloat64{Float64: record.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: record.Location.Lng, Valid: true}
	}

	argsKV := map[string]interface{}{
		"id":                  record.ID,
		"filename":            record.Filename,
		"image_hash":          record.ImageHash,
		"detections":          string(payload),
		"total_detections":    record.TotalDetections,
		"annotated_image_key": record.AnnotatedImageKey,
		"latitude":            lat,
		"longitude":           lng,
		"location_source":     string(record.LocationSource),
		"created_at":          record.CreatedAt,
	}

	query, args, err := sqlx.Named(queryCreateDetection, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateDetection")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating detection")
		return err
	}

	return nil
}

func (r *detectionRepository) GetDetectionByID(c context.Context, id string) (entity.DetectionRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var row DetectionDB

	query, args, err := sqlx.Named(queryGetDetectionByID, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetDetectionByID named query preparation err")
		return entity.DetectionRecord{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"id":         id,
			}).Debug("GetDetectionByID no rows found")
			return entity.DetectionRecord{}, detection.ErrDetectionNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetDetectionByID execution err")
		return entity.DetectionRecord{}, err
	}

	return r.makeDetectionRecord(row)
}

func (r *detectionRepository) ListDetections(c context.Context, limit, offset int) ([]entity.DetectionRecord, error) {
	requestID := contextPkg.GetRequestID(c)
	var rows []DetectionDB

	query, args, err := sqlx.Named(queryListDetections, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListDetections named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListDetections execution err")
		return nil, err
	}

	result := make([]entity.DetectionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := r.makeDetectionRecord(row)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}

	return result, nil
}

func (r *detectionRepository) CountDetections(c context.Context) (int, error) {
	var total int
	if err := r.q.QueryRowxContext(c, queryCountDetections).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(c),
			"error":      err.Error(),
		}).Error("CountDetections execution err")
		return 0, err
	}
	return total, nil
}

func (r *detectionRepository) DeleteDetection(c context.Context, id string) error {
	requestID := contextPkg.GetRequestID(c)

	query, args, err := sqlx.Named(queryDeleteDetection, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	query = r.q.Rebind(query)

	res, err := r.q.ExecContext(c, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("DeleteDetection execution err")
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return detection.ErrDetectionNotFound
	}

	return nil
}

func (r *detectionRepository) makeDetectionRecord(row DetectionDB) (entity.DetectionRecord, error) {
	record := entity.DetectionRecord{
		ID:                row.ID.String,
		Filename:          row.Filename.String,
		ImageHash:         row.ImageHash.String,
		TotalDetections:   int(row.TotalDetections.Int64),
		AnnotatedImageKey: row.AnnotatedImageKey.String,
		LocationSource:    entity.LocationSource(row.LocationSource.String),
		CreatedAt:         row.CreatedAt,
	}

	record.Detections = []entity.Detection{}
	if len(row.Detections) > 0 {
		if err := jsoniter.Unmarshal(row.Detections, &record.Detections); err != nil {
			return entity.DetectionRecord{}, err
		}
	}

	if row.Latitude.Valid && row.Longitude.Valid {
		record.Location = &entity.Location{Lat: row.Latitude.Float64, Lng: row.Longitude.Float64}
	}

	return record, nil
}
