package detectionRepository

const (
	queryCreateDetection = `
		INSERT INTO detections (
			id,
			filename,
			image_hash,
			detections,
			total_detections,
			annotated_image_key,
			latitude,
			longitude,
			location_source,
			created_at
		) VALUES (
			:id,
			:filename,
			:image_hash,
			:detections,
			:total_detections,
			:annotated_image_key,
			:latitude,
			:longitude,
			:location_source,
			:created_at
		)
	`

	queryGetDetectionByID = `
		SELECT
			id,
			filename,
			image_hash,
			detections,
			total_detections,
			annotated_image_key,
			latitude,
			longitude,
			location_source,
			created_at
		FROM detections
		WHERE id = :id
	`

	queryListDetections = `
		SELECT
			id,
			filename,
			image_hash,
			detections,
			total_detections,
			annotated_image_key,
			latitude,
			longitude,
			location_source,
			created_at
		FROM detections
		ORDER BY created_at DESC, id DESC
		LIMIT :limit OFFSET :offset
	`

	queryCountDetections = `
		SELECT COUNT(*) FROM detections
	`

	queryDeleteDetection = `
		DELETE FROM detections
		WHERE id = :id
	`
)
