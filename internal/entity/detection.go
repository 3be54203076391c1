package entity

import "time"

// RawDetection is what a detector backend reports, boxes in pixel xyxy.
type RawDetection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Class      int        `json:"class"`
}

type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Class      int        `json:"class"`
	ClassName  string     `json:"class_name"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type LocationSource string

const (
	LocationSourceNone   LocationSource = ""
	LocationSourceManual LocationSource = "manual"
	LocationSourceEXIF   LocationSource = "exif"
)

type DetectionRecord struct {
	ID                string         `db:"id"`
	Filename          string         `db:"filename"`
	ImageHash         string         `db:"image_hash"`
	Detections        []Detection    `db:"detections"`
	TotalDetections   int            `db:"total_detections"`
	AnnotatedImageKey string         `db:"annotated_image_key"`
	AnnotatedImageURL string         `db:"-"`
	Location          *Location      `db:"-"`
	LocationSource    LocationSource `db:"location_source"`
	CreatedAt         time.Time      `db:"created_at"`
}

const UnknownClassName = "Unknown"

var MilitaryClassMapping = map[int]string{
	0: "Military Vehicle",
	1: "Military Truck",
	2: "Tank",
	3: "Artillery",
	4: "Military Aircraft",
	5: "Military Building",
	6: "Military Personnel",
	7: "Military Equipment",
	8: "Storage Container",
	9: "Supply Depot",
}

func ClassName(class int) string {
	if name, ok := MilitaryClassMapping[class]; ok {
		return name
	}
	return UnknownClassName
}
