// Package geotag turns the GPS block of image metadata into a decimal coordinate.
//
// Geotagging is an enrichment step: every failure degrades to "no location" and is
// reported through the logger only, never to the caller.
package geotag

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

var (
	ErrIncompleteFieldSet = errors.New("incomplete GPS field set")
	ErrMalformedRational  = errors.New("malformed GPS rational")
	ErrInvalidReference   = errors.New("invalid GPS hemisphere reference")
)

type Axis string

const (
	AxisLatitude  Axis = "latitude"
	AxisLongitude Axis = "longitude"
)

var componentNames = [3]string{"degrees", "minutes", "seconds"}

// RationalValue is one sexagesimal component stored as numerator/denominator.
type RationalValue struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// GPSFieldSet holds the four raw GPS fields. An empty reference or a nil value
// slice marks the field as missing.
type GPSFieldSet struct {
	LatitudeRef  string          `json:"latitude_ref"`
	Latitude     []RationalValue `json:"latitude"`
	LongitudeRef string          `json:"longitude_ref"`
	Longitude    []RationalValue `json:"longitude"`
}

// Metadata is the subset of image metadata the extractor looks at.
type Metadata struct {
	GPS *GPSFieldSet
}

type GeoCoordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

type Extractor struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{log: log}
}

// Extract returns the decoded coordinate, or false when the metadata carries no
// usable location.
func (e *Extractor) Extract(md Metadata) (GeoCoordinate, bool) {
	if md.GPS == nil {
		e.log.Debug("No GPS data found in image metadata")
		return GeoCoordinate{}, false
	}

	coord, err := decode(md.GPS)
	if err != nil {
		entry := e.log.WithError(err)
		switch {
		case errors.Is(err, ErrIncompleteFieldSet):
			entry.Info("Incomplete GPS data in image metadata")
		default:
			entry.Warn("Discarding malformed GPS data")
		}
		return GeoCoordinate{}, false
	}

	e.log.WithFields(logrus.Fields{
		"lat": coord.Latitude,
		"lng": coord.Longitude,
	}).Debug("Extracted GPS coordinates")

	return coord, true
}

func decode(gps *GPSFieldSet) (GeoCoordinate, error) {
	if missing := gps.missingFields(); len(missing) > 0 {
		return GeoCoordinate{}, fmt.Errorf("%w: missing %v", ErrIncompleteFieldSet, missing)
	}

	lat, err := signedDegrees(AxisLatitude, gps.LatitudeRef, gps.Latitude, "N", "S", 90)
	if err != nil {
		return GeoCoordinate{}, err
	}

	lng, err := signedDegrees(AxisLongitude, gps.LongitudeRef, gps.Longitude, "E", "W", 180)
	if err != nil {
		return GeoCoordinate{}, err
	}

	return GeoCoordinate{Latitude: lat, Longitude: lng}, nil
}

func (g *GPSFieldSet) missingFields() []string {
	var missing []string
	if g.LatitudeRef == "" {
		missing = append(missing, "latitude_ref")
	}
	if g.Latitude == nil {
		missing = append(missing, "latitude")
	}
	if g.LongitudeRef == "" {
		missing = append(missing, "longitude_ref")
	}
	if g.Longitude == nil {
		missing = append(missing, "longitude")
	}
	return missing
}

func signedDegrees(axis Axis, ref string, dms []RationalValue, positive, negative string, limit float64) (float64, error) {
	var sign float64
	switch ref {
	case positive:
		sign = 1
	case negative:
		sign = -1
	default:
		return 0, fmt.Errorf("%w: %s reference %q", ErrInvalidReference, axis, ref)
	}

	magnitude, err := ToDecimalDegrees(axis, dms)
	if err != nil {
		return 0, err
	}

	if magnitude > limit {
		return 0, fmt.Errorf("%w: %s magnitude %.6f exceeds %.0f", ErrMalformedRational, axis, magnitude, limit)
	}

	return sign * magnitude, nil
}

// ToDecimalDegrees converts a (degrees, minutes, seconds) triple to an unsigned
// decimal value.
func ToDecimalDegrees(axis Axis, dms []RationalValue) (float64, error) {
	if len(dms) != len(componentNames) {
		return 0, fmt.Errorf("%w: %s has %d components, want 3", ErrMalformedRational, axis, len(dms))
	}

	var total float64
	divisor := 1.0
	for i, r := range dms {
		if r.Den <= 0 || r.Num < 0 {
			return 0, fmt.Errorf("%w: %s %s is %d/%d", ErrMalformedRational, axis, componentNames[i], r.Num, r.Den)
		}
		total += float64(r.Num) / float64(r.Den) / divisor
		divisor *= 60
	}

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrMalformedRational, axis)
	}

	return total, nil
}

// FromDecimalDegrees encodes a signed decimal value as a hemisphere reference and
// a DMS triple. Seconds keep microsecond precision.
func FromDecimalDegrees(axis Axis, value float64) (string, []RationalValue) {
	ref := "N"
	switch {
	case axis == AxisLatitude && value < 0:
		ref = "S"
	case axis == AxisLongitude && value < 0:
		ref = "W"
	case axis == AxisLongitude:
		ref = "E"
	}

	abs := math.Abs(value)
	degrees := math.Floor(abs)
	minutesFull := (abs - degrees) * 60
	minutes := math.Floor(minutesFull)
	seconds := (minutesFull - minutes) * 60

	const secondsDen = 1000000
	return ref, []RationalValue{
		{Num: int64(degrees), Den: 1},
		{Num: int64(minutes), Den: 1},
		{Num: int64(math.Round(seconds * secondsDen)), Den: secondsDen},
	}
}
