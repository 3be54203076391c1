package geotag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

var ErrNoEXIF = errors.New("image has no readable EXIF block")

// ReadMetadata parses the EXIF block of a JPEG, TIFF or raw EXIF stream and
// collects the GPS fields. Tags that are absent stay missing in the result.
// The TIFF structure is bounds checked before it reaches the decoder, so a
// hostile block is reported as ErrNoEXIF.
func ReadMetadata(r io.Reader) (Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoEXIF, err)
	}

	payload, err := tiffPayload(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoEXIF, err)
	}
	if err := checkTIFF(payload); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoEXIF, err)
	}

	x, err := exif.Decode(bytes.NewReader(payload))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoEXIF, err)
	}

	gps := &GPSFieldSet{
		LatitudeRef:  stringTag(x, exif.GPSLatitudeRef),
		Latitude:     rationalTag(x, exif.GPSLatitude),
		LongitudeRef: stringTag(x, exif.GPSLongitudeRef),
		Longitude:    rationalTag(x, exif.GPSLongitude),
	}

	if gps.LatitudeRef == "" && gps.Latitude == nil && gps.LongitudeRef == "" && gps.Longitude == nil {
		return Metadata{}, nil
	}

	return Metadata{GPS: gps}, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}

	val, err := tag.StringVal()
	if err != nil {
		// A non-ASCII reference is kept visible so the extractor reports it as invalid.
		return "?"
	}

	return strings.TrimSpace(val)
}

// rationalTag returns nil for a missing tag and an empty, non-nil slice for a
// tag that is present but not a triple of rationals.
func rationalTag(x *exif.Exif, name exif.FieldName) []RationalValue {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}

	values := make([]RationalValue, 0, len(componentNames))
	if tag.Count != uint32(len(componentNames)) {
		return values
	}

	for i := 0; i < int(tag.Count); i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return []RationalValue{}
		}
		values = append(values, RationalValue{Num: num, Den: den})
	}

	return values
}

var exifHeader = []byte("Exif\x00\x00")

// tiffPayload returns the TIFF structure of a bare TIFF, a raw EXIF block or
// the first Exif APP1 segment of a JPEG.
func tiffPayload(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return data, nil
	case bytes.HasPrefix(data, exifHeader):
		return data[len(exifHeader):], nil
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return jpegEXIF(data)
	default:
		return nil, errors.New("not a JPEG or TIFF stream")
	}
}

// jpegEXIF walks the marker segments up to the start of scan.
func jpegEXIF(data []byte) ([]byte, error) {
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil, errors.New("broken JPEG marker")
		}
		marker := data[pos+1]
		switch {
		case marker == 0xFF:
			pos++
			continue
		case marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			pos += 2
			continue
		case marker == 0xDA || marker == 0xD9:
			return nil, errors.New("no Exif segment")
		}

		length := int(binary.BigEndian.Uint16(data[pos+2:]))
		if length < 2 || pos+2+length > len(data) {
			return nil, errors.New("truncated JPEG segment")
		}
		segment := data[pos+4 : pos+2+length]
		if marker == 0xE1 && bytes.HasPrefix(segment, exifHeader) {
			return segment[len(exifHeader):], nil
		}
		pos += 2 + length
	}
	return nil, errors.New("no Exif segment")
}

var tiffTypeSize = map[uint16]uint64{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

const (
	tagExifPointer    = 0x8769
	tagGPSPointer     = 0x8825
	tagInteropPointer = 0xA005
)

// checkTIFF walks the IFD chain and every sub-IFD the decoder follows. Every
// directory and value must fit in the payload and no IFD may be visited twice.
func checkTIFF(payload []byte) error {
	if len(payload) < 8 {
		return errors.New("TIFF header too short")
	}

	var order binary.ByteOrder
	switch string(payload[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return errors.New("unknown TIFF byte order")
	}

	visited := map[uint32]bool{}
	pending := []uint32{}

	for offset := order.Uint32(payload[4:]); offset != 0; {
		if visited[offset] {
			return fmt.Errorf("IFD cycle at offset %d", offset)
		}
		visited[offset] = true

		next, pointers, err := checkDir(payload, order, offset)
		if err != nil {
			return err
		}
		pending = append(pending, pointers...)
		offset = next
	}

	for len(pending) > 0 {
		offset := pending[0]
		pending = pending[1:]
		if visited[offset] {
			continue
		}
		visited[offset] = true

		_, pointers, err := checkDir(payload, order, offset)
		if err != nil {
			return err
		}
		pending = append(pending, pointers...)
	}

	return nil
}

// checkDir validates one IFD and returns the next IFD offset plus any sub-IFD
// pointers it holds.
func checkDir(payload []byte, order binary.ByteOrder, offset uint32) (uint32, []uint32, error) {
	size := uint64(len(payload))
	if uint64(offset)+2 > size {
		return 0, nil, fmt.Errorf("IFD offset %d outside payload", offset)
	}

	count := uint64(order.Uint16(payload[offset:]))
	if count > 0x7FFF {
		return 0, nil, fmt.Errorf("IFD at %d claims %d entries", offset, count)
	}
	end := uint64(offset) + 2 + 12*count + 4
	if end > size {
		return 0, nil, fmt.Errorf("IFD at %d with %d entries overruns payload", offset, count)
	}

	var pointers []uint32
	for i := uint64(0); i < count; i++ {
		entry := payload[uint64(offset)+2+12*i:]
		tag := order.Uint16(entry)
		typ := order.Uint16(entry[2:])
		n := order.Uint32(entry[4:])

		unit, ok := tiffTypeSize[typ]
		if !ok {
			continue
		}
		valueSize := unit * uint64(n)
		if valueSize > size || valueSize > 1<<32-1 {
			return 0, nil, fmt.Errorf("tag 0x%04x claims %d bytes", tag, valueSize)
		}
		if valueSize > 4 && uint64(order.Uint32(entry[8:]))+valueSize > size {
			return 0, nil, fmt.Errorf("tag 0x%04x value outside payload", tag)
		}

		switch tag {
		case tagExifPointer, tagGPSPointer, tagInteropPointer:
			if p, ok := pointerValue(payload, order, entry, typ, valueSize); ok {
				pointers = append(pointers, p)
			}
		}
	}

	return order.Uint32(payload[end-4:]), pointers, nil
}

func pointerValue(payload []byte, order binary.ByteOrder, entry []byte, typ uint16, valueSize uint64) (uint32, bool) {
	value := entry[8:12]
	if valueSize > 4 {
		start := order.Uint32(entry[8:])
		value = payload[start : uint64(start)+valueSize]
	}

	switch typ {
	case 1, 6, 7:
		return uint32(value[0]), true
	case 3, 8:
		return uint32(order.Uint16(value)), true
	case 4, 9:
		return order.Uint32(value), true
	default:
		return 0, false
	}
}
