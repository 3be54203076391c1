// Package geotagtest builds EXIF payloads for tests.
package geotagtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"

	"GeoDetect/pkg/geotag"
)

const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5

	tagGPSPointer   = 0x8825
	TagLatitudeRef  = 0x1
	TagLatitude     = 0x2
	TagLongitudeRef = 0x3
	TagLongitude    = 0x4
)

type Entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func ASCII(tag uint16, s string) Entry {
	b := append([]byte(s), 0)
	return Entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func Rational(tag uint16, vals []geotag.RationalValue) Entry {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		_ = binary.Write(buf, binary.BigEndian, uint32(v.Num))
		_ = binary.Write(buf, binary.BigEndian, uint32(v.Den))
	}
	return Entry{tag: tag, typ: typeRational, count: uint32(len(vals)), data: buf.Bytes()}
}

// GPS returns the four entries that encode lat and lng.
func GPS(lat, lng float64) []Entry {
	latRef, latDMS := geotag.FromDecimalDegrees(geotag.AxisLatitude, lat)
	lngRef, lngDMS := geotag.FromDecimalDegrees(geotag.AxisLongitude, lng)
	return []Entry{
		ASCII(TagLatitudeRef, latRef),
		Rational(TagLatitude, latDMS),
		ASCII(TagLongitudeRef, lngRef),
		Rational(TagLongitude, lngDMS),
	}
}

// Raw builds an entry with an arbitrary type and count. data is stored as is,
// so count does not have to match its length.
func Raw(tag, typ uint16, count uint32, data []byte) Entry {
	return Entry{tag: tag, typ: typ, count: count, data: data}
}

// TIFF lays out a big-endian TIFF whose IFD0 only points at a GPS IFD holding
// the given entries.
func TIFF(gps []Entry) []byte {
	return TIFFWithIFD0(nil, gps)
}

// TIFFWithIFD0 is TIFF with extra entries in IFD0 ahead of the GPS pointer.
func TIFFWithIFD0(ifd0 []Entry, gps []Entry) []byte {
	const ifd0Offset = 8
	ifd0Size := uint32(2 + 12*(len(ifd0)+1) + 4)
	gpsOffset := ifd0Offset + ifd0Size
	gpsSize := uint32(2 + 12*len(gps) + 4)
	dataOffset := gpsOffset + gpsSize

	pointer := Entry{tag: tagGPSPointer, typ: typeLong, count: 1, data: make([]byte, 4)}
	binary.BigEndian.PutUint32(pointer.data, gpsOffset)

	out := new(bytes.Buffer)
	out.WriteString("MM")
	_ = binary.Write(out, binary.BigEndian, uint16(42))
	_ = binary.Write(out, binary.BigEndian, uint32(ifd0Offset))

	data := new(bytes.Buffer)
	writeDir(out, data, dataOffset, append(append([]Entry{}, ifd0...), pointer))
	writeDir(out, data, dataOffset, gps)

	out.Write(data.Bytes())
	return out.Bytes()
}

// writeDir appends one IFD to out. Values longer than four bytes go to data,
// which starts at dataOffset in the final file.
func writeDir(out, data *bytes.Buffer, dataOffset uint32, entries []Entry) {
	order := binary.BigEndian
	_ = binary.Write(out, order, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(out, order, e.tag)
		_ = binary.Write(out, order, e.typ)
		_ = binary.Write(out, order, e.count)
		if len(e.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.data)
			out.Write(inline)
			continue
		}
		_ = binary.Write(out, order, dataOffset+uint32(data.Len()))
		data.Write(e.data)
	}
	_ = binary.Write(out, order, uint32(0))
}

// JPEG encodes a small solid image. With a non-nil tiff the bytes are carried
// in an APP1 Exif segment right after SOI.
func JPEG(w, h int, tiff []byte) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 40, A: 255})
		}
	}

	plain := new(bytes.Buffer)
	_ = jpeg.Encode(plain, img, &jpeg.Options{Quality: 90})
	if tiff == nil {
		return plain.Bytes()
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)

	out := new(bytes.Buffer)
	out.Write(plain.Bytes()[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(plain.Bytes()[2:])
	return out.Bytes()
}
