// Package annotate draws detection boxes and labels onto images.
package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	JPEGQuality = 95
	LineWidth   = 3
	labelPadX   = 2
	labelPadY   = 2
)

var (
	BoxColor   = color.NRGBA{R: 255, A: 255}
	LabelColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Box is one rectangle in pixel xyxy with the text drawn above it.
type Box struct {
	Rect  [4]float64
	Label string
}

var ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")

// MaxPixels is the largest width*height Decode accepts, from
// IMAGE_MAX_MEGAPIXELS (default 50).
func MaxPixels() int64 {
	maxMP, err := strconv.ParseInt(os.Getenv("IMAGE_MAX_MEGAPIXELS"), 10, 64)
	if err != nil || maxMP <= 0 {
		maxMP = 50
	}
	return maxMP * 1_000_000
}

// Decode reads a JPEG or PNG and applies its EXIF orientation. The header is
// checked against MaxPixels before any pixel buffer is allocated.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels() {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Draw returns a copy of img with every box outlined and labelled. The source
// image is left untouched.
func Draw(img image.Image, boxes []Box) *image.NRGBA {
	dst := imaging.Clone(img)
	bounds := dst.Bounds()

	for _, b := range boxes {
		r := clampRect(b.Rect, bounds)
		if r.Empty() {
			continue
		}
		outline(dst, r, BoxColor)
		if b.Label != "" {
			label(dst, r.Min, b.Label)
		}
	}

	return dst
}

func clampRect(box [4]float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Round(box[0])),
		int(math.Round(box[1])),
		int(math.Round(box[2])),
		int(math.Round(box[3])),
	)
	return r.Canon().Intersect(bounds)
}

func outline(dst draw.Image, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	w := LineWidth

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// label puts text on a filled background just above anchor, or inside the box
// when there is no room above.
func label(dst draw.Image, anchor image.Point, text string) {
	face := basicfont.Face7x13
	metrics := face.Metrics()

	width := font.MeasureString(face, text).Ceil() + 2*labelPadX
	height := metrics.Height.Ceil() + 2*labelPadY

	top := anchor.Y - height
	if top < dst.Bounds().Min.Y {
		top = anchor.Y
	}
	bg := image.Rect(anchor.X, top, anchor.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, bg, image.NewUniform(BoxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(LabelColor),
		Face: face,
		Dot:  fixed.P(anchor.X+labelPadX, top+labelPadY+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
