package detectionHandler

import (
	"GeoDetect/internal/api/detection"
	contextPkg "GeoDetect/pkg/context"
	"GeoDetect/pkg/geotag"
	"GeoDetect/pkg/handlerUtil"
	"GeoDetect/pkg/log"
	"golang.org/x/net/context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	detectTimeout = 60 * time.Second
	demoTimeout   = 5 * time.Minute
)

func (h *DetectionHandler) Detect(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), detectTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile("image")
	if err != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
		}).Warn("No image part in request")
		return errHandler.Handle(ctx, requestID, detection.ErrNoImage, ctx.Path(), "form_file")
	}

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "validate_image_file")
	}

	var req detection.DetectRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrBadRequest, ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"manual_lat": req.ManualLat,
			"manual_lng": req.ManualLng,
			"error":      err.Error(),
		}).Warn("Rejected manual coordinates")
		return errHandler.Handle(ctx, requestID, detection.ErrInvalidCoordinates, ctx.Path(), "validate_request")
	}

	override, err := parseOverride(req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrInvalidCoordinates, ctx.Path(), "parse_coordinates")
	}

	image, err := h.utils.ReadFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_file")
	}

	h.log.WithFields(log.Fields{
		"request_id":   requestID,
		"file_name":    file.Filename,
		"file_size":    file.Size,
		"has_override": override != nil,
	}).Info("Processing detection request")

	res, err := h.detectionService.Detect(c, detection.DetectInput{
		Image:    image,
		Filename: file.Filename,
		Override: override,
	})
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
	}
}

func (h *DetectionHandler) DetectDemo(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), demoTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	res, err := h.detectionService.DetectDemo(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect_demo")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
	}
}

// parseOverride returns nil when neither coordinate was sent. The validator has
// already rejected a lone coordinate or an out of range value.
func parseOverride(req detection.DetectRequest) (*geotag.GeoCoordinate, error) {
	if req.ManualLat == "" && req.ManualLng == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(req.ManualLat, 64)
	if err != nil {
		return nil, err
	}
	lng, err := strconv.ParseFloat(req.ManualLng, 64)
	if err != nil {
		return nil, err
	}

	return &geotag.GeoCoordinate{Latitude: lat, Longitude: lng}, nil
}
