package detectionHandler

import (
	"GeoDetect/internal/api/detection"
	contextPkg "GeoDetect/pkg/context"
	"GeoDetect/pkg/handlerUtil"
	"GeoDetect/pkg/storage"
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ServeAnnotated sends an annotated image from local storage or redirects to
// its presigned object store URL.
func (h *DetectionHandler) ServeAnnotated(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	obj, err := h.storage.Resolve(contextPkg.FromFiberCtx(ctx), ctx.Params("filename"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			return errHandler.Handle(ctx, requestID, detection.ErrImageNotFound, ctx.Path(), "resolve_image")
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "resolve_image")
	}

	if obj.RedirectURL != "" {
		return ctx.Redirect(obj.RedirectURL, fiber.StatusTemporaryRedirect)
	}

	ctx.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return ctx.SendFile(obj.Path)
}
