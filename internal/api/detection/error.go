package detection

import (
	"GeoDetect/pkg/response"
	"net/http"
)

var (
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
	ErrBadRequest          = response.NewError(http.StatusBadRequest, "bad request")
	ErrNoImage             = response.NewErrorWithMessage(http.StatusBadRequest, "no image provided", "No image provided")
	ErrNoSelectedFile      = response.NewErrorWithMessage(http.StatusBadRequest, "empty filename", "No selected file")
	ErrInvalidImage        = response.NewErrorWithMessage(http.StatusBadRequest, "invalid image", "Invalid image file")
	ErrFileTooLarge        = response.NewErrorWithMessage(http.StatusRequestEntityTooLarge, "file too large", "File too large")
	ErrInvalidCoordinates  = response.NewErrorWithMessage(http.StatusBadRequest, "invalid manual coordinates", "manual_lat and manual_lng must both be valid coordinates")
	ErrModelNotInitialized = response.NewErrorWithMessage(http.StatusServiceUnavailable, "model not initialized", "Model not initialized")
	ErrDetectionFailed     = response.NewErrorWithMessage(http.StatusBadGateway, "detection backend failed", "Detection failed")
	ErrDetectionNotFound   = response.NewErrorWithMessage(http.StatusNotFound, "detection not found", "Detection not found")
	ErrImageNotFound       = response.NewErrorWithMessage(http.StatusNotFound, "annotated image not found", "Image not found")
	ErrStoreImage          = response.NewError(http.StatusInternalServerError, "failed to store annotated image")
	ErrSaveDetection       = response.NewError(http.StatusInternalServerError, "failed to save detection")
)
