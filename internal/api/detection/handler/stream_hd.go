package detectionHandler

import (
	"GeoDetect/internal/api/detection"
	"GeoDetect/internal/entity"
	"GeoDetect/pkg/metrics"
	"GeoDetect/pkg/response"
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamWriteTimeout = 10 * time.Second
	frameTimeout       = 30 * time.Second
)

// handleStream answers every binary frame with one JSON FrameResponse. A frame
// that fails to process gets an error reply and the stream stays open.
func (h *DetectionHandler) handleStream(c *websocket.Conn) {
	h.log.Info("Detection stream client connected")
	defer h.log.Info("Detection stream client disconnected")

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Detection stream error: %v", err)
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		result, err := h.detectionService.DetectFrame(ctx, message)
		cancel()

		if err != nil {
			h.log.Errorf("Error processing frame: %v", err)
			result = detection.FrameResponse{
				Detections: []entity.Detection{},
				Error:      publicMessage(err),
			}
		}

		if err := c.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			return
		}

		if err := c.WriteJSON(result); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			return
		}
	}
}

func publicMessage(err error) string {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.PublicMessage()
	}
	return "Detection failed"
}
