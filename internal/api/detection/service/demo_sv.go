package detectionService

import (
	"GeoDetect/internal/api/detection"
	contextPkg "GeoDetect/pkg/context"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// DetectDemo runs Detect over every supported image in the data directory.
// Images that fail are logged and left out of the result.
func (s *detectionService) DetectDemo(ctx context.Context) (detection.DemoResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.detector == nil {
		return detection.DemoResponse{}, detection.ErrModelNotInitialized
	}

	entries, err := os.ReadDir(s.opts.DataDir)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"dir":        s.opts.DataDir,
			"error":      err.Error(),
		}).Error("Failed to read demo data directory")
		return detection.DemoResponse{}, detection.ErrInternalServerError
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && s.utils.IsSupportedImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	results := make([]detection.DemoResult, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return detection.DemoResponse{}, err
		}

		path := filepath.Join(s.opts.DataDir, name)
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       path,
		}).Info("Processing demo image")

		data, err := os.ReadFile(path)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"path":       path,
				"error":      err.Error(),
			}).Error("Failed to read demo image")
			continue
		}

		res, err := s.Detect(ctx, detection.DetectInput{Image: data, Filename: name})
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"path":       path,
				"error":      err.Error(),
			}).Error("Failed to process demo image")
			continue
		}

		results = append(results, detection.DemoResult{Filename: name, DetectResponse: res})
	}

	return detection.DemoResponse{
		Results:     results,
		TotalImages: len(results),
	}, nil
}
