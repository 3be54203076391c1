package detectionHandler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"GeoDetect/internal/api/detection"
	detectionHandler "GeoDetect/internal/api/detection/handler"
	"GeoDetect/internal/config"
	"GeoDetect/internal/entity"
	"GeoDetect/internal/middleware"
	jwtPkg "GeoDetect/pkg/jwt"
	"GeoDetect/pkg/storage"
	"GeoDetect/pkg/utils"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeService struct {
	lastInput *detection.DetectInput
	lastPage  int
	lastLimit int
	deleted   []string
	err       error
}

func (f *fakeService) Detect(_ context.Context, input detection.DetectInput) (detection.DetectResponse, error) {
	f.lastInput = &input
	if f.err != nil {
		return detection.DetectResponse{}, f.err
	}
	res := detection.DetectResponse{
		ID:                "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		Detections:        []entity.Detection{{BBox: [4]float64{1, 2, 3, 4}, Confidence: 0.9, Class: 2, ClassName: "Tank"}},
		AnnotatedImageURL: "/static/annotated/01HZZZZZZZZZZZZZZZZZZZZZZZ.jpg",
		TotalDetections:   1,
	}
	if input.Override != nil {
		res.ImageLocation = &entity.Location{Lat: input.Override.Latitude, Lng: input.Override.Longitude}
		res.LocationSource = entity.LocationSourceManual
	}
	return res, nil
}

func (f *fakeService) DetectDemo(context.Context) (detection.DemoResponse, error) {
	if f.err != nil {
		return detection.DemoResponse{}, f.err
	}
	return detection.DemoResponse{Results: []detection.DemoResult{}}, nil
}

func (f *fakeService) DetectFrame(context.Context, []byte) (detection.FrameResponse, error) {
	return detection.FrameResponse{Detections: []entity.Detection{}}, f.err
}

func (f *fakeService) GetDetection(_ context.Context, id string) (detection.DetectionRecordResponse, error) {
	if f.err != nil {
		return detection.DetectionRecordResponse{}, f.err
	}
	return detection.DetectionRecordResponse{ID: id, Detections: []entity.Detection{}}, nil
}

func (f *fakeService) ListDetections(_ context.Context, page, limit int) (detection.DetectionListResponse, error) {
	f.lastPage, f.lastLimit = page, limit
	return detection.DetectionListResponse{Detections: []detection.DetectionRecordResponse{}, Page: page, Limit: limit}, f.err
}

func (f *fakeService) DeleteDetection(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(res *http.Response, v any) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(jsoniter.Unmarshal(body, v)).To(Succeed(), string(body))
}

func uploadRequest(fields map[string]string, withImage bool) *http.Request {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	if withImage {
		part, err := w.CreateFormFile("image", "field.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, _ = part.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	}
	for k, v := range fields {
		Expect(w.WriteField(k, v)).To(Succeed())
	}
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

var _ = Describe("DetectionHandler", func() {
	var (
		app      *fiber.App
		svc      *fakeService
		store    storage.IStorage
		storeDir string
	)

	BeforeEach(func() {
		GinkgoT().Setenv(middleware.AccessTokenSecret, "handler-test-secret")

		logger, _ := test.NewNullLogger()
		svc = &fakeService{}
		storeDir = GinkgoT().TempDir()

		var err error
		store, err = storage.NewLocal(storeDir)
		Expect(err).NotTo(HaveOccurred())

		h := detectionHandler.New(logger, config.NewValidator(), middleware.New(logger), svc, store, utils.New())
		app = fiber.New(fiber.Config{StrictRouting: true})
		h.StartStatic(app)
		h.Start(app.Group("/api/v1"))
	})

	Describe("POST /api/v1/detect", func() {
		It("rejects a request without an image part", func() {
			res, err := app.Test(uploadRequest(nil, false))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusBadRequest))

			var body errorBody
			decode(res, &body)
			Expect(body.Error).To(Equal("No image provided"))
			Expect(svc.lastInput).To(BeNil())
		})

		It("passes the upload through without an override", func() {
			res, err := app.Test(uploadRequest(nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))

			var body detection.DetectResponse
			decode(res, &body)
			Expect(body.TotalDetections).To(Equal(1))
			Expect(body.ImageLocation).To(BeNil())

			Expect(svc.lastInput).NotTo(BeNil())
			Expect(svc.lastInput.Filename).To(Equal("field.jpg"))
			Expect(svc.lastInput.Image).To(Equal([]byte{0xFF, 0xD8, 0xFF, 0xD9}))
			Expect(svc.lastInput.Override).To(BeNil())
		})

		It("passes a valid manual override through", func() {
			res, err := app.Test(uploadRequest(map[string]string{"manual_lat": "-33.8678", "manual_lng": "151.2093"}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))

			Expect(svc.lastInput.Override).NotTo(BeNil())
			Expect(svc.lastInput.Override.Latitude).To(Equal(-33.8678))
			Expect(svc.lastInput.Override.Longitude).To(Equal(151.2093))

			var body detection.DetectResponse
			decode(res, &body)
			Expect(body.LocationSource).To(Equal(entity.LocationSourceManual))
		})

		DescribeTable("rejects bad manual coordinates",
			func(fields map[string]string) {
				res, err := app.Test(uploadRequest(fields, true))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.StatusCode).To(Equal(fiber.StatusBadRequest))
				Expect(svc.lastInput).To(BeNil())
			},
			Entry("latitude without longitude", map[string]string{"manual_lat": "10"}),
			Entry("longitude without latitude", map[string]string{"manual_lng": "10"}),
			Entry("latitude out of range", map[string]string{"manual_lat": "95", "manual_lng": "10"}),
			Entry("longitude out of range", map[string]string{"manual_lat": "10", "manual_lng": "-181"}),
			Entry("not a number", map[string]string{"manual_lat": "north", "manual_lng": "10"}),
		)

		DescribeTable("maps service errors to their status",
			func(serviceErr error, status int, message string) {
				svc.err = serviceErr

				res, err := app.Test(uploadRequest(nil, true))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.StatusCode).To(Equal(status))

				var body errorBody
				decode(res, &body)
				Expect(body.Error).To(Equal(message))
			},
			Entry("no backend", detection.ErrModelNotInitialized, fiber.StatusServiceUnavailable, "Model not initialized"),
			Entry("backend failure", detection.ErrDetectionFailed, fiber.StatusBadGateway, "Detection failed"),
			Entry("undecodable image", detection.ErrInvalidImage, fiber.StatusBadRequest, "Invalid image file"),
		)
	})

	Describe("POST /api/v1/detect-demo", func() {
		It("returns the demo results", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/detect-demo", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
		})
	})

	Describe("GET /api/v1/detections", func() {
		It("forwards paging parameters", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/detections?page=3&limit=7", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			Expect(svc.lastPage).To(Equal(3))
			Expect(svc.lastLimit).To(Equal(7))
		})

		It("rejects an oversized page", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/detections?limit=500", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/detections/:id", func() {
		It("returns the record", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/detections/abc", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))

			var body detection.DetectionRecordResponse
			decode(res, &body)
			Expect(body.ID).To(Equal("abc"))
		})

		It("answers 404 for an unknown id", func() {
			svc.err = detection.ErrDetectionNotFound

			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/detections/abc", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("DELETE /api/v1/detections/:id", func() {
		It("requires a bearer token", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/detections/abc", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(svc.deleted).To(BeEmpty())
		})

		It("deletes with a valid token", func() {
			token, _, err := jwtPkg.Sign(middleware.AccessTokenSecret, "operator", time.Minute)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/detections/abc", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

			res, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusNoContent))
			Expect(svc.deleted).To(Equal([]string{"abc"}))
		})
	})

	Describe("GET /static/annotated/:filename", func() {
		It("serves a stored image", func() {
			Expect(os.WriteFile(filepath.Join(storeDir, "img.jpg"), []byte("jpeg bytes"), 0o644)).To(Succeed())

			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/static/annotated/img.jpg", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			Expect(res.Header.Get(fiber.HeaderCacheControl)).To(ContainSubstring("max-age"))

			body, err := io.ReadAll(res.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("jpeg bytes"))
		})

		It("answers 404 for a missing image", func() {
			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/static/annotated/missing.jpg", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(fiber.StatusNotFound))

			var body errorBody
			decode(res, &body)
			Expect(body.Error).To(Equal("Image not found"))
		})
	})
})
