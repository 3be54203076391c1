package openai

import (
	"GeoDetect/internal/entity"
	"GeoDetect/pkg/geotag/geotagtest"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	jsoniter "github.com/json-iterator/go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseDetections", func() {
	It("scales fractional boxes to pixels", func() {
		got, err := parseDetections(`{"objects":[{"bbox":[0.1,0.2,0.5,1],"class":3,"confidence":0.6}]}`, 200, 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]entity.RawDetection{
			{BBox: [4]float64{20, 20, 100, 100}, Confidence: 0.6, Class: 3},
		}))
	})

	It("defaults a missing confidence to 1", func() {
		got, err := parseDetections(`{"objects":[{"bbox":[0,0,1,1],"class":0}]}`, 10, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[0].Confidence).To(Equal(1.0))
	})

	It("skips malformed boxes", func() {
		got, err := parseDetections(`{"objects":[{"bbox":[0,0,1],"class":0}]}`, 10, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("fails on a reply without JSON", func() {
		_, err := parseDetections("I cannot help with that.", 10, 10)
		Expect(err).To(MatchError(ErrNoJSONInResponse))
	})
})

var _ = Describe("NewVisionClient", func() {
	It("needs a key or a custom endpoint", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("OPENAI_BASE_URL", "")

		_, err := NewVisionClient()
		Expect(err).To(MatchError(ErrNoAPIKey))
	})
})

var _ = Describe("Detect", func() {
	var (
		server  *httptest.Server
		reply   string
		request map[string]any
	)

	BeforeEach(func() {
		reply = `{"objects":[{"bbox":[0.25,0.5,0.75,1],"class":2,"confidence":0.9}]}`
		request = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("/chat/completions"))

			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(jsoniter.Unmarshal(body, &request)).To(Succeed())

			content, _ := jsoniter.MarshalToString(reply)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":`+content+`},"finish_reason":"stop"}]}`)
		}))
		DeferCleanup(server.Close)

		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("OPENAI_BASE_URL", server.URL+"/v1")
		GinkgoT().Setenv("OPENAI_VISION_MODEL", "local-vision")
	})

	It("sends the image inline and returns pixel boxes", func() {
		client, err := NewVisionClient()
		Expect(err).NotTo(HaveOccurred())

		got, err := client.Detect(context.Background(), geotagtest.JPEG(80, 40, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]entity.RawDetection{
			{BBox: [4]float64{20, 20, 60, 40}, Confidence: 0.9, Class: 2},
		}))

		Expect(request["model"]).To(Equal("local-vision"))
		raw, _ := jsoniter.MarshalToString(request["messages"])
		Expect(raw).To(ContainSubstring("data:image/jpeg;base64,"))
	})

	It("reports an empty answer", func() {
		reply = ""

		client, err := NewVisionClient()
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Detect(context.Background(), geotagtest.JPEG(8, 8, nil))
		Expect(err).To(MatchError(ErrEmptyResponse))
	})

	It("rejects bytes that are not an image", func() {
		client, err := NewVisionClient()
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Detect(context.Background(), []byte(strings.Repeat("x", 32)))
		Expect(err).To(HaveOccurred())
	})
})
