package utils_test

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"os"
	"time"

	"GeoDetect/pkg/utils"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fileHeader(name, contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &multipart.FileHeader{Filename: name, Header: h, Size: size}
}

var _ = Describe("Utils", func() {
	var u utils.IUtils

	BeforeEach(func() {
		os.Unsetenv("UPLOAD_MAX_MB")
		u = utils.New()
	})

	It("hashes images as lowercase sha256 hex", func() {
		Expect(u.HashImage([]byte("abc"))).To(Equal("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"))
	})

	DescribeTable("IsSupportedImage",
		func(name string, want bool) {
			Expect(u.IsSupportedImage(name)).To(Equal(want))
		},
		Entry("jpg", "a.jpg", true),
		Entry("upper case JPEG", "A.JPEG", true),
		Entry("png", "b.png", true),
		Entry("gif", "c.gif", false),
		Entry("no extension", "README", false),
	)

	It("creates ULIDs carrying the timestamp", func() {
		now := time.UnixMilli(1700000000000)
		id, err := u.NewULIDFromTimestamp(now)
		Expect(err).NotTo(HaveOccurred())

		parsed, err := ulid.Parse(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Time()).To(Equal(uint64(1700000000000)))
	})

	DescribeTable("ValidateImageFile",
		func(file *multipart.FileHeader, want error) {
			err := u.ValidateImageFile(file)
			if want == nil {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(want))
			}
		},
		Entry("nil", nil, utils.ErrNoFile),
		Entry("empty name", fileHeader("", "image/jpeg", 10), utils.ErrEmptyFilename),
		Entry("too large", fileHeader("a.jpg", "image/jpeg", 21*1024*1024), utils.ErrFileTooLarge),
		Entry("text", fileHeader("a.txt", "text/plain", 10), utils.ErrNotAnImage),
		Entry("octet stream with image extension", fileHeader("a.png", "application/octet-stream", 10), nil),
		Entry("octet stream without image extension", fileHeader("a.bin", "application/octet-stream", 10), utils.ErrNotAnImage),
		Entry("jpeg", fileHeader("a.jpg", "image/jpeg", 10), nil),
	)

	It("honours UPLOAD_MAX_MB", func() {
		os.Setenv("UPLOAD_MAX_MB", "1")
		defer os.Unsetenv("UPLOAD_MAX_MB")

		small := utils.New()
		Expect(small.ValidateImageFile(fileHeader("a.jpg", "image/jpeg", 2*1024*1024))).To(MatchError(utils.ErrFileTooLarge))
	})

	It("reads an uploaded file", func() {
		body := new(bytes.Buffer)
		w := multipart.NewWriter(body)
		part, err := w.CreateFormFile("image", "a.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, _ = part.Write([]byte("payload"))
		Expect(w.Close()).To(Succeed())

		form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
		Expect(err).NotTo(HaveOccurred())

		data, err := u.ReadFile(form.File["image"][0])
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("payload")))
	})
})
