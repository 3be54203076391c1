package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"GeoDetect/internal/middleware"
	jwtPkg "GeoDetect/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

const secret = "test-secret"

var _ = Describe("Middleware", func() {
	var (
		app *fiber.App
		mw  middleware.Middleware
	)

	BeforeEach(func() {
		os.Setenv(middleware.AccessTokenSecret, secret)
		os.Setenv("RATE_LIMIT_RPS", "1")
		os.Setenv("RATE_LIMIT_BURST", "2")
		DeferCleanup(func() {
			os.Unsetenv(middleware.AccessTokenSecret)
			os.Unsetenv("RATE_LIMIT_RPS")
			os.Unsetenv("RATE_LIMIT_BURST")
		})

		logger, _ := test.NewNullLogger()
		mw = middleware.New(logger)

		app = fiber.New()
		app.Use(mw.NewRequestIDMiddleware())
		app.Get("/id", func(c *fiber.Ctx) error {
			return c.SendString(mw.GetRequestID(c))
		})
		app.Get("/secure", mw.NewTokenMiddleware, func(c *fiber.Ctx) error {
			subject, err := jwtPkg.GetSubject(c)
			if err != nil {
				return err
			}
			return c.SendString(subject)
		})
		app.Get("/limited", mw.NewRateLimiter, func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})
	})

	Describe("request id", func() {
		It("generates one when the client sends none", func() {
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/id", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(middleware.RequestIDKey)).To(HaveLen(26))
		})

		It("echoes the client's id", func() {
			req := httptest.NewRequest(fiber.MethodGet, "/id", nil)
			req.Header.Set(middleware.RequestIDKey, "abc-123")

			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(middleware.RequestIDKey)).To(Equal("abc-123"))
		})

		It("replaces an id that is unsafe to log", func() {
			req := httptest.NewRequest(fiber.MethodGet, "/id", nil)
			req.Header.Set(middleware.RequestIDKey, "abc 123; drop")

			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get(middleware.RequestIDKey)).To(HaveLen(26))
		})
	})

	Describe("token", func() {
		It("passes a valid token and exposes its subject", func() {
			token, _, err := jwtPkg.Sign(middleware.AccessTokenSecret, "operator-7", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(fiber.MethodGet, "/secure", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		DescribeTable("rejects bad credentials",
			func(header func() string) {
				req := httptest.NewRequest(fiber.MethodGet, "/secure", nil)
				if h := header(); h != "" {
					req.Header.Set(fiber.HeaderAuthorization, h)
				}

				resp, err := app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			},
			Entry("missing header", func() string { return "" }),
			Entry("wrong scheme", func() string { return "Basic abc" }),
			Entry("garbage token", func() string { return "Bearer not-a-jwt" }),
			Entry("expired token", func() string {
				token, _, _ := jwtPkg.Sign(middleware.AccessTokenSecret, "operator-7", -time.Minute)
				return "Bearer " + token
			}),
			Entry("other secret", func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
					Subject:   "operator-7",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				}).SignedString([]byte("other"))
				return "Bearer " + token
			}),
			Entry("no subject", func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				}).SignedString([]byte(secret))
				return "Bearer " + token
			}),
		)
	})

	Describe("rate limiter", func() {
		It("allows the burst then answers 429", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/limited", nil))
				Expect(err).NotTo(HaveOccurred())
				codes = append(codes, resp.StatusCode)
			}
			Expect(codes).To(Equal([]int{fiber.StatusNoContent, fiber.StatusNoContent, fiber.StatusTooManyRequests}))
		})

		It("tells a limited client when to retry", func() {
			var resp *http.Response
			for i := 0; i < 3; i++ {
				var err error
				resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/limited", nil))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(resp.StatusCode).To(Equal(fiber.StatusTooManyRequests))
			Expect(resp.Header.Get(fiber.HeaderRetryAfter)).NotTo(BeEmpty())
		})
	})
})
