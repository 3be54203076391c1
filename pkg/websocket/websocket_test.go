package websocketPkg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

// inferenceServer answers every binary frame with reply(frame).
func inferenceServer(reply func(frame []byte) string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply(msg))); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

var _ = Describe("Inference client", func() {
	It("sends the frame and decodes detections", func() {
		var received atomic.Int64
		srv := inferenceServer(func(frame []byte) string {
			received.Store(int64(len(frame)))
			return `{"detections":[{"bbox":[1,2,3,4],"confidence":0.75,"class":3}]}`
		})
		defer srv.Close()

		logger, _ := test.NewNullLogger()
		client := newClient(wsURL(srv), logger)
		defer client.CloseConnections()

		got, err := client.Detect(context.Background(), []byte("frame-bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].BBox).To(Equal([4]float64{1, 2, 3, 4}))
		Expect(got[0].Class).To(Equal(3))
		Expect(received.Load()).To(Equal(int64(len("frame-bytes"))))
		Expect(client.IsConnected()).To(BeTrue())
	})

	It("surfaces an error reported by the service", func() {
		srv := inferenceServer(func([]byte) string { return `{"detections":[],"error":"model not loaded"}` })
		defer srv.Close()

		logger, _ := test.NewNullLogger()
		client := newClient(wsURL(srv), logger)
		defer client.CloseConnections()

		_, err := client.Detect(context.Background(), []byte("x"))
		Expect(err).To(MatchError(ContainSubstring("model not loaded")))
	})

	It("serializes concurrent exchanges on one connection", func() {
		srv := inferenceServer(func(frame []byte) string {
			return `{"detections":[{"bbox":[0,0,1,1],"confidence":1,"class":` + string(frame) + `}]}`
		})
		defer srv.Close()

		logger, _ := test.NewNullLogger()
		client := newClient(wsURL(srv), logger)
		defer client.CloseConnections()

		results := make(chan bool, 5)
		for i := 0; i < 5; i++ {
			go func(class int) {
				defer GinkgoRecover()
				got, err := client.Detect(context.Background(), []byte{byte('0' + class)})
				results <- err == nil && len(got) == 1 && got[0].Class == class
			}(i)
		}

		for i := 0; i < 5; i++ {
			Eventually(results, 5*time.Second).Should(Receive(BeTrue()))
		}
	})

	It("reports ErrNotConnected when the service is down", func() {
		srv := inferenceServer(func([]byte) string { return `{}` })
		url := wsURL(srv)
		srv.Close()

		logger, _ := test.NewNullLogger()
		client := newClient(url, logger)

		_, err := client.Detect(context.Background(), []byte("x"))
		Expect(err).To(MatchError(ErrNotConnected))
		Expect(client.IsConnected()).To(BeFalse())
	})

	It("reconnects after the connection is dropped", func() {
		srv := inferenceServer(func([]byte) string { return `{"detections":[]}` })
		defer srv.Close()

		logger, _ := test.NewNullLogger()
		client := newClient(wsURL(srv), logger)
		defer client.CloseConnections()

		_, err := client.Detect(context.Background(), []byte("x"))
		Expect(err).NotTo(HaveOccurred())

		client.CloseConnections()
		Expect(client.IsConnected()).To(BeFalse())

		got, err := client.Detect(context.Background(), []byte("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})
})
