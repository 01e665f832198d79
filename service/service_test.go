package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libcfg "github.com/nabbar/recsync/internal/config"
	"github.com/nabbar/recsync/service"
)

func baseConfig() libcfg.Config {
	return libcfg.Config{
		Recceiver: libcfg.Recceiver{
			AnnounceInterval: 50 * time.Millisecond,
			TCPTimeout:       time.Second,
			CommitInterval:   50 * time.Millisecond,
			MaxActive:        2,
			Bind:             "127.0.0.1:0",
			AddrList:         []string{"127.0.0.1:12345"},
			Procs:            []string{"show"},
		},
	}
}

var _ = Describe("Server", func() {
	It("rejects an unrecognized processor name", func() {
		cfg := baseConfig()
		cfg.Recceiver.Procs = []string{"bogus"}

		_, err := service.New(cfg)
		Expect(err).ToNot(BeNil())
	})

	It("starts and stops cleanly with the show processor, exposing collectors", func() {
		cfg := baseConfig()

		srv, err := service.New(cfg)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Expect(srv.Start(ctx)).To(Succeed())
		defer func() { _ = srv.Stop(context.Background()) }()

		Expect(srv.Collectors()).ToNot(BeEmpty())

		status := srv.Status()
		Expect(status["processors"]).To(Equal([]string{"show"}))
		Expect(status["activeConnections"]).To(Equal(0))

		Expect(srv.Stop(context.Background())).To(Succeed())
	})
})

var _ = Describe("AdminServer", func() {
	It("serves healthz, status and metrics", func() {
		cfg := baseConfig()
		srv, err := service.New(cfg)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		Expect(srv.Start(ctx)).To(Succeed())
		defer func() { _ = srv.Stop(context.Background()) }()

		admin := service.NewAdmin("127.0.0.1:0", srv, srv.Status)
		Expect(admin.Start(ctx)).To(Succeed())
		defer func() { _ = admin.Stop(context.Background()) }()

		addr := adminAddr(admin)

		resp, getErr := http.Get(fmt.Sprintf("http://%s/healthz", addr))
		Expect(getErr).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body["status"]).To(Equal("ok"))

		metricsResp, metricsErr := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		Expect(metricsErr).To(BeNil())
		defer metricsResp.Body.Close()
		Expect(metricsResp.StatusCode).To(Equal(http.StatusOK))
	})
})

func adminAddr(admin *service.AdminServer) string {
	return admin.Addr().String()
}
