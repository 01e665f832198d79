/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	ginsdk "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	liberr "github.com/nabbar/recsync/errors"
	liblog "github.com/nabbar/recsync/internal/log"
)

// recoverMiddleware turns a panic in any admin handler into a 500
// response shaped by the errors package's gin integration, instead of
// gin's own plain-text recovery page.
func recoverMiddleware() ginsdk.HandlerFunc {
	return func(c *ginsdk.Context) {
		defer func() {
			if r := recover(); r != nil {
				e := ErrAdminServe.Error(fmt.Errorf("%v", r))
				ret := &liberr.DefaultReturn{}
				e.Return(ret)
				ret.GinTonicAbort(c, http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// Collector is anything that exposes prometheus collectors, satisfied
// by *Server.
type Collector interface {
	Collectors() []prometheus.Collector
}

// AdminServer exposes /healthz, /status and /metrics over HTTP, purely
// for operators: nothing on the record-streaming path depends on it.
type AdminServer struct {
	bind       string
	collectors Collector
	registry   *prometheus.Registry
	status     func() map[string]interface{}
	srv        *http.Server
	ln         net.Listener
}

// NewAdmin builds an AdminServer bound to bind. collectors.Collectors()
// is read inside Start, not here, since a Manager sequences the admin
// component after the server it reports on: the server's gauges only
// exist once the server has actually started.
func NewAdmin(bind string, collectors Collector, status func() map[string]interface{}) *AdminServer {
	return &AdminServer{
		bind:       bind,
		collectors: collectors,
		status:     status,
	}
}

func (a *AdminServer) Name() string { return "admin" }

// Addr returns the admin listener's bound address, reflecting the
// actual port chosen by the kernel when the configured port was 0.
// Only valid after Start has returned successfully.
func (a *AdminServer) Addr() net.Addr {
	return a.ln.Addr()
}

// Start binds the admin listener and begins serving in the background.
func (a *AdminServer) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(a.collectors.Collectors()...)
	a.registry = reg

	ln, err := net.Listen("tcp", a.bind)
	if err != nil {
		return ErrAdminServe.Error(err)
	}

	ginsdk.SetMode(ginsdk.ReleaseMode)
	r := ginsdk.New()
	r.Use(recoverMiddleware())

	r.GET("/healthz", func(c *ginsdk.Context) {
		c.JSON(http.StatusOK, ginsdk.H{"status": "ok"})
	})
	r.GET("/status", func(c *ginsdk.Context) {
		c.JSON(http.StatusOK, a.status())
	})
	r.GET("/metrics", ginsdk.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	a.ln = ln
	a.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if serveErr := a.srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			liblog.ErrorLevel.Log("admin server stopped", liblog.Fields{"error": serveErr.Error()})
		}
	}()

	liblog.InfoLevel.Log("admin surface listening", liblog.Fields{"bind": ln.Addr().String()})
	return nil
}

// Stop shuts the admin HTTP server down gracefully.
func (a *AdminServer) Stop(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.srv.Shutdown(shutdownCtx)
}
