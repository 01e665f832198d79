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

// Command recsyncd runs the record-synchronization server: a UDP
// beacon, a TCP acceptor with admission control, and a processor
// pipeline reconciling every connected IOC's records.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	libcfg "github.com/nabbar/recsync/internal/config"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/service"

	"github.com/sirupsen/logrus"
)

var adminBind string

func main() {
	cmd := libcfg.NewRootCommand("recsyncd", "EPICS record-synchronization server", run)
	cmd.PersistentFlags().StringVar(&adminBind, "admin-bind", ":9090", "address the admin HTTP surface (/healthz, /metrics, /status) listens on")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	resolved := libcfg.ResolveConfigPath(cfgPath)

	cfg, cfgErr := libcfg.Load(resolved)
	if cfgErr != nil {
		return cfgErr
	}

	liblog.SetLevel(liblog.ParseLevel(cfg.Recceiver.LogLevel))
	if cfg.Recceiver.LogFormat == "json" {
		liblog.SetFormatter(&logrus.JSONFormatter{})
	}

	srv, svcErr := service.New(*cfg)
	if svcErr != nil {
		return svcErr
	}
	admin := service.NewAdmin(adminBind, srv, srv.Status)

	mgr := libcfg.NewManager(srv, admin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if startErr := mgr.Start(ctx); startErr != nil {
		return startErr
	}

	waitForShutdown(ctx, cancel)
	mgr.Stop(context.Background())
	return nil
}

// waitForShutdown blocks until SIGINT, SIGTERM or SIGQUIT arrives, or
// ctx is otherwise cancelled, mirroring the corpus's httpserver pool
// WaitNotify shape.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-quit:
		cancel()
	case <-ctx.Done():
	}
}
