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

// Package service wires the announcer, acceptor, session batcher and
// processor pipeline into one running recsyncd, and exposes an admin
// HTTP surface for health checks and metrics scraping.
package service

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nabbar/recsync/admission"
	"github.com/nabbar/recsync/announce"
	libcfg "github.com/nabbar/recsync/internal/config"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/pipeline"
	"github.com/nabbar/recsync/processor/db"
	"github.com/nabbar/recsync/processor/directory"
	"github.com/nabbar/recsync/processor/show"
	"github.com/nabbar/recsync/directoryclient"
	"github.com/nabbar/recsync/protocol"

	liberr "github.com/nabbar/recsync/errors"
)

// Server is the top-level Component gluing every piece together:
// admission-guarded acceptor, UDP beacon, and processor dispatcher. It
// satisfies internal/config.Component so it can be sequenced by a
// Manager alongside the admin HTTP surface.
type Server struct {
	cfg libcfg.Config

	dispatcher *pipeline.Dispatcher
	serverKey  uint32

	mu        sync.Mutex
	ln        net.Listener
	admission *admission.Controller
	announcer announce.Announcer

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Server from a validated configuration, constructing
// every processor named in cfg.Recceiver.Procs. Database connections
// and directory-service HTTP clients are opened here, eagerly, so a
// misconfigured DSN or base URL fails fast at startup rather than on
// the first commit.
func New(cfg libcfg.Config) (*Server, liberr.Error) {
	procs, e := buildProcessors(cfg)
	if e != nil {
		return nil, e
	}

	return &Server{
		cfg:        cfg,
		dispatcher: pipeline.New(0, procs...),
		serverKey:  randomServerKey(),
		stopCh:     make(chan struct{}),
	}, nil
}

func randomServerKey() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}

func buildProcessors(cfg libcfg.Config) ([]pipeline.Processor, liberr.Error) {
	procs := make([]pipeline.Processor, 0, len(cfg.Recceiver.Procs))

	for _, name := range cfg.Recceiver.Procs {
		switch name {
		case "show":
			procs = append(procs, show.New(name))

		case "db":
			gdb, err := openGorm(cfg.DB)
			if err != nil {
				return nil, ErrListen.Error(err)
			}
			procs = append(procs, db.New(name, gdb, cfg.DB.Owner))

		case "directory":
			cli, err := directoryclient.New(cfg.Directory.BaseURL, nil)
			if err != nil {
				return nil, err
			}
			loc, lerr := time.LoadLocation(cfg.Directory.Timezone)
			if lerr != nil {
				loc = time.UTC
			}
			procs = append(procs, directory.New(name, cli, directory.Config{
				AliasEnabled:             cfg.Directory.Alias,
				RecordTypeEnabled:        cfg.Directory.RecordType,
				RecordDescriptionEnabled: cfg.Directory.RecordDesc,
				IOCConnectionInfo:        cfg.Directory.IOCConnectionInfo,
				EnvironmentVars:          cfg.Directory.EnvironmentVars,
				InfoTagWhitelist:         cfg.Directory.InfoTags,
				CleanOnStart:             cfg.Directory.CleanOnStart,
				CleanOnStop:              cfg.Directory.CleanOnStop,
				Username:                 cfg.Directory.Username,
				RecceiverID:              cfg.Directory.RecceiverID,
				Location:                 loc,
				FindSizeLimit:            cfg.Directory.FindSizeLimit,
			}, nil))

		default:
			return nil, ErrUnknownProcessor.Error(nil)
		}
	}

	return procs, nil
}

func openGorm(cfg libcfg.DB) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	}
}

func (s *Server) Name() string { return "recsyncd" }

// Start opens the TCP listener, starts every processor, starts the UDP
// beacon, and begins accepting connections. It returns once the
// listener is open and all processors have started; the accept loop
// and per-connection handling continue in background goroutines.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Recceiver.Bind)
	if err != nil {
		return ErrListen.Error(err)
	}

	ctrl := admission.New(ln, s.cfg.Recceiver.MaxActive)

	dest, err := s.destinations()
	if err != nil {
		_ = ln.Close()
		return err
	}

	announcer, aerr := announce.New(s.bindIP(), s.boundPort(ln), s.serverKey, dest, s.cfg.Recceiver.AnnounceInterval)
	if aerr != nil {
		_ = ln.Close()
		return aerr
	}

	if err = s.dispatcher.StartAll(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	if aerr = announcer.Start(ctx); aerr != nil {
		_ = s.dispatcher.StopAll(ctx)
		_ = ln.Close()
		return aerr
	}

	s.mu.Lock()
	s.ln = ln
	s.admission = ctrl
	s.announcer = announcer
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop(ctrl)
	go s.promoteLoop(ctx, ctrl)

	liblog.InfoLevel.Log("recsyncd listening", liblog.Fields{"bind": ln.Addr().String()})
	return nil
}

// Stop closes the listener, stops the beacon, and stops every
// processor, waiting for the accept and promotion loops to drain.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	announcer := s.announcer
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if announcer != nil {
		_ = announcer.Stop(ctx)
	}

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	return s.dispatcher.StopAll(ctx)
}

// Collectors returns every prometheus collector contributed by the
// admission controller, the pipeline dispatcher, and any directory
// processor, for registration against the admin surface's registry.
func (s *Server) Collectors() []prometheus.Collector {
	s.mu.Lock()
	ctrl := s.admission
	s.mu.Unlock()

	cs := append([]prometheus.Collector{}, s.dispatcher.Collectors()...)
	if ctrl != nil {
		cs = append(cs, ctrl.Collectors()...)
	}
	for _, p := range s.dispatcher.Processors() {
		if dp, ok := p.(*directory.Processor); ok {
			cs = append(cs, dp.Collectors()...)
		}
	}
	return cs
}

// Status returns a snapshot of the server's live state for the admin
// surface's /status endpoint.
func (s *Server) Status() map[string]interface{} {
	s.mu.Lock()
	ctrl := s.admission
	ln := s.ln
	s.mu.Unlock()

	out := map[string]interface{}{
		"processors": processorNames(s.dispatcher.Processors()),
		"serverKey":  s.serverKey,
	}
	if ln != nil {
		out["bind"] = ln.Addr().String()
	}
	if ctrl != nil {
		out["activeConnections"] = ctrl.ActiveCount()
		out["queuedConnections"] = ctrl.QueuedCount()
	}
	return out
}

func processorNames(procs []pipeline.Processor) []string {
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	return names
}

func (s *Server) acceptLoop(ctrl *admission.Controller) {
	defer s.wg.Done()
	if err := ctrl.Serve(); err != nil {
		liblog.InfoLevel.Log("acceptor stopped", liblog.Fields{"error": err.Error()})
	}
}

// promoteLoop hands each promoted connection off to its own goroutine
// until the server is stopped. It cannot range over Promotions()
// directly: that channel is never closed (a queued connection may be
// promoted from Release long after the listener closes), so Stop's
// own stopCh is what actually ends this loop.
func (s *Server) promoteLoop(ctx context.Context, ctrl *admission.Controller) {
	defer s.wg.Done()
	for {
		select {
		case conn := <-ctrl.Promotions():
			go s.serveConn(ctx, ctrl, conn)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) serveConn(ctx context.Context, ctrl *admission.Controller, conn net.Conn) {
	c := protocol.New(conn, s.dispatcher, s.cfg.Recceiver.TCPTimeout, s.cfg.Recceiver.CommitInterval, s.cfg.Recceiver.CommitSizeLimit, ctrl.Release)
	if err := c.Serve(ctx); err != nil {
		liblog.DebugLevel.Log("connection closed", liblog.Fields{"remote": conn.RemoteAddr().String(), "error": err.Error()})
	}
}

func (s *Server) bindIP() net.IP {
	host, _, err := net.SplitHostPort(s.cfg.Recceiver.Bind)
	if err != nil || host == "" {
		return net.IPv4zero
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	return net.IPv4zero
}

func (s *Server) boundPort(ln net.Listener) uint16 {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}

func (s *Server) destinations() ([]announce.Destination, liberr.Error) {
	dest := make([]announce.Destination, 0, len(s.cfg.Recceiver.AddrList))
	for _, addr := range s.cfg.Recceiver.AddrList {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, ErrListen.Error(err)
		}
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return nil, ErrListen.Error(err)
		}
		dest = append(dest, announce.Destination{Host: host, Port: uint16(n)})
	}
	return dest, nil
}
