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

// Package announce broadcasts the server's (address, port, key) beacon
// over UDP at a fixed interval, so clients on the local network can
// discover where to open their TCP connection.
package announce

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	liberr "github.com/nabbar/recsync/errors"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/internal/ticker"
	"github.com/nabbar/recsync/wire"
)

// Destination is one UDP (host, port) the beacon is sent to.
type Destination struct {
	Host string
	Port uint16
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Announcer periodically broadcasts the announce frame to every
// configured Destination.
type Announcer interface {
	Start(ctx context.Context) liberr.Error
	Stop(ctx context.Context) liberr.Error
	IsRunning() bool
}

type announcer struct {
	addr    net.IP
	port    uint16
	key     uint32
	dests   []Destination
	period  time.Duration
	conn    *net.UDPConn
	tk      ticker.Ticker
	mu      sync.Mutex
	lastErr map[string]bool
}

// New builds an Announcer for (tcpAddr, tcpPort, serverKey), sending to
// every destination every period. destinations must be non-empty.
func New(tcpAddr net.IP, tcpPort uint16, serverKey uint32, destinations []Destination, period time.Duration) (Announcer, liberr.Error) {
	if len(destinations) == 0 {
		return nil, ErrNoDestination.Error(nil)
	}

	a := &announcer{
		addr:    tcpAddr,
		port:    tcpPort,
		key:     serverKey,
		dests:   append([]Destination(nil), destinations...),
		period:  period,
		lastErr: make(map[string]bool),
	}

	a.tk = ticker.New(period, a.sendAll)
	return a, nil
}

func (a *announcer) Start(ctx context.Context) liberr.Error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return ErrSocketOpen.Error(err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	if e := a.tk.Start(ctx); e != nil {
		return liberr.Make(e)
	}
	return nil
}

func (a *announcer) Stop(ctx context.Context) liberr.Error {
	if e := a.tk.Stop(ctx); e != nil {
		return liberr.Make(e)
	}

	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (a *announcer) IsRunning() bool {
	return a.tk.IsRunning()
}

// sendAll is the ticker.Fn driving one broadcast round. It never
// returns an error that would stop the ticker: per-destination failures
// are logged (deduplicated) and swallowed, matching §4.2's contract
// that send errors never stop the announcer.
func (a *announcer) sendAll(ctx context.Context, _ *time.Ticker) error {
	frame, err := wire.EncodeAnnounce(a.addr, a.port, a.key)
	if err != nil {
		liblog.ErrorLevel.Log("failed to encode announce frame", liblog.Fields{"error": err.Error()})
		return nil
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil
	}

	for _, d := range a.dests {
		raddr, rerr := net.ResolveUDPAddr("udp4", d.String())
		if rerr != nil {
			a.logOnce(d, rerr)
			continue
		}

		if _, werr := conn.WriteTo(frame, raddr); werr != nil {
			a.logOnce(d, werr)
			continue
		}

		a.clearOnce(d)
	}

	return nil
}

func (a *announcer) logOnce(d Destination, err error) {
	a.mu.Lock()
	already := a.lastErr[d.String()]
	a.lastErr[d.String()] = true
	a.mu.Unlock()

	if !already {
		liblog.WarnLevel.Log("announce send failed", liblog.Fields{"destination": d.String(), "error": err.Error()})
	}
}

func (a *announcer) clearOnce(d Destination) {
	a.mu.Lock()
	wasFailing := a.lastErr[d.String()]
	delete(a.lastErr, d.String())
	a.mu.Unlock()

	if wasFailing {
		liblog.InfoLevel.Log("announce send recovered", liblog.Fields{"destination": d.String()})
	}
}
