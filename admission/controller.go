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

// Package admission bounds the number of connections concurrently
// allowed to stream records: it accepts every TCP connection
// immediately, but only "promotes" up to maxActive of them at a time,
// holding the rest paused in a FIFO queue until a slot frees up.
package admission

import (
	"container/list"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	liberr "github.com/nabbar/recsync/errors"
	liblog "github.com/nabbar/recsync/internal/log"
)

// queuedPollInterval bounds how long watchQueued blocks on a single
// read attempt before re-checking whether its connection has been
// promoted in the meantime.
const queuedPollInterval = 200 * time.Millisecond

// Controller owns a net.Listener and decides, for each accepted
// connection, whether it is promoted immediately or queued.
type Controller struct {
	ln        net.Listener
	maxActive int

	mu      sync.Mutex
	active  int
	queue   *list.List
	byConn  map[net.Conn]*pendingConn
	serving atomic.Bool

	promotions chan net.Conn

	gaugeActive prometheus.Gauge
	gaugeQueued prometheus.Gauge
}

type pendingConn struct {
	conn     net.Conn
	elem     *list.Element
	promoted atomic.Bool
}

// New wraps ln with an admission controller limiting maxActive
// concurrently-promoted connections. A maxActive of zero or less is
// treated as 1, since the acceptor must always be able to promote at
// least one connection.
func New(ln net.Listener, maxActive int) *Controller {
	if maxActive <= 0 {
		maxActive = 1
	}

	c := &Controller{
		ln:         ln,
		maxActive:  maxActive,
		queue:      list.New(),
		byConn:     make(map[net.Conn]*pendingConn),
		promotions: make(chan net.Conn, maxActive),
		gaugeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recsync_admission_active_connections",
			Help: "Number of connections currently promoted and streaming.",
		}),
		gaugeQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recsync_admission_queued_connections",
			Help: "Number of connections accepted but waiting for a slot.",
		}),
	}
	return c
}

// Collectors returns the controller's prometheus gauges for
// registration against a registry.
func (c *Controller) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.gaugeActive, c.gaugeQueued}
}

// ListenAddress returns the listener's bound address, reflecting the
// actual port chosen by the kernel when the configured port was 0.
func (c *Controller) ListenAddress() net.Addr {
	return c.ln.Addr()
}

// Serve runs the raw accept loop until the listener is closed or
// returns a permanent error. It must be called at most once.
func (c *Controller) Serve() liberr.Error {
	if !c.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing.Error(nil)
	}

	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return ErrListenerClosed.Error(err)
		}
		c.admit(conn)
	}
}

// Promotions is the channel of connections that have been granted an
// active slot, in the order they were promoted. The caller (the TCP
// server loop) drives the protocol state machine for each.
func (c *Controller) Promotions() <-chan net.Conn {
	return c.promotions
}

func (c *Controller) admit(conn net.Conn) {
	c.mu.Lock()
	if c.active < c.maxActive {
		c.active++
		c.gaugeActive.Set(float64(c.active))
		c.mu.Unlock()
		c.promotions <- conn
		return
	}

	pc := &pendingConn{conn: conn}
	pc.elem = c.queue.PushBack(pc)
	c.byConn[conn] = pc
	c.gaugeQueued.Set(float64(c.queue.Len()))
	c.mu.Unlock()

	go c.watchQueued(pc)
}

// watchQueued polls a queued connection for closure without consuming
// any bytes meant for the post-promotion handshake: a queued connection
// sends nothing until ServerGreet arrives, so any read completion here
// means the peer closed or misbehaved before promotion. Each read
// attempt is bounded by queuedPollInterval so the goroutine notices a
// concurrent promotion instead of stealing a byte of real protocol
// traffic from it.
func (c *Controller) watchQueued(pc *pendingConn) {
	buf := make([]byte, 1)

	for {
		if pc.promoted.Load() {
			_ = pc.conn.SetReadDeadline(time.Time{})
			return
		}

		_ = pc.conn.SetReadDeadline(time.Now().Add(queuedPollInterval))
		_, err := pc.conn.Read(buf)

		if pc.promoted.Load() {
			_ = pc.conn.SetReadDeadline(time.Time{})
			return
		}

		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}

		break
	}

	_ = pc.conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if !pc.promoted.Load() && pc.elem != nil {
		c.queue.Remove(pc.elem)
		pc.elem = nil
		delete(c.byConn, pc.conn)
		c.gaugeQueued.Set(float64(c.queue.Len()))
	}
	c.mu.Unlock()

	liblog.DebugLevel.Log("queued connection dropped before promotion", liblog.Fields{"remote": pc.conn.RemoteAddr().String()})
}

// Release reports that conn is no longer active (its session received
// Done or was lost), freeing one active slot and promoting the oldest
// queued connection, if any.
func (c *Controller) Release(conn net.Conn) {
	c.mu.Lock()

	if pc, ok := c.byConn[conn]; ok {
		delete(c.byConn, conn)
		if pc.elem != nil {
			c.queue.Remove(pc.elem)
		}
	}

	if c.active > 0 {
		c.active--
	}

	var next *pendingConn
	if e := c.queue.Front(); e != nil {
		next = e.Value.(*pendingConn)
		c.queue.Remove(e)
		next.elem = nil
		next.promoted.Store(true)
		delete(c.byConn, next.conn)
		c.active++
	}

	c.gaugeActive.Set(float64(c.active))
	c.gaugeQueued.Set(float64(c.queue.Len()))
	c.mu.Unlock()

	if next != nil {
		c.promotions <- next.conn
	}
}

// ActiveCount and QueuedCount report the current admission state,
// mostly useful for tests and the /status surface.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}
