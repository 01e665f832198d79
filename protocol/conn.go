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

// Package protocol runs the per-connection state machine: greeting
// handshake, keepalive ping/pong, and translation of wire messages into
// session events.
package protocol

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	liberr "github.com/nabbar/recsync/errors"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/session"
	"github.com/nabbar/recsync/txn"
	"github.com/nabbar/recsync/wire"
)

// State is the connection's place in the Queued/Greeting/Streaming/Closed
// state machine. Conn.Serve is only ever invoked once a connection has
// already been promoted out of Queued, so it starts at Greeting.
type State int

const (
	StateGreeting State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ServerVersion is advertised to every client in ServerGreet.
const ServerVersion uint8 = 1

// Conn drives one TCP connection's protocol state machine.
type Conn struct {
	nc  net.Conn
	rd  *wire.Reader
	src txn.SourceAddress

	keepaliveTimeout time.Duration
	commitInterval   time.Duration
	commitSizeLimit  int

	dispatcher session.Dispatcher
	release    func(net.Conn)

	mu               sync.Mutex
	state            State
	sess             *session.Session
	srcid            string
	waitingForPong   bool
	outstandingNonce uint32
	bytesReceived    uint64
	startTime        time.Time

	releaseOnce sync.Once
}

// New wraps an already-promoted connection. release is called exactly
// once, on the first ClientDone or when the connection closes,
// whichever comes first, so the caller can report the admission slot
// as free.
func New(nc net.Conn, dispatcher session.Dispatcher, keepaliveTimeout, commitInterval time.Duration, commitSizeLimit int, release func(net.Conn)) *Conn {
	host, port := splitHostPort(nc.RemoteAddr())

	return &Conn{
		nc:               nc,
		rd:               wire.NewReader(nc, false),
		src:              txn.SourceAddress{Host: host, Port: port},
		keepaliveTimeout: keepaliveTimeout,
		commitInterval:   commitInterval,
		commitSizeLimit:  commitSizeLimit,
		dispatcher:       dispatcher,
		release:          release,
		state:            StateGreeting,
	}
}

func splitHostPort(addr net.Addr) (string, uint16) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), uint16(tcp.Port)
	}
	return addr.String(), 0
}

// Serve runs the connection to completion: ServerGreet, the ClientGreet
// handshake, then the streaming loop, until the connection is lost or
// the keepalive deadline is missed. It always returns after the
// connection's session has been closed and its slot released.
func (c *Conn) Serve(ctx context.Context) liberr.Error {
	defer c.close(ctx)

	if _, err := c.nc.Write(wire.EncodeServerGreet(ServerVersion)); err != nil {
		return ErrIO.Error(err)
	}

	if e := c.handleGreeting(); e != nil {
		return e
	}

	return c.streamLoop(ctx)
}

func (c *Conn) handleGreeting() liberr.Error {
	_ = c.nc.SetReadDeadline(time.Now().Add(c.keepaliveTimeout))

	f, e := c.rd.ReadFrame()
	if e != nil {
		return e
	}
	c.accumulate(f)

	if f.Header.MsgID != wire.MsgClientGreet {
		return ErrBadGreeting.Error(nil)
	}

	greet, de := wire.DecodeClientGreet(f.Body)
	if de != nil {
		return ErrBadGreeting.Error(de)
	}
	if greet.ClientType != 0 {
		return ErrBadGreeting.Error(fmt.Errorf("unsupported client type %d", greet.ClientType))
	}

	c.mu.Lock()
	c.srcid = c.src.IocID()
	c.sess = session.New(c.srcid, c.src, c.commitInterval, c.commitSizeLimit, c.dispatcher, c.onSessionFatal)
	c.state = StateStreaming
	c.startTime = time.Now()
	c.mu.Unlock()

	return nil
}

func (c *Conn) onSessionFatal(err error) {
	liblog.ErrorLevel.Log("closing connection after fatal pipeline error", liblog.Fields{"session": c.srcid, "error": err.Error()})
	_ = c.nc.Close()
}

func (c *Conn) streamLoop(ctx context.Context) liberr.Error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		_ = c.nc.SetReadDeadline(time.Now().Add(c.keepaliveTimeout))
		f, e := c.rd.ReadFrame()

		if e != nil {
			if isTimeout(e) {
				if te := c.onKeepaliveTimeout(); te != nil {
					return te
				}
				continue
			}
			return nil
		}

		c.accumulate(f)

		if done := c.handleFrame(ctx, f); done {
			return nil
		}
	}
}

func isTimeout(e liberr.Error) bool {
	var ne net.Error
	if stderrors.As(e, &ne) {
		return ne.Timeout()
	}
	return false
}

// onKeepaliveTimeout is called when a read deadline elapses. The first
// elapse sends a ping and arms the "waiting" phase; a second elapse
// while already waiting means the pong never arrived.
func (c *Conn) onKeepaliveTimeout() liberr.Error {
	c.mu.Lock()
	waiting := c.waitingForPong
	c.mu.Unlock()

	if waiting {
		return ErrKeepaliveTimeout.Error(nil)
	}

	var nb [4]byte
	if _, err := rand.Read(nb[:]); err != nil {
		return ErrIO.Error(err)
	}
	nonce := binary.BigEndian.Uint32(nb[:])

	c.mu.Lock()
	c.outstandingNonce = nonce
	c.waitingForPong = true
	c.mu.Unlock()

	if _, err := c.nc.Write(wire.EncodeServerPing(nonce)); err != nil {
		return ErrIO.Error(err)
	}
	return nil
}

// handleFrame applies one decoded client frame to the session. It
// returns true when the connection should stop serving (ClientDone does
// not stop serving; only a protocol violation does).
func (c *Conn) handleFrame(ctx context.Context, f wire.Frame) bool {
	switch f.Header.MsgID {
	case wire.MsgClientInfo:
		m, de := wire.DecodeClientInfo(f.Body)
		if de != nil {
			liblog.WarnLevel.Log("dropping malformed ClientInfo", liblog.Fields{"session": c.srcid})
			return false
		}
		if m.RecID == 0 {
			c.sess.IOCInfo(m.Key, m.Value)
		} else {
			c.sess.RecInfo(txn.RecID(m.RecID), m.Key, m.Value)
		}

	case wire.MsgClientRecord:
		m, de := wire.DecodeClientRecord(f.Body)
		if de != nil {
			liblog.WarnLevel.Log("dropping malformed ClientRecord", liblog.Fields{"session": c.srcid})
			return false
		}
		if m.Subtype == wire.RecordAlias {
			c.sess.AddAlias(txn.RecID(m.RecID), m.Name)
		} else {
			_ = c.sess.AddRecord(ctx, txn.RecID(m.RecID), m.Name, m.Type)
		}

	case wire.MsgClientDel:
		m, de := wire.DecodeClientDel(f.Body)
		if de != nil {
			liblog.WarnLevel.Log("dropping malformed ClientDel", liblog.Fields{"session": c.srcid})
			return false
		}
		_ = c.sess.DelRecord(ctx, txn.RecID(m.RecID))

	case wire.MsgClientDone:
		_ = c.sess.Done(ctx)
		liblog.InfoLevel.Log("upload burst complete", liblog.Fields{
			"session":       c.srcid,
			"bytesReceived": c.snapshotBytes(),
			"elapsed":       time.Since(c.snapshotStart()).String(),
		})
		c.mu.Lock()
		waiting := c.waitingForPong
		c.mu.Unlock()
		if waiting {
			_ = c.onKeepaliveTimeout()
		}
		c.releaseSlot()

	case wire.MsgClientPong:
		m, de := wire.DecodeClientPong(f.Body)
		if de != nil {
			return true
		}
		c.mu.Lock()
		expected := c.outstandingNonce
		c.mu.Unlock()
		if m.Nonce != expected {
			liblog.WarnLevel.Log("pong nonce mismatch, closing connection", liblog.Fields{"session": c.srcid})
			return true
		}
		c.mu.Lock()
		c.waitingForPong = false
		c.mu.Unlock()

	default:
		liblog.WarnLevel.Log("ignoring unknown message", liblog.Fields{"session": c.srcid, "msgid": f.Header.MsgID})
	}

	return false
}

func (c *Conn) accumulate(f wire.Frame) {
	c.mu.Lock()
	c.bytesReceived += uint64(wire.HeaderLen) + uint64(len(f.Body))
	c.mu.Unlock()
}

func (c *Conn) snapshotBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesReceived
}

func (c *Conn) snapshotStart() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

func (c *Conn) close(ctx context.Context) {
	c.mu.Lock()
	sess := c.sess
	c.state = StateClosed
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Close(ctx)
	}
	_ = c.nc.Close()

	c.releaseSlot()
}

// releaseSlot frees the connection's admission slot, promoting the next
// queued connection if any. A real IOC client keeps its TCP connection
// open indefinitely after Done, so the slot must be freed there rather
// than waiting for the connection to actually close; close still calls
// this too, to cover connections lost before ever reaching Done. Only
// the first call does anything.
func (c *Conn) releaseSlot() {
	c.releaseOnce.Do(func() {
		if c.release != nil {
			c.release(c.nc)
		}
	})
}

// CurrentState reports the connection's state, mostly for tests and the
// status surface.
func (c *Conn) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
