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

// Package session accumulates the events of one connection into a
// sequence of Transactions and feeds them, in order, to a Dispatcher.
package session

import (
	"context"
	"sync"
	"time"

	liberr "github.com/nabbar/recsync/errors"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// Dispatcher is the pipeline-facing contract a Session commits to. It
// is satisfied by *pipeline.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, t txn.Transaction) error
}

// Session accumulates one connection's events into transactions and
// hands each, in order, to a Dispatcher. Its commit chain holds at
// most one in-flight dispatch plus one more queued transaction: a
// third Flush call blocks until the committer goroutine has picked up
// the queued one.
type Session struct {
	srcid  string
	source txn.SourceAddress

	mu              sync.Mutex
	builder         *txn.Builder
	commitInterval  time.Duration
	commitSizeLimit int
	deadline        time.Time

	dispatcher Dispatcher
	onFatal    func(error)

	queue     chan txn.Transaction
	done      chan struct{}
	closeOnce sync.Once

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New builds a Session over srcid/source, flushing at most every
// commitInterval or every commitSizeLimit records (0 disables the size
// bound). onFatal is invoked once, from the committer goroutine, the
// first time a dispatch returns a non-cancellation error; the caller
// is expected to close the underlying connection from it.
func New(srcid string, source txn.SourceAddress, commitInterval time.Duration, commitSizeLimit int, dispatcher Dispatcher, onFatal func(error)) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		srcid:           srcid,
		source:          source,
		builder:         txn.NewBuilder(srcid, source, true, true),
		commitInterval:  commitInterval,
		commitSizeLimit: commitSizeLimit,
		dispatcher:      dispatcher,
		onFatal:         onFatal,
		queue:           make(chan txn.Transaction, 1),
		done:            make(chan struct{}),
		runCtx:          ctx,
		runCancel:       cancel,
	}

	go s.committer()
	return s
}

func (s *Session) committer() {
	defer close(s.done)

	for {
		select {
		case t, ok := <-s.queue:
			if !ok {
				return
			}
			s.commitOne(t)
		case <-s.runCtx.Done():
			return
		}
	}
}

func (s *Session) commitOne(t txn.Transaction) {
	err := s.dispatcher.Dispatch(s.runCtx, t)
	if err == nil {
		return
	}

	liblog.ErrorLevel.Log("session commit failed", liblog.Fields{"session": s.srcid, "error": err.Error()})

	if isCancellation(err) {
		return
	}

	if s.onFatal != nil {
		f := s.onFatal
		s.onFatal = nil
		f(err)
	}
}

func isCancellation(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// IOCInfo records a session-wide client_info key/value pair.
func (s *Session) IOCInfo(key, value string) {
	s.mu.Lock()
	s.builder.SetClientInfo(key, value)
	s.markDirty()
	s.mu.Unlock()
}

// RecInfo records a per-record metadata key/value pair.
func (s *Session) RecInfo(id txn.RecID, key, value string) {
	s.mu.Lock()
	s.builder.SetRecordInfo(id, key, value)
	s.markDirty()
	s.mu.Unlock()
}

// AddRecord introduces or replaces a record, flushing the in-flight
// transaction first if it is safe to do so: a flush is only ever taken
// immediately before an Add/Del/Done event, never between AddRecord and
// its attached aliases/info, so a record and its metadata always land
// in the same transaction.
func (s *Session) AddRecord(ctx context.Context, id txn.RecID, name, recType string) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.flushSafelyLocked(ctx); e != nil {
		return e
	}
	s.builder.AddRecord(id, name, recType)
	s.markDirty()
	return nil
}

// AddAlias attaches alias names to a record already added in the
// current, not-yet-flushed transaction.
func (s *Session) AddAlias(id txn.RecID, names ...string) {
	s.mu.Lock()
	s.builder.AddAlias(id, names...)
	s.markDirty()
	s.mu.Unlock()
}

// DelRecord retracts a record, flushing the in-flight transaction first
// if it is safe to do so.
func (s *Session) DelRecord(ctx context.Context, id txn.RecID) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.flushSafelyLocked(ctx); e != nil {
		return e
	}
	s.builder.DeleteRecord(id)
	s.markDirty()
	return nil
}

// Done flushes the in-flight transaction. It forces the flush even when
// the builder is empty if no transaction has been emitted yet, so a
// client that greets and immediately says Done still produces its
// required initial=true transaction.
func (s *Session) Done(ctx context.Context) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx, s.builder.Initial())
}

// Close enqueues a final connected=false transaction and waits for the
// committer goroutine to drain before returning. Only when that final
// transaction cannot be built does it cancel the outstanding commit.
func (s *Session) Close(ctx context.Context) liberr.Error {
	var retErr liberr.Error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.builder.SetConnected(false)
		final, err := s.builder.Build()
		s.mu.Unlock()

		if err != nil {
			retErr = err
			s.runCancel()
			close(s.queue)
			<-s.done
			return
		}

		select {
		case s.queue <- final:
		case <-ctx.Done():
		}

		close(s.queue)
		<-s.done
	})

	return retErr
}

func (s *Session) markDirty() {
	if s.deadline.IsZero() && s.commitInterval > 0 {
		s.deadline = time.Now().Add(s.commitInterval)
	}
}

// flushSafelyLocked flushes only when the commit deadline has elapsed
// or the accumulated record count has reached commitSizeLimit. Caller
// must hold s.mu.
func (s *Session) flushSafelyLocked(ctx context.Context) liberr.Error {
	due := !s.deadline.IsZero() && !time.Now().Before(s.deadline)
	overSize := s.commitSizeLimit > 0 && s.builder.Size() >= s.commitSizeLimit

	if !due && !overSize {
		return nil
	}
	return s.flushLocked(ctx, false)
}

// flushLocked builds and enqueues the current transaction, resetting
// the builder and deadline for the next one. Caller must hold s.mu. An
// empty builder is skipped unless force is set.
func (s *Session) flushLocked(ctx context.Context, force bool) liberr.Error {
	if s.builder.Empty() && !force {
		return nil
	}

	t, err := s.builder.Build()
	if err != nil {
		return err
	}

	s.builder.Reset()
	s.deadline = time.Time{}

	select {
	case s.queue <- t:
		return nil
	case <-ctx.Done():
		return ErrClosed.Error(ctx.Err())
	}
}
