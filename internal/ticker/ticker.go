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

// Package ticker runs a function at a fixed period until stopped,
// firing its first tick immediately. It is the periodic-task primitive
// behind the announcer's broadcast loop.
package ticker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/nabbar/recsync/errors"
	liberrpool "github.com/nabbar/recsync/errors/pool"
)

// defaultMinDuration is substituted whenever the requested duration is
// zero, negative, or otherwise too small to be a sane tick period.
const defaultMinDuration = 500 * time.Millisecond

// Fn is the unit of work run on every tick.
type Fn func(ctx context.Context, tck *time.Ticker) error

// Ticker runs Fn at a fixed period until Stop or the parent context is
// cancelled.
type Ticker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	IsRunning() bool
	Uptime() time.Duration

	ErrorsLast() error
	ErrorsList() []error
}

type tick struct {
	mu      sync.Mutex
	d       time.Duration
	fn      Fn
	running atomic.Bool
	startAt atomic.Int64
	cancel  context.CancelFunc
	done    chan struct{}
	errs    liberrpool.Pool
}

// New builds a Ticker that calls fn every d. A nil fn is replaced with
// a no-op. A d that is zero, negative, or below defaultMinDuration is
// replaced with defaultMinDuration.
func New(d time.Duration, fn Fn) Ticker {
	if d <= 0 || d < defaultMinDuration {
		d = defaultMinDuration
	}
	if fn == nil {
		fn = func(context.Context, *time.Ticker) error { return nil }
	}
	return &tick{
		d:    d,
		fn:   fn,
		errs: liberrpool.New(),
	}
}

func (t *tick) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	t.errs.Clear()

	cctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)
	t.startAt.Store(time.Now().UnixNano())

	go t.loop(cctx)

	return nil
}

func (t *tick) loop(ctx context.Context) {
	defer close(t.done)
	defer t.running.Store(false)

	tck := time.NewTicker(t.d)
	defer tck.Stop()

	run := func() {
		if err := t.fn(ctx, tck); err != nil {
			t.errs.Add(err)
		}
	}

	run()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tck.C:
			run()
		}
	}
}

func (t *tick) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return nil
}

func (t *tick) Restart(ctx context.Context) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	return t.Start(ctx)
}

func (t *tick) IsRunning() bool {
	return t.running.Load()
}

func (t *tick) Uptime() time.Duration {
	if !t.running.Load() {
		return 0
	}
	start := t.startAt.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

func (t *tick) ErrorsLast() error {
	return t.errs.Last()
}

func (t *tick) ErrorsList() []error {
	return t.errs.Slice()
}

var _ liberr.Errors = (*errsAdapter)(nil)

// errsAdapter is unused directly but documents that ticker's error
// surface is compatible with the shared Errors contract (ErrorsLast /
// ErrorsList) declared in the errors package.
type errsAdapter struct{ t *tick }

func (a *errsAdapter) ErrorsLast() error   { return a.t.ErrorsLast() }
func (a *errsAdapter) ErrorsList() []error { return a.t.ErrorsList() }
