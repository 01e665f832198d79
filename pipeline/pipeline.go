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

// Package pipeline fans a Transaction out to every registered
// Processor concurrently and waits for all of them, isolating the
// failure of one processor from the rest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// Processor is a sink for committed transactions. Commit is called at
// most once at a time for a given processor by a given session, but
// concurrently across different sessions and different processors.
type Processor interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commit(ctx context.Context, t txn.Transaction) error
}

// Dispatcher fans a transaction out to every registered processor and
// removes any processor whose Commit fails with a non-cancellation
// error.
type Dispatcher struct {
	mu      sync.RWMutex
	procs   []Processor
	sem     *semaphore.Weighted
	commits *prometheus.CounterVec
}

// New builds a Dispatcher over the given processors. maxConcurrent
// bounds how many processor commits may run at once across the whole
// dispatcher (0 means unbounded); it exists to cap worker-task
// concurrency for processors doing blocking I/O, mirroring the
// corpus's semaphore-guarded fan-out pattern.
func New(maxConcurrent int64, procs ...Processor) *Dispatcher {
	d := &Dispatcher{
		procs: append([]Processor(nil), procs...),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsync_processor_commits_total",
			Help: "Count of processor Commit calls by processor name and result (ok, error, cancelled).",
		}, []string{"processor", "result"}),
	}
	if maxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return d
}

// Collectors returns the dispatcher's prometheus collectors for
// registration against the admin HTTP surface's registry.
func (d *Dispatcher) Collectors() []prometheus.Collector {
	return []prometheus.Collector{d.commits}
}

// StartAll starts every registered processor in turn, stopping at the
// first error.
func (d *Dispatcher) StartAll(ctx context.Context) error {
	d.mu.RLock()
	procs := append([]Processor(nil), d.procs...)
	d.mu.RUnlock()

	for _, p := range procs {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("starting processor %q: %w", p.Name(), err)
		}
	}
	return nil
}

// StopAll stops every registered processor, collecting every error
// rather than stopping at the first one, since each processor may hold
// resources (connections, files) that must be released regardless of a
// sibling's failure.
func (d *Dispatcher) StopAll(ctx context.Context) error {
	d.mu.RLock()
	procs := append([]Processor(nil), d.procs...)
	d.mu.RUnlock()

	var errs []error
	for _, p := range procs {
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping processor %q: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch sends t to every currently-registered processor concurrently
// and waits for all of them. It returns the first non-nil error seen,
// having already removed any processor responsible for one (unless
// that error is a context cancellation).
func (d *Dispatcher) Dispatch(ctx context.Context, t txn.Transaction) error {
	d.mu.RLock()
	procs := append([]Processor(nil), d.procs...)
	d.mu.RUnlock()

	if len(procs) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		failed   = make(map[string]bool)
	)

	for _, p := range procs {
		p := p
		wg.Add(1)

		go func() {
			defer wg.Done()

			if d.sem != nil {
				if err := d.sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				defer d.sem.Release(1)
			}

			err := d.runCommit(ctx, p, t)
			if err == nil {
				d.commits.WithLabelValues(p.Name(), "ok").Inc()
				return
			}

			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			if !isCancellation(err) {
				failed[p.Name()] = true
			}
			mu.Unlock()

			if isCancellation(err) {
				d.commits.WithLabelValues(p.Name(), "cancelled").Inc()
			} else {
				d.commits.WithLabelValues(p.Name(), "error").Inc()
				liblog.ErrorLevel.Log("processor commit failed, removing from pipeline", liblog.Fields{
					"processor": p.Name(),
					"error":     err.Error(),
				})
			}
		}()
	}

	wg.Wait()

	if len(failed) > 0 {
		d.removeByName(failed)
	}

	return firstErr
}

// runCommit invokes p.Commit, converting a panic into an error so one
// misbehaving processor cannot bring down the whole dispatch.
func (d *Dispatcher) runCommit(ctx context.Context, p Processor, t txn.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrProcessorPanic.Error(fmt.Errorf("%v", r))
		}
	}()
	return p.Commit(ctx, t)
}

func (d *Dispatcher) removeByName(dead map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.procs[:0:0]
	for _, p := range d.procs {
		if !dead[p.Name()] {
			kept = append(kept, p)
		}
	}
	d.procs = kept
}

// Processors returns a snapshot of the currently-registered processors.
func (d *Dispatcher) Processors() []Processor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Processor(nil), d.procs...)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
