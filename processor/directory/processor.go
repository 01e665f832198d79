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

// Package directory reconciles a remote channel directory against the
// union of live records announced by every connected IOC, grounded on
// cfstore.py's CFProcessor/__updateCF__.
package directory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/nabbar/recsync/directoryclient"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// bootstrapGroup dedupes concurrent property-schema provisioning across
// Processor instances sharing a name, so a restart racing a still-
// draining shutdown issues one round of schema calls, not two.
var bootstrapGroup singleflight.Group

const (
	infoHostname = "HOSTNAME"
	infoIocName  = "IOCNAME"
	infoEngineer = "ENGINEER"
	infoCfUser   = "CF_USERNAME"
)

// Processor is a stateful pipeline.Processor reconciling one directory
// service instance. Start, Stop and Commit all run under the same
// lock, matching cfstore.py's single DeferredLock serializing every
// operation against the processor's in-memory state.
type Processor struct {
	name   string
	client directoryclient.Client
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	iocs    map[string]*iocInfo
	owners  ownerStack
	managed map[string]struct{}

	reconcileDuration prometheus.Histogram
}

// New builds a Processor. now defaults to time.Now when nil.
func New(name string, client directoryclient.Client, cfg Config, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{
		name:   name,
		client: client,
		cfg:    cfg,
		now:    now,
		iocs:   make(map[string]*iocInfo),
		owners: make(ownerStack),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recsync_directory_reconcile_duration_seconds",
			Help:    "Time spent reconciling one IOC's channel set against the directory service, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Collectors returns the processor's prometheus collectors for
// registration against a registry.
func (p *Processor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.reconcileDuration}
}

func (p *Processor) lock()   { p.mu.Lock() }
func (p *Processor) unlock() { p.mu.Unlock() }

func (p *Processor) Name() string { return p.name }

// Start fetches the directory's current property schema, creates
// whatever required or whitelisted property this instance needs that
// does not already exist, and runs clean() when configured to.
func (p *Processor) Start(ctx context.Context) error {
	p.lock()
	defer p.unlock()

	p.managed = p.cfg.managedProperties()

	_, err, _ := bootstrapGroup.Do(p.name, func() (interface{}, error) {
		return nil, p.provisionSchema(ctx)
	})
	if err != nil {
		return err
	}

	if p.cfg.CleanOnStart {
		return p.clean(ctx, false)
	}
	return nil
}

// provisionSchema creates whichever managed or whitelisted property is
// still missing from the directory's schema.
func (p *Processor) provisionSchema(ctx context.Context) error {
	existing, e := p.client.GetAllProperties(ctx)
	if e != nil {
		return ErrStartup.Error(e)
	}
	have := make(map[string]struct{}, len(existing))
	for _, prop := range existing {
		have[prop.Name] = struct{}{}
	}

	for name := range p.managed {
		if _, ok := have[name]; ok {
			continue
		}
		if e = p.client.SetProperty(ctx, directoryclient.Property{Name: name, Owner: p.cfg.Username}); e != nil {
			return ErrStartup.Error(e)
		}
	}
	return nil
}

// Stop runs clean() one last time when configured to, under the same
// lock Commit and Start use.
func (p *Processor) Stop(ctx context.Context) error {
	p.lock()
	defer p.unlock()

	if p.cfg.CleanOnStop {
		return p.clean(ctx, true)
	}
	return nil
}

// clean marks every channel this recceiverID still shows as Active
// Inactive, paging through results, retrying transport errors with a
// capped exponential backoff. When stopping is true a bounded number of
// retries is allowed before giving up, matching cfstore.py's
// clean_service "abandon after retry_limit while not running" escape
// hatch; during Start, retries continue until success or ctx
// cancellation.
func (p *Processor) clean(ctx context.Context, stopping bool) error {
	const giveUpAttempts = 5
	b := newBackoff()
	attempts := 0

	for {
		channels, e := p.client.FindByArgs(ctx, p.activeFindArgs())
		if e == nil {
			if len(channels) == 0 {
				return nil
			}
			names := make([]string, 0, len(channels))
			for _, ch := range channels {
				names = append(names, ch.Name)
			}
			if e = p.client.UpdateProperty(ctx, directoryclient.Property{Name: propPvStatus, Owner: p.cfg.Username, Value: statusInactive}, names); e == nil {
				continue
			}
		}

		liblog.ErrorLevel.Log("directory clean failed", liblog.Fields{"processor": p.name, "error": e.Error()})
		attempts++
		if stopping && attempts >= giveUpAttempts {
			liblog.InfoLevel.Log("abandoning directory clean", liblog.Fields{"processor": p.name, "attempts": attempts})
			return nil
		}
		if werr := b.wait(ctx); werr != nil {
			return nil
		}
	}
}

func (p *Processor) activeFindArgs() []directoryclient.FindArg {
	args := []directoryclient.FindArg{
		{Key: propPvStatus, Value: statusActive},
		{Key: propRecceiverID, Value: p.cfg.RecceiverID},
	}
	if a, ok := sizeArg(p.cfg.FindSizeLimit); ok {
		args = append(args, a)
	}
	return args
}

// sizeArg builds the "~size" find constraint, included only when a
// positive limit is configured.
func sizeArg(limit int) (directoryclient.FindArg, bool) {
	if limit <= 0 {
		return directoryclient.FindArg{}, false
	}
	return directoryclient.FindArg{Key: "~size", Value: strconv.Itoa(limit)}, true
}

// Commit derives this transaction's IOC context, materializes its
// record set, updates the in-memory ownership bookkeeping, then
// reconciles the remote directory under a retry-with-backoff loop.
func (p *Processor) Commit(ctx context.Context, t txn.Transaction) error {
	p.lock()
	defer p.unlock()

	src := t.Source()
	iocid := src.IocID()
	infos := t.ClientInfos()

	iocName := infos[infoIocName]
	if iocName == "" {
		iocName = strconv.Itoa(int(src.Port))
	}
	hostName := infos[infoHostname]
	if hostName == "" {
		hostName = src.Host
	}
	owner := infos[infoEngineer]
	if owner == "" {
		owner = infos[infoCfUser]
	}
	if owner == "" {
		owner = p.cfg.Username
	}
	at := p.now().In(p.cfg.location()).Format(time.RFC3339)

	info, known := p.iocs[iocid]
	if !known || t.Initial() {
		info = newIocInfo(hostName, iocName, src.Host, owner, at)
		p.iocs[iocid] = info
	}

	byName := p.buildPVInfo(t, infos, owner)

	deleted := make(map[string]struct{})
	for rid := range t.RecordsToDelete() {
		if names, ok := info.recNames[rid]; ok {
			for _, n := range names {
				deleted[n] = struct{}{}
			}
			delete(info.recNames, rid)
		}
	}
	if !t.Connected() {
		for rid, names := range info.recNames {
			for _, n := range names {
				deleted[n] = struct{}{}
			}
			delete(info.recNames, rid)
		}
	}

	for name, rw := range byName {
		names := append([]string{name}, rw.Aliases...)
		info.recNames[rw.RecID] = names
		for _, n := range names {
			p.owners.push(n, iocid)
		}
	}
	for name := range deleted {
		p.owners.pop(name, iocid)
	}

	// Every name removed from recNames above was also popped from
	// p.owners, so once an IOC's channel count reaches zero it can no
	// longer be consulted as a previous owner; discard its bookkeeping
	// entry instead of growing p.iocs forever across a long-running
	// server's lifetime.
	if len(info.recNames) == 0 {
		delete(p.iocs, iocid)
	}

	start := p.now()
	err := p.pollUpdateDirectory(ctx, byName, deleted, hostName, iocName, src.Host, iocid, owner, at)
	p.reconcileDuration.Observe(p.now().Sub(start).Seconds())
	return err
}

// pollUpdateDirectory retries updateDirectory on transport errors with
// the 1.0x1.5^n-capped-60s schedule, matching cfstore.py's poll().
func (p *Processor) pollUpdateDirectory(ctx context.Context, byName map[string]*recordWork, deleted map[string]struct{}, hostName, iocName, iocIP, iocid, owner, at string) error {
	b := newBackoff()
	for {
		err := p.updateDirectory(ctx, byName, deleted, hostName, iocName, iocIP, iocid, owner, at)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		liblog.ErrorLevel.Log("directory update failed, retrying", liblog.Fields{"processor": p.name, "iocid": iocid, "error": err.Error()})
		if werr := b.wait(ctx); werr != nil {
			return werr
		}
	}
}
