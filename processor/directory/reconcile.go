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

package directory

import (
	"context"

	"github.com/nabbar/recsync/directoryclient"
)

// updateDirectory is __updateCF__: reconcile the directory service's
// view of one IOC's channels against the record set materialized for
// this commit. It proceeds in phases: diff against the IOC's previously
// known channels, orphan or transfer ownership of anything no longer
// live, look up what remains by name, then merge and write.
//
// Alias channels are themselves ordinary directory channels tagged
// with the same iocid property as their primary record, so — unlike
// cfstore.py, which re-derives alias handling by hand inside the main
// loop — this reconciliation lets phase B's scan over `old` pick up
// alias channels for free, and phase C's existing-channel search
// widens to cover alias names alongside primary names so a
// newly-referenced alias that already exists under a different owner
// merges instead of duplicating.
func (p *Processor) updateDirectory(ctx context.Context, byName map[string]*recordWork, deleted map[string]struct{}, hostName, iocName, iocIP, iocid, owner, at string) error {
	newSet := make(map[string]struct{}, len(byName))
	for name := range byName {
		newSet[name] = struct{}{}
	}

	var channels []directoryclient.Channel

	old, e := p.client.FindByArgs(ctx, []directoryclient.FindArg{{Key: propIocID, Value: iocid}})
	if e != nil {
		return e
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for _, ch := range old {
		_, isDeleted := deleted[ch.Name]
		if len(newSet) == 0 || isDeleted {
			channels = append(channels, p.orphanOrTransfer(ch, iocid, owner, at))
			continue
		}
		if _, stillLive := newSet[ch.Name]; stillLive {
			ch.Properties = mergeProperties(statusProperty(owner, statusActive, at), ch.Properties, p.managed)
			channels = append(channels, ch)
			delete(newSet, ch.Name)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	searchNames := make([]string, 0, len(newSet))
	for n := range newSet {
		searchNames = append(searchNames, n)
		if p.cfg.AliasEnabled {
			searchNames = append(searchNames, byName[n].Aliases...)
		}
	}

	existing, e := p.findExistingByNames(ctx, searchNames)
	if e != nil {
		return e
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for n := range newSet {
		rw := byName[n]

		newProps := standardProperties(owner, at, p.cfg.RecceiverID, hostName, iocName, iocIP, iocid)
		if p.cfg.RecordTypeEnabled && rw.Type != "" {
			newProps = append(newProps, directoryclient.Property{Name: propRecordType, Owner: owner, Value: rw.Type})
		}
		newProps = append(newProps, rw.InfoProps...)

		if exCh, ok := existing[n]; ok {
			exCh.Properties = mergeProperties(newProps, exCh.Properties, p.managed)
			channels = append(channels, exCh)
		} else {
			channels = append(channels, directoryclient.Channel{Name: n, Owner: owner, Properties: newProps})
		}

		if !p.cfg.AliasEnabled || len(rw.Aliases) == 0 {
			continue
		}

		aliasProps := append([]directoryclient.Property{{Name: propAlias, Owner: owner, Value: n}}, newProps...)
		for _, a := range rw.Aliases {
			if exA, ok := existing[a]; ok {
				exA.Properties = mergeProperties(aliasProps, exA.Properties, p.managed)
				channels = append(channels, exA)
			} else {
				channels = append(channels, directoryclient.Channel{Name: a, Owner: owner, Properties: aliasProps})
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return p.writeChunked(ctx, channels)
}

// orphanOrTransfer implements phase B's per-channel decision: hand the
// channel back to the previous owner still on the ownership stack, or
// mark it Inactive when none remains.
func (p *Processor) orphanOrTransfer(ch directoryclient.Channel, iocid, owner, at string) directoryclient.Channel {
	if ownerIocid, ok := p.owners.owner(ch.Name); ok && ownerIocid != iocid {
		if prev, known := p.iocs[ownerIocid]; known {
			newProps := standardProperties(prev.Owner, prev.Time, p.cfg.RecceiverID, prev.HostName, prev.IocName, prev.IocIP, ownerIocid)
			ch.Properties = mergeProperties(newProps, ch.Properties, p.managed)
			return ch
		}
	}
	ch.Properties = mergeProperties(statusProperty(owner, statusInactive, at), ch.Properties, p.managed)
	return ch
}

// findExistingByNames batches name lookups so no single query exceeds
// the 600-character name-alternation budget.
func (p *Processor) findExistingByNames(ctx context.Context, names []string) (map[string]directoryclient.Channel, error) {
	result := make(map[string]directoryclient.Channel)
	if len(names) == 0 {
		return result, nil
	}

	var batches []string
	cur := ""
	for _, n := range names {
		switch {
		case cur == "":
			cur = n
		case len(cur)+1+len(n) < findNameBudget:
			cur = cur + "|" + n
		default:
			batches = append(batches, cur)
			cur = n
		}
	}
	if cur != "" {
		batches = append(batches, cur)
	}

	for _, b := range batches {
		args := []directoryclient.FindArg{{Key: "~name", Value: b}}
		if a, ok := sizeArg(p.cfg.FindSizeLimit); ok {
			args = append(args, a)
		}
		chans, e := p.client.FindByArgs(ctx, args)
		if e != nil {
			return nil, e
		}
		for _, ch := range chans {
			result[ch.Name] = ch
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return result, nil
}

// writeChunked writes accumulated channel changes in groups no larger
// than the configured queryLimit.
func (p *Processor) writeChunked(ctx context.Context, channels []directoryclient.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	chunk := p.cfg.chunkSize()
	for i := 0; i < len(channels); i += chunk {
		end := i + chunk
		if end > len(channels) {
			end = len(channels)
		}
		if e := p.client.SetChannels(ctx, channels[i:end]); e != nil {
			return e
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
