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
	"github.com/nabbar/recsync/directoryclient"
	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// recordWork is one record materialized from a transaction for this
// commit, collapsed by name (cfstore.py's pvInfoByName entries).
type recordWork struct {
	RecID     txn.RecID
	Type      string
	Aliases   []string
	InfoProps []directoryclient.Property
}

// buildPVInfo materializes recordWork entries from the transaction's
// added records, collapsing duplicate names (warn, keep first) and
// attaching alias lists and whitelisted/env-mapped info properties.
func (p *Processor) buildPVInfo(t txn.Transaction, infos map[string]string, owner string) map[string]*recordWork {
	added := t.RecordsToAdd()
	byName := make(map[string]*recordWork, len(added))
	byRid := make(map[txn.RecID]string, len(added))

	for rid, meta := range added {
		if _, dup := byName[meta.Name]; dup {
			liblog.WarnLevel.Log("duplicate record name in commit, keeping first", liblog.Fields{"processor": p.name, "name": meta.Name})
			continue
		}
		byName[meta.Name] = &recordWork{RecID: rid, Type: meta.Type}
		byRid[rid] = meta.Name
	}

	whitelist := p.cfg.whitelist()
	for rid, kv := range t.RecordInfos() {
		name, ok := byRid[rid]
		if !ok {
			liblog.WarnLevel.Log("recinfo for unknown record id", liblog.Fields{"processor": p.name, "recid": rid})
			continue
		}
		rw := byName[name]
		for tag := range whitelist {
			if v, ok := kv[tag]; ok {
				rw.InfoProps = append(rw.InfoProps, directoryclient.Property{Name: tag, Owner: owner, Value: v})
			}
		}
	}

	for rid, names := range t.Aliases() {
		name, ok := byRid[rid]
		if !ok {
			liblog.WarnLevel.Log("alias for unknown record id", liblog.Fields{"processor": p.name, "recid": rid})
			continue
		}
		byName[name].Aliases = append(byName[name].Aliases, names...)
	}

	envVars := p.cfg.normalizedEnvVars()
	for _, rw := range byName {
		for envVar, propName := range envVars {
			if v, ok := infos[envVar]; ok {
				rw.InfoProps = append(rw.InfoProps, directoryclient.Property{Name: propName, Owner: owner, Value: v})
			}
		}
	}

	return byName
}
