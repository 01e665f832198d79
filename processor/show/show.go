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

// Package show is a diagnostic Processor that renders every committed
// Transaction as a sequence of db_load_records-style lines, the way an
// operator would read them off a console.
package show

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	liblog "github.com/nabbar/recsync/internal/log"
	"github.com/nabbar/recsync/txn"
)

// Processor prints every commit it receives, serialized by its own
// lock since printing is ordered output, not parallel work.
type Processor struct {
	name string
	mu   sync.Mutex
}

// New builds a show Processor identified by name in logs.
func New(name string) *Processor {
	return &Processor{name: name}
}

func (p *Processor) Name() string { return p.name }

func (p *Processor) Start(ctx context.Context) error {
	liblog.InfoLevel.Logf("show processor %q starting", p.name)
	return nil
}

func (p *Processor) Stop(ctx context.Context) error {
	liblog.InfoLevel.Logf("show processor %q stopping", p.name)
	return nil
}

// Commit renders t. It never fails: a display processor has nothing to
// fail at beyond formatting, and a formatting bug should not take down
// the pipeline.
func (p *Processor) Commit(ctx context.Context, t txn.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# Show processor %q commit\n", p.name)
	fmt.Fprintf(&b, "# From %s\n", t.Source().String())
	if !t.Connected() {
		b.WriteString("#  connection lost\n")
	}

	infos := t.ClientInfos()
	keys := make([]string, 0, len(infos))
	for k := range infos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " epicsEnvSet(\"%s\",\"%s\")\n", k, infos[k])
	}

	recs := t.RecordsToAdd()
	ids := make([]txn.RecID, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	aliases := t.Aliases()
	recInfos := t.RecordInfos()

	for _, id := range ids {
		meta := recs[id]
		fmt.Fprintf(&b, " record(%s, \"%s\") {\n", meta.Type, meta.Name)
		for _, alias := range aliases[id] {
			fmt.Fprintf(&b, "  alias(\"%s\")\n", alias)
		}
		infoKeys := make([]string, 0, len(recInfos[id]))
		for k := range recInfos[id] {
			infoKeys = append(infoKeys, k)
		}
		sort.Strings(infoKeys)
		for _, k := range infoKeys {
			fmt.Fprintf(&b, "  info(%s,\"%s\")\n", k, recInfos[id][k])
		}
		b.WriteString(" }\n")
	}

	for id := range t.RecordsToDelete() {
		fmt.Fprintf(&b, " # delete record id %d\n", id)
	}

	b.WriteString("# End")
	liblog.InfoLevel.Log(b.String(), nil)
	return nil
}
