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

package txn

import (
	liberr "github.com/nabbar/recsync/errors"
)

// Builder accumulates the records a session has seen since its last
// commit. A Builder is not safe for concurrent use; the session
// batcher serializes access to it.
type Builder struct {
	srcid           string
	source          SourceAddress
	initial         bool
	connected       bool
	clientInfos     map[string]string
	recordsToAdd    map[RecID]RecordMeta
	recordsToDelete map[RecID]struct{}
	aliases         map[RecID][]string
	recordInfos     map[RecID]map[string]string
}

// NewBuilder starts a Builder for the given source, marking the first
// transaction of a session as initial.
func NewBuilder(srcid string, source SourceAddress, initial, connected bool) *Builder {
	return &Builder{
		srcid:           srcid,
		source:          source,
		initial:         initial,
		connected:       connected,
		clientInfos:     make(map[string]string),
		recordsToAdd:    make(map[RecID]RecordMeta),
		recordsToDelete: make(map[RecID]struct{}),
		aliases:         make(map[RecID][]string),
		recordInfos:     make(map[RecID]map[string]string),
	}
}

// SetClientInfo records one client_info key/value pair, overwriting any
// prior value for the same key.
func (b *Builder) SetClientInfo(key, value string) *Builder {
	b.clientInfos[key] = value
	return b
}

// AddRecord registers a new or replaced record. If id was previously
// marked for deletion in this same builder, the deletion is withdrawn:
// a record announced again before commit is simply kept.
func (b *Builder) AddRecord(id RecID, name, recType string) *Builder {
	delete(b.recordsToDelete, id)
	b.recordsToAdd[id] = RecordMeta{Name: name, Type: recType}
	return b
}

// DeleteRecord marks id for retraction. If id was pending addition in
// this same builder, the addition is withdrawn instead of keeping both.
func (b *Builder) DeleteRecord(id RecID) *Builder {
	delete(b.recordsToAdd, id)
	delete(b.aliases, id)
	delete(b.recordInfos, id)
	b.recordsToDelete[id] = struct{}{}
	return b
}

// AddAlias appends alias names for id. Only meaningful for a record
// present in recordsToAdd.
func (b *Builder) AddAlias(id RecID, names ...string) *Builder {
	if _, deleted := b.recordsToDelete[id]; deleted {
		return b
	}
	b.aliases[id] = append(b.aliases[id], names...)
	return b
}

// SetRecordInfo attaches one metadata key/value pair to record id.
// Only meaningful for a record present in recordsToAdd.
func (b *Builder) SetRecordInfo(id RecID, key, value string) *Builder {
	if _, deleted := b.recordsToDelete[id]; deleted {
		return b
	}
	m, ok := b.recordInfos[id]
	if !ok {
		m = make(map[string]string)
		b.recordInfos[id] = m
	}
	m[key] = value
	return b
}

// Empty reports whether the builder has accumulated nothing since its
// creation or last reset.
func (b *Builder) Empty() bool {
	return len(b.clientInfos) == 0 && len(b.recordsToAdd) == 0 && len(b.recordsToDelete) == 0
}

// Initial reports whether the next Build would produce the session's
// first transaction. It is cleared by Reset.
func (b *Builder) Initial() bool {
	return b.initial
}

// Build validates the accumulated state and returns an immutable
// Transaction. The builder is left unchanged and may keep accumulating
// after a successful Build, as the session batcher resets it
// explicitly via Reset right after each successful Build.
func (b *Builder) Build() (Transaction, liberr.Error) {
	if b.source == (SourceAddress{}) {
		return Transaction{}, ErrEmptySource.Error(nil)
	}

	for id := range b.recordsToAdd {
		if _, bad := b.recordsToDelete[id]; bad {
			return Transaction{}, ErrRecIDConflict.Error(nil)
		}
	}

	if !b.connected && (len(b.recordsToAdd) > 0 || len(b.aliases) > 0 || len(b.recordInfos) > 0) {
		return Transaction{}, ErrDisconnectedWithRecords.Error(nil)
	}

	t := Transaction{
		srcid:           b.srcid,
		source:          b.source,
		initial:         b.initial,
		connected:       b.connected,
		clientInfos:     copyStringMap(b.clientInfos),
		recordsToAdd:    make(map[RecID]RecordMeta, len(b.recordsToAdd)),
		recordsToDelete: make(map[RecID]struct{}, len(b.recordsToDelete)),
		aliases:         make(map[RecID][]string, len(b.aliases)),
		recordInfos:     make(map[RecID]map[string]string, len(b.recordInfos)),
	}

	for k, v := range b.recordsToAdd {
		t.recordsToAdd[k] = v
	}
	for k := range b.recordsToDelete {
		t.recordsToDelete[k] = struct{}{}
	}
	for k, v := range b.aliases {
		cp := make([]string, len(v))
		copy(cp, v)
		t.aliases[k] = cp
	}
	for k, v := range b.recordInfos {
		t.recordInfos[k] = copyStringMap(v)
	}

	return t, nil
}

// Reset clears every accumulated record and client info, keeping the
// builder's identity (srcid, source, connected) for reuse
// across the session's subsequent transactions. initial is cleared
// since only the very first transaction of a session is initial.
func (b *Builder) Reset() {
	b.initial = false
	b.clientInfos = make(map[string]string)
	b.recordsToAdd = make(map[RecID]RecordMeta)
	b.recordsToDelete = make(map[RecID]struct{})
	b.aliases = make(map[RecID][]string)
	b.recordInfos = make(map[RecID]map[string]string)
}

// SetConnected updates the connected flag a session reports after its
// greeting handshake completes.
func (b *Builder) SetConnected(connected bool) *Builder {
	b.connected = connected
	return b
}
