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

// Package txn holds the data model shared by every stage downstream of
// the protocol decoder: the source address, the record identifier
// type, and the immutable Transaction a session hands to the pipeline.
package txn

import "fmt"

// RecID is the client-assigned, opaque, per-session record identifier.
type RecID uint32

// SourceAddress is the connected peer, also used as the IOC identifier
// in "host:port" form.
type SourceAddress struct {
	Host string
	Port uint16
}

// IocID renders the canonical "host:port" IOC identifier.
func (s SourceAddress) IocID() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s SourceAddress) String() string {
	return s.IocID()
}

// RecordMeta is a record's name and declared type, as carried in
// recordsToAdd.
type RecordMeta struct {
	Name string
	Type string
}

// Transaction is the unit of commit handed to every processor. It is
// immutable once built: Builder.Build returns a value no caller can
// mutate through the returned Transaction's accessors, since every
// accessor returns a defensive copy of its backing map.
type Transaction struct {
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

func (t Transaction) SrcID() string         { return t.srcid }
func (t Transaction) Source() SourceAddress { return t.source }
func (t Transaction) Initial() bool         { return t.initial }
func (t Transaction) Connected() bool       { return t.connected }

// ClientInfos returns a copy of the session-wide key/value map.
func (t Transaction) ClientInfos() map[string]string {
	return copyStringMap(t.clientInfos)
}

// RecordsToAdd returns a copy of the records introduced or replaced.
func (t Transaction) RecordsToAdd() map[RecID]RecordMeta {
	out := make(map[RecID]RecordMeta, len(t.recordsToAdd))
	for k, v := range t.recordsToAdd {
		out[k] = v
	}
	return out
}

// RecordsToDelete returns a copy of the set of retracted RecIDs.
func (t Transaction) RecordsToDelete() map[RecID]struct{} {
	out := make(map[RecID]struct{}, len(t.recordsToDelete))
	for k := range t.recordsToDelete {
		out[k] = struct{}{}
	}
	return out
}

// Aliases returns a copy of the per-record alias lists.
func (t Transaction) Aliases() map[RecID][]string {
	out := make(map[RecID][]string, len(t.aliases))
	for k, v := range t.aliases {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// RecordInfos returns a copy of the per-record metadata maps.
func (t Transaction) RecordInfos() map[RecID]map[string]string {
	out := make(map[RecID]map[string]string, len(t.recordInfos))
	for k, v := range t.recordInfos {
		out[k] = copyStringMap(v)
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Size is |recordsToAdd| + |recordsToDelete|, the quantity the session
// batcher compares against commitSizeLimit.
func (t Transaction) Size() int {
	return len(t.recordsToAdd) + len(t.recordsToDelete)
}
