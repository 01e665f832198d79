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
	"github.com/nabbar/recsync/txn"
)

// iocInfo is what the processor remembers about one IOC across
// commits: the context captured on its initial transaction, reused by
// every later non-initial commit from the same source (cfstore.py's
// self.iocs entry).
type iocInfo struct {
	HostName string
	IocName  string
	IocIP    string
	Owner    string
	Time     string
	// recNames maps a RecID this IOC currently owns to the channel names
	// (primary name first, then aliases) it was announced under, so a
	// later delete-by-RecID (the wire protocol only carries RecID on
	// delete) can be turned back into the names the reconciliation
	// algorithm and the owner stack operate on.
	recNames map[txn.RecID][]string
}

func newIocInfo(hostName, iocName, iocIP, owner, at string) *iocInfo {
	return &iocInfo{
		HostName: hostName,
		IocName:  iocName,
		IocIP:    iocIP,
		Owner:    owner,
		Time:     at,
		recNames: make(map[txn.RecID][]string),
	}
}

// ownerStack is the ordered (push-on-add, remove-on-delete) list of
// iocids that have claimed a given channel name, modeling
// "channel_dict" in cfstore.py. The tail is the current effective
// owner; when it is removed the new tail becomes the owner, which is
// how a channel moves back to a previously-known IOC.
type ownerStack map[string][]string

func (s ownerStack) push(name, iocid string) {
	s[name] = append(s[name], iocid)
}

// pop removes one occurrence of iocid from name's stack. Reports
// whether any owner remains after removal.
func (s ownerStack) pop(name, iocid string) (remains bool) {
	list := s[name]
	for i, id := range list {
		if id == iocid {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s, name)
		return false
	}
	s[name] = list
	return true
}

// owner returns the current effective owner iocid for name, if any.
func (s ownerStack) owner(name string) (string, bool) {
	list := s[name]
	if len(list) == 0 {
		return "", false
	}
	return list[len(list)-1], true
}
