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

const pkgName = "recsync/txn"

const (
	// ErrRecIDConflict is raised when a build adds the same RecID to
	// both recordsToAdd and recordsToDelete.
	ErrRecIDConflict liberr.CodeError = iota + liberr.MinPkgTxn
	// ErrDisconnectedWithRecords is raised when a non-connected
	// transaction carries records, aliases or record infos.
	ErrDisconnectedWithRecords
	// ErrEmptySource is raised when Build is called with a zero-value
	// SourceAddress.
	ErrEmptySource
)

func init() {
	if liberr.ExistInMapMessage(ErrRecIDConflict) {
		panic("error code collision in " + pkgName)
	}
	liberr.RegisterIdFctMessage(ErrRecIDConflict, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case liberr.UnknownError:
		return liberr.NullMessage
	case ErrRecIDConflict:
		return "record id is present in both recordsToAdd and recordsToDelete"
	case ErrDisconnectedWithRecords:
		return "a disconnected transaction cannot carry records, aliases or record infos"
	case ErrEmptySource:
		return "transaction source address is empty"
	}
	return liberr.NullMessage
}
