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

package wire

import (
	liberr "github.com/nabbar/recsync/errors"
)

const pkgName = "recsync/wire"

const (
	ErrBadMagic liberr.CodeError = iota + liberr.MinPkgWire
	ErrTruncated
	ErrBadAddress
	ErrWrongDirection
)

func init() {
	if liberr.ExistInMapMessage(ErrBadMagic) {
		panic("error code collision in " + pkgName)
	}
	liberr.RegisterIdFctMessage(ErrBadMagic, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case liberr.UnknownError:
		return liberr.NullMessage
	case ErrBadMagic:
		return "frame magic mismatch"
	case ErrTruncated:
		return "frame body shorter than fixed prefix"
	case ErrBadAddress:
		return "address is not a valid IPv4 address"
	case ErrWrongDirection:
		return "message direction bit does not match expected origin"
	}
	return liberr.NullMessage
}
