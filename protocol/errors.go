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

package protocol

import (
	liberr "github.com/nabbar/recsync/errors"
)

const pkgName = "recsync/protocol"

const (
	ErrBadGreeting liberr.CodeError = iota + liberr.MinPkgProtocol
	ErrPongMismatch
	ErrKeepaliveTimeout
	ErrIO
)

func init() {
	if liberr.ExistInMapMessage(ErrBadGreeting) {
		panic("error code collision in " + pkgName)
	}
	liberr.RegisterIdFctMessage(ErrBadGreeting, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case liberr.UnknownError:
		return liberr.NullMessage
	case ErrBadGreeting:
		return "client greeting was malformed or of the wrong type"
	case ErrPongMismatch:
		return "client pong nonce did not match the outstanding ping"
	case ErrKeepaliveTimeout:
		return "no pong received before the keepalive deadline"
	case ErrIO:
		return "connection I/O failed"
	}
	return liberr.NullMessage
}
