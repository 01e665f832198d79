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
	"bufio"
	"io"

	liberr "github.com/nabbar/recsync/errors"
)

// Frame is one decoded TCP message: its header and raw body bytes.
type Frame struct {
	Header Header
	Body   []byte
}

// Reader pulls successive Frames off a stream, enforcing magic and
// message-direction rules. expectServer is true when the reader is
// decoding frames a server would emit (used by test clients); a real
// server-side Reader expects client-origin messages only.
type Reader struct {
	r            *bufio.Reader
	expectServer bool
}

// NewReader wraps r. expectServerOrigin selects which direction bit is
// required on decoded frames (false: server expects client messages).
func NewReader(r io.Reader, expectServerOrigin bool) *Reader {
	return &Reader{r: bufio.NewReader(r), expectServer: expectServerOrigin}
}

// ReadFrame reads one header + body. Per §4.1: a bodyLen shorter than a
// known message's fixed prefix is tolerated (body is returned as-is,
// short); a bodyLen longer than expected is also tolerated — the caller
// decodes the fixed prefix and ignores the trailer. Truncated reads from
// the underlying stream (not enough bytes available) are a protocol
// error since that indicates a broken connection, not a forward-compatible
// extension.
func (rd *Reader) ReadFrame() (Frame, liberr.Error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		return Frame{}, ErrTruncated.Error(err)
	}

	h, e := DecodeHeader(hdr[:])
	if e != nil {
		return Frame{}, e
	}

	if h.IsServerOrigin() != rd.expectServer {
		return Frame{}, ErrWrongDirection.Error(nil)
	}

	body := make([]byte, h.BodyLen)
	if h.BodyLen > 0 {
		if _, err := io.ReadFull(rd.r, body); err != nil {
			return Frame{}, ErrTruncated.Error(err)
		}
	}

	return Frame{Header: h, Body: body}, nil
}
