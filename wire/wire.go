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

// Package wire packs and unpacks the fixed-layout big-endian frames of
// the record-sync protocol: the 16-byte UDP announce frame and the
// 8-byte-header TCP messages. It performs no I/O of its own.
package wire

import (
	"encoding/binary"
	"net"

	liberr "github.com/nabbar/recsync/errors"
)

// Magic is the fixed 2-byte prefix of every frame, announce or TCP.
const Magic uint16 = 0x5243

// ServerBit, set on msgid, marks a server-origin TCP message.
const ServerBit uint16 = 0x8000

// TCP message identifiers (§6.1).
const (
	MsgServerGreet  uint16 = 0x8001
	MsgClientGreet  uint16 = 0x0001
	MsgServerPing   uint16 = 0x8002
	MsgClientPong   uint16 = 0x0002
	MsgClientRecord uint16 = 0x0003
	MsgClientDel    uint16 = 0x0004
	MsgClientDone   uint16 = 0x0005
	MsgClientInfo   uint16 = 0x0006
)

// RecordSubtype values for MsgClientRecord's subtype field.
const (
	RecordNew   uint8 = 0
	RecordAlias uint8 = 1
)

// HeaderLen is the length in bytes of the fixed TCP message header.
const HeaderLen = 8

// AnnounceLen is the length in bytes of the UDP announce frame.
const AnnounceLen = 16

// Header is the decoded 8-byte TCP frame header.
type Header struct {
	Magic   uint16
	MsgID   uint16
	BodyLen uint32
}

// IsServerOrigin reports whether MsgID has the server-direction bit set.
func (h Header) IsServerOrigin() bool {
	return h.MsgID&ServerBit != 0
}

// EncodeHeader appends the 8-byte header for msgid with the given body
// length to dst and returns the extended slice.
func EncodeHeader(dst []byte, msgid uint16, bodyLen uint32) []byte {
	var b [HeaderLen]byte
	binary.BigEndian.PutUint16(b[0:2], Magic)
	binary.BigEndian.PutUint16(b[2:4], msgid)
	binary.BigEndian.PutUint32(b[4:8], bodyLen)
	return append(dst, b[:]...)
}

// DecodeHeader parses the first 8 bytes of b as a Header. It returns a
// ProtocolError if b is short or the magic does not match.
func DecodeHeader(b []byte) (Header, liberr.Error) {
	if len(b) < HeaderLen {
		return Header{}, ErrTruncated.Error(nil)
	}
	h := Header{
		Magic:   binary.BigEndian.Uint16(b[0:2]),
		MsgID:   binary.BigEndian.Uint16(b[2:4]),
		BodyLen: binary.BigEndian.Uint32(b[4:8]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic.Error(nil)
	}
	return h, nil
}

// EncodeAnnounce packs the 16-byte UDP announce frame: magic, reserved
// zero u16, the 4-byte IPv4 address, the TCP port, a reserved u16, and
// the 32-bit server key.
func EncodeAnnounce(addr net.IP, tcpPort uint16, serverKey uint32) ([]byte, liberr.Error) {
	v4 := addr.To4()
	if v4 == nil {
		return nil, ErrBadAddress.Error(nil)
	}

	b := make([]byte, AnnounceLen)
	binary.BigEndian.PutUint16(b[0:2], Magic)
	binary.BigEndian.PutUint16(b[2:4], 0)
	copy(b[4:8], v4)
	binary.BigEndian.PutUint16(b[8:10], tcpPort)
	binary.BigEndian.PutUint16(b[10:12], 0)
	binary.BigEndian.PutUint32(b[12:16], serverKey)
	return b, nil
}

// DecodeAnnounce is the inverse of EncodeAnnounce, used by tests and by
// any conforming client exercising the round-trip law of §8.
func DecodeAnnounce(b []byte) (addr net.IP, tcpPort uint16, serverKey uint32, err liberr.Error) {
	if len(b) < AnnounceLen {
		return nil, 0, 0, ErrTruncated.Error(nil)
	}
	if binary.BigEndian.Uint16(b[0:2]) != Magic {
		return nil, 0, 0, ErrBadMagic.Error(nil)
	}
	addr = net.IPv4(b[4], b[5], b[6], b[7])
	tcpPort = binary.BigEndian.Uint16(b[8:10])
	serverKey = binary.BigEndian.Uint32(b[12:16])
	return addr, tcpPort, serverKey, nil
}
