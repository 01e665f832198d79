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
	"encoding/binary"

	liberr "github.com/nabbar/recsync/errors"
)

// ServerGreet is msgid 0x8001: server -> client, advertises the max
// protocol version the server supports.
type ServerGreet struct {
	Version uint8
}

// ClientGreet is msgid 0x0001: client -> server.
type ClientGreet struct {
	ClientVersion uint8
	ClientType    uint8
	ClientKey     uint32
}

func DecodeClientGreet(body []byte) (ClientGreet, liberr.Error) {
	if len(body) < 8 {
		return ClientGreet{}, ErrTruncated.Error(nil)
	}
	return ClientGreet{
		ClientVersion: body[0],
		ClientType:    body[1],
		ClientKey:     binary.BigEndian.Uint32(body[4:8]),
	}, nil
}

// ServerPing is msgid 0x8002: server -> client keepalive probe.
type ServerPing struct {
	Nonce uint32
}

func EncodeServerPing(nonce uint32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, nonce)
	return appendMessage(MsgServerPing, body)
}

// ClientPong is msgid 0x0002: client -> server keepalive reply.
type ClientPong struct {
	Nonce uint32
}

func DecodeClientPong(body []byte) (ClientPong, liberr.Error) {
	if len(body) < 4 {
		return ClientPong{}, ErrTruncated.Error(nil)
	}
	return ClientPong{Nonce: binary.BigEndian.Uint32(body[0:4])}, nil
}

// ClientRecord is msgid 0x0003: add a record or an alias.
type ClientRecord struct {
	RecID   uint32
	Subtype uint8
	Type    string
	Name    string
}

func DecodeClientRecord(body []byte) (ClientRecord, liberr.Error) {
	if len(body) < 8 {
		return ClientRecord{}, ErrTruncated.Error(nil)
	}
	recid := binary.BigEndian.Uint32(body[0:4])
	subtype := body[4]
	typeLen := int(body[5])
	nameLen := int(binary.BigEndian.Uint16(body[6:8]))

	off := 8
	if len(body) < off+typeLen+nameLen {
		return ClientRecord{}, ErrTruncated.Error(nil)
	}

	typ := string(body[off : off+typeLen])
	off += typeLen
	name := string(body[off : off+nameLen])

	return ClientRecord{
		RecID:   recid,
		Subtype: subtype,
		Type:    typ,
		Name:    name,
	}, nil
}

// ClientDel is msgid 0x0004: retract a record.
type ClientDel struct {
	RecID uint32
}

func DecodeClientDel(body []byte) (ClientDel, liberr.Error) {
	if len(body) < 4 {
		return ClientDel{}, ErrTruncated.Error(nil)
	}
	return ClientDel{RecID: binary.BigEndian.Uint32(body[0:4])}, nil
}

// ClientDone is msgid 0x0005: empty body, marks end of an upload burst.
type ClientDone struct{}

// ClientInfo is msgid 0x0006: per-record or IOC-level key/value info.
// RecID == 0 means IOC-level.
type ClientInfo struct {
	RecID uint32
	Key   string
	Value string
}

func DecodeClientInfo(body []byte) (ClientInfo, liberr.Error) {
	if len(body) < 8 {
		return ClientInfo{}, ErrTruncated.Error(nil)
	}
	recid := binary.BigEndian.Uint32(body[0:4])
	keyLen := int(body[4])
	valLen := int(binary.BigEndian.Uint16(body[6:8]))

	off := 8
	if len(body) < off+keyLen+valLen {
		return ClientInfo{}, ErrTruncated.Error(nil)
	}

	key := string(body[off : off+keyLen])
	off += keyLen
	val := string(body[off : off+valLen])

	return ClientInfo{RecID: recid, Key: key, Value: val}, nil
}

func appendMessage(msgid uint16, body []byte) []byte {
	out := EncodeHeader(make([]byte, 0, HeaderLen+len(body)), msgid, uint32(len(body)))
	return append(out, body...)
}

// EncodeClientRecord is provided for test fixtures and for any
// conforming-client helper exercising the round-trip law.
func EncodeClientRecord(m ClientRecord) []byte {
	body := make([]byte, 0, 8+len(m.Type)+len(m.Name))
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], m.RecID)
	hdr[4] = m.Subtype
	hdr[5] = uint8(len(m.Type))
	binary.BigEndian.PutUint16(hdr[6:8], uint16(len(m.Name)))
	body = append(body, hdr[:]...)
	body = append(body, m.Type...)
	body = append(body, m.Name...)
	return appendMessage(MsgClientRecord, body)
}

// EncodeClientInfo mirrors EncodeClientRecord for ClientInfo messages.
func EncodeClientInfo(m ClientInfo) []byte {
	body := make([]byte, 0, 8+len(m.Key)+len(m.Value))
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], m.RecID)
	hdr[4] = uint8(len(m.Key))
	hdr[5] = 0
	binary.BigEndian.PutUint16(hdr[6:8], uint16(len(m.Value)))
	body = append(body, hdr[:]...)
	body = append(body, m.Key...)
	body = append(body, m.Value...)
	return appendMessage(MsgClientInfo, body)
}

// EncodeClientGreet mirrors the others, used by tests that exercise the
// server side of the protocol as if they were the client.
func EncodeClientGreet(m ClientGreet) []byte {
	body := make([]byte, 8)
	body[0] = m.ClientVersion
	body[1] = m.ClientType
	binary.BigEndian.PutUint32(body[4:8], m.ClientKey)
	return appendMessage(MsgClientGreet, body)
}

// EncodeClientPong mirrors the others.
func EncodeClientPong(nonce uint32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, nonce)
	return appendMessage(MsgClientPong, body)
}

// EncodeClientDel mirrors the others.
func EncodeClientDel(recid uint32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, recid)
	return appendMessage(MsgClientDel, body)
}

// EncodeClientDone mirrors the others; the body is empty.
func EncodeClientDone() []byte {
	return appendMessage(MsgClientDone, nil)
}

// EncodeServerGreet packs msgid 0x8001.
func EncodeServerGreet(version uint8) []byte {
	return appendMessage(MsgServerGreet, []byte{version})
}

// DecodeServerGreet is the inverse of EncodeServerGreet.
func DecodeServerGreet(body []byte) (ServerGreet, liberr.Error) {
	if len(body) < 1 {
		return ServerGreet{}, ErrTruncated.Error(nil)
	}
	return ServerGreet{Version: body[0]}, nil
}
