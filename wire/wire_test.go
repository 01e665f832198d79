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

package wire_test

import (
	"bytes"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/recsync/wire"
)

var _ = Describe("Announce frame", func() {
	It("round-trips address, port and server key", func() {
		b, err := wire.EncodeAnnounce(net.IPv4(10, 0, 0, 5), 5075, 0xdeadbeef)
		Expect(err).To(BeNil())
		Expect(b).To(HaveLen(wire.AnnounceLen))

		addr, port, key, derr := wire.DecodeAnnounce(b)
		Expect(derr).To(BeNil())
		Expect(addr.Equal(net.IPv4(10, 0, 0, 5))).To(BeTrue())
		Expect(port).To(Equal(uint16(5075)))
		Expect(key).To(Equal(uint32(0xdeadbeef)))
	})

	It("rejects a non-IPv4 address", func() {
		_, err := wire.EncodeAnnounce(net.ParseIP("::1"), 1, 1)
		Expect(err).ToNot(BeNil())
	})
})

var _ = Describe("TCP header", func() {
	It("encodes exactly 8 bytes plus body length", func() {
		msg := wire.EncodeClientDel(42)
		Expect(msg).To(HaveLen(wire.HeaderLen + 4))
	})

	It("round-trips a ClientRecord message", func() {
		msg := wire.EncodeClientRecord(wire.ClientRecord{
			RecID: 7, Subtype: wire.RecordNew, Type: "ai", Name: "TEST:PV1",
		})

		rd := wire.NewReader(bytes.NewReader(msg), false)
		frame, err := rd.ReadFrame()
		Expect(err).To(BeNil())
		Expect(frame.Header.MsgID).To(Equal(wire.MsgClientRecord))

		rec, derr := wire.DecodeClientRecord(frame.Body)
		Expect(derr).To(BeNil())
		Expect(rec.RecID).To(Equal(uint32(7)))
		Expect(rec.Type).To(Equal("ai"))
		Expect(rec.Name).To(Equal("TEST:PV1"))
	})

	It("round-trips a ClientInfo message, including IOC-level (recid=0)", func() {
		msg := wire.EncodeClientInfo(wire.ClientInfo{RecID: 0, Key: "HOSTNAME", Value: "ioc1.local"})

		rd := wire.NewReader(bytes.NewReader(msg), false)
		frame, err := rd.ReadFrame()
		Expect(err).To(BeNil())

		info, derr := wire.DecodeClientInfo(frame.Body)
		Expect(derr).To(BeNil())
		Expect(info.RecID).To(Equal(uint32(0)))
		Expect(info.Key).To(Equal("HOSTNAME"))
		Expect(info.Value).To(Equal("ioc1.local"))
	})

	It("rejects a bad magic", func() {
		bad := []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
		_, err := wire.DecodeHeader(bad)
		Expect(err).ToNot(BeNil())
		Expect(err.HasCode(wire.ErrBadMagic)).To(BeTrue())
	})

	It("rejects a server-origin frame read by a server-direction reader", func() {
		msg := wire.EncodeServerPing(1)
		rd := wire.NewReader(bytes.NewReader(msg), false)
		_, err := rd.ReadFrame()
		Expect(err).ToNot(BeNil())
		Expect(err.HasCode(wire.ErrWrongDirection)).To(BeTrue())
	})

	It("tolerates a truncated-but-present body shorter than a fixed prefix by reporting per-message truncation, not connection failure", func() {
		// ClientDel expects 4 bytes; this frame correctly announces only 2.
		body := []byte{0x00, 0x2a}
		var full bytes.Buffer
		full.Write(wire.EncodeHeader(nil, wire.MsgClientDel, 2))
		full.Write(body)

		rd := wire.NewReader(&full, false)
		frame, err := rd.ReadFrame()
		Expect(err).To(BeNil())

		_, derr := wire.DecodeClientDel(frame.Body)
		Expect(derr).ToNot(BeNil())
		Expect(derr.HasCode(wire.ErrTruncated)).To(BeTrue())
	})
})
