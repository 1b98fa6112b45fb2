// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/warpnet/internal/crc16"
	"golang.org/x/xerrors"
)

var (
	// ErrCRC is returned when a packet trailer does not match its content.
	ErrCRC = errors.New("wire: inconsistent CRC-16")
	// ErrPayload is returned when a payload can not be parsed.
	ErrPayload = errors.New("wire: malformed payload")
)

// Packet is a command, acknowledgment or sync packet.
type Packet struct {
	Kind    Kind
	Node    uint16
	Seq     uint32
	Payload []byte
}

func (p Packet) String() string {
	return fmt.Sprintf("%v{node=%d, seq=%d, len=%d}", p.Kind, p.Node, p.Seq, len(p.Payload))
}

// MarshalBinary encodes p into its wire representation.
func (p *Packet) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(p.Payload)+TrailerSize))
	err := NewEncoder(buf).Encode(p)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a single packet from raw.
// Trailing bytes after the CRC-16 trailer are an error.
func (p *Packet) UnmarshalBinary(raw []byte) error {
	r := bytes.NewReader(raw)
	err := NewDecoder(r).Decode(p)
	if err != nil {
		return err
	}
	if n := r.Len(); n != 0 {
		return xerrors.Errorf("wire: %d trailing bytes after %v", n, p.Kind)
	}
	return nil
}

// Encoder writes packets to an output stream.
// Encoder computes the CRC-16 checksum on the fly and appends it
// at the end of each packet.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Encode writes p to the stream.
// The whole packet is assembled before being written, so that datagram
// transports receive it in a single write.
func (enc *Encoder) Encode(p *Packet) error {
	if len(p.Payload) > MaxPayload {
		return fmt.Errorf("wire: payload too large (%d > %d)", len(p.Payload), MaxPayload)
	}

	enc.crc.Reset()
	enc.buf = enc.buf[:0]
	enc.writeU8(uint8(p.Kind))
	enc.writeU16(p.Node)
	enc.writeU32(p.Seq)
	enc.writeU16(uint16(len(p.Payload)))
	enc.write(p.Payload)
	enc.writeU16(enc.crc.Sum16())

	if enc.err != nil {
		return enc.err
	}
	_, err := enc.w.Write(enc.buf)
	if err != nil {
		enc.err = err
		return fmt.Errorf("wire: could not write %v packet: %w", p.Kind, err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	enc.buf = append(enc.buf, p...)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.write([]byte{v})
}

func (enc *Encoder) writeU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	enc.write(b[:])
}

func (enc *Encoder) writeU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	enc.write(b[:])
}

// Decoder reads (and validates) packets from an underlying data source.
// Decoder computes CRC-16 checksums on the fly.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates packets from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next packet from the stream.
func (dec *Decoder) Decode(p *Packet) error {
	dec.crc.Reset()

	kind := dec.readU8()
	if dec.err != nil {
		return xerrors.Errorf("wire: could not read packet kind: %w", dec.err)
	}
	p.Kind = Kind(kind)
	p.Node = dec.readU16()
	p.Seq = dec.readU32()
	n := int(dec.readU16())
	if dec.err != nil {
		return xerrors.Errorf("wire: could not read %v header: %w", p.Kind, eof(dec.err))
	}

	if cap(p.Payload) < n {
		p.Payload = make([]byte, n)
	}
	p.Payload = p.Payload[:n]
	dec.read(p.Payload)
	if dec.err != nil {
		return xerrors.Errorf("wire: could not read %v payload: %w", p.Kind, eof(dec.err))
	}

	var (
		comp = dec.crc.Sum16()
		recv = dec.readU16()
	)
	if dec.err != nil {
		return xerrors.Errorf("wire: could not read %v CRC-16: %w", p.Kind, eof(dec.err))
	}
	if comp != recv {
		return xerrors.Errorf(
			"wire: %v seq=%d recv=0x%04x comp=0x%04x: %w",
			p.Kind, p.Seq, recv, comp, ErrCRC,
		)
	}
	return nil
}

func eof(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
	if dec.err == nil {
		_, _ = dec.crc.Write(p) // can not fail.
	}
}

func (dec *Decoder) readU8() uint8 {
	dec.load(1)
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	const n = 2
	dec.load(n)
	return binary.BigEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.load(n)
	return binary.BigEndian.Uint32(dec.buf[:n])
}

func (dec *Decoder) load(n int) {
	if cap(dec.buf) < n {
		dec.buf = make([]byte, n)
	}
	dec.buf = dec.buf[:n]
	if dec.err != nil {
		for i := range dec.buf {
			dec.buf[i] = 0
		}
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf)
	if dec.err == nil {
		_, _ = dec.crc.Write(dec.buf) // can not fail.
	}
}
