// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-lpc/warpnet/internal/crc16"
	"github.com/go-lpc/warpnet/param"
)

// Encoder writes capture data to an output stream.
// Encoder computes the CRC-16 checksum of the header and of each record
// on the fly and appends it to the stream.
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

// WriteHeader writes the run header.
// It must be called once, before any record.
func (enc *Encoder) WriteHeader(hdr *Header) error {
	if len(hdr.Plan) > math.MaxUint16 {
		return fmt.Errorf("capfile: plan name too long (%d bytes)", len(hdr.Plan))
	}

	enc.crc.Reset()

	enc.write(magic[:])
	if enc.err != nil {
		return fmt.Errorf("capfile: could not write magic: %w", enc.err)
	}
	enc.writeU8(Version)
	enc.writeU32(hdr.Run)
	enc.writeU64(uint64(hdr.Start.UnixNano()))
	enc.writeU16(uint16(len(hdr.Plan)))
	enc.write([]byte(hdr.Plan))
	enc.writeU8(uint8(hdr.Channel))
	enc.writeU16(uint16(hdr.Capture.Delay))
	enc.writeU16(uint16(hdr.Capture.Length))
	enc.writeU8(uint8(hdr.Capture.Mode))
	enc.writeU16(enc.crc.Sum16())

	if enc.err != nil {
		return fmt.Errorf("capfile: could not write header: %w", enc.err)
	}
	return nil
}

// Encode writes a record to the stream and appends its CRC-16 checksum.
func (enc *Encoder) Encode(rec *Record) error {
	if rec == nil {
		return nil
	}
	if n := rec.Samples.Len(); n > param.BufferSize {
		return fmt.Errorf("capfile: record of node=%d radio %d holds too many samples (%d)", rec.Node, rec.Radio, n)
	}
	if n := len(rec.RSSI); n > param.BufferSize {
		return fmt.Errorf("capfile: record of node=%d radio %d holds too many RSSI values (%d)", rec.Node, rec.Radio, n)
	}

	enc.crc.Reset()

	enc.writeU8(recHeader)
	if enc.err != nil {
		return fmt.Errorf("capfile: could not write record header marker: %w", enc.err)
	}

	var flags uint8
	if rec.Valid {
		flags |= flagValid
	}
	enc.writeU16(rec.Node)
	enc.writeU8(uint8(rec.Radio))
	enc.writeU32(uint32(rec.Settle))
	enc.writeU8(flags)

	enc.writeU16(uint16(rec.Samples.Len()))
	enc.write(rec.Samples.Raw())
	enc.writeU16(uint16(len(rec.RSSI)))
	for _, v := range rec.RSSI {
		enc.writeU16(v)
	}
	enc.writeU8(recTrailer)
	enc.writeU16(enc.crc.Sum16())

	if enc.err != nil {
		return fmt.Errorf("capfile: could not write record of node=%d radio %d: %w", rec.Node, rec.Radio, enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	binary.BigEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) writeU32(v uint32) {
	binary.BigEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *Encoder) writeU64(v uint64) {
	binary.BigEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}
