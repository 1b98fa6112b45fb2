// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capfile

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/go-lpc/warpnet/internal/crc16"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/param"
	"golang.org/x/xerrors"
)

// Decoder reads (and validates) capture data from an underlying data
// source.
type Decoder struct {
	r io.Reader

	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates data from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// ReadHeader reads the run header.
func (dec *Decoder) ReadHeader(hdr *Header) error {
	dec.crc.Reset()

	var m [4]byte
	dec.read(m[:])
	if dec.err != nil {
		return xerrors.Errorf("capfile: could not read magic: %w", dec.err)
	}
	if m != magic {
		return xerrors.Errorf("capfile: invalid magic (got=%q, want=%q)", m[:], magic[:])
	}

	hdr.Version = dec.readU8()
	if dec.err == nil && hdr.Version != Version {
		return xerrors.Errorf("capfile: unsupported version %d", hdr.Version)
	}
	hdr.Run = dec.readU32()
	hdr.Start = time.Unix(0, int64(dec.readU64())).UTC()
	name := make([]byte, dec.readU16())
	dec.read(name)
	hdr.Plan = string(name)
	hdr.Channel = int(dec.readU8())
	hdr.Capture.Delay = int(dec.readU16())
	hdr.Capture.Length = int(dec.readU16())
	hdr.Capture.Mode = param.Mode(dec.readU8())
	if dec.err != nil {
		return xerrors.Errorf("capfile: could not read header: %w", eof(dec.err))
	}

	err := dec.checkCRC()
	if err != nil {
		return xerrors.Errorf("capfile: invalid header: %w", err)
	}
	return nil
}

// Decode reads the next record.
// Decode returns io.EOF when the stream ends on a record boundary.
func (dec *Decoder) Decode(rec *Record) error {
	dec.crc.Reset()

	v := dec.readU8()
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("capfile: could not read record header marker: %w", dec.err)
	}
	if v != recHeader {
		return xerrors.Errorf("capfile: invalid record header marker (got=0x%x)", v)
	}

	rec.Node = dec.readU16()
	rec.Radio = int(dec.readU8())
	rec.Settle = int(dec.readU32())
	flags := dec.readU8()
	rec.Valid = flags&flagValid != 0

	n := int(dec.readU16())
	if dec.err == nil && n > param.BufferSize {
		return xerrors.Errorf("capfile: node=%d radio %d: invalid number of samples %d", rec.Node, rec.Radio, n)
	}
	raw := make([]byte, iq.WordSize*n)
	dec.read(raw)

	m := int(dec.readU16())
	if dec.err == nil && m > param.BufferSize {
		return xerrors.Errorf("capfile: node=%d radio %d: invalid number of RSSI values %d", rec.Node, rec.Radio, m)
	}
	rec.RSSI = make([]uint16, m)
	for i := range rec.RSSI {
		rec.RSSI[i] = dec.readU16()
	}

	v = dec.readU8()
	if dec.err != nil {
		return xerrors.Errorf("capfile: could not read record of node=%d radio %d: %w", rec.Node, rec.Radio, eof(dec.err))
	}
	if v != recTrailer {
		return xerrors.Errorf("capfile: node=%d radio %d: invalid record trailer marker (got=0x%x)", rec.Node, rec.Radio, v)
	}

	err := dec.checkCRC()
	if err != nil {
		return xerrors.Errorf("capfile: node=%d radio %d: %w", rec.Node, rec.Radio, err)
	}

	rec.Samples, err = iq.Decode(raw)
	if err != nil {
		return xerrors.Errorf("capfile: node=%d radio %d: could not decode samples: %w", rec.Node, rec.Radio, err)
	}
	return nil
}

func (dec *Decoder) checkCRC() error {
	want := dec.crc.Sum16()
	dec.load(2)
	if dec.err != nil {
		return xerrors.Errorf("could not read CRC-16: %w", eof(dec.err))
	}
	got := binary.BigEndian.Uint16(dec.buf[:2])
	if got != want {
		return xerrors.Errorf("inconsistent CRC-16: got=0x%04x, want=0x%04x", got, want)
	}
	return nil
}

func eof(err error) error {
	if xerrors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// load reads n bytes into the scratch buffer, without updating the
// checksum.
func (dec *Decoder) load(n int) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
	_, _ = dec.crc.Write(p) // can not fail.
}

func (dec *Decoder) readU8() uint8 {
	dec.read(dec.buf[:1])
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	dec.read(dec.buf[:2])
	return binary.BigEndian.Uint16(dec.buf[:2])
}

func (dec *Decoder) readU32() uint32 {
	dec.read(dec.buf[:4])
	return binary.BigEndian.Uint32(dec.buf[:4])
}

func (dec *Decoder) readU64() uint64 {
	dec.read(dec.buf[:8])
	return binary.BigEndian.Uint64(dec.buf[:8])
}
