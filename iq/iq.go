// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iq converts between complex samples and the packed fixed-point
// IQ words stored in node sample buffers.
//
// A sample is a 32-bit big-endian word. The in-phase lane occupies bits
// 31..16 and the quadrature lane bits 15..0. Each 16-bit lane holds a
// 14-bit two's complement value with 13 fractional bits in its bits 15..2
// and an out-of-range (saturation) flag in its bit 0.
package iq // import "github.com/go-lpc/warpnet/iq"

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-lpc/warpnet/param"
)

const (
	// WordSize is the size of a packed sample, in bytes.
	WordSize = 4
	// RSSISize is the size of a packed RSSI value, in bytes.
	RSSISize = 2
	// RSSIDecimation is the number of IQ samples per RSSI value.
	RSSIDecimation = 4

	scale  = 1 << 13
	minFix = -1 << 13
	maxFix = 1<<13 - 1

	otrBit   = 0x1
	rssiMask = 0x3ff
)

// Buffer holds decoded samples and their overrange flags.
// Overrange[i] is set when the I or Q lane of sample i saturated.
type Buffer struct {
	Samples   []complex128
	Overrange []bool
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int { return len(b.Samples) }

// NumOverrange returns the number of saturated samples.
func (b Buffer) NumOverrange() int {
	n := 0
	for _, v := range b.Overrange {
		if v {
			n++
		}
	}
	return n
}

// Raw packs the samples of b back into raw sample words.
// An overrange sample has the out-of-range flag of both lanes set.
func (b Buffer) Raw() []byte {
	raw := make([]byte, WordSize*len(b.Samples))
	for i, v := range b.Samples {
		otr := i < len(b.Overrange) && b.Overrange[i]
		w := Pack(Fix(real(v)), Fix(imag(v)), otr, otr)
		binary.BigEndian.PutUint32(raw[WordSize*i:], w)
	}
	return raw
}

// Decode unpacks raw sample words.
func Decode(raw []byte) (Buffer, error) {
	if len(raw)%WordSize != 0 {
		return Buffer{}, fmt.Errorf("iq: raw buffer of %d bytes is not a whole number of samples", len(raw))
	}
	n := len(raw) / WordSize
	buf := Buffer{
		Samples:   make([]complex128, n),
		Overrange: make([]bool, n),
	}
	for i := range buf.Samples {
		w := binary.BigEndian.Uint32(raw[WordSize*i:])
		re, otrI := decodeLane(uint16(w >> 16))
		im, otrQ := decodeLane(uint16(w))
		buf.Samples[i] = complex(re, im)
		buf.Overrange[i] = otrI || otrQ
	}
	return buf, nil
}

func decodeLane(v uint16) (float64, bool) {
	fix := int16(v) >> 2
	return float64(fix) / scale, v&otrBit != 0
}

// Encode packs samples into raw sample words.
// Samples are validated first: each real and imaginary part must lie in
// [-1, 1]. The value +1 saturates to the largest representable value.
func Encode(samples []complex128) ([]byte, error) {
	err := param.ValidateSamples(samples)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, WordSize*len(samples))
	for i, v := range samples {
		w := uint32(encodeLane(real(v)))<<16 | uint32(encodeLane(imag(v)))
		binary.BigEndian.PutUint32(raw[WordSize*i:], w)
	}
	return raw, nil
}

func encodeLane(v float64) uint16 {
	return uint16(int16(Fix(v)) << 2)
}

// Fix returns the 14-bit fixed-point value of v, saturated to the
// representable range.
func Fix(v float64) int {
	fix := int(math.Round(v * scale))
	switch {
	case fix < minFix:
		return minFix
	case fix > maxFix:
		return maxFix
	}
	return fix
}

// Pack packs a fixed-point IQ pair and its out-of-range flags into a
// sample word.
func Pack(i, q int, otrI, otrQ bool) uint32 {
	lane := func(v int, otr bool) uint32 {
		w := uint32(uint16(int16(v) << 2))
		if otr {
			w |= otrBit
		}
		return w
	}
	return lane(i, otrI)<<16 | lane(q, otrQ)
}

// DecodeRSSI unpacks a raw RSSI trace.
// Each value is a 16-bit big-endian word holding a 10-bit RSSI reading.
func DecodeRSSI(raw []byte) ([]uint16, error) {
	if len(raw)%RSSISize != 0 {
		return nil, fmt.Errorf("iq: raw RSSI trace of %d bytes is not a whole number of values", len(raw))
	}
	vs := make([]uint16, len(raw)/RSSISize)
	for i := range vs {
		vs[i] = binary.BigEndian.Uint16(raw[RSSISize*i:]) & rssiMask
	}
	return vs, nil
}

// EncodeRSSI packs an RSSI trace.
func EncodeRSSI(vs []uint16) []byte {
	raw := make([]byte, RSSISize*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint16(raw[RSSISize*i:], v&rssiMask)
	}
	return raw
}
