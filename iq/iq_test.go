// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iq

import (
	"encoding/binary"
	"errors"
	"math"
	"math/cmplx"
	"reflect"
	"testing"

	"github.com/go-lpc/warpnet/param"
)

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		name string
		word uint32
		want complex128
		otr  bool
	}{
		{"zero", 0x00000000, 0, false},
		{"half", Pack(4096, -4096, false, false), complex(0.5, -0.5), false},
		{"min", Pack(minFix, 0, false, false), complex(-1, 0), false},
		{"max", Pack(maxFix, maxFix, false, false), complex(8191.0/8192, 8191.0/8192), false},
		{"otr-i", Pack(maxFix, 0, true, false), complex(8191.0/8192, 0), true},
		{"otr-q", Pack(0, minFix, false, true), complex(0, -1), true},
		{"lsb", 0x00040000, complex(1.0/8192, 0), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw := make([]byte, 4)
			binary.BigEndian.PutUint32(raw, tc.word)
			buf, err := Decode(raw)
			if err != nil {
				t.Fatalf("could not decode: %+v", err)
			}
			if got := buf.Samples[0]; got != tc.want {
				t.Fatalf("invalid sample: got=%v, want=%v", got, tc.want)
			}
			if got := buf.Overrange[0]; got != tc.otr {
				t.Fatalf("invalid overrange flag: got=%v, want=%v", got, tc.otr)
			}
		})
	}

	_, err := Decode(make([]byte, 5))
	if err == nil {
		t.Fatalf("expected an error for a truncated buffer")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	const n = 1024
	samples := make([]complex128, n)
	for i := range samples {
		phi := 2 * math.Pi * float64(i) / 64
		samples[i] = 0.9 * cmplx.Exp(complex(0, phi))
	}
	samples = append(samples, 1, -1, complex(1, -1))

	raw, err := Encode(samples)
	if err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	if got, want := len(raw), WordSize*len(samples); got != want {
		t.Fatalf("invalid raw size: got=%d, want=%d", got, want)
	}

	buf, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	if got, want := buf.Len(), len(samples); got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got := buf.NumOverrange(); got != 0 {
		t.Fatalf("invalid number of overrange samples: got=%d, want=0", got)
	}
	const tol = 1.0 / 8192
	for i, want := range samples {
		got := buf.Samples[i]
		if math.Abs(real(got)-real(want)) > tol || math.Abs(imag(got)-imag(want)) > tol {
			t.Fatalf("invalid sample %d: got=%v, want=%v", i, got, want)
		}
	}
}

func TestRaw(t *testing.T) {
	words := []uint32{
		0,
		Pack(4096, -4096, false, false),
		Pack(maxFix, 0, true, false),
		Pack(0, minFix, false, true),
		Pack(-1, 1, false, false),
	}
	raw := make([]byte, WordSize*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(raw[WordSize*i:], w)
	}
	want, err := Decode(raw)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}

	got, err := Decode(want.Raw())
	if err != nil {
		t.Fatalf("could not decode packed buffer: %+v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid round-trip:\ngot= %v\nwant=%v", got, want)
	}
}

func TestEncodeInvalid(t *testing.T) {
	_, err := Encode([]complex128{0, complex(0, 1.01)})
	if !errors.Is(err, param.ErrRange) {
		t.Fatalf("invalid error: %+v", err)
	}
	_, err = Encode(make([]complex128, param.BufferSize+1))
	if !errors.Is(err, param.ErrCapacity) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestFix(t *testing.T) {
	for _, tc := range []struct {
		v    float64
		want int
	}{
		{0, 0},
		{1, maxFix},
		{-1, minFix},
		{2, maxFix},
		{-2, minFix},
		{0.25, 2048},
	} {
		if got := Fix(tc.v); got != tc.want {
			t.Fatalf("invalid fixed-point value for %v: got=%d, want=%d", tc.v, got, tc.want)
		}
	}
}

func TestRSSI(t *testing.T) {
	vs := []uint16{0, 1, 512, 1023}
	got, err := DecodeRSSI(EncodeRSSI(vs))
	if err != nil {
		t.Fatalf("could not decode RSSI: %+v", err)
	}
	if !reflect.DeepEqual(got, vs) {
		t.Fatalf("invalid RSSI trace: got=%v, want=%v", got, vs)
	}

	got, err = DecodeRSSI([]byte{0xfc, 0x01})
	if err != nil {
		t.Fatalf("could not decode RSSI: %+v", err)
	}
	if got[0] != 1 {
		t.Fatalf("upper bits not masked: got=%d", got[0])
	}

	_, err = DecodeRSSI([]byte{1})
	if err == nil {
		t.Fatalf("expected an error for a truncated trace")
	}
}

func TestStats(t *testing.T) {
	const n = 256
	samples := make([]complex128, n)
	for i := range samples {
		phi := 2 * math.Pi * 8 * float64(i) / n
		samples[i] = 0.5 * cmplx.Exp(complex(0, phi))
	}
	st := Summary(Buffer{Samples: samples, Overrange: make([]bool, n)})
	if st.N != n {
		t.Fatalf("invalid number of samples: got=%d, want=%d", st.N, n)
	}
	if st.PeakBin != 8 {
		t.Fatalf("invalid peak bin: got=%d, want=8", st.PeakBin)
	}
	if want := 20 * math.Log10(0.5); math.Abs(st.Power-want) > 1e-9 {
		t.Fatalf("invalid power: got=%v, want=%v", st.Power, want)
	}
	if math.Abs(st.MeanI) > 1e-12 || math.Abs(st.MeanQ) > 1e-12 {
		t.Fatalf("invalid DC offset: I=%v, Q=%v", st.MeanI, st.MeanQ)
	}

	for i := range samples {
		samples[i] = 0.5 * cmplx.Exp(complex(0, -2*math.Pi*3*float64(i)/n))
	}
	if got := Summary(Buffer{Samples: samples}).PeakBin; got != -3 {
		t.Fatalf("invalid negative peak bin: got=%d, want=-3", got)
	}

	empty := Summary(Buffer{})
	if !math.IsInf(empty.Power, -1) {
		t.Fatalf("invalid power of empty buffer: %v", empty.Power)
	}
}

func TestValid(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []complex128
		want bool
	}{
		{"nil", nil, false},
		{"single", []complex128{1}, false},
		{"constant", []complex128{0.25, 0.25, 0.25}, false},
		{"zeros", make([]complex128, 16), false},
		{"signal-i", []complex128{0.1, -0.1}, true},
		{"signal-q", []complex128{complex(0, 0.1), complex(0, 0.2)}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Valid(tc.data); got != tc.want {
				t.Fatalf("invalid result: got=%v, want=%v", got, tc.want)
			}
		})
	}
}
