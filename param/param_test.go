// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"errors"
	"reflect"
	"testing"
)

func TestGainsBijection(t *testing.T) {
	t.Run("tx", func(t *testing.T) {
		for rf := 0; rf <= MaxTxRFGain; rf++ {
			for bb := 0; bb <= MaxTxBBGain; bb++ {
				w, err := EncodeTxGains(rf, bb)
				if err != nil {
					t.Fatalf("could not encode tx gains (rf=%d, bb=%d): %+v", rf, bb, err)
				}
				if got, want := w, uint32(rf+bb*65536); got != want {
					t.Fatalf("invalid tx gains wire value: got=0x%x, want=0x%x", got, want)
				}
				grf, gbb := DecodeGains(w)
				if grf != rf || gbb != bb {
					t.Fatalf("invalid tx gains round-trip: got=(%d,%d), want=(%d,%d)", grf, gbb, rf, bb)
				}
			}
		}
	})

	t.Run("rx", func(t *testing.T) {
		for rf := MinRxRFGain; rf <= MaxRxRFGain; rf++ {
			for bb := 0; bb <= MaxRxBBGain; bb++ {
				w, err := EncodeRxGains(rf, bb)
				if err != nil {
					t.Fatalf("could not encode rx gains (rf=%d, bb=%d): %+v", rf, bb, err)
				}
				grf, gbb := DecodeGains(w)
				if grf != rf || gbb != bb {
					t.Fatalf("invalid rx gains round-trip: got=(%d,%d), want=(%d,%d)", grf, gbb, rf, bb)
				}
			}
		}
	})
}

func TestGainsRange(t *testing.T) {
	for _, tc := range []struct {
		name string
		enc  func(rf, bb int) (uint32, error)
		rf   int
		bb   int
	}{
		{"tx-rf-neg", EncodeTxGains, -1, 0},
		{"tx-rf-high", EncodeTxGains, 64, 0},
		{"tx-bb-high", EncodeTxGains, 0, 4},
		{"rx-rf-zero", EncodeRxGains, 0, 0},
		{"rx-rf-high", EncodeRxGains, 4, 0},
		{"rx-bb-high", EncodeRxGains, 1, 32},
		{"rx-bb-neg", EncodeRxGains, 1, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.enc(tc.rf, tc.bb)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, ErrRange) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrRange)
			}
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("error is not a configuration error: %T", err)
			}
		})
	}
}

func TestThresholdsBijection(t *testing.T) {
	for lo := MinThreshold; lo <= MaxThreshold; lo += 7 {
		for md := lo + 1; md <= MaxThreshold; md += 11 {
			for hi := md + 1; hi <= MaxThreshold; hi += 13 {
				th := Thresholds{Low: lo, Mid: md, High: hi}
				w, err := EncodeThresholds(th)
				if err != nil {
					t.Fatalf("could not encode %+v: %+v", th, err)
				}
				if got, want := DecodeThresholds(w), th; got != want {
					t.Fatalf("invalid round-trip: got=%+v, want=%+v", got, want)
				}
			}
		}
	}
}

func TestThresholdsWire(t *testing.T) {
	th := Thresholds{Low: -90, Mid: -53, High: -43}
	w, err := EncodeThresholds(th)
	if err != nil {
		t.Fatalf("could not encode thresholds: %+v", err)
	}
	want := uint32((256-43)*65536 + (256-53)*256 + (256 - 90))
	if w != want {
		t.Fatalf("invalid wire value: got=0x%06x, want=0x%06x", w, want)
	}
}

func TestThresholdsInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		th   Thresholds
		want error
	}{
		{"equal-low-mid", Thresholds{-60, -60, -40}, ErrOrder},
		{"equal-mid-high", Thresholds{-90, -40, -40}, ErrOrder},
		{"reversed", Thresholds{-40, -60, -90}, ErrOrder},
		{"low-underflow", Thresholds{-257, -60, -40}, ErrRange},
		{"high-overflow", Thresholds{-90, -60, 0}, ErrRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EncodeThresholds(tc.th)
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}
}

func TestCapture(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Capture
		want error
	}{
		{"scenario-a", Capture{Delay: 1000, Length: 15383, Mode: Single}, nil},
		{"full", Capture{Delay: 0, Length: BufferSize, Mode: Continuous}, nil},
		{"empty", Capture{}, nil},
		{"overflow", Capture{Delay: 1000, Length: 15385}, ErrCapacity},
		{"neg-delay", Capture{Delay: -1, Length: 10}, ErrRange},
		{"delay-too-large", Capture{Delay: BufferSize, Length: 0}, ErrRange},
		{"bad-mode", Capture{Delay: 10, Length: 10, Mode: 2}, ErrRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			switch {
			case tc.want == nil && err != nil:
				t.Fatalf("unexpected error: %+v", err)
			case tc.want != nil && !errors.Is(err, tc.want):
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}

	if got, want := (Capture{Delay: 1000, Length: 15383}).Count(), 16383; got != want {
		t.Fatalf("invalid capture count: got=%d, want=%d", got, want)
	}
}

func TestValidateSamples(t *testing.T) {
	ok := []complex128{0, 1, -1, complex(1, -1), complex(0.5, 0.25)}
	if err := ValidateSamples(ok); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	for _, tc := range []struct {
		name string
		data []complex128
		want error
	}{
		{"re-high", []complex128{0, complex(1.0001, 0)}, ErrRange},
		{"im-low", []complex128{complex(0, -1.5)}, ErrRange},
		{"too-long", make([]complex128, BufferSize+1), ErrCapacity},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSamples(tc.data)
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, tc := range []struct {
		p    Param
		vs   []int
		wire uint32
	}{
		{TxDelay, []int{1000}, 1000},
		{TxLength, []int{15383}, 15383},
		{TxMode, []int{1}, 1},
		{Channel, []int{12}, 12},
		{TxGains, []int{45, 3}, 45 + 3*65536},
		{RxGains, []int{2, 20}, 2 + 20*65536},
		{TxLPF, []int{3}, 3},
		{RxLPF, []int{1}, 1},
		{AGCMode, []int{1}, 1},
		{AGCTarget, []int{-10}, 246},
		{AGCNoiseFloor, []int{-95}, 161},
		{AGCThresholds, []int{-90, -53, -43}, (256-43)*65536 + (256-53)*256 + (256 - 90)},
		{AGCTrigDelay, []int{50}, 50},
		{AGCDCOffset, []int{1}, 1},
	} {
		t.Run(tc.p.String(), func(t *testing.T) {
			w, err := Encode(tc.p, tc.vs...)
			if err != nil {
				t.Fatalf("could not encode: %+v", err)
			}
			if w != tc.wire {
				t.Fatalf("invalid wire value: got=0x%x, want=0x%x", w, tc.wire)
			}
			if got, want := Decode(tc.p, w), tc.vs; !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid round-trip: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestEncodeInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		p    Param
		vs   []int
		want error
	}{
		{"channel-low", Channel, []int{0}, ErrRange},
		{"channel-high", Channel, []int{15}, ErrRange},
		{"lpf", RxLPF, []int{4}, ErrRange},
		{"arity", TxGains, []int{1}, ErrArity},
		{"target", AGCTarget, []int{256}, ErrRange},
		{"dco", AGCDCOffset, []int{2}, ErrRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.p, tc.vs...)
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}
}

func TestDBm(t *testing.T) {
	for v := MinDBm; v <= MaxDBm; v++ {
		if got := DecodeDBm(EncodeDBm(v)); got != v {
			t.Fatalf("invalid dBm round-trip: got=%d, want=%d", got, v)
		}
	}
}

func TestParseParam(t *testing.T) {
	for p := TxDelay; p <= AGCRSSI; p++ {
		got, err := ParseParam(p.String())
		if err != nil {
			t.Fatalf("could not parse %v: %+v", p, err)
		}
		if got != p {
			t.Fatalf("invalid parameter: got=%v, want=%v", got, p)
		}
	}

	_, err := ParseParam("tx-power")
	if err == nil {
		t.Fatalf("expected an error")
	}
}
