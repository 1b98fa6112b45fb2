// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package param validates, encodes and decodes the parameters written to
// the registers of a radio node.
//
// Every value is checked against its documented range before it is
// packed: an out-of-range value yields a *Error and is never truncated
// on the wire.
package param // import "github.com/go-lpc/warpnet/param"

import (
	"errors"
	"fmt"
)

const (
	BufferSize = 16384 // capture/transmit buffer capacity, in samples
	NumRadios  = 4     // max number of radios per node

	MinChannel = 1
	MaxChannel = 14

	MaxTxBBGain = 3
	MaxTxRFGain = 63
	MaxRxBBGain = 31
	MinRxRFGain = 1
	MaxRxRFGain = 3

	MaxLPF = 3

	MinDBm = -256
	MaxDBm = 255

	gainShift = 65536
	dBmBias   = 256
)

var (
	// ErrRange is returned when a value is outside of its documented range.
	ErrRange = errors.New("value out of range")
	// ErrOrder is returned when AGC thresholds are not strictly increasing.
	ErrOrder = errors.New("thresholds not strictly increasing")
	// ErrCapacity is returned when a capture window overflows the buffer.
	ErrCapacity = errors.New("capture window exceeds buffer capacity")
	// ErrArity is returned when a parameter receives the wrong number of values.
	ErrArity = errors.New("invalid number of values")
)

// Error is a configuration error.
// It is raised before any command is sent to a node.
type Error struct {
	Param string
	Value interface{}
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("param: invalid %s=%v: %v", e.Param, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errRange(name string, v interface{}) error {
	return &Error{Param: name, Value: v, Err: ErrRange}
}

func inRange(name string, v, lo, hi int) error {
	if v < lo || hi < v {
		return &Error{
			Param: name,
			Value: v,
			Err:   fmt.Errorf("%w [%d, %d]", ErrRange, lo, hi),
		}
	}
	return nil
}

// Param is a logical node parameter.
type Param int

const (
	TxDelay Param = iota
	TxLength
	TxMode
	Channel
	TxGains
	RxGains
	TxLPF
	RxLPF
	AGCMode
	AGCTarget
	AGCNoiseFloor
	AGCThresholds
	AGCTrigDelay
	AGCDCOffset
	AGCRSSI
)

var paramNames = [...]string{
	TxDelay:       "tx-delay",
	TxLength:      "tx-length",
	TxMode:        "tx-mode",
	Channel:       "channel",
	TxGains:       "tx-gains",
	RxGains:       "rx-gains",
	TxLPF:         "tx-lpf",
	RxLPF:         "rx-lpf",
	AGCMode:       "agc-mode",
	AGCTarget:     "agc-target",
	AGCNoiseFloor: "agc-noise-floor",
	AGCThresholds: "agc-thresholds",
	AGCTrigDelay:  "agc-trig-delay",
	AGCDCOffset:   "agc-dc-offset",
	AGCRSSI:       "agc-rssi",
}

func (p Param) String() string {
	if p < 0 || int(p) >= len(paramNames) {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParam returns the parameter with the given name.
func ParseParam(name string) (Param, error) {
	for i, v := range paramNames {
		if v == name {
			return Param(i), nil
		}
	}
	return 0, fmt.Errorf("param: unknown parameter %q", name)
}

func (p Param) arity() int {
	switch p {
	case TxGains, RxGains:
		return 2
	case AGCThresholds:
		return 3
	default:
		return 1
	}
}

// Encode validates and packs the values of parameter p into a wire value.
//
// Gains take (rf, bb), thresholds take (low, mid, high) in dBm and all
// other parameters take a single value.
func Encode(p Param, vs ...int) (uint32, error) {
	if n := p.arity(); len(vs) != n {
		return 0, &Error{Param: p.String(), Value: vs, Err: ErrArity}
	}

	switch p {
	case TxDelay:
		if err := inRange(p.String(), vs[0], 0, BufferSize-1); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	case TxLength:
		if err := inRange(p.String(), vs[0], 0, BufferSize); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	case TxMode:
		m := Mode(vs[0])
		if err := m.Validate(); err != nil {
			return 0, err
		}
		return uint32(m), nil
	case Channel:
		if err := inRange(p.String(), vs[0], MinChannel, MaxChannel); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	case TxGains:
		return EncodeTxGains(vs[0], vs[1])
	case RxGains:
		return EncodeRxGains(vs[0], vs[1])
	case TxLPF, RxLPF:
		if err := inRange(p.String(), vs[0], 0, MaxLPF); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	case AGCMode, AGCDCOffset:
		if err := inRange(p.String(), vs[0], 0, 1); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	case AGCTarget, AGCNoiseFloor, AGCRSSI:
		if err := inRange(p.String(), vs[0], MinDBm, MaxDBm); err != nil {
			return 0, err
		}
		return EncodeDBm(vs[0]), nil
	case AGCThresholds:
		return EncodeThresholds(Thresholds{Low: vs[0], Mid: vs[1], High: vs[2]})
	case AGCTrigDelay:
		if err := inRange(p.String(), vs[0], 0, BufferSize-1); err != nil {
			return 0, err
		}
		return uint32(vs[0]), nil
	}
	return 0, &Error{Param: p.String(), Value: vs, Err: fmt.Errorf("unknown parameter")}
}

// Decode unpacks a wire value of parameter p.
// The returned slice has the same arity as the values given to Encode.
func Decode(p Param, w uint32) []int {
	switch p {
	case TxGains, RxGains:
		rf, bb := DecodeGains(w)
		return []int{rf, bb}
	case AGCThresholds:
		th := DecodeThresholds(w)
		return []int{th.Low, th.Mid, th.High}
	case AGCTarget, AGCNoiseFloor, AGCRSSI:
		return []int{DecodeDBm(w)}
	default:
		return []int{int(w)}
	}
}

// EncodeDBm biases a signed dBm value into its 9-bit unsigned wire form.
// Callers are expected to have validated v is in [MinDBm, MaxDBm].
func EncodeDBm(v int) uint32 {
	return uint32(v+dBmBias) & 0x1ff
}

// DecodeDBm reverses EncodeDBm.
func DecodeDBm(w uint32) int {
	return int(w&0x1ff) - dBmBias
}
