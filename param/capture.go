// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"fmt"
	"math"
)

// Mode is the transmit mode of a node.
type Mode uint32

const (
	Single     Mode = 0 // transmit the staged buffer once
	Continuous Mode = 1 // loop over the staged buffer until stopped
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Continuous:
		return "continuous"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// Validate checks m is a known transmit mode.
func (m Mode) Validate() error {
	switch m {
	case Single, Continuous:
		return nil
	}
	return errRange("tx-mode", uint32(m))
}

// Capture describes the transmit/capture window inside the node buffers.
type Capture struct {
	Delay  int  `json:"tx_delay"`  // guard samples before the payload
	Length int  `json:"tx_length"` // payload samples
	Mode   Mode `json:"tx_mode"`
}

// Validate checks the capture window fits in the node buffers.
func (c Capture) Validate() error {
	if err := inRange("tx-delay", c.Delay, 0, BufferSize-1); err != nil {
		return err
	}
	if err := inRange("tx-length", c.Length, 0, BufferSize); err != nil {
		return err
	}
	if err := c.Mode.Validate(); err != nil {
		return err
	}
	if n := c.Delay + c.Length; n > BufferSize {
		return &Error{
			Param: "tx-delay+tx-length",
			Value: n,
			Err:   fmt.Errorf("%w (%d samples)", ErrCapacity, BufferSize),
		}
	}
	return nil
}

// Count returns the number of samples to retrieve for this capture window.
func (c Capture) Count() int {
	return c.Delay + c.Length
}

// ValidateSamples checks a waveform fits in a node buffer and that each
// real and imaginary part lies in [-1, 1].
func ValidateSamples(samples []complex128) error {
	if n := len(samples); n > BufferSize {
		return &Error{
			Param: "samples",
			Value: n,
			Err:   fmt.Errorf("%w (%d samples)", ErrCapacity, BufferSize),
		}
	}
	for i, v := range samples {
		var (
			re = real(v)
			im = imag(v)
		)
		if !inUnit(re) || !inUnit(im) {
			return &Error{
				Param: fmt.Sprintf("samples[%d]", i),
				Value: v,
				Err:   fmt.Errorf("%w [-1, 1]", ErrRange),
			}
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && -1 <= v && v <= 1
}
