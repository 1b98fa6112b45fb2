// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import "fmt"

// Thresholds are the three AGC RSSI thresholds, in dBm.
//
// They partition the measured RSSI into the RF gain levels:
// below Low the AGC does not settle, [Low,Mid) selects RF gain 3,
// [Mid,High) selects RF gain 2 and High and above selects RF gain 1.
type Thresholds struct {
	Low  int `json:"low"`
	Mid  int `json:"mid"`
	High int `json:"high"`
}

// Thresholds are biased by +256 and each biased value must fit in
// its own 8-bit lane.
const (
	MinThreshold = -dBmBias
	MaxThreshold = 0xff - dBmBias
)

// Validate checks every threshold fits its lane and that they are
// strictly increasing.
func (th Thresholds) Validate() error {
	for _, v := range []struct {
		name string
		dBm  int
	}{
		{"agc-threshold-low", th.Low},
		{"agc-threshold-mid", th.Mid},
		{"agc-threshold-high", th.High},
	} {
		if err := inRange(v.name, v.dBm, MinThreshold, MaxThreshold); err != nil {
			return err
		}
	}
	if !(th.Low < th.Mid && th.Mid < th.High) {
		return &Error{
			Param: "agc-thresholds",
			Value: fmt.Sprintf("(%d,%d,%d)", th.Low, th.Mid, th.High),
			Err:   ErrOrder,
		}
	}
	return nil
}

// EncodeThresholds packs the thresholds as high*65536 + mid*256 + low,
// each value first biased by +256.
func EncodeThresholds(th Thresholds) (uint32, error) {
	err := th.Validate()
	if err != nil {
		return 0, err
	}
	var (
		lo = uint32(th.Low + dBmBias)
		md = uint32(th.Mid + dBmBias)
		hi = uint32(th.High + dBmBias)
	)
	return hi*65536 + md*256 + lo, nil
}

// DecodeThresholds reverses EncodeThresholds.
func DecodeThresholds(w uint32) Thresholds {
	return Thresholds{
		Low:  int(w&0xff) - dBmBias,
		Mid:  int((w>>8)&0xff) - dBmBias,
		High: int((w>>16)&0xff) - dBmBias,
	}
}
