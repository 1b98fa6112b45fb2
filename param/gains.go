// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

// Gains holds the RF and baseband gain settings of one radio path.
type Gains struct {
	RF int `json:"rf"`
	BB int `json:"bb"`
}

// EncodeTxGains packs TX gains as rf + bb*65536.
func EncodeTxGains(rf, bb int) (uint32, error) {
	if err := inRange("tx-rf-gain", rf, 0, MaxTxRFGain); err != nil {
		return 0, err
	}
	if err := inRange("tx-bb-gain", bb, 0, MaxTxBBGain); err != nil {
		return 0, err
	}
	return packGains(rf, bb), nil
}

// EncodeRxGains packs RX gains as rf + bb*65536.
func EncodeRxGains(rf, bb int) (uint32, error) {
	if err := inRange("rx-rf-gain", rf, MinRxRFGain, MaxRxRFGain); err != nil {
		return 0, err
	}
	if err := inRange("rx-bb-gain", bb, 0, MaxRxBBGain); err != nil {
		return 0, err
	}
	return packGains(rf, bb), nil
}

// DecodeGains unpacks a gain register value into its RF and baseband parts.
func DecodeGains(w uint32) (rf, bb int) {
	return int(w % gainShift), int(w / gainShift)
}

func packGains(rf, bb int) uint32 {
	return uint32(rf) + uint32(bb)*gainShift
}

// ValidateTx checks g against the TX gain ranges.
func (g Gains) ValidateTx() error {
	_, err := EncodeTxGains(g.RF, g.BB)
	return err
}

// ValidateRx checks g against the RX gain ranges.
func (g Gains) ValidateRx() error {
	_, err := EncodeRxGains(g.RF, g.BB)
	return err
}
