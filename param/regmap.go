// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import "fmt"

// RegisterMap maps logical parameters to node register addresses.
//
// A RegisterMap is handed to the session (and to node emulators) at
// construction time; there is no package-level register table.
type RegisterMap struct {
	TxDelay  uint16 `json:"tx_delay"`
	TxLength uint16 `json:"tx_length"`
	TxMode   uint16 `json:"tx_mode"`
	Channel  uint16 `json:"channel"`
	TxLPF    uint16 `json:"tx_lpf"`
	RxLPF    uint16 `json:"rx_lpf"`

	TxGains [NumRadios]uint16 `json:"tx_gains"`
	RxGains [NumRadios]uint16 `json:"rx_gains"`

	AGCMode       uint16 `json:"agc_mode"`
	AGCTarget     uint16 `json:"agc_target"`
	AGCNoiseFloor uint16 `json:"agc_noise_floor"`
	AGCThresholds uint16 `json:"agc_thresholds"`
	AGCTrigDelay  uint16 `json:"agc_trig_delay"`
	AGCDCOffset   uint16 `json:"agc_dc_offset"`
	AGCReset      uint16 `json:"agc_reset"`

	AGCDoneAddr uint16            `json:"agc_done_addr"`
	AGCRSSI     [NumRadios]uint16 `json:"agc_rssi"`
	AGCGains    [NumRadios]uint16 `json:"agc_gains"`
}

// DefaultRegisterMap returns the register layout of the reference node
// firmware.
func DefaultRegisterMap() RegisterMap {
	return RegisterMap{
		TxDelay:  0x0001,
		TxLength: 0x0002,
		TxMode:   0x0003,
		Channel:  0x0004,
		TxLPF:    0x0005,
		RxLPF:    0x0006,

		TxGains: [NumRadios]uint16{0x0011, 0x0012, 0x0013, 0x0014},
		RxGains: [NumRadios]uint16{0x0021, 0x0022, 0x0023, 0x0024},

		AGCMode:       0x0040,
		AGCTarget:     0x0041,
		AGCNoiseFloor: 0x0042,
		AGCThresholds: 0x0043,
		AGCTrigDelay:  0x0044,
		AGCDCOffset:   0x0045,
		AGCReset:      0x0046,

		AGCDoneAddr: 0x0050,
		AGCRSSI:     [NumRadios]uint16{0x0051, 0x0052, 0x0053, 0x0054},
		AGCGains:    [NumRadios]uint16{0x0061, 0x0062, 0x0063, 0x0064},
	}
}

func (m *RegisterMap) each(f func(name string, addr uint16)) {
	f("tx-delay", m.TxDelay)
	f("tx-length", m.TxLength)
	f("tx-mode", m.TxMode)
	f("channel", m.Channel)
	f("tx-lpf", m.TxLPF)
	f("rx-lpf", m.RxLPF)
	for i := 0; i < NumRadios; i++ {
		f(fmt.Sprintf("radio%d-tx-gains", i+1), m.TxGains[i])
		f(fmt.Sprintf("radio%d-rx-gains", i+1), m.RxGains[i])
		f(fmt.Sprintf("radio%d-agc-rssi", i+1), m.AGCRSSI[i])
		f(fmt.Sprintf("radio%d-agc-gains", i+1), m.AGCGains[i])
	}
	f("agc-mode", m.AGCMode)
	f("agc-target", m.AGCTarget)
	f("agc-noise-floor", m.AGCNoiseFloor)
	f("agc-thresholds", m.AGCThresholds)
	f("agc-trig-delay", m.AGCTrigDelay)
	f("agc-dc-offset", m.AGCDCOffset)
	f("agc-reset", m.AGCReset)
	f("agc-done-addr", m.AGCDoneAddr)
}

// Validate checks all registers have a distinct, non-zero address.
func (m RegisterMap) Validate() error {
	var (
		err  error
		seen = make(map[uint16]string)
	)
	m.each(func(name string, addr uint16) {
		if err != nil {
			return
		}
		if addr == 0 {
			err = fmt.Errorf("param: register %q has no address", name)
			return
		}
		if dup, ok := seen[addr]; ok {
			err = fmt.Errorf("param: registers %q and %q share address 0x%04x", dup, name, addr)
			return
		}
		seen[addr] = name
	})
	return err
}

// Has reports whether addr is a register of the map.
func (m RegisterMap) Has(addr uint16) bool {
	ok := false
	m.each(func(_ string, a uint16) {
		if a == addr {
			ok = true
		}
	})
	return ok
}

// Name returns the logical name of the register at addr.
func (m RegisterMap) Name(addr uint16) string {
	name := fmt.Sprintf("reg(0x%04x)", addr)
	m.each(func(n string, a uint16) {
		if a == addr {
			name = n
		}
	})
	return name
}

// Radio returns the per-radio register address from regs for radio r (1-based).
func Radio(regs [NumRadios]uint16, r int) (uint16, error) {
	if err := ValidateRadio(r); err != nil {
		return 0, err
	}
	return regs[r-1], nil
}

// ValidateRadio checks r is a valid 1-based radio index.
func ValidateRadio(r int) error {
	return inRange("radio", r, 1, NumRadios)
}
