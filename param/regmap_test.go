// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"errors"
	"testing"
)

func TestRegisterMap(t *testing.T) {
	regs := DefaultRegisterMap()
	if err := regs.Validate(); err != nil {
		t.Fatalf("default register map is invalid: %+v", err)
	}

	if got, want := regs.Name(regs.AGCThresholds), "agc-thresholds"; got != want {
		t.Fatalf("invalid register name: got=%q, want=%q", got, want)
	}
	if got, want := regs.Name(regs.RxGains[2]), "radio3-rx-gains"; got != want {
		t.Fatalf("invalid register name: got=%q, want=%q", got, want)
	}
	if got, want := regs.Name(0xffff), "reg(0xffff)"; got != want {
		t.Fatalf("invalid register name: got=%q, want=%q", got, want)
	}

	if !regs.Has(regs.AGCDoneAddr) || regs.Has(0xffff) {
		t.Fatalf("invalid register lookup")
	}

	dup := regs
	dup.AGCReset = dup.TxDelay
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected an error for duplicate addresses")
	}

	nul := regs
	nul.Channel = 0
	if err := nul.Validate(); err == nil {
		t.Fatalf("expected an error for missing address")
	}

	addr, err := Radio(regs.TxGains, 4)
	if err != nil {
		t.Fatalf("could not get radio register: %+v", err)
	}
	if addr != regs.TxGains[3] {
		t.Fatalf("invalid radio register: got=0x%x, want=0x%x", addr, regs.TxGains[3])
	}
	_, err = Radio(regs.TxGains, 5)
	if !errors.Is(err, ErrRange) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestOpSet(t *testing.T) {
	ops := OpTx(1) | OpTx(4) | OpRx(2) | OpTxStart | OpRxStart
	if !ops.Valid() {
		t.Fatalf("op set should be valid")
	}
	if !ops.Has(OpTxRadio(4) | OpTxBuf(4)) {
		t.Fatalf("missing tx path of radio 4")
	}
	if ops.Has(OpRxBuf(1)) {
		t.Fatalf("unexpected rx buffer of radio 1")
	}
	if got, want := ops.String(), "tx-radio[1,4]|rx-radio[2]|tx-buf[1,4]|rx-buf[2]|tx-start|rx-start"; got != want {
		t.Fatalf("invalid op set string:\ngot= %q\nwant=%q", got, want)
	}
	if got, want := OpSet(0).String(), "none"; got != want {
		t.Fatalf("invalid empty op set string: got=%q, want=%q", got, want)
	}
	if OpSet(1 << 20).Valid() {
		t.Fatalf("op set with unknown bits should be invalid")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected a panic for radio 0")
			}
		}()
		_ = OpTxRadio(0)
	}()
}
