// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package param

import (
	"fmt"
	"strings"
)

// OpSet is a set of node state-change opcodes, sent together in a single
// enable or disable command so that they take effect atomically.
type OpSet uint32

const (
	opTxRadio = 0  // bits [0,4): TX radio path enable
	opRxRadio = 4  // bits [4,8): RX radio path enable
	opTxBuf   = 8  // bits [8,12): TX buffer enable
	opRxBuf   = 12 // bits [12,16): RX buffer enable

	// OpTxStart arms the transmit state machine.
	OpTxStart OpSet = 1 << 16
	// OpRxStart arms the receive state machine.
	OpRxStart OpSet = 1 << 17

	// OpAll holds every valid opcode.
	OpAll OpSet = 1<<18 - 1
)

func radioBit(base, r int) OpSet {
	if err := ValidateRadio(r); err != nil {
		panic(err)
	}
	return 1 << uint(base+r-1)
}

// OpTxRadio returns the opcode enabling the TX path of radio r.
func OpTxRadio(r int) OpSet { return radioBit(opTxRadio, r) }

// OpRxRadio returns the opcode enabling the RX path of radio r.
func OpRxRadio(r int) OpSet { return radioBit(opRxRadio, r) }

// OpTxBuf returns the opcode enabling the TX buffer of radio r.
func OpTxBuf(r int) OpSet { return radioBit(opTxBuf, r) }

// OpRxBuf returns the opcode enabling the RX buffer of radio r.
func OpRxBuf(r int) OpSet { return radioBit(opRxBuf, r) }

// OpTx returns the radio and buffer opcodes of the TX path of radio r.
func OpTx(r int) OpSet { return OpTxRadio(r) | OpTxBuf(r) }

// OpRx returns the radio and buffer opcodes of the RX path of radio r.
func OpRx(r int) OpSet { return OpRxRadio(r) | OpRxBuf(r) }

// Has reports whether all the opcodes of o are in s.
func (s OpSet) Has(o OpSet) bool { return s&o == o }

// Valid reports whether s only holds known opcodes.
func (s OpSet) Valid() bool { return s&^OpAll == 0 }

// radios returns the radios whose opcodes at the given base are set.
func (s OpSet) radios(base int) []int {
	var rs []int
	for r := 1; r <= NumRadios; r++ {
		if s&(1<<uint(base+r-1)) != 0 {
			rs = append(rs, r)
		}
	}
	return rs
}

// TxRadios returns the radios with an enabled TX path.
func (s OpSet) TxRadios() []int { return s.radios(opTxRadio) }

// RxRadios returns the radios with an enabled RX path.
func (s OpSet) RxRadios() []int { return s.radios(opRxRadio) }

// TxBufs returns the radios with an enabled TX buffer.
func (s OpSet) TxBufs() []int { return s.radios(opTxBuf) }

// RxBufs returns the radios with an enabled RX buffer.
func (s OpSet) RxBufs() []int { return s.radios(opRxBuf) }

func (s OpSet) String() string {
	if s == 0 {
		return "none"
	}
	var toks []string
	for _, v := range []struct {
		name string
		rs   []int
	}{
		{"tx-radio", s.TxRadios()},
		{"rx-radio", s.RxRadios()},
		{"tx-buf", s.TxBufs()},
		{"rx-buf", s.RxBufs()},
	} {
		if len(v.rs) == 0 {
			continue
		}
		strs := make([]string, len(v.rs))
		for i, r := range v.rs {
			strs[i] = fmt.Sprint(r)
		}
		toks = append(toks, v.name+"["+strings.Join(strs, ",")+"]")
	}
	if s.Has(OpTxStart) {
		toks = append(toks, "tx-start")
	}
	if s.Has(OpRxStart) {
		toks = append(toks, "rx-start")
	}
	if !s.Valid() {
		toks = append(toks, fmt.Sprintf("unknown(0x%x)", uint32(s&^OpAll)))
	}
	return strings.Join(toks, "|")
}
