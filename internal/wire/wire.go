// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the binary packet format exchanged between the
// control host and radio nodes.
//
// A packet is laid out in big-endian order as:
//
//	u8  kind
//	u16 node id
//	u32 sequence number
//	u16 payload length
//	... payload
//	u16 CRC-16 (CCITT-FALSE) of all previous bytes
//
// Acknowledgments reuse the command kind with the AckFlag bit set and
// carry a one byte Status at the start of their payload.
package wire // import "github.com/go-lpc/warpnet/internal/wire"

import (
	"fmt"
)

// Kind identifies a command packet.
type Kind uint8

const (
	WriteReg Kind = 0x01 // atomic list of (u16 reg, u32 value) writes
	ReadReg  Kind = 0x02 // list of u16 registers, ack carries u32 values
	Enable   Kind = 0x03 // u32 op set
	Disable  Kind = 0x04 // u32 op set
	BufWrite Kind = 0x05 // u8 radio, u16 offset, u16 count, samples
	BufRead  Kind = 0x06 // u8 radio, u8 buffer, u16 offset, u16 count
	Open     Kind = 0x07 // u32 session nonce, a new nonce resets the node sequence tracking
	Sync     Kind = 0x10 // broadcast trigger, never acknowledged

	AckFlag Kind = 0x80
)

func (k Kind) String() string {
	ack := ""
	if k&AckFlag != 0 {
		ack = "-ack"
		k &^= AckFlag
	}
	var name string
	switch k {
	case WriteReg:
		name = "write-reg"
	case ReadReg:
		name = "read-reg"
	case Enable:
		name = "enable"
	case Disable:
		name = "disable"
	case BufWrite:
		name = "buf-write"
	case BufRead:
		name = "buf-read"
	case Open:
		name = "open"
	case Sync:
		name = "sync"
	default:
		name = fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
	return name + ack
}

// IsAck reports whether k is an acknowledgment kind.
func (k Kind) IsAck() bool { return k&AckFlag != 0 }

// Ack returns the acknowledgment kind of k.
func (k Kind) Ack() Kind { return k | AckFlag }

// Status is the outcome reported by a node in an acknowledgment.
type Status uint8

const (
	StatusOK         Status = 0
	StatusStale      Status = 1 // sequence number not greater than the last accepted one
	StatusBadRequest Status = 2
	StatusBadCRC     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStale:
		return "stale"
	case StatusBadRequest:
		return "bad-request"
	case StatusBadCRC:
		return "bad-crc"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Buffer selects a node memory region in a BufRead request.
type Buffer uint8

const (
	TxBuffer   Buffer = 0
	RxBuffer   Buffer = 1
	RSSIBuffer Buffer = 2
)

func (b Buffer) String() string {
	switch b {
	case TxBuffer:
		return "tx"
	case RxBuffer:
		return "rx"
	case RSSIBuffer:
		return "rssi"
	}
	return fmt.Sprintf("buffer(%d)", uint8(b))
}

const (
	// HeaderSize is the size of a packet header, in bytes.
	HeaderSize = 1 + 2 + 4 + 2
	// TrailerSize is the size of the CRC-16 trailer, in bytes.
	TrailerSize = 2
	// MaxPayload is the largest payload a packet can carry.
	MaxPayload = 0xffff
	// BroadcastNode is the node id of broadcast packets.
	BroadcastNode = 0xffff
)
