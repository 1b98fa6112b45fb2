// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capfile reads and writes capture files.
//
// A capture file starts with a run header followed by one record per
// captured radio. The header and every record are closed by a CRC-16
// checksum. All values are big-endian.
//
//	header: magic "WCAP", u8 version, u32 run, i64 start (ns since epoch),
//	        u16 len + plan name, u8 channel, u16 tx-delay, u16 tx-length,
//	        u8 tx-mode, u16 crc
//	record: u8 0xb4, u16 node, u8 radio, u32 settle, u8 flags,
//	        u16 n + n IQ words, u16 m + m RSSI values, u8 0xa3, u16 crc
package capfile // import "github.com/go-lpc/warpnet/capfile"

import (
	"time"

	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/param"
)

// Version is the version of the file format written by Encoder.
const Version = 1

const (
	recHeader  = 0xb4 // record header marker
	recTrailer = 0xa3 // record trailer marker

	flagValid = 1 << 0
)

var magic = [4]byte{'W', 'C', 'A', 'P'}

// Header describes the run a capture file was taken from.
type Header struct {
	Version uint8
	Run     uint32
	Plan    string
	Start   time.Time
	Channel int
	Capture param.Capture
}

// Record holds the capture of one radio.
type Record struct {
	Node    uint16
	Radio   int
	Settle  int  // first sample captured with settled AGC gains
	Valid   bool // whether the capture carries a signal
	Samples iq.Buffer
	RSSI    []uint16
}
