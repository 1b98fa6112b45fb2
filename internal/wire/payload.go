// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
)

// RegWrite is a single register write of a WriteReg command.
type RegWrite struct {
	Addr  uint16
	Value uint32
}

// EncodeRegWrites packs register writes into a WriteReg payload.
func EncodeRegWrites(ws []RegWrite) []byte {
	p := make([]byte, 6*len(ws))
	for i, w := range ws {
		binary.BigEndian.PutUint16(p[6*i:], w.Addr)
		binary.BigEndian.PutUint32(p[6*i+2:], w.Value)
	}
	return p
}

// DecodeRegWrites unpacks a WriteReg payload.
func DecodeRegWrites(p []byte) ([]RegWrite, error) {
	if len(p)%6 != 0 {
		return nil, fmt.Errorf("%w: write-reg payload of %d bytes", ErrPayload, len(p))
	}
	ws := make([]RegWrite, len(p)/6)
	for i := range ws {
		ws[i].Addr = binary.BigEndian.Uint16(p[6*i:])
		ws[i].Value = binary.BigEndian.Uint32(p[6*i+2:])
	}
	return ws, nil
}

// EncodeRegs packs register addresses into a ReadReg payload.
func EncodeRegs(addrs []uint16) []byte {
	p := make([]byte, 2*len(addrs))
	for i, a := range addrs {
		binary.BigEndian.PutUint16(p[2*i:], a)
	}
	return p
}

// DecodeRegs unpacks a ReadReg payload.
func DecodeRegs(p []byte) ([]uint16, error) {
	if len(p)%2 != 0 {
		return nil, fmt.Errorf("%w: read-reg payload of %d bytes", ErrPayload, len(p))
	}
	addrs := make([]uint16, len(p)/2)
	for i := range addrs {
		addrs[i] = binary.BigEndian.Uint16(p[2*i:])
	}
	return addrs, nil
}

// EncodeValues packs register values, as returned by a ReadReg ack.
func EncodeValues(vs []uint32) []byte {
	p := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint32(p[4*i:], v)
	}
	return p
}

// DecodeValues unpacks register values from a ReadReg ack body.
func DecodeValues(p []byte) ([]uint32, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("%w: register values of %d bytes", ErrPayload, len(p))
	}
	vs := make([]uint32, len(p)/4)
	for i := range vs {
		vs[i] = binary.BigEndian.Uint32(p[4*i:])
	}
	return vs, nil
}

// EncodeOps packs an op set into an Enable or Disable payload.
func EncodeOps(ops uint32) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, ops)
	return p
}

// DecodeOps unpacks an Enable or Disable payload.
func DecodeOps(p []byte) (uint32, error) {
	if len(p) != 4 {
		return 0, fmt.Errorf("%w: op set of %d bytes", ErrPayload, len(p))
	}
	return binary.BigEndian.Uint32(p), nil
}

// EncodeOpen packs the session nonce of an Open payload.
func EncodeOpen(nonce uint32) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, nonce)
	return p
}

// DecodeOpen unpacks an Open payload.
func DecodeOpen(p []byte) (uint32, error) {
	if len(p) != 4 {
		return 0, fmt.Errorf("%w: open payload of %d bytes", ErrPayload, len(p))
	}
	return binary.BigEndian.Uint32(p), nil
}

// BufWriteReq is the payload of a BufWrite command.
// Count is in samples and Data holds 4 bytes per sample.
type BufWriteReq struct {
	Radio  uint8
	Offset uint16
	Count  uint16
	Data   []byte
}

func (req BufWriteReq) MarshalBinary() ([]byte, error) {
	if want := 4 * int(req.Count); len(req.Data) != want {
		return nil, fmt.Errorf("%w: buf-write of %d samples with %d bytes", ErrPayload, req.Count, len(req.Data))
	}
	p := make([]byte, 5+len(req.Data))
	p[0] = req.Radio
	binary.BigEndian.PutUint16(p[1:], req.Offset)
	binary.BigEndian.PutUint16(p[3:], req.Count)
	copy(p[5:], req.Data)
	return p, nil
}

func (req *BufWriteReq) UnmarshalBinary(p []byte) error {
	if len(p) < 5 {
		return fmt.Errorf("%w: short buf-write header", ErrPayload)
	}
	req.Radio = p[0]
	req.Offset = binary.BigEndian.Uint16(p[1:])
	req.Count = binary.BigEndian.Uint16(p[3:])
	req.Data = p[5:]
	if want := 4 * int(req.Count); len(req.Data) != want {
		return fmt.Errorf("%w: buf-write of %d samples with %d bytes", ErrPayload, req.Count, len(req.Data))
	}
	return nil
}

// BufReadReq is the payload of a BufRead command.
// Offset and Count are in units of the selected buffer: IQ samples for
// TxBuffer and RxBuffer, RSSI values for RSSIBuffer.
type BufReadReq struct {
	Radio  uint8
	Buffer Buffer
	Offset uint16
	Count  uint16
}

func (req BufReadReq) MarshalBinary() ([]byte, error) {
	p := make([]byte, 6)
	p[0] = req.Radio
	p[1] = uint8(req.Buffer)
	binary.BigEndian.PutUint16(p[2:], req.Offset)
	binary.BigEndian.PutUint16(p[4:], req.Count)
	return p, nil
}

func (req *BufReadReq) UnmarshalBinary(p []byte) error {
	if len(p) != 6 {
		return fmt.Errorf("%w: buf-read request of %d bytes", ErrPayload, len(p))
	}
	req.Radio = p[0]
	req.Buffer = Buffer(p[1])
	req.Offset = binary.BigEndian.Uint16(p[2:])
	req.Count = binary.BigEndian.Uint16(p[4:])
	return nil
}

// EncodeAck builds an acknowledgment payload.
func EncodeAck(st Status, body []byte) []byte {
	p := make([]byte, 1+len(body))
	p[0] = uint8(st)
	copy(p[1:], body)
	return p
}

// DecodeAck splits an acknowledgment payload into its status and body.
func DecodeAck(p []byte) (Status, []byte, error) {
	if len(p) < 1 {
		return 0, nil, fmt.Errorf("%w: empty acknowledgment", ErrPayload)
	}
	return Status(p[0]), p[1:], nil
}
