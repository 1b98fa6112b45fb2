// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/param"
)

// WriteSamples stages samples into the TX buffer of radio, from offset 0.
//
// Samples are validated before any transfer: each real and imaginary
// part must lie in [-1, 1] and at most param.BufferSize samples fit.
func (n *Node) WriteSamples(ctx context.Context, radio int, samples []complex128) error {
	_, err := n.Radio(radio)
	if err != nil {
		return err
	}
	raw, err := iq.Encode(samples)
	if err != nil {
		return err
	}

	for beg := 0; beg < len(samples); beg += n.chunk {
		end := beg + n.chunk
		if end > len(samples) {
			end = len(samples)
		}
		req := wire.BufWriteReq{
			Radio:  uint8(radio),
			Offset: uint16(beg),
			Count:  uint16(end - beg),
			Data:   raw[iq.WordSize*beg : iq.WordSize*end],
		}
		payload, err := req.MarshalBinary()
		if err != nil {
			return fmt.Errorf("node: could not encode samples [%d,%d) of radio %d: %w", beg, end, radio, err)
		}
		_, err = n.Send(ctx, Command{Kind: wire.BufWrite, Payload: payload})
		if err != nil {
			return fmt.Errorf(
				"node: could not write samples [%d,%d) to node=%d radio %d: %w",
				beg, end, n.ID, radio, err,
			)
		}
	}
	n.msg.Debugf("node=%d: staged %d samples into radio %d", n.ID, len(samples), radio)
	return nil
}

// ReadSamples reads count raw samples from the RX buffer of radio,
// starting at offset 0.
func (n *Node) ReadSamples(ctx context.Context, radio, count int) ([]byte, error) {
	return n.readBuffer(ctx, radio, wire.RxBuffer, count, iq.WordSize)
}

// ReadTxSamples reads back count raw samples from the TX buffer of radio.
func (n *Node) ReadTxSamples(ctx context.Context, radio, count int) ([]byte, error) {
	return n.readBuffer(ctx, radio, wire.TxBuffer, count, iq.WordSize)
}

// ReadRSSI reads the RSSI trace of radio covering the first count IQ
// samples of the capture.
func (n *Node) ReadRSSI(ctx context.Context, radio, count int) ([]uint16, error) {
	if err := inBuffer(count); err != nil {
		return nil, err
	}
	nrssi := (count + iq.RSSIDecimation - 1) / iq.RSSIDecimation
	raw, err := n.readBuffer(ctx, radio, wire.RSSIBuffer, nrssi, iq.RSSISize)
	if err != nil {
		return nil, err
	}
	return iq.DecodeRSSI(raw)
}

// Retrieve reads and decodes count samples of the RX buffer of radio.
func (n *Node) Retrieve(ctx context.Context, radio, count int) (iq.Buffer, error) {
	raw, err := n.ReadSamples(ctx, radio, count)
	if err != nil {
		return iq.Buffer{}, err
	}
	buf, err := iq.Decode(raw)
	if err != nil {
		return iq.Buffer{}, fmt.Errorf("node: could not decode samples of node=%d radio %d: %w", n.ID, radio, err)
	}
	return buf, nil
}

func inBuffer(count int) error {
	if count < 0 || count > param.BufferSize {
		return &param.Error{
			Param: "count",
			Value: count,
			Err:   fmt.Errorf("%w [0, %d]", param.ErrRange, param.BufferSize),
		}
	}
	return nil
}

func (n *Node) readBuffer(ctx context.Context, radio int, sel wire.Buffer, count, size int) ([]byte, error) {
	_, err := n.Radio(radio)
	if err != nil {
		return nil, err
	}
	if err := inBuffer(count); err != nil {
		return nil, err
	}

	out := make([]byte, 0, size*count)
	for beg := 0; beg < count; beg += n.chunk {
		end := beg + n.chunk
		if end > count {
			end = count
		}
		req := wire.BufReadReq{
			Radio:  uint8(radio),
			Buffer: sel,
			Offset: uint16(beg),
			Count:  uint16(end - beg),
		}
		payload, err := req.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("node: could not encode %v buffer read: %w", sel, err)
		}
		body, err := n.Send(ctx, Command{Kind: wire.BufRead, Payload: payload})
		if err != nil {
			return nil, fmt.Errorf(
				"node: could not read %v buffer [%d,%d) from node=%d radio %d: %w",
				sel, beg, end, n.ID, radio, err,
			)
		}
		if got, want := len(body), size*(end-beg); got != want {
			return nil, fmt.Errorf(
				"node: node=%d returned %d bytes of %v buffer [%d,%d) (want=%d)",
				n.ID, got, sel, beg, end, want,
			)
		}
		out = append(out, body...)
	}
	return out, nil
}
