// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capfile

import (
	"fmt"
	"io"

	"github.com/go-lpc/warpnet/exp"
)

// NewHeader returns the header of the capture file of run number run.
func NewHeader(run uint32, p exp.Plan, res exp.Result) Header {
	return Header{
		Version: Version,
		Run:     run,
		Plan:    p.Name,
		Start:   res.Start,
		Channel: p.Channel,
		Capture: p.Capture,
	}
}

// NewRecord returns the record of a capture.
func NewRecord(c exp.Capture) Record {
	return Record{
		Node:    c.Node,
		Radio:   c.Radio,
		Settle:  c.Settle,
		Valid:   c.Valid,
		Samples: c.Samples,
		RSSI:    c.RSSI,
	}
}

// Write writes a complete capture file.
func Write(w io.Writer, hdr Header, caps []exp.Capture) error {
	enc := NewEncoder(w)
	err := enc.WriteHeader(&hdr)
	if err != nil {
		return err
	}
	for _, c := range caps {
		rec := NewRecord(c)
		err = enc.Encode(&rec)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadAll reads a complete capture file.
func ReadAll(r io.Reader) (Header, []Record, error) {
	var (
		hdr  Header
		recs []Record
		dec  = NewDecoder(r)
	)
	err := dec.ReadHeader(&hdr)
	if err != nil {
		return hdr, nil, err
	}
	for {
		var rec Record
		err = dec.Decode(&rec)
		if err != nil {
			if err == io.EOF {
				return hdr, recs, nil
			}
			return hdr, recs, fmt.Errorf("capfile: could not read record #%d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}
