// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// warp-dump decodes and displays capture files.
//
// Usage: warp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> warp-dump -n 2 ./run-042.wcap
//  === run 42 (loopback) ===
//  start:   2026-10-19T10:00:00Z
//  channel:        11
//  delay:         100
//  length:       1000
//  mode:       single
//  --- node=2 radio=2 ---
//  samples:      1100 (overrange=0)
//  settle:          0
//  valid:        true
//  mean:    I=+0.0012 Q=-0.0003
//  power:      -6.02 dBFS (peak-bin=34)
//  rssi:          275 values
//    [     0] +0.0000 +0.0000
//    [     1] +0.0000 +0.0000
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/warpnet/capfile"
	"github.com/go-lpc/warpnet/internal/mmap"
	"github.com/go-lpc/warpnet/iq"
)

func main() {
	log.SetPrefix("warp-dump: ")
	log.SetFlags(0)

	err := xmain(os.Stdout, os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(w io.Writer, args []string) error {
	var (
		fset = flag.NewFlagSet("warp-dump", flag.ContinueOnError)
		nsmp = fset.Int("n", 0, "number of samples to display per record")
	)

	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `warp-dump decodes and displays capture files.

Usage: warp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> warp-dump -n 2 ./run-042.wcap

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if fset.NArg() == 0 {
		fset.Usage()
		return fmt.Errorf("missing path to input capture file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *nsmp)
		if err != nil {
			return fmt.Errorf("could not dump file %q: %w", fname, err)
		}
	}
	return nil
}

func process(w io.Writer, fname string, nsmp int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := capfile.NewDecoder(io.NewSectionReader(f, 0, int64(f.Len())))

	var hdr capfile.Header
	err = dec.ReadHeader(&hdr)
	if err != nil {
		return fmt.Errorf("could not decode header: %w", err)
	}
	fmt.Fprintf(wbuf, "=== run %d (%s) ===\n", hdr.Run, hdr.Plan)
	fmt.Fprintf(wbuf, "start:   %s\n", hdr.Start.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(wbuf, "channel: % 9d\n", hdr.Channel)
	fmt.Fprintf(wbuf, "delay:   % 9d\n", hdr.Capture.Delay)
	fmt.Fprintf(wbuf, "length:  % 9d\n", hdr.Capture.Length)
	fmt.Fprintf(wbuf, "mode:    %9s\n", hdr.Capture.Mode)

loop:
	for {
		var rec capfile.Record
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode record: %w", err)
		}
		st := iq.Summary(rec.Samples)
		fmt.Fprintf(wbuf, "--- node=%d radio=%d ---\n", rec.Node, rec.Radio)
		fmt.Fprintf(wbuf, "samples: % 9d (overrange=%d)\n", st.N, st.Overrange)
		fmt.Fprintf(wbuf, "settle:  % 9d\n", rec.Settle)
		fmt.Fprintf(wbuf, "valid:   %9v\n", rec.Valid)
		fmt.Fprintf(wbuf, "mean:    I=%+.4f Q=%+.4f\n", st.MeanI, st.MeanQ)
		fmt.Fprintf(wbuf, "power:   % 9.2f dBFS (peak-bin=%d)\n", st.Power, st.PeakBin)
		fmt.Fprintf(wbuf, "rssi:    % 9d values\n", len(rec.RSSI))

		n := nsmp
		if n > st.N {
			n = st.N
		}
		for i, v := range rec.Samples.Samples[:n] {
			fmt.Fprintf(wbuf, "  [% 6d] %+.4f %+.4f\n", i, real(v), imag(v))
		}
	}

	return nil
}
