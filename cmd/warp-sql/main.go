// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// warp-sql inspects the experiment database of a testbed.
//
// Usage: warp-sql [OPTIONS]
//
// Example:
//
//  $> warp-sql -db 'warp:s3cr3t@tcp(db.lab:3306)/warpnet' -testbed lab -runs 2
//  testbed: "lab"
//  node=001 addr=10.0.0.1:9000 radios=[1 2 3 4]
//    radio=1 tx={rf=40 bb=2} rx={rf=3 bb=12}
//  node=002 addr=10.0.0.2:9000 radios=[1 3]
//  runs: 2
//  run=00042 plan="loopback" status=ok captures=1 duration=2.1s file="run-042.wcap"
//  run=00041 plan="loopback" status=failed captures=0 duration=0.6s file=""
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/warpnet/expdb"
	"github.com/go-lpc/warpnet/node"
)

func main() {
	log.SetPrefix("warp-sql: ")
	log.SetFlags(0)

	err := xmain(os.Stdout, os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// store is the subset of the experiment database warp-sql inspects.
type store interface {
	Testbeds(ctx context.Context) ([]string, error)
	Registry(ctx context.Context, testbed string) (node.Registry, error)
	RadioSettings(ctx context.Context, id uint16) ([]expdb.RadioSettings, error)
	Runs(ctx context.Context, n int) ([]expdb.RunLog, error)
}

func xmain(w io.Writer, args []string) error {
	var (
		fset    = flag.NewFlagSet("warp-sql", flag.ContinueOnError)
		dsn     = fset.String("db", "", "experiment database DSN (user:pass@tcp(host:port)/dbname)")
		testbed = fset.String("testbed", "", "testbed to inspect (default: all)")
		nruns   = fset.Int("runs", 10, "number of run-log entries to display")
	)

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	if *dsn == "" {
		fset.Usage()
		return fmt.Errorf("missing experiment database DSN")
	}

	db, err := expdb.Open(*dsn)
	if err != nil {
		return fmt.Errorf("could not open experiment db: %w", err)
	}
	defer db.Close()

	err = doQuery(context.Background(), w, db, *testbed, *nruns)
	if err != nil {
		return fmt.Errorf("could not do query: %w", err)
	}
	return nil
}

func doQuery(ctx context.Context, w io.Writer, db store, testbed string, nruns int) error {
	testbeds := []string{testbed}
	if testbed == "" {
		vs, err := db.Testbeds(ctx)
		if err != nil {
			return fmt.Errorf("could not get testbeds: %w", err)
		}
		testbeds = vs
	}

	for _, name := range testbeds {
		fmt.Fprintf(w, "testbed: %q\n", name)
		reg, err := db.Registry(ctx, name)
		if err != nil {
			return fmt.Errorf("could not get registry of testbed %q: %w", name, err)
		}
		for _, e := range reg.Nodes {
			fmt.Fprintf(w, "node=%03d addr=%s radios=%v\n", e.ID, e.Addr, e.Installed())
			rss, err := db.RadioSettings(ctx, e.ID)
			if err != nil {
				return fmt.Errorf("could not get radio settings of node=%d: %w", e.ID, err)
			}
			for _, rs := range rss {
				fmt.Fprintf(w, "  radio=%d tx={rf=%d bb=%d} rx={rf=%d bb=%d}\n",
					rs.Radio, rs.TX.RF, rs.TX.BB, rs.RX.RF, rs.RX.BB,
				)
			}
		}
	}

	if nruns <= 0 {
		return nil
	}

	runs, err := db.Runs(ctx, nruns)
	if err != nil {
		return fmt.Errorf("could not retrieve run log: %w", err)
	}
	fmt.Fprintf(w, "runs: %d\n", len(runs))
	for _, run := range runs {
		fmt.Fprintf(w, "run=%05d plan=%q status=%s captures=%d duration=%v file=%q\n",
			run.Run, run.Plan, run.Status, run.Captures, run.Stop.Sub(run.Start), run.File,
		)
	}

	return nil
}
