// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/internal/fakedb"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func init() {
	drvName = "fakedb"
}

func open(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DSN("warp", "s3cr3t", "localhost:3306", "warpnet"))
	if err != nil {
		t.Fatalf("could not open expdb: %+v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	db := open(t)
	if got, want := db.Name(), "warpnet"; got != want {
		t.Fatalf("invalid db name: got=%q, want=%q", got, want)
	}

	_, err := Open("not a dsn")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestDSN(t *testing.T) {
	got := DSN("warp", "s3cr3t", "db.lab:3306", "warpnet")
	if want := "warp:s3cr3t@tcp(db.lab:3306)/warpnet"; got != want {
		t.Fatalf("invalid DSN: got=%q, want=%q", got, want)
	}
}

func TestRegistry(t *testing.T) {
	db := open(t)

	_, err := fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "addr", "radios"},
		Values: [][]driver.Value{
			{int64(1), "10.0.0.1:9000", ""},
			{int64(2), "10.0.0.2:9000", "1, 3"},
		},
	}, func(ctx context.Context) error {
		reg, err := db.Registry(ctx, "lab")
		if err != nil {
			t.Fatalf("could not retrieve registry: %+v", err)
		}
		want := node.NewRegistry(
			node.Entry{ID: 1, Addr: "10.0.0.1:9000"},
			node.Entry{ID: 2, Addr: "10.0.0.2:9000", Radios: []int{1, 3}},
		)
		if !reflect.DeepEqual(reg, want) {
			t.Fatalf("invalid registry:\ngot= %+v\nwant=%+v", reg, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("could not run query: %+v", err)
	}

	for _, tc := range []struct {
		name string
		rows fakedb.Rows
	}{
		{"empty", fakedb.Rows{Names: []string{"id", "addr", "radios"}}},
		{"radio", fakedb.Rows{
			Names:  []string{"id", "addr", "radios"},
			Values: [][]driver.Value{{int64(1), "a:1", "5"}},
		}},
		{"radio-syntax", fakedb.Rows{
			Names:  []string{"id", "addr", "radios"},
			Values: [][]driver.Value{{int64(1), "a:1", "1;2"}},
		}},
		{"node-id", fakedb.Rows{
			Names:  []string{"id", "addr", "radios"},
			Values: [][]driver.Value{{int64(70000), "a:1", ""}},
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _ = fakedb.Run(context.Background(), tc.rows, func(ctx context.Context) error {
				_, err := db.Registry(ctx, "lab")
				if err == nil {
					t.Fatalf("expected an error")
				}
				return nil
			})
		})
	}
}

func TestTestbeds(t *testing.T) {
	db := open(t)

	_, err := fakedb.Run(context.Background(), fakedb.Rows{
		Names:  []string{"testbed"},
		Values: [][]driver.Value{{"lab"}, {"roof"}},
	}, func(ctx context.Context) error {
		names, err := db.Testbeds(ctx)
		if err != nil {
			return err
		}
		if got, want := names, []string{"lab", "roof"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid testbeds: got=%q, want=%q", got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("could not retrieve testbeds: %+v", err)
	}
}

func TestApply(t *testing.T) {
	db := open(t)

	p := exp.Plan{
		Nodes: []exp.NodePlan{
			{
				ID: 1,
				TX: []exp.RadioPlan{
					{Radio: 1},
					{Radio: 2, Gains: &param.Gains{RF: 10, BB: 1}},
					{Radio: 4},
				},
				RX: []exp.RadioPlan{{Radio: 1}},
			},
		},
	}

	_, err := fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"radio", "tx_rf", "tx_bb", "rx_rf", "rx_bb"},
		Values: [][]driver.Value{
			{int64(1), int64(40), int64(2), int64(3), int64(12)},
			{int64(2), int64(41), int64(3), int64(2), int64(13)},
		},
	}, func(ctx context.Context) error {
		return db.Apply(ctx, &p)
	})
	if err != nil {
		t.Fatalf("could not apply radio settings: %+v", err)
	}

	np := p.Nodes[0]
	for _, tc := range []struct {
		name string
		got  *param.Gains
		want *param.Gains
	}{
		{"tx1", np.TX[0].Gains, &param.Gains{RF: 40, BB: 2}},
		{"tx2", np.TX[1].Gains, &param.Gains{RF: 10, BB: 1}},
		{"tx4", np.TX[2].Gains, nil},
		{"rx1", np.RX[0].Gains, &param.Gains{RF: 3, BB: 12}},
	} {
		if !reflect.DeepEqual(tc.got, tc.want) {
			t.Fatalf("%s: invalid gains: got=%+v, want=%+v", tc.name, tc.got, tc.want)
		}
	}
}

func TestLastRun(t *testing.T) {
	db := open(t)

	_, _ = fakedb.Run(context.Background(), fakedb.Rows{
		Names:  []string{"run"},
		Values: [][]driver.Value{{int64(139)}},
	}, func(ctx context.Context) error {
		run, err := db.LastRun(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last run: %+v", err)
		}
		if got, want := run, uint32(139); got != want {
			t.Fatalf("invalid last run: got=%d, want=%d", got, want)
		}
		return nil
	})

	_, _ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run"},
	}, func(ctx context.Context) error {
		run, err := db.LastRun(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last run: %+v", err)
		}
		if run != 0 {
			t.Fatalf("invalid last run of empty log: %d", run)
		}
		return nil
	})
}

func TestRunLog(t *testing.T) {
	db := open(t)

	var (
		start = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
		stop  = start.Add(3 * time.Second)
		want  = RunLog{
			Run:      7,
			Plan:     "loopback",
			Start:    start,
			Stop:     stop,
			Captures: 2,
			Status:   StatusOK,
			File:     "run-007.wcap",
		}
	)

	execs, err := fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		return db.LogRun(ctx, want)
	})
	if err != nil {
		t.Fatalf("could not log run: %+v", err)
	}
	if got, want := len(execs), 1; got != want {
		t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
	}
	args := []driver.Value{int64(7), "loopback", start, stop, int64(2), "ok", "run-007.wcap"}
	if got := execs[0].Args; !reflect.DeepEqual(got, args) {
		t.Fatalf("invalid statement arguments:\ngot= %v\nwant=%v", got, args)
	}

	_, _ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run", "plan", "start", "stop", "captures", "status", "file"},
		Values: [][]driver.Value{
			{int64(7), "loopback", start, stop, int64(2), "ok", "run-007.wcap"},
		},
	}, func(ctx context.Context) error {
		logs, err := db.Runs(ctx, 10)
		if err != nil {
			t.Fatalf("could not retrieve run log: %+v", err)
		}
		if got, want := logs, []RunLog{want}; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid run log:\ngot= %+v\nwant=%+v", got, want)
		}
		return nil
	})

	boom := errors.New("boom")
	err = fakedb.Fail(context.Background(), boom, func(ctx context.Context) error {
		return db.LogRun(ctx, want)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("invalid error: %+v", err)
	}
}
