// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/warpnet/internal/fakenode"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func newShellTest(t *testing.T) (*shell, *fakenode.Testbed, *strings.Builder) {
	t.Helper()
	ids := []uint16{1, 2}
	tb, err := fakenode.NewTestbed(param.DefaultRegisterMap(), ids)
	if err != nil {
		t.Fatalf("could not start testbed: %+v", err)
	}
	t.Cleanup(func() { _ = tb.Close() })

	reg := node.NewRegistry()
	for _, id := range ids {
		reg.Nodes = append(reg.Nodes, node.Entry{ID: id, Addr: tb.Addr(id)})
	}
	sess, err := node.Open(context.Background(), reg,
		node.WithSyncEndpoint(tb.Medium),
		node.WithTimeout(200*time.Millisecond),
		node.WithLogger(log.NewMsgStream("warp-shell", log.LvlError, io.Discard)),
	)
	if err != nil {
		t.Fatalf("could not open session: %+v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	out := new(strings.Builder)
	sh, err := newShell(sess, 2, out)
	if err != nil {
		t.Fatalf("could not create shell: %+v", err)
	}
	return sh, tb, out
}

func TestShell(t *testing.T) {
	sh, tb, out := newShellTest(t)
	regs := param.DefaultRegisterMap()

	for _, tc := range []struct {
		line string
		want string
	}{
		{"set channel 6", ""},
		{"get channel", "channel: [6]\n"},
		{fmt.Sprintf("read %d", regs.Channel), fmt.Sprintf("0x%04x: 0x00000006\n", regs.Channel)},
		{fmt.Sprintf("write 0x%x=100", regs.TxDelay), ""},
		{"get tx-delay", "tx-delay: [100]\n"},
		{"rx-gains 1 2 10", ""},
		{"tx-gains 3 40 1", ""},
		{"enable 0x21010", ""},
		{"ops", "ops: rx-radio[1]|rx-buf[1]|rx-start\n"},
		{"disable 0x20000", ""},
		{"ops", "ops: rx-radio[1]|rx-buf[1]\n"},
		{"capture 1 16", "radio 1: 16 samples, overrange=0, power=-Inf dBFS, valid=false\n"},
		{"teardown", ""},
		{"ops", "ops: none\n"},
		{"   ", ""},
	} {
		t.Run(tc.line, func(t *testing.T) {
			out.Reset()
			err := sh.exec(context.Background(), tc.line)
			if err != nil {
				t.Fatalf("could not run %q: %+v", tc.line, err)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", got, want)
			}
		})
	}

	n := tb.Node(2)
	if got, want := n.Reg(regs.RxGains[0]), uint32(2+10*65536); got != want {
		t.Fatalf("invalid rx gains: got=0x%x, want=0x%x", got, want)
	}
	if got, want := n.Reg(regs.TxGains[2]), uint32(40+1*65536); got != want {
		t.Fatalf("invalid tx gains: got=0x%x, want=0x%x", got, want)
	}
	if got := tb.Node(1).Requests(); got != 1 {
		t.Fatalf("commands sent to the wrong node: %d", got)
	}

	out.Reset()
	err := sh.exec(context.Background(), "seq")
	if err != nil {
		t.Fatalf("could not run seq: %+v", err)
	}
	if got, want := out.String(), fmt.Sprintf("seq: %d\n", n.LastSeq()+1); got != want {
		t.Fatalf("invalid seq: got=%q, want=%q", got, want)
	}

	out.Reset()
	err = sh.exec(context.Background(), "agc 1 2")
	if err != nil {
		t.Fatalf("could not run agc: %+v", err)
	}
	if !strings.HasPrefix(out.String(), "settle-index: ") {
		t.Fatalf("invalid agc output: %q", out.String())
	}

	out.Reset()
	err = sh.exec(context.Background(), "help")
	if err != nil {
		t.Fatalf("could not run help: %+v", err)
	}
	if !strings.Contains(out.String(), "  capture RADIO COUNT\n") {
		t.Fatalf("invalid help output:\n%s", out.String())
	}
}

func TestShellErrors(t *testing.T) {
	sh, tb, _ := newShellTest(t)
	nreq := tb.Node(2).Requests()

	for _, line := range []string{
		"bogus",
		"get",
		"get tx-power",
		"set channel",
		"set channel x",
		"set channel 15",
		"set tx-power 1",
		"read",
		"read 0x1ffff",
		"write",
		"write 1",
		"write x=1",
		"write 1=x",
		"enable",
		"enable x",
		"enable 0x1000000",
		"disable 0x1000000",
		"tx-gains 1 2",
		"rx-gains 1 x 2",
		"rx-gains 9 1 1",
		"tx-gains 1 64 0",
		"capture 1",
		"capture 1 x",
		"capture 1 16385",
		"agc x",
	} {
		t.Run(line, func(t *testing.T) {
			err := sh.exec(context.Background(), line)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	if got := tb.Node(2).Requests(); got != nreq {
		t.Fatalf("invalid commands reached the node: got=%d, want=%d", got, nreq)
	}

	err := sh.exec(context.Background(), "trigger")
	if !errors.Is(err, node.ErrNotArmed) {
		t.Fatalf("invalid trigger error: %+v", err)
	}

	for _, line := range []string{"quit", "exit"} {
		err := sh.exec(context.Background(), line)
		if !errors.Is(err, errQuit) {
			t.Fatalf("invalid %q error: %+v", line, err)
		}
	}
}

func TestComplete(t *testing.T) {
	sh, _, _ := newShellTest(t)
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"t", []string{"teardown", "trigger", "tx-gains"}},
		{"rx", []string{"rx-gains"}},
		{"zz", nil},
	} {
		if got := sh.complete(tc.line); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("invalid completion of %q: got=%q, want=%q", tc.line, got, tc.want)
		}
	}
}
