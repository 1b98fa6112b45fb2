// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command warp-shell is an interactive command shell for a single node.
//
// Usage: warp-shell [OPTIONS] -addr host:port
//
// Example:
//
//  $> warp-shell -addr 10.0.0.2:9000 -id 2
//  warp(2)> set channel 6
//  warp(2)> get channel
//  channel: [6]
//  warp(2)> rx-gains 1 2 10
//  warp(2)> enable 0x21010
//  warp(2)> ops
//  ops: rx-radio[1]|rx-buf[1]|rx-start
//  warp(2)> quit
package main // import "github.com/go-lpc/warpnet/cmd/warp-shell"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/peterh/liner"

	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func main() {
	stdlog.SetPrefix("warp-shell: ")
	stdlog.SetFlags(0)

	var (
		addr    = flag.String("addr", "", "[ip]:port of the node")
		id      = flag.Uint("id", 1, "id of the node")
		bcast   = flag.String("sync", node.DefaultBroadcast, "[ip]:port of the sync broadcast")
		timeout = flag.Duration("timeout", node.DefaultTimeout, "per-command timeout")
		hist    = flag.String("history", filepath.Join(os.TempDir(), ".warp-shell.history"), "path to the history file")
		vflag   = flag.Bool("v", false, "enable verbose mode")
	)
	flag.Parse()

	if *addr == "" {
		flag.Usage()
		stdlog.Fatalf("missing node address")
	}

	lvl := log.LvlError
	if *vflag {
		lvl = log.LvlDebug
	}

	ctx := context.Background()
	sess, err := node.Open(ctx,
		node.NewRegistry(node.Entry{ID: uint16(*id), Addr: *addr}),
		node.WithTimeout(*timeout),
		node.WithBroadcast(*bcast),
		node.WithLogger(log.NewMsgStream("warp-shell", lvl, os.Stderr)),
	)
	if err != nil {
		stdlog.Fatalf("could not open session: %+v", err)
	}
	defer sess.Close()

	sh, err := newShell(sess, uint16(*id), os.Stdout)
	if err != nil {
		stdlog.Fatalf("%+v", err)
	}

	err = sh.run(ctx, *hist)
	if err != nil {
		stdlog.Fatalf("%+v", err)
	}
}

var errQuit = errors.New("quit")

type shell struct {
	sess *node.Session
	node *node.Node
	w    io.Writer
	cmds map[string]command
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

func newShell(sess *node.Session, id uint16, w io.Writer) (*shell, error) {
	n, err := sess.Node(id)
	if err != nil {
		return nil, err
	}
	sh := &shell{sess: sess, node: n, w: w}
	sh.cmds = map[string]command{
		"help":     {"help", sh.help},
		"get":      {"get PARAM", sh.get},
		"set":      {"set PARAM VALUE...", sh.set},
		"tx-gains": {"tx-gains RADIO RF BB", sh.gains(true)},
		"rx-gains": {"rx-gains RADIO RF BB", sh.gains(false)},
		"read":     {"read ADDR...", sh.read},
		"write":    {"write ADDR=VALUE...", sh.write},
		"enable":   {"enable OPS", sh.enable(true)},
		"disable":  {"disable OPS", sh.enable(false)},
		"ops":      {"ops", sh.ops},
		"seq":      {"seq", sh.seq},
		"trigger":  {"trigger", sh.trigger},
		"capture":  {"capture RADIO COUNT", sh.capture},
		"agc":      {"agc RADIO...", sh.agc},
		"teardown": {"teardown", sh.teardown},
		"quit":     {"quit", sh.quit},
		"exit":     {"exit", sh.quit},
	}
	return sh, nil
}

func (sh *shell) run(ctx context.Context, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	prompt := fmt.Sprintf("warp(%d)> ", sh.node.ID)
	for {
		line, err := term.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(ctx, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(sh.w, "error: %+v\n", err)
		}
	}
}

func (sh *shell) complete(line string) []string {
	var out []string
	for name := range sh.cmds {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// exec runs one command line.
func (sh *shell) exec(ctx context.Context, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[toks[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", toks[0])
	}
	return cmd.run(ctx, toks[1:])
}

func (sh *shell) help(ctx context.Context, args []string) error {
	names := make([]string, 0, len(sh.cmds))
	for name := range sh.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "  %s\n", sh.cmds[name].usage)
	}
	return nil
}

func (sh *shell) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", sh.cmds["get"].usage)
	}
	p, err := param.ParseParam(args[0])
	if err != nil {
		return err
	}
	vs, err := sh.node.Get(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "%v: %v\n", p, vs)
	return nil
}

func (sh *shell) set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", sh.cmds["set"].usage)
	}
	p, err := param.ParseParam(args[0])
	if err != nil {
		return err
	}
	vs, err := atois(args[1:])
	if err != nil {
		return err
	}
	return sh.node.Set(ctx, p, vs...)
}

func (sh *shell) gains(tx bool) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) != 3 {
			name := "rx-gains"
			if tx {
				name = "tx-gains"
			}
			return fmt.Errorf("usage: %s", sh.cmds[name].usage)
		}
		vs, err := atois(args)
		if err != nil {
			return err
		}
		r, err := sh.node.Radio(vs[0])
		if err != nil {
			return err
		}
		g := param.Gains{RF: vs[1], BB: vs[2]}
		if tx {
			return r.SetTxGains(ctx, g)
		}
		return r.SetRxGains(ctx, g)
	}
}

func (sh *shell) read(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", sh.cmds["read"].usage)
	}
	addrs := make([]uint16, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid register address %q: %w", arg, err)
		}
		addrs[i] = uint16(v)
	}
	vs, err := sh.node.ReadRegs(ctx, addrs...)
	if err != nil {
		return err
	}
	for i, v := range vs {
		fmt.Fprintf(sh.w, "0x%04x: 0x%08x\n", addrs[i], v)
	}
	return nil
}

func (sh *shell) write(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", sh.cmds["write"].usage)
	}
	ws := make([]node.RegWrite, len(args))
	for i, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid register write %q", arg)
		}
		addr, err := strconv.ParseUint(k, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid register address %q: %w", k, err)
		}
		val, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid register value %q: %w", v, err)
		}
		ws[i] = node.RegWrite{Addr: uint16(addr), Value: uint32(val)}
	}
	return sh.node.WriteRegs(ctx, ws...)
}

func (sh *shell) enable(on bool) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: enable|disable OPS")
		}
		v, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid op set %q: %w", args[0], err)
		}
		if on {
			return sh.node.Enable(ctx, param.OpSet(v))
		}
		return sh.node.Disable(ctx, param.OpSet(v))
	}
}

func (sh *shell) ops(ctx context.Context, args []string) error {
	fmt.Fprintf(sh.w, "ops: %v\n", sh.node.Ops())
	return nil
}

func (sh *shell) seq(ctx context.Context, args []string) error {
	fmt.Fprintf(sh.w, "seq: %d\n", sh.node.Seq())
	return nil
}

func (sh *shell) trigger(ctx context.Context, args []string) error {
	return sh.sess.Trigger(ctx)
}

func (sh *shell) capture(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", sh.cmds["capture"].usage)
	}
	vs, err := atois(args)
	if err != nil {
		return err
	}
	buf, err := sh.node.Retrieve(ctx, vs[0], vs[1])
	if err != nil {
		return err
	}
	st := iq.Summary(buf)
	fmt.Fprintf(sh.w, "radio %d: %d samples, overrange=%d, power=%.2f dBFS, valid=%v\n",
		vs[0], st.N, st.Overrange, st.Power, iq.Valid(buf.Samples),
	)
	return nil
}

func (sh *shell) agc(ctx context.Context, args []string) error {
	rs, err := atois(args)
	if err != nil {
		return err
	}
	res, err := sh.node.ReadAGC(ctx, rs...)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "settle-index: %d (triggered=%v)\n", res.SettleIndex, res.Triggered)
	for _, r := range res.Radios {
		fmt.Fprintf(sh.w, "  %v\n", r)
	}
	return nil
}

func (sh *shell) teardown(ctx context.Context, args []string) error {
	return sh.node.Teardown(ctx)
}

func (sh *shell) quit(ctx context.Context, args []string) error {
	return errQuit
}

func atois(args []string) ([]int, error) {
	vs := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		vs[i] = v
	}
	return vs, nil
}
