// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command warp-node emulates a bench of radio nodes sharing one radio
// channel.
//
// Each node listens for commands on its own UDP port, starting from the
// port of -addr (consecutive ports, or ephemeral ones when the port is 0).
// The sync broadcast is received on -sync.
//
// Usage: warp-node [OPTIONS]
//
// Example:
//
//  $> warp-node -ids 1,2,3 -addr 0.0.0.0:9000 -sync :9090 -registry testbed.json -advertise
//  warp-node: node=1 listening on 0.0.0.0:9000
//  warp-node: node=2 listening on 0.0.0.0:9001
//  warp-node: node=3 listening on 0.0.0.0:9002
//  warp-node: sync listening on [::]:9090
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/warpnet/internal/fakenode"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func main() {
	log.SetPrefix("warp-node: ")
	log.SetFlags(0)

	err := xmain(os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type config struct {
	ids       []uint16
	addr      string
	sync      string
	registry  string // path of the registry to write, if any
	advertise bool
	rssi      int
	gain      float64
	verbose   bool
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("warp-node", flag.ContinueOnError)

		ids   = fset.String("ids", "1", "comma separated list of node ids")
		addr  = fset.String("addr", "127.0.0.1:9000", "[ip]:port of the first node")
		sync  = fset.String("sync", ":9090", "[ip]:port to receive the sync broadcast on")
		reg   = fset.String("registry", "", "path to the registry file to write")
		adv   = fset.Bool("advertise", false, "advertise the nodes over mDNS")
		rssi  = fset.Int("rssi", fakenode.DefaultRSSI, "RSSI seen by the radios (dBm)")
		gain  = fset.Float64("gain", 1, "amplitude gain of the radio channel")
		vflag = fset.Bool("v", false, "enable verbose mode")
	)

	err := fset.Parse(args)
	if err != nil {
		return err
	}

	cfg := config{
		addr:      *addr,
		sync:      *sync,
		registry:  *reg,
		advertise: *adv,
		rssi:      *rssi,
		gain:      *gain,
		verbose:   *vflag,
	}
	cfg.ids, err = parseIDs(*ids)
	if err != nil {
		return err
	}

	b, err := listen(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	if cfg.registry != "" {
		err = b.writeRegistry(cfg.registry)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.advertise {
		shutdown, err := b.advertise()
		if err != nil {
			return err
		}
		defer shutdown()
	}

	return b.serve(ctx)
}

func parseIDs(s string) ([]uint16, error) {
	var (
		ids  []uint16
		seen = make(map[uint16]bool)
	)
	for _, v := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("could not parse node id %q: %w", v, err)
		}
		if seen[uint16(id)] {
			return nil, fmt.Errorf("duplicate node id %d", id)
		}
		seen[uint16(id)] = true
		ids = append(ids, uint16(id))
	}
	return ids, nil
}

// bench is a set of emulated nodes sharing a medium.
type bench struct {
	medium *fakenode.Medium
	nodes  []*fakenode.Node
	conns  []net.PacketConn // one per node, then the sync endpoint
}

func listen(cfg config) (*bench, error) {
	host, port, err := net.SplitHostPort(cfg.addr)
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", cfg.addr, err)
	}
	base, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid node port %q: %w", port, err)
	}

	var opts []fakenode.Option
	if cfg.verbose {
		opts = append(opts, fakenode.WithLogger(log.New(os.Stderr, "warp-node: ", 0)))
	}

	b := &bench{medium: fakenode.NewMedium()}
	b.medium.SetGain(cfg.gain)
	for i, id := range cfg.ids {
		n := fakenode.New(id, param.DefaultRegisterMap(), opts...)
		for r := 1; r <= param.NumRadios; r++ {
			n.SetRSSI(r, cfg.rssi)
		}
		b.medium.Attach(n)
		b.nodes = append(b.nodes, n)

		p := 0
		if base != 0 {
			p = base + i
		}
		addr := net.JoinHostPort(host, strconv.Itoa(p))
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			_ = b.close()
			return nil, fmt.Errorf("could not listen on %q for node=%d: %w", addr, id, err)
		}
		b.conns = append(b.conns, conn)
		log.Printf("node=%d listening on %s", id, conn.LocalAddr())
	}

	conn, err := net.ListenPacket("udp", cfg.sync)
	if err != nil {
		_ = b.close()
		return nil, fmt.Errorf("could not listen on %q for sync: %w", cfg.sync, err)
	}
	b.conns = append(b.conns, conn)
	log.Printf("sync listening on %s", conn.LocalAddr())

	return b, nil
}

// registry returns the registry describing the bench.
func (b *bench) registry() node.Registry {
	reg := node.NewRegistry()
	for i, n := range b.nodes {
		reg.Nodes = append(reg.Nodes, node.Entry{
			ID:   n.ID(),
			Addr: b.conns[i].LocalAddr().String(),
		})
	}
	return reg
}

// syncAddr returns the address the bench receives the sync broadcast on.
func (b *bench) syncAddr() string {
	return b.conns[len(b.conns)-1].LocalAddr().String()
}

func (b *bench) writeRegistry(fname string) error {
	raw, err := json.MarshalIndent(b.registry(), "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode registry: %w", err)
	}
	err = os.WriteFile(fname, append(raw, '\n'), 0644)
	if err != nil {
		return fmt.Errorf("could not write registry: %w", err)
	}
	return nil
}

// advertise registers every node as an mDNS service.
func (b *bench) advertise() (func(), error) {
	var srvs []*zeroconf.Server
	shutdown := func() {
		for _, srv := range srvs {
			srv.Shutdown()
		}
	}
	for i, n := range b.nodes {
		e := node.Entry{ID: n.ID()}
		port := b.conns[i].LocalAddr().(*net.UDPAddr).Port
		name := fmt.Sprintf("warp-node-%d", e.ID)
		srv, err := zeroconf.Register(name, node.Service, node.Domain, port, node.TXT(e), nil)
		if err != nil {
			shutdown()
			return nil, fmt.Errorf("could not advertise node=%d: %w", e.ID, err)
		}
		srvs = append(srvs, srv)
	}
	return shutdown, nil
}

// serve answers commands and syncs until ctx is done.
// All syncs are consumed by the first node, which runs them on the
// shared medium.
func (b *bench) serve(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	for i, conn := range b.conns {
		n := b.nodes[0]
		if i < len(b.nodes) {
			n = b.nodes[i]
		}
		conn := conn
		grp.Go(func() error {
			return n.Serve(ctx, conn)
		})
	}
	return grp.Wait()
}

func (b *bench) close() error {
	var errs []error
	for _, conn := range b.conns {
		err := conn.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
