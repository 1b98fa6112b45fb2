// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the mDNS service type advertised by nodes.
	Service = "_warpnet._udp"
	// Domain is the mDNS domain nodes are advertised in.
	Domain = "local."
)

// TXT returns the mDNS text records advertising a node.
func TXT(e Entry) []string {
	txt := []string{"id=" + strconv.Itoa(int(e.ID))}
	if len(e.Radios) > 0 {
		rs := make([]string, len(e.Radios))
		for i, r := range e.Radios {
			rs[i] = strconv.Itoa(r)
		}
		txt = append(txt, "radios="+strings.Join(rs, ","))
	}
	return txt
}

// ParseTXT decodes the mDNS text records of a node.
func ParseTXT(txt []string) (Entry, error) {
	var (
		e     Entry
		hasID bool
	)
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "id":
			id, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return e, fmt.Errorf("node: invalid node id %q: %w", v, err)
			}
			e.ID = uint16(id)
			hasID = true
		case "radios":
			for _, s := range strings.Split(v, ",") {
				r, err := strconv.Atoi(s)
				if err != nil {
					return e, fmt.Errorf("node: invalid radio %q: %w", s, err)
				}
				e.Radios = append(e.Radios, r)
			}
		}
	}
	if !hasID {
		return e, fmt.Errorf("node: missing node id in %q", txt)
	}
	return e, nil
}

// Discover browses the local network for advertised nodes until ctx is
// done and returns the entries found, sorted by id.
func Discover(ctx context.Context) ([]Entry, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("node: could not create mDNS resolver: %w", err)
	}

	var (
		entries = make(chan *zeroconf.ServiceEntry)
		found   = make(map[uint16]Entry)
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			select {
			case se, ok := <-entries:
				if !ok {
					return
				}
				if se == nil || len(se.AddrIPv4) == 0 {
					continue
				}
				e, err := ParseTXT(se.Text)
				if err != nil {
					continue
				}
				e.Addr = net.JoinHostPort(se.AddrIPv4[0].String(), strconv.Itoa(se.Port))
				found[e.ID] = e
			case <-ctx.Done():
				return
			}
		}
	}()

	err = resolver.Browse(ctx, Service, Domain, entries)
	if err != nil {
		return nil, fmt.Errorf("node: could not browse %s: %w", Service, err)
	}
	<-done

	out := make([]Entry, 0, len(found))
	for _, e := range found {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
