// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Endpoint is the control endpoint of a node.
// Each Write sends one packet and each Read returns one packet, as with
// a connected UDP socket.
type Endpoint interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Dialer connects to the control endpoint of the node at addr.
type Dialer func(ctx context.Context, addr string) (Endpoint, error)

func dialUDP(ctx context.Context, addr string) (Endpoint, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("node: could not dial %q: %w", addr, err)
	}
	return conn, nil
}

// DialSync connects to the given sync addresses.
// The returned writer sends each packet to every address.
func DialSync(ctx context.Context, addrs ...string) (io.WriteCloser, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("node: no sync address")
	}
	var d net.Dialer
	fanout := make(syncFanout, 0, len(addrs))
	for _, addr := range addrs {
		conn, err := d.DialContext(ctx, "udp", addr)
		if err != nil {
			_ = fanout.Close()
			return nil, fmt.Errorf("node: could not dial sync address %q: %w", addr, err)
		}
		fanout = append(fanout, conn)
	}
	return fanout, nil
}

type syncFanout []net.Conn

func (fan syncFanout) Write(p []byte) (int, error) {
	for _, conn := range fan {
		_, err := conn.Write(p)
		if err != nil {
			return 0, fmt.Errorf("node: could not send sync to %v: %w", conn.RemoteAddr(), err)
		}
	}
	return len(p), nil
}

func (fan syncFanout) Close() error {
	var errs []error
	for _, conn := range fan {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}
