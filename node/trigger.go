// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-lpc/warpnet/internal/wire"
)

// Trigger broadcasts the sync signal observed by all armed nodes.
// The sync packet has no payload and is never acknowledged.
type Trigger struct {
	mu     sync.Mutex
	w      io.WriteCloser
	enc    *wire.Encoder
	seq    uint32
	jitter int
	met    *metrics
}

func newTrigger(w io.WriteCloser, jitter int, met *metrics) *Trigger {
	return &Trigger{
		w:      w,
		enc:    wire.NewEncoder(w),
		jitter: jitter,
		met:    met,
	}
}

// Jitter returns the bound, in samples, on the arrival time differences
// of the sync signal across nodes.
func (t *Trigger) Jitter() int { return t.jitter }

// Count returns the number of sync signals sent.
func (t *Trigger) Count() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

func (t *Trigger) fire() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	err := t.enc.Encode(&wire.Packet{
		Kind: wire.Sync,
		Node: wire.BroadcastNode,
		Seq:  t.seq,
	})
	if err != nil {
		return fmt.Errorf("node: could not broadcast sync: %w", err)
	}
	t.met.trigger()
	return nil
}

func (t *Trigger) close() error {
	return t.w.Close()
}
