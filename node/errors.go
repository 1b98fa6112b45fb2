// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"errors"
	"fmt"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/param"
)

var (
	// ErrTimeout is matched by errors of commands that were not
	// acknowledged in time.
	ErrTimeout = errors.New("node: command timed out")
	// ErrRejected is matched by errors of commands a node refused.
	ErrRejected = errors.New("node: command rejected")
	// ErrStale is matched by errors of commands a node refused because
	// their sequence number was not greater than the last accepted one.
	ErrStale = errors.New("node: stale sequence number")
	// ErrNotArmed is returned when the sync trigger is requested while a
	// node of the run has not acknowledged its arming.
	ErrNotArmed = errors.New("node: trigger before all nodes armed")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("node: session closed")
	// ErrUnknownNode is returned when a node id is not in the registry.
	ErrUnknownNode = errors.New("node: unknown node")
)

// TimeoutError describes a command without acknowledgment.
type TimeoutError struct {
	Node uint16
	Kind wire.Kind
	Ops  param.OpSet // for enable and disable commands
	Seq  uint32
}

func (e *TimeoutError) Error() string {
	if e.Kind == wire.Enable || e.Kind == wire.Disable {
		return fmt.Sprintf("node: node=%d %v(%v) seq=%d: no acknowledgment", e.Node, e.Kind, e.Ops, e.Seq)
	}
	return fmt.Sprintf("node: node=%d %v seq=%d: no acknowledgment", e.Node, e.Kind, e.Seq)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RejectError describes a command acknowledged with a failure status.
type RejectError struct {
	Node   uint16
	Kind   wire.Kind
	Seq    uint32
	Status wire.Status
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("node: node=%d %v seq=%d: rejected (%v)", e.Node, e.Kind, e.Seq, e.Status)
}

func (e *RejectError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return true
	case ErrStale:
		return e.Status == wire.StatusStale
	}
	return false
}
