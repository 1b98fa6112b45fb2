// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/param"
)

// Entry describes a node of the registry.
type Entry struct {
	ID     uint16 `json:"id"`
	Addr   string `json:"addr"`   // control endpoint, host:port
	Radios []int  `json:"radios"` // installed radios, all of them when empty
}

// Installed returns the installed radios of the entry.
func (e Entry) Installed() []int {
	if len(e.Radios) == 0 {
		rs := make([]int, param.NumRadios)
		for i := range rs {
			rs[i] = i + 1
		}
		return rs
	}
	return e.Radios
}

// Registry is the explicit configuration handed to a session: the
// register layout of the node firmware and the nodes of the testbed.
type Registry struct {
	Regs  param.RegisterMap `json:"registers"`
	Nodes []Entry           `json:"nodes"`
}

// NewRegistry returns a registry using the default register map.
func NewRegistry(nodes ...Entry) Registry {
	return Registry{
		Regs:  param.DefaultRegisterMap(),
		Nodes: nodes,
	}
}

// LoadRegistry decodes a JSON registry.
// Missing register addresses default to the reference firmware ones.
func LoadRegistry(r io.Reader) (Registry, error) {
	reg := Registry{Regs: param.DefaultRegisterMap()}
	err := json.NewDecoder(r).Decode(&reg)
	if err != nil {
		return reg, fmt.Errorf("node: could not decode registry: %w", err)
	}
	err = reg.Validate()
	if err != nil {
		return reg, err
	}
	return reg, nil
}

// Validate checks the register map and that nodes have distinct ids and
// valid radios.
func (reg Registry) Validate() error {
	err := reg.Regs.Validate()
	if err != nil {
		return fmt.Errorf("node: invalid register map: %w", err)
	}
	if len(reg.Nodes) == 0 {
		return fmt.Errorf("node: empty registry")
	}

	seen := make(map[uint16]bool, len(reg.Nodes))
	for _, e := range reg.Nodes {
		if seen[e.ID] {
			return fmt.Errorf("node: duplicate node id %d", e.ID)
		}
		seen[e.ID] = true
		if e.ID == wire.BroadcastNode {
			return fmt.Errorf("node: node id %d is reserved for broadcast", e.ID)
		}
		if e.Addr == "" {
			return fmt.Errorf("node: node %d has no address", e.ID)
		}
		for _, r := range e.Radios {
			if err := param.ValidateRadio(r); err != nil {
				return fmt.Errorf("node: node %d: %w", e.ID, err)
			}
		}
	}
	return nil
}

// Lookup returns the entry of node id.
func (reg Registry) Lookup(id uint16) (Entry, bool) {
	for _, e := range reg.Nodes {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// IDs returns the sorted node ids of the registry.
func (reg Registry) IDs() []uint16 {
	ids := make([]uint16, len(reg.Nodes))
	for i, e := range reg.Nodes {
		ids[i] = e.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
