// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

// Registry returns the nodes of the named testbed, with the default
// register map.
func (db *DB) Registry(ctx context.Context, testbed string) (node.Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reg := node.NewRegistry()
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, addr, radios FROM nodes WHERE testbed=? ORDER BY id",
		testbed,
	)
	if err != nil {
		return reg, fmt.Errorf("expdb: could not query nodes of testbed %q: %w", testbed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e      node.Entry
			radios string
		)
		err = rows.Scan(&e.ID, &e.Addr, &radios)
		if err != nil {
			return reg, fmt.Errorf("expdb: could not scan node of testbed %q: %w", testbed, err)
		}
		e.Radios, err = parseRadios(radios)
		if err != nil {
			return reg, fmt.Errorf("expdb: node %d of testbed %q: %w", e.ID, testbed, err)
		}
		reg.Nodes = append(reg.Nodes, e)
	}

	if err := rows.Err(); err != nil {
		return reg, fmt.Errorf("expdb: could not scan db for nodes: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return reg, fmt.Errorf("expdb: context error while retrieving nodes: %w", err)
	}

	if len(reg.Nodes) == 0 {
		return reg, fmt.Errorf("expdb: no node in testbed %q", testbed)
	}

	return reg, nil
}

// parseRadios parses a comma separated list of radios.
// An empty list stands for all radios.
func parseRadios(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var rs []int
	for _, v := range strings.Split(s, ",") {
		r, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("could not parse radio %q: %w", v, err)
		}
		err = param.ValidateRadio(r)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// RadioSettings holds the default gains of a radio.
type RadioSettings struct {
	Node  uint16
	Radio int
	TX    param.Gains
	RX    param.Gains
}

// RadioSettings returns the default gains of the radios of node id.
func (db *DB) RadioSettings(ctx context.Context, id uint16) ([]RadioSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rss []RadioSettings
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT radio, tx_rf, tx_bb, rx_rf, rx_bb FROM radios WHERE node=? ORDER BY radio",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("expdb: could not query radios of node=%d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		rs := RadioSettings{Node: id}
		err = rows.Scan(&rs.Radio, &rs.TX.RF, &rs.TX.BB, &rs.RX.RF, &rs.RX.BB)
		if err != nil {
			return nil, fmt.Errorf("expdb: could not scan radios of node=%d: %w", id, err)
		}
		rss = append(rss, rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expdb: could not scan db for radios: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("expdb: context error while retrieving radios: %w", err)
	}

	return rss, nil
}

// Apply fills the gains the plan leaves unset with the default gains of
// the database.
func (db *DB) Apply(ctx context.Context, p *exp.Plan) error {
	for i := range p.Nodes {
		np := &p.Nodes[i]
		rss, err := db.RadioSettings(ctx, np.ID)
		if err != nil {
			return err
		}
		defaults := make(map[int]RadioSettings, len(rss))
		for _, rs := range rss {
			defaults[rs.Radio] = rs
		}
		for j := range np.TX {
			rp := &np.TX[j]
			if rs, ok := defaults[rp.Radio]; ok && rp.Gains == nil {
				g := rs.TX
				rp.Gains = &g
			}
		}
		for j := range np.RX {
			rp := &np.RX[j]
			if rs, ok := defaults[rp.Radio]; ok && rp.Gains == nil {
				g := rs.RX
				rp.Gains = &g
			}
		}
	}
	return nil
}

// Testbeds returns the names of the testbeds known to the database.
func (db *DB) Testbeds(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(ctx, "SELECT DISTINCT testbed FROM nodes ORDER BY testbed")
	if err != nil {
		return nil, fmt.Errorf("expdb: could not query testbeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, fmt.Errorf("expdb: could not scan testbed: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expdb: could not scan db for testbeds: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("expdb: context error while retrieving testbeds: %w", err)
	}

	return names, nil
}
