// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/warpnet/param"
)

func TestLoadRegistry(t *testing.T) {
	const raw = `{
	"registers": {"channel": 4096},
	"nodes": [
		{"id": 3, "addr": "10.0.0.3:9000"},
		{"id": 1, "addr": "10.0.0.1:9000", "radios": [1, 2]}
	]
}`
	reg, err := LoadRegistry(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("could not load registry: %+v", err)
	}

	if got, want := reg.Regs.Channel, uint16(4096); got != want {
		t.Fatalf("invalid channel register: got=0x%x, want=0x%x", got, want)
	}
	if got, want := reg.Regs.TxDelay, param.DefaultRegisterMap().TxDelay; got != want {
		t.Fatalf("invalid default register: got=0x%x, want=0x%x", got, want)
	}
	if got, want := reg.IDs(), []uint16{1, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid ids: got=%v, want=%v", got, want)
	}

	e, ok := reg.Lookup(1)
	if !ok {
		t.Fatalf("could not find node 1")
	}
	if got, want := e.Installed(), []int{1, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid radios: got=%v, want=%v", got, want)
	}
	e, _ = reg.Lookup(3)
	if got, want := e.Installed(), []int{1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid default radios: got=%v, want=%v", got, want)
	}
	if _, ok := reg.Lookup(2); ok {
		t.Fatalf("found unknown node 2")
	}

	_, err = LoadRegistry(strings.NewReader("{"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRegistryValidate(t *testing.T) {
	dup := param.DefaultRegisterMap()
	dup.Channel = dup.TxDelay

	for _, tc := range []struct {
		name string
		reg  Registry
		want string
	}{
		{
			name: "empty",
			reg:  NewRegistry(),
			want: "node: empty registry",
		},
		{
			name: "dup-id",
			reg:  NewRegistry(Entry{ID: 1, Addr: "a:1"}, Entry{ID: 1, Addr: "b:1"}),
			want: "node: duplicate node id 1",
		},
		{
			name: "broadcast",
			reg:  NewRegistry(Entry{ID: 0xffff, Addr: "a:1"}),
			want: "node: node id 65535 is reserved for broadcast",
		},
		{
			name: "no-addr",
			reg:  NewRegistry(Entry{ID: 2}),
			want: "node: node 2 has no address",
		},
		{
			name: "radio",
			reg:  NewRegistry(Entry{ID: 2, Addr: "a:1", Radios: []int{1, 5}}),
			want: "node: node 2: param: invalid radio=5: value out of range [1, 4]",
		},
		{
			name: "registers",
			reg:  Registry{Regs: dup, Nodes: []Entry{{ID: 1, Addr: "a:1"}}},
			want: `node: invalid register map: param: registers "tx-delay" and "channel" share address 0x0001`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.reg.Validate()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
		})
	}
}

func TestTXT(t *testing.T) {
	for _, tc := range []struct {
		entry Entry
		txt   []string
	}{
		{Entry{ID: 7}, []string{"id=7"}},
		{Entry{ID: 12, Radios: []int{1, 3}}, []string{"id=12", "radios=1,3"}},
	} {
		txt := TXT(tc.entry)
		if !reflect.DeepEqual(txt, tc.txt) {
			t.Fatalf("invalid TXT records: got=%q, want=%q", txt, tc.txt)
		}
		e, err := ParseTXT(append([]string{"vendor=lpc", "junk"}, txt...))
		if err != nil {
			t.Fatalf("could not parse TXT records: %+v", err)
		}
		if !reflect.DeepEqual(e, tc.entry) {
			t.Fatalf("invalid entry: got=%+v, want=%+v", e, tc.entry)
		}
	}

	for _, txt := range [][]string{
		nil,
		{"radios=1"},
		{"id=70000"},
		{"id=1", "radios=1,x"},
	} {
		_, err := ParseTXT(txt)
		if err == nil {
			t.Fatalf("expected an error for %q", txt)
		}
	}
}
