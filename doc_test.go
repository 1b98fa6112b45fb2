// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package warpnet

import (
	"runtime/debug"
	"testing"
)

func TestVersionOf(t *testing.T) {
	for _, tc := range []struct {
		name string
		info *debug.BuildInfo
		vers string
		sum  string
	}{
		{
			name: "nil",
		},
		{
			name: "main",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "github.com/go-lpc/warpnet", Version: "v0.1.0", Sum: "h1:xxx"},
			},
			vers: "v0.1.0",
			sum:  "h1:xxx",
		},
		{
			name: "dep",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/app"},
				Deps: []*debug.Module{
					{Path: "example.org/other", Version: "v1.0.0"},
					{Path: "github.com/go-lpc/warpnet", Version: "v0.2.0", Sum: "h1:yyy"},
				},
			},
			vers: "v0.2.0",
			sum:  "h1:yyy",
		},
		{
			name: "replace-local",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/app"},
				Deps: []*debug.Module{
					{
						Path:    "github.com/go-lpc/warpnet",
						Version: "v0.2.0",
						Replace: &debug.Module{Path: "../warpnet"},
					},
				},
			},
			vers: "../warpnet",
		},
		{
			name: "missing",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/app"},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(tc.info)
			if vers != tc.vers {
				t.Fatalf("invalid version: got=%q, want=%q", vers, tc.vers)
			}
			if sum != tc.sum {
				t.Fatalf("invalid sum: got=%q, want=%q", sum, tc.sum)
			}
		})
	}
}
