// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package exp sequences experiment runs over a session of radio nodes:
// configure, stage, arm, trigger, retrieve and disarm.
package exp // import "github.com/go-lpc/warpnet/exp"

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/param"
)

// Plan describes one experiment run.
type Plan struct {
	Name    string        `json:"name"`
	Capture param.Capture `json:"capture"`
	Channel int           `json:"channel"`
	LPF     *LPF          `json:"lpf,omitempty"`
	AGC     *agc.Config   `json:"agc,omitempty"` // AGC of the receiving nodes, manual RX gains when nil
	Nodes   []NodePlan    `json:"nodes"`

	// Waveform is staged into the TX buffer of every transmitting radio.
	// It holds Capture.Length samples.
	Waveform Waveform `json:"waveform,omitempty"`
}

// LPF holds the low-pass filter corners of the nodes of a plan.
type LPF struct {
	TX int `json:"tx"`
	RX int `json:"rx"`
}

// NodePlan holds the radios a node transmits and receives with.
type NodePlan struct {
	ID uint16      `json:"id"`
	TX []RadioPlan `json:"tx,omitempty"`
	RX []RadioPlan `json:"rx,omitempty"`
}

// RadioPlan holds the settings of one radio path.
// Gains are left untouched when nil.
type RadioPlan struct {
	Radio int          `json:"radio"`
	Gains *param.Gains `json:"gains,omitempty"`
}

func (np NodePlan) txRadios() []int { return radios(np.TX) }
func (np NodePlan) rxRadios() []int { return radios(np.RX) }

func radios(rps []RadioPlan) []int {
	rs := make([]int, len(rps))
	for i, rp := range rps {
		rs[i] = rp.Radio
	}
	return rs
}

// ops returns the opcodes arming the node.
func (np NodePlan) ops() param.OpSet {
	var ops param.OpSet
	for _, rp := range np.TX {
		ops |= param.OpTx(rp.Radio)
	}
	if len(np.TX) > 0 {
		ops |= param.OpTxStart
	}
	for _, rp := range np.RX {
		ops |= param.OpRx(rp.Radio)
	}
	if len(np.RX) > 0 {
		ops |= param.OpRxStart
	}
	return ops
}

// Validate checks every parameter of the plan.
// A plan that validates is never rejected by the codec once dispatched.
func (p Plan) Validate() error {
	err := p.Capture.Validate()
	if err != nil {
		return err
	}
	_, err = param.Encode(param.Channel, p.Channel)
	if err != nil {
		return err
	}
	if p.LPF != nil {
		if _, err := param.Encode(param.TxLPF, p.LPF.TX); err != nil {
			return err
		}
		if _, err := param.Encode(param.RxLPF, p.LPF.RX); err != nil {
			return err
		}
	}
	if p.AGC != nil {
		if err := p.AGC.Validate(); err != nil {
			return err
		}
	}

	if len(p.Nodes) == 0 {
		return fmt.Errorf("exp: plan %q has no node", p.Name)
	}
	var (
		seen = make(map[uint16]bool, len(p.Nodes))
		ntx  = 0
		nrx  = 0
	)
	for _, np := range p.Nodes {
		if seen[np.ID] {
			return fmt.Errorf("exp: duplicate node %d in plan %q", np.ID, p.Name)
		}
		seen[np.ID] = true
		if len(np.TX)+len(np.RX) == 0 {
			return fmt.Errorf("exp: node %d of plan %q has no radio", np.ID, p.Name)
		}
		err := validateRadios(np.ID, np.TX, param.Gains.ValidateTx)
		if err != nil {
			return err
		}
		err = validateRadios(np.ID, np.RX, param.Gains.ValidateRx)
		if err != nil {
			return err
		}
		ntx += len(np.TX)
		nrx += len(np.RX)
	}

	if ntx > 0 {
		err = param.ValidateSamples(p.Waveform)
		if err != nil {
			return err
		}
		if got, want := len(p.Waveform), p.Capture.Length; got != want {
			return &param.Error{
				Param: "waveform",
				Value: got,
				Err:   fmt.Errorf("%w: waveform of %d samples for a tx-length of %d", param.ErrCapacity, got, want),
			}
		}
	}
	return nil
}

func validateRadios(id uint16, rps []RadioPlan, gains func(param.Gains) error) error {
	seen := make(map[int]bool, len(rps))
	for _, rp := range rps {
		if err := param.ValidateRadio(rp.Radio); err != nil {
			return err
		}
		if seen[rp.Radio] {
			return fmt.Errorf("exp: duplicate radio %d of node %d", rp.Radio, id)
		}
		seen[rp.Radio] = true
		if rp.Gains == nil {
			continue
		}
		if err := gains(*rp.Gains); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlan decodes a JSON plan.
func LoadPlan(r io.Reader) (Plan, error) {
	var p Plan
	err := json.NewDecoder(r).Decode(&p)
	if err != nil {
		return p, fmt.Errorf("exp: could not decode plan: %w", err)
	}
	return p, nil
}

// Waveform is a sequence of complex samples.
// It is encoded in JSON as a list of [re, im] pairs.
type Waveform []complex128

func (wf Waveform) MarshalJSON() ([]byte, error) {
	vs := make([][2]float64, len(wf))
	for i, v := range wf {
		vs[i] = [2]float64{real(v), imag(v)}
	}
	return json.Marshal(vs)
}

func (wf *Waveform) UnmarshalJSON(data []byte) error {
	var vs [][2]float64
	err := json.Unmarshal(data, &vs)
	if err != nil {
		return err
	}
	*wf = make(Waveform, len(vs))
	for i, v := range vs {
		(*wf)[i] = complex(v[0], v[1])
	}
	return nil
}
