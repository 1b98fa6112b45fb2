// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iq

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a window of samples.
type Stats struct {
	N         int     // number of samples
	MeanI     float64 // DC offset of the in-phase lane
	MeanQ     float64 // DC offset of the quadrature lane
	VarI      float64
	VarQ      float64
	Power     float64 // mean power, in dBFS
	Overrange int     // number of saturated samples
	PeakBin   int     // FFT bin of the strongest tone, DC centered
}

// Summary computes statistics over the samples of b.
func Summary(b Buffer) Stats {
	st := Stats{
		N:         b.Len(),
		Overrange: b.NumOverrange(),
		Power:     math.Inf(-1),
	}
	if st.N == 0 {
		return st
	}

	is, qs := lanes(b.Samples)
	st.MeanI, st.VarI = stat.MeanVariance(is, nil)
	st.MeanQ, st.VarQ = stat.MeanVariance(qs, nil)

	pow := make([]float64, st.N)
	for i, v := range b.Samples {
		pow[i] = real(v)*real(v) + imag(v)*imag(v)
	}
	if p := stat.Mean(pow, nil); p > 0 {
		st.Power = 10 * math.Log10(p)
	}
	st.PeakBin = peakBin(b.Samples)
	return st
}

// Valid reports whether the samples carry a signal, i.e. whether either
// lane has a non-zero variance.
// A node that missed the sync trigger captures a constant buffer.
func Valid(samples []complex128) bool {
	if len(samples) < 2 {
		return false
	}
	is, qs := lanes(samples)
	return stat.Variance(is, nil) > 0 || stat.Variance(qs, nil) > 0
}

func lanes(samples []complex128) (is, qs []float64) {
	is = make([]float64, len(samples))
	qs = make([]float64, len(samples))
	for i, v := range samples {
		is[i] = real(v)
		qs[i] = imag(v)
	}
	return is, qs
}

// peakBin returns the index of the largest FFT coefficient, shifted so
// that DC sits at bin 0 and negative frequencies have negative indices.
func peakBin(samples []complex128) int {
	n := len(samples)
	if n < 2 {
		return 0
	}
	coeffs := fourier.NewCmplxFFT(n).Coefficients(nil, samples)
	var (
		imax = 0
		vmax = -1.0
	)
	for i, c := range coeffs {
		if v := cmplx.Abs(c); v > vmax {
			imax, vmax = i, v
		}
	}
	if imax > n/2 {
		imax -= n
	}
	return imax
}
