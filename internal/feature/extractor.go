// SPDX-License-Identifier: MIT
//
// Package feature computes scalar descriptors of one audio block: three
// spectral features over a magnitude spectrum and the zero crossing rate
// over the raw samples.
package feature

import (
	"fmt"
	"math"
)

// DefaultKappa is the rolloff fraction used when none is configured.
const DefaultKappa = 0.85

// Extractor holds the per-stream state needed by the features. Flux compares
// against the previous spectrum, so one Extractor serves one stream only.
// It is not safe for concurrent use.
type Extractor struct {
	sampleRate  float32
	spectrumLen int
	kappa       float32

	prev    []float32
	hasPrev bool
}

// NewExtractor creates an extractor for magnitude spectra of spectrumLength
// bins (FFT length/2 + 1) at sampleRate Hz.
func NewExtractor(sampleRate float64, spectrumLength int, kappa float32) (*Extractor, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("feature: sample rate must be positive, got %v: %w", sampleRate, ErrInvalidArgument)
	}
	if spectrumLength < 1 {
		return nil, fmt.Errorf("feature: spectrum length must be positive, got %d: %w", spectrumLength, ErrInvalidArgument)
	}
	if !(kappa > 0 && kappa < 1) {
		return nil, fmt.Errorf("feature: rolloff kappa must be in (0, 1), got %v: %w", kappa, ErrInvalidArgument)
	}
	return &Extractor{
		sampleRate:  float32(sampleRate),
		spectrumLen: spectrumLength,
		kappa:       kappa,
		prev:        make([]float32, spectrumLength),
	}, nil
}

// SampleRate returns the sample rate in Hz the frequency features scale to.
func (e *Extractor) SampleRate() float64 { return float64(e.sampleRate) }

// SpectrumLength returns the number of magnitude bins expected per block.
func (e *Extractor) SpectrumLength() int { return e.spectrumLen }

// Kappa returns the rolloff energy fraction.
func (e *Extractor) Kappa() float32 { return e.kappa }

// Reset forgets the previous spectrum; the next Flux returns 0.
func (e *Extractor) Reset() {
	clear(e.prev)
	e.hasPrev = false
}

// Centroid returns the power-weighted mean bin of mag, expressed in Hz.
// A silent spectrum yields 0.
func (e *Extractor) Centroid(mag []float32) float32 {
	if len(mag) == 0 {
		return 0
	}
	var num, den float32
	for i, x := range mag {
		p := x * x
		num += float32(i) * p
		den += p
	}
	if den == 0 {
		return 0
	}
	return num / den / float32(len(mag)) * e.sampleRate / 2
}

// Flux returns the L2 distance between mag and the previous spectrum, scaled
// by 2/len. The first call after construction or Reset returns 0. mag must
// have the configured spectrum length.
func (e *Extractor) Flux(mag []float32) float32 {
	n := min(len(mag), e.spectrumLen)
	if n == 0 {
		return 0
	}
	if !e.hasPrev {
		copy(e.prev, mag[:n])
		e.hasPrev = true
		return 0
	}

	var sum float32
	for i, x := range mag[:n] {
		d := x - e.prev[i]
		sum += d * d
	}
	copy(e.prev, mag[:n])
	return float32(math.Sqrt(float64(sum))) * 2 / float32(n)
}

// Rolloff returns the frequency below which the configured fraction of the
// spectral magnitude lies.
func (e *Extractor) Rolloff(mag []float32) float32 {
	return e.RolloffAt(mag, e.kappa)
}

// RolloffAt is Rolloff with an explicit fraction. The result is the upper
// edge of the first bin whose cumulative magnitude reaches kappa of the
// total, so a silent spectrum reports the first bin.
func (e *Extractor) RolloffAt(mag []float32, kappa float32) float32 {
	if len(mag) == 0 {
		return 0
	}
	var total float32
	for _, x := range mag {
		total += x
	}
	threshold := kappa * total

	idx := len(mag) - 1
	var cum float32
	for i, x := range mag {
		cum += x
		if cum >= threshold {
			idx = i
			break
		}
	}
	return float32(idx+1) / float32(len(mag)) * e.sampleRate / 2
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs in block
// whose signs differ, counting a step to or from zero as half a crossing.
// block is overwritten with intermediate values.
func (e *Extractor) ZeroCrossingRate(block []float32) float32 {
	return ZCR(block)
}

// ZCR is the stateless form of Extractor.ZeroCrossingRate.
func ZCR(block []float32) float32 {
	n := len(block)
	if n < 2 {
		return 0
	}
	for i, v := range block {
		switch {
		case v > 0:
			block[i] = 1
		case v < 0:
			block[i] = -1
		default:
			block[i] = 0
		}
	}

	var sum float32
	for i := range n - 1 {
		d := block[i+1] - block[i]
		if d < 0 {
			d = -d
		}
		block[i] = d
		sum += d
	}
	return 0.5 * sum / float32(n-1)
}

// Extract dispatches to the feature named by id. Spectral features expect a
// magnitude spectrum of the configured length; ZeroCrossingRate expects time
// samples and overwrites them.
func (e *Extractor) Extract(data []float32, id ID) (float32, error) {
	if id.IsSpectral() && len(data) != e.spectrumLen {
		return 0, fmt.Errorf("feature %s: spectrum has %d bins, need %d: %w", id, len(data), e.spectrumLen, ErrInvalidArgument)
	}
	switch id {
	case Centroid:
		return e.Centroid(data), nil
	case Flux:
		return e.Flux(data), nil
	case Rolloff:
		return e.Rolloff(data), nil
	case ZeroCrossingRate:
		return e.ZeroCrossingRate(data), nil
	default:
		return 0, fmt.Errorf("feature id %d outside [0, %d): %w", int(id), NumFeatures, ErrInvalidArgument)
	}
}
