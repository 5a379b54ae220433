// SPDX-License-Identifier: MIT
package analysis

import "featex/internal/feature"

// Processor is the streaming entry point fed by file readers or synthetic
// sources. out is optional and receives the input unchanged.
type Processor interface {
	Process(in, out [][]float32, numFrames int) error
}

// ResettableProcessor combines Processor with Reset for reuse.
type ResettableProcessor interface {
	Processor
	Reset() // Reset returns the processor to its unconfigured state.
}

// ResultProvider exposes the accumulated feature matrix. The matrix is
// borrowed; callers must not modify it.
type ResultProvider interface {
	ResultSize() (rows, cols int)
	Result() *Matrix
	BlocksProcessed() int
	Features() []feature.ID
}

// SpectrumProvider exposes the magnitude spectrum of the most recent block.
// Only pipelines with at least one spectral feature produce spectra.
type SpectrumProvider interface {
	MagnitudesInto(dst []float32) error // MagnitudesInto copies the latest spectrum without allocating.
	FrequencyForBin(bin int) float64    // FrequencyForBin returns the centre frequency (Hz) of a bin.
	FFTSize() int                       // FFTSize returns the transform length in points.
	SampleRate() float64                // SampleRate returns the configured sample rate (Hz).
}

// Compile-time checks for interface implementations.
var _ ResettableProcessor = (*Pipeline)(nil)
var _ ResultProvider = (*Pipeline)(nil)
var _ SpectrumProvider = (*Pipeline)(nil)
