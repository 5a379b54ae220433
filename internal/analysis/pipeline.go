// SPDX-License-Identifier: MIT
//
// Package analysis ties the reframing buffer, the spectral transform and the
// feature extractor into a per-block pipeline that fills a feature matrix.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"featex/internal/feature"
	"featex/internal/fft"
	"featex/internal/reframe"
)

// Params configures a Pipeline. All fields are fixed for the lifetime of an
// initialisation.
type Params struct {
	Channels   int
	SampleRate float64
	BlockSize  int // Analysed samples per block.
	HopSize    int // Samples between block starts, 1..BlockSize.
	ZeroPad    int // FFT length multiplier; 0 means 1.
	Window     fft.WindowFunc
	Windowing  fft.Windowing
	Kappa      float32      // Rolloff fraction, (0, 1).
	Features   []feature.ID // Row order of the result; duplicates allowed.
	NumBlocks  int          // Declared result columns.
}

// Validate checks the parameters without allocating.
func (p Params) Validate() error {
	switch {
	case p.Channels <= 0:
		return fmt.Errorf("channels must be positive, got %d: %w", p.Channels, ErrInvalidArgument)
	case !(p.SampleRate > 0) || math.IsInf(p.SampleRate, 0):
		return fmt.Errorf("sample rate must be positive, got %v: %w", p.SampleRate, ErrInvalidArgument)
	case p.BlockSize < 2:
		return fmt.Errorf("block size must be at least 2, got %d: %w", p.BlockSize, ErrInvalidArgument)
	case p.HopSize <= 0 || p.HopSize > p.BlockSize:
		return fmt.Errorf("hop size %d outside [1, %d]: %w", p.HopSize, p.BlockSize, ErrInvalidArgument)
	case p.ZeroPad < 0:
		return fmt.Errorf("zero padding must not be negative, got %d: %w", p.ZeroPad, ErrInvalidArgument)
	case !(p.Kappa > 0 && p.Kappa < 1):
		return fmt.Errorf("kappa must be in (0, 1), got %v: %w", p.Kappa, ErrInvalidArgument)
	case len(p.Features) == 0:
		return fmt.Errorf("no features selected: %w", ErrInvalidArgument)
	case p.NumBlocks < 0:
		return fmt.Errorf("declared block count must not be negative, got %d: %w", p.NumBlocks, ErrInvalidArgument)
	}
	if err := feature.Validate(p.Features); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if int64(len(p.Features))*int64(p.NumBlocks) > MaxResultCells {
		return fmt.Errorf("result of %d x %d cells exceeds %d: %w", len(p.Features), p.NumBlocks, MaxResultCells, ErrAllocation)
	}
	return nil
}

// NumBlocks returns how many full blocks a stream of frames yields.
func NumBlocks(frames, blockSize, hopSize int) int {
	if blockSize <= 0 || hopSize <= 0 || frames < blockSize {
		return 0
	}
	return (frames-blockSize)/hopSize + 1
}

// Pipeline is the block orchestrator. The zero value is Uninitialized; Init
// moves it to Ready and Reset back. It is not safe for concurrent use.
type Pipeline struct {
	params   Params
	ready    bool
	spectral bool // any selected feature needs the spectrum

	buf        *reframe.Buffer
	transform  *fft.Transform
	extractors []*feature.Extractor // one per result row

	block    *Matrix   // channels x blockSize
	mono     []float32 // downmix
	scratch  []float32 // zero crossing input, overwritten per use
	spectrum []float32 // packed FFT output
	mag      []float32 // magnitude, fftLen/2+1

	result *Matrix
	blocks int
}

// NewPipeline returns an uninitialised pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Init validates p and allocates every buffer. The result matrix starts
// zeroed. Init on a ready pipeline fails with ErrIllegalState; call Reset
// first.
func (pl *Pipeline) Init(p Params) error {
	if pl.ready {
		return fmt.Errorf("init on an initialised pipeline: %w", ErrIllegalState)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ZeroPad == 0 {
		p.ZeroPad = 1
	}
	p.Features = append([]feature.ID(nil), p.Features...)

	buf, err := reframe.New(p.Channels, p.BlockSize, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	tr, err := fft.New(p.BlockSize, p.ZeroPad, p.Window, p.Windowing)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	bins := tr.Length(fft.LenMagnitude)
	extractors := make([]*feature.Extractor, len(p.Features))
	for i := range extractors {
		if extractors[i], err = feature.NewExtractor(p.SampleRate, bins, p.Kappa); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}

	pl.params = p
	pl.spectral = feature.AnySpectral(p.Features)
	pl.buf = buf
	pl.transform = tr
	pl.extractors = extractors
	pl.block = NewMatrix(p.Channels, p.BlockSize)
	pl.mono = make([]float32, p.BlockSize)
	pl.scratch = make([]float32, p.BlockSize)
	pl.spectrum = make([]float32, tr.Length(fft.LenFFT))
	pl.mag = make([]float32, bins)
	pl.result = NewMatrix(len(p.Features), p.NumBlocks)
	pl.blocks = 0
	pl.ready = true
	return nil
}

// Process lends in to the reframing buffer and analyses every full block it
// yields, one result column per block. Frames that do not complete a block
// are carried into the next call. When out is non-nil the input is copied to
// it unchanged.
//
// Blocks beyond the declared count are consumed but not stored and the call
// returns ErrResultFull.
func (pl *Pipeline) Process(in, out [][]float32, numFrames int) error {
	if !pl.ready {
		return ErrNotInitialized
	}
	if err := pl.buf.Hold(in, numFrames); err != nil {
		return wrapReframe(err)
	}

	var dropped int
	for pl.buf.Block(pl.block.Rows2D(), pl.params.BlockSize, pl.params.HopSize) {
		if pl.blocks >= pl.result.Cols() {
			dropped++
			continue
		}
		if err := pl.processBlock(); err != nil {
			// Unreachable with validated feature ids.
			return errors.Join(err, wrapReframe(pl.buf.Release()))
		}
		pl.blocks++
	}

	if err := pl.buf.Release(); err != nil {
		return wrapReframe(err)
	}
	if out != nil {
		if err := passThrough(out, in, pl.params.Channels, numFrames); err != nil {
			return err
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%d blocks beyond declared count %d: %w", dropped, pl.result.Cols(), ErrResultFull)
	}
	return nil
}

// processBlock downmixes the current block and stores one feature column.
func (pl *Pipeline) processBlock() error {
	// --- 1. Downmix ---
	clear(pl.mono)
	for _, ch := range pl.block.Rows2D() {
		for i, v := range ch {
			pl.mono[i] += v
		}
	}
	if n := pl.params.Channels; n > 1 {
		scale := 1 / float32(n)
		for i := range pl.mono {
			pl.mono[i] *= scale
		}
	}

	// --- 2. Spectrum, only when a spectral feature is selected ---
	if pl.spectral {
		if err := pl.transform.Forward(pl.spectrum, pl.mono); err != nil {
			return err
		}
		if err := pl.transform.Magnitude(pl.mag, pl.spectrum); err != nil {
			return err
		}
	}

	// --- 3. Features ---
	for row, id := range pl.params.Features {
		data := pl.mag
		if !id.IsSpectral() {
			copy(pl.scratch, pl.mono)
			data = pl.scratch
		}
		v, err := pl.extractors[row].Extract(data, id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		pl.result.Set(row, pl.blocks, v)
	}
	return nil
}

// ResultSize returns (selected features, declared blocks), or zeros when
// uninitialised.
func (pl *Pipeline) ResultSize() (rows, cols int) {
	if !pl.ready {
		return 0, 0
	}
	return pl.result.Rows(), pl.result.Cols()
}

// Result returns the borrowed result matrix, nil when uninitialised. Columns
// at and beyond BlocksProcessed are zero.
func (pl *Pipeline) Result() *Matrix {
	if !pl.ready {
		return nil
	}
	return pl.result
}

// BlocksProcessed returns the number of stored result columns.
func (pl *Pipeline) BlocksProcessed() int { return pl.blocks }

// Features returns the selection in row order.
func (pl *Pipeline) Features() []feature.ID {
	return append([]feature.ID(nil), pl.params.Features...)
}

// Params returns the active configuration.
func (pl *Pipeline) Params() Params { return pl.params }

// Ready reports whether Init has succeeded since the last Reset.
func (pl *Pipeline) Ready() bool { return pl.ready }

// Pending returns the frames carried over to the next Process call.
func (pl *Pipeline) Pending() int {
	if !pl.ready {
		return 0
	}
	return pl.buf.Pending()
}

// MagnitudesInto copies the magnitude spectrum of the latest block into dst,
// which must hold FFTSize()/2+1 values.
func (pl *Pipeline) MagnitudesInto(dst []float32) error {
	if !pl.ready {
		return ErrNotInitialized
	}
	if len(dst) != len(pl.mag) {
		return fmt.Errorf("destination holds %d values, need %d: %w", len(dst), len(pl.mag), ErrInvalidArgument)
	}
	copy(dst, pl.mag)
	return nil
}

// FrequencyForBin returns the centre frequency of bin, or 0 out of range.
func (pl *Pipeline) FrequencyForBin(bin int) float64 {
	if !pl.ready || bin < 0 || bin >= len(pl.mag) {
		return 0
	}
	return pl.transform.Bin2Freq(float64(bin), pl.params.SampleRate)
}

// FFTSize returns the transform length, 0 when uninitialised.
func (pl *Pipeline) FFTSize() int {
	if !pl.ready {
		return 0
	}
	return pl.transform.Length(fft.LenFFT)
}

func (pl *Pipeline) SampleRate() float64 { return pl.params.SampleRate }

// Reset releases every buffer and returns to Uninitialized. It is safe to
// call repeatedly.
func (pl *Pipeline) Reset() {
	*pl = Pipeline{}
}

func passThrough(out, in [][]float32, channels, n int) error {
	if len(out) < channels {
		return fmt.Errorf("output has %d channels, need %d: %w", len(out), channels, ErrInvalidArgument)
	}
	for c := range channels {
		if len(out[c]) < n {
			return fmt.Errorf("output channel %d holds %d frames, need %d: %w", c, len(out[c]), n, ErrInvalidArgument)
		}
		copy(out[c][:n], in[c][:n])
	}
	return nil
}

// wrapReframe maps reframing errors onto the pipeline taxonomy.
func wrapReframe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reframe.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, reframe.ErrIllegalState):
		return fmt.Errorf("%w: %w", ErrIllegalState, err)
	default:
		return err
	}
}
