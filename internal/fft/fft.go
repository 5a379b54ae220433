// SPDX-License-Identifier: MIT
//
// Package fft wraps gonum's real FFT into the block transform used by the
// feature pipeline: optional zero padding, windowing before the forward or
// after the inverse transform, and polar/rectangular views of the spectrum.
//
// Spectra are stored packed in a []float32 of the FFT length so a transform
// can run in place. For an FFT length N the layout is
//
//	s[0 .. N/2]   real part of bins 0 .. N/2
//	s[N-k]        imaginary part of bin k, 0 < k < N/2
//
// Values are scaled by 1/N: a unit sine centred on a bin has magnitude 0.5.
package fft

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

var ErrInvalidArgument = errors.New("fft: invalid argument")

// LengthKind selects a buffer length reported by Transform.Length.
type LengthKind int

const (
	LenFFT       LengthKind = iota // packed spectrum, block size * zero padding
	LenBlock                       // analysed samples per block
	LenMagnitude                   // FFT length/2 + 1
	LenPhase                       // same as LenMagnitude
)

// fftWorkspace holds pre-allocated buffers for the transform.
type fftWorkspace struct {
	seq    []float64    // real time-domain scratch, FFT length
	coeffs []complex128 // half spectrum, FFT length/2 + 1
	window []float64    // periodic window, block size
}

// Transform is a configured forward/inverse transform. It is not safe for
// concurrent use.
type Transform struct {
	blockSize int
	fftLen    int
	windowFn  WindowFunc
	windowing Windowing
	fft       *fourier.FFT
	workspace fftWorkspace
}

// New creates a Transform for blocks of blockSize samples. zeroPad multiplies
// the block size to give the FFT length.
func New(blockSize, zeroPad int, win WindowFunc, mode Windowing) (*Transform, error) {
	if blockSize < 2 {
		return nil, fmt.Errorf("fft: block size must be at least 2, got %d: %w", blockSize, ErrInvalidArgument)
	}
	if zeroPad < 1 {
		return nil, fmt.Errorf("fft: zero padding factor must be at least 1, got %d: %w", zeroPad, ErrInvalidArgument)
	}
	if mode < NoWindow || mode > PostWindow {
		return nil, fmt.Errorf("fft: unknown windowing mode %d: %w", int(mode), ErrInvalidArgument)
	}

	coeffs, err := makeWindow(blockSize, win)
	if err != nil {
		return nil, err
	}

	fftLen := blockSize * zeroPad
	return &Transform{
		blockSize: blockSize,
		fftLen:    fftLen,
		windowFn:  win,
		windowing: mode,
		fft:       fourier.NewFFT(fftLen),
		workspace: fftWorkspace{
			seq:    make([]float64, fftLen),
			coeffs: make([]complex128, fftLen/2+1),
			window: coeffs,
		},
	}, nil
}

// Length returns the buffer length for the given kind.
func (t *Transform) Length(kind LengthKind) int {
	switch kind {
	case LenFFT:
		return t.fftLen
	case LenBlock:
		return t.blockSize
	case LenMagnitude, LenPhase:
		return t.fftLen/2 + 1
	default:
		return 0
	}
}

// WindowFunc returns the configured window.
func (t *Transform) WindowFunc() WindowFunc { return t.windowFn }

// Windowing returns the configured windowing mode.
func (t *Transform) Windowing() Windowing { return t.windowing }

// Window copies the window coefficients into dst and returns it.
func (t *Transform) Window(dst []float32) []float32 {
	if len(dst) < t.blockSize {
		dst = make([]float32, t.blockSize)
	}
	for i, w := range t.workspace.window {
		dst[i] = float32(w)
	}
	return dst[:t.blockSize]
}

// Forward transforms the first block-size samples of src into the packed
// spectrum dst. Missing samples and the zero-padding region are zero.
// dst may alias src.
func (t *Transform) Forward(dst, src []float32) error {
	if len(dst) < t.fftLen {
		return fmt.Errorf("fft: spectrum buffer holds %d values, need %d: %w", len(dst), t.fftLen, ErrInvalidArgument)
	}

	ws := &t.workspace
	n := min(len(src), t.blockSize)
	if t.windowing == PreWindow {
		for i := range n {
			ws.seq[i] = float64(src[i]) * ws.window[i]
		}
	} else {
		for i := range n {
			ws.seq[i] = float64(src[i])
		}
	}
	clear(ws.seq[n:])

	t.fft.Coefficients(ws.coeffs, ws.seq)

	scale := 1 / float64(t.fftLen)
	dst[0] = float32(real(ws.coeffs[0]) * scale)
	for k := 1; k <= (t.fftLen-1)/2; k++ {
		c := ws.coeffs[k]
		dst[k] = float32(real(c) * scale)
		dst[t.fftLen-k] = float32(imag(c) * scale)
	}
	if t.fftLen%2 == 0 {
		dst[t.fftLen/2] = float32(real(ws.coeffs[t.fftLen/2]) * scale)
	}
	return nil
}

// Inverse reconstructs the real block of FFT length from a packed spectrum.
// The window is applied afterwards in PostWindow mode. dst may alias spectrum.
func (t *Transform) Inverse(dst, spectrum []float32) error {
	if len(spectrum) < t.fftLen {
		return fmt.Errorf("fft: spectrum holds %d values, need %d: %w", len(spectrum), t.fftLen, ErrInvalidArgument)
	}
	if len(dst) < t.fftLen {
		return fmt.Errorf("fft: output buffer holds %d values, need %d: %w", len(dst), t.fftLen, ErrInvalidArgument)
	}

	ws := &t.workspace
	for k := range ws.coeffs {
		ws.coeffs[k] = t.bin(spectrum, k)
	}

	// The packed spectrum is already scaled by 1/N, which is exactly the
	// normalisation the unnormalised Sequence needs.
	t.fft.Sequence(ws.seq, ws.coeffs)

	if t.windowing == PostWindow {
		for i := range t.blockSize {
			ws.seq[i] *= ws.window[i]
		}
	}
	for i, v := range ws.seq {
		dst[i] = float32(v)
	}
	return nil
}

// Magnitude writes |X[k]| for k in [0, N/2] into dst. dst may alias spectrum.
func (t *Transform) Magnitude(dst, spectrum []float32) error {
	if err := t.checkPolar(dst, spectrum); err != nil {
		return err
	}
	for k := range t.fftLen/2 + 1 {
		c := t.bin(spectrum, k)
		dst[k] = float32(math.Hypot(real(c), imag(c)))
	}
	return nil
}

// Phase writes arg(X[k]) for k in [0, N/2] into dst. dst may alias spectrum.
func (t *Transform) Phase(dst, spectrum []float32) error {
	if err := t.checkPolar(dst, spectrum); err != nil {
		return err
	}
	for k := range t.fftLen/2 + 1 {
		c := t.bin(spectrum, k)
		dst[k] = float32(math.Atan2(imag(c), real(c)))
	}
	return nil
}

// SplitRealImag unpacks the spectrum into N/2+1 real and imaginary parts.
func (t *Transform) SplitRealImag(re, im, spectrum []float32) error {
	bins := t.fftLen/2 + 1
	if len(spectrum) < t.fftLen || len(re) < bins || len(im) < bins {
		return fmt.Errorf("fft: split needs %d bins from a spectrum of %d: %w", bins, t.fftLen, ErrInvalidArgument)
	}
	for k := range bins {
		c := t.bin(spectrum, k)
		re[k] = float32(real(c))
		im[k] = float32(imag(c))
	}
	return nil
}

// MergeRealImag packs N/2+1 real and imaginary parts into spectrum. The
// imaginary parts of DC and, for even lengths, Nyquist are dropped.
func (t *Transform) MergeRealImag(spectrum, re, im []float32) error {
	bins := t.fftLen/2 + 1
	if len(spectrum) < t.fftLen || len(re) < bins || len(im) < bins {
		return fmt.Errorf("fft: merge needs %d bins into a spectrum of %d: %w", bins, t.fftLen, ErrInvalidArgument)
	}
	copy(spectrum[:bins], re[:bins])
	for k := 1; k <= (t.fftLen-1)/2; k++ {
		spectrum[t.fftLen-k] = im[k]
	}
	return nil
}

// Bin2Freq converts a (fractional) bin index to Hz.
func (t *Transform) Bin2Freq(bin, sampleRate float64) float64 {
	return bin * sampleRate / float64(t.fftLen)
}

// Freq2Bin converts a frequency in Hz to a (fractional) bin index.
func (t *Transform) Freq2Bin(freq, sampleRate float64) float64 {
	return freq * float64(t.fftLen) / sampleRate
}

// bin returns the complex value of bin k from a packed spectrum.
func (t *Transform) bin(spectrum []float32, k int) complex128 {
	re := float64(spectrum[k])
	if k == 0 || 2*k == t.fftLen {
		return complex(re, 0)
	}
	return complex(re, float64(spectrum[t.fftLen-k]))
}

func (t *Transform) checkPolar(dst, spectrum []float32) error {
	if len(spectrum) < t.fftLen {
		return fmt.Errorf("fft: spectrum holds %d values, need %d: %w", len(spectrum), t.fftLen, ErrInvalidArgument)
	}
	if bins := t.fftLen/2 + 1; len(dst) < bins {
		return fmt.Errorf("fft: output holds %d values, need %d: %w", len(dst), bins, ErrInvalidArgument)
	}
	return nil
}
