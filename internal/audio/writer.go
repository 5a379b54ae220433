// SPDX-License-Identifier: MIT
package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Writer encodes per-channel float32 frames to a file.
type Writer interface {
	Write(src [][]float32, frames int) error
	Close() error
	Spec() Spec
}

// CreateWriter creates path and returns a Writer for spec. When spec.Format
// is FormatUnknown the extension decides. WAV and AIFF default to 16 bit.
func CreateWriter(path string, spec Spec) (Writer, error) {
	if spec.Format == FormatUnknown {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		spec.Format = f
	}
	if spec.SampleRate <= 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("audio: writer needs sample rate and channels, got %d Hz, %d ch: %w",
			spec.SampleRate, spec.Channels, ErrInvalidArgument)
	}

	switch spec.Format {
	case FormatWAV, FormatAIFF:
		if spec.BitDepth == 0 {
			spec.BitDepth = 16
		}
		if spec.BitDepth%8 != 0 || spec.BitDepth < 8 || spec.BitDepth > 32 {
			return nil, fmt.Errorf("audio: %d bit %s: %w", spec.BitDepth, spec.Format, ErrUnsupportedFormat)
		}
	case FormatRaw:
		spec.BitDepth = spec.Encoding.BytesPerSample() * 8
	default:
		return nil, fmt.Errorf("audio: cannot write %s: %w", spec.Format, ErrUnsupportedFormat)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch spec.Format {
	case FormatWAV:
		offset := 0
		if spec.BitDepth == 8 {
			offset = 128
		}
		enc := wav.NewEncoder(file, spec.SampleRate, spec.BitDepth, spec.Channels, wavFormatPCM)
		return newIntWriter(file, enc, spec, offset), nil
	case FormatAIFF:
		enc := aiff.NewEncoder(file, spec.SampleRate, spec.BitDepth, spec.Channels)
		return newIntWriter(file, enc, spec, 0), nil
	default:
		return &RawWriter{file: file, w: bufio.NewWriter(file), spec: spec}, nil
	}
}

// intEncoder is satisfied by the go-audio WAV and AIFF encoders.
type intEncoder interface {
	Write(buf *goaudio.IntBuffer) error
	Close() error
}

// IntWriter quantises float frames into a reusable IntBuffer for a go-audio
// encoder.
type IntWriter struct {
	file      *os.File
	enc       intEncoder
	sampleBuf *goaudio.IntBuffer // Reusable buffer for format conversion
	spec      Spec
	maxInt    float64
	offset    int
}

func newIntWriter(file *os.File, enc intEncoder, spec Spec, offset int) *IntWriter {
	return &IntWriter{
		file: file,
		enc:  enc,
		sampleBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: spec.Channels,
				SampleRate:  spec.SampleRate,
			},
			SourceBitDepth: spec.BitDepth,
		},
		spec:   spec,
		maxInt: float64(int64(1)<<(spec.BitDepth-1) - 1),
		offset: offset,
	}
}

func (w *IntWriter) Write(src [][]float32, frames int) error {
	if w.enc == nil {
		return ErrNotOpen
	}
	if err := checkSrc(src, w.spec.Channels, frames); err != nil {
		return err
	}

	need := frames * w.spec.Channels
	if cap(w.sampleBuf.Data) < need {
		w.sampleBuf.Data = make([]int, need)
	}
	w.sampleBuf.Data = w.sampleBuf.Data[:need]

	channels := w.spec.Channels
	for c := range channels {
		for i, v := range src[c][:frames] {
			w.sampleBuf.Data[i*channels+c] = quantise(v, w.maxInt) + w.offset
		}
	}
	return w.enc.Write(w.sampleBuf)
}

// Close finalises the header and closes the file.
func (w *IntWriter) Close() error {
	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	w.enc = nil
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

func (w *IntWriter) Spec() Spec { return w.spec }

// RawWriter writes headerless interleaved little-endian PCM.
type RawWriter struct {
	file *os.File
	w    *bufio.Writer
	spec Spec
	buf  []byte
}

func (r *RawWriter) Write(src [][]float32, frames int) error {
	if r.w == nil {
		return ErrNotOpen
	}
	channels := r.spec.Channels
	if err := checkSrc(src, channels, frames); err != nil {
		return err
	}

	size := r.spec.Encoding.BytesPerSample()
	need := frames * channels * size
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	r.buf = r.buf[:need]

	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * size
			v := src[c][i]
			if r.spec.Encoding == Float32LE {
				binary.LittleEndian.PutUint32(r.buf[off:], math.Float32bits(v))
			} else {
				binary.LittleEndian.PutUint16(r.buf[off:], uint16(int16(quantise(v, math.MaxInt16))))
			}
		}
	}
	_, err := r.w.Write(r.buf)
	return err
}

func (r *RawWriter) Close() error {
	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	r.w = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	return err
}

func (r *RawWriter) Spec() Spec { return r.spec }

// quantise clamps v to [-1, 1] and scales it to a signed integer.
func quantise(v float32, maxInt float64) int {
	x := float64(v)
	switch {
	case x > 1:
		x = 1
	case x < -1:
		x = -1
	case x != x: // NaN
		x = 0
	}
	return int(math.Round(x * maxInt))
}

func checkSrc(src [][]float32, channels, frames int) error {
	if frames < 0 || len(src) < channels {
		return fmt.Errorf("audio: write of %d frames from %d channels, need %d: %w", frames, len(src), channels, ErrInvalidArgument)
	}
	for c := range channels {
		if len(src[c]) < frames {
			return fmt.Errorf("audio: channel %d holds %d frames, need %d: %w", c, len(src[c]), frames, ErrInvalidArgument)
		}
	}
	return nil
}
