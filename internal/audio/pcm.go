// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
)

// pcmBufferReader is the part of the go-audio WAV and AIFF decoders used for
// reading, split out for testing.
type pcmBufferReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// intReader converts go-audio integer PCM into per-channel float32 frames.
// The IntBuffer is reused between reads.
type intReader struct {
	dec      pcmBufferReader
	buf      *goaudio.IntBuffer
	channels int
	scale    float32
	offset   int // 128 for unsigned 8-bit WAV
}

func newIntReader(dec pcmBufferReader, format *goaudio.Format, bitDepth, offset int) *intReader {
	return &intReader{
		dec:      dec,
		buf:      &goaudio.IntBuffer{Format: format, SourceBitDepth: bitDepth},
		channels: format.NumChannels,
		scale:    intScale(bitDepth),
		offset:   offset,
	}
}

func (r *intReader) read(dst [][]float32) (int, error) {
	frames, err := dstFrames(dst, r.channels)
	if err != nil || frames == 0 {
		return 0, err
	}

	need := frames * r.channels
	if cap(r.buf.Data) < need {
		r.buf.Data = make([]int, need)
	}
	r.buf.Data = r.buf.Data[:need]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	n /= r.channels
	if n == 0 {
		return 0, io.EOF
	}

	data := r.buf.Data
	for c := range r.channels {
		out := dst[c]
		for i := range n {
			out[i] = float32(data[i*r.channels+c]-r.offset) * r.scale
		}
	}
	return n, nil
}
