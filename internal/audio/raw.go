// SPDX-License-Identifier: MIT
package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// RawFile reads headerless interleaved little-endian PCM. The stream layout
// cannot be discovered from the file, so it comes from the Spec given to
// NewRawFile.
type RawFile struct {
	file   *os.File
	r      *bufio.Reader
	spec   Spec
	length int64
	buf    []byte
}

// NewRawFile returns an unopened RawFile for spec.
func NewRawFile(spec Spec) (*RawFile, error) {
	if spec.SampleRate <= 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("audio: raw PCM needs sample rate and channels, got %d Hz, %d ch: %w",
			spec.SampleRate, spec.Channels, ErrInvalidArgument)
	}
	if spec.Encoding != Int16LE && spec.Encoding != Float32LE {
		return nil, fmt.Errorf("audio: raw encoding %s: %w", spec.Encoding, ErrUnsupportedFormat)
	}
	spec.Format = FormatRaw
	spec.BitDepth = spec.Encoding.BytesPerSample() * 8
	return &RawFile{spec: spec, length: -1}, nil
}

func (r *RawFile) Open(path string) error {
	if r.file != nil {
		return fmt.Errorf("audio: raw file already open: %w", ErrInvalidArgument)
	}
	if r.spec.Channels <= 0 {
		return fmt.Errorf("audio: raw file has no spec, use NewRawFile: %w", ErrInvalidArgument)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("audio: stat %s: %w", path, err)
	}

	r.file = file
	r.r = bufio.NewReaderSize(file, 64*1024)
	r.length = info.Size() / int64(r.frameBytes())
	return nil
}

func (r *RawFile) frameBytes() int {
	return r.spec.Channels * r.spec.Encoding.BytesPerSample()
}

func (r *RawFile) Read(dst [][]float32) (int, error) {
	if r.file == nil {
		return 0, ErrNotOpen
	}
	channels := r.spec.Channels
	frames, err := dstFrames(dst, channels)
	if err != nil || frames == 0 {
		return 0, err
	}

	frameBytes := r.frameBytes()
	need := frames * frameBytes
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	r.buf = r.buf[:need]

	n, err := io.ReadFull(r.r, r.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("audio: reading raw PCM: %w", err)
	}
	n /= frameBytes
	if n == 0 {
		return 0, io.EOF
	}

	switch r.spec.Encoding {
	case Float32LE:
		for i := range n {
			for c := range channels {
				off := (i*channels + c) * 4
				dst[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(r.buf[off:]))
			}
		}
	default:
		const scale = 1.0 / 32768
		for i := range n {
			for c := range channels {
				off := (i*channels + c) * 2
				dst[c][i] = float32(int16(binary.LittleEndian.Uint16(r.buf[off:]))) * scale
			}
		}
	}
	return n, nil
}

func (r *RawFile) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.r = nil, nil
	return err
}

func (r *RawFile) Spec() Spec    { return r.spec }
func (r *RawFile) Length() int64 { return r.length }
