// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisFile decodes Ogg Vorbis files.
type VorbisFile struct {
	file     *os.File
	dec      *oggvorbis.Reader
	spec     Spec
	length   int64
	frameBuf []float32 // interleaved
}

func (v *VorbisFile) Open(path string) error {
	if v.file != nil {
		return fmt.Errorf("audio: Vorbis file already open: %w", ErrInvalidArgument)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}

	dec, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("audio: %s is not a valid Ogg Vorbis file: %w: %w", path, ErrUnsupportedFormat, err)
	}

	v.file = file
	v.dec = dec
	v.spec = Spec{
		Format:     FormatVorbis,
		SampleRate: dec.SampleRate(),
		Channels:   dec.Channels(),
		BitDepth:   32,
	}
	v.length = dec.Length()
	if v.length <= 0 {
		v.length = -1
	}
	return nil
}

func (v *VorbisFile) Read(dst [][]float32) (int, error) {
	if v.file == nil {
		return 0, ErrNotOpen
	}
	channels := v.spec.Channels
	frames, err := dstFrames(dst, channels)
	if err != nil || frames == 0 {
		return 0, err
	}

	need := frames * channels
	if cap(v.frameBuf) < need {
		v.frameBuf = make([]float32, need)
	}
	v.frameBuf = v.frameBuf[:need]

	// Read returns interleaved values, always a whole number of frames.
	n, err := v.dec.Read(v.frameBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("audio: decoding Vorbis: %w", err)
	}
	n /= channels
	if n == 0 {
		return 0, io.EOF
	}
	deinterleave(dst, v.frameBuf, channels, n)
	return n, nil
}

func (v *VorbisFile) Close() error {
	if v.file == nil {
		return nil
	}
	err := v.file.Close()
	v.file, v.dec = nil, nil
	return err
}

func (v *VorbisFile) Spec() Spec    { return v.spec }
func (v *VorbisFile) Length() int64 { return v.length }
