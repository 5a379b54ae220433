// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces interleaved 16-bit little-endian stereo.
const (
	mp3Channels   = 2
	mp3FrameBytes = 4
)

// MP3File decodes MPEG-1/2 Layer III files.
type MP3File struct {
	file   *os.File
	dec    io.Reader
	spec   Spec
	length int64
	buf    []byte
}

func (m *MP3File) Open(path string) error {
	if m.file != nil {
		return fmt.Errorf("audio: MP3 file already open: %w", ErrInvalidArgument)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}

	dec, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("audio: %s is not a valid MP3 file: %w: %w", path, ErrUnsupportedFormat, err)
	}

	m.file = file
	m.dec = dec
	m.spec = Spec{
		Format:     FormatMP3,
		SampleRate: dec.SampleRate(),
		Channels:   mp3Channels,
		BitDepth:   16,
	}
	m.length = -1
	if n := dec.Length(); n > 0 {
		m.length = n / mp3FrameBytes
	}
	return nil
}

func (m *MP3File) Read(dst [][]float32) (int, error) {
	if m.file == nil {
		return 0, ErrNotOpen
	}
	frames, err := dstFrames(dst, mp3Channels)
	if err != nil || frames == 0 {
		return 0, err
	}

	need := frames * mp3FrameBytes
	if cap(m.buf) < need {
		m.buf = make([]byte, need)
	}
	m.buf = m.buf[:need]

	n, err := io.ReadFull(m.dec, m.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("audio: decoding MP3: %w", err)
	}
	n /= mp3FrameBytes
	if n == 0 {
		return 0, io.EOF
	}

	const scale = 1.0 / 32768
	left, right := dst[0], dst[1]
	for i := range n {
		left[i] = float32(int16(binary.LittleEndian.Uint16(m.buf[i*4:]))) * scale
		right[i] = float32(int16(binary.LittleEndian.Uint16(m.buf[i*4+2:]))) * scale
	}
	return n, nil
}

func (m *MP3File) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file, m.dec = nil, nil
	return err
}

func (m *MP3File) Spec() Spec    { return m.spec }
func (m *MP3File) Length() int64 { return m.length }
