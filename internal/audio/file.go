// SPDX-License-Identifier: MIT
/*
Package audio reads and writes audio files as per-channel float32 buffers.

Every decoder implements File; callers pick one with NewFile or let
OpenFile choose by extension:
- WAV and AIFF through go-audio
- MP3 through go-mp3 (always 16-bit stereo)
- Ogg Vorbis through oggvorbis
- headerless little-endian PCM whose Spec is supplied by the caller

Samples are normalised to [-1, 1).
*/
package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	ErrInvalidArgument   = errors.New("audio: invalid argument")
	ErrNotOpen           = errors.New("audio: file not open")
)

// Format identifies a container/codec.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatAIFF
	FormatMP3
	FormatVorbis
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatAIFF:
		return "aiff"
	case FormatMP3:
		return "mp3"
	case FormatVorbis:
		return "vorbis"
	case FormatRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseFormat accepts a format name or a file extension with or without dot.
func ParseFormat(name string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".") {
	case "wav", "wave":
		return FormatWAV, nil
	case "aif", "aiff":
		return FormatAIFF, nil
	case "mp3":
		return FormatMP3, nil
	case "ogg", "oga", "vorbis":
		return FormatVorbis, nil
	case "raw", "pcm", "f32", "s16":
		return FormatRaw, nil
	default:
		return FormatUnknown, fmt.Errorf("%q: %w", name, ErrUnsupportedFormat)
	}
}

// FormatFromPath guesses the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return FormatUnknown, fmt.Errorf("%s has no extension: %w", path, ErrUnsupportedFormat)
	}
	return ParseFormat(ext)
}

// Encoding is the sample encoding of raw PCM files.
type Encoding int

const (
	Int16LE Encoding = iota
	Float32LE
)

func (e Encoding) String() string {
	switch e {
	case Int16LE:
		return "s16le"
	case Float32LE:
		return "f32le"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// BytesPerSample returns the encoded size of one sample.
func (e Encoding) BytesPerSample() int {
	if e == Float32LE {
		return 4
	}
	return 2
}

// ParseEncoding accepts s16le/int16 or f32le/float32.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "s16le", "s16", "int16", "pcm16":
		return Int16LE, nil
	case "f32le", "f32", "float32", "float":
		return Float32LE, nil
	default:
		return Int16LE, fmt.Errorf("unknown raw encoding %q: %w", name, ErrUnsupportedFormat)
	}
}

// Spec describes the stream behind a File.
type Spec struct {
	Format     Format
	SampleRate int
	Channels   int
	BitDepth   int
	Encoding   Encoding // raw files only
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %d Hz, %d ch, %d bit", s.Format, s.SampleRate, s.Channels, s.BitDepth)
}

// File is an audio source opened from disk.
type File interface {
	Open(path string) error
	// Read fills dst[c][:n] for every channel and returns the frame count n.
	// At end of stream it returns 0, io.EOF.
	Read(dst [][]float32) (int, error)
	Close() error
	Spec() Spec
	// Length returns the stream length in frames, or -1 if unknown.
	Length() int64
}

// Compile-time checks for interface implementations.
var (
	_ File = (*WAVFile)(nil)
	_ File = (*AIFFFile)(nil)
	_ File = (*MP3File)(nil)
	_ File = (*VorbisFile)(nil)
	_ File = (*RawFile)(nil)
)

// NewFile returns an unopened File for format. raw is only consulted for
// FormatRaw, which needs the sample rate, channel count and encoding.
func NewFile(format Format, raw Spec) (File, error) {
	switch format {
	case FormatWAV:
		return &WAVFile{}, nil
	case FormatAIFF:
		return &AIFFFile{}, nil
	case FormatMP3:
		return &MP3File{}, nil
	case FormatVorbis:
		return &VorbisFile{}, nil
	case FormatRaw:
		return NewRawFile(raw)
	default:
		return nil, fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)
	}
}

// OpenFile selects a decoder by extension and opens path. raw is used for
// headerless PCM.
func OpenFile(path string, raw Spec) (File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := NewFile(format, raw)
	if err != nil {
		return nil, err
	}
	if err := f.Open(path); err != nil {
		return nil, err
	}
	return f, nil
}

// MakeBuffers allocates channels x frames of sample storage.
func MakeBuffers(channels, frames int) [][]float32 {
	backing := make([]float32, channels*frames)
	bufs := make([][]float32, channels)
	for c := range bufs {
		bufs[c] = backing[c*frames : (c+1)*frames : (c+1)*frames]
	}
	return bufs
}

// dstFrames validates dst against the channel count and returns how many
// frames every channel can take.
func dstFrames(dst [][]float32, channels int) (int, error) {
	if len(dst) < channels {
		return 0, fmt.Errorf("audio: %d destination channels, need %d: %w", len(dst), channels, ErrInvalidArgument)
	}
	frames := len(dst[0])
	for _, ch := range dst[1:channels] {
		frames = min(frames, len(ch))
	}
	return frames, nil
}

// deinterleave spreads frames of interleaved samples into dst.
func deinterleave(dst [][]float32, src []float32, channels, frames int) {
	for c := range channels {
		out := dst[c]
		for i := range frames {
			out[i] = src[i*channels+c]
		}
	}
}

// intScale returns the factor mapping signed integers of bitDepth onto [-1, 1).
func intScale(bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return 1 / float32(int64(1)<<(bitDepth-1))
}
