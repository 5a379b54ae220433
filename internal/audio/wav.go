// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag; compressed and float WAVs are
// rejected.
const wavFormatPCM = 1

// WAVFile decodes integer PCM WAV files.
type WAVFile struct {
	file   *os.File
	pcm    *intReader
	spec   Spec
	length int64
}

func (w *WAVFile) Open(path string) error {
	if w.file != nil {
		return fmt.Errorf("audio: WAV file already open: %w", ErrInvalidArgument)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("audio: %s is not a valid WAV file: %w", path, ErrUnsupportedFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return fmt.Errorf("audio: %s: locating PCM data: %w", path, err)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		file.Close()
		return fmt.Errorf("audio: %s: WAV format tag %d: %w", path, dec.WavAudioFormat, ErrUnsupportedFormat)
	}

	channels, bitDepth := int(dec.NumChans), int(dec.BitDepth)
	if channels < 1 || bitDepth < 8 || bitDepth > 32 {
		file.Close()
		return fmt.Errorf("audio: %s: %d channels at %d bit: %w", path, channels, bitDepth, ErrUnsupportedFormat)
	}

	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	w.file = file
	w.pcm = newIntReader(dec, dec.Format(), bitDepth, offset)
	w.spec = Spec{
		Format:     FormatWAV,
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}
	w.length = dec.PCMLen() / int64(channels*(bitDepth/8))
	return nil
}

func (w *WAVFile) Read(dst [][]float32) (int, error) {
	if w.file == nil {
		return 0, ErrNotOpen
	}
	return w.pcm.read(dst)
}

func (w *WAVFile) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file, w.pcm = nil, nil
	return err
}

func (w *WAVFile) Spec() Spec    { return w.spec }
func (w *WAVFile) Length() int64 { return w.length }
