// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/aiff"
)

// AIFFFile decodes integer PCM AIFF files.
type AIFFFile struct {
	file   *os.File
	pcm    *intReader
	spec   Spec
	length int64
}

func (a *AIFFFile) Open(path string) error {
	if a.file != nil {
		return fmt.Errorf("audio: AIFF file already open: %w", ErrInvalidArgument)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}

	dec := aiff.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("audio: %s is not a valid AIFF file: %w", path, ErrUnsupportedFormat)
	}
	dec.ReadInfo()

	format := dec.Format()
	bitDepth := int(dec.BitDepth)
	if format == nil || format.NumChannels < 1 || bitDepth < 8 || bitDepth > 32 {
		file.Close()
		return fmt.Errorf("audio: %s: unsupported AIFF layout: %w", path, ErrUnsupportedFormat)
	}

	a.file = file
	a.pcm = newIntReader(dec, format, bitDepth, 0)
	a.spec = Spec{
		Format:     FormatAIFF,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   bitDepth,
	}
	a.length = int64(dec.NumSampleFrames)
	return nil
}

func (a *AIFFFile) Read(dst [][]float32) (int, error) {
	if a.file == nil {
		return 0, ErrNotOpen
	}
	return a.pcm.read(dst)
}

func (a *AIFFFile) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file, a.pcm = nil, nil
	return err
}

func (a *AIFFFile) Spec() Spec    { return a.spec }
func (a *AIFFFile) Length() int64 { return a.length }
