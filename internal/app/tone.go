// SPDX-License-Identifier: MIT
package app

import (
	"errors"
	"fmt"
	"math"
	"time"

	"featex/internal/audio"
	"featex/pkg/utils"
)

// Tone describes a synthetic sine test signal.
type Tone struct {
	Frequency  float64 // Hz
	Amplitude  float64 // Peak, (0, 1]
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int // WAV/AIFF only, 0 for 16
}

const toneChunk = 4096

// WriteTone renders t to path; the format follows the extension. Every
// channel carries the same signal. It returns the number of frames written.
func WriteTone(path string, t Tone) (int64, error) {
	switch {
	case t.SampleRate <= 0 || t.Channels <= 0:
		return 0, fmt.Errorf("app: tone needs a sample rate and channels, got %d Hz, %d ch", t.SampleRate, t.Channels)
	case t.Duration <= 0:
		return 0, fmt.Errorf("app: tone duration %v must be positive", t.Duration)
	case !(t.Amplitude > 0 && t.Amplitude <= 1):
		return 0, fmt.Errorf("app: tone amplitude %g outside (0, 1]", t.Amplitude)
	case t.Frequency < 0 || t.Frequency > float64(t.SampleRate)/2:
		return 0, fmt.Errorf("app: tone frequency %g outside [0, %d]", t.Frequency, t.SampleRate/2)
	}

	w, err := audio.CreateWriter(path, audio.Spec{
		SampleRate: t.SampleRate,
		Channels:   t.Channels,
		BitDepth:   t.BitDepth,
		Encoding:   audio.Float32LE,
	})
	if err != nil {
		return 0, err
	}

	total := int64(math.Round(t.Duration.Seconds() * float64(t.SampleRate)))
	bufs := make([][]float32, t.Channels)
	sr := float64(t.SampleRate)
	var written int64
	for written < total {
		n := int(min(int64(toneChunk), total-written))
		phase := 2 * math.Pi * t.Frequency * float64(written) / sr
		sine := utils.GenerateSineWave(n, sr, t.Frequency, t.Amplitude, phase)
		for c := range bufs {
			bufs[c] = sine
		}
		if err := w.Write(bufs, n); err != nil {
			return written, errors.Join(err, w.Close())
		}
		written += int64(n)
	}
	return written, w.Close()
}
