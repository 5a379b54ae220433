// SPDX-License-Identifier: MIT
package app

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"featex/internal/analysis"
	"featex/internal/audio"
	"featex/internal/config"
	"featex/internal/feature"
	"featex/internal/fft"
	"featex/internal/transport"
	"featex/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 22050

// writeStereo writes a 16-bit stereo WAV: a 440 Hz sine left, noise plus a
// 3 kHz sine right.
func writeStereo(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stereo.wav")
	w, err := audio.CreateWriter(path, audio.Spec{SampleRate: testRate, Channels: 2, BitDepth: 16})
	require.NoError(t, err)

	left := utils.GenerateSineWave(frames, testRate, 440, 0.6, 0)
	right := utils.GenerateNoise(frames, 0.2, 7)
	utils.AddSineWave(right, testRate, 3000, 0.3)
	require.NoError(t, w.Write([][]float32{left, right}, frames))
	require.NoError(t, w.Close())
	return path
}

// decodeAll reads a whole file into per-channel slices.
func decodeAll(t *testing.T, path string) [][]float32 {
	t.Helper()
	f, err := audio.OpenFile(path, audio.Spec{})
	require.NoError(t, err)
	defer f.Close()

	ch := f.Spec().Channels
	out := make([][]float32, ch)
	bufs := audio.MakeBuffers(ch, 700)
	for {
		n, err := f.Read(bufs)
		for c := range ch {
			out[c] = append(out[c], bufs[c][:n]...)
		}
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
	}
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Analysis.BlockSize = 512
	cfg.Analysis.HopSize = 256
	cfg.Input.ChunkFrames = 1000
	return cfg
}

// relClose compares with a relative tolerance, falling back to an absolute
// floor near zero.
func relClose(t *testing.T, want, got float32, rel float64, msg string, args ...any) {
	t.Helper()
	tol := math.Max(rel*math.Abs(float64(want)), 1e-6)
	assert.InDelta(t, want, got, tol, append([]any{msg}, args...)...)
}

// TestExtractFileMatchesReference decodes a WAV written by the writer and
// compares every block against a direct computation on the whole signal.
func TestExtractFileMatchesReference(t *testing.T) {
	const frames = 3*testRate/2 + 123
	path := writeStereo(t, frames)
	cfg := testConfig()

	res, err := NewRunner(cfg, nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)

	block, hop := cfg.Analysis.BlockSize, cfg.Analysis.HopSize
	wantBlocks := analysis.NumBlocks(frames, block, hop)
	require.Equal(t, wantBlocks, res.Blocks)
	assert.Equal(t, int64(frames), res.Frames)
	assert.Equal(t, path, res.Input)
	assert.Equal(t, []string{"centroid", "flux", "rolloff", "zcr"}, res.Names)
	rows, cols := res.Matrix.Rows(), res.Matrix.Cols()
	require.Equal(t, feature.NumFeatures, rows)
	require.Equal(t, wantBlocks, cols)

	// Direct computation.
	signal := decodeAll(t, path)
	tr, err := fft.New(block, 1, fft.Hann, fft.PreWindow)
	require.NoError(t, err)
	bins := tr.Length(fft.LenMagnitude)
	ex, err := feature.NewExtractor(testRate, bins, feature.DefaultKappa)
	require.NoError(t, err)

	mono := make([]float32, block)
	spectrum := make([]float32, tr.Length(fft.LenFFT))
	mag := make([]float32, bins)
	for b := range wantBlocks {
		clear(mono)
		for _, ch := range signal {
			for i, v := range ch[b*hop : b*hop+block] {
				mono[i] += v
			}
		}
		for i := range mono {
			mono[i] *= 0.5
		}
		require.NoError(t, tr.Forward(spectrum, mono))
		require.NoError(t, tr.Magnitude(mag, spectrum))

		relClose(t, ex.Centroid(mag), res.Matrix.At(0, b), 1e-4, "centroid block %d", b)
		relClose(t, ex.Flux(mag), res.Matrix.At(1, b), 6e-2, "flux block %d", b)
		relClose(t, ex.Rolloff(mag), res.Matrix.At(2, b), 1e-4, "rolloff block %d", b)
		assert.InDelta(t, feature.ZCR(mono), res.Matrix.At(3, b), 1e-5, "zcr block %d", b)
	}

	// The left channel alone would centre on 440 Hz; the mix sits higher.
	assert.Greater(t, res.Matrix.At(0, wantBlocks/2), float32(440))
}

func TestExtractPublishesEveryBlock(t *testing.T) {
	path := writeStereo(t, 5000)
	sink := &utils.MockTransport{}
	cfg := testConfig()
	cfg.Analysis.Features = []string{"zcr", "centroid"}

	res, err := NewRunner(cfg, sink).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, res.Blocks, sink.Count())

	for b, sent := range sink.Sent {
		frame, ok := sent.(transport.FeatureFrame)
		require.True(t, ok, "payload %d is %T", b, sent)
		assert.Equal(t, b, frame.Block)
		assert.Equal(t, uint32(b), frame.Seq)
		assert.InDelta(t, float64(b*256)/testRate, frame.TimeSec, 1e-12)
		assert.Equal(t, []string{"zcr", "centroid"}, frame.Names)
		assert.Equal(t, res.Matrix.At(0, b), frame.Values[0])
		assert.Equal(t, res.Matrix.At(1, b), frame.Values[1])
	}
}

func TestExtractRawInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.raw")
	n, err := WriteTone(path, Tone{Frequency: 1000, Amplitude: 0.5, Duration: 250 * time.Millisecond, SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2000), n)

	cfg := testConfig()
	cfg.Input.RawSampleRate = 8000
	cfg.Input.RawChannels = 1
	cfg.Input.RawEncoding = "f32le"
	cfg.Analysis.Features = []string{"zcr"}

	res, err := NewRunner(cfg, nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, analysis.NumBlocks(2000, 512, 256), res.Blocks)

	// 1 kHz at 8 kHz crosses zero twice per 8 samples.
	for b := range res.Blocks {
		assert.InDelta(t, 0.25, res.Matrix.At(0, b), 5e-3, "block %d", b)
	}
}

func TestExtractErrors(t *testing.T) {
	path := writeStereo(t, 2048)

	cfg := testConfig()
	cfg.Analysis.Features = nil
	_, err := NewRunner(cfg, nil).ExtractFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoFeatures)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(testConfig(), nil).ExtractFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewRunner(testConfig(), nil).ExtractFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	_, err = NewRunner(testConfig(), nil).ExtractFile(context.Background(), "input.flac")
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestExtractShortInput(t *testing.T) {
	path := writeStereo(t, 300)
	res, err := NewRunner(testConfig(), nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.Blocks)
	assert.Equal(t, 0, res.Matrix.Cols())
	assert.Equal(t, feature.NumFeatures, res.Matrix.Rows())
}

// streamFile is an in-memory mono File that may hide its length.
type streamFile struct {
	data   []float32
	pos    int
	length int64
	closes int
}

func (s *streamFile) Open(string) error { return nil }
func (s *streamFile) Close() error      { s.closes++; return nil }
func (s *streamFile) Spec() audio.Spec {
	return audio.Spec{Format: audio.FormatRaw, SampleRate: 1000, Channels: 1, BitDepth: 32}
}
func (s *streamFile) Length() int64 { return s.length }

func (s *streamFile) Read(dst [][]float32) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(dst[0], s.data[s.pos:])
	s.pos += n
	return n, nil
}

func TestCountFrames(t *testing.T) {
	f := &streamFile{data: make([]float32, 2500), length: -1}
	n, err := countFrames(context.Background(), f, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), n)
}

func TestExtractLongerThanDeclared(t *testing.T) {
	f := &streamFile{data: utils.GenerateNoise(4096, 0.5, 3)}
	cfg := testConfig()

	// Declaring 1024 frames leaves room for 3 blocks; the rest is ignored.
	res, err := NewRunner(cfg, nil).Extract(context.Background(), f, 1024)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Blocks)
	assert.Equal(t, 3, res.Matrix.Cols())
}

func TestExtractCountsUnknownLength(t *testing.T) {
	data := utils.GenerateNoise(2048, 0.5, 5)
	var opened []*streamFile
	open := func() (audio.File, error) {
		f := &streamFile{data: data, length: -1}
		opened = append(opened, f)
		return f, nil
	}

	res, err := NewRunner(testConfig(), nil).extractOpened(context.Background(), "stream", open)
	require.NoError(t, err)
	assert.Equal(t, analysis.NumBlocks(2048, 512, 256), res.Blocks)
	assert.Equal(t, int64(2048), res.Frames)
	assert.Equal(t, "stream", res.Input)

	require.Len(t, opened, 2, "counted once, then reopened")
	assert.Equal(t, 1, opened[0].closes)
	assert.Equal(t, 1, opened[1].closes)
}

func TestExtractReopenFails(t *testing.T) {
	first := &streamFile{data: make([]float32, 2048), length: -1}
	errGone := errors.New("input removed")
	calls := 0
	open := func() (audio.File, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errGone
	}

	var err error
	assert.NotPanics(t, func() {
		_, err = NewRunner(testConfig(), nil).extractOpened(context.Background(), "stream", open)
	})
	assert.ErrorIs(t, err, errGone)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, first.closes, "the counted handle is closed exactly once")
}

func TestExtractCountFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := &streamFile{data: make([]float32, 2048), length: -1}
	calls := 0
	open := func() (audio.File, error) {
		calls++
		return first, nil
	}

	_, err := NewRunner(testConfig(), nil).extractOpened(ctx, "stream", open)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no reopen after a failed count")
	assert.Equal(t, 1, first.closes)
}
