// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testSampleRate = 8000

// testSignal returns channels of distinct sines at amplitude 0.5.
func testSignal(channels, frames int) [][]float32 {
	bufs := MakeBuffers(channels, frames)
	for c := range channels {
		freq := 220.0 * float64(c+1)
		for i := range frames {
			bufs[c][i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
		}
	}
	return bufs
}

// writeFile encodes sig in chunks of 100 frames.
func writeFile(t *testing.T, path string, spec Spec, sig [][]float32) {
	t.Helper()
	w, err := CreateWriter(path, spec)
	if err != nil {
		t.Fatalf("CreateWriter(%s): %v", path, err)
	}
	frames := len(sig[0])
	view := make([][]float32, len(sig))
	for pos := 0; pos < frames; pos += 100 {
		n := min(100, frames-pos)
		for c := range sig {
			view[c] = sig[c][pos : pos+n]
		}
		if err := w.Write(view, n); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// readAll drains f with a destination of chunk frames.
func readAll(t *testing.T, f File, chunk int) [][]float32 {
	t.Helper()
	channels := f.Spec().Channels
	out := make([][]float32, channels)
	dst := MakeBuffers(channels, chunk)
	for {
		n, err := f.Read(dst)
		if errors.Is(err, io.EOF) {
			if n != 0 {
				t.Fatalf("Read returned %d frames with io.EOF", n)
			}
			return out
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		for c := range channels {
			out[c] = append(out[c], dst[c][:n]...)
		}
	}
}

func assertClose(t *testing.T, want, got [][]float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d channels, want %d", len(got), len(want))
	}
	for c := range want {
		if len(got[c]) != len(want[c]) {
			t.Fatalf("channel %d: got %d frames, want %d", c, len(got[c]), len(want[c]))
		}
		for i := range want[c] {
			if d := math.Abs(float64(got[c][i] - want[c][i])); d > tol {
				t.Fatalf("channel %d frame %d: got %f, want %f", c, i, got[c][i], want[c][i])
			}
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"wav", FormatWAV},
		{".WAV", FormatWAV},
		{"aif", FormatAIFF},
		{"aiff", FormatAIFF},
		{"mp3", FormatMP3},
		{".ogg", FormatVorbis},
		{"raw", FormatRaw},
		{"pcm", FormatRaw},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseFormat("flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseFormat(flac) error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := FormatFromPath("noext"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FormatFromPath(noext) error = %v, want ErrUnsupportedFormat", err)
	}
	if f, _ := FormatFromPath("/tmp/take.Aiff"); f != FormatAIFF {
		t.Errorf("FormatFromPath(take.Aiff) = %v", f)
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{"s16le": Int16LE, "int16": Int16LE, "f32le": Float32LE, "float32": Float32LE} {
		if got, err := ParseEncoding(in); err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseEncoding("u8"); err == nil {
		t.Error("ParseEncoding(u8) should fail")
	}
}

func TestNewFile(t *testing.T) {
	if _, err := NewFile(FormatUnknown, Spec{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("NewFile(unknown) error = %v", err)
	}
	if _, err := NewFile(FormatRaw, Spec{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewFile(raw) without spec error = %v", err)
	}
	for _, f := range []Format{FormatWAV, FormatAIFF, FormatMP3, FormatVorbis} {
		file, err := NewFile(f, Spec{})
		if err != nil {
			t.Fatalf("NewFile(%s): %v", f, err)
		}
		if _, err := file.Read(MakeBuffers(2, 16)); !errors.Is(err, ErrNotOpen) {
			t.Errorf("%s: Read before Open error = %v, want ErrNotOpen", f, err)
		}
		if err := file.Close(); err != nil {
			t.Errorf("%s: Close before Open: %v", f, err)
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		bitDepth int
		tol      float64
	}{
		{"mono 16 bit", 1, 16, 1.0 / 16384},
		{"stereo 16 bit", 2, 16, 1.0 / 16384},
		{"stereo 24 bit", 2, 24, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "signal.wav")
			sig := testSignal(tt.channels, 1234)
			writeFile(t, path, Spec{SampleRate: testSampleRate, Channels: tt.channels, BitDepth: tt.bitDepth}, sig)

			f, err := OpenFile(path, Spec{})
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer f.Close()

			spec := f.Spec()
			if spec.Format != FormatWAV || spec.SampleRate != testSampleRate ||
				spec.Channels != tt.channels || spec.BitDepth != tt.bitDepth {
				t.Fatalf("unexpected spec %v", spec)
			}
			if f.Length() != 1234 {
				t.Errorf("Length() = %d, want 1234", f.Length())
			}
			assertClose(t, sig, readAll(t, f, 300), tt.tol)
		})
	}
}

func TestAIFFRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.aiff")
	sig := testSignal(2, 900)
	writeFile(t, path, Spec{SampleRate: testSampleRate, Channels: 2}, sig)

	f, err := OpenFile(path, Spec{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if spec := f.Spec(); spec.Format != FormatAIFF || spec.Channels != 2 || spec.SampleRate != testSampleRate {
		t.Fatalf("unexpected spec %v", spec)
	}
	assertClose(t, sig, readAll(t, f, 256), 1.0/16384)
}

func TestRawRoundTrip(t *testing.T) {
	for _, enc := range []Encoding{Int16LE, Float32LE} {
		t.Run(enc.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "signal.raw")
			spec := Spec{Format: FormatRaw, SampleRate: testSampleRate, Channels: 2, Encoding: enc}
			sig := testSignal(2, 777)
			writeFile(t, path, spec, sig)

			f, err := OpenFile(path, spec)
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer f.Close()

			if f.Length() != 777 {
				t.Errorf("Length() = %d, want 777", f.Length())
			}
			tol := 1.0 / 16384
			if enc == Float32LE {
				tol = 0
			}
			assertClose(t, sig, readAll(t, f, 128), tol)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	if err := os.WriteFile(garbage+".wav", []byte("this is not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(garbage+".ogg", []byte("this is not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenFile(garbage+".wav", Spec{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("garbage WAV error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := OpenFile(garbage+".ogg", Spec{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("garbage Ogg error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := OpenFile(filepath.Join(dir, "missing.mp3"), Spec{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing MP3 error = %v, want os.ErrNotExist", err)
	}
	if _, err := OpenFile(filepath.Join(dir, "song.flac"), Spec{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("flac error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadShortDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeFile(t, path, Spec{SampleRate: testSampleRate, Channels: 2}, testSignal(2, 100))

	f, err := OpenFile(path, Spec{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Read(MakeBuffers(1, 64)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("mono destination for stereo file: error = %v", err)
	}
	if err := f.Open(path); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("double Open error = %v", err)
	}
}

func TestWriterErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc string
		path string
		spec Spec
		want error
	}{
		{"no extension", filepath.Join(dir, "out"), Spec{SampleRate: 8000, Channels: 1}, ErrUnsupportedFormat},
		{"mp3 output", filepath.Join(dir, "out.mp3"), Spec{SampleRate: 8000, Channels: 1}, ErrUnsupportedFormat},
		{"no channels", filepath.Join(dir, "out.wav"), Spec{SampleRate: 8000}, ErrInvalidArgument},
		{"odd bit depth", filepath.Join(dir, "out.wav"), Spec{SampleRate: 8000, Channels: 1, BitDepth: 12}, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := CreateWriter(tt.path, tt.spec); !errors.Is(err, tt.want) {
				t.Errorf("CreateWriter error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := CreateWriter("/nonexistent/path/file.wav", Spec{SampleRate: 8000, Channels: 1}); err == nil {
		t.Error("expected error for invalid path")
	}

	w, err := CreateWriter(filepath.Join(dir, "ok.wav"), Spec{SampleRate: 8000, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(MakeBuffers(1, 10), 10); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short source error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Write(MakeBuffers(2, 10), 10); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close error = %v", err)
	}
}

func TestQuantiseClamps(t *testing.T) {
	tests := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2, 32767},
		{-3, -32767},
		{float32(math.NaN()), 0},
		{0.5, 16384},
	}
	for _, tt := range tests {
		if got := quantise(tt.in, 32767); got != tt.want {
			t.Errorf("quantise(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadNoAllocsHotPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.raw")
	spec := Spec{Format: FormatRaw, SampleRate: testSampleRate, Channels: 2, Encoding: Int16LE}
	writeFile(t, path, spec, testSignal(2, 64*200))

	f, err := OpenFile(path, spec)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dst := MakeBuffers(2, 64)
	if _, err := f.Read(dst); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(100, func() {
		if _, err := f.Read(dst); err != nil {
			t.Fatal(err)
		}
	})
	if allocs > 0 {
		t.Errorf("Read allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkWAVRead(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.wav")
	w, err := CreateWriter(path, Spec{SampleRate: testSampleRate, Channels: 2})
	if err != nil {
		b.Fatal(err)
	}
	sig := testSignal(2, 1<<16)
	if err := w.Write(sig, len(sig[0])); err != nil {
		b.Fatal(err)
	}
	w.Close()

	dst := MakeBuffers(2, 1024)
	b.ReportAllocs()
	for b.Loop() {
		f, err := OpenFile(path, Spec{})
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := f.Read(dst); err != nil {
				break
			}
		}
		f.Close()
	}
}
