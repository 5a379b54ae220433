// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"featex/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return tty }
	t.Cleanup(func() { stdinIsTerminal = orig })
}

func TestParseArgsExtract(t *testing.T) {
	withTerminal(t, false)
	opts, err := ParseArgs([]string{
		"extract", "in.wav", "out.csv",
		"-b", "2048", "-p", "1024", "--zero-pad", "2",
		"-f", "zcr,centroid", "-f", "zcr",
		"-w", "hamming", "--windowing", "post", "-k", "0.9",
		"--format", "csv",
	})
	require.NoError(t, err)

	assert.Equal(t, CommandExtract, opts.Command)
	assert.Equal(t, "in.wav", opts.Input.Path)
	assert.Equal(t, "out.csv", opts.Output.Path)
	assert.Equal(t, 2048, opts.Analysis.BlockSize)
	assert.Equal(t, 1024, opts.Analysis.HopSize)
	assert.Equal(t, 2, opts.Analysis.ZeroPad)
	assert.Equal(t, []string{"zcr", "centroid", "zcr"}, opts.Analysis.Features)
	assert.Equal(t, "hamming", opts.Analysis.Window)
	assert.Equal(t, "post", opts.Analysis.Windowing)
	assert.InDelta(t, 0.9, opts.Analysis.Kappa, 1e-12)
	assert.Equal(t, "csv", opts.Output.Format)
}

func TestParseArgsRootExtracts(t *testing.T) {
	withTerminal(t, false)
	opts, err := ParseArgs([]string{"in.wav"})
	require.NoError(t, err)

	assert.Equal(t, CommandExtract, opts.Command)
	assert.Equal(t, "in.wav", opts.Input.Path)
	assert.Empty(t, opts.Output.Path)
	assert.Equal(t, config.DefaultBlockSize, opts.Analysis.BlockSize)
	assert.Equal(t, config.DefaultFeatures, opts.Analysis.Features)
}

func TestParseArgsCommands(t *testing.T) {
	withTerminal(t, false)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"features"}, CommandFeatures},
		{[]string{"version"}, CommandVersion},
		{[]string{"serve"}, CommandServe},
		{[]string{"--version"}, ""},
	}
	for _, tt := range tests {
		opts, err := ParseArgs(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, opts.Command, tt.args)
	}
}

func TestParseArgsServe(t *testing.T) {
	withTerminal(t, false)
	opts, err := ParseArgs([]string{"serve", "--addr", "127.0.0.1:9000", "--ws"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", opts.Server.Address)
	assert.True(t, opts.Transport.WebSocketEnabled)

	opts, err = ParseArgs([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultServerAddress, opts.Server.Address)
}

func TestParseArgsTone(t *testing.T) {
	withTerminal(t, false)
	opts, err := ParseArgs([]string{"tone", "a4.wav", "--freq", "1000", "--duration", "500ms", "--rate", "8000", "--channels", "2"})
	require.NoError(t, err)

	assert.Equal(t, CommandTone, opts.Command)
	assert.Equal(t, "a4.wav", opts.Output.Path)
	assert.Equal(t, 1000.0, opts.Tone.Frequency)
	assert.Equal(t, 500*time.Millisecond, opts.Tone.Duration)
	assert.Equal(t, 8000, opts.Tone.SampleRate)
	assert.Equal(t, 2, opts.Tone.Channels)
	assert.Equal(t, 16, opts.Tone.BitDepth)
}

func TestParseArgsTransport(t *testing.T) {
	withTerminal(t, false)
	opts, err := ParseArgs([]string{"in.wav", "--udp", "--udp-target", "10.0.0.2:7000", "--udp-interval", "20ms", "-v"})
	require.NoError(t, err)

	assert.True(t, opts.Transport.UDPEnabled)
	assert.Equal(t, "10.0.0.2:7000", opts.Transport.UDPTargetAddress)
	assert.Equal(t, 20*time.Millisecond, opts.Transport.UDPSendInterval)
	assert.False(t, opts.Transport.WebSocketEnabled)
	assert.True(t, opts.Debug)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestParseArgsConfigFile(t *testing.T) {
	withTerminal(t, false)
	path := filepath.Join(t.TempDir(), "featex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analysis:
  block_size: 256
  hop_size: 128
  features: [flux]
output:
  format: json
`), 0o644))

	opts, err := ParseArgs([]string{"in.wav", "-c", path, "-p", "64"})
	require.NoError(t, err)

	assert.Equal(t, 256, opts.Analysis.BlockSize)
	assert.Equal(t, 64, opts.Analysis.HopSize, "flags override the file")
	assert.Equal(t, []string{"flux"}, opts.Analysis.Features)
	assert.Equal(t, "json", opts.Output.Format)
	assert.Equal(t, config.DefaultWindow, opts.Analysis.Window)
}

func TestParseArgsEmptyFeatures(t *testing.T) {
	withTerminal(t, true)
	opts, err := ParseArgs([]string{"in.wav", "--features="})
	require.NoError(t, err)
	assert.True(t, opts.Interactive, "a terminal falls back to the picker")
	assert.Empty(t, opts.Analysis.Features)

	withTerminal(t, false)
	_, err = ParseArgs([]string{"in.wav", "--features="})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	opts, err = ParseArgs([]string{"in.wav", "--features=", "-i"})
	require.NoError(t, err)
	assert.True(t, opts.Interactive)
}

func TestParseArgsErrors(t *testing.T) {
	withTerminal(t, false)
	tests := []struct {
		name    string
		args    []string
		invalid bool
	}{
		{"extract without input", []string{"extract"}, false},
		{"too many arguments", []string{"a.wav", "b.tsv", "c"}, false},
		{"unknown flag", []string{"in.wav", "--nope"}, false},
		{"block size not a power of two", []string{"in.wav", "-b", "1000"}, true},
		{"hop larger than block", []string{"in.wav", "-b", "256", "-p", "512"}, true},
		{"kappa out of range", []string{"in.wav", "-k", "1"}, true},
		{"unknown feature", []string{"in.wav", "-f", "mfcc"}, true},
		{"unknown window", []string{"in.wav", "-w", "triangle"}, true},
		{"unknown report format", []string{"in.wav", "--format", "xml"}, true},
		{"missing config file", []string{"in.wav", "-c", "does-not-exist.yaml"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
			}
		})
	}
}
