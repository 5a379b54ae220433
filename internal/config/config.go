// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the feature extraction pipeline.
const (
	// Analysis defaults
	DefaultBlockSize = 1024   // Samples per analysis block
	DefaultHopSize   = 512    // 50% overlap
	DefaultZeroPad   = 1      // No zero padding
	DefaultWindow    = "hann" // Periodic Hann window
	DefaultWindowing = "pre"  // Window before the forward transform
	DefaultKappa     = 0.85   // Rolloff energy fraction

	// Input/output defaults
	DefaultChunkFrames  = 1024    // Frames read from the file per Process call
	DefaultOutputFormat = "tsv"   // Feature matrix report format
	DefaultRawEncoding  = "s16le" // Headerless PCM sample encoding
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"

	// Network defaults
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 0 * time.Millisecond // Send every block
	DefaultWebSocketAddress = ":8080"
	DefaultServerAddress    = ":8000"
	DefaultMaxUploadBytes   = 64 << 20 // 64 MiB

	// Processing limits
	MinBlockSize   = 2       // Smallest transformable block
	MaxBlockSize   = 1 << 16 // Largest accepted block (power of 2)
	MaxZeroPad     = 16      // Largest FFT length multiplier
	MaxChunkFrames = 1 << 20 // Largest read size per Process call
)

// DefaultFeatures lists every catalog feature in id order.
var DefaultFeatures = []string{"centroid", "flux", "rolloff", "zcr"}

// NewConfig creates a new Config instance with default values.
// This is typically used as the base configuration before
// applying a config file, environment overrides and command line flags.
func NewConfig() *Config {
	return &Config{
		Debug:     false,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Analysis: AnalysisConfig{
			BlockSize: DefaultBlockSize,
			HopSize:   DefaultHopSize,
			ZeroPad:   DefaultZeroPad,
			Window:    DefaultWindow,
			Windowing: DefaultWindowing,
			Kappa:     DefaultKappa,
			Features:  append([]string(nil), DefaultFeatures...),
		},
		Input: InputConfig{
			ChunkFrames: DefaultChunkFrames,
			RawEncoding: DefaultRawEncoding,
		},
		Output: OutputConfig{
			Format: DefaultOutputFormat,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
		},
		Server: ServerConfig{
			Address:        DefaultServerAddress,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
	}
}
