// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"featex/internal/audio"
	"featex/internal/feature"
	"featex/internal/fft"
	"featex/internal/log"
	"featex/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug       bool            `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel    string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	LogFormat   string          `yaml:"log_format"`        // "text" or "json".
	Command     string          `yaml:"command,omitempty"` // A one-off command to execute instead of extracting (e.g., "features", "version").
	Interactive bool            `yaml:"interactive"`       // Pick features in the terminal before extracting.
	Analysis    AnalysisConfig  `yaml:"analysis"`          // Block, transform and feature settings.
	Input       InputConfig     `yaml:"input"`             // Audio file input settings.
	Output      OutputConfig    `yaml:"output"`            // Feature matrix report settings.
	Transport   TransportConfig `yaml:"transport"`         // Per-block feature frame publication.
	Server      ServerConfig    `yaml:"server"`            // HTTP API settings.
}

// AnalysisConfig holds the pipeline parameters that do not come from the input file.
type AnalysisConfig struct {
	BlockSize int      `yaml:"block_size"` // Analysed samples per block, power of two.
	HopSize   int      `yaml:"hop_size"`   // Samples between block starts, 1..block_size.
	ZeroPad   int      `yaml:"zero_pad"`   // FFT length multiplier.
	Window    string   `yaml:"window"`     // Window function name (e.g., "hann", "hamming", "none").
	Windowing string   `yaml:"windowing"`  // "pre", "post" or "none".
	Kappa     float64  `yaml:"kappa"`      // Rolloff energy fraction, (0, 1).
	Features  []string `yaml:"features"`   // Ordered feature names or ids; duplicates allowed.
}

// InputConfig holds settings for reading the analysed audio file.
type InputConfig struct {
	Path          string `yaml:"path"`            // Input file.
	Format        string `yaml:"format"`          // Empty to detect from the extension.
	ChunkFrames   int    `yaml:"chunk_frames"`    // Frames read per pipeline call.
	RawSampleRate int    `yaml:"raw_sample_rate"` // Headerless PCM only.
	RawChannels   int    `yaml:"raw_channels"`    // Headerless PCM only.
	RawEncoding   string `yaml:"raw_encoding"`    // "s16le" or "f32le".
}

// OutputConfig holds settings for the feature matrix report.
type OutputConfig struct {
	Path   string `yaml:"path"`   // Report file, empty for stdout.
	Format string `yaml:"format"` // "tsv", "csv", "json" or "table".
}

// TransportConfig holds settings related to sending feature frames over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending feature frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets, 0 sends every frame.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast feature frames to WebSocket clients.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the /ws endpoint.
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Address        string `yaml:"address"`          // Listen address.
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // Largest accepted upload.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("featex.yaml", "config.yaml"). If no file is found, it
// uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"featex.yaml",
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	log.Debugf("configuration: loaded %s", path)

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every section. The first failure is returned, wrapping
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q is not a level", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid("log_format %q must be text or json", c.LogFormat)
	}

	// Analysis Validation
	a := c.Analysis
	if a.BlockSize < MinBlockSize || a.BlockSize > MaxBlockSize || !bitint.IsPowerOfTwo(a.BlockSize) {
		if a.BlockSize > MinBlockSize && a.BlockSize < MaxBlockSize {
			return invalid("analysis.block_size %d must be a power of two, e.g. %d or %d",
				a.BlockSize, bitint.PrevPowerOfTwo(a.BlockSize), bitint.NextPowerOfTwo(a.BlockSize))
		}
		return invalid("analysis.block_size %d must be a power of two in [%d, %d]", a.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if a.HopSize <= 0 || a.HopSize > a.BlockSize {
		return invalid("analysis.hop_size %d must be in [1, %d]", a.HopSize, a.BlockSize)
	}
	if a.ZeroPad < 1 || a.ZeroPad > MaxZeroPad {
		return invalid("analysis.zero_pad %d must be in [1, %d]", a.ZeroPad, MaxZeroPad)
	}
	if !(a.Kappa > 0 && a.Kappa < 1) {
		return invalid("analysis.kappa %g must be in (0, 1)", a.Kappa)
	}
	if _, err := fft.ParseWindowFunc(a.Window); err != nil {
		return invalid("analysis.window: %v", err)
	}
	if _, err := fft.ParseWindowing(a.Windowing); err != nil {
		return invalid("analysis.windowing: %v", err)
	}
	ids, err := feature.ParseList(a.Features)
	if err != nil {
		return invalid("analysis.features: %v", err)
	}
	if len(ids) == 0 && !c.Interactive {
		return invalid("analysis.features is empty and interactive selection is off")
	}

	// Input Validation
	if c.Input.ChunkFrames <= 0 || c.Input.ChunkFrames > MaxChunkFrames {
		return invalid("input.chunk_frames %d must be in [1, %d]", c.Input.ChunkFrames, MaxChunkFrames)
	}
	if c.Input.Format != "" {
		if _, err := audio.ParseFormat(c.Input.Format); err != nil {
			return invalid("input.format: %v", err)
		}
	}
	if _, err := audio.ParseEncoding(c.Input.RawEncoding); err != nil {
		return invalid("input.raw_encoding: %v", err)
	}
	if c.Input.RawSampleRate < 0 || c.Input.RawChannels < 0 {
		return invalid("input.raw_sample_rate and input.raw_channels must not be negative")
	}

	// Output Validation
	switch strings.ToLower(c.Output.Format) {
	case "tsv", "csv", "json", "table":
	default:
		return invalid("output.format %q must be tsv, csv, json or table", c.Output.Format)
	}

	// Transport Validation
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return invalid("transport.udp_target_address must be set when UDP is enabled")
		}
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			return invalid("transport.udp_target_address %q appears invalid: %v", c.Transport.UDPTargetAddress, err)
		}
		if c.Transport.UDPSendInterval < 0 {
			return invalid("transport.udp_send_interval must not be negative")
		}
	}
	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddress); err != nil {
			return invalid("transport.websocket_address %q appears invalid: %v", c.Transport.WebSocketAddress, err)
		}
	}

	// Server Validation
	if c.Server.MaxUploadBytes <= 0 {
		return invalid("server.max_upload_bytes must be positive")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// applyEnvOverrides replaces fields named by ENV_* variables. Values that do
// not parse are logged and ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Debugf("configuration: Overriding debug from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_{BLOCK_SIZE,HOP_SIZE,...}
	// These are specific to the analysis pipeline.

	overrideInt("ENV_BLOCK_SIZE", "analysis.block_size", &cfg.Analysis.BlockSize)
	overrideInt("ENV_HOP_SIZE", "analysis.hop_size", &cfg.Analysis.HopSize)
	overrideInt("ENV_ZERO_PAD", "analysis.zero_pad", &cfg.Analysis.ZeroPad)
	overrideInt("ENV_CHUNK_FRAMES", "input.chunk_frames", &cfg.Input.ChunkFrames)
	// ENV_WINDOW
	if val, ok := os.LookupEnv("ENV_WINDOW"); ok {
		cfg.Analysis.Window = val
		log.Debugf("configuration: Overriding analysis.window from env: %s", val)
	}
	// ENV_KAPPA
	if val, ok := os.LookupEnv("ENV_KAPPA"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Analysis.Kappa = fVal
			log.Debugf("configuration: Overriding analysis.kappa from env: %v", fVal)
		} else {
			log.Warnf("configuration: ignoring ENV_KAPPA=%q: %v", val, err)
		}
	}
	// ENV_FEATURES
	if val, ok := os.LookupEnv("ENV_FEATURES"); ok {
		cfg.Analysis.Features = strings.Split(val, ",")
		log.Debugf("configuration: Overriding analysis.features from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Debugf("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Debugf("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Debugf("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			log.Debugf("configuration: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		log.Debugf("configuration: Overriding transport.websocket_address from env: %s", val)
	}

	// ENV_SERVER_ADDRESS
	if val, ok := os.LookupEnv("ENV_SERVER_ADDRESS"); ok {
		cfg.Server.Address = val
		log.Debugf("configuration: Overriding server.address from env: %s", val)
	}
}

func overrideInt(env, field string, dst *int) {
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", env, val, err)
		return
	}
	*dst = n
	log.Debugf("configuration: Overriding %s from env: %d", field, n)
}
