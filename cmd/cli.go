// SPDX-License-Identifier: MIT
//
// Package cmd parses the command line into a configuration. Values come from
// the defaults, then the YAML file, then ENV_* variables and finally flags.
package cmd

import (
	"fmt"
	"os"
	"time"

	"featex/internal/app"
	"featex/internal/config"
	"featex/pkg/build"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Commands recorded in config.Config.Command.
const (
	CommandExtract  = "extract"
	CommandFeatures = "features"
	CommandTone     = "tone"
	CommandServe    = "serve"
	CommandVersion  = "version"
)

// Options is the parsed command line.
type Options struct {
	*config.Config
	Tone app.Tone // tone command only
}

// stdinIsTerminal reports whether the feature picker can be shown.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// flagValues receives flag values before they are copied onto the loaded
// configuration. Only flags set on the command line are copied.
type flagValues struct {
	configPath  string
	verbose     bool
	logFormat   string
	interactive bool

	blockSize int
	hopSize   int
	zeroPad   int
	window    string
	windowing string
	kappa     float64
	features  []string

	inputFormat string
	chunkFrames int
	rawRate     int
	rawChannels int
	rawEncoding string
	format      string

	udp         bool
	udpTarget   string
	udpInterval time.Duration
	ws          bool
	wsAddress   string

	addr string
}

// ParseArgs builds the configuration from args (without the program name).
// Help and --version leave Command empty.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{
		Config: config.NewConfig(),
		Tone: app.Tone{
			Frequency:  440,
			Amplitude:  0.5,
			Duration:   2 * time.Second,
			SampleRate: 44100,
			Channels:   1,
		},
	}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [input] [output]",
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.MaximumNArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd, &fv)
			if err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without arguments there is nothing to extract.
			if len(args) == 0 {
				return cmd.Help()
			}
			return setExtract(opts.Config, args)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Extract command
	extractCmd := &cobra.Command{
		Use:   "extract <input> [output]",
		Short: "Extract the selected features from an audio file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setExtract(opts.Config, args)
		},
	}
	rootCmd.AddCommand(extractCmd)

	// Features command
	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "List available features",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandFeatures
		},
	}
	rootCmd.AddCommand(featuresCmd)

	// Tone command
	toneCmd := &cobra.Command{
		Use:   "tone <output>",
		Short: "Write a sine test tone to a WAV, AIFF or raw file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandTone
			opts.Output.Path = args[0]
		},
	}
	toneCmd.Flags().Float64Var(&opts.Tone.Frequency, "freq", opts.Tone.Frequency, "Tone frequency in Hz")
	toneCmd.Flags().Float64Var(&opts.Tone.Amplitude, "amplitude", opts.Tone.Amplitude, "Peak amplitude, (0, 1]")
	toneCmd.Flags().DurationVar(&opts.Tone.Duration, "duration", opts.Tone.Duration, "Tone length")
	toneCmd.Flags().IntVar(&opts.Tone.SampleRate, "rate", opts.Tone.SampleRate, "Sample rate, measured in Hertz (Hz)")
	toneCmd.Flags().IntVar(&opts.Tone.Channels, "channels", opts.Tone.Channels, "Number of channels")
	toneCmd.Flags().IntVar(&opts.Tone.BitDepth, "bit-depth", 16, "Integer sample size for WAV and AIFF")
	rootCmd.AddCommand(toneCmd)

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction API",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandServe
			if cmd.Flags().Changed("addr") {
				opts.Server.Address = fv.addr
			}
		},
	}
	serveCmd.Flags().StringVar(&fv.addr, "addr", config.DefaultServerAddress, "HTTP listen address")
	rootCmd.AddCommand(serveCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandVersion
		},
	}
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()

	// General Configuration
	pf.StringVarP(&fv.configPath, "config", "c", "",
		"YAML configuration file. Default is ./featex.yaml or ./config.yaml if present")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&fv.logFormat, "log-format", config.DefaultLogFormat, "Log output format (text or json)")
	pf.BoolVarP(&fv.interactive, "interactive", "i", false,
		"Choose features in the terminal before extracting")

	// Analysis Configuration
	pf.IntVarP(&fv.blockSize, "block-size", "b", config.DefaultBlockSize,
		"Samples per analysis block (power of two)")
	pf.IntVarP(&fv.hopSize, "hop-size", "p", config.DefaultHopSize,
		"Samples between block starts")
	pf.IntVar(&fv.zeroPad, "zero-pad", config.DefaultZeroPad, "FFT length as a multiple of the block size")
	pf.StringVarP(&fv.window, "window", "w", config.DefaultWindow,
		"Window function (hann, hamming, blackman, nuttall, sine, none, ...)")
	pf.StringVar(&fv.windowing, "windowing", config.DefaultWindowing,
		"Where the window is applied (pre, post, none)")
	pf.Float64VarP(&fv.kappa, "kappa", "k", config.DefaultKappa, "Rolloff energy fraction, (0, 1)")
	pf.StringSliceVarP(&fv.features, "features", "f", config.DefaultFeatures,
		"Ordered feature names or ids. Use 'features' command to see the catalog.")

	// Input/Output Configuration
	pf.StringVar(&fv.inputFormat, "input-format", "", "Input format, detected from the extension when empty")
	pf.IntVar(&fv.chunkFrames, "chunk-frames", config.DefaultChunkFrames, "Frames read per pipeline call")
	pf.IntVar(&fv.rawRate, "raw-rate", 0, "Sample rate of headerless PCM input")
	pf.IntVar(&fv.rawChannels, "raw-channels", 0, "Channel count of headerless PCM input")
	pf.StringVar(&fv.rawEncoding, "raw-encoding", config.DefaultRawEncoding, "Headerless PCM encoding (s16le, f32le)")
	pf.StringVar(&fv.format, "format", config.DefaultOutputFormat, "Report format (tsv, csv, json, table)")

	// Transport Configuration
	pf.BoolVar(&fv.udp, "udp", false, "Publish each block over UDP")
	pf.StringVar(&fv.udpTarget, "udp-target", config.DefaultUDPTargetAddress, "UDP target address")
	pf.DurationVar(&fv.udpInterval, "udp-interval", config.DefaultUDPSendInterval,
		"Minimum interval between UDP packets, 0 sends every block")
	pf.BoolVar(&fv.ws, "ws", false, "Broadcast each block to WebSocket clients")
	pf.StringVar(&fv.wsAddress, "ws-address", config.DefaultWebSocketAddress, "WebSocket listen address")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return opts, nil
}

// load reads the configuration file and applies the flags set on cmd.
func load(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("verbose", func() {
		if fv.verbose {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}
	})
	set("log-format", func() { cfg.LogFormat = fv.logFormat })
	set("interactive", func() { cfg.Interactive = fv.interactive })
	set("block-size", func() { cfg.Analysis.BlockSize = fv.blockSize })
	set("hop-size", func() { cfg.Analysis.HopSize = fv.hopSize })
	set("zero-pad", func() { cfg.Analysis.ZeroPad = fv.zeroPad })
	set("window", func() { cfg.Analysis.Window = fv.window })
	set("windowing", func() { cfg.Analysis.Windowing = fv.windowing })
	set("kappa", func() { cfg.Analysis.Kappa = fv.kappa })
	set("features", func() { cfg.Analysis.Features = fv.features })
	set("input-format", func() { cfg.Input.Format = fv.inputFormat })
	set("chunk-frames", func() { cfg.Input.ChunkFrames = fv.chunkFrames })
	set("raw-rate", func() { cfg.Input.RawSampleRate = fv.rawRate })
	set("raw-channels", func() { cfg.Input.RawChannels = fv.rawChannels })
	set("raw-encoding", func() { cfg.Input.RawEncoding = fv.rawEncoding })
	set("format", func() { cfg.Output.Format = fv.format })
	set("udp", func() { cfg.Transport.UDPEnabled = fv.udp })
	set("udp-target", func() { cfg.Transport.UDPTargetAddress = fv.udpTarget })
	set("udp-interval", func() { cfg.Transport.UDPSendInterval = fv.udpInterval })
	set("ws", func() { cfg.Transport.WebSocketEnabled = fv.ws })
	set("ws-address", func() { cfg.Transport.WebSocketAddress = fv.wsAddress })

	// An empty selection falls back to the picker when someone can answer it.
	if len(cfg.Analysis.Features) == 0 && stdinIsTerminal() {
		cfg.Interactive = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setExtract(cfg *config.Config, args []string) error {
	cfg.Command = CommandExtract
	cfg.Input.Path = args[0]
	if len(args) > 1 {
		cfg.Output.Path = args[1]
	}
	if cfg.Input.Path == "" {
		return fmt.Errorf("input path is empty")
	}
	return nil
}
