// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"featex/cmd"
	"featex/internal/app"
	"featex/internal/config"
	"featex/internal/feature"
	"featex/internal/log"
	"featex/internal/report"
	"featex/internal/server"
	"featex/internal/transport"
	"featex/internal/transport/udp"
	"featex/internal/tui"
	"featex/pkg/build"
)

// main is the entry point for the feature extractor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse the configuration file, environment and command line
//   - Configure logging
//   - Execute one-off commands (features, tone, version)
//
// 2. Processing Phase:
//   - Pick features interactively if requested
//   - Open the transports that receive each finished block
//   - Stream the input through the pipeline, or serve the HTTP API
//
// 3. Shutdown Phase:
//   - Handle termination signals
//   - Write the feature matrix report
//   - Close transports and listeners
func main() {
	// ==================== STARTUP PHASE ====================

	// Development builds run without linker flags and keep the defaults.
	buildErr := build.Initialize()

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", build.GetBuildFlags().Name, err)
		os.Exit(2)
	}
	configureLogging(opts.Config)
	if buildErr != nil {
		log.Debugf("build information incomplete: %v", buildErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, opts); err != nil {
		if errors.Is(err, tui.ErrCancelled) {
			return
		}
		stop()
		log.Fatalf("%v", err)
	}
}

func configureLogging(cfg *config.Config) {
	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		level = log.LevelInfo
	}
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)
	log.SetJSON(cfg.LogFormat == "json")
}

// execute dispatches the parsed command. Help and --version leave the
// command empty.
func execute(ctx context.Context, opts *cmd.Options) error {
	switch opts.Command {
	case "":
		return nil
	case cmd.CommandVersion:
		fmt.Println(build.VersionString())
		return nil
	case cmd.CommandFeatures:
		return listFeatures(os.Stdout)
	case cmd.CommandTone:
		frames, err := app.WriteTone(opts.Output.Path, opts.Tone)
		if err != nil {
			return err
		}
		log.Infof("wrote %d frames to %s", frames, opts.Output.Path)
		return nil
	case cmd.CommandServe:
		return serve(ctx, opts.Config)
	case cmd.CommandExtract:
		return extract(ctx, opts.Config)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

func listFeatures(w io.Writer) error {
	for _, info := range feature.Catalog() {
		unit := info.Unit
		if unit == "" {
			unit = "-"
		}
		if _, err := fmt.Fprintf(w, "%d\t%-9s %-4s %s\n", int(info.ID), info.Name, unit, info.Description); err != nil {
			return err
		}
	}
	return nil
}

// ==================== PROCESSING PHASE ====================

func extract(ctx context.Context, cfg *config.Config) error {
	if cfg.Interactive {
		initial, err := cfg.FeatureIDs()
		if err != nil {
			return err
		}
		picked, err := tui.PickFeatures(initial)
		if err != nil {
			return err
		}
		cfg.Analysis.Features = feature.Names(picked)
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	sink, err := openTransports(cfg)
	if err != nil {
		return err
	}
	res, err := app.NewRunner(cfg, sink).ExtractFile(ctx, cfg.Input.Path)

	// ==================== SHUTDOWN PHASE ====================

	if cerr := sink.Close(); cerr != nil {
		log.Warnf("closing transports: %v", cerr)
	}
	if err != nil {
		return err
	}
	if !report.IsFinite(res.Matrix) {
		log.Warnf("feature matrix contains non-finite values")
	}

	var out io.Writer = os.Stdout
	if cfg.Output.Path != "" {
		f, err := os.Create(cfg.Output.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := report.Write(out, res.Matrix, res.Names, format); err != nil {
		return err
	}
	if f, ok := out.(*os.File); ok && f != os.Stdout {
		return f.Close()
	}
	return nil
}

// openTransports builds the sink every finished block is published to.
func openTransports(cfg *config.Config) (transport.Multi, error) {
	sinks := transport.Multi{transport.NewLoggingTransport()}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		pub, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return nil, err
		}
		pub.Start()
		sinks = append(sinks, pub)
	}

	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		ws.Start()
		sinks = append(sinks, ws)
	}
	return sinks, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	var ws *transport.WebSocketTransport
	if cfg.Transport.WebSocketEnabled {
		ws = transport.NewWebSocketTransport(cfg.Server.Address)
	}
	srv := server.New(cfg, ws)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Address) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// ==================== SHUTDOWN PHASE ====================

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if ws != nil {
		err = errors.Join(err, ws.Close())
	}
	return err
}
