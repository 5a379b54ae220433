// SPDX-License-Identifier: MIT
//
// Package app runs extractions: it opens an audio file, streams it through an
// analysis pipeline in fixed-size reads and hands each finished block to a
// transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"featex/internal/analysis"
	"featex/internal/audio"
	"featex/internal/config"
	"featex/internal/feature"
	"featex/internal/log"
	"featex/internal/transport"

	"github.com/sirupsen/logrus"
)

// ErrNoFeatures is returned when the configuration selects nothing to extract.
var ErrNoFeatures = errors.New("app: no features selected")

// Result is the outcome of one extraction.
type Result struct {
	Input    string
	Spec     audio.Spec
	Features []feature.ID
	Names    []string
	Matrix   *analysis.Matrix // features x blocks, owned by the Result
	Frames   int64            // frames read from the input
	Blocks   int              // blocks stored in Matrix
	Elapsed  time.Duration
}

// Runner performs extractions with one configuration. It is not safe for
// concurrent use; create one per goroutine.
type Runner struct {
	cfg   *config.Config
	sink  transport.Transport
	entry *logrus.Entry
}

// NewRunner returns a Runner. sink may be nil.
func NewRunner(cfg *config.Config, sink transport.Transport) *Runner {
	return &Runner{
		cfg:   cfg,
		sink:  sink,
		entry: log.WithComponent("runner"),
	}
}

// ExtractFile opens path with the configured input settings and extracts
// its features.
func (r *Runner) ExtractFile(ctx context.Context, path string) (*Result, error) {
	return r.extractOpened(ctx, path, func() (audio.File, error) { return r.open(path) })
}

// extractOpened extracts from the file returned by open. open is called a
// second time when the input has to be counted before it can be extracted.
func (r *Runner) extractOpened(ctx context.Context, path string, open func() (audio.File, error)) (*Result, error) {
	file, err := open()
	if err != nil {
		return nil, err
	}

	length := file.Length()
	if length < 0 {
		// Streams without a length header are counted first so the result
		// matrix can be sized exactly.
		r.entry.Debugf("%s has no length header, counting frames", path)
		length, err = countFrames(ctx, file, r.cfg.Input.ChunkFrames)
		file.Close()
		if err != nil {
			return nil, err
		}
		if file, err = open(); err != nil {
			return nil, fmt.Errorf("%s: reopening after count: %w", path, err)
		}
	}
	defer file.Close()

	res, err := r.Extract(ctx, file, length)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Input = path
	return res, nil
}

func (r *Runner) open(path string) (audio.File, error) {
	format, err := r.cfg.InputFormat()
	if err != nil {
		return nil, err
	}
	raw, err := r.cfg.RawSpec()
	if err != nil {
		return nil, err
	}
	if format == audio.FormatUnknown {
		return audio.OpenFile(path, raw)
	}
	file, err := audio.NewFile(format, raw)
	if err != nil {
		return nil, err
	}
	if err := file.Open(path); err != nil {
		return nil, err
	}
	return file, nil
}

// Extract streams an opened file of length frames through a new pipeline.
// The file is read to its end but not closed.
func (r *Runner) Extract(ctx context.Context, file audio.File, length int64) (*Result, error) {
	start := time.Now()
	spec := file.Spec()

	ids, err := r.cfg.FeatureIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoFeatures
	}

	numBlocks := analysis.NumBlocks(int(length), r.cfg.Analysis.BlockSize, r.cfg.Analysis.HopSize)
	params, err := r.cfg.PipelineParams(spec.Channels, float64(spec.SampleRate), numBlocks)
	if err != nil {
		return nil, err
	}

	pl := analysis.NewPipeline()
	if err := pl.Init(params); err != nil {
		return nil, err
	}
	defer pl.Reset()

	entry := r.entry.WithFields(logrus.Fields{
		"spec":     spec.String(),
		"frames":   length,
		"blocks":   numBlocks,
		"features": feature.Names(ids),
	})
	entry.Info("extracting")

	names := feature.Names(ids)
	chunk := r.cfg.Input.ChunkFrames
	bufs := audio.MakeBuffers(spec.Channels, chunk)
	var frames int64

	// --- Read, Process, Publish ---
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := file.Read(bufs)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, readErr
		}
		if n > 0 {
			frames += int64(n)
			before := pl.BlocksProcessed()
			err := pl.Process(bufs, nil, n)
			r.publish(pl, names, before)
			if errors.Is(err, analysis.ErrResultFull) {
				entry.Warnf("input is longer than its header claims, ignoring blocks after %d", numBlocks)
				break
			}
			if err != nil {
				return nil, err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	blocks := pl.BlocksProcessed()
	res := &Result{
		Spec:     spec,
		Features: pl.Features(),
		Names:    names,
		Matrix:   pl.Result().Head(blocks),
		Frames:   frames,
		Blocks:   blocks,
		Elapsed:  time.Since(start),
	}
	if blocks < numBlocks {
		entry.Warnf("input ended after %d of %d blocks", blocks, numBlocks)
	}
	entry.WithField("elapsed", res.Elapsed).Debug("extraction finished")
	return res, nil
}

// publish sends one frame per block stored since before.
func (r *Runner) publish(pl *analysis.Pipeline, names []string, before int) {
	if r.sink == nil {
		return
	}
	m := pl.Result()
	p := pl.Params()
	for b := before; b < pl.BlocksProcessed(); b++ {
		frame := transport.FeatureFrame{
			Seq:     uint32(b),
			Block:   b,
			TimeSec: float64(b*p.HopSize) / p.SampleRate,
			Values:  m.Column(b, nil),
			Names:   names,
		}
		if err := r.sink.Send(frame); err != nil {
			r.entry.Warnf("publishing block %d: %v", b, err)
		}
	}
}

func countFrames(ctx context.Context, file audio.File, chunk int) (int64, error) {
	bufs := audio.MakeBuffers(file.Spec().Channels, chunk)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := file.Read(bufs)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
