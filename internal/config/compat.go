// SPDX-License-Identifier: MIT
package config

import (
	"featex/internal/analysis"
	"featex/internal/audio"
	"featex/internal/feature"
	"featex/internal/fft"
)

// WindowFunc returns the parsed analysis window.
func (c *Config) WindowFunc() (fft.WindowFunc, error) {
	return fft.ParseWindowFunc(c.Analysis.Window)
}

// Windowing returns the parsed windowing mode.
func (c *Config) Windowing() (fft.Windowing, error) {
	return fft.ParseWindowing(c.Analysis.Windowing)
}

// FeatureIDs returns the ordered feature selection.
func (c *Config) FeatureIDs() ([]feature.ID, error) {
	return feature.ParseList(c.Analysis.Features)
}

// InputFormat returns the configured input format, FormatUnknown meaning
// detect from the extension.
func (c *Config) InputFormat() (audio.Format, error) {
	if c.Input.Format == "" {
		return audio.FormatUnknown, nil
	}
	return audio.ParseFormat(c.Input.Format)
}

// RawSpec returns the stream description used for headerless input.
func (c *Config) RawSpec() (audio.Spec, error) {
	enc, err := audio.ParseEncoding(c.Input.RawEncoding)
	if err != nil {
		return audio.Spec{}, err
	}
	return audio.Spec{
		Format:     audio.FormatRaw,
		SampleRate: c.Input.RawSampleRate,
		Channels:   c.Input.RawChannels,
		Encoding:   enc,
	}, nil
}

// PipelineParams combines the analysis section with the properties of the
// opened input.
func (c *Config) PipelineParams(channels int, sampleRate float64, numBlocks int) (analysis.Params, error) {
	win, err := c.WindowFunc()
	if err != nil {
		return analysis.Params{}, err
	}
	mode, err := c.Windowing()
	if err != nil {
		return analysis.Params{}, err
	}
	ids, err := c.FeatureIDs()
	if err != nil {
		return analysis.Params{}, err
	}
	p := analysis.Params{
		Channels:   channels,
		SampleRate: sampleRate,
		BlockSize:  c.Analysis.BlockSize,
		HopSize:    c.Analysis.HopSize,
		ZeroPad:    c.Analysis.ZeroPad,
		Window:     win,
		Windowing:  mode,
		Kappa:      float32(c.Analysis.Kappa),
		Features:   ids,
		NumBlocks:  numBlocks,
	}
	return p, p.Validate()
}
