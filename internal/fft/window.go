// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the analysis window.
type WindowFunc int

// Available window functions. None is a rectangular window.
const (
	None WindowFunc = iota
	Sine
	Hann
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Nuttall
	Lanczos
)

var windowNames = [...]string{
	None:            "none",
	Sine:            "sine",
	Hann:            "hann",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	BartlettHann:    "bartletthann",
	Nuttall:         "nuttall",
	Lanczos:         "lanczos",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// WindowNames lists every accepted window name in enum order.
func WindowNames() []string {
	return append([]string(nil), windowNames[:]...)
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "rect", "rectangular":
		return None, nil
	case "sine", "sin":
		return Sine, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "nuttall":
		return Nuttall, nil
	case "lanczos":
		return Lanczos, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// Windowing selects where the window is applied.
type Windowing int

const (
	NoWindow   Windowing = iota // never
	PreWindow                   // before the forward transform
	PostWindow                  // after the inverse transform
)

func (w Windowing) String() string {
	switch w {
	case NoWindow:
		return "none"
	case PreWindow:
		return "pre"
	case PostWindow:
		return "post"
	default:
		return fmt.Sprintf("Windowing(%d)", int(w))
	}
}

// ParseWindowing converts "none", "pre" or "post" to a Windowing mode.
func ParseWindowing(name string) (Windowing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off":
		return NoWindow, nil
	case "pre", "prewindow":
		return PreWindow, nil
	case "post", "postwindow":
		return PostWindow, nil
	default:
		return PreWindow, fmt.Errorf("unknown windowing mode: '%s'", name)
	}
}

// makeWindow returns the periodic form of the window, length n. gonum
// generates symmetric windows, so n+1 points are generated and the last one
// dropped.
func makeWindow(n int, w WindowFunc) ([]float64, error) {
	coeffs := make([]float64, n+1)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case None:
	case Sine:
		window.Sine(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	default:
		return nil, fmt.Errorf("fft: unknown window function %d: %w", int(w), ErrInvalidArgument)
	}
	return coeffs[:n], nil
}
