// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPayload is returned by transports that only carry feature
// frames.
var ErrUnsupportedPayload = errors.New("transport: unsupported payload")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// FeatureFrame carries the features of one analysed block. Values are in the
// order of Names; Values must not be modified after Send.
type FeatureFrame struct {
	Seq     uint32    `json:"seq"`
	Block   int       `json:"block"`
	TimeSec float64   `json:"time"` // Block start in seconds.
	Values  []float32 `json:"values"`
	Names   []string  `json:"names,omitempty"`
}

// AsFrame accepts a FeatureFrame or a pointer to one.
func AsFrame(data any) (FeatureFrame, error) {
	switch v := data.(type) {
	case FeatureFrame:
		return v, nil
	case *FeatureFrame:
		if v == nil {
			return FeatureFrame{}, fmt.Errorf("nil frame: %w", ErrUnsupportedPayload)
		}
		return *v, nil
	default:
		return FeatureFrame{}, fmt.Errorf("%T: %w", data, ErrUnsupportedPayload)
	}
}

// Multi fans every payload out to each transport in order.
type Multi []Transport

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
