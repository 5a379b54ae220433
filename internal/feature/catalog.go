// SPDX-License-Identifier: MIT
package feature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidArgument = errors.New("feature: invalid argument")

// ID indexes the feature catalog. Spectral features come first; NumSpectral
// marks the boundary to the time-domain features.
type ID int

const (
	Centroid ID = iota
	Flux
	Rolloff
	ZeroCrossingRate

	NumSpectral = 3
	NumFeatures = 4
)

// Info describes one catalog entry.
type Info struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Unit        string `json:"unit"`
	Spectral    bool   `json:"spectral"`
	Description string `json:"description"`
}

var catalog = [NumFeatures]Info{
	{Centroid, "centroid", "Spectral Centroid", "Hz", true,
		"power-weighted mean frequency of the magnitude spectrum"},
	{Flux, "flux", "Spectral Flux", "", true,
		"normalised L2 distance to the previous block's spectrum"},
	{Rolloff, "rolloff", "Spectral Rolloff", "Hz", true,
		"frequency below which kappa of the spectral magnitude lies"},
	{ZeroCrossingRate, "zcr", "Zero Crossing Rate", "", false,
		"fraction of adjacent sample pairs that change sign"},
}

// Catalog returns every feature in id order.
func Catalog() []Info {
	return append([]Info(nil), catalog[:]...)
}

// Valid reports whether id is in the catalog.
func (id ID) Valid() bool { return id >= 0 && id < NumFeatures }

// IsSpectral reports whether the feature consumes a magnitude spectrum.
func (id ID) IsSpectral() bool { return id >= 0 && id < NumSpectral }

// Info returns the catalog entry; the zero Info for unknown ids.
func (id ID) Info() Info {
	if !id.Valid() {
		return Info{}
	}
	return catalog[id]
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("feature(%d)", int(id))
	}
	return catalog[id].Name
}

// MarshalText implements encoding.TextMarshaler so ids serialise by name.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("feature id %d: %w", int(id), ErrInvalidArgument)
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler via ParseID.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseID accepts a catalog name, a common alias, or a numeric id.
func ParseID(s string) (ID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "centroid", "spectral_centroid", "sc":
		return Centroid, nil
	case "flux", "spectral_flux", "sf":
		return Flux, nil
	case "rolloff", "roll-off", "spectral_rolloff", "sr":
		return Rolloff, nil
	case "zcr", "zero_crossing_rate", "zerocrossingrate", "zero-crossing-rate":
		return ZeroCrossingRate, nil
	}

	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("unknown feature %q: %w", s, ErrInvalidArgument)
	}
	if id := ID(n); id.Valid() {
		return id, nil
	}
	return 0, fmt.Errorf("feature id %d outside [0, %d): %w", n, NumFeatures, ErrInvalidArgument)
}

// ParseList parses names or ids, each element optionally comma separated.
// Order and duplicates are preserved.
func ParseList(items []string) ([]ID, error) {
	var ids []ID
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := ParseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Validate checks that every id is in the catalog.
func Validate(ids []ID) error {
	for i, id := range ids {
		if !id.Valid() {
			return fmt.Errorf("feature %d: id %d outside [0, %d): %w", i, int(id), NumFeatures, ErrInvalidArgument)
		}
	}
	return nil
}

// Names maps ids to catalog names.
func Names(ids []ID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return names
}

// AnySpectral reports whether any id needs the magnitude spectrum.
func AnySpectral(ids []ID) bool {
	for _, id := range ids {
		if id.IsSpectral() {
			return true
		}
	}
	return false
}
