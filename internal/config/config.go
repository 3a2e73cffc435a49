// Package config loads heap settings for heapctl from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Engine names accepted in configuration.
const (
	EngineFirstFit = "firstfit"
	EngineBump     = "bump"
)

var (
	// ErrInvalid indicates a configuration that fails validation.
	ErrInvalid = errors.New("config: invalid")
)

// Size is a byte count that accepts plain integers or humanized strings
// such as "64KiB" or "1 MB" in YAML.
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	n, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = Size(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(s)), nil
}

// ParseSize parses a byte count. Hex (0x...) is accepted alongside the
// humanize forms.
func ParseSize(v string) (uint64, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		var n uint64
		if _, err := fmt.Sscanf(v[2:], "%x", &n); err != nil {
			return 0, fmt.Errorf("parse size %q: %w", v, err)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", v, err)
	}
	return n, nil
}

// Heap describes one simulated heap.
type Heap struct {
	// Engine selects the block engine: "firstfit" or "bump".
	Engine string `yaml:"engine"`

	// Size is the initial heap size. Growth doubles it.
	Size Size `yaml:"size"`

	// Limit is how far above the heap base growth may reach. Zero disables growth.
	Limit Size `yaml:"limit"`

	// Ops is an optional path to an operation script.
	Ops string `yaml:"ops,omitempty"`
}

// Default returns the built-in settings.
func Default() Heap {
	return Heap{
		Engine: EngineFirstFit,
		Size:   4096,
		Limit:  1 << 20,
	}
}

// Load reads path and overlays it on Default.
func Load(path string) (Heap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Heap{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and overlays it on Default. Unknown fields are rejected.
func Parse(data []byte) (Heap, error) {
	h := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return Heap{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := h.Validate(); err != nil {
		return Heap{}, err
	}
	return h, nil
}

// Validate checks the settings are usable.
func (h Heap) Validate() error {
	switch h.Engine {
	case EngineFirstFit, EngineBump:
	default:
		return fmt.Errorf("%w: unknown engine %q (want %s or %s)", ErrInvalid, h.Engine, EngineFirstFit, EngineBump)
	}
	if h.Size < 16 {
		return fmt.Errorf("%w: size %d is below the 16-byte minimum", ErrInvalid, h.Size)
	}
	if h.Limit != 0 && h.Limit < h.Size {
		return fmt.Errorf("%w: limit %s is below size %s", ErrInvalid,
			humanize.IBytes(uint64(h.Limit)), humanize.IBytes(uint64(h.Size)))
	}
	return nil
}

// Span returns the number of bytes a heap with these settings may reach.
func (h Heap) Span() uint64 {
	return max(uint64(h.Limit), uint64(h.Size))
}
