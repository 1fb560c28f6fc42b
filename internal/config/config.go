// Package config loads the per-component YAML configuration that drives an
// archiving run. The file is keyed by model-component name (e.g.
// "FV3Dataset"); each block names the output location, the forecast hours
// and file prefixes to read, and optional variable selections and chunking.
//
// Required keys missing from the file are a fatal load error. Optional keys
// fall back to component defaults with a logged warning, matching the
// behavior operators already rely on.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// WholeDim is the chunk-size sentinel meaning "one chunk spanning the whole
// dimension".
const WholeDim = -1

// FieldError is a fatal configuration error: a required key is absent.
type FieldError struct {
	Component string
	Key       string
	File      string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: could not find %s.%s in %s, but this is required", e.Component, e.Key, e.File)
}

// DimChunk pairs a dimension name with a chunk size.
type DimChunk struct {
	Dim  string
	Size int
}

// ChunkMap is an ordered dimension-name to chunk-size mapping. Order matters:
// it fixes the transpose order applied before chunking.
type ChunkMap []DimChunk

// UnmarshalYAML decodes a YAML mapping while preserving key order, which the
// stock map decoding would lose.
func (c *ChunkMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("config: chunks must be a mapping, got %s", node.Tag)
	}
	out := make(ChunkMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var dim string
		var size int
		if err := node.Content[i].Decode(&dim); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&size); err != nil {
			return fmt.Errorf("config: chunk size for %q: %w", dim, err)
		}
		out = append(out, DimChunk{Dim: dim, Size: size})
	}
	*c = out
	return nil
}

// Get returns the chunk size for a dimension.
func (c ChunkMap) Get(dim string) (int, bool) {
	for _, dc := range c {
		if dc.Dim == dim {
			return dc.Size, true
		}
	}
	return 0, false
}

// Dims returns the dimension names in mapping order.
func (c ChunkMap) Dims() []string {
	out := make([]string, len(c))
	for i, dc := range c {
		out[i] = dc.Dim
	}
	return out
}

// prefixes accepts either a single string or a list of strings.
type prefixes []string

func (p *prefixes) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*p = prefixes{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("config: file_prefixes must be a string or list of strings")
	}
}

// memSize accepts an integer byte count or a human-readable size ("12GB").
type memSize int64

func (m *memSize) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*m = memSize(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return fmt.Errorf("config: max_mem %q: %w", s, err)
	}
	*m = memSize(n)
	return nil
}

// block mirrors one component's YAML block. Pointer fields distinguish
// absent keys from zero values.
type block struct {
	PathOut       *string   `yaml:"path_out"`
	ForecastHours *[]int    `yaml:"forecast_hours"`
	FilePrefixes  *prefixes `yaml:"file_prefixes"`
	ChunksIn      *ChunkMap `yaml:"chunks_in"`
	ChunksOut     *ChunkMap `yaml:"chunks_out"`
	Coords        *[]string `yaml:"coords"`
	DataVars      *[]string `yaml:"data_vars"`
	CoordsPathOut *string   `yaml:"coords_path_out"`
	MaxMem        *memSize  `yaml:"max_mem"`
	TempStore     *string   `yaml:"temp_store"`
	Nested        *bool     `yaml:"nested"`
}

// Defaults supplies the component-specific fallbacks applied when optional
// keys are absent. Each model component variant provides its own.
type Defaults struct {
	ZarrName  string
	ChunksIn  ChunkMap
	ChunksOut ChunkMap
}

// Config is the immutable record driving one archiving run.
type Config struct {
	Component string
	File      string
	ZarrName  string

	PathOut       string
	ForecastHours []int
	FilePrefixes  []string

	ChunksIn      ChunkMap
	ChunksOut     ChunkMap
	Coords        []string
	DataVars      []string
	CoordsPathOut string
	MaxMem        int64
	TempStore     string
	Nested        bool
}

// Load reads the YAML file and builds the configuration for one component.
// Missing required keys return a *FieldError. Missing optional keys are
// warned about and defaulted.
func Load(file, component string, defaults Defaults, logger *slog.Logger) (*Config, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", file, err)
	}
	node, ok := doc[component]
	if !ok {
		return nil, fmt.Errorf("config: no %q block in %s", component, file)
	}

	var b block
	if err := node.Decode(&b); err != nil {
		return nil, fmt.Errorf("config: decode %s block in %s: %w", component, file, err)
	}

	cfg := &Config{
		Component: component,
		File:      file,
		ZarrName:  defaults.ZarrName,
		ChunksIn:  defaults.ChunksIn,
		ChunksOut: defaults.ChunksOut,
	}

	// required keys
	if b.PathOut == nil {
		return nil, &FieldError{Component: component, Key: "path_out", File: file}
	}
	cfg.PathOut = *b.PathOut
	if b.ForecastHours == nil {
		return nil, &FieldError{Component: component, Key: "forecast_hours", File: file}
	}
	cfg.ForecastHours = *b.ForecastHours
	for _, fhr := range cfg.ForecastHours {
		if fhr < 0 {
			return nil, fmt.Errorf("config: %s.forecast_hours contains negative hour %d in %s", component, fhr, file)
		}
	}
	if b.FilePrefixes == nil {
		return nil, &FieldError{Component: component, Key: "file_prefixes", File: file}
	}
	cfg.FilePrefixes = *b.FilePrefixes
	if len(cfg.FilePrefixes) == 0 {
		return nil, fmt.Errorf("config: %s.file_prefixes is empty in %s", component, file)
	}

	// optional keys
	warn := func(key, detail string) {
		logger.Warn("optional config key not found, using default",
			"component", component, "key", key, "file", file, "effect", detail)
	}
	if b.ChunksIn != nil {
		cfg.ChunksIn = *b.ChunksIn
	} else {
		warn("chunks_in", "component default chunking")
	}
	if b.ChunksOut != nil {
		cfg.ChunksOut = *b.ChunksOut
	} else {
		warn("chunks_out", "component default chunking")
	}
	if b.Coords != nil {
		cfg.Coords = *b.Coords
	} else {
		warn("coords", "will not store coordinate data")
	}
	if b.DataVars != nil {
		cfg.DataVars = *b.DataVars
	} else {
		warn("data_vars", "will store all data variables")
	}
	if b.CoordsPathOut != nil {
		cfg.CoordsPathOut = *b.CoordsPathOut
	}
	if b.MaxMem != nil {
		cfg.MaxMem = int64(*b.MaxMem)
	}
	if b.TempStore != nil {
		cfg.TempStore = *b.TempStore
	}
	if b.Nested != nil {
		cfg.Nested = *b.Nested
	}

	if cfg.MaxMem > 0 && cfg.TempStore == "" {
		return nil, fmt.Errorf("config: %s.max_mem is set but temp_store is not in %s", component, file)
	}

	return cfg, nil
}

// DataPath is where the evolving forecast variables are written.
func (c *Config) DataPath() string {
	return JoinPath(c.PathOut, "forecast", c.ZarrName)
}

// CoordsPath is where the one-time static coordinates are written.
func (c *Config) CoordsPath() string {
	if c.CoordsPathOut != "" {
		return JoinPath(c.CoordsPathOut, c.ZarrName)
	}
	return JoinPath(c.PathOut, "coordinates", c.ZarrName)
}

// JoinPath joins path elements, preserving URI schemes that filepath.Join
// would mangle.
func JoinPath(elem ...string) string {
	if len(elem) > 0 && strings.Contains(elem[0], "://") {
		parts := make([]string, len(elem))
		for i, e := range elem {
			parts[i] = strings.Trim(e, "/")
		}
		// keep the scheme's double slash intact
		parts[0] = strings.TrimSuffix(elem[0], "/")
		return strings.Join(parts, "/")
	}
	return filepath.Join(elem...)
}
