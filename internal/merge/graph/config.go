package graph

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Supported input/output formats and compressions.
const (
	FormatTSV         = "tsv"
	CompressionTarGz  = "tar.gz"
	defaultGraphName  = "merged-kg"
	defaultOutputDir  = "data/merged"
	destinationSuffix = "-tsv"
)

// Config is a merge configuration file: which transformed sources make up
// the graph and where the merged graph is written.
type Config struct {
	Configuration Settings    `mapstructure:"configuration"`
	MergedGraph   MergedGraph `mapstructure:"merged_graph"`
}

// Settings holds run-wide options.
type Settings struct {
	OutputDirectory string `mapstructure:"output_directory"`
}

// MergedGraph describes the graph being assembled.
type MergedGraph struct {
	Name        string                 `mapstructure:"name"`
	Source      map[string]Source      `mapstructure:"source"`
	Destination map[string]Destination `mapstructure:"destination"`
}

// Source is one named input subgraph.
type Source struct {
	Name  string `mapstructure:"name"`
	Input Input  `mapstructure:"input"`
}

// Input lists the files of a source. Filename accepts a single path or a list.
type Input struct {
	Format   string   `mapstructure:"format"`
	Filename []string `mapstructure:"filename"`
}

// Destination is one output of the merged graph. Filename is a prefix:
// <filename>_nodes.tsv and <filename>_edges.tsv are written.
type Destination struct {
	Format      string `mapstructure:"format"`
	Compression string `mapstructure:"compression"`
	Filename    string `mapstructure:"filename"`
}

// LoadConfig reads and validates a merge configuration file.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading merge config %s: %w", path, err)
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := dec.Decode(k.Raw()); err != nil {
		return nil, fmt.Errorf("unable to decode merge config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid merge config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MergedGraph.Name == "" {
		c.MergedGraph.Name = defaultGraphName
	}
	if c.Configuration.OutputDirectory == "" {
		c.Configuration.OutputDirectory = defaultOutputDir
	}
	for name, src := range c.MergedGraph.Source {
		if src.Input.Format == "" {
			src.Input.Format = FormatTSV
		}
		if src.Name == "" {
			src.Name = name
		}
		c.MergedGraph.Source[name] = src
	}
	if len(c.MergedGraph.Destination) == 0 {
		c.MergedGraph.Destination = map[string]Destination{
			c.MergedGraph.Name + destinationSuffix: {Format: FormatTSV, Filename: c.MergedGraph.Name},
		}
	}
	for name, dst := range c.MergedGraph.Destination {
		if dst.Format == "" {
			dst.Format = FormatTSV
		}
		if dst.Filename == "" {
			dst.Filename = c.MergedGraph.Name
		}
		c.MergedGraph.Destination[name] = dst
	}
}

// Validate checks that every source and destination is usable.
func (c *Config) Validate() error {
	if len(c.MergedGraph.Source) == 0 {
		return fmt.Errorf("merged_graph.source must name at least one source")
	}
	for _, name := range c.SourceNames() {
		src := c.MergedGraph.Source[name]
		if src.Input.Format != FormatTSV {
			return fmt.Errorf("source %s: unsupported format %q", name, src.Input.Format)
		}
		if len(src.Input.Filename) == 0 {
			return fmt.Errorf("source %s: input.filename is required", name)
		}
	}
	for name, dst := range c.MergedGraph.Destination {
		if dst.Format != FormatTSV {
			return fmt.Errorf("destination %s: unsupported format %q", name, dst.Format)
		}
		if dst.Compression != "" && dst.Compression != CompressionTarGz {
			return fmt.Errorf("destination %s: unsupported compression %q", name, dst.Compression)
		}
	}
	return nil
}

// SourceNames returns the configured source names, sorted.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.MergedGraph.Source))
	for name := range c.MergedGraph.Source {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestinationPrefix resolves a destination's filename prefix against the
// configured output directory.
func (c *Config) DestinationPrefix(dst Destination) string {
	if filepath.IsAbs(dst.Filename) || filepath.Dir(dst.Filename) != "." {
		return dst.Filename
	}
	return filepath.Join(c.Configuration.OutputDirectory, dst.Filename)
}
