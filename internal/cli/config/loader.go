package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: KGFORGE_CATMERGE__MIN_ROWS sets catmerge.min_rows.
const EnvPrefix = "KGFORGE_"

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var configFileNames = []string{"kgforge.yaml", "kgforge.yml"}

// flagKeys maps flag names whose config key differs from their snake_case form.
var flagKeys = map[string]string{
	"state":  "state_path",
	"format": "output",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a kgforge config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Loaded is the result of LoadConfig.
type Loaded struct {
	Config *Config
	// File is the config file that was read, empty when none was found.
	File string
}

// LoadConfig loads configuration from defaults, the config file, environment
// variables and explicitly set flags, in increasing order of precedence.
//
// The project root is the directory of the config file, or the working
// directory when there is none. data_dir and state_path resolve against the
// project root; raw_dir, transformed_dir and merged_dir resolve against
// data_dir. Paths given as flags resolve against the working directory.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Loaded, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(confmap.Provider(map[string]any{
		"data_dir":                 DefaultDataDir,
		"raw_dir":                  DefaultRawDir,
		"transformed_dir":          DefaultTransformedDir,
		"merged_dir":               DefaultMergedDir,
		"state_path":               DefaultStateFile,
		"verbose":                  false,
		"log_format":               DefaultLogFormat,
		"output":                   DefaultOutput,
		"catmerge.name":            defaults.Catmerge.Name,
		"catmerge.min_rows":        defaults.Catmerge.MinRows,
		"catmerge.threads":         0,
		"download.snippet_bytes":   defaults.Download.SnippetBytes,
		"download.retries":         defaults.Download.Retries,
		"download.timeout":         defaults.Download.Timeout.String(),
		"download.gcs_credentials": "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	used := cfgFile
	if used == "" {
		used = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
		if abs, err := filepath.Abs(used); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	flagPaths := map[string]bool{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			flagPaths[key] = true
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ProjectRoot = projectRoot
	base := func(key string) string {
		if flagPaths[key] {
			return cwd
		}
		return projectRoot
	}
	cfg.DataDir = resolvePathRelativeTo(cfg.DataDir, base("data_dir"))
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, base("state_path"))
	cfg.RawDir = resolvePathRelativeTo(cfg.RawDir, cfg.DataDir)
	cfg.TransformedDir = resolvePathRelativeTo(cfg.TransformedDir, cfg.DataDir)
	cfg.MergedDir = resolvePathRelativeTo(cfg.MergedDir, cfg.DataDir)
	cfg.Download.GCSCredentials = resolvePathRelativeTo(os.ExpandEnv(cfg.Download.GCSCredentials), projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Loaded{Config: &cfg, File: used}, nil
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

type configKey struct{}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored by WithConfig, or Defaults.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if c, ok := ctx.Value(configKey{}).(*Config); ok {
			return c
		}
	}
	return Defaults()
}
