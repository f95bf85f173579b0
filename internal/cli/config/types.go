// Package config provides configuration management for the kgforge CLI.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	DataDir        string         `koanf:"data_dir"`
	RawDir         string         `koanf:"raw_dir"`
	TransformedDir string         `koanf:"transformed_dir"`
	MergedDir      string         `koanf:"merged_dir"`
	StatePath      string         `koanf:"state_path"`
	Verbose        bool           `koanf:"verbose"`
	LogFormat      string         `koanf:"log_format"`
	OutputFormat   string         `koanf:"output"`
	Catmerge       CatmergeConfig `koanf:"catmerge"`
	Download       DownloadConfig `koanf:"download"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// CatmergeConfig configures the concat merge.
type CatmergeConfig struct {
	Name    string `koanf:"name"`
	MinRows int    `koanf:"min_rows"`
	Threads int    `koanf:"threads"`
}

// DownloadConfig configures the downloader.
type DownloadConfig struct {
	SnippetBytes   int64         `koanf:"snippet_bytes"`
	Retries        uint64        `koanf:"retries"`
	Timeout        time.Duration `koanf:"timeout"`
	GCSCredentials string        `koanf:"gcs_credentials"`
}

// Default configuration values.
const (
	DefaultDataDir        = "data"
	DefaultRawDir         = "raw"
	DefaultTransformedDir = "transformed"
	DefaultMergedDir      = "merged"
	DefaultStateFile      = ".kgforge/state.db"
	DefaultLogFormat      = "auto" // TTY=text, otherwise JSON
	DefaultOutput         = "auto" // TTY=text, otherwise markdown
	DefaultCatmergeName   = "merged-kg"
	DefaultMinRows        = 2
	DefaultSnippetBytes   = 5 * 1024
	DefaultRetries        = 3
	DefaultTimeout        = 10 * time.Minute
)

// Log formats accepted by log_format.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults returns a Config populated with default values and paths relative
// to the current directory.
func Defaults() *Config {
	return &Config{
		DataDir:        DefaultDataDir,
		RawDir:         DefaultDataDir + "/" + DefaultRawDir,
		TransformedDir: DefaultDataDir + "/" + DefaultTransformedDir,
		MergedDir:      DefaultDataDir + "/" + DefaultMergedDir,
		StatePath:      DefaultStateFile,
		LogFormat:      DefaultLogFormat,
		OutputFormat:   DefaultOutput,
		Catmerge: CatmergeConfig{
			Name:    DefaultCatmergeName,
			MinRows: DefaultMinRows,
		},
		Download: DownloadConfig{
			SnippetBytes: DefaultSnippetBytes,
			Retries:      DefaultRetries,
			Timeout:      DefaultTimeout,
		},
	}
}
