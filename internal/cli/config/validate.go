package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be one of auto, text, json; got %q", c.LogFormat))
	}
	switch c.OutputFormat {
	case "auto", "text", "markdown", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be one of auto, text, markdown, json; got %q", c.OutputFormat))
	}
	if c.Catmerge.Name == "" {
		errs = append(errs, fmt.Errorf("catmerge.name is required"))
	}
	if c.Catmerge.MinRows < 1 {
		errs = append(errs, fmt.Errorf("catmerge.min_rows must be at least 1, got %d", c.Catmerge.MinRows))
	}
	if c.Catmerge.Threads < 0 {
		errs = append(errs, fmt.Errorf("catmerge.threads must not be negative"))
	}
	if c.Download.SnippetBytes < 1 {
		errs = append(errs, fmt.Errorf("download.snippet_bytes must be positive"))
	}
	if c.Download.Timeout < 0 {
		errs = append(errs, fmt.Errorf("download.timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateDirectory checks that a directory a command reads from exists.
func ValidateDirectory(kind, dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s directory does not exist: %s", kind, dir)
	}
	if err != nil {
		return fmt.Errorf("cannot access %s directory %s: %w", kind, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path is not a directory: %s", kind, dir)
	}
	return nil
}

// ValidateFile checks that an input file exists.
func ValidateFile(kind, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s file does not exist: %s", kind, path)
	}
	if err != nil {
		return fmt.Errorf("cannot access %s file %s: %w", kind, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path is a directory: %s", kind, path)
	}
	return nil
}
