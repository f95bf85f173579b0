// Package download fetches the raw data sources listed in a download file
// into the raw data directory.
package download

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// sourceValidate checks download entries. Field errors are reported under
// their YAML names.
var sourceValidate *validator.Validate

func init() {
	sourceValidate = validator.New(validator.WithRequiredStructEnabled())
	sourceValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Source is one entry of the download file.
type Source struct {
	URL         string `yaml:"url" validate:"required,url"`
	LocalName   string `yaml:"local_name" validate:"omitempty,excludesall=/\\"`
	Description string `yaml:"description,omitempty"`
}

// Target returns the file name the source is saved under: LocalName, or the
// last element of the URL path.
func (s Source) Target() string {
	if s.LocalName != "" {
		return s.LocalName
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// Validate checks that the entry has a usable URL and a plain local name.
func (s Source) Validate() error {
	err := sourceValidate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "url":
		return fmt.Errorf("%s %q is not a valid URL", fe.Field(), fe.Value())
	case "excludesall":
		return fmt.Errorf("%s %q must be a plain file name", fe.Field(), fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// LoadSources reads a download file: a YAML list of sources.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied download file
	if err != nil {
		return nil, fmt.Errorf("error reading download file %s: %w", path, err)
	}
	sources, err := ParseSources(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sources, nil
}

// ParseSources decodes and validates a download file's contents.
func ParseSources(data []byte) ([]Source, error) {
	var sources []Source
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("invalid download file: %w", err)
	}

	seen := make(map[string]int, len(sources))
	for i, s := range sources {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		target := s.Target()
		if target == "" {
			return nil, fmt.Errorf("entry %d: cannot derive a local name from %q, set local_name", i+1, s.URL)
		}
		if strings.ContainsAny(target, `/\`) || target == ".." {
			return nil, fmt.Errorf("entry %d: local_name %q must be a plain file name", i+1, target)
		}
		if prev, ok := seen[target]; ok {
			return nil, fmt.Errorf("entry %d: local_name %q already used by entry %d", i+1, target, prev)
		}
		seen[target] = i + 1
	}
	return sources, nil
}
