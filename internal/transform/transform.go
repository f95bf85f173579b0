// Package transform turns raw downloads into per-source KGX node/edge
// tables. Each source registers a Transform under its name; Run dispatches
// to the requested sources.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Transform converts one source's raw files under inputDir into tables under
// outputDir/<name>/.
type Transform interface {
	Name() string
	Run(ctx context.Context, inputDir, outputDir string) error
}

// InputLister is implemented by transforms that can name the raw files they
// read, relative to the input directory.
type InputLister interface {
	Inputs() []string
}

// Factory builds a transform. The logger is never nil.
type Factory func(logger *slog.Logger) Transform

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a transform factory under name. Sources call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names returns the registered source names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sources builds every registered transform in name order.
func Sources(logger *slog.Logger) []Transform {
	logger = orDiscard(logger)
	names := Names()
	out := make([]Transform, 0, len(names))
	for _, name := range names {
		f, _ := Lookup(name)
		out = append(out, f(logger))
	}
	return out
}

// UnknownSourceError is returned when a transform is requested by a name
// nothing registered.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q\nAvailable sources: %v", e.Name, e.Available)
}

// Run transforms the named sources, or every registered source when names is
// empty. All names are resolved before any transform starts.
func Run(ctx context.Context, logger *slog.Logger, inputDir, outputDir string, names []string) ([]string, error) {
	logger = orDiscard(logger)
	if len(names) == 0 {
		names = Names()
	}

	transforms := make([]Transform, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		f, ok := Lookup(name)
		if !ok {
			return nil, &UnknownSourceError{Name: name, Available: Names()}
		}
		transforms = append(transforms, f(logger))
	}

	ran := make([]string, 0, len(transforms))
	for _, t := range transforms {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		logger.Info("transforming source", slog.String("source", t.Name()), slog.String("input", inputDir))
		if err := t.Run(ctx, inputDir, outputDir); err != nil {
			return ran, fmt.Errorf("transform %s: %w", t.Name(), err)
		}
		ran = append(ran, t.Name())
	}
	return ran, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
