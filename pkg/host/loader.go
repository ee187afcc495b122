package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// loadWorkers bounds concurrent manifest parsing in LoadDir.
const loadWorkers = 4

// LoadFile reads and validates a single application manifest.
func LoadFile(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var app App
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &app, nil
}

// LoadDir reads every .yaml/.yml manifest in dir, in parallel, and
// validates the set as a whole. Results are ordered by path prefix,
// longest first, so routing can take the first match.
func LoadDir(ctx context.Context, dir string) ([]*App, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}

	apps := make([]*App, len(paths))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(loadWorkers)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			app, err := LoadFile(path)
			if err != nil {
				return err
			}
			mu.Lock()
			apps[i] = app
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := ValidateSet(apps); err != nil {
		return nil, err
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return len(apps[i].Path) > len(apps[j].Path)
	})
	return apps, nil
}

// ValidateSet checks cross-manifest rules: names and path prefixes must
// be unique across the host.
func ValidateSet(apps []*App) error {
	names := make(map[string]bool, len(apps))
	prefixes := make(map[string]bool, len(apps))
	for _, app := range apps {
		if names[app.Name] {
			return fmt.Errorf("duplicate app name %q", app.Name)
		}
		names[app.Name] = true

		if prefixes[app.Path] {
			return fmt.Errorf("duplicate app path %q", app.Path)
		}
		prefixes[app.Path] = true
	}
	return nil
}

// AppFor returns the app owning the request path: the longest prefix
// wins. The slice must already be sorted longest-prefix-first, as LoadDir
// returns it.
func AppFor(apps []*App, requestPath string) *App {
	for _, app := range apps {
		if app.Path == "/" {
			return app
		}
		if requestPath == app.Path || strings.HasPrefix(requestPath, app.Path+"/") {
			return app
		}
	}
	return nil
}
