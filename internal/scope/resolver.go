// Package scope maps a working directory to the set of active memory
// scopes. The global scope is always active; a project scope is added
// when a project marker directory is found upward from the working
// directory.
package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMarker is the directory name that marks a project root.
const DefaultMarker = ".recalld"

// ErrEmptyDir indicates an empty working directory argument.
var ErrEmptyDir = errors.New("working directory cannot be empty")

// Resolution describes the scopes active for a working directory.
type Resolution struct {
	// ProjectRoot is the directory containing the marker, empty when no
	// project was found.
	ProjectRoot string

	// HasProject reports whether a project scope is active.
	HasProject bool
}

// Resolver locates project roots by walking parent directories.
type Resolver struct {
	marker string
}

// NewResolver creates a resolver for the given marker directory name.
// An empty marker falls back to DefaultMarker.
func NewResolver(marker string) *Resolver {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Resolver{marker: marker}
}

// Marker returns the marker directory name.
func (r *Resolver) Marker() string {
	return r.marker
}

// Resolve walks from dir upward until it finds the marker directory or
// reaches the filesystem root. The walk is bounded: it stops as soon as
// a parent step makes no progress.
func (r *Resolver) Resolve(dir string) (Resolution, error) {
	if dir == "" {
		return Resolution{}, ErrEmptyDir
	}

	current, err := filepath.Abs(dir)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolving working directory: %w", err)
	}

	for {
		marker := filepath.Join(current, r.marker)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return Resolution{ProjectRoot: current, HasProject: true}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Filesystem root reached without a marker.
			return Resolution{}, nil
		}
		current = parent
	}
}
