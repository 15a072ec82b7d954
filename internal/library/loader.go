package library

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed data/library.json
var bundled []byte

// BundledSource names the manifest shipped inside the binary.
const BundledSource = "bundled:library.json"

// Loader reads raw manifest bytes from one source.
type Loader interface {
	// Source is the stable name an ImportRecord is keyed by.
	Source() string
	Load(ctx context.Context) ([]byte, error)
}

// Bundled returns the loader for the manifest compiled into the binary.
func Bundled() Loader { return Static(BundledSource, bundled) }

// Static returns a loader serving fixed bytes under source.
func Static(source string, data []byte) Loader {
	return staticLoader{source: source, data: data}
}

type staticLoader struct {
	source string
	data   []byte
}

func (l staticLoader) Source() string { return l.source }

func (l staticLoader) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.data, nil
}

// File returns a loader reading the manifest at path. The source name is the
// absolute path.
func File(path string) Loader {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fileLoader{path: path}
}

type fileLoader struct{ path string }

func (l fileLoader) Source() string { return "file:" + l.path }

func (l fileLoader) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", l.path, err)
	}
	return b, nil
}

// FromConfig maps the library.source setting to a loader.
func FromConfig(source string) Loader {
	if source == "" || source == "bundled" {
		return Bundled()
	}
	return File(source)
}
