package pin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Index lists the versions available for a package.
type Index interface {
	// Source identifies the index (a file path, URL or registry name).
	Source() string

	// Versions returns every version the index lists for name. An unknown
	// package yields an empty slice, not an error.
	Versions(ctx context.Context, name string) ([]string, error)
}

// StaticIndex is an index held in memory, typically loaded from YAML:
//
//	source: https://rubygems.org
//	packages:
//	  oj: ["3.14.0", "3.15.0"]
type StaticIndex struct {
	SourceName string              `yaml:"source"`
	Packages   map[string][]string `yaml:"packages"`
}

// NewStaticIndex creates an index from a package→versions map.
func NewStaticIndex(source string, packages map[string][]string) *StaticIndex {
	if packages == nil {
		packages = map[string][]string{}
	}
	return &StaticIndex{SourceName: source, Packages: packages}
}

// LoadStaticIndex reads a YAML index file.
func LoadStaticIndex(path string) (*StaticIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var idx StaticIndex
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&idx); err != nil {
		return nil, fmt.Errorf("failed to parse index YAML: %w", err)
	}
	if idx.SourceName == "" {
		idx.SourceName = path
	}
	if idx.Packages == nil {
		idx.Packages = map[string][]string{}
	}
	return &idx, nil
}

// Source implements Index.
func (i *StaticIndex) Source() string {
	return i.SourceName
}

// Versions implements Index.
func (i *StaticIndex) Versions(_ context.Context, name string) ([]string, error) {
	versions := i.Packages[name]
	out := make([]string, len(versions))
	copy(out, versions)
	return out, nil
}

// OpenIndex returns a ProxyIndex for http(s) locations and a StaticIndex
// loaded from disk otherwise.
func OpenIndex(location string) (Index, error) {
	if location == "" {
		return nil, fmt.Errorf("index location is empty")
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewProxyIndex(location, nil), nil
	}
	return LoadStaticIndex(location)
}
