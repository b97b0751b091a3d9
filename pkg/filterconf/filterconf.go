package filterconf

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// Report types the log-analysis worker processes.
const (
	TypeBuild = "build"
	TypeTest  = "test"
)

//go:embed template.yaml
var template []byte

// PathList accepts either a single glob string or a list of them, as
// the worker's configuration format allows both.
type PathList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PathList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*p = PathList{single}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*p = PathList(list)
	return nil
}

// Entry selects one report type for an origin, optionally restricted
// to test paths matching the include globs.
type Entry struct {
	Type        string   `yaml:"type"`
	IncludePath PathList `yaml:"include_path,omitempty"`
}

// Config maps submission origin to the entries the worker should
// process for it.
type Config map[string][]Entry

// Seed writes the embedded template to dst unless a file is already
// there, and reports whether it seeded. The file is user-owned after
// the first run and never overwritten.
func Seed(dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, template, 0644); err != nil {
		return false, fmt.Errorf("failed to seed %s: %w", dst, err)
	}
	return true, nil
}

// Load parses a filter configuration file.
func Load(file string) (Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter config %s: %w", file, err)
	}
	return cfg, nil
}

// Validate checks every entry names a known report type.
func (c Config) Validate() error {
	for origin, entries := range c {
		if len(entries) == 0 {
			return fmt.Errorf("origin %q has no entries", origin)
		}
		for _, e := range entries {
			if e.Type != TypeBuild && e.Type != TypeTest {
				return fmt.Errorf("origin %q: unknown type %q (expected %q or %q)",
					origin, e.Type, TypeBuild, TypeTest)
			}
		}
	}
	return nil
}

// Origins returns the configured submission origins, sorted.
func (c Config) Origins() []string {
	origins := make([]string, 0, len(c))
	for origin := range c {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

// Processable reports whether a node from origin with the given report
// type and test path should be processed. Entries without include
// globs accept every path.
func (c Config) Processable(origin, reportType, nodePath string) bool {
	entries, ok := c[origin]
	if !ok {
		return false
	}
	for _, e := range entries {
		if e.Type != reportType {
			continue
		}
		if len(e.IncludePath) == 0 {
			return true
		}
		for _, glob := range e.IncludePath {
			if matched, err := path.Match(glob, nodePath); err == nil && matched {
				return true
			}
		}
		return false
	}
	return false
}
