package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/persona-transformer/internal/types"
	"gopkg.in/yaml.v3"
)

// ParseTemplateYAML decodes and validates a single template definition
func ParseTemplateYAML(data []byte) (*types.Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("template: definition payload is empty")
	}
	var t types.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("template: decode definition: %w", err)
	}
	t.Format = types.OutputFormat(strings.ToLower(strings.TrimSpace(string(t.Format))))
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadDir reads every *.yaml / *.yml file in dir. A missing directory yields no templates.
func LoadDir(dir string) ([]*types.Template, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("template: read %s: %w", trimmed, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(trimmed, entry.Name()))
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	out := make([]*types.Template, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
		t, err := ParseTemplateYAML(data)
		if err != nil {
			return nil, fmt.Errorf("template: %s: %w", path, err)
		}
		if existing, ok := seen[t.ID]; ok {
			return nil, fmt.Errorf("template: duplicate id %s (%s and %s)", t.ID, existing, path)
		}
		seen[t.ID] = path
		out = append(out, t)
	}
	return out, nil
}

// LoadDir merges templates from dir into the registry. A file reusing a
// default ID replaces that default as a new version.
func (r *Registry) LoadDir(ctx context.Context, dir string) (int, error) {
	loaded, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, t := range loaded {
		if _, err := r.Put(ctx, t); err != nil {
			return 0, err
		}
	}
	return len(loaded), nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
