package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a registry file (YAML or JSON) and builds a Registry.
func LoadFromPath(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %q: %w", path, err)
	}
	r, err := Load(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return r, nil
}

// Load parses registry bytes. ext is a format hint (".json", ".yaml",
// ".yml"); when empty the format is detected from the first
// non-whitespace character. A bare list of entries is accepted as well as
// the {domain, metric, signals} layout.
func Load(data []byte, ext string) (*Registry, error) {
	f, err := parseFile(data, ext)
	if err != nil {
		return nil, err
	}
	return FromFile(f)
}

func parseFile(data []byte, ext string) (File, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	trimmed := strings.TrimSpace(string(data))
	if ext == "" {
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}

	var f File
	switch ext {
	case ".json":
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(data, &f.Signals); err != nil {
				return File{}, fmt.Errorf("parse registry json: %w", err)
			}
			return f, nil
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("parse registry json: %w", err)
		}
	case ".yaml":
		if strings.HasPrefix(trimmed, "-") {
			if err := yaml.Unmarshal(data, &f.Signals); err != nil {
				return File{}, fmt.Errorf("parse registry yaml: %w", err)
			}
			return f, nil
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("parse registry yaml: %w", err)
		}
	default:
		return File{}, fmt.Errorf("unsupported registry format %q", ext)
	}
	return f, nil
}
