package identity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasTable is the versioned alias configuration resource.
//
//	version: 3
//	aliases:
//	  wound drainage: wound_drainage_erythema
//	  SSI_DRAINAGE: wound_drainage_erythema
type AliasTable struct {
	Version int               `yaml:"version" json:"version"`
	Aliases map[string]string `yaml:"aliases" json:"aliases"`
}

// LoadAliases reads an alias table from a YAML (or JSON) file.
func LoadAliases(path string) (AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AliasTable{}, fmt.Errorf("identity: read aliases %q: %w", path, err)
	}
	return ParseAliases(data)
}

// ParseAliases parses alias table bytes. JSON parses as YAML.
func ParseAliases(data []byte) (AliasTable, error) {
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return AliasTable{}, fmt.Errorf("identity: parse aliases: %w", err)
	}
	if t.Version < 0 {
		return AliasTable{}, fmt.Errorf("identity: alias table version %d is negative", t.Version)
	}
	for k, v := range t.Aliases {
		if k == "" || v == "" {
			return AliasTable{}, fmt.Errorf("identity: alias %q -> %q has an empty side", k, v)
		}
	}
	return t, nil
}
