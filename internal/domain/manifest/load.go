package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// document is the on-disk form of a manifest override.
type document struct {
	Base   []string `json:"base"   yaml:"base"`
	Darwin []string `json:"darwin" yaml:"darwin"`
	Linux  []string `json:"linux"  yaml:"linux"`
}

// errUnknownFormat is returned for override files that are neither YAML nor JSON.
var errUnknownFormat = errors.New("unknown manifest format")

// Load reads a manifest override from a YAML (.yaml, .yml) or JSON with comments (.json, .jsonc) file.
func Load(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var doc document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(contents, &doc)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(contents), &doc)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	m := new(Manifest)

	for _, list := range []struct {
		refs []string
		dst  *[]Declaration
	}{
		{doc.Base, &m.Base},
		{doc.Darwin, &m.Darwin},
		{doc.Linux, &m.Linux},
	} {
		for _, ref := range list.refs {
			var d Declaration

			if d, err = ParseReference(ref); err != nil {
				return nil, err
			}

			*list.dst = append(*list.dst, d)
		}
	}

	if err = m.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest %s: %w", path, err)
	}

	return m, nil
}

// LoadOrDefault returns the override at path, or Default when path is empty.
func LoadOrDefault(path string) (*Manifest, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}
