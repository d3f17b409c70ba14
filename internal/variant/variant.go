// Package variant provides the built-in sheet layouts and their seed rows.
//
// Each variant is a YAML document embedded in the binary; nothing is read
// from disk at runtime, so every new sheet starts from the same rows.
package variant

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"quotesheet/internal/core"
)

// Default is the variant used when none is configured.
const Default = "shop"

//go:embed variants/*.yaml
var variantsFS embed.FS

// ErrUnknown is returned for a variant name with no embedded definition.
var ErrUnknown = errors.New("unknown sheet variant")

// Variant is one sheet layout: headings, visible columns and seed rows.
type Variant struct {
	Name     string       `yaml:"name"`
	Title    string       `yaml:"title"`
	Subtitle string       `yaml:"subtitle"`
	Currency string       `yaml:"currency"`
	Columns  core.Columns `yaml:"columns"`
	Rows     []core.Row   `yaml:"rows"`
}

// Seed returns a copy of the variant's initial rows.
func (v Variant) Seed() []core.Row {
	return append([]core.Row(nil), v.Rows...)
}

// Load returns the embedded variant called name.
func Load(name string) (Variant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = Default
	}
	data, err := variantsFS.ReadFile(path.Join("variants", name+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Variant{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknown, name, strings.Join(Names(), ", "))
		}
		return Variant{}, fmt.Errorf("read variant %s: %w", name, err)
	}
	v, err := Parse(data)
	if err != nil {
		return Variant{}, fmt.Errorf("parse variant %s: %w", name, err)
	}
	if v.Name != name {
		return Variant{}, fmt.Errorf("variant file %s declares name %q", name, v.Name)
	}
	return v, nil
}

// Parse decodes and checks a variant document.
func Parse(data []byte) (Variant, error) {
	var v Variant
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&v); err != nil {
		return Variant{}, fmt.Errorf("decode yaml: %w", err)
	}
	if strings.TrimSpace(v.Name) == "" {
		return Variant{}, errors.New("variant name is required")
	}
	if v.Currency == "" {
		v.Currency = "日元"
	}
	seen := make(map[int]struct{}, len(v.Rows))
	for i, r := range v.Rows {
		if r.ID != i+1 {
			// Appended ids are count+1, so seeds must be numbered 1..N.
			return Variant{}, fmt.Errorf("row %d has id %d, want %d", i, r.ID, i+1)
		}
		if _, dup := seen[r.ID]; dup {
			return Variant{}, fmt.Errorf("duplicate row id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := r.Validate(); err != nil {
			return Variant{}, fmt.Errorf("row %d: %w", r.ID, err)
		}
	}
	return v, nil
}

// Names lists the embedded variants in alphabetical order.
func Names() []string {
	entries, err := variantsFS.ReadDir("variants")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if n, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
