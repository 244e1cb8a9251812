// Package hclspec decodes a package's BUILD.hcl manifest: declared targets,
// their source files, and their dependency labels — the HCL half of the
// Package family's config ingestion.
package hclspec

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Target is one `target` block in a package manifest.
type Target struct {
	Kind string `hcl:"kind,label"`
	Name string `hcl:"name,label"`
	Srcs []string `hcl:"srcs,optional"`
	Deps []string `hcl:"deps,optional"`
	Visibility []string `hcl:"visibility,optional"`
	Data hcl.Expression `hcl:"data,optional"`
}

// DataFields evaluates the target's freeform `data = { ... }` attribute,
// if present, into a flat string map. Values that aren't convertible to
// string report an error naming the offending key.
func (t *Target) DataFields() (map[string]string, error) {
	if t.Data == nil {
		return nil, nil
	}
	val, diags := t.Data.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclspec: evaluating data: %s", diags.Error())
	}
	if val.IsNull() || !val.CanIterateElements() {
		return nil, nil
	}

	out := make(map[string]string, val.LengthInt())
	it := val.ElementIterator()
	for it.Next() {
		k, v := it.Element()
		sv, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("hclspec: data.%s: %w", k.AsString(), err)
		}
		out[k.AsString()] = sv.AsString()
	}
	return out, nil
}

// Manifest is the top-level structure of one BUILD.hcl file.
type Manifest struct {
	Targets []*Target `hcl:"target,block"`
	Body hcl.Body `hcl:",remain"`
}

// Decode parses and decodes the manifest at path.
func Decode(path string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclspec: parsing %s: %s", path, diags.Error())
	}

	var m Manifest
	diags = gohcl.DecodeBody(file.Body, nil, &m)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclspec: decoding %s: %s", path, diags.Error())
	}
	return &m, nil
}

// DecodeString parses and decodes manifest text directly, without reading a
// file; tests use it to build manifests from inline text.
func DecodeString(filename, src string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(src), filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclspec: parsing %s: %s", filename, diags.Error())
	}

	var m Manifest
	diags = gohcl.DecodeBody(file.Body, nil, &m)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclspec: decoding %s: %s", filename, diags.Error())
	}
	return &m, nil
}

// TargetByName returns the target named name, if declared.
func (m *Manifest) TargetByName(name string) (*Target, bool) {
	for _, t := range m.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
