// Package credentials resolves cloud storage credentials from the
// configuration shapes cargohold accepts: a literal mapping, a path to a
// templated YAML file, an open reader over such a file, or a callback
// producing any of the above.
//
// YAML files are run through text/template before parsing, with an `env`
// function for pulling values from the process environment:
//
//	production:
//	  provider: aws
//	  aws_access_key_id: {{ env "AWS_ACCESS_KEY_ID" }}
//	  aws_secret_access_key: {{ env "AWS_SECRET_ACCESS_KEY" }}
//
// If the parsed mapping contains a sub-mapping keyed by the active
// environment name, that sub-mapping becomes the result.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedSource is returned when a Source carries none of the
// supported credential shapes.
var ErrUnsupportedSource = errors.New("credentials are not a path, file, mapping, or callable")

// Map is a resolved, provider-ready credential mapping. Keys are
// normalized to lowercase.
type Map map[string]any

// String returns the value for key as a string, or "" when the key is
// absent or not a scalar.
func (m Map) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}

// Bool returns the value for key as a bool. Missing or non-bool values
// return false.
func (m Map) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Source is a tagged variant over the supported credential input shapes.
// Exactly one field should be set; the first non-zero field in the order
// below wins.
type Source struct {
	// Map is a literal credential mapping.
	Map Map
	// Path is a filesystem path to a templated YAML file.
	Path string
	// Reader is an open handle to templated YAML content.
	Reader io.Reader
	// Func is a callback returning another Source.
	Func func() Source
}

// Resolve normalizes the given source into a provider-ready Map. The
// environment name selects an environment-keyed sub-mapping when the raw
// mapping contains one; otherwise the whole mapping is returned.
func Resolve(src Source, environment string) (Map, error) {
	raw, err := load(src)
	if err != nil {
		return nil, err
	}
	return hoistEnvironment(normalizeKeys(raw), environment), nil
}

// load turns a Source into a raw mapping, following one level of callback
// indirection per recursion step.
func load(src Source) (map[string]any, error) {
	switch {
	case src.Map != nil:
		return src.Map, nil
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file %q: %w", src.Path, err)
		}
		return parse(data)
	case src.Reader != nil:
		data, err := io.ReadAll(src.Reader)
		if err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}
		return parse(data)
	case src.Func != nil:
		return load(src.Func())
	default:
		return nil, ErrUnsupportedSource
	}
}

// parse evaluates the template in data, then unmarshals the result as YAML.
func parse(data []byte) (map[string]any, error) {
	tmpl, err := template.New("credentials").Funcs(template.FuncMap{
		"env": os.Getenv,
	}).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing credentials template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("evaluating credentials template: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("parsing credentials YAML: %w", err)
	}
	return m, nil
}

// asMap unwraps a nested sub-mapping. Callers hand literal credentials
// over as either map[string]any or the exported Map type; both count.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Map:
		return m, true
	default:
		return nil, false
	}
}

// normalizeKeys lowercases all mapping keys, recursing into sub-mappings.
func normalizeKeys(m map[string]any) Map {
	out := make(Map, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			v = map[string]any(normalizeKeys(sub))
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// hoistEnvironment promotes the sub-mapping for the active environment to
// the top level when present. The environment override wins entirely; no
// merging with sibling keys happens.
func hoistEnvironment(m Map, environment string) Map {
	if environment == "" {
		return m
	}
	if sub, ok := asMap(m[strings.ToLower(environment)]); ok {
		return Map(sub)
	}
	return m
}
