package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/contractgate/errors"
)

// document is the on-disk registration format: one file per service,
// OpenAPI-style paths with per-method request/response bodies.
type document struct {
	Service string                          `yaml:"service"`
	Paths   map[string]map[string]operation `yaml:"paths"`
}

type operation struct {
	Request     *Node  `yaml:"request"`
	Response    *Node  `yaml:"response"`
	Description string `yaml:"description"`
}

// Load parses a single schema document. The decoder is strict: unknown
// fields are a load error, not a warning, so typos in schema files fail
// startup instead of silently dropping constraints.
func Load(r io.Reader) ([]*ServiceSchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapFatal(err, "SchemaLoader", "Load", "document decode")
	}

	if doc.Service == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "SchemaLoader", "Load",
			"document missing service name")
	}
	if len(doc.Paths) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "SchemaLoader", "Load",
			fmt.Sprintf("document for %s declares no paths", doc.Service))
	}

	// Deterministic registration order keeps load-time errors stable
	endpoints := make([]string, 0, len(doc.Paths))
	for endpoint := range doc.Paths {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)

	var schemas []*ServiceSchema
	for _, endpoint := range endpoints {
		methods := doc.Paths[endpoint]
		methodNames := make([]string, 0, len(methods))
		for m := range methods {
			methodNames = append(methodNames, m)
		}
		sort.Strings(methodNames)

		for _, method := range methodNames {
			op := methods[method]
			s := &ServiceSchema{
				Service:  doc.Service,
				Endpoint: endpoint,
				Method:   strings.ToUpper(method),
				Request:  op.Request,
				Response: op.Response,
			}
			if err := s.Validate(); err != nil {
				return nil, errors.WrapFatal(err, "SchemaLoader", "Load",
					fmt.Sprintf("%s %s %s", doc.Service, method, endpoint))
			}
			schemas = append(schemas, s)
		}
	}

	return schemas, nil
}

// LoadFile loads a schema document from disk
func LoadFile(path string) ([]*ServiceSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "SchemaLoader", "LoadFile", path)
	}
	schemas, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapFatal(err, "SchemaLoader", "LoadFile", path)
	}
	return schemas, nil
}

// LoadDir loads every .yaml/.yml/.json schema document in a directory and
// registers them into a fresh registry. File order is sorted so duplicate
// registrations resolve the same way on every boot (last write wins).
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapFatal(err, "SchemaLoader", "LoadDir", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".json":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "SchemaLoader", "LoadDir",
			fmt.Sprintf("no schema documents in %s", dir))
	}

	registry := NewRegistry()
	for _, name := range files {
		schemas, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			if err := registry.Register(s); err != nil {
				return nil, errors.WrapFatal(err, "SchemaLoader", "LoadDir", name)
			}
		}
	}

	return registry, nil
}
