package contract

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
	"github.com/c360/contractgate/mapping"
)

// Definition is the on-disk contract test format: it names the consumer
// and provider endpoints, which side of each endpoint the mapping bridges,
// and the field pair list. Optional example payloads are validated against
// the consumer schema when the contract runs.
type Definition struct {
	Name             string              `yaml:"name"`
	Consumer         string              `yaml:"consumer"`
	Provider         string              `yaml:"provider"`
	ConsumerEndpoint string              `yaml:"consumer_endpoint"`
	ProviderEndpoint string              `yaml:"provider_endpoint"`
	ConsumerMethod   string              `yaml:"consumer_method,omitempty"`
	ProviderMethod   string              `yaml:"provider_method,omitempty"`
	ConsumerSide     string              `yaml:"consumer_side,omitempty"` // request or response
	ProviderSide     string              `yaml:"provider_side,omitempty"` // request or response
	Pairs            []mapping.FieldPair `yaml:"pairs"`
	Examples         []map[string]any    `yaml:"examples,omitempty"`
}

// definitionFile is the document wrapper: one file holds many contracts
type definitionFile struct {
	Contracts []Definition `yaml:"contracts"`
}

// Defaults: contracts typically map a consumer's response shape into the
// provider's request shape.
const (
	defaultMethod       = "POST"
	defaultConsumerSide = "response"
	defaultProviderSide = "request"
)

// Validate normalizes defaults and rejects malformed definitions. A
// malformed contract definition is a configuration-time error and halts
// the run.
func (d *Definition) Validate() error {
	if d.Consumer == "" || d.Provider == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Definition", "Validate",
			"consumer and provider are required")
	}
	if d.ConsumerEndpoint == "" || d.ProviderEndpoint == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Definition", "Validate",
			fmt.Sprintf("%s -> %s: both endpoints are required", d.Consumer, d.Provider))
	}
	if len(d.Pairs) == 0 {
		return errors.WrapFatal(errors.ErrEmptyMapping, "Definition", "Validate",
			fmt.Sprintf("%s -> %s", d.Consumer, d.Provider))
	}

	if d.Name == "" {
		d.Name = fmt.Sprintf("%s->%s", d.Consumer, d.Provider)
	}
	if d.ConsumerMethod == "" {
		d.ConsumerMethod = defaultMethod
	}
	if d.ProviderMethod == "" {
		d.ProviderMethod = defaultMethod
	}
	if d.ConsumerSide == "" {
		d.ConsumerSide = defaultConsumerSide
	}
	if d.ProviderSide == "" {
		d.ProviderSide = defaultProviderSide
	}

	for _, side := range []string{d.ConsumerSide, d.ProviderSide} {
		if side != "request" && side != "response" {
			return errors.WrapFatal(errors.ErrInvalidConfig, "Definition", "Validate",
				fmt.Sprintf("side must be request or response, got %q", side))
		}
	}

	return nil
}

// Mapping builds the parsed field mapping for this definition
func (d *Definition) Mapping() (*mapping.FieldMapping, error) {
	return mapping.Build(d.Consumer, d.Provider, d.ConsumerEndpoint, d.ProviderEndpoint, d.Pairs)
}

func sideDirection(side string) Direction {
	if side == "response" {
		return Response
	}
	return Request
}

// LoadDefinitions parses a contract definition document with strict field
// checking
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file definitionFile
	if err := dec.Decode(&file); err != nil {
		return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitions", "document decode")
	}
	if len(file.Contracts) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "ContractLoader", "LoadDefinitions",
			"document declares no contracts")
	}

	for i := range file.Contracts {
		if err := file.Contracts[i].Validate(); err != nil {
			return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitions",
				fmt.Sprintf("contract %d", i+1))
		}
	}

	return file.Contracts, nil
}

// LoadDefinitionFile loads contract definitions from disk
func LoadDefinitionFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitionFile", path)
	}
	defs, err := LoadDefinitions(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitionFile", path)
	}
	return defs, nil
}

// LoadDefinitionPath loads definitions from a file, or from every
// .yaml/.yml file in a directory
func LoadDefinitionPath(path string) ([]Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitionPath", path)
	}
	if !info.IsDir() {
		return LoadDefinitionFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "ContractLoader", "LoadDefinitionPath", path)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "ContractLoader", "LoadDefinitionPath",
			fmt.Sprintf("no contract definitions in %s", path))
	}

	var defs []Definition
	for _, name := range files {
		fileDefs, err := LoadDefinitionFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// names for duplicate detection inside a run
func definitionNames(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		key := strings.ToLower(d.Name)
		if seen[key] {
			return errors.WrapFatal(errors.ErrInvalidConfig, "ContractLoader", "definitionNames",
				fmt.Sprintf("duplicate contract name %q", d.Name))
		}
		seen[key] = true
	}
	return nil
}
