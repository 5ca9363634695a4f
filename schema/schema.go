// Package schema holds the authoritative request/response shapes for every
// registered (service, endpoint, method) triple. Schemas are loaded from
// OpenAPI-compatible documents at boot and are immutable for the process
// lifetime; reloads swap the whole table atomically.
package schema

import (
	"fmt"
	"strings"

	"github.com/c360/contractgate/errors"
)

// Node is the JSONSchema subset ContractGate understands: type, properties,
// items, required, enum, minimum/maximum and pattern. Anything outside this
// subset is rejected at load time rather than silently ignored.
type Node struct {
	Type       string           `json:"type,omitempty" yaml:"type,omitempty"`
	Properties map[string]*Node `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items      *Node            `json:"items,omitempty" yaml:"items,omitempty"`
	Required   []string         `json:"required,omitempty" yaml:"required,omitempty"`
	Enum       []any            `json:"enum,omitempty" yaml:"enum,omitempty"`
	Minimum    *float64         `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum    *float64         `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Pattern    string           `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

var validTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
	"null":    true,
}

// Validate checks the node tree against the supported subset
func (n *Node) Validate() error {
	if n == nil {
		return nil
	}

	if n.Type != "" && !validTypes[n.Type] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Node", "Validate",
			fmt.Sprintf("unsupported type %q", n.Type))
	}

	for _, req := range n.Required {
		if n.Properties == nil || n.Properties[req] == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Node", "Validate",
				fmt.Sprintf("required field %q has no property declaration", req))
		}
	}

	for name, child := range n.Properties {
		if err := child.Validate(); err != nil {
			return errors.WrapInvalid(err, "Node", "Validate",
				fmt.Sprintf("property %q", name))
		}
	}

	if n.Items != nil {
		if err := n.Items.Validate(); err != nil {
			return errors.WrapInvalid(err, "Node", "Validate", "array items")
		}
	}

	if n.Minimum != nil && n.Maximum != nil && *n.Minimum > *n.Maximum {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Node", "Validate",
			fmt.Sprintf("minimum %v exceeds maximum %v", *n.Minimum, *n.Maximum))
	}

	return nil
}

// ServiceSchema is the declared contract of a single service endpoint
type ServiceSchema struct {
	Service  string `json:"service" yaml:"service"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Method   string `json:"method" yaml:"method"`
	Request  *Node  `json:"request,omitempty" yaml:"request,omitempty"`
	Response *Node  `json:"response,omitempty" yaml:"response,omitempty"`
}

// Validate ensures the schema identifies an endpoint and its shapes parse
func (s *ServiceSchema) Validate() error {
	if s.Service == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceSchema", "Validate",
			"service cannot be empty")
	}
	if s.Endpoint == "" || !strings.HasPrefix(s.Endpoint, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceSchema", "Validate",
			fmt.Sprintf("endpoint %q must start with /", s.Endpoint))
	}
	if s.Method == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceSchema", "Validate",
			"method cannot be empty")
	}
	if err := s.Request.Validate(); err != nil {
		return errors.WrapInvalid(err, "ServiceSchema", "Validate", "request schema")
	}
	if err := s.Response.Validate(); err != nil {
		return errors.WrapInvalid(err, "ServiceSchema", "Validate", "response schema")
	}
	return nil
}
