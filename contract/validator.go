package contract

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/mapping"
	"github.com/c360/contractgate/schema"
)

// ValidatePayload performs structural validation of a payload against the
// declared schema for the given direction: required-field presence, type
// match, enum membership, numeric range and string pattern. Deep semantic
// checks (cross-field consistency) are the owning service's business logic
// and are out of scope here.
//
// Malformed payloads produce a Result carrying structured errors; a Go
// error is returned only for invocation-level misuse (missing schema, or a
// null payload where the schema mandates an object at the top level).
func ValidatePayload(payload any, s *schema.ServiceSchema, dir Direction) (*Result, error) {
	if s == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Validator", "ValidatePayload",
			"schema cannot be nil")
	}

	var node *schema.Node
	switch dir {
	case Request:
		node = s.Request
	case Response:
		node = s.Response
	default:
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Validator", "ValidatePayload",
			fmt.Sprintf("unknown direction %d", dir))
	}

	if node == nil {
		return nil, errors.WrapInvalid(errors.ErrSchemaNotFound, "Validator", "ValidatePayload",
			fmt.Sprintf("%s %s %s declares no %s schema", s.Service, s.Method, s.Endpoint, dir))
	}

	if payload == nil && node.Type == "object" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Validator", "ValidatePayload",
			"null payload where an object is mandatory at the top level")
	}

	schemaLoader := gojsonschema.NewGoLoader(node)
	documentLoader := gojsonschema.NewGoLoader(payload)

	outcome, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Validator", "ValidatePayload", "schema compilation")
	}

	result := newResult()
	for _, desc := range outcome.Errors() {
		result.add(ValidationError{
			Path:    errorPath(desc),
			Message: desc.Description(),
		})
	}

	return result, nil
}

// errorPath extracts the field path a validation finding refers to. For
// required-field misses gojsonschema reports the parent object's context,
// with the missing property only in the details, so the path is rebuilt to
// name the absent field itself.
func errorPath(desc gojsonschema.ResultError) string {
	path := desc.Field()

	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if path == "(root)" {
				return prop
			}
			return path + "." + prop
		}
	}

	return path
}

// ValidateMapping checks that every field pair of a mapping is coherent
// with the two schema shapes it bridges: each source path must resolve in
// the consumer shape, each target path in the provider shape, and the
// declared types at both ends must agree. Findings are reported in field
// pair declaration order, each carrying the 1-based pair index.
func ValidateMapping(m *mapping.FieldMapping, consumer, provider *schema.Node) (*Result, error) {
	if m == nil || len(m.Pairs) == 0 {
		return nil, errors.WrapFatal(errors.ErrEmptyMapping, "Validator", "ValidateMapping",
			"mapping cannot be nil or empty")
	}
	if consumer == nil || provider == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Validator", "ValidateMapping",
			"consumer and provider schemas are required")
	}

	result := newResult()
	for i, pair := range m.Pairs {
		idx := i + 1

		sourcePath := pair.SourcePath()
		targetPath := pair.TargetPath()
		if sourcePath == nil || targetPath == nil {
			return nil, errors.WrapFatal(errors.ErrMalformedPath, "Validator", "ValidateMapping",
				fmt.Sprintf("pair %d was not built; use mapping.Build", idx))
		}

		sourceNode, sourceOK := resolveSchemaPath(consumer, sourcePath)
		if !sourceOK {
			result.add(ValidationError{
				Path:    pair.Source,
				Message: "source path does not resolve in the consumer schema",
				Code:    CodePathNotInSchema,
				Pair:    idx,
			})
		}

		targetNode, targetOK := resolveSchemaPath(provider, targetPath)
		if !targetOK {
			result.add(ValidationError{
				Path:    pair.Target,
				Message: "target path does not resolve in the provider schema",
				Code:    CodePathNotInSchema,
				Pair:    idx,
			})
		}

		if sourceOK && targetOK {
			sourceType := normalizeType(sourceNode.Type)
			targetType := normalizeType(targetNode.Type)
			if sourceType != "" && targetType != "" && sourceType != targetType {
				result.add(ValidationError{
					Path: pair.Target,
					Message: fmt.Sprintf("source %s is %s but target is %s",
						pair.Source, sourceType, targetType),
					Code: CodeTypeMismatch,
					Pair: idx,
				})
			}
		}
	}

	return result, nil
}

// resolveSchemaPath walks a parsed field path through a schema shape: key
// segments descend into object properties, index segments into array items
func resolveSchemaPath(root *schema.Node, path mapping.Path) (*schema.Node, bool) {
	cur := root
	for _, seg := range path {
		if cur == nil {
			return nil, false
		}

		if seg.IsIndex {
			if cur.Type != "array" || cur.Items == nil {
				return nil, false
			}
			cur = cur.Items
			continue
		}

		if cur.Type != "" && cur.Type != "object" {
			return nil, false
		}
		child, ok := cur.Properties[seg.Key]
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, cur != nil
}

// normalizeType folds integer into number so an integer source can map
// onto a number target without a false mismatch
func normalizeType(t string) string {
	if t == "integer" {
		return "number"
	}
	return t
}
