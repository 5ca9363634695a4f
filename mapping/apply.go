package mapping

import (
	"fmt"

	"github.com/c360/contractgate/errors"
)

// Miss records a source path that did not resolve in the payload. Soft
// misses are audit data, not failures: optional consumer fields may
// legitimately be absent, so the mapped field is omitted rather than
// defaulted to null.
type Miss struct {
	Pair   int    `json:"pair"` // 1-based index of the field pair
	Source string `json:"source"`
}

// Apply maps a payload through the field pairs in declaration order and
// returns the freshly built result plus the audit list of soft misses.
// Intermediate containers are created as needed; writing past the end of an
// array extends it with null placeholders. Apply never mutates the input
// payload. It errors only on invocation misuse: a mapping that was not
// constructed through Build.
func (m *FieldMapping) Apply(payload any) (any, []Miss, error) {
	if m == nil || len(m.Pairs) == 0 {
		return nil, nil, errors.WrapInvalid(errors.ErrEmptyMapping, "FieldMapping", "Apply",
			"mapping has no pairs")
	}

	var result any
	var misses []Miss

	for i, pair := range m.Pairs {
		if pair.sourcePath == nil || pair.targetPath == nil {
			return nil, nil, errors.WrapInvalid(errors.ErrMalformedPath, "FieldMapping", "Apply",
				fmt.Sprintf("pair %d was not built; use mapping.Build", i+1))
		}

		value, ok := getValue(payload, pair.sourcePath)
		if !ok {
			misses = append(misses, Miss{Pair: i + 1, Source: pair.Source})
			continue
		}

		result = setValue(result, pair.targetPath, value)
	}

	// A payload where every pair missed still yields an empty container of
	// the target root's kind, so callers serialize {} or [], never null
	if result == nil {
		if m.Pairs[0].targetPath[0].IsIndex {
			result = []any{}
		} else {
			result = map[string]any{}
		}
	}

	return result, misses, nil
}

// getValue resolves a path against a tagged-value tree of objects
// (map[string]any), arrays ([]any) and scalars
func getValue(container any, path Path) (any, bool) {
	cur := container
	for _, seg := range path {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
			continue
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, present := obj[seg.Key]
		if !present {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

// setValue writes value at path inside container, creating intermediate
// objects and arrays as needed, and returns the (possibly replaced)
// container. Existing sibling keys are preserved; only the addressed leaf
// is overwritten. An intermediate of the wrong kind is replaced by a fresh
// container, which is the leaf-overwrite rule applied one level up.
func setValue(container any, path Path, value any) any {
	if len(path) == 0 {
		return value
	}

	seg := path[0]
	if seg.IsIndex {
		arr, ok := container.([]any)
		if !ok {
			arr = []any{}
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		arr[seg.Index] = setValue(arr[seg.Index], path[1:], value)
		return arr
	}

	obj, ok := container.(map[string]any)
	if !ok {
		obj = make(map[string]any)
	}
	obj[seg.Key] = setValue(obj[seg.Key], path[1:], value)
	return obj
}
