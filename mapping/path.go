// Package mapping translates payloads produced for one API shape into the
// shape another service expects, driven by a declarative list of
// source-to-target field path pairs.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/contractgate/errors"
)

// Segment is one step of a field path: either a map key or an array index
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Key
}

// Path is a parsed field path such as results[0].content
type Path []Segment

// String renders the path back to its dotted/bracket form
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if !seg.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// ParsePath parses dotted-key and bracket-index addressing. Keys are split
// on dots; a key may carry one or more [n] suffixes with non-negative
// integer indices. Empty keys, negative indices and unbalanced brackets are
// malformed paths.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return nil, errors.WrapInvalid(errors.ErrMalformedPath, "Path", "ParsePath",
			"path cannot be empty")
	}

	var path Path
	for _, part := range strings.Split(raw, ".") {
		key := part
		var indexes []int

		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(key[open:], ']')
			if closing < 0 {
				return nil, errors.WrapInvalid(errors.ErrMalformedPath, "Path", "ParsePath",
					fmt.Sprintf("unbalanced bracket in %q", raw))
			}
			closing += open

			idxStr := key[open+1 : closing]
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 {
				return nil, errors.WrapInvalid(errors.ErrMalformedPath, "Path", "ParsePath",
					fmt.Sprintf("invalid array index %q in %q", idxStr, raw))
			}
			indexes = append(indexes, idx)

			rest := key[closing+1:]
			if rest != "" && rest[0] != '[' {
				return nil, errors.WrapInvalid(errors.ErrMalformedPath, "Path", "ParsePath",
					fmt.Sprintf("unexpected text after bracket in %q", raw))
			}
			key = key[:open] + rest
		}

		if key == "" && len(indexes) == 0 {
			return nil, errors.WrapInvalid(errors.ErrMalformedPath, "Path", "ParsePath",
				fmt.Sprintf("empty segment in %q", raw))
		}
		if key != "" {
			path = append(path, Segment{Key: key})
		}
		for _, idx := range indexes {
			path = append(path, Segment{Index: idx, IsIndex: true})
		}
	}

	return path, nil
}
