package gateway

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/c360/contractgate/errors"
)

// Table is an immutable snapshot of the route table. Matching walks
// entries longest pattern first, so the longest-prefix route always wins.
type Table struct {
	entries []*RouteEntry
}

// NewTable validates every entry and checks the set for structural
// ambiguity: two patterns whose literal segments are identical (for
// example "/api/v1/users" and "/api/v1/users/*") would make longest-prefix
// matching order-dependent, so they are rejected at load time.
func NewTable(routes []RouteEntry) (*Table, error) {
	if len(routes) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Table", "NewTable",
			"route table cannot be empty")
	}

	entries := make([]*RouteEntry, len(routes))
	seen := make(map[string]string, len(routes))
	for i := range routes {
		entry := routes[i]
		if err := entry.Validate(); err != nil {
			return nil, errors.WrapFatal(err, "Table", "NewTable",
				fmt.Sprintf("route %d", i))
		}

		lit := entry.literal()
		if prev, dup := seen[lit]; dup {
			return nil, errors.WrapFatal(errors.ErrAmbiguousRoute, "Table", "NewTable",
				fmt.Sprintf("patterns %q and %q share literal prefix %q", prev, entry.PathPattern, lit))
		}
		seen[lit] = entry.PathPattern
		entries[i] = &entry
	}

	// Longest pattern first; ties broken lexically for determinism
	// (ambiguity detection guarantees equal-length literals differ)
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].segments) != len(entries[j].segments) {
			return len(entries[i].segments) > len(entries[j].segments)
		}
		return entries[i].literal() < entries[j].literal()
	})

	return &Table{entries: entries}, nil
}

// Match resolves a request path to the route with the longest matching
// pattern prefix. Patterns match on whole segments: "/api/v1" matches
// "/api/v1/users/42" but not "/api/v1users".
func (t *Table) Match(path string) (*RouteEntry, bool) {
	requestSegments := splitPath(path)

	for _, entry := range t.entries {
		if len(entry.segments) > len(requestSegments) {
			continue
		}
		matched := true
		for i, seg := range entry.segments {
			if requestSegments[i] != seg {
				matched = false
				break
			}
		}
		if matched {
			return entry, true
		}
	}
	return nil, false
}

// Suffix returns the request path portion beyond the matched pattern,
// used to extend the target endpoint ("/api/v1/users" matching
// "/api/v1/users/42" yields "/42").
func (t *Table) Suffix(entry *RouteEntry, path string) string {
	requestSegments := splitPath(path)
	if len(requestSegments) <= len(entry.segments) {
		return ""
	}
	return "/" + strings.Join(requestSegments[len(entry.segments):], "/")
}

// Len returns the number of routes in the snapshot
func (t *Table) Len() int {
	return len(t.entries)
}

// Router serves the current table snapshot to request handlers. Reloads
// swap the pointer atomically, so an in-flight request observes either
// the fully-old or the fully-new table, never a partial update.
type Router struct {
	table      atomic.Pointer[Table]
	generation atomic.Uint64
}

// NewRouter creates a router serving the given snapshot
func NewRouter(t *Table) (*Router, error) {
	if t == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Router", "NewRouter",
			"table cannot be nil")
	}
	r := &Router{}
	r.table.Store(t)
	r.generation.Store(1)
	return r, nil
}

// Table returns the current snapshot
func (r *Router) Table() *Table {
	return r.table.Load()
}

// Generation returns the reload counter, starting at 1 for the boot table
func (r *Router) Generation() uint64 {
	return r.generation.Load()
}

// Swap atomically replaces the snapshot and returns the new generation
func (r *Router) Swap(t *Table) uint64 {
	r.table.Store(t)
	return r.generation.Add(1)
}

// Match resolves a path against the current snapshot
func (r *Router) Match(path string) (*RouteEntry, error) {
	entry, ok := r.Table().Match(path)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrRouteNotFound, "Router", "Match", path)
	}
	return entry, nil
}
