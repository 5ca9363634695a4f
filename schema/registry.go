package schema

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/c360/contractgate/errors"
)

// Key identifies a registered schema. Lookups are exact match only.
type Key struct {
	Service  string
	Endpoint string
	Method   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s %s", k.Service, k.Method, k.Endpoint)
}

// Registry is the process-wide schema table. It is read-mostly after boot:
// registration happens during startup, readers never take a lock, and
// reloads replace the entire table in one atomic pointer swap so in-flight
// requests observe either the old or the new table, never a mix. Writers
// are serialized by a mutex so no registration is lost to a concurrent
// load-copy-store.
type Registry struct {
	writeMu sync.Mutex
	table   atomic.Pointer[map[Key]*ServiceSchema]
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[Key]*ServiceSchema)
	r.table.Store(&empty)
	return r
}

func keyFor(service, endpoint, method string) Key {
	return Key{
		Service:  service,
		Endpoint: endpoint,
		Method:   strings.ToUpper(method),
	}
}

// Register inserts or overwrites the entry for the schema's
// (service, endpoint, method) triple. Last write wins; there is no partial
// merge. Registration is copy-on-write: safe against concurrent readers,
// and concurrent registrations are serialized.
func (r *Registry) Register(s *ServiceSchema) error {
	if s == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Registry", "Register",
			"schema cannot be nil")
	}
	if err := s.Validate(); err != nil {
		return errors.WrapInvalid(err, "Registry", "Register", "schema validation")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.table.Load()
	next := make(map[Key]*ServiceSchema, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[keyFor(s.Service, s.Endpoint, s.Method)] = s
	r.table.Store(&next)
	return nil
}

// Lookup returns the schema registered for the exact
// (service, endpoint, method) triple. There is no fuzzy endpoint matching.
func (r *Registry) Lookup(service, endpoint, method string) (*ServiceSchema, error) {
	key := keyFor(service, endpoint, method)
	s, ok := (*r.table.Load())[key]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrSchemaNotFound, "Registry", "Lookup", key.String())
	}
	return s, nil
}

// Replace swaps the whole table for the given schemas. Used on reload; the
// new table is built and validated before the swap so a bad reload never
// leaves the registry half-updated.
func (r *Registry) Replace(schemas []*ServiceSchema) error {
	next := make(map[Key]*ServiceSchema, len(schemas))
	for _, s := range schemas {
		if s == nil {
			return errors.WrapFatal(errors.ErrMissingConfig, "Registry", "Replace",
				"schema cannot be nil")
		}
		if err := s.Validate(); err != nil {
			return errors.WrapInvalid(err, "Registry", "Replace", "schema validation")
		}
		next[keyFor(s.Service, s.Endpoint, s.Method)] = s
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.table.Store(&next)
	return nil
}

// Len returns the number of registered schemas
func (r *Registry) Len() int {
	return len(*r.table.Load())
}
