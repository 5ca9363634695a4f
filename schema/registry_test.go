package schema_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/schema"
)

func objectSchema(required ...string) *schema.Node {
	props := make(map[string]*schema.Node)
	for _, name := range required {
		props[name] = &schema.Node{Type: "string"}
	}
	return &schema.Node{Type: "object", Properties: props, Required: required}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := schema.NewRegistry()

	s := &schema.ServiceSchema{
		Service:  "med-knowledge",
		Endpoint: "/api/v1/knowledge/search",
		Method:   "POST",
		Request:  objectSchema("query"),
		Response: &schema.Node{Type: "object"},
	}
	require.NoError(t, r.Register(s))

	got, err := r.Lookup("med-knowledge", "/api/v1/knowledge/search", "POST")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// Method lookup is case-insensitive (methods normalize to upper case)
	got, err = r.Lookup("med-knowledge", "/api/v1/knowledge/search", "post")
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestRegistry_LookupMiss(t *testing.T) {
	r := schema.NewRegistry()

	_, err := r.Lookup("auth-service", "/api/v1/login", "POST")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrSchemaNotFound)
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestRegistry_ExactMatchOnly(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(&schema.ServiceSchema{
		Service:  "user-service",
		Endpoint: "/api/v1/users",
		Method:   "GET",
	}))

	// No fuzzy endpoint matching: a sub-path is a miss
	_, err := r.Lookup("user-service", "/api/v1/users/42", "GET")
	assert.ErrorIs(t, err, pkgerrors.ErrSchemaNotFound)

	// Different method is a miss
	_, err = r.Lookup("user-service", "/api/v1/users", "POST")
	assert.ErrorIs(t, err, pkgerrors.ErrSchemaNotFound)
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := schema.NewRegistry()

	first := &schema.ServiceSchema{
		Service:  "rag-service",
		Endpoint: "/api/v1/query",
		Method:   "POST",
		Request:  objectSchema("query"),
	}
	second := &schema.ServiceSchema{
		Service:  "rag-service",
		Endpoint: "/api/v1/query",
		Method:   "POST",
		Request:  objectSchema("query", "top_k"),
	}

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, err := r.Lookup("rag-service", "/api/v1/query", "POST")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentRegistrationsAllLand(t *testing.T) {
	r := schema.NewRegistry()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			err := r.Register(&schema.ServiceSchema{
				Service:  fmt.Sprintf("service-%d", n),
				Endpoint: "/api/v1/ping",
				Method:   "GET",
				Request:  &schema.Node{Type: "object"},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every writer's entry survives: no registration is lost to a
	// concurrent load-copy-store
	assert.Equal(t, writers, r.Len())
	for i := 0; i < writers; i++ {
		_, err := r.Lookup(fmt.Sprintf("service-%d", i), "/api/v1/ping", "GET")
		assert.NoError(t, err)
	}
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := schema.NewRegistry()

	tests := []struct {
		name   string
		schema *schema.ServiceSchema
	}{
		{"nil schema", nil},
		{"empty service", &schema.ServiceSchema{Endpoint: "/x", Method: "GET"}},
		{"endpoint without slash", &schema.ServiceSchema{Service: "s", Endpoint: "x", Method: "GET"}},
		{"empty method", &schema.ServiceSchema{Service: "s", Endpoint: "/x"}},
		{
			"required without property",
			&schema.ServiceSchema{
				Service: "s", Endpoint: "/x", Method: "POST",
				Request: &schema.Node{Type: "object", Required: []string{"ghost"}},
			},
		},
		{
			"unsupported type",
			&schema.ServiceSchema{
				Service: "s", Endpoint: "/x", Method: "POST",
				Request: &schema.Node{Type: "tuple"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.schema)
			require.Error(t, err)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ReplaceSwapsWholeTable(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(&schema.ServiceSchema{
		Service: "old-service", Endpoint: "/old", Method: "GET",
	}))

	err := r.Replace([]*schema.ServiceSchema{
		{Service: "new-service", Endpoint: "/new", Method: "GET"},
		{Service: "new-service", Endpoint: "/new", Method: "POST"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	_, err = r.Lookup("old-service", "/old", "GET")
	assert.ErrorIs(t, err, pkgerrors.ErrSchemaNotFound)

	_, err = r.Lookup("new-service", "/new", "POST")
	assert.NoError(t, err)
}

func TestRegistry_ReplaceRejectsBadTableUntouched(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(&schema.ServiceSchema{
		Service: "keep-me", Endpoint: "/keep", Method: "GET",
	}))

	err := r.Replace([]*schema.ServiceSchema{
		{Service: "", Endpoint: "/bad", Method: "GET"},
	})
	require.Error(t, err)

	// A failed replace leaves the previous table fully intact
	_, err = r.Lookup("keep-me", "/keep", "GET")
	assert.NoError(t, err)
}
