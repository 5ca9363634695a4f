package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/contractgate/schema"
)

func testContext(t *testing.T, entry *RouteEntry) *RequestContext {
	t.Helper()
	return &RequestContext{
		ID:      "test-request",
		Route:   entry,
		State:   StateMatched,
		Started: time.Now(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func authedRoute(t *testing.T, requireAuth bool) *RouteEntry {
	t.Helper()
	entry := &RouteEntry{
		PathPattern:    "/api/v1/agent",
		TargetService:  "agent",
		TargetEndpoint: "/chat",
		RequireAuth:    requireAuth,
	}
	require.NoError(t, entry.Validate())
	return entry
}

func TestAuthStage(t *testing.T) {
	stage := NewAuthStage([]string{"secret-token"})

	t.Run("route without auth passes", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, false))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", nil)

		assert.Nil(t, stage.Process(rc, r))
		assert.Equal(t, StateAuthorized, rc.State)
	})

	t.Run("missing credential is 401", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, true))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", nil)

		reply := stage.Process(rc, r)
		require.NotNil(t, reply)
		assert.Equal(t, http.StatusUnauthorized, reply.Status)
		assert.Equal(t, "UNAUTHORIZED", reply.Code)
	})

	t.Run("unknown credential is 403", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, true))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", nil)
		r.Header.Set("Authorization", "Bearer wrong-token")

		reply := stage.Process(rc, r)
		require.NotNil(t, reply)
		assert.Equal(t, http.StatusForbidden, reply.Status)
		assert.Equal(t, "FORBIDDEN", reply.Code)
	})

	t.Run("non-bearer scheme is 403", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, true))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		reply := stage.Process(rc, r)
		require.NotNil(t, reply)
		assert.Equal(t, http.StatusForbidden, reply.Status)
	})

	t.Run("valid token authorizes", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, true))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", nil)
		r.Header.Set("Authorization", "Bearer secret-token")

		assert.Nil(t, stage.Process(rc, r))
		assert.Equal(t, StateAuthorized, rc.State)
	})
}

func TestRateLimitStage(t *testing.T) {
	stage := NewRateLimitStage(RateLimitConfig{Enabled: true, RPS: 1, Burst: 2})
	rc := testContext(t, authedRoute(t, false))
	r := httptest.NewRequest(http.MethodGet, "/api/v1/agent", nil)

	assert.Nil(t, stage.Process(rc, r))
	assert.Nil(t, stage.Process(rc, r))

	reply := stage.Process(rc, r)
	require.NotNil(t, reply)
	assert.Equal(t, http.StatusTooManyRequests, reply.Status)
	assert.Equal(t, "RATE_LIMITED", reply.Code)
}

func contractRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()
	err := registry.Register(&schema.ServiceSchema{
		Service:  "med-knowledge",
		Endpoint: "/api/v1/knowledge/search",
		Method:   "POST",
		Request: &schema.Node{
			Type: "object",
			Properties: map[string]*schema.Node{
				"query": {Type: "string"},
			},
			Required: []string{"query"},
		},
	})
	require.NoError(t, err)
	return registry
}

func contractedRoute(t *testing.T) *RouteEntry {
	t.Helper()
	entry := &RouteEntry{
		PathPattern:    "/api/v1/knowledge",
		TargetService:  "med-knowledge",
		TargetEndpoint: "/api/v1/knowledge/search",
		Contract: &ContractRef{
			Service:  "med-knowledge",
			Endpoint: "/api/v1/knowledge/search",
			Method:   "POST",
		},
	}
	require.NoError(t, entry.Validate())
	return entry
}

func TestValidateStage(t *testing.T) {
	stage := NewValidateStage(contractRegistry(t))
	r := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge", nil)

	t.Run("route without contract passes", func(t *testing.T) {
		rc := testContext(t, authedRoute(t, false))
		rc.Body = []byte(`{"anything": true}`)
		assert.Nil(t, stage.Process(rc, r))
	})

	t.Run("conforming body passes", func(t *testing.T) {
		rc := testContext(t, contractedRoute(t))
		rc.Body = []byte(`{"query": "ginseng"}`)
		assert.Nil(t, stage.Process(rc, r))
	})

	t.Run("missing required field rejected with details", func(t *testing.T) {
		rc := testContext(t, contractedRoute(t))
		rc.Body = []byte(`{}`)

		reply := stage.Process(rc, r)
		require.NotNil(t, reply)
		assert.Equal(t, http.StatusBadRequest, reply.Status)
		assert.Equal(t, "CONTRACT_VIOLATION", reply.Code)
		require.Len(t, reply.Details, 1)
		assert.Equal(t, "query", reply.Details[0].Path)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		rc := testContext(t, contractedRoute(t))
		rc.Body = []byte(`{"query": `)

		reply := stage.Process(rc, r)
		require.NotNil(t, reply)
		assert.Equal(t, "MALFORMED_BODY", reply.Code)
	})
}

func TestPipelineShortCircuits(t *testing.T) {
	stage := NewAuthStage(nil)
	pipeline := NewPipeline(stage, NewValidateStage(contractRegistry(t)))

	rc := testContext(t, authedRoute(t, true))
	r := httptest.NewRequest(http.MethodPost, "/api/v1/agent", strings.NewReader("{}"))

	reply := pipeline.Run(rc, r)
	require.NotNil(t, reply)
	assert.Equal(t, http.StatusUnauthorized, reply.Status)
}
