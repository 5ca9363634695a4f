package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/contractgate/errors"
)

func route(pattern, service, endpoint string) RouteEntry {
	return RouteEntry{
		PathPattern:    pattern,
		TargetService:  service,
		TargetEndpoint: endpoint,
	}
}

func TestTableLongestPrefixWins(t *testing.T) {
	table, err := NewTable([]RouteEntry{
		route("/api/v1", "core", "/v1"),
		route("/api/v1/users", "user-service", "/users"),
	})
	require.NoError(t, err)

	entry, ok := table.Match("/api/v1/users/42")
	require.True(t, ok)
	assert.Equal(t, "user-service", entry.TargetService)

	entry, ok = table.Match("/api/v1/orders")
	require.True(t, ok)
	assert.Equal(t, "core", entry.TargetService)
}

func TestTableMatchesWholeSegmentsOnly(t *testing.T) {
	table, err := NewTable([]RouteEntry{
		route("/api/v1/users", "user-service", "/users"),
	})
	require.NoError(t, err)

	_, ok := table.Match("/api/v1/users")
	assert.True(t, ok)

	_, ok = table.Match("/api/v1/usersabc")
	assert.False(t, ok)

	_, ok = table.Match("/api/v1")
	assert.False(t, ok)
}

func TestTableRejectsAmbiguousPatterns(t *testing.T) {
	// /api/v1/users and /api/v1/users/* normalize to the same literal
	// segments, so matching order would decide which wins
	_, err := NewTable([]RouteEntry{
		route("/api/v1/users", "a", "/a"),
		route("/api/v1/users/*", "b", "/b"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAmbiguousRoute)
	assert.True(t, errors.IsFatal(err))
}

func TestTableRejectsInvalidEntry(t *testing.T) {
	_, err := NewTable([]RouteEntry{
		route("no-leading-slash", "a", "/a"),
	})
	assert.Error(t, err)
}

func TestTableRejectsEmpty(t *testing.T) {
	_, err := NewTable(nil)
	assert.Error(t, err)
}

func TestTableSuffix(t *testing.T) {
	table, err := NewTable([]RouteEntry{
		route("/api/v1/users", "user-service", "/users"),
	})
	require.NoError(t, err)

	entry, ok := table.Match("/api/v1/users/42/profile")
	require.True(t, ok)

	assert.Equal(t, "/42/profile", table.Suffix(entry, "/api/v1/users/42/profile"))
	assert.Equal(t, "", table.Suffix(entry, "/api/v1/users"))
}

func TestRouterSwapIsAtomic(t *testing.T) {
	boot, err := NewTable([]RouteEntry{
		route("/api/v1/users", "user-service", "/users"),
	})
	require.NoError(t, err)

	router, err := NewRouter(boot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), router.Generation())

	// Snapshot held by an in-flight request survives the swap
	held := router.Table()

	next, err := NewTable([]RouteEntry{
		route("/api/v1/orders", "order-service", "/orders"),
	})
	require.NoError(t, err)

	gen := router.Swap(next)
	assert.Equal(t, uint64(2), gen)

	_, ok := held.Match("/api/v1/users/1")
	assert.True(t, ok, "held snapshot should keep old routes")

	_, err = router.Match("/api/v1/users/1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRouteNotFound)

	entry, err := router.Match("/api/v1/orders/7")
	require.NoError(t, err)
	assert.Equal(t, "order-service", entry.TargetService)
}

func TestRouterMatchWrapsNotFound(t *testing.T) {
	table, err := NewTable([]RouteEntry{
		route("/api/v1/users", "user-service", "/users"),
	})
	require.NoError(t, err)

	router, err := NewRouter(table)
	require.NoError(t, err)

	_, err = router.Match("/nope")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
