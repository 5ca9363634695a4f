package mapping_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/mapping"
)

func mustBuild(t *testing.T, pairs ...mapping.FieldPair) *mapping.FieldMapping {
	t.Helper()
	m, err := mapping.Build("rag-service", "communication-service",
		"/api/v1/query", "/api/v1/messages", pairs)
	require.NoError(t, err)
	return m
}

func TestBuild_RejectsEmptyPairs(t *testing.T) {
	_, err := mapping.Build("a", "b", "/x", "/y", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyMapping)
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestBuild_RejectsDuplicateSource(t *testing.T) {
	_, err := mapping.Build("a", "b", "/x", "/y", []mapping.FieldPair{
		{Source: "session_id", Target: "conversation_id"},
		{Source: "session_id", Target: "thread_id"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateMapping)
}

func TestBuild_RejectsMalformedPath(t *testing.T) {
	_, err := mapping.Build("a", "b", "/x", "/y", []mapping.FieldPair{
		{Source: "results[", Target: "response"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedPath)
}

func TestBuild_SameTargetAllowed(t *testing.T) {
	// Only duplicate *source* paths are configuration errors; two sources
	// may write the same target, with the later pair winning.
	m := mustBuild(t,
		mapping.FieldPair{Source: "primary", Target: "value"},
		mapping.FieldPair{Source: "fallback", Target: "value"},
	)
	assert.Len(t, m.Pairs, 2)
}

func TestApply_IndexedAndDottedPaths(t *testing.T) {
	m := mustBuild(t,
		mapping.FieldPair{Source: "results[0].content", Target: "response"},
		mapping.FieldPair{Source: "session_id", Target: "conversation_id"},
	)

	payload := map[string]any{
		"results":    []any{map[string]any{"content": "X"}},
		"session_id": "12345",
	}

	result, misses, err := m.Apply(payload)
	require.NoError(t, err)
	assert.Empty(t, misses)
	assert.Equal(t, map[string]any{
		"response":        "X",
		"conversation_id": "12345",
	}, result)
}

func TestApply_SoftMissOmitsField(t *testing.T) {
	m := mustBuild(t,
		mapping.FieldPair{Source: "results[0].content", Target: "response"},
		mapping.FieldPair{Source: "session_id", Target: "conversation_id"},
	)

	// No results array at all: first pair is a soft miss, not a failure
	result, misses, err := m.Apply(map[string]any{"session_id": "77"})
	require.NoError(t, err)

	require.Len(t, misses, 1)
	assert.Equal(t, 1, misses[0].Pair)
	assert.Equal(t, "results[0].content", misses[0].Source)

	mapped, ok := result.(map[string]any)
	require.True(t, ok)
	_, present := mapped["response"]
	assert.False(t, present, "missed field must be omitted, not defaulted to null")
	assert.Equal(t, "77", mapped["conversation_id"])
}

func TestApply_AllPairsMissedYieldsEmptyObject(t *testing.T) {
	m := mustBuild(t,
		mapping.FieldPair{Source: "results[0].content", Target: "response"},
		mapping.FieldPair{Source: "session_id", Target: "conversation_id"},
	)

	// Nothing resolves: the result must still be an empty object so a
	// serializing caller emits {}, never null
	result, misses, err := m.Apply(map[string]any{"unrelated": true})
	require.NoError(t, err)
	require.Len(t, misses, 2)
	assert.Equal(t, map[string]any{}, result)
}

func TestApply_AllPairsMissedYieldsEmptyArrayForIndexedRoot(t *testing.T) {
	m := mustBuild(t, mapping.FieldPair{Source: "missing", Target: "[0].value"})

	result, misses, err := m.Apply(map[string]any{})
	require.NoError(t, err)
	require.Len(t, misses, 1)
	assert.Equal(t, []any{}, result)
}

func TestApply_IndexBeyondLengthIsMiss(t *testing.T) {
	m := mustBuild(t, mapping.FieldPair{Source: "results[3].content", Target: "response"})

	_, misses, err := m.Apply(map[string]any{
		"results": []any{map[string]any{"content": "only"}},
	})
	require.NoError(t, err)
	require.Len(t, misses, 1)
	assert.Equal(t, 1, misses[0].Pair)
}

func TestApply_NullValueIsNotAMiss(t *testing.T) {
	m := mustBuild(t, mapping.FieldPair{Source: "note", Target: "annotation"})

	result, misses, err := m.Apply(map[string]any{"note": nil})
	require.NoError(t, err)
	assert.Empty(t, misses)
	assert.Equal(t, map[string]any{"annotation": nil}, result)
}

func TestApply_WriteExtendsArrayWithPlaceholders(t *testing.T) {
	m := mustBuild(t, mapping.FieldPair{Source: "name", Target: "items[3].label"})

	result, misses, err := m.Apply(map[string]any{"name": "tongue-diagnosis"})
	require.NoError(t, err)
	assert.Empty(t, misses)

	mapped := result.(map[string]any)
	items := mapped["items"].([]any)
	require.Len(t, items, 4)
	assert.Nil(t, items[0])
	assert.Nil(t, items[1])
	assert.Nil(t, items[2])
	assert.Equal(t, map[string]any{"label": "tongue-diagnosis"}, items[3])
}

func TestApply_LaterPairOverwritesLeafOnly(t *testing.T) {
	m := mustBuild(t,
		mapping.FieldPair{Source: "a", Target: "out.first"},
		mapping.FieldPair{Source: "b", Target: "out.second"},
		mapping.FieldPair{Source: "c", Target: "out.first"},
	)

	result, _, err := m.Apply(map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	// out.first is overwritten at the leaf; the sibling out.second survives
	assert.Equal(t, map[string]any{
		"out": map[string]any{"first": 3, "second": 2},
	}, result)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	m := mustBuild(t, mapping.FieldPair{Source: "user.name", Target: "profile.display"})

	payload := map[string]any{"user": map[string]any{"name": "xiaoai"}}
	_, _, err := m.Apply(payload)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"user": map[string]any{"name": "xiaoai"}}, payload)
}

func TestApply_Idempotent(t *testing.T) {
	m := mustBuild(t,
		mapping.FieldPair{Source: "results[0].content", Target: "response"},
		mapping.FieldPair{Source: "results[0].score", Target: "meta.score"},
		mapping.FieldPair{Source: "session_id", Target: "conversation_id"},
	)

	payload := map[string]any{
		"results":    []any{map[string]any{"content": "X", "score": 0.92}},
		"session_id": "12345",
	}

	first, _, err := m.Apply(payload)
	require.NoError(t, err)
	second, _, err := m.Apply(payload)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "repeated Apply must produce byte-identical output")
}

func TestApply_UnbuiltMappingFailsFast(t *testing.T) {
	m := &mapping.FieldMapping{
		Consumer: "a", Provider: "b",
		Pairs: []mapping.FieldPair{{Source: "x", Target: "y"}},
	}
	_, _, err := m.Apply(map[string]any{"x": 1})
	require.Error(t, err)
}
