package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHint(err, "try this fix")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestTaxonomyConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		msg   string
	}{
		{"validation", NewValidationError("execution %s: algorithm is required", "ex-1"), IsValidationError, "execution ex-1: algorithm is required"},
		{"not found", NewNotFoundError("execution %s not found", "ex-2"), IsNotFoundError, "execution ex-2 not found"},
		{"duplicate", NewDuplicateError("epoch name %q already exists", "2026-01"), IsDuplicateError, `epoch name "2026-01" already exists`},
		{"query", NewQueryError("page must be >= 1, got %d", 0), IsQueryError, "page must be >= 1, got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}

func TestCategoriesAreDistinct(t *testing.T) {
	err := NewNotFoundError("template t-1 not found")

	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsValidationError(err))
	assert.False(t, IsDuplicateError(err))
	assert.False(t, IsStorageError(err))
	assert.False(t, IsLineageError(err))
	assert.False(t, IsQueryError(err))
}

func TestWrapStorage(t *testing.T) {
	t.Run("raw driver error becomes storage error", func(t *testing.T) {
		err := WrapStorage(fmt.Errorf("disk I/O error"), "insert execution ex-1")
		assert.True(t, IsStorageError(err))
		assert.Contains(t, err.Error(), "insert execution ex-1")
		assert.Contains(t, err.Error(), "disk I/O error")
	})

	t.Run("categorized error keeps its category", func(t *testing.T) {
		err := WrapStorage(NewNotFoundError("epoch e-1 not found"), "update epoch")
		assert.True(t, IsNotFoundError(err))
		assert.False(t, IsStorageError(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, WrapStorage(nil, "noop"))
	})
}

func TestWrapLineagePreservesCause(t *testing.T) {
	cause := NewNotFoundError("execution ex-9 not found")
	err := WrapLineage(cause, "lineage for execution %s", "ex-9")

	assert.True(t, IsLineageError(err))
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "lineage for execution ex-9")
	assert.NoError(t, WrapLineage(nil, "unused"))
}

func TestNilPredicates(t *testing.T) {
	assert.False(t, IsValidationError(nil))
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsDuplicateError(nil))
	assert.False(t, IsStorageError(nil))
	assert.False(t, IsLineageError(nil))
	assert.False(t, IsQueryError(nil))
}
