package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, CodeConflict, "duplicate")

	assert.True(t, HasCode(wrapped, CodeConflict))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.ErrorIs(t, wrapped, base)

	outer := fmt.Errorf("context: %w", wrapped)
	assert.True(t, Is(outer, CodeConflict))
	assert.False(t, HasCode(base, CodeConflict))
	assert.False(t, HasCode(nil, CodeConflict))
}

func TestHasCodeNested(t *testing.T) {
	inner := New(CodeAlreadyRetired, "Concept is already retired")
	outer := Wrap(inner, CodeValidation, "retire failed")

	assert.True(t, HasCode(outer, CodeValidation))
	assert.True(t, HasCode(outer, CodeAlreadyRetired))
	assert.Equal(t, CodeValidation, CodeOf(outer))
}

func TestFields(t *testing.T) {
	t.Run("plain error reports non-field message", func(t *testing.T) {
		err := New(CodeMissingActor, "Creator cannot be None.")
		assert.Equal(t, map[string][]string{NonFieldKey: {"Creator cannot be None."}}, FieldErrors(err))
	})

	t.Run("validation keeps field map", func(t *testing.T) {
		err := Validation(map[string][]string{"names": {"a", "b"}, "parent": {"required"}})
		require.Error(t, err)
		assert.True(t, HasCode(err, CodeValidation))
		assert.Equal(t, []string{"a", "b"}, FieldErrors(err)["names"])
		assert.Contains(t, err.Error(), "names: a")
	})

	t.Run("empty validation is nil", func(t *testing.T) {
		assert.NoError(t, Validation(nil))
	})

	t.Run("foreign errors render under non-field key", func(t *testing.T) {
		assert.Equal(t, []string{"raw"}, FieldErrors(errors.New("raw"))[NonFieldKey])
		assert.Nil(t, FieldErrors(nil))
	})
}

func TestCollector(t *testing.T) {
	var c Collector
	require.NoError(t, c.Err())

	c.Add("mnemonic", "required")
	c.Merge(WithField(CodeValidation, "names", "at least one name is required"))

	err := c.Err()
	require.Error(t, err)
	fields := FieldErrors(err)
	assert.Equal(t, []string{"required"}, fields["mnemonic"])
	assert.Equal(t, []string{"at least one name is required"}, fields["names"])
}
