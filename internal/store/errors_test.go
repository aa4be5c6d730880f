package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, Translate(nil, "concept"))

	notFound := Translate(fmt.Errorf("concept 3: %w", sentinel.ErrNotFound), "concept")
	assert.True(t, dErrors.HasCode(notFound, dErrors.CodeNotFound))
	assert.ErrorIs(t, notFound, sentinel.ErrNotFound)

	conflict := Translate(sentinel.ErrConflict, "source")
	assert.True(t, dErrors.HasCode(conflict, dErrors.CodeConflict))

	domain := dErrors.New(dErrors.CodeAlreadyRetired, "Concept is already retired")
	assert.Same(t, domain, Translate(domain, "concept"))

	other := Translate(errors.New("disk on fire"), "mapping")
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(other))
}
