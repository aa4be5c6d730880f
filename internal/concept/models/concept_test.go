package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termrepo/internal/locale"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

func validConcept() *Concept {
	return &Concept{
		Entity:       versioning.Entity{Mnemonic: "C1", Version: "1", Extras: map[string]any{"k": "v"}},
		ConceptClass: "Diagnosis",
		Datatype:     "N/A",
		ParentID:     10,
		ParentURI:    "/orgs/O/sources/S/",
		Names: []locale.LocalizedText{
			{ID: 1, Name: "Fever", Locale: "en", Type: "FULLY_SPECIFIED", LocalePreferred: true},
		},
		Descriptions: []locale.LocalizedText{{ID: 2, Name: "Raised temperature", Locale: "en"}},
	}
}

func TestConceptURI(t *testing.T) {
	c := validConcept()
	assert.Equal(t, "/orgs/O/sources/S/concepts/C1/1/", c.ResourceURI())
	c.Version = versioning.HEAD
	assert.Equal(t, "/orgs/O/sources/S/concepts/C1/", c.ResourceURI())
}

func TestConceptCloneDetachesLocales(t *testing.T) {
	c := validConcept()
	clone := c.Clone()

	require.Len(t, clone.Names, 1)
	assert.Zero(t, clone.Names[0].ID)
	assert.Zero(t, clone.Descriptions[0].ID)

	clone.Names[0].Name = "Pyrexia"
	clone.Extras["k"] = "changed"
	assert.Equal(t, "Fever", c.Names[0].Name)
	assert.Equal(t, "v", c.Extras["k"])
}

func TestConceptValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConcept().Validate())
	})

	t.Run("missing parent", func(t *testing.T) {
		c := validConcept()
		c.ParentID = 0
		err := c.Validate()
		require.Error(t, err)
		assert.Equal(t, []string{"Parent resource cannot be None."}, dErrors.FieldErrors(err)["parent"])
	})

	t.Run("bad mnemonic and missing names", func(t *testing.T) {
		c := validConcept()
		c.Mnemonic = "has space"
		c.Names = nil
		fields := dErrors.FieldErrors(c.Validate())
		assert.Contains(t, fields, "mnemonic")
		assert.Contains(t, fields, "names")
	})

	t.Run("openmrs rejects two fully specified names in a locale", func(t *testing.T) {
		c := validConcept()
		c.ParentSchema = versioning.SchemaOpenMRS
		c.Names = append(c.Names, locale.LocalizedText{Name: "Pyrexia", Locale: "en", Type: "Fully Specified"})
		err := c.Validate()
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("openmrs allows one fully specified name per locale", func(t *testing.T) {
		c := validConcept()
		c.ParentSchema = versioning.SchemaOpenMRS
		c.Names = append(c.Names, locale.LocalizedText{Name: "Fièvre", Locale: "fr", Type: "FULLY_SPECIFIED", LocalePreferred: true})
		require.NoError(t, c.Validate())
	})
}

func TestPreferredLocale(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("prefers locale preferred names", func(t *testing.T) {
		c := &Concept{Names: []locale.LocalizedText{
			{Name: "newer", Locale: "en", CreatedAt: t0.Add(time.Hour)},
			{Name: "preferred", Locale: "fr", LocalePreferred: true, CreatedAt: t0},
		}}
		assert.Equal(t, "preferred", c.DisplayName())
		assert.Equal(t, "fr", c.DisplayLocale())
	})

	t.Run("falls back to newest name", func(t *testing.T) {
		c := &Concept{Names: []locale.LocalizedText{
			{Name: "old", Locale: "en", CreatedAt: t0},
			{Name: "new", Locale: "en", CreatedAt: t0.Add(time.Minute)},
		}}
		assert.Equal(t, "new", c.DisplayName())
	})

	t.Run("ties keep the first match", func(t *testing.T) {
		c := &Concept{Names: []locale.LocalizedText{
			{Name: "first", Locale: "en", CreatedAt: t0},
			{Name: "second", Locale: "en", CreatedAt: t0},
		}}
		assert.Equal(t, "first", c.DisplayName())
	})

	t.Run("no names", func(t *testing.T) {
		c := &Concept{}
		assert.Nil(t, c.PreferredLocale())
		assert.Empty(t, c.DisplayName())
	})
}

func TestNameSelector(t *testing.T) {
	c := validConcept()
	c.Names = append(c.Names, locale.LocalizedText{Name: "F", Locale: "en", Type: "SHORT"})

	assert.Len(t, c.NamesMatching(FullySpecified), 1)
	assert.Len(t, c.NamesMatching(Preferred), 1)
	assert.Len(t, c.NamesForLocale("en"), 2)
	assert.Contains(t, FullySpecified.CollectionMessage(), "fully specified")
	assert.Contains(t, Preferred.CollectionMessage(), "preferred")
}
