package reference_test

//go:generate mockgen -source=lister.go -destination=mocks/mocks.go -package=mocks ChildLister

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	collectionmodels "termrepo/internal/collection/models"
	collectionservice "termrepo/internal/collection/service"
	conceptmodels "termrepo/internal/concept/models"
	conceptservice "termrepo/internal/concept/service"
	"termrepo/internal/expression"
	"termrepo/internal/locale"
	mappingmodels "termrepo/internal/mapping/models"
	mappingservice "termrepo/internal/mapping/service"
	"termrepo/internal/platform/lock"
	"termrepo/internal/reference"
	"termrepo/internal/reference/mocks"
	sourcemodels "termrepo/internal/source/models"
	sourceservice "termrepo/internal/source/service"
	"termrepo/internal/store/memory"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

const user = "alice"

type EngineSuite struct {
	suite.Suite
	ctx         context.Context
	repo        *memory.Repository
	locker      lock.Locker
	sources     *sourceservice.Service
	concepts    *conceptservice.Service
	mappings    *mappingservice.Service
	collections *collectionservice.Service
	engine      *reference.Engine
	src         *sourcemodels.Source
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = memory.NewRepository()
	s.locker = lock.NewSharded()
	s.sources = sourceservice.New(s.repo, sourceservice.WithLocker(s.locker))
	s.concepts = conceptservice.New(s.repo, conceptservice.WithLocker(s.locker))
	s.mappings = mappingservice.New(s.repo, mappingservice.WithLocker(s.locker))
	s.collections = collectionservice.New(s.repo, collectionservice.WithLocker(s.locker))
	s.engine = reference.New(s.repo, reference.WithLocker(s.locker))

	src, err := s.sources.Create(s.ctx, &sourcemodels.Source{
		Entity:    versioning.Entity{Mnemonic: "S"},
		Container: versioning.Container{Name: "S", OwnerType: versioning.OwnerOrg, Owner: "O"},
	}, user)
	s.Require().NoError(err)
	s.src = src
}

func fsn(name, loc string) locale.LocalizedText {
	return locale.LocalizedText{Name: name, Locale: loc, Type: "FULLY_SPECIFIED", LocalePreferred: true}
}

func (s *EngineSuite) concept(mnemonic string, names ...locale.LocalizedText) *conceptmodels.Concept {
	if len(names) == 0 {
		names = []locale.LocalizedText{{Name: mnemonic, Locale: "en"}}
	}
	c, err := s.concepts.Create(s.ctx, &conceptmodels.Concept{
		Entity:       versioning.Entity{Mnemonic: mnemonic},
		ConceptClass: "Diagnosis",
		Datatype:     "N/A",
		ParentID:     s.src.ID,
		Names:        names,
	}, user)
	s.Require().NoError(err)
	return c
}

func (s *EngineSuite) mapping(from, to *conceptmodels.Concept) *mappingmodels.Mapping {
	toID := to.ID
	m, err := s.mappings.Create(s.ctx, &mappingmodels.Mapping{
		MapType:       "SAME-AS",
		FromConceptID: from.ID,
		ToConceptID:   &toID,
		ParentID:      s.src.ID,
	}, user)
	s.Require().NoError(err)
	return m
}

func (s *EngineSuite) collection(mnemonic, schema string) *collectionmodels.Collection {
	c, err := s.collections.Create(s.ctx, &collectionmodels.Collection{
		Entity: versioning.Entity{Mnemonic: mnemonic},
		Container: versioning.Container{
			Name: mnemonic, OwnerType: versioning.OwnerOrg, Owner: "O", CustomValidationSchema: schema,
		},
	}, user)
	s.Require().NoError(err)
	return c
}

func (s *EngineSuite) references(collectionID int64) []string {
	refs, err := s.collections.CurrentReferences(s.ctx, collectionID)
	s.Require().NoError(err)
	return refs
}

func (s *EngineSuite) TestResolve() {
	c := s.concept("C1")
	other := s.concept("C2")
	m := s.mapping(c, other)

	s.Run("same expression resolves to the same rows", func() {
		first, err := s.engine.Resolve(s.ctx, c.HeadURI())
		s.Require().NoError(err)
		second, err := s.engine.Resolve(s.ctx, c.HeadURI())
		s.Require().NoError(err)

		s.Equal(expression.KindConcept, first.Kind)
		s.Require().Len(first.Concepts, 1)
		s.Require().Len(second.Concepts, 1)
		s.Equal(first.Concepts[0].ID, second.Concepts[0].ID)
		s.True(first.Concepts[0].IsHead())
	})

	s.Run("versioned expression resolves to that version", func() {
		res, err := s.engine.Resolve(s.ctx, c.URI)
		s.Require().NoError(err)
		s.Require().Len(res.Concepts, 1)
		s.Equal(c.ID, res.Concepts[0].ID)
	})

	s.Run("mapping expression", func() {
		res, err := s.engine.Resolve(s.ctx, m.HeadURI())
		s.Require().NoError(err)
		s.Equal(expression.KindMapping, res.Kind)
		s.Empty(res.Concepts)
		s.Require().Len(res.Mappings, 1)
	})

	s.Run("malformed expression", func() {
		_, err := s.engine.Resolve(s.ctx, "/orgs/O/sources/S/")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidExpression))
	})

	s.Run("well formed but unknown", func() {
		_, err := s.engine.Resolve(s.ctx, "/orgs/O/sources/S/concepts/nope/")
		s.True(dErrors.HasCode(err, dErrors.CodeUnresolvableExpression))
		s.Equal([]string{expression.InvalidMessage}, dErrors.FieldErrors(err)["detail"])
	})
}

func (s *EngineSuite) TestAddReferencesInBulk() {
	s.Run("keeps going past an unresolvable expression", func() {
		s.SetupTest()
		c := s.concept("C1")
		col := s.collection("Coll", "")
		missing := "/orgs/O/sources/S/concepts/missing/"

		res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{c.HeadURI(), missing}, user)
		s.Require().NoError(err)
		s.Equal([]string{c.HeadURI()}, res.Expressions())
		s.Require().Len(res.Errors, 1)
		s.True(dErrors.HasCode(res.Errors[missing], dErrors.CodeUnresolvableExpression))

		s.Equal([]string{c.HeadURI()}, s.references(col.ID))
		n, err := s.collections.ConceptsCount(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Equal(1, n)

		head, err := s.collections.Get(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Equal(user, head.UpdatedBy)
	})

	s.Run("rejects an expression whose versionless form is present", func() {
		s.SetupTest()
		c := s.concept("C1")
		col := s.collection("Coll", "")
		_, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{c.HeadURI()}, user)
		s.Require().NoError(err)

		res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{c.URI}, user)
		s.Require().NoError(err)
		s.Empty(res.Added)
		s.True(dErrors.HasCode(res.Errors[c.URI], dErrors.CodeReferenceExists))
		s.Equal([]string{collectionmodels.ReferenceExistsMessage}, res.FieldErrors()[c.URI])
		s.Equal([]string{c.HeadURI()}, s.references(col.ID))
	})

	s.Run("rejects a versionless duplicate within one batch", func() {
		s.SetupTest()
		c := s.concept("C1")
		col := s.collection("Coll", "")

		res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{c.URI, c.HeadURI(), " " + c.URI + " "}, user)
		s.Require().NoError(err)
		s.Equal([]string{c.URI}, res.Expressions())
		s.True(dErrors.HasCode(res.Errors[c.HeadURI()], dErrors.CodeReferenceExists))
		s.Equal([]string{c.URI}, s.references(col.ID))
	})

	s.Run("concurrent adds of one concept accept it once", func() {
		s.SetupTest()
		c := s.concept("C1")
		col := s.collection("Coll", "")
		const writers = 8

		var wg sync.WaitGroup
		results := make(chan *reference.BulkResult, writers)
		errs := make(chan error, writers)
		for i := range writers {
			expr := c.URI
			if i%2 == 0 {
				expr = c.HeadURI()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{expr}, user)
				errs <- err
				results <- res
			}()
		}
		wg.Wait()
		close(errs)
		close(results)
		for err := range errs {
			s.Require().NoError(err)
		}

		accepted := 0
		for res := range results {
			accepted += len(res.Added)
			for _, err := range res.Errors {
				s.True(dErrors.HasCode(err, dErrors.CodeReferenceExists))
			}
		}
		s.Equal(1, accepted)
		s.Len(s.references(col.ID), 1)
		n, err := s.collections.ConceptsCount(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("adding to a version also adds to HEAD", func() {
		s.SetupTest()
		c := s.concept("C1")
		col := s.collection("Coll", "")
		v1, err := s.collections.CreateVersion(s.ctx, col.ID, collectionservice.VersionRequest{Label: "v1"}, user)
		s.Require().NoError(err)

		_, err = s.engine.AddReferencesInBulk(s.ctx, v1.ID, []string{c.HeadURI()}, user)
		s.Require().NoError(err)
		s.Equal([]string{c.HeadURI()}, s.references(v1.ID))
		s.Equal([]string{c.HeadURI()}, s.references(col.ID))

		n, err := s.collections.ConceptsCount(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("requires a user", func() {
		s.SetupTest()
		col := s.collection("Coll", "")
		_, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{"/orgs/O/sources/S/concepts/C1/"}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
	})

	s.Run("unknown collection", func() {
		s.SetupTest()
		_, err := s.engine.AddReferencesInBulk(s.ctx, 999, []string{"/orgs/O/sources/S/concepts/C1/"}, user)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestOpenMRSNameUniqueness() {
	fever := s.concept("FEVER1", fsn("fever", "en"))
	feverAgain := s.concept("FEVER2", fsn("fever", "en"))
	fievre := s.concept("FEVER3", fsn("fever", "fr"))

	s.Run("same name and locale is rejected", func() {
		col := s.collection("OMRS", versioning.SchemaOpenMRS)
		res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{fever.HeadURI()}, user)
		s.Require().NoError(err)
		s.Len(res.Added, 1)

		res, err = s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{feverAgain.HeadURI(), fievre.HeadURI()}, user)
		s.Require().NoError(err)
		s.Equal([]string{fievre.HeadURI()}, res.Expressions())
		s.Equal(
			[]string{conceptmodels.FullySpecified.CollectionMessage()},
			dErrors.FieldErrors(res.Errors[feverAgain.HeadURI()])["names"],
		)
		s.Equal([]string{fever.HeadURI(), fievre.HeadURI()}, s.references(col.ID))
	})

	s.Run("collections without the schema skip the check", func() {
		col := s.collection("Plain", "")
		res, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{fever.HeadURI(), feverAgain.HeadURI()}, user)
		s.Require().NoError(err)
		s.Len(res.Added, 2)
		s.Empty(res.Errors)
	})

	s.Run("a concept colliding with itself", func() {
		col := s.collection("Self", versioning.SchemaOpenMRS)
		twice := fever.Clone()
		twice.Names = append(twice.Names, fsn("fever", "en"))
		err := s.engine.CheckNameUniqueness(s.ctx, col.ID, twice, conceptmodels.FullySpecified)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("preferred names are checked separately", func() {
		col := s.collection("Preferred", versioning.SchemaOpenMRS)
		_, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{fever.HeadURI()}, user)
		s.Require().NoError(err)

		candidate := fievre.Clone()
		candidate.Mnemonic = "OTHER"
		candidate.Names = []locale.LocalizedText{{Name: "fever", Locale: "en", LocalePreferred: true}}
		err = s.engine.CheckNameUniqueness(s.ctx, col.ID, candidate, conceptmodels.Preferred)
		s.Equal([]string{conceptmodels.Preferred.CollectionMessage()}, dErrors.FieldErrors(err)["names"])
		s.NoError(s.engine.CheckNameUniqueness(s.ctx, col.ID, candidate, conceptmodels.FullySpecified))
	})
}

func (s *EngineSuite) TestAddExpressions() {
	s.Run("cascade adds the mappings of each concept", func() {
		s.SetupTest()
		c := s.concept("C")
		d := s.concept("D")
		x := s.mapping(c, d)
		col := s.collection("Coll", "")

		res, err := s.engine.AddExpressions(s.ctx, col.ID, reference.ExpressionInput{Expressions: []string{c.HeadURI()}}, "", user, true)
		s.Require().NoError(err)
		s.Empty(res.Errors)
		s.Equal([]string{c.HeadURI(), x.HeadURI()}, s.references(col.ID))
	})

	s.Run("cascade skips mappings already named", func() {
		s.SetupTest()
		c := s.concept("C")
		d := s.concept("D")
		x := s.mapping(c, d)
		col := s.collection("Coll", "")

		in := reference.ExpressionInput{Expressions: []string{c.HeadURI(), x.URI}}
		res, err := s.engine.AddExpressions(s.ctx, col.ID, in, "", user, true)
		s.Require().NoError(err)
		s.Empty(res.Errors)
		s.Equal([]string{c.HeadURI(), x.URI}, s.references(col.ID))
	})

	s.Run("without cascade only the named expressions are added", func() {
		s.SetupTest()
		c := s.concept("C")
		d := s.concept("D")
		s.mapping(c, d)
		col := s.collection("Coll", "")

		_, err := s.engine.AddExpressions(s.ctx, col.ID, reference.ExpressionInput{Expressions: []string{c.HeadURI()}}, "", user, false)
		s.Require().NoError(err)
		s.Equal([]string{c.HeadURI()}, s.references(col.ID))
	})

	s.Run("wildcard lists children from the store", func() {
		s.SetupTest()
		c := s.concept("C", locale.LocalizedText{Name: "Fever", Locale: "en"})
		s.concept("D", locale.LocalizedText{Name: "Cough", Locale: "en"})
		col := s.collection("Coll", "")

		in := reference.ExpressionInput{Concepts: []string{expression.All}, URI: s.src.URI, SearchTerm: "fev"}
		_, err := s.engine.AddExpressions(s.ctx, col.ID, in, "", user, false)
		s.Require().NoError(err)
		s.Equal([]string{c.HeadURI()}, s.references(col.ID))
	})
}

func (s *EngineSuite) TestAddExpressionsWithLister() {
	ctrl := gomock.NewController(s.T())
	lister := mocks.NewMockChildLister(ctrl)
	engine := reference.New(s.repo, reference.WithLocker(s.locker), reference.WithLister(lister))

	c := s.concept("C")
	d := s.concept("D")
	x := s.mapping(c, d)

	s.Run("both selections are listed", func() {
		col := s.collection("Listed", "")
		lister.EXPECT().ListChildren(gomock.Any(), reference.ChildQuery{
			HostURL: "http://terms.example", URI: s.src.URI, Kind: expression.KindConcept, SearchTerm: "c",
		}).Return([]string{c.HeadURI()}, nil)
		lister.EXPECT().ListChildren(gomock.Any(), reference.ChildQuery{
			HostURL: "http://terms.example", URI: s.src.URI, Kind: expression.KindMapping, SearchTerm: "c",
		}).Return([]string{x.HeadURI()}, nil)

		in := reference.ExpressionInput{
			Expressions: []string{d.HeadURI()},
			Concepts:    []string{expression.All},
			Mappings:    []string{expression.All},
			URI:         s.src.URI,
			SearchTerm:  "c",
		}
		res, err := engine.AddExpressions(s.ctx, col.ID, in, "http://terms.example", user, false)
		s.Require().NoError(err)
		s.Equal([]string{d.HeadURI(), c.HeadURI(), x.HeadURI()}, res.Expressions())
	})

	s.Run("explicit selections skip the lister", func() {
		col := s.collection("Explicit", "")
		in := reference.ExpressionInput{Concepts: []string{c.HeadURI()}}
		res, err := engine.AddExpressions(s.ctx, col.ID, in, "", user, false)
		s.Require().NoError(err)
		s.Len(res.Added, 1)
	})

	s.Run("lister failure aborts the request", func() {
		col := s.collection("Failing", "")
		boom := errors.New("listing unavailable")
		lister.EXPECT().ListChildren(gomock.Any(), gomock.Any()).Return(nil, boom)

		_, err := engine.AddExpressions(s.ctx, col.ID, reference.ExpressionInput{Concepts: []string{expression.All}, URI: s.src.URI}, "", user, false)
		s.ErrorIs(err, boom)
		s.Empty(s.references(col.ID))
	})
}

func (s *EngineSuite) TestDeleteReferences() {
	c := s.concept("C")
	d := s.concept("D")
	x := s.mapping(c, d)
	col := s.collection("Coll", "")
	_, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{c.HeadURI(), x.HeadURI()}, user)
	s.Require().NoError(err)
	v1, err := s.collections.CreateVersion(s.ctx, col.ID, collectionservice.VersionRequest{Label: "v1"}, user)
	s.Require().NoError(err)

	s.Run("requires a user", func() {
		_, err := s.engine.DeleteReferences(s.ctx, col.ID, []string{c.HeadURI()}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
	})

	s.Run("removes HEAD references and members", func() {
		head, err := s.concepts.Head(s.ctx, c.ID)
		s.Require().NoError(err)

		res, err := s.engine.DeleteReferences(s.ctx, v1.ID, []string{c.HeadURI(), "/orgs/O/sources/S/concepts/gone/"}, user)
		s.Require().NoError(err)
		s.Equal([]int64{head.ID}, res.ConceptIDs)
		s.Empty(res.MappingIDs)
		s.Equal(1, res.References)

		s.Equal([]string{x.HeadURI()}, s.references(col.ID))
		n, err := s.collections.ConceptsCount(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("versions keep their references", func() {
		s.Equal([]string{c.HeadURI(), x.HeadURI()}, s.references(v1.ID))
	})
}
