package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/locale"
	mappingmodels "termrepo/internal/mapping/models"
	sourcemodels "termrepo/internal/source/models"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.repo = NewRepository()
	s.ctx = context.Background()
}

func (s *RepositorySuite) tx(fn func(st store.Store) error) error {
	return s.repo.RunInTx(s.ctx, func(_ context.Context, st store.Store) error { return fn(st) })
}

func (s *RepositorySuite) read(fn func(st store.Store) error) {
	s.Require().NoError(s.repo.Read(s.ctx, func(_ context.Context, st store.Store) error { return fn(st) }))
}

func newSource(mnemonic, version string) *sourcemodels.Source {
	return &sourcemodels.Source{
		Entity:    versioning.Entity{Mnemonic: mnemonic, Version: version},
		Container: versioning.Container{Name: mnemonic, OwnerType: versioning.OwnerOrg, Owner: "O"},
	}
}

func (s *RepositorySuite) seedSource() *sourcemodels.Source {
	src := newSource("S", versioning.HEAD)
	s.Require().NoError(s.tx(func(st store.Store) error { return st.Sources().Insert(s.ctx, src) }))
	return src
}

func (s *RepositorySuite) newConcept(parent int64, mnemonic, version string) *conceptmodels.Concept {
	return &conceptmodels.Concept{
		Entity:       versioning.Entity{Mnemonic: mnemonic, Version: version, URI: "/orgs/O/sources/S/concepts/" + mnemonic + "/"},
		ConceptClass: "Diagnosis",
		Datatype:     "N/A",
		ParentID:     parent,
		Names:        []locale.LocalizedText{{Name: mnemonic, Locale: "en"}},
	}
}

func (s *RepositorySuite) TestTransactions() {
	s.Run("commits on success", func() {
		src := s.seedSource()
		s.read(func(st store.Store) error {
			got, err := st.Sources().Get(s.ctx, src.ID)
			s.Require().NoError(err)
			s.Equal("S", got.Mnemonic)
			return nil
		})
	})

	s.Run("discards every write on failure", func() {
		s.SetupTest()
		boom := errors.New("boom")
		err := s.tx(func(st store.Store) error {
			s.Require().NoError(st.Sources().Insert(s.ctx, newSource("X", versioning.HEAD)))
			return boom
		})
		s.Require().ErrorIs(err, boom)
		s.read(func(st store.Store) error {
			rows, err := st.Sources().Family(s.ctx, versioning.OwnerOrg, "O", "X")
			s.Require().NoError(err)
			s.Empty(rows)
			return nil
		})
	})

	s.Run("cancelled context is a timeout", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.repo.RunInTx(ctx, func(context.Context, store.Store) error { return nil })
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("read is read only", func() {
		err := s.repo.Read(s.ctx, func(ctx context.Context, st store.Store) error {
			return st.Sources().Insert(ctx, newSource("Y", versioning.HEAD))
		})
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("honours the configured timeout", func() {
		repo := NewRepository(WithTxTimeout(time.Millisecond))
		err := repo.RunInTx(s.ctx, func(ctx context.Context, _ store.Store) error {
			<-ctx.Done()
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *RepositorySuite) TestUniqueness() {
	src := s.seedSource()

	s.Run("source version is unique per owner", func() {
		err := s.tx(func(st store.Store) error { return st.Sources().Insert(s.ctx, newSource("S", versioning.HEAD)) })
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("concept version is unique per parent", func() {
		s.Require().NoError(s.tx(func(st store.Store) error {
			return st.Concepts().Insert(s.ctx, s.newConcept(src.ID, "C", "1"))
		}))
		err := s.tx(func(st store.Store) error {
			return st.Concepts().Insert(s.ctx, s.newConcept(src.ID, "C", "1"))
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("reference expression is unique per collection", func() {
		col := &collectionmodels.Collection{
			Entity:    versioning.Entity{Mnemonic: "C", Version: versioning.HEAD},
			Container: versioning.Container{Name: "C", OwnerType: versioning.OwnerOrg, Owner: "O"},
		}
		now := time.Now()
		err := s.tx(func(st store.Store) error {
			if err := st.Collections().Insert(s.ctx, col); err != nil {
				return err
			}
			if err := st.References().Insert(s.ctx, collectionmodels.NewReference("/a/b/c/d/e/f/", col.ID, now)); err != nil {
				return err
			}
			return st.References().Insert(s.ctx, collectionmodels.NewReference("/a/b/c/d/e/f/", col.ID, now))
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *RepositorySuite) TestConceptLocales() {
	src := s.seedSource()
	c := s.newConcept(src.ID, "C", "1")
	s.Require().NoError(s.tx(func(st store.Store) error { return st.Concepts().Insert(s.ctx, c) }))

	s.NotZero(c.Names[0].ID)
	s.False(c.Names[0].CreatedAt.IsZero())

	c.Names[0].Name = "mutated after save"
	s.read(func(st store.Store) error {
		got, err := st.Concepts().Get(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("C", got.Names[0].Name)

		byURI, err := st.Concepts().FindByURI(s.ctx, "/orgs/O/sources/S/concepts/C/")
		s.Require().NoError(err)
		s.Len(byURI, 1)
		return nil
	})
}

func (s *RepositorySuite) TestMembershipsAndCascade() {
	src := s.seedSource()
	c := s.newConcept(src.ID, "C", versioning.HEAD)
	target := s.newConcept(src.ID, "T", versioning.HEAD)
	m := &mappingmodels.Mapping{
		Entity:      versioning.Entity{Mnemonic: "1", Version: versioning.HEAD},
		MapType:     "SAME-AS",
		ParentID:    src.ID,
		ToConceptID: new(int64),
	}

	s.Require().NoError(s.tx(func(st store.Store) error {
		if err := st.Concepts().Insert(s.ctx, c); err != nil {
			return err
		}
		if err := st.Concepts().Insert(s.ctx, target); err != nil {
			return err
		}
		m.FromConceptID = c.ID
		*m.ToConceptID = target.ID
		if err := st.Mappings().Insert(s.ctx, m); err != nil {
			return err
		}
		ref := store.SourceRef(src.ID)
		if err := st.Memberships().Add(s.ctx, ref, store.MemberConcept, c.ID, target.ID); err != nil {
			return err
		}
		return st.Memberships().Add(s.ctx, ref, store.MemberMapping, m.ID)
	}))

	s.read(func(st store.Store) error {
		heads, err := st.Mappings().HeadsFrom(s.ctx, src.ID, []int64{c.ID})
		s.Require().NoError(err)
		s.Len(heads, 1)

		containers, err := st.Memberships().ContainersOf(s.ctx, store.MemberConcept, c.ID)
		s.Require().NoError(err)
		s.Equal([]store.ContainerRef{store.SourceRef(src.ID)}, containers)
		return nil
	})

	s.Run("copy seeds another container", func() {
		s.Require().NoError(s.tx(func(st store.Store) error {
			return st.Memberships().Copy(s.ctx, store.SourceRef(src.ID), store.SourceRef(99))
		}))
		s.read(func(st store.Store) error {
			ids, err := st.Memberships().Members(s.ctx, store.SourceRef(99), store.MemberConcept)
			s.Require().NoError(err)
			s.Equal([]int64{c.ID, target.ID}, ids)
			return nil
		})
	})

	s.Run("deleting a target concept clears the mapping target", func() {
		s.Require().NoError(s.tx(func(st store.Store) error { return st.Concepts().Delete(s.ctx, target.ID) }))
		s.read(func(st store.Store) error {
			got, err := st.Mappings().Get(s.ctx, m.ID)
			s.Require().NoError(err)
			s.Nil(got.ToConceptID)
			return nil
		})
	})

	s.Run("deleting the from concept cascades to its mappings", func() {
		s.Require().NoError(s.tx(func(st store.Store) error { return st.Concepts().Delete(s.ctx, c.ID) }))
		s.read(func(st store.Store) error {
			_, err := st.Mappings().Get(s.ctx, m.ID)
			s.Require().ErrorIs(err, sentinel.ErrNotFound)
			ids, err := st.Memberships().Members(s.ctx, store.SourceRef(src.ID), store.MemberConcept)
			s.Require().NoError(err)
			s.Empty(ids)
			return nil
		})
	})
}

func (s *RepositorySuite) TestReferences() {
	col := &collectionmodels.Collection{
		Entity:    versioning.Entity{Mnemonic: "C", Version: versioning.HEAD},
		Container: versioning.Container{Name: "C", OwnerType: versioning.OwnerOrg, Owner: "O"},
	}
	now := time.Now()
	exprs := []string{"/a/b/c/d/e/1/", "/a/b/c/d/e/2/", "/a/b/c/d/e/3/"}
	s.Require().NoError(s.tx(func(st store.Store) error {
		if err := st.Collections().Insert(s.ctx, col); err != nil {
			return err
		}
		for _, e := range exprs {
			if err := st.References().Insert(s.ctx, collectionmodels.NewReference(e, col.ID, now)); err != nil {
				return err
			}
		}
		return nil
	}))

	s.read(func(st store.Store) error {
		refs, err := st.References().ListByCollection(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Require().Len(refs, 3)
		for i, r := range refs {
			s.Equal(exprs[i], r.Expression)
		}
		return nil
	})

	s.Require().NoError(s.tx(func(st store.Store) error {
		n, err := st.References().DeleteByExpressions(s.ctx, col.ID, exprs[:2])
		s.Equal(2, n)
		return err
	}))

	s.Require().NoError(s.tx(func(st store.Store) error { return st.Collections().Delete(s.ctx, col.ID) }))
	s.read(func(st store.Store) error {
		refs, err := st.References().ListByCollection(s.ctx, col.ID)
		s.Require().NoError(err)
		s.Empty(refs)
		return nil
	})
}
