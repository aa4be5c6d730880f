package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"termrepo/internal/concept/models"
	"termrepo/internal/locale"
	mappingmodels "termrepo/internal/mapping/models"
	mappingservice "termrepo/internal/mapping/service"
	"termrepo/internal/platform/lock"
	sourcemodels "termrepo/internal/source/models"
	sourceservice "termrepo/internal/source/service"
	"termrepo/internal/store"
	"termrepo/internal/store/memory"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

const user = "alice"

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *memory.Repository
	sources *sourceservice.Service
	service *Service
	src     *sourcemodels.Source
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = memory.NewRepository()
	locker := lock.NewSharded()
	s.sources = sourceservice.New(s.repo, sourceservice.WithLocker(locker))
	s.service = New(s.repo, WithLocker(locker))

	src, err := s.sources.Create(s.ctx, &sourcemodels.Source{
		Entity:    versioning.Entity{Mnemonic: "S"},
		Container: versioning.Container{Name: "S", OwnerType: versioning.OwnerOrg, Owner: "O"},
	}, user)
	s.Require().NoError(err)
	s.src = src
}

func (s *ServiceSuite) newConcept(mnemonic string) *models.Concept {
	return &models.Concept{
		Entity:       versioning.Entity{Mnemonic: mnemonic},
		ConceptClass: "Diagnosis",
		Datatype:     "N/A",
		ParentID:     s.src.ID,
		Names:        []locale.LocalizedText{{Name: mnemonic, Locale: "en", Type: "FULLY_SPECIFIED"}},
	}
}

func (s *ServiceSuite) create(mnemonic string) *models.Concept {
	c, err := s.service.Create(s.ctx, s.newConcept(mnemonic), user)
	s.Require().NoError(err)
	return c
}

// flags counts the latest and HEAD rows of the family containing id.
func (s *ServiceSuite) flags(id int64) (latest, heads int) {
	rows, err := s.service.Versions(s.ctx, id)
	s.Require().NoError(err)
	for _, r := range rows {
		if r.IsLatestVersion {
			latest++
		}
		if r.IsHead() {
			heads++
		}
	}
	return latest, heads
}

func (s *ServiceSuite) conceptRows() int {
	var n int
	s.Require().NoError(s.repo.Read(s.ctx, func(ctx context.Context, st store.Store) error {
		ids, err := st.Memberships().Members(ctx, store.SourceRef(s.src.ID), store.MemberConcept)
		n = len(ids)
		return err
	}))
	return n
}

func (s *ServiceSuite) TestCreate() {
	s.Run("without parent nothing is written", func() {
		c := s.newConcept("C1")
		c.ParentID = 0
		_, err := s.service.Create(s.ctx, c, user)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.FieldErrors(err), "parent")
		s.Zero(s.conceptRows())
	})

	s.Run("unknown parent", func() {
		c := s.newConcept("C1")
		c.ParentID = 999
		_, err := s.service.Create(s.ctx, c, user)
		s.Equal([]string{"Parent resource cannot be None."}, dErrors.FieldErrors(err)["parent"])
	})

	s.Run("without creator nothing is written", func() {
		_, err := s.service.Create(s.ctx, s.newConcept("C1"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
		s.Zero(s.conceptRows())
	})

	s.Run("first version and HEAD", func() {
		c := s.create("C1")
		s.True(c.IsLatestVersion)
		s.Equal(c.ID, c.VersionedObjectID)
		s.Equal(s.src.URI+"concepts/C1/"+c.Version+"/", c.URI)

		head, err := s.service.Head(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.HeadURI(), head.URI)
		s.False(head.IsLatestVersion)
		s.NotEqual(c.Names[0].ID, head.Names[0].ID)

		n, err := s.service.NumVersions(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal(2, s.conceptRows())
	})

	s.Run("parent version is swapped for its HEAD", func() {
		v1, err := s.sources.CreateVersion(s.ctx, s.src.ID, sourceservice.VersionRequest{Label: "v1"}, user)
		s.Require().NoError(err)
		c := s.newConcept("C2")
		c.ParentID = v1.ID
		got, err := s.service.Create(s.ctx, c, user)
		s.Require().NoError(err)
		s.Equal(s.src.ID, got.ParentID)
		s.Equal(s.src.URI, got.ParentURI)
	})
}

func (s *ServiceSuite) TestNewVersion() {
	c := s.create("C1")

	edited := c.Clone()
	edited.Names = append(edited.Names, locale.LocalizedText{Name: "fièvre", Locale: "fr"})
	edited.Comment = "added French"
	next, err := s.service.NewVersion(s.ctx, edited, user)
	s.Require().NoError(err)
	s.Equal("added French", next.Comment)
	s.NotEqual(c.ID, next.ID)

	latest, err := s.service.LatestVersion(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(next.ID, latest.ID)

	head, err := s.service.Head(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Len(head.Names, 2)

	first, err := s.service.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Len(first.Names, 1)
	s.False(first.IsLatestVersion)

	l, h := s.flags(c.ID)
	s.Equal(1, l)
	s.Equal(1, h)
}

func (s *ServiceSuite) TestRetirement() {
	c := s.create("C1")

	retired, err := s.service.Retire(s.ctx, c.ID, user, "")
	s.Require().NoError(err)
	s.True(retired.Retired)
	s.Equal("Concept was retired", retired.Comment)

	_, err = s.service.Retire(s.ctx, c.ID, user, "")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRetired))
	n, err := s.service.NumVersions(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(2, n)

	active, err := s.service.Unretire(s.ctx, c.ID, user, "back in use")
	s.Require().NoError(err)
	s.False(active.Retired)
	s.Equal("back in use", active.Comment)

	_, err = s.service.Unretire(s.ctx, c.ID, user, "")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyActive))

	head, err := s.service.Head(s.ctx, c.ID)
	s.Require().NoError(err)
	s.False(head.Retired)
}

func (s *ServiceSuite) TestConcurrentVersions() {
	c := s.create("C1")
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.NewVersion(s.ctx, c.Clone(), user)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	n, err := s.service.NumVersions(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(writers+1, n)
	l, h := s.flags(c.ID)
	s.Equal(1, l)
	s.Equal(1, h)
}

func (s *ServiceSuite) TestDeleteVersion() {
	c := s.create("C1")
	head, err := s.service.Head(s.ctx, c.ID)
	s.Require().NoError(err)

	err = s.service.DeleteVersion(s.ctx, head.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.Require().NoError(s.service.DeleteVersion(s.ctx, c.ID))
	_, err = s.service.Get(s.ctx, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(1, s.conceptRows())
}

func (s *ServiceSuite) TestUnidirectionalMappings() {
	mappings := mappingservice.New(s.repo)
	c := s.create("C1")
	d := s.create("C2")
	toID := d.ID
	m, err := mappings.Create(s.ctx, &mappingmodels.Mapping{
		MapType: "SAME-AS", FromConceptID: c.ID, ToConceptID: &toID, ParentID: s.src.ID,
	}, user)
	s.Require().NoError(err)

	got, err := s.service.UnidirectionalMappings(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(m.HeadURI(), got[0].URI)

	got, err = s.service.UnidirectionalMappings(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Empty(got)
}
