package reference_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termrepo/internal/expression"
	"termrepo/internal/locale"
	"termrepo/internal/reference"
	dErrors "termrepo/pkg/domain-errors"
)

func TestHTTPLister(t *testing.T) {
	var gotPath, gotQuery, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		switch r.URL.Path {
		case "/orgs/O/sources/S/concepts/":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"url": "/orgs/O/sources/S/concepts/C1/"},
				{"url": "/orgs/O/sources/S/concepts/C2/"},
			})
		case "/orgs/O/sources/broken/concepts/":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	lister := reference.NewHTTPLister("", reference.WithRetries(0))
	ctx := context.Background()

	t.Run("lists the urls of the children", func(t *testing.T) {
		got, err := lister.ListChildren(ctx, reference.ChildQuery{
			HostURL:    srv.URL,
			URI:        "/orgs/O/sources/S/",
			Kind:       expression.KindConcept,
			SearchTerm: "fever",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"/orgs/O/sources/S/concepts/C1/", "/orgs/O/sources/S/concepts/C2/"}, got)
		assert.Equal(t, "/orgs/O/sources/S/concepts/", gotPath)
		assert.Equal(t, "fever", gotQuery)
		assert.Equal(t, "0", gotLimit)
	})

	t.Run("base url is used without a host", func(t *testing.T) {
		base := reference.NewHTTPLister(srv.URL, reference.WithRetries(0))
		got, err := base.ListChildren(ctx, reference.ChildQuery{URI: "/orgs/O/sources/S", Kind: expression.KindConcept})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("missing container", func(t *testing.T) {
		_, err := lister.ListChildren(ctx, reference.ChildQuery{HostURL: srv.URL, URI: "/orgs/O/sources/X/", Kind: expression.KindMapping})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("server failure", func(t *testing.T) {
		_, err := lister.ListChildren(ctx, reference.ChildQuery{HostURL: srv.URL, URI: "/orgs/O/sources/broken/", Kind: expression.KindConcept})
		require.Error(t, err)
		assert.False(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestStoreLister() {
	fever := s.concept("C1", locale.LocalizedText{Name: "Fever", Locale: "en"})
	s.concept("C2", locale.LocalizedText{Name: "Cough", Locale: "en"})
	d := s.concept("C3")
	m := s.mapping(fever, d)
	lister := reference.NewStoreLister(s.repo)

	s.Run("source HEAD lists HEAD rows matching the term", func() {
		got, err := lister.ListChildren(s.ctx, reference.ChildQuery{URI: s.src.URI, Kind: expression.KindConcept, SearchTerm: "FEV"})
		s.Require().NoError(err)
		s.Equal([]string{fever.HeadURI()}, got)
	})

	s.Run("empty term lists everything", func() {
		got, err := lister.ListChildren(s.ctx, reference.ChildQuery{URI: s.src.URI, Kind: expression.KindMapping})
		s.Require().NoError(err)
		s.Equal([]string{m.HeadURI()}, got)
	})

	s.Run("collections list their members", func() {
		col := s.collection("Coll", "")
		_, err := s.engine.AddReferencesInBulk(s.ctx, col.ID, []string{fever.URI}, user)
		s.Require().NoError(err)

		got, err := lister.ListChildren(s.ctx, reference.ChildQuery{URI: col.URI, Kind: expression.KindConcept})
		s.Require().NoError(err)
		s.Equal([]string{fever.URI}, got)
	})

	s.Run("unknown container", func() {
		_, err := lister.ListChildren(s.ctx, reference.ChildQuery{URI: "/orgs/O/sources/nope/", Kind: expression.KindConcept})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
