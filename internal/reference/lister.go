package reference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/expression"
	mappingmodels "termrepo/internal/mapping/models"
	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
	pstrings "termrepo/pkg/platform/strings"
)

// ChildQuery selects the concepts or mappings listed under a container URI.
type ChildQuery struct {
	HostURL    string
	URI        string
	Kind       expression.Kind
	SearchTerm string
}

// ChildLister expands a "*" selection into child URIs.
type ChildLister interface {
	ListChildren(ctx context.Context, q ChildQuery) ([]string, error)
}

// StoreLister lists children straight from the repository. HostURL is ignored.
type StoreLister struct {
	repo store.Repository
}

func NewStoreLister(repo store.Repository) *StoreLister {
	return &StoreLister{repo: repo}
}

// ListChildren returns the URIs of the members of the source or collection at
// q.URI that match q.SearchTerm. For a source HEAD only HEAD rows are listed.
func (l *StoreLister) ListChildren(ctx context.Context, q ChildQuery) ([]string, error) {
	var out []string
	err := l.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		container, headOnly, err := findContainer(ctx, st, q.URI)
		if err != nil {
			return err
		}
		switch q.Kind {
		case expression.KindConcept:
			out, err = listConcepts(ctx, st, container, headOnly, q.SearchTerm)
		case expression.KindMapping:
			out, err = listMappings(ctx, st, container, headOnly, q.SearchTerm)
		default:
			err = dErrors.WithField(dErrors.CodeValidation, "kind", fmt.Sprintf("cannot list %q", q.Kind))
		}
		return err
	})
	return out, err
}

func findContainer(ctx context.Context, st store.Store, uri string) (store.ContainerRef, bool, error) {
	src, err := st.Sources().FindByURI(ctx, uri)
	if err == nil {
		return store.SourceRef(src.ID), src.IsHead(), nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return store.ContainerRef{}, false, err
	}
	col, err := st.Collections().FindByURI(ctx, uri)
	if err != nil {
		return store.ContainerRef{}, false, store.Translate(err, "container "+uri)
	}
	return store.CollectionRef(col.ID), false, nil
}

func listConcepts(ctx context.Context, st store.Store, c store.ContainerRef, headOnly bool, term string) ([]string, error) {
	ids, err := st.Memberships().Members(ctx, c, store.MemberConcept)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	rows, err := st.Concepts().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if headOnly && !r.IsHead() {
			continue
		}
		if conceptMatches(r, term) {
			out = append(out, r.URI)
		}
	}
	return out, nil
}

func conceptMatches(c *conceptmodels.Concept, term string) bool {
	if pstrings.ContainsFold(c.Mnemonic, term) {
		return true
	}
	for _, n := range c.Names {
		if pstrings.ContainsFold(n.Name, term) {
			return true
		}
	}
	return false
}

func listMappings(ctx context.Context, st store.Store, c store.ContainerRef, headOnly bool, term string) ([]string, error) {
	ids, err := st.Memberships().Members(ctx, c, store.MemberMapping)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	rows, err := st.Mappings().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if headOnly && !r.IsHead() {
			continue
		}
		if mappingMatches(r, term) {
			out = append(out, r.URI)
		}
	}
	return out, nil
}

func mappingMatches(m *mappingmodels.Mapping, term string) bool {
	return pstrings.ContainsFold(m.Mnemonic, term) ||
		pstrings.ContainsFold(m.MapType, term) ||
		pstrings.ContainsFold(m.ToConceptCode, term)
}

// HTTPLister lists children through the repository's HTTP API.
type HTTPLister struct {
	client *resty.Client
}

type HTTPOption func(*resty.Client)

func WithTimeout(d time.Duration) HTTPOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

func WithRetries(n int) HTTPOption {
	return func(c *resty.Client) {
		c.SetRetryCount(n)
	}
}

// NewHTTPLister builds a lister for baseURL. Queries carrying a HostURL are
// sent there instead.
func NewHTTPLister(baseURL string, opts ...HTTPOption) *HTTPLister {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(client)
	}
	return &HTTPLister{client: client}
}

type child struct {
	URL string `json:"url"`
}

// ListChildren GETs <host><uri><kind>/?q=<term>&limit=0 and returns the url
// of every element of the JSON array response.
func (l *HTTPLister) ListChildren(ctx context.Context, q ChildQuery) ([]string, error) {
	uri := q.URI
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	url := strings.TrimSuffix(q.HostURL, "/") + uri + q.Kind.String() + "/"

	var children []child
	resp, err := l.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": q.SearchTerm, "limit": "0"}).
		SetResult(&children).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", url, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusNotFound {
			return nil, dErrors.New(dErrors.CodeNotFound, "container "+q.URI+" not found")
		}
		return nil, fmt.Errorf("listing %s: unexpected status %d", url, resp.StatusCode())
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		if c.URL != "" {
			out = append(out, c.URL)
		}
	}
	return out, nil
}
