package models

import (
	"fmt"
	"sort"

	"termrepo/internal/locale"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Concept is one version of a clinical concept inside a source.
//
// Invariants:
//   - (ParentID, Mnemonic, Version) is unique
//   - Names and Descriptions are owned by this row; clones never share them
//   - the row is a member of its parent source
type Concept struct {
	versioning.Entity
	ConceptClass string                 `json:"concept_class"`
	Datatype     string                 `json:"datatype"`
	ExternalID   string                 `json:"external_id,omitempty"`
	Names        []locale.LocalizedText `json:"names"`
	Descriptions []locale.LocalizedText `json:"descriptions,omitempty"`
	ParentID     int64                  `json:"parent_id"`
	ParentURI    string                 `json:"parent_uri"`

	// ParentSchema is the custom validation schema of the parent source.
	ParentSchema string `json:"-"`
}

func (c *Concept) Kind() string { return "Concept" }

func (c *Concept) ResourceURI() string {
	return c.HeadURI() + c.VersionSegment()
}

// HeadURI returns the unversioned URI of the concept family.
func (c *Concept) HeadURI() string {
	return c.ParentURI + "concepts/" + c.Mnemonic + "/"
}

// Clone deep-copies c. Names and descriptions are detached copies with no
// identity, so edits to the clone never reach the rows of c.
func (c *Concept) Clone() *Concept {
	out := *c
	out.Entity = c.Entity.Copy()
	out.Names = locale.CloneAll(c.Names)
	out.Descriptions = locale.CloneAll(c.Descriptions)
	return &out
}

// Validate checks field-level rules, including the OpenMRS name rules when
// the parent source declares that schema.
func (c *Concept) Validate() error {
	var errs dErrors.Collector
	versioning.CheckMnemonic(&errs, c.Mnemonic)
	if c.ParentID == 0 {
		errs.Add("parent", "Parent resource cannot be None.")
	}
	if c.ConceptClass == "" {
		errs.Add("concept_class", "This field cannot be blank.")
	}
	if c.Datatype == "" {
		errs.Add("datatype", "This field cannot be blank.")
	}
	if len(c.Names) == 0 {
		errs.Add("names", "A concept must have at least one name.")
	}
	for i, n := range c.Names {
		if n.Name == "" || n.Locale == "" {
			errs.Add("names", fmt.Sprintf("Name %d requires both name and locale.", i))
		}
	}
	for i, d := range c.Descriptions {
		if d.Name == "" || d.Locale == "" {
			errs.Add("descriptions", fmt.Sprintf("Description %d requires both description and locale.", i))
		}
	}
	if c.ParentSchema == versioning.SchemaOpenMRS {
		c.checkOpenMRSNames(&errs)
	}
	return errs.Err()
}

func (c *Concept) checkOpenMRSNames(errs *dErrors.Collector) {
	for _, sel := range []NameSelector{FullySpecified, Preferred} {
		seen := map[string]bool{}
		for _, n := range c.Names {
			if !sel.Matches(n) {
				continue
			}
			if seen[n.Locale] {
				errs.Add("names", fmt.Sprintf("A concept may not have more than one %s name in locale %q.", sel, n.Locale))
				break
			}
			seen[n.Locale] = true
		}
	}
}

// PreferredLocale picks the display name: locale-preferred names if any,
// otherwise all names; the newest one wins, ties keep the earlier entry.
func (c *Concept) PreferredLocale() *locale.LocalizedText {
	candidates := make([]locale.LocalizedText, 0, len(c.Names))
	for _, n := range c.Names {
		if n.LocalePreferred {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, c.Names...)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	best := candidates[0]
	return &best
}

// DisplayName is the name of the preferred locale, or "".
func (c *Concept) DisplayName() string {
	if p := c.PreferredLocale(); p != nil {
		return p.Name
	}
	return ""
}

// DisplayLocale is the locale of the preferred locale, or "".
func (c *Concept) DisplayLocale() string {
	if p := c.PreferredLocale(); p != nil {
		return p.Locale
	}
	return ""
}

// NamesForLocale returns the names in loc, in stored order.
func (c *Concept) NamesForLocale(loc string) []locale.LocalizedText {
	var out []locale.LocalizedText
	for _, n := range c.Names {
		if n.Locale == loc {
			out = append(out, n)
		}
	}
	return out
}

// NamesMatching returns the names selected by sel.
func (c *Concept) NamesMatching(sel NameSelector) []locale.LocalizedText {
	var out []locale.LocalizedText
	for _, n := range c.Names {
		if sel.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// LockKey names the lock that serialises writers on this concept family.
func (c *Concept) LockKey() string {
	return "concept:" + c.HeadURI()
}
