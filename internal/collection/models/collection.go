package models

import (
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Collection is a versioned container that aggregates concepts and mappings
// from any source through references.
type Collection struct {
	versioning.Entity
	versioning.Container
	CollectionType  string `json:"collection_type,omitempty"`
	PreferredSource string `json:"preferred_source,omitempty"`
}

func (c *Collection) Kind() string { return "Collection" }

func (c *Collection) ResourceURI() string {
	return c.HeadURI() + c.VersionSegment()
}

// HeadURI returns the unversioned URI of the collection family.
func (c *Collection) HeadURI() string {
	return c.BaseURI("collections", c.Mnemonic)
}

// Clone returns a copy that shares no maps with c.
func (c *Collection) Clone() *Collection {
	out := *c
	out.Entity = c.Entity.Copy()
	return &out
}

// Validate checks field-level rules.
func (c *Collection) Validate() error {
	var errs dErrors.Collector
	versioning.CheckMnemonic(&errs, c.Mnemonic)
	c.CheckContainer(&errs)
	return errs.Err()
}

// LockKey names the lock that serialises writers on this collection family,
// reference changes included.
func (c *Collection) LockKey() string {
	return "collection:" + c.HeadURI()
}
