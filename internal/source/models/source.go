package models

import (
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Source is a versioned container that owns concepts and mappings.
//
// Invariants:
//   - (owner type, owner, mnemonic, version) is unique
//   - concepts and mappings always point at the HEAD row as their parent
type Source struct {
	versioning.Entity
	versioning.Container
	SourceType string `json:"source_type,omitempty"`
}

func (s *Source) Kind() string { return "Source" }

// ResourceURI returns the URI of this row, version-qualified for non-HEAD rows.
func (s *Source) ResourceURI() string {
	return s.HeadURI() + s.VersionSegment()
}

// HeadURI returns the unversioned URI of the source family.
func (s *Source) HeadURI() string {
	return s.BaseURI("sources", s.Mnemonic)
}

// Clone returns a copy that shares no maps with s.
func (s *Source) Clone() *Source {
	c := *s
	c.Entity = s.Entity.Copy()
	return &c
}

// Validate checks field-level rules.
func (s *Source) Validate() error {
	var errs dErrors.Collector
	versioning.CheckMnemonic(&errs, s.Mnemonic)
	s.CheckContainer(&errs)
	return errs.Err()
}

// LockKey names the lock that serialises writers on this source family.
func (s *Source) LockKey() string {
	return "source:" + s.HeadURI()
}
