package models

import (
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Mapping is one version of a directed relationship from a concept to either
// another concept or an external (source, code, name) target.
//
// Invariants:
//   - the family identity is VersionedObjectID; Mnemonic carries the same value
//   - exactly one of ToConceptID and ToSourceID is set
//   - the from concept belongs to the mapping's parent source
type Mapping struct {
	versioning.Entity
	MapType       string `json:"map_type"`
	FromConceptID int64  `json:"from_concept_id"`
	ToConceptID   *int64 `json:"to_concept_id,omitempty"`
	ToSourceID    *int64 `json:"to_source_id,omitempty"`
	ToConceptCode string `json:"to_concept_code,omitempty"`
	ToConceptName string `json:"to_concept_name,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	ParentID      int64  `json:"parent_id"`
	ParentURI     string `json:"parent_uri"`
}

func (m *Mapping) Kind() string { return "Mapping" }

func (m *Mapping) ResourceURI() string {
	return m.HeadURI() + m.VersionSegment()
}

// HeadURI returns the unversioned URI of the mapping family.
func (m *Mapping) HeadURI() string {
	return m.ParentURI + "mappings/" + m.Mnemonic + "/"
}

// Clone returns a copy that shares no pointers with m.
func (m *Mapping) Clone() *Mapping {
	out := *m
	out.Entity = m.Entity.Copy()
	if m.ToConceptID != nil {
		id := *m.ToConceptID
		out.ToConceptID = &id
	}
	if m.ToSourceID != nil {
		id := *m.ToSourceID
		out.ToSourceID = &id
	}
	return &out
}

// IsInternal reports whether the target is a concept in this repository.
func (m *Mapping) IsInternal() bool {
	return m.ToConceptID != nil
}

// Validate checks field-level rules. Rules that need the store (from concept
// ownership, duplicate triples) are checked by the service.
func (m *Mapping) Validate() error {
	var errs dErrors.Collector
	if m.ParentID == 0 {
		errs.Add("parent", "Parent resource cannot be None.")
	}
	if m.MapType == "" {
		errs.Add("map_type", "This field cannot be blank.")
	}
	if m.FromConceptID == 0 {
		errs.Add("from_concept", "This field cannot be null.")
	}
	switch {
	case m.ToConceptID != nil && m.ToSourceID != nil:
		errs.Add("__all__", "Must specify either 'to_concept' or 'to_source' & 'to_concept_code'. Cannot specify both")
	case m.ToConceptID == nil && m.ToSourceID == nil:
		errs.Add("__all__", "Must specify either 'to_concept' or 'to_source' & 'to_concept_code'")
	case m.ToSourceID != nil && m.ToConceptCode == "":
		errs.Add("to_concept_code", "This field cannot be blank when 'to_source' is set.")
	}
	return errs.Err()
}

// Endpoint is one resolved side of a mapping. Unresolvable parts are nil.
type Endpoint struct {
	ConceptID   *int64  `json:"concept_id,omitempty"`
	ConceptCode *string `json:"concept_code,omitempty"`
	ConceptName *string `json:"concept_name,omitempty"`
	SourceURI   *string `json:"source_url,omitempty"`
}

// Description is the display form of a mapping.
type Description struct {
	MapType string   `json:"map_type"`
	From    Endpoint `json:"from"`
	To      Endpoint `json:"to"`
}

// LockKey names the lock that serialises writers on this mapping family.
// New mappings have no mnemonic yet and lock their parent's mapping set.
func (m *Mapping) LockKey() string {
	if m.Mnemonic == "" {
		return "mappings:" + m.ParentURI
	}
	return "mapping:" + m.HeadURI()
}
