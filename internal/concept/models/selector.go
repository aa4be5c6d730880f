package models

import "termrepo/internal/locale"

// NameSelector picks the names subject to a per-locale uniqueness rule.
type NameSelector int

const (
	FullySpecified NameSelector = iota + 1
	Preferred
)

// Matches reports whether n is selected.
func (s NameSelector) Matches(n locale.LocalizedText) bool {
	switch s {
	case FullySpecified:
		return n.IsFullySpecified()
	case Preferred:
		return n.LocalePreferred
	}
	return false
}

func (s NameSelector) String() string {
	switch s {
	case FullySpecified:
		return "fully specified"
	case Preferred:
		return "preferred"
	}
	return "unknown"
}

// CollectionMessage is the error reported when a collection already holds a
// selected name in the same locale.
func (s NameSelector) CollectionMessage() string {
	switch s {
	case FullySpecified:
		return "Concept fully specified name must be unique for same collection and locale."
	case Preferred:
		return "Concept preferred name must be unique for same collection and locale."
	}
	return "Concept name must be unique for same collection and locale."
}
