// Package expression parses the slash-delimited URIs that identify concepts
// and mappings inside a collection reference.
//
// An unversioned resource expression has UnversionedDepth non-empty segments:
//
//	/orgs/CIEL/sources/CIEL/concepts/1234/
//
// and a versioned one has one more, the trailing version label:
//
//	/orgs/CIEL/sources/CIEL/concepts/1234/v2/
package expression

import (
	"slices"
	"strings"

	dErrors "termrepo/pkg/domain-errors"
	pstrings "termrepo/pkg/platform/strings"
)

const (
	UnversionedDepth = 6
	VersionedDepth   = 7

	// All selects every child of a listing in place of explicit expressions.
	All = "*"

	// InvalidMessage is reported for expressions of the wrong shape.
	InvalidMessage = "Expression specified is not valid."
)

// Kind tags the resource an expression points at.
type Kind string

const (
	KindConcept Kind = "concepts"
	KindMapping Kind = "mappings"
)

func (k Kind) String() string { return string(k) }

// Validate checks the segment count of expr.
func Validate(expr string) error {
	n := len(pstrings.PathSegments(expr))
	if n != UnversionedDepth && n != VersionedDepth {
		return dErrors.WithField(dErrors.CodeInvalidExpression, "detail", InvalidMessage)
	}
	return nil
}

// IsVersioned reports whether expr carries a trailing version segment.
func IsVersioned(expr string) bool {
	return len(pstrings.PathSegments(expr)) == VersionedDepth
}

// WithoutVersion strips the version segment of a versioned expression.
// Unversioned expressions are returned in canonical /a/b/.../ form.
func WithoutVersion(expr string) string {
	parts := pstrings.PathSegments(expr)
	if len(parts) == VersionedDepth {
		parts = parts[:UnversionedDepth]
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/") + "/"
}

// Version returns the version label of a versioned expression, or "".
func Version(expr string) string {
	parts := pstrings.PathSegments(expr)
	if len(parts) == VersionedDepth {
		return parts[VersionedDepth-1]
	}
	return ""
}

// IsConcept reports whether expr addresses a concept.
func IsConcept(expr string) bool {
	return strings.Contains(expr, "/"+string(KindConcept)+"/")
}

// IsMapping reports whether expr addresses a mapping.
func IsMapping(expr string) bool {
	return strings.Contains(expr, "/"+string(KindMapping)+"/")
}

// KindOf returns the reference type of expr.
func KindOf(expr string) (Kind, bool) {
	switch {
	case IsConcept(expr):
		return KindConcept, true
	case IsMapping(expr):
		return KindMapping, true
	}
	return "", false
}

// Split partitions exprs into concept and mapping expressions. Expressions of
// neither kind are dropped.
func Split(exprs []string) (concepts, mappings []string) {
	for _, e := range exprs {
		switch k, _ := KindOf(e); k {
		case KindConcept:
			concepts = append(concepts, e)
		case KindMapping:
			mappings = append(mappings, e)
		}
	}
	return concepts, mappings
}

// IsAll reports whether a selection is the single wildcard symbol.
func IsAll(selection []string) bool {
	return len(selection) == 1 && selection[0] == All
}

// Versionless maps every expression in exprs to its versionless form.
func Versionless(exprs []string) []string {
	out := make([]string, 0, len(exprs))
	for _, e := range exprs {
		v := WithoutVersion(e)
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
