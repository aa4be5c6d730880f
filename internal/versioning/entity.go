package versioning

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	dErrors "termrepo/pkg/domain-errors"
)

const (
	// HEAD labels the mutable live row of a version family.
	HEAD = "HEAD"
	// TEMP labels a row inserted but not yet stamped with its version.
	TEMP = "--TEMP--"
)

// AccessType controls anonymous visibility of a resource.
type AccessType string

const (
	AccessView AccessType = "View"
	AccessEdit AccessType = "Edit"
	AccessNone AccessType = "None"
)

// IsValid reports whether a is a known access type.
func (a AccessType) IsValid() bool {
	switch a {
	case AccessView, AccessEdit, AccessNone:
		return true
	}
	return false
}

// Entity holds the fields every versioned row carries.
//
// Invariants:
//   - exactly one row per family has Version == HEAD
//   - at most one non-HEAD row per family has IsLatestVersion set
//   - Version is never TEMP once a mutation commits
type Entity struct {
	ID                int64          `json:"id"`
	Mnemonic          string         `json:"mnemonic"`
	Version           string         `json:"version"`
	VersionedObjectID int64          `json:"versioned_object_id"`
	URI               string         `json:"uri"`
	IsLatestVersion   bool           `json:"is_latest_version"`
	Retired           bool           `json:"retired"`
	Released          *bool          `json:"released,omitempty"`
	PublicAccess      AccessType     `json:"public_access"`
	Extras            map[string]any `json:"extras,omitempty"`
	Comment           string         `json:"comment,omitempty"`
	CreatedBy         string         `json:"created_by"`
	UpdatedBy         string         `json:"updated_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Base exposes the shared fields to the lifecycle.
func (e *Entity) Base() *Entity { return e }

func (e *Entity) IsHead() bool { return e.Version == HEAD }

// VersionSegment is the URI suffix for this row: empty for HEAD.
func (e *Entity) VersionSegment() string {
	if e.Version == "" || e.IsHead() {
		return ""
	}
	return e.Version + "/"
}

// Copy returns a copy whose maps and pointers are not shared with e.
func (e Entity) Copy() Entity {
	out := e
	out.Extras = maps.Clone(e.Extras)
	if e.Released != nil {
		r := *e.Released
		out.Released = &r
	}
	return out
}

// Detach resets the identity of a cloned row so it can be inserted as a new version.
func (e *Entity) Detach() {
	e.ID = 0
	e.Version = TEMP
	e.IsLatestVersion = false
	e.Comment = ""
}

// stamp assigns the identity-derived version label.
func (e *Entity) stamp(label string) {
	if label == "" {
		label = strconv.FormatInt(e.ID, 10)
	}
	e.Version = label
}

// CheckLabel rejects version labels that collide with the reserved ones.
// An empty label is valid and means "use the row id".
func CheckLabel(label string) error {
	switch {
	case label == HEAD || label == TEMP:
		return dErrors.WithField(dErrors.CodeValidation, "version", fmt.Sprintf("Version label %q is reserved.", label))
	case strings.Contains(label, "/"):
		return dErrors.WithField(dErrors.CodeValidation, "version", "Version label cannot contain '/'.")
	}
	return nil
}

// CanRetire checks the retire transition.
func (e *Entity) CanRetire(kind string) error {
	if e.Retired {
		return dErrors.New(dErrors.CodeAlreadyRetired, kind+" is already retired")
	}
	return nil
}

// CanUnretire checks the unretire transition.
func (e *Entity) CanUnretire(kind string) error {
	if !e.Retired {
		return dErrors.New(dErrors.CodeAlreadyActive, kind+" is already not retired")
	}
	return nil
}

// ApplyRetirement flips the retired flag and records the audit comment.
// Call CanRetire or CanUnretire first.
func (e *Entity) ApplyRetirement(retired bool, comment string) {
	e.Retired = retired
	e.Comment = comment
}

// SetExtra sets a single extras key.
func (e *Entity) SetExtra(key string, value any) {
	if e.Extras == nil {
		e.Extras = make(map[string]any)
	}
	e.Extras[key] = value
}
