// Package locale models the multilingual names and descriptions attached to
// a concept version.
package locale

import (
	"slices"
	"time"

	"github.com/spf13/cast"
)

// UsedAs selects which slot a LocalizedText fills on a concept.
type UsedAs string

const (
	UsedAsName        UsedAs = "name"
	UsedAsDescription UsedAs = "description"
)

var (
	fullySpecifiedTypes = []string{"FULLY_SPECIFIED", "Fully Specified"}
	shortTypes          = []string{"SHORT", "Short"}
	indexTermTypes      = []string{"INDEX_TERM", "Index Term"}
)

// LocalizedText is a name or description in one locale. Once persisted it is
// owned by exactly one concept row; versions never share rows.
type LocalizedText struct {
	ID              int64     `json:"id,omitempty"`
	Name            string    `json:"name"`
	Type            string    `json:"type,omitempty"`
	Locale          string    `json:"locale"`
	LocalePreferred bool      `json:"locale_preferred"`
	ExternalID      string    `json:"external_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone returns a detached copy with no identity.
func (t LocalizedText) Clone() LocalizedText {
	t.ID = 0
	return t
}

func (t LocalizedText) IsFullySpecified() bool { return slices.Contains(fullySpecifiedTypes, t.Type) }

func (t LocalizedText) IsShort() bool { return slices.Contains(shortTypes, t.Type) }

func (t LocalizedText) IsSearchIndexTerm() bool { return slices.Contains(indexTermTypes, t.Type) }

// CloneAll clones every text in texts.
func CloneAll(texts []LocalizedText) []LocalizedText {
	if texts == nil {
		return nil
	}
	out := make([]LocalizedText, len(texts))
	for i, t := range texts {
		out[i] = t.Clone()
	}
	return out
}

// Build constructs a name or description from loosely typed input. The
// generic "type" key fills the slot-specific type unless the slot-specific
// key carries a real value.
func Build(params map[string]any, usedAs UsedAs) LocalizedText {
	t := LocalizedText{
		Locale:          cast.ToString(params["locale"]),
		LocalePreferred: cast.ToBool(params["locale_preferred"]),
		ExternalID:      cast.ToString(params["external_id"]),
	}
	switch usedAs {
	case UsedAsDescription:
		t.Name = cast.ToString(params["description"])
		if t.Name == "" {
			t.Name = cast.ToString(params["name"])
		}
		t.Type = slotType(params, "description_type", "ConceptDescription")
	default:
		t.Name = cast.ToString(params["name"])
		t.Type = slotType(params, "name_type", "ConceptName")
	}
	return t
}

func slotType(params map[string]any, key, placeholder string) string {
	if v := cast.ToString(params[key]); v != "" && v != placeholder {
		return v
	}
	return cast.ToString(params["type"])
}

// BuildAll builds a slice of texts from a slice of loose maps.
func BuildAll(items []map[string]any, usedAs UsedAs) []LocalizedText {
	out := make([]LocalizedText, 0, len(items))
	for _, item := range items {
		out = append(out, Build(item, usedAs))
	}
	return out
}
