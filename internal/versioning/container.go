package versioning

import (
	"fmt"
	"regexp"

	dErrors "termrepo/pkg/domain-errors"
)

// OwnerType is the first URI segment of a container.
type OwnerType string

const (
	OwnerOrg  OwnerType = "orgs"
	OwnerUser OwnerType = "users"
)

// SchemaOpenMRS enables the OpenMRS name rules on a container.
const SchemaOpenMRS = "OpenMRS"

var mnemonicPattern = regexp.MustCompile(`^[a-zA-Z0-9\-\.\_\@]+$`)

// ValidMnemonic reports whether s is usable as a URI segment.
func ValidMnemonic(s string) bool {
	return mnemonicPattern.MatchString(s)
}

// CheckMnemonic records a mnemonic error into c.
func CheckMnemonic(c *dErrors.Collector, mnemonic string) {
	switch {
	case mnemonic == "":
		c.Add("mnemonic", "This field cannot be blank.")
	case !ValidMnemonic(mnemonic):
		c.Add("mnemonic", "Enter a valid value consisting of letters, numbers, '-', '.', '_' or '@'.")
	}
}

// Container holds the fields shared by sources and collections.
type Container struct {
	Name                   string    `json:"name"`
	FullName               string    `json:"full_name,omitempty"`
	OwnerType              OwnerType `json:"owner_type"`
	Owner                  string    `json:"owner"`
	DefaultLocale          string    `json:"default_locale"`
	CustomValidationSchema string    `json:"custom_validation_schema,omitempty"`
}

// IsOpenMRS reports whether the OpenMRS name rules apply.
func (c *Container) IsOpenMRS() bool {
	return c.CustomValidationSchema == SchemaOpenMRS
}

// BaseURI returns /<ownerType>/<owner>/<segment>/<mnemonic>/.
func (c *Container) BaseURI(segment, mnemonic string) string {
	return fmt.Sprintf("/%s/%s/%s/%s/", c.OwnerType, c.Owner, segment, mnemonic)
}

// CheckContainer records container field errors into errs.
func (c *Container) CheckContainer(errs *dErrors.Collector) {
	if c.Name == "" {
		errs.Add("name", "This field cannot be blank.")
	}
	if c.Owner == "" {
		errs.Add("parent", "Parent resource cannot be None.")
	}
	if c.OwnerType != OwnerOrg && c.OwnerType != OwnerUser {
		errs.Add("owner_type", fmt.Sprintf("Owner type must be %q or %q.", OwnerOrg, OwnerUser))
	}
	if c.CustomValidationSchema != "" && !c.IsOpenMRS() {
		errs.Add("custom_validation_schema", "Unknown custom validation schema.")
	}
}
