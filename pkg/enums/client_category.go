package enums

import "fmt"

// ClientCategory decides whether the individual discount applies.
type ClientCategory string

const (
	ClientCategoryFacility   ClientCategory = "facility"
	ClientCategoryIndividual ClientCategory = "individual"
)

var validClientCategories = []ClientCategory{
	ClientCategoryFacility,
	ClientCategoryIndividual,
}

// String implements fmt.Stringer.
func (c ClientCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClientCategory.
func (c ClientCategory) IsValid() bool {
	for _, candidate := range validClientCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseClientCategory converts raw input into a ClientCategory.
func ParseClientCategory(value string) (ClientCategory, error) {
	for _, candidate := range validClientCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client category %q", value)
}
