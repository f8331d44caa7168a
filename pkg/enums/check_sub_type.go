package enums

import "fmt"

// CheckSubType records how a check payment is being delivered.
type CheckSubType string

const (
	CheckSubTypeWillMail      CheckSubType = "will_mail"
	CheckSubTypeAlreadyMailed CheckSubType = "already_mailed"
	CheckSubTypeHandDelivered CheckSubType = "hand_delivered"
)

var validCheckSubTypes = []CheckSubType{
	CheckSubTypeWillMail,
	CheckSubTypeAlreadyMailed,
	CheckSubTypeHandDelivered,
}

// String implements fmt.Stringer.
func (c CheckSubType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckSubType.
func (c CheckSubType) IsValid() bool {
	for _, candidate := range validCheckSubTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckSubType converts raw input into a CheckSubType.
func ParseCheckSubType(value string) (CheckSubType, error) {
	for _, candidate := range validCheckSubTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid check sub type %q", value)
}
