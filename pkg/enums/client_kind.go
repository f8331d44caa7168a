package enums

import "fmt"

// ClientKind distinguishes app-registered clients from facility-managed ones.
type ClientKind string

const (
	ClientKindRegistered ClientKind = "registered"
	ClientKindManaged    ClientKind = "managed"
)

var validClientKinds = []ClientKind{
	ClientKindRegistered,
	ClientKindManaged,
}

// String implements fmt.Stringer.
func (c ClientKind) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClientKind.
func (c ClientKind) IsValid() bool {
	for _, candidate := range validClientKinds {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseClientKind converts raw input into a ClientKind.
func ParseClientKind(value string) (ClientKind, error) {
	for _, candidate := range validClientKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client kind %q", value)
}
