package enums

import "fmt"

// StampSource records how a stamp was granted.
type StampSource string

const (
	StampSourceCodeRedeem StampSource = "code_redeem"
	StampSourceManual     StampSource = "manual"
)

var validStampSources = []StampSource{
	StampSourceCodeRedeem,
	StampSourceManual,
}

// String implements fmt.Stringer.
func (s StampSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StampSource.
func (s StampSource) IsValid() bool {
	for _, candidate := range validStampSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStampSource converts raw input into a StampSource.
func ParseStampSource(value string) (StampSource, error) {
	for _, candidate := range validStampSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stamp source %q", value)
}
