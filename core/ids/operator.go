package ids

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyID is returned when an identifier string is empty.
	ErrEmptyID = errors.New("empty identifier")
	// ErrInvalidID is returned when an identifier does not match its format.
	ErrInvalidID = errors.New("invalid identifier")
)

var operatorRE = regexp.MustCompile(`^([A-Z]{2})\*?([A-Z0-9]{3})$`)

// OperatorID identifies a charging station operator, e.g. "DE*GEF".
type OperatorID struct {
	country string
	suffix  string
}

// ParseOperatorID parses an ISO operator identifier. The '*' separator is optional.
func ParseOperatorID(s string) (OperatorID, error) {
	s = normalize(s)
	if s == "" {
		return OperatorID{}, ErrEmptyID
	}
	m := operatorRE.FindStringSubmatch(s)
	if m == nil {
		return OperatorID{}, fmt.Errorf("operator id %q: %w", s, ErrInvalidID)
	}
	return OperatorID{country: m[1], suffix: m[2]}, nil
}

// TryParseOperatorID is ParseOperatorID without the error detail.
func TryParseOperatorID(s string) (OperatorID, bool) {
	id, err := ParseOperatorID(s)
	return id, err == nil
}

// MustParseOperatorID panics on invalid input.
func MustParseOperatorID(s string) OperatorID {
	id, err := ParseOperatorID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// CountryCode returns the ISO 3166 alpha-2 part.
func (o OperatorID) CountryCode() string { return o.country }

// Suffix returns the three character operator part.
func (o OperatorID) Suffix() string { return o.suffix }

func (o OperatorID) IsZero() bool { return o.country == "" && o.suffix == "" }

func (o OperatorID) String() string {
	if o.IsZero() {
		return ""
	}
	return o.country + "*" + o.suffix
}

func (o OperatorID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *OperatorID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = OperatorID{}
		return nil
	}
	id, err := ParseOperatorID(string(b))
	if err != nil {
		return err
	}
	*o = id
	return nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
