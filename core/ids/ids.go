// Package ids implements the structured identifiers of the charging
// infrastructure hierarchy.
//
// All identifiers below the operator level are prefixed with their operator
// identifier followed by a kind letter: P (pool), S (station) and E (EVSE).
// For example "DE*GEF*P1234", "DE*GEF*S1234*A" and "DE*GEF*E1234*A*1".
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultGeneratedLength is the suffix length of content-addressed identifiers.
const DefaultGeneratedLength = 12

var (
	poolRE    = childRE('P')
	stationRE = childRE('S')
	evseRE    = childRE('E')
)

func childRE(kind byte) *regexp.Regexp {
	return regexp.MustCompile(`^([A-Z]{2}\*?[A-Z0-9]{3})\*?` + string(kind) + `([A-Z0-9][A-Z0-9*]{0,50})$`)
}

// child holds the parts shared by all operator-prefixed identifiers.
type child struct {
	operator OperatorID
	suffix   string
}

func parseChild(s string, re *regexp.Regexp, kind string) (child, error) {
	s = normalize(s)
	if s == "" {
		return child{}, ErrEmptyID
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return child{}, fmt.Errorf("%s id %q: %w", kind, s, ErrInvalidID)
	}
	op, err := ParseOperatorID(m[1])
	if err != nil {
		return child{}, fmt.Errorf("%s id %q: %w", kind, s, err)
	}
	return child{operator: op, suffix: m[2]}, nil
}

func (c child) format(kind byte) string {
	if c.suffix == "" {
		return ""
	}
	return c.operator.String() + "*" + string(kind) + c.suffix
}

// PoolID identifies a charging pool.
type PoolID struct{ c child }

// StationID identifies a charging station.
type StationID struct{ c child }

// EVSEID identifies an EVSE.
type EVSEID struct{ c child }

// ParsePoolID parses a pool identifier.
func ParsePoolID(s string) (PoolID, error) {
	c, err := parseChild(s, poolRE, "pool")
	return PoolID{c}, err
}

// ParseStationID parses a station identifier.
func ParseStationID(s string) (StationID, error) {
	c, err := parseChild(s, stationRE, "station")
	return StationID{c}, err
}

// ParseEVSEID parses an EVSE identifier.
func ParseEVSEID(s string) (EVSEID, error) {
	c, err := parseChild(s, evseRE, "evse")
	return EVSEID{c}, err
}

func TryParsePoolID(s string) (PoolID, bool) {
	id, err := ParsePoolID(s)
	return id, err == nil
}

func TryParseStationID(s string) (StationID, bool) {
	id, err := ParseStationID(s)
	return id, err == nil
}

func TryParseEVSEID(s string) (EVSEID, bool) {
	id, err := ParseEVSEID(s)
	return id, err == nil
}

func MustParsePoolID(s string) PoolID       { return must(ParsePoolID(s)) }
func MustParseStationID(s string) StationID { return must(ParseStationID(s)) }
func MustParseEVSEID(s string) EVSEID       { return must(ParseEVSEID(s)) }

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// NewPoolID builds a pool id from an operator and a suffix.
func NewPoolID(op OperatorID, suffix string) (PoolID, error) {
	return ParsePoolID(op.String() + "*P" + suffix)
}

// NewStationID builds a station id from an operator and a suffix.
func NewStationID(op OperatorID, suffix string) (StationID, error) {
	return ParseStationID(op.String() + "*S" + suffix)
}

// NewEVSEID derives the n-th EVSE id of a station: "<op>*E<station suffix>*<n>".
// It fails when the result exceeds the EVSE id length.
func NewEVSEID(station StationID, n int) (EVSEID, error) {
	if n < 0 {
		return EVSEID{}, fmt.Errorf("evse number %d: %w", n, ErrInvalidID)
	}
	if station.IsZero() {
		return EVSEID{}, ErrEmptyID
	}
	return ParseEVSEID(station.c.operator.String() + "*E" + station.c.suffix + "*" + strconv.Itoa(n))
}

func MustNewEVSEID(station StationID, n int) EVSEID { return must(NewEVSEID(station, n)) }

// GeneratePoolID derives a content-addressed pool id from the given parts,
// typically the address and geo coordinate of the pool.
func GeneratePoolID(op OperatorID, parts ...string) PoolID {
	return PoolID{child{operator: op, suffix: digest(DefaultGeneratedLength, parts)}}
}

// GenerateStationID derives a content-addressed station id from the given parts.
func GenerateStationID(op OperatorID, parts ...string) StationID {
	return StationID{child{operator: op, suffix: digest(DefaultGeneratedLength, parts)}}
}

// RandomPoolID returns a pool id with a random suffix.
func RandomPoolID(op OperatorID) PoolID {
	return PoolID{child{operator: op, suffix: randomSuffix()}}
}

// RandomStationID returns a station id with a random suffix.
func RandomStationID(op OperatorID) StationID {
	return StationID{child{operator: op, suffix: randomSuffix()}}
}

func digest(length int, parts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))
	if length <= 0 || length > len(h) {
		length = len(h)
	}
	return h[:length]
}

func randomSuffix() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:]))[:DefaultGeneratedLength]
}

func (p PoolID) OperatorID() OperatorID { return p.c.operator }
func (p PoolID) Suffix() string         { return p.c.suffix }
func (p PoolID) IsZero() bool           { return p.c.suffix == "" }
func (p PoolID) String() string         { return p.c.format('P') }

func (s StationID) OperatorID() OperatorID { return s.c.operator }
func (s StationID) Suffix() string         { return s.c.suffix }
func (s StationID) IsZero() bool           { return s.c.suffix == "" }
func (s StationID) String() string         { return s.c.format('S') }

func (e EVSEID) OperatorID() OperatorID { return e.c.operator }
func (e EVSEID) Suffix() string         { return e.c.suffix }
func (e EVSEID) IsZero() bool           { return e.c.suffix == "" }
func (e EVSEID) String() string         { return e.c.format('E') }

func (p PoolID) MarshalText() ([]byte, error)    { return []byte(p.String()), nil }
func (s StationID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (e EVSEID) MarshalText() ([]byte, error)    { return []byte(e.String()), nil }

func (p *PoolID) UnmarshalText(b []byte) error    { return unmarshal(b, p, ParsePoolID) }
func (s *StationID) UnmarshalText(b []byte) error { return unmarshal(b, s, ParseStationID) }
func (e *EVSEID) UnmarshalText(b []byte) error    { return unmarshal(b, e, ParseEVSEID) }

func unmarshal[T any](b []byte, dst *T, parse func(string) (T, error)) error {
	if len(b) == 0 {
		var zero T
		*dst = zero
		return nil
	}
	v, err := parse(string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// MatchesOperator reports whether the child id carries the operator prefix.
func MatchesOperator(op OperatorID, id interface{ OperatorID() OperatorID }) bool {
	return id.OperatorID() == op
}
