package ids

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperatorID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"DE*GEF", "DE*GEF", true},
		{"degef", "DE*GEF", true},
		{" de*8AA ", "DE*8AA", true},
		{"D*GEF", "", false},
		{"DE*GE", "", false},
		{"DE-GEF", "", false},
	}
	for _, c := range cases {
		id, err := ParseOperatorID(c.in)
		if !c.ok {
			assert.ErrorIs(t, err, ErrInvalidID, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, id.String())
	}
	_, err := ParseOperatorID("")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestParseChildIDs(t *testing.T) {
	p, err := ParsePoolID("de*gef*p1234")
	require.NoError(t, err)
	assert.Equal(t, "DE*GEF*P1234", p.String())
	assert.Equal(t, "DE*GEF", p.OperatorID().String())
	assert.Equal(t, "1234", p.Suffix())

	s, err := ParseStationID("DEGEFS1234*A")
	require.NoError(t, err)
	assert.Equal(t, "DE*GEF*S1234*A", s.String())

	e, err := ParseEVSEID("DE*GEF*E1234*A*1")
	require.NoError(t, err)
	assert.Equal(t, "1234*A*1", e.Suffix())

	_, err = ParsePoolID("DE*GEF*S1234")
	assert.True(t, errors.Is(err, ErrInvalidID))
	_, ok := TryParseEVSEID("DE*GEF*P1")
	assert.False(t, ok)
}

func TestNewEVSEID(t *testing.T) {
	s := MustParseStationID("DE*GEF*S42")
	e, err := NewEVSEID(s, 2)
	require.NoError(t, err)
	assert.Equal(t, "DE*GEF*E42*2", e.String())
	assert.True(t, MatchesOperator(s.OperatorID(), e))

	_, err = NewEVSEID(s, -1)
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = NewEVSEID(StationID{}, 1)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestNewEVSEIDLengthBoundary(t *testing.T) {
	// 49 suffix chars + "*1" is the longest derivable id
	s := MustParseStationID("DE*GEF*S" + strings.Repeat("A", 49))
	e, err := NewEVSEID(s, 1)
	require.NoError(t, err)
	back, err := ParseEVSEID(e.String())
	require.NoError(t, err)
	assert.Equal(t, e, back)

	_, err = NewEVSEID(s, 10)
	assert.ErrorIs(t, err, ErrInvalidID)

	long := MustParseStationID("DE*GEF*S" + strings.Repeat("A", 51))
	_, err = NewEVSEID(long, 1)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestChildIDLengthBoundary(t *testing.T) {
	longest := "DE*GEF*S" + strings.Repeat("A", 51)
	_, err := ParseStationID(longest)
	require.NoError(t, err)
	_, err = ParseStationID(longest + "A")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ParsePoolID("DE*GEF*P" + strings.Repeat("1", 52))
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ParseEVSEID("DE*GEF*E")
	assert.Error(t, err)
}

func TestGenerateIsContentAddressed(t *testing.T) {
	op := MustParseOperatorID("DE*GEF")
	a := GeneratePoolID(op, "Main Street 1", "Jena", "50.92,11.58")
	b := GeneratePoolID(op, "Main Street 1", "Jena", "50.92,11.58")
	c := GeneratePoolID(op, "Main Street 2", "Jena", "50.92,11.58")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.Suffix(), DefaultGeneratedLength)

	// generated ids must round-trip through the parser
	parsed, err := ParsePoolID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	st := GenerateStationID(op, "x")
	_, err = ParseStationID(st.String())
	assert.NoError(t, err)
}

func TestRandomIDsDiffer(t *testing.T) {
	op := MustParseOperatorID("DE*GEF")
	assert.NotEqual(t, RandomPoolID(op), RandomPoolID(op))
	_, err := ParseStationID(RandomStationID(op).String())
	assert.NoError(t, err)
}

func TestIDsJSON(t *testing.T) {
	in := struct {
		Pool PoolID `json:"pool"`
		EVSE EVSEID `json:"evse"`
	}{MustParsePoolID("DE*GEF*P1"), MustParseEVSEID("DE*GEF*E1*1")}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pool":"DE*GEF*P1","evse":"DE*GEF*E1*1"}`, string(b))

	var out struct {
		Pool PoolID `json:"pool"`
		EVSE EVSEID `json:"evse"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.Pool, out.Pool)
	assert.Error(t, json.Unmarshal([]byte(`{"pool":"nope"}`), &out))
}
