package agentx

import (
	"encoding/binary"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestParseOid(t *testing.T) {
	oid, err := ParseOid(" .1.3.6.1.2.1. ")
	assert.NoError(t, err)
	assert.Equal(t, Oid{1, 3, 6, 1, 2, 1}, oid)
}

func TestParseOidInvalid(t *testing.T) {
	_, err := ParseOid("1.3.abc.1")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOid)
}

func TestOidString(t *testing.T) {
	oid := Oid{1, 3, 6, 1, 2, 1}
	assert.Equal(t, "1.3.6.1.2.1", oid.String())
}

func TestOidCompare(t *testing.T) {
	a := Oid{1, 3, 6, 1, 2, 1, 1}
	b := Oid{1, 3, 6, 1, 2, 1, 2}
	c := Oid{1, 3, 6, 1, 2, 1}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a.Clone()))
	assert.Negative(t, c.Compare(a), "shorter prefix sorts first")
}

func TestOidIsPrefixOf(t *testing.T) {
	base := Oid{1, 3, 6, 1, 2, 1}
	assert.True(t, base.IsPrefixOf(Oid{1, 3, 6, 1, 2, 1, 1, 0}))
	assert.True(t, base.IsPrefixOf(base.Clone()))
	assert.False(t, base.IsPrefixOf(Oid{1, 3, 6, 1, 2}))
	assert.False(t, base.IsPrefixOf(Oid{1, 3, 6, 1, 2, 2}))
}

func TestOidEncodeDecodeWireWithPrefixElision(t *testing.T) {
	oid := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	buf := oid.EncodeWire(binary.BigEndian, true)

	// sub-id count + prefix byte + include + reserved, then the remaining
	// sub-ids beyond the elided 1.3.6.1.<arc> sequence.
	assert.Equal(t, byte(len(oid)-5), buf[0])
	assert.Equal(t, byte(2), buf[1], "the elided 5th sub-id becomes the prefix byte")

	decoded, include, n, err := DecodeOidWire(binary.BigEndian, buf)
	assert.NoError(t, err)
	assert.Equal(t, oid, decoded)
	assert.True(t, include)
	assert.Equal(t, len(buf), n)
}

func TestOidEncodeDecodeWireNoPrefix(t *testing.T) {
	oid := Oid{1, 2, 840, 113549, 1, 1}
	buf := oid.EncodeWire(binary.LittleEndian, false)
	assert.Equal(t, byte(0), buf[1], "an oid outside 1.3.6.1 gets no prefix byte")

	decoded, include, n, err := DecodeOidWire(binary.LittleEndian, buf)
	assert.NoError(t, err)
	assert.Equal(t, oid, decoded)
	assert.False(t, include)
	assert.Equal(t, len(buf), n)
}

func TestOidEncodeDecodeWireEmpty(t *testing.T) {
	buf := Oid{}.EncodeWire(binary.BigEndian, false)
	decoded, _, n, err := DecodeOidWire(binary.BigEndian, buf)
	assert.NoError(t, err)
	assert.Empty(t, decoded)
	assert.Equal(t, 4, n)
}
