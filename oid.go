package agentx

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Oid is a non-empty ordered sequence of unsigned 32-bit sub-identifiers.
// Ordering is lexicographic over the component sequence, not textual:
// Oid{1, 3, 6, 1, 2} is less than Oid{1, 3, 6, 1, 10}.
type Oid []uint32

// agentxPrefix is the leading arc sequence eligible for the AgentX
// single-byte prefix elision (RFC 2741 §5.1).
var agentxPrefix = Oid{1, 3, 6, 1}

// ParseOid parses a dotted-decimal string into an Oid. Surrounding dots and
// whitespace are stripped before splitting; every remaining component must
// be a non-negative integer no greater than 2^32-1.
func ParseOid(s string) (Oid, error) {
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, errors.Wrap(ErrInvalidOid, "empty oid")
	}

	parts := strings.Split(s, ".")
	oid := make(Oid, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, errors.Wrapf(ErrInvalidOid, "oid %q: empty component", s)
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidOid, "oid %q: component %q: %s", s, p, err)
		}
		oid[i] = uint32(n)
	}
	return oid, nil
}

// String renders the Oid in dotted-decimal form.
func (o Oid) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0, or 1 as o is less than, equal to, or greater than
// other, using lexicographic order over the component sequence. A strict
// prefix compares less than any extension of itself.
func (o Oid) Compare(other Oid) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		switch {
		case o[i] < other[i]:
			return -1
		case o[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether o and other have identical components.
func (o Oid) Equal(other Oid) bool {
	return o.Compare(other) == 0
}

// IsPrefixOf reports whether o is a prefix of other (component-boundary
// prefix, not string prefix); o itself is considered a prefix of o.
func (o Oid) IsPrefixOf(other Oid) bool {
	if len(o) > len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of o.
func (o Oid) Clone() Oid {
	c := make(Oid, len(o))
	copy(c, o)
	return c
}

// EncodeWire encodes o in AgentX wire form using byte order bo: the
// sub-identifier count, a prefix byte (nonzero elides the leading
// 1.3.6.1.<prefix> arc into a single byte, per RFC 2741 §5.1), the include
// flag, a reserved byte, and the sub-identifiers themselves (with the
// elided arc dropped when the prefix byte is nonzero).
func (o Oid) EncodeWire(bo binary.ByteOrder, include bool) []byte {
	ids := []uint32(o)
	prefix := byte(0)

	if len(ids) >= 5 && agentxPrefix.IsPrefixOf(o) && ids[4] < 256 {
		prefix = byte(ids[4])
		ids = ids[5:]
	}

	buf := make([]byte, 4+4*len(ids))
	buf[0] = byte(len(ids))
	buf[1] = prefix
	if include {
		buf[2] = 1
	}
	buf[3] = 0
	for i, v := range ids {
		bo.PutUint32(buf[4+4*i:], v)
	}
	return buf
}

// DecodeOidWire decodes an AgentX-encoded OID from buf using byte order bo,
// returning the decoded Oid, whether the include flag was set, and the
// number of bytes consumed.
func DecodeOidWire(bo binary.ByteOrder, buf []byte) (oid Oid, include bool, n int, err error) {
	if len(buf) < 4 {
		return nil, false, 0, errors.Wrap(ErrProtocol, "oid header truncated")
	}

	nSubIDs := int(buf[0])
	prefix := buf[1]
	include = buf[2] != 0
	n = 4 + 4*nSubIDs
	if len(buf) < n {
		return nil, false, 0, errors.Wrap(ErrProtocol, "oid body truncated")
	}

	var ids []uint32
	if prefix != 0 {
		ids = make([]uint32, 0, 5+nSubIDs)
		ids = append(ids, agentxPrefix...)
		ids = append(ids, uint32(prefix))
	} else {
		ids = make([]uint32, 0, nSubIDs)
	}
	for i := 0; i < nSubIDs; i++ {
		ids = append(ids, bo.Uint32(buf[4+4*i:]))
	}

	if nSubIDs == 0 && prefix == 0 {
		return Oid{}, include, n, nil
	}
	return Oid(ids), include, n, nil
}
