package agentx

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// ValueTag discriminates the kind of SNMP value carried by a Value.
type ValueTag byte

// Value tags, per RFC 2741 §5.4 / RFC 2578 type encodings used on the wire.
const (
	TagInteger ValueTag = 2
	TagOctetString ValueTag = 4
	TagNull ValueTag = 5
	TagObjectIdentifier ValueTag = 6
	TagIPAddress ValueTag = 64
	TagCounter32 ValueTag = 65
	TagGauge32 ValueTag = 66
	TagTimeTicks ValueTag = 67
	TagOpaque ValueTag = 68
	TagCounter64 ValueTag = 70
	TagNoSuchObject ValueTag = 128
	TagNoSuchInstance ValueTag = 129
	TagEndOfMibView ValueTag = 130
)

// Value is a tagged union over the SNMP value kinds an AgentX subagent
// sends and receives. Unlike the teacher's interface{}-backed TypedValue,
// Value uses concrete typed fields because every AgentX tag has a single
// fixed wire shape.
type Value struct {
	Tag   ValueTag
	Int   int64  // Integer, Counter32, Gauge32, TimeTicks, Counter64
	Bytes []byte // OctetString, Opaque, IpAddress (4 bytes)
	Oid   Oid    // ObjectIdentifier
}

// NewInteger constructs a signed 32-bit Integer value.
func NewInteger(v int32) Value { return Value{Tag: TagInteger, Int: int64(v)} }

// NewOctetString constructs an OctetString value from raw bytes.
func NewOctetString(v []byte) Value { return Value{Tag: TagOctetString, Bytes: v} }

// NewNull constructs a Null value.
func NewNull() Value { return Value{Tag: TagNull} }

// NewObjectIdentifier constructs an ObjectIdentifier value.
func NewObjectIdentifier(v Oid) Value { return Value{Tag: TagObjectIdentifier, Oid: v} }

// NewIPAddress constructs an IpAddress value from four octets.
func NewIPAddress(a, b, c, d byte) Value {
	return Value{Tag: TagIPAddress, Bytes: []byte{a, b, c, d}}
}

// NewCounter32 constructs an unsigned 32-bit Counter32 value.
func NewCounter32(v uint32) Value { return Value{Tag: TagCounter32, Int: int64(v)} }

// NewGauge32 constructs an unsigned 32-bit Gauge32 value.
func NewGauge32(v uint32) Value { return Value{Tag: TagGauge32, Int: int64(v)} }

// NewTimeTicks constructs an unsigned 32-bit TimeTicks value.
func NewTimeTicks(v uint32) Value { return Value{Tag: TagTimeTicks, Int: int64(v)} }

// NewOpaque constructs an Opaque value from raw bytes.
func NewOpaque(v []byte) Value { return Value{Tag: TagOpaque, Bytes: v} }

// NewCounter64 constructs an unsigned 64-bit Counter64 value.
func NewCounter64(v uint64) Value { return Value{Tag: TagCounter64, Int: int64(v)} }

// NewNoSuchObject constructs the NoSuchObject exception marker.
func NewNoSuchObject() Value { return Value{Tag: TagNoSuchObject} }

// NewNoSuchInstance constructs the NoSuchInstance exception marker.
func NewNoSuchInstance() Value { return Value{Tag: TagNoSuchInstance} }

// NewEndOfMibView constructs the EndOfMibView exception marker.
func NewEndOfMibView() Value { return Value{Tag: TagEndOfMibView} }

// IsException reports whether v is one of the three payload-less exception
// markers.
func (v Value) IsException() bool {
	switch v.Tag {
	case TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView:
		return true
	default:
		return false
	}
}

// Int32 returns the value as a signed 32-bit integer, panicking if the tag
// is not Integer. Mirrors the teacher's TypedValue.Int() panic-on-mismatch
// accessor.
func (v Value) Int32() int32 {
	if v.Tag != TagInteger {
		panic(errors.Errorf("agentx: value tag %d is not Integer", v.Tag))
	}
	return int32(v.Int)
}

// Uint32 returns the value as an unsigned 32-bit integer, panicking if the
// tag is not one of Counter32/Gauge32/TimeTicks.
func (v Value) Uint32() uint32 {
	switch v.Tag {
	case TagCounter32, TagGauge32, TagTimeTicks:
		return uint32(v.Int)
	default:
		panic(errors.Errorf("agentx: value tag %d is not a 32-bit unsigned type", v.Tag))
	}
}

// Uint64 returns the value as an unsigned 64-bit integer, panicking if the
// tag is not Counter64.
func (v Value) Uint64() uint64 {
	if v.Tag != TagCounter64 {
		panic(errors.Errorf("agentx: value tag %d is not Counter64", v.Tag))
	}
	return uint64(v.Int)
}

// OctetString returns the raw bytes of an OctetString or Opaque value,
// panicking on any other tag.
func (v Value) OctetString() []byte {
	switch v.Tag {
	case TagOctetString, TagOpaque:
		return v.Bytes
	default:
		panic(errors.Errorf("agentx: value tag %d is not an octet string", v.Tag))
	}
}

// ObjectIdentifier returns the Oid payload, panicking if the tag is not
// ObjectIdentifier.
func (v Value) ObjectIdentifier() Oid {
	if v.Tag != TagObjectIdentifier {
		panic(errors.Errorf("agentx: value tag %d is not ObjectIdentifier", v.Tag))
	}
	return v.Oid
}

// padLen4 returns n rounded up to the next multiple of 4.
func padLen4(n int) int {
	return (n + 3) &^ 3
}

// EncodeWire encodes v using byte order bo. OctetString/Opaque/IpAddress
// are length-prefixed (4 bytes) and zero-padded to a 4-byte boundary, with
// the pad bytes excluded from the encoded length. Counter64 is 8 bytes.
// The three exception markers encode no payload.
func (v Value) EncodeWire(bo binary.ByteOrder) ([]byte, error) {
	switch v.Tag {
	case TagInteger, TagCounter32, TagGauge32, TagTimeTicks:
		buf := make([]byte, 4)
		bo.PutUint32(buf, uint32(v.Int))
		return buf, nil

	case TagCounter64:
		buf := make([]byte, 8)
		bo.PutUint64(buf, uint64(v.Int))
		return buf, nil

	case TagOctetString, TagOpaque, TagIPAddress:
		n := len(v.Bytes)
		buf := make([]byte, 4+padLen4(n))
		bo.PutUint32(buf, uint32(n))
		copy(buf[4:], v.Bytes)
		return buf, nil

	case TagObjectIdentifier:
		return v.Oid.EncodeWire(bo, false), nil

	case TagNull, TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView:
		return nil, nil

	default:
		return nil, errors.Wrapf(ErrProtocol, "unknown value tag %d", v.Tag)
	}
}

// DecodeValueWire decodes a Value of the given tag from buf using byte
// order bo, returning the number of bytes consumed.
func DecodeValueWire(bo binary.ByteOrder, tag ValueTag, buf []byte) (Value, int, error) {
	switch tag {
	case TagInteger, TagCounter32, TagGauge32, TagTimeTicks:
		if len(buf) < 4 {
			return Value{}, 0, errors.Wrap(ErrProtocol, "truncated 32-bit value")
		}
		if tag == TagInteger {
			return Value{Tag: tag, Int: int64(int32(bo.Uint32(buf)))}, 4, nil
		}
		return Value{Tag: tag, Int: int64(bo.Uint32(buf))}, 4, nil

	case TagCounter64:
		if len(buf) < 8 {
			return Value{}, 0, errors.Wrap(ErrProtocol, "truncated counter64")
		}
		return Value{Tag: tag, Int: int64(bo.Uint64(buf))}, 8, nil

	case TagOctetString, TagOpaque, TagIPAddress:
		if len(buf) < 4 {
			return Value{}, 0, errors.Wrap(ErrProtocol, "truncated octet string header")
		}
		n := int(bo.Uint32(buf))
		total := 4 + padLen4(n)
		if len(buf) < total {
			return Value{}, 0, errors.Wrap(ErrProtocol, "truncated octet string body")
		}
		data := make([]byte, n)
		copy(data, buf[4:4+n])
		return Value{Tag: tag, Bytes: data}, total, nil

	case TagObjectIdentifier:
		oid, _, n, err := DecodeOidWire(bo, buf)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Tag: tag, Oid: oid}, n, nil

	case TagNull, TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView:
		return Value{Tag: tag}, 0, nil

	default:
		return Value{}, 0, errors.Wrapf(ErrProtocol, "unknown value tag %d", tag)
	}
}

// parseIPv4 validates and parses a dotted-quad string into four octets,
// rejecting malformed input (missing octets, out-of-range components).
func parseIPv4(s string) (a, b, c, d byte, err error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, 0, 0, 0, errors.Errorf("agentx: invalid IPv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, 0, 0, 0, errors.Errorf("agentx: not an IPv4 address %q", s)
	}
	return ip4[0], ip4[1], ip4[2], ip4[3], nil
}
