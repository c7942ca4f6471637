package agentx

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PDUType identifies the kind of AgentX PDU a header describes.
type PDUType byte

// PDU type codes used by a compliant subagent (RFC 2741 §6.1). A subagent
// produces Open/Close/Register/Unregister/Notify/Ping/Response and
// consumes Get/GetNext/GetBulk/TestSet/CommitSet/UndoSet/CleanupSet.
const (
	PDUOpen        PDUType = 1
	PDUClose       PDUType = 2
	PDURegister    PDUType = 3
	PDUUnregister  PDUType = 4
	PDUGet         PDUType = 6
	PDUGetNext     PDUType = 7
	PDUGetBulk     PDUType = 8
	PDUTestSet     PDUType = 9
	PDUCommitSet   PDUType = 10
	PDUUndoSet     PDUType = 11
	PDUCleanupSet  PDUType = 12
	PDUNotify      PDUType = 13
	PDUPing        PDUType = 14
	PDUResponse    PDUType = 18
)

// HeaderFlags is the AgentX header flags bitmask.
type HeaderFlags byte

// Flag bits of interest to a subagent implementation.
const (
	FlagNetworkByteOrder  HeaderFlags = 1 << 4
	FlagNonDefaultContext HeaderFlags = 1 << 3
	FlagAnyIndex          HeaderFlags = 1 << 2
	FlagNewIndex          HeaderFlags = 1 << 1
	FlagInstanceRegistration HeaderFlags = 1 << 0
)

// Response error codes used by a subagent (RFC 2741 §7.2.4).
const (
	ErrNoError     = 0
	ErrWrongValue  = 10
	ErrNotWritable = 17
)

// headerSize is the fixed AgentX PDU header length in bytes.
const headerSize = 20

// PDUHeader is the fixed 20-byte AgentX PDU header.
type PDUHeader struct {
	Version       byte
	Type          PDUType
	Flags         HeaderFlags
	SessionID     uint32
	TransactionID uint32
	PacketID      uint32
	PayloadLength uint32
}

// ByteOrder returns the binary.ByteOrder indicated by the header's
// NETWORK_BYTE_ORDER flag bit: set means big-endian, clear means
// little-endian.
func (h PDUHeader) ByteOrder() binary.ByteOrder {
	if h.Flags&FlagNetworkByteOrder != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// EncodeHeader encodes h into a 20-byte buffer using h's own byte order.
func EncodeHeader(h PDUHeader) []byte {
	bo := h.ByteOrder()
	buf := make([]byte, headerSize)
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	buf[2] = byte(h.Flags)
	buf[3] = 0
	bo.PutUint32(buf[4:], h.SessionID)
	bo.PutUint32(buf[8:], h.TransactionID)
	bo.PutUint32(buf[12:], h.PacketID)
	bo.PutUint32(buf[16:], h.PayloadLength)
	return buf
}

// DecodePDUHeader decodes a 20-byte AgentX header from buf, sniffing
// endianness from the NETWORK_BYTE_ORDER flag bit. It refuses any version
// other than 1.
func DecodePDUHeader(buf []byte) (PDUHeader, error) {
	if len(buf) < headerSize {
		return PDUHeader{}, errors.Wrap(ErrProtocol, "header truncated")
	}

	h := PDUHeader{
		Version: buf[0],
		Type:    PDUType(buf[1]),
		Flags:   HeaderFlags(buf[2]),
	}
	if h.Version != 1 {
		return PDUHeader{}, errors.Wrapf(ErrProtocol, "unsupported version %d", h.Version)
	}

	bo := h.ByteOrder()
	h.SessionID = bo.Uint32(buf[4:])
	h.TransactionID = bo.Uint32(buf[8:])
	h.PacketID = bo.Uint32(buf[12:])
	h.PayloadLength = bo.Uint32(buf[16:])
	return h, nil
}
