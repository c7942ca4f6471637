package agentx

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// encodeVarBind/decodeVarBind handle the 4-byte VarBind prefix:
// a 2-byte value tag followed by 2 reserved bytes, preceding the Oid and
// payload (spec.md §3: "Wire encoding is Value-tag, reserved, Oid,
// payload").

func encodeVarBind(bo binary.ByteOrder, vb VarBind) ([]byte, error) {
	payload, err := vb.Value.EncodeWire(bo)
	if err != nil {
		return nil, err
	}
	oidBuf := vb.OID.EncodeWire(bo, false)

	buf := make([]byte, 4+len(oidBuf)+len(payload))
	bo.PutUint16(buf, uint16(vb.Value.Tag))
	copy(buf[4:], oidBuf)
	copy(buf[4+len(oidBuf):], payload)
	return buf, nil
}

func decodeVarBind(bo binary.ByteOrder, buf []byte) (VarBind, int, error) {
	if len(buf) < 4 {
		return VarBind{}, 0, errors.Wrap(ErrProtocol, "varbind header truncated")
	}
	tag := ValueTag(bo.Uint16(buf))
	off := 4

	oid, _, n, err := DecodeOidWire(bo, buf[off:])
	if err != nil {
		return VarBind{}, 0, err
	}
	off += n

	val, n, err := DecodeValueWire(bo, tag, buf[off:])
	if err != nil {
		return VarBind{}, 0, err
	}
	off += n

	return VarBind{OID: oid, Value: val}, off, nil
}

func encodeVarBindList(bo binary.ByteOrder, vbs []VarBind) ([]byte, error) {
	var out []byte
	for _, vb := range vbs {
		b, err := encodeVarBind(bo, vb)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func decodeVarBindList(bo binary.ByteOrder, buf []byte) ([]VarBind, error) {
	var vbs []VarBind
	for len(buf) > 0 {
		vb, n, err := decodeVarBind(bo, buf)
		if err != nil {
			return nil, err
		}
		vbs = append(vbs, vb)
		buf = buf[n:]
	}
	return vbs, nil
}

func encodeOctetString(bo binary.ByteOrder, s []byte) []byte {
	n := len(s)
	buf := make([]byte, 4+padLen4(n))
	bo.PutUint32(buf, uint32(n))
	copy(buf[4:], s)
	return buf
}

func decodeOctetString(bo binary.ByteOrder, buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, errors.Wrap(ErrProtocol, "octet string header truncated")
	}
	n := int(bo.Uint32(buf))
	total := 4 + padLen4(n)
	if len(buf) < total {
		return nil, 0, errors.Wrap(ErrProtocol, "octet string body truncated")
	}
	out := make([]byte, n)
	copy(out, buf[4:4+n])
	return out, total, nil
}

// EncodeOpenPDU encodes an Open PDU body: timeout byte, 3 reserved bytes,
// agent-id Oid, description OctetString.
func EncodeOpenPDU(bo binary.ByteOrder, timeout byte, agentID Oid, description string) []byte {
	head := []byte{timeout, 0, 0, 0}
	oidBuf := agentID.EncodeWire(bo, false)
	descBuf := encodeOctetString(bo, []byte(description))
	buf := make([]byte, 0, len(head)+len(oidBuf)+len(descBuf))
	buf = append(buf, head...)
	buf = append(buf, oidBuf...)
	buf = append(buf, descBuf...)
	return buf
}

// EncodeClosePDU encodes a Close PDU body: reason byte, 3 reserved bytes.
func EncodeClosePDU(reason byte) []byte {
	return []byte{reason, 0, 0, 0}
}

// EncodeRegisterPDU encodes a Register PDU body: timeout, priority,
// range-subid, reserved, subtree Oid.
func EncodeRegisterPDU(bo binary.ByteOrder, timeout, priority, rangeSubID byte, subtree Oid) []byte {
	head := []byte{timeout, priority, rangeSubID, 0}
	oidBuf := subtree.EncodeWire(bo, false)
	return append(head, oidBuf...)
}

// EncodeUnregisterPDU encodes an Unregister PDU body: reserved, priority,
// range-subid, reserved, subtree Oid.
func EncodeUnregisterPDU(bo binary.ByteOrder, priority, rangeSubID byte, subtree Oid) []byte {
	head := []byte{0, priority, rangeSubID, 0}
	oidBuf := subtree.EncodeWire(bo, false)
	return append(head, oidBuf...)
}

// EncodeNotifyPDU encodes a Notify PDU body: an optional context
// OctetString (included when withContext is true), then the VarBind list.
func EncodeNotifyPDU(bo binary.ByteOrder, withContext bool, context string, vbs []VarBind) ([]byte, error) {
	var buf []byte
	if withContext {
		buf = append(buf, encodeOctetString(bo, []byte(context))...)
	}
	vbBuf, err := encodeVarBindList(bo, vbs)
	if err != nil {
		return nil, err
	}
	return append(buf, vbBuf...), nil
}

// ResponseBody is the decoded body of a Response PDU.
type ResponseBody struct {
	SysUptime uint32
	Error     uint16
	Index     uint16
	VarBinds  []VarBind
}

// IsError reports whether the response carries a nonzero error code.
func (r ResponseBody) IsError() bool { return r.Error != ErrNoError }

// EncodeResponsePDU encodes a Response PDU body: sys_uptime(4), error(2),
// index(2), then the VarBind list.
func EncodeResponsePDU(bo binary.ByteOrder, sysUptime uint32, errCode, index uint16, vbs []VarBind) ([]byte, error) {
	buf := make([]byte, 8)
	bo.PutUint32(buf, sysUptime)
	bo.PutUint16(buf[4:], errCode)
	bo.PutUint16(buf[6:], index)

	vbBuf, err := encodeVarBindList(bo, vbs)
	if err != nil {
		return nil, err
	}
	return append(buf, vbBuf...), nil
}

// DecodeResponsePDU decodes a Response PDU body.
func DecodeResponsePDU(bo binary.ByteOrder, buf []byte) (ResponseBody, error) {
	if len(buf) < 8 {
		return ResponseBody{}, errors.Wrap(ErrProtocol, "response header truncated")
	}
	r := ResponseBody{
		SysUptime: bo.Uint32(buf),
		Error:     bo.Uint16(buf[4:]),
		Index:     bo.Uint16(buf[6:]),
	}
	vbs, err := decodeVarBindList(bo, buf[8:])
	if err != nil {
		return ResponseBody{}, err
	}
	r.VarBinds = vbs
	return r, nil
}

// decodeSearchRangeList decodes a list of (start, end) Oid pairs, as used
// by Get/GetNext/GetBulk.
func decodeSearchRangeList(bo binary.ByteOrder, buf []byte) ([]SearchRange, error) {
	var ranges []SearchRange
	for len(buf) > 0 {
		start, include, n, err := DecodeOidWire(bo, buf)
		if err != nil {
			return nil, err
		}
		buf = buf[n:]

		end, _, n, err := DecodeOidWire(bo, buf)
		if err != nil {
			return nil, err
		}
		buf = buf[n:]

		ranges = append(ranges, SearchRange{Start: start, End: end, Include: include})
	}
	return ranges, nil
}

func encodeSearchRangeList(bo binary.ByteOrder, ranges []SearchRange) []byte {
	var buf []byte
	for _, r := range ranges {
		buf = append(buf, r.Start.EncodeWire(bo, r.Include)...)
		buf = append(buf, r.End.EncodeWire(bo, false)...)
	}
	return buf
}

// GetPDU is the decoded body of a Get or GetNext PDU.
type GetPDU struct {
	Context string
	Ranges  []SearchRange
}

// DecodeGetPDU decodes a Get/GetNext PDU body: an optional context
// (present when withContext is true), then a list of search ranges.
func DecodeGetPDU(bo binary.ByteOrder, withContext bool, buf []byte) (GetPDU, error) {
	var ctx string
	if withContext {
		c, n, err := decodeOctetString(bo, buf)
		if err != nil {
			return GetPDU{}, err
		}
		ctx = string(c)
		buf = buf[n:]
	}
	ranges, err := decodeSearchRangeList(bo, buf)
	if err != nil {
		return GetPDU{}, err
	}
	return GetPDU{Context: ctx, Ranges: ranges}, nil
}

// EncodeGetPDU encodes a Get/GetNext PDU body, mainly useful for tests that
// simulate a master sending requests to this subagent.
func EncodeGetPDU(bo binary.ByteOrder, withContext bool, context string, ranges []SearchRange) []byte {
	var buf []byte
	if withContext {
		buf = append(buf, encodeOctetString(bo, []byte(context))...)
	}
	return append(buf, encodeSearchRangeList(bo, ranges)...)
}

// GetBulkPDU is the decoded body of a GetBulk PDU.
type GetBulkPDU struct {
	Context        string
	NonRepeaters   uint16
	MaxRepetitions uint16
	Ranges         []SearchRange
}

// DecodeGetBulkPDU decodes a GetBulk PDU body: an optional context,
// non_repeaters(2), max_repetitions(2), then search ranges.
func DecodeGetBulkPDU(bo binary.ByteOrder, withContext bool, buf []byte) (GetBulkPDU, error) {
	var ctx string
	if withContext {
		c, n, err := decodeOctetString(bo, buf)
		if err != nil {
			return GetBulkPDU{}, err
		}
		ctx = string(c)
		buf = buf[n:]
	}
	if len(buf) < 4 {
		return GetBulkPDU{}, errors.Wrap(ErrProtocol, "getbulk header truncated")
	}
	nonRep := bo.Uint16(buf)
	maxRep := bo.Uint16(buf[2:])
	ranges, err := decodeSearchRangeList(bo, buf[4:])
	if err != nil {
		return GetBulkPDU{}, err
	}
	return GetBulkPDU{Context: ctx, NonRepeaters: nonRep, MaxRepetitions: maxRep, Ranges: ranges}, nil
}

// EncodeGetBulkPDU encodes a GetBulk PDU body, mainly useful for tests.
func EncodeGetBulkPDU(bo binary.ByteOrder, withContext bool, context string, nonRep, maxRep uint16, ranges []SearchRange) []byte {
	var buf []byte
	if withContext {
		buf = append(buf, encodeOctetString(bo, []byte(context))...)
	}
	head := make([]byte, 4)
	bo.PutUint16(head, nonRep)
	bo.PutUint16(head[2:], maxRep)
	buf = append(buf, head...)
	return append(buf, encodeSearchRangeList(bo, ranges)...)
}

// TestSetPDU is the decoded body of a TestSet PDU.
type TestSetPDU struct {
	Context  string
	VarBinds []VarBind
}

// DecodeTestSetPDU decodes a TestSet PDU body: an optional context, then a
// VarBind list.
func DecodeTestSetPDU(bo binary.ByteOrder, withContext bool, buf []byte) (TestSetPDU, error) {
	var ctx string
	if withContext {
		c, n, err := decodeOctetString(bo, buf)
		if err != nil {
			return TestSetPDU{}, err
		}
		ctx = string(c)
		buf = buf[n:]
	}
	vbs, err := decodeVarBindList(bo, buf)
	if err != nil {
		return TestSetPDU{}, err
	}
	return TestSetPDU{Context: ctx, VarBinds: vbs}, nil
}

// EncodeTestSetPDU encodes a TestSet PDU body, mainly useful for tests.
func EncodeTestSetPDU(bo binary.ByteOrder, withContext bool, context string, vbs []VarBind) ([]byte, error) {
	var buf []byte
	if withContext {
		buf = append(buf, encodeOctetString(bo, []byte(context))...)
	}
	vbBuf, err := encodeVarBindList(bo, vbs)
	if err != nil {
		return nil, err
	}
	return append(buf, vbBuf...), nil
}
