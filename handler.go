package agentx

import (
	"encoding/binary"
	"time"
)

// RequestHandler dispatches inbound master-originated PDUs (Get, GetNext,
// GetBulk, and the four SET phases) against a DataStore and the set of
// registered SetHandlers, replying via Protocol.SendResponse. spec.md
// §4.8 assigns this demux/apply responsibility to the agent's request
// layer, independent of session/framing concerns owned by Protocol.
type RequestHandler struct {
	protocol    Protocol
	store       *DataStore
	setHandlers map[string]*boundSetHandler
	trace       *AgentTrace
}

// NewRequestHandler returns a RequestHandler bound to protocol and store.
// setHandlers is keyed by "<baseOid>:<context>", as produced by Agent's
// RegisterSet bookkeeping.
func NewRequestHandler(protocol Protocol, store *DataStore, setHandlers map[string]*boundSetHandler, trace *AgentTrace) *RequestHandler {
	return &RequestHandler{
		protocol:    protocol,
		store:       store,
		setHandlers: setHandlers,
		trace:       resolveTrace(trace),
	}
}

// Dispatch routes a decoded inbound PDU to the matching handler method and
// sends the Response. Any other PDU type (including Open, Close, Register,
// Unregister, Response and Ping) is answered with a noError Response that
// carries no varbinds.
func (h *RequestHandler) Dispatch(header PDUHeader, body []byte) error {
	begin := time.Now()
	defer func() {
		h.trace.DispatchDone("", header.Type, time.Since(begin))
	}()

	bo := header.ByteOrder()
	withContext := header.Flags&FlagNonDefaultContext != 0
	switch header.Type {
	case PDUGet:
		return h.handleGet(header, bo, withContext, body)
	case PDUGetNext:
		return h.handleGetNext(header, bo, withContext, body)
	case PDUGetBulk:
		return h.handleGetBulk(header, bo, withContext, body)
	case PDUTestSet:
		return h.handleTestSet(header, bo, withContext, body)
	case PDUCommitSet:
		return h.handleCommitSet(header)
	case PDUUndoSet:
		return h.handleUndoSet(header)
	case PDUCleanupSet:
		return h.handleCleanupSet(header)
	default:
		return h.protocol.SendResponse(header, nil, ErrNoError, 0)
	}
}

func (h *RequestHandler) handleGet(header PDUHeader, bo binary.ByteOrder, withContext bool, body []byte) error {
	pdu, err := DecodeGetPDU(bo, withContext, body)
	if err != nil {
		return err
	}

	vbs := make([]VarBind, 0, len(pdu.Ranges))
	for _, r := range pdu.Ranges {
		if vb := h.store.Get(r.Start, pdu.Context); vb != nil {
			vbs = append(vbs, *vb)
		} else {
			vbs = append(vbs, VarBind{OID: r.Start, Value: NewNoSuchObject()})
		}
	}
	return h.protocol.SendResponse(header, vbs, ErrNoError, 0)
}

func (h *RequestHandler) handleGetNext(header PDUHeader, bo binary.ByteOrder, withContext bool, body []byte) error {
	pdu, err := DecodeGetPDU(bo, withContext, body)
	if err != nil {
		return err
	}

	vbs := make([]VarBind, 0, len(pdu.Ranges))
	for _, r := range pdu.Ranges {
		vbs = append(vbs, h.nextVarBind(r.Start, r.End, r.Include, pdu.Context))
	}
	return h.protocol.SendResponse(header, vbs, ErrNoError, 0)
}

// nextVarBind returns the VarBind for start in context per GetNext
// semantics: if include is set, start itself is tried first (spec.md §4.8's
// "test the start itself before advancing"), and only if no exact match
// exists there does it fall through to the OID immediately following start
// (bounded by end, if set). Returns an EndOfMibView VarBind anchored at the
// last OID considered if the subtree is exhausted.
func (h *RequestHandler) nextVarBind(start, end Oid, include bool, context string) VarBind {
	if include {
		if vb := h.store.Get(start, context); vb != nil {
			return *vb
		}
	}
	next := h.store.GetNext(start, end, context)
	if next == nil {
		return VarBind{OID: start, Value: NewEndOfMibView()}
	}
	vb := h.store.Get(next, context)
	if vb == nil {
		return VarBind{OID: next, Value: NewEndOfMibView()}
	}
	return *vb
}

type bulkCursor struct {
	start, end Oid
	include    bool
	context    string
	done       bool
}

func (h *RequestHandler) handleGetBulk(header PDUHeader, bo binary.ByteOrder, withContext bool, body []byte) error {
	pdu, err := DecodeGetBulkPDU(bo, withContext, body)
	if err != nil {
		return err
	}

	var vbs []VarBind

	nonRepeaters := int(pdu.NonRepeaters)
	if nonRepeaters > len(pdu.Ranges) {
		nonRepeaters = len(pdu.Ranges)
	}
	for _, r := range pdu.Ranges[:nonRepeaters] {
		vbs = append(vbs, h.nextVarBind(r.Start, r.End, r.Include, pdu.Context))
	}

	repeaterRanges := pdu.Ranges[nonRepeaters:]
	cursors := make([]bulkCursor, len(repeaterRanges))
	for i, r := range repeaterRanges {
		cursors[i] = bulkCursor{start: r.Start, end: r.End, include: r.Include, context: pdu.Context}
	}

	for rep := 0; rep < int(pdu.MaxRepetitions); rep++ {
		progressed := false
		for i := range cursors {
			c := &cursors[i]
			if c.done {
				continue
			}
			progressed = true

			vb := h.nextVarBind(c.start, c.end, c.include, c.context)
			c.include = false
			vbs = append(vbs, vb)
			if vb.Value.Tag == TagEndOfMibView {
				c.done = true
				continue
			}
			c.start = vb.OID
		}
		if !progressed {
			break
		}
	}

	return h.protocol.SendResponse(header, vbs, ErrNoError, 0)
}

// findSetHandler returns the registered boundSetHandler whose base OID is
// the longest registered prefix of oid, or nil if none matches.
func (h *RequestHandler) findSetHandler(oid Oid, context string) *boundSetHandler {
	var best *boundSetHandler
	var bestLen int
	for _, bh := range h.setHandlers {
		if bh.context != context {
			continue
		}
		if bh.baseOid.IsPrefixOf(oid) && len(bh.baseOid) >= bestLen {
			best = bh
			bestLen = len(bh.baseOid)
		}
	}
	return best
}

func (h *RequestHandler) handleTestSet(header PDUHeader, bo binary.ByteOrder, withContext bool, body []byte) error {
	pdu, err := DecodeTestSetPDU(bo, withContext, body)
	if err != nil {
		return err
	}

	for i, vb := range pdu.VarBinds {
		bh := h.findSetHandler(vb.OID, pdu.Context)
		if bh == nil {
			return h.protocol.SendResponse(header, nil, ErrNotWritable, uint16(i+1))
		}
		if err := bh.onTest(header.SessionID, header.TransactionID, vb.OID, vb.Value); err != nil {
			h.trace.Error("handle_testset", "", err)
			return h.protocol.SendResponse(header, nil, ErrWrongValue, uint16(i+1))
		}
	}
	return h.protocol.SendResponse(header, nil, ErrNoError, 0)
}

func (h *RequestHandler) handleCommitSet(header PDUHeader) error {
	for _, bh := range h.setHandlers {
		if err := bh.onCommit(header.SessionID, header.TransactionID); err != nil {
			h.trace.Error("handle_commitset", "", err)
		}
	}
	return h.protocol.SendResponse(header, nil, ErrNoError, 0)
}

func (h *RequestHandler) handleUndoSet(header PDUHeader) error {
	for _, bh := range h.setHandlers {
		if err := bh.onUndo(header.SessionID, header.TransactionID); err != nil {
			h.trace.Error("handle_undoset", "", err)
		}
	}
	return h.protocol.SendResponse(header, nil, ErrNoError, 0)
}

func (h *RequestHandler) handleCleanupSet(header PDUHeader) error {
	for _, bh := range h.setHandlers {
		if err := bh.onCleanup(header.SessionID, header.TransactionID); err != nil {
			h.trace.Error("handle_cleanupset", "", err)
		}
	}
	return h.protocol.SendResponse(header, nil, ErrNoError, 0)
}
