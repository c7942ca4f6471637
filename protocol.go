package agentx

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Protocol owns the stream to the master, the session identifier, and the
// monotonic packet_id/transaction_id counters. It implements the
// primitives spec.md §4.7 assigns to the session/dispatch layer; the
// caller (Agent) is responsible for ensuring RecvPDU is invoked from a
// single goroutine at a time — matching spec.md §5's single-reader
// concurrency model — rather than Protocol enforcing it internally.
type Protocol interface {
	// Connect dials the configured socket.
	Connect(ctx context.Context) error

	// Disconnect clears the receive buffer, closes the writer, and nils
	// the reader.
	Disconnect() error

	// OpenSession sends Open and awaits a Response whose session_id
	// becomes the local session_id.
	OpenSession(ctx context.Context) error

	// CloseSession sends Close and resets session_id to 0. No-op if
	// already closed.
	CloseSession(ctx context.Context) error

	// Ping sends a Ping PDU and awaits a Response.
	Ping(ctx context.Context) error

	// RegisterOid sends Register for baseOid at the given priority and
	// context.
	RegisterOid(ctx context.Context, baseOid Oid, priority byte, context string) error

	// SendResponse encodes and writes a Response reusing the inbound
	// header's session_id/transaction_id/packet_id.
	SendResponse(inbound PDUHeader, varbinds []VarBind, errCode, index uint16) error

	// SendNotify encodes a Notify using fresh transaction_id/packet_id.
	SendNotify(varbinds []VarBind) error

	// RecvPDU reads exactly 20+payload_length bytes from the internal
	// receive buffer, refilling from the socket as needed. Returns
	// (nil, nil, nil) on timeout; a partial PDU is not itself an error.
	RecvPDU(ctx context.Context, timeout time.Duration) (*PDUHeader, []byte, error)

	// SessionID returns the current session's id, or 0 if none is open.
	SessionID() uint32
}

type protocolImpl struct {
	agentID    string
	socketPath string
	network    string
	timeout    time.Duration
	trace      *AgentTrace

	conn    net.Conn
	writeMu sync.Mutex

	sessionID     uint32
	transactionID uint32
	packetID      uint32

	recvBuf []byte
}

// NewProtocol returns a Protocol that dials socketPath over network
// ("unix" by default) with the given agent identification string and
// per-operation timeout.
func NewProtocol(agentID, network, socketPath string, timeout time.Duration, trace *AgentTrace) Protocol {
	return &protocolImpl{
		agentID:    agentID,
		network:    network,
		socketPath: socketPath,
		timeout:    timeout,
		trace:      resolveTrace(trace),
	}
}

func (p *protocolImpl) Connect(ctx context.Context) (err error) {
	begin := time.Now()
	p.trace.ConnectStart(p.agentID, p.socketPath)
	defer func() {
		p.trace.ConnectDone(p.agentID, p.socketPath, err, time.Since(begin))
	}()

	d := net.Dialer{Timeout: p.timeout}
	p.conn, err = d.DialContext(ctx, p.network, p.socketPath)
	if err != nil {
		return errors.Wrap(ErrConnection, err.Error())
	}
	return nil
}

func (p *protocolImpl) Disconnect() error {
	var err error
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	p.recvBuf = nil
	if err != nil {
		return errors.Wrap(ErrConnection, err.Error())
	}
	return nil
}

func (p *protocolImpl) nextPacketID() uint32 {
	return atomic.AddUint32(&p.packetID, 1)
}

func (p *protocolImpl) nextTransactionID() uint32 {
	return atomic.AddUint32(&p.transactionID, 1)
}

func (p *protocolImpl) byteOrder() binary.ByteOrder {
	return binary.BigEndian
}

func (p *protocolImpl) flags() HeaderFlags {
	return FlagNetworkByteOrder
}

func (p *protocolImpl) write(buf []byte) (err error) {
	if p.conn == nil {
		return errors.Wrap(ErrNoSession, "not connected")
	}

	begin := time.Now()
	defer func() {
		p.trace.WriteDone(p.agentID, buf, err, time.Since(begin))
	}()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = p.conn.Write(buf)
	if err != nil {
		return errors.Wrap(ErrConnection, err.Error())
	}
	return nil
}

func (p *protocolImpl) sendPDU(pduType PDUType, sessionID, transactionID, packetID uint32, body []byte) error {
	h := PDUHeader{
		Version:       1,
		Type:          pduType,
		Flags:         p.flags(),
		SessionID:     sessionID,
		TransactionID: transactionID,
		PacketID:      packetID,
		PayloadLength: uint32(len(body)),
	}
	buf := append(EncodeHeader(h), body...)
	return p.write(buf)
}

// RecvPDU reads exactly 20+payload_length bytes from the internal receive
// buffer, refilling from the socket as needed. It is not connected is a
// SessionError; a read timeout waiting for more bytes returns
// (nil, nil, nil); EOF mid-PDU is a ConnectionError.
func (p *protocolImpl) RecvPDU(ctx context.Context, timeout time.Duration) (header *PDUHeader, body []byte, err error) {
	if p.conn == nil {
		return nil, nil, errors.Wrap(ErrNoSession, "not connected")
	}

	deadline := time.Now().Add(timeout)
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, errors.Wrap(ErrConnection, err.Error())
	}

	begin := time.Now()
	defer func() {
		p.trace.ReadDone(p.agentID, body, err, time.Since(begin))
	}()

	for len(p.recvBuf) < headerSize {
		n, rerr := p.fillOnce()
		if rerr != nil {
			if isTimeout(rerr) {
				return nil, nil, nil
			}
			return nil, nil, errors.Wrap(ErrConnection, rerr.Error())
		}
		if n == 0 {
			return nil, nil, errors.Wrap(ErrConnection, "eof mid-pdu")
		}
	}

	h, derr := DecodePDUHeader(p.recvBuf[:headerSize])
	if derr != nil {
		return nil, nil, derr
	}
	total := headerSize + int(h.PayloadLength)

	for len(p.recvBuf) < total {
		n, rerr := p.fillOnce()
		if rerr != nil {
			if isTimeout(rerr) {
				return nil, nil, nil
			}
			return nil, nil, errors.Wrap(ErrConnection, rerr.Error())
		}
		if n == 0 {
			return nil, nil, errors.Wrap(ErrConnection, "eof mid-pdu")
		}
	}

	pduBody := make([]byte, h.PayloadLength)
	copy(pduBody, p.recvBuf[headerSize:total])
	p.recvBuf = append([]byte(nil), p.recvBuf[total:]...)

	return &h, pduBody, nil
}

func (p *protocolImpl) fillOnce() (int, error) {
	tmp := make([]byte, 4096)
	n, err := p.conn.Read(tmp)
	if n > 0 {
		p.recvBuf = append(p.recvBuf, tmp[:n]...)
	}
	return n, err
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func (p *protocolImpl) OpenSession(ctx context.Context) error {
	body := EncodeOpenPDU(p.byteOrder(), byte(p.timeout.Seconds()), Oid{}, p.agentID)
	pid := p.nextPacketID()
	if err := p.sendPDU(PDUOpen, 0, 0, pid, body); err != nil {
		return err
	}

	header, respBody, err := p.RecvPDU(ctx, p.timeout)
	if err != nil {
		return err
	}
	if header == nil {
		return errors.Wrap(ErrConnection, "no response")
	}
	if header.Type != PDUResponse {
		return errors.Wrap(ErrProtocol, "expected response pdu")
	}

	resp, err := DecodeResponsePDU(header.ByteOrder(), respBody)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return errors.Wrapf(ErrConnection, "open failed: error=%d", resp.Error)
	}

	atomic.StoreUint32(&p.sessionID, header.SessionID)
	p.trace.SessionOpened(p.agentID, header.SessionID)
	return nil
}

func (p *protocolImpl) CloseSession(ctx context.Context) error {
	sid := atomic.LoadUint32(&p.sessionID)
	if sid == 0 {
		return nil
	}

	body := EncodeClosePDU(0)
	pid := p.nextPacketID()
	if err := p.sendPDU(PDUClose, sid, 0, pid, body); err != nil {
		return err
	}

	atomic.StoreUint32(&p.sessionID, 0)
	p.trace.SessionClosed(p.agentID, sid)
	return nil
}

func (p *protocolImpl) Ping(ctx context.Context) error {
	sid := atomic.LoadUint32(&p.sessionID)
	pid := p.nextPacketID()
	tid := p.nextTransactionID()
	if err := p.sendPDU(PDUPing, sid, tid, pid, nil); err != nil {
		return err
	}

	header, _, err := p.RecvPDU(ctx, p.timeout)
	if err != nil {
		return err
	}
	if header == nil {
		return errors.Wrap(ErrConnection, "no response")
	}
	return nil
}

func (p *protocolImpl) RegisterOid(ctx context.Context, baseOid Oid, priority byte, regContext string) (err error) {
	defer func() {
		p.trace.RegisterDone(p.agentID, baseOid, priority, err)
	}()

	body := EncodeRegisterPDU(p.byteOrder(), byte(p.timeout.Seconds()), priority, 0, baseOid)
	sid := atomic.LoadUint32(&p.sessionID)
	pid := p.nextPacketID()
	tid := p.nextTransactionID()

	flags := p.flags()
	if regContext != "" {
		flags |= FlagNonDefaultContext
		ctxBuf := encodeOctetString(p.byteOrder(), []byte(regContext))
		body = append(ctxBuf, body...)
	}

	h := PDUHeader{Version: 1, Type: PDURegister, Flags: flags, SessionID: sid, TransactionID: tid, PacketID: pid, PayloadLength: uint32(len(body))}
	if err = p.write(append(EncodeHeader(h), body...)); err != nil {
		return err
	}

	header, respBody, rerr := p.RecvPDU(ctx, p.timeout)
	if rerr != nil {
		return rerr
	}
	if header == nil {
		return errors.Wrap(ErrRegistration, "no response")
	}

	resp, derr := DecodeResponsePDU(header.ByteOrder(), respBody)
	if derr != nil {
		return derr
	}
	if resp.IsError() {
		return errors.Wrapf(ErrRegistration, "registration failed: error=%d", resp.Error)
	}
	return nil
}

func (p *protocolImpl) SendResponse(inbound PDUHeader, varbinds []VarBind, errCode, index uint16) error {
	bo := inbound.ByteOrder()
	body, err := EncodeResponsePDU(bo, 0, errCode, index, varbinds)
	if err != nil {
		return err
	}
	return p.sendPDU(PDUResponse, inbound.SessionID, inbound.TransactionID, inbound.PacketID, body)
}

func (p *protocolImpl) SendNotify(varbinds []VarBind) error {
	sid := atomic.LoadUint32(&p.sessionID)
	if sid == 0 {
		return errors.Wrap(ErrNoSession, "no open session")
	}
	body, err := EncodeNotifyPDU(p.byteOrder(), false, "", varbinds)
	if err != nil {
		return err
	}
	pid := p.nextPacketID()
	tid := p.nextTransactionID()
	return p.sendPDU(PDUNotify, sid, tid, pid, body)
}

func (p *protocolImpl) SessionID() uint32 {
	return atomic.LoadUint32(&p.sessionID)
}
