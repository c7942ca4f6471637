package agentx

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	assert "github.com/stretchr/testify/require"

	"github.com/snmpkit/agentx/mocks"
)

func newTestProtocol(conn *mocks.MockConn) *protocolImpl {
	return &protocolImpl{
		agentID: "test-agent",
		timeout: time.Second,
		trace:   resolveTrace(nil),
		conn:    conn,
	}
}

func responsePDU(t *testing.T, sid, tid, pid uint32, errCode uint16) []byte {
	body, err := EncodeResponsePDU(defaultBO, 0, errCode, 0, nil)
	assert.NoError(t, err)
	h := PDUHeader{Version: 1, Type: PDUResponse, Flags: FlagNetworkByteOrder, SessionID: sid, TransactionID: tid, PacketID: pid, PayloadLength: uint32(len(body))}
	return append(EncodeHeader(h), body...)
}

var defaultBO = (PDUHeader{Flags: FlagNetworkByteOrder}).ByteOrder()

func TestProtocolOpenSessionSuccess(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	reply := responsePDU(t, 5, 0, 1, ErrNoError)

	gomock.InOrder(
		mockConn.EXPECT().Write(gomock.Any()).Return(0, nil),
		mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil),
		mockConn.EXPECT().Read(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			return copy(b, reply), nil
		}),
	)

	err := p.OpenSession(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, uint32(5), p.SessionID())
}

func TestProtocolOpenSessionErrorResponse(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	reply := responsePDU(t, 0, 0, 1, ErrWrongValue)

	gomock.InOrder(
		mockConn.EXPECT().Write(gomock.Any()).Return(0, nil),
		mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil),
		mockConn.EXPECT().Read(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			return copy(b, reply), nil
		}),
	)

	err := p.OpenSession(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestProtocolOpenSessionNotConnected(t *testing.T) {
	p := &protocolImpl{agentID: "test-agent", timeout: time.Second, trace: resolveTrace(nil)}
	err := p.OpenSession(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestProtocolCloseSessionNoopWithoutSession(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	err := p.CloseSession(context.Background())
	assert.NoError(t, err)
}

func TestProtocolCloseSessionSendsClose(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)
	p.sessionID = 5

	mockConn.EXPECT().Write(gomock.Any()).Return(0, nil)

	err := p.CloseSession(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), p.SessionID())
}

func TestProtocolPingNoResponseIsError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)
	p.timeout = 10 * time.Millisecond

	gomock.InOrder(
		mockConn.EXPECT().Write(gomock.Any()).Return(0, nil),
		mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil),
		mockConn.EXPECT().Read(gomock.Any()).Return(0, &timeoutError{}),
	)

	err := p.Ping(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestProtocolPingSuccess(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	reply := responsePDU(t, 0, 1, 1, ErrNoError)

	gomock.InOrder(
		mockConn.EXPECT().Write(gomock.Any()).Return(0, nil),
		mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil),
		mockConn.EXPECT().Read(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			return copy(b, reply), nil
		}),
	)

	err := p.Ping(context.Background())
	assert.NoError(t, err)
}

func TestProtocolRegisterOidFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	reply := responsePDU(t, 0, 1, 1, ErrNotWritable)

	gomock.InOrder(
		mockConn.EXPECT().Write(gomock.Any()).Return(0, nil),
		mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil),
		mockConn.EXPECT().Read(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			return copy(b, reply), nil
		}),
	)

	err := p.RegisterOid(context.Background(), Oid{1, 3, 6, 1, 2, 1, 1}, 127, "")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistration)
}

func TestProtocolSendNotifyRequiresSession(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	err := p.SendNotify(nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestProtocolSendResponseUsesInboundIDs(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	inbound := PDUHeader{Flags: FlagNetworkByteOrder, SessionID: 3, TransactionID: 4, PacketID: 5}

	mockConn.EXPECT().Write(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
		h, err := DecodePDUHeader(b[:headerSize])
		assert.NoError(t, err)
		assert.Equal(t, uint32(3), h.SessionID)
		assert.Equal(t, uint32(4), h.TransactionID)
		assert.Equal(t, uint32(5), h.PacketID)
		assert.Equal(t, PDUResponse, h.Type)
		return len(b), nil
	})

	err := p.SendResponse(inbound, nil, ErrNoError, 0)
	assert.NoError(t, err)
}

func TestProtocolDisconnectClosesAndClearsBuffer(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)
	p.recvBuf = []byte{1, 2, 3}

	mockConn.EXPECT().Close().Return(nil)

	err := p.Disconnect()
	assert.NoError(t, err)
	assert.Nil(t, p.recvBuf)
	assert.Nil(t, p.conn)
}

func TestProtocolRecvPDUTimeoutReturnsNilTriple(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	mockConn := mocks.NewMockConn(mockCtrl)
	p := newTestProtocol(mockConn)

	mockConn.EXPECT().SetReadDeadline(gomock.Any()).Return(nil)
	mockConn.EXPECT().Read(gomock.Any()).Return(0, &timeoutError{})

	header, body, err := p.RecvPDU(context.Background(), time.Second)
	assert.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, body)
}

// timeoutError implements net.Error with Timeout() true, simulating a read
// deadline expiry.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
