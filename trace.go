package agentx

import (
	"context"
	"encoding/hex"
	"log"
	"time"

	"github.com/imdario/mergo"
)

// AgentTrace defines a structure for handling trace events across the
// Protocol and Agent lifecycle: connection, session, dispatch, and
// registration. Any field left nil is filled in from NoOpLoggingHooks
// wherever a trace is consumed, so a caller can populate only the hooks
// it cares about.
type AgentTrace struct {
	// ConnectStart is called before dialing the master's socket.
	ConnectStart func(agentID, socketPath string)

	// ConnectDone is called when the dial attempt completes.
	ConnectDone func(agentID, socketPath string, err error, d time.Duration)

	// SessionOpened is called after a successful open_session.
	SessionOpened func(agentID string, sessionID uint32)

	// SessionClosed is called after close_session.
	SessionClosed func(agentID string, sessionID uint32)

	// Error is called after an error condition has been detected.
	Error func(location, agentID string, err error)

	// WriteDone is called after a PDU has been written.
	WriteDone func(agentID string, output []byte, err error, d time.Duration)

	// ReadDone is called after a PDU has been read.
	ReadDone func(agentID string, input []byte, err error, d time.Duration)

	// RegisterDone is called after a Register PDU exchange completes.
	RegisterDone func(agentID string, baseOid Oid, priority byte, err error)

	// DispatchDone is called after an inbound PDU has been handled.
	DispatchDone func(agentID string, pduType PDUType, d time.Duration)

	// UpdaterDone is called after an Updater's refresh cycle completes.
	UpdaterDone func(agentID string, baseOid Oid, err error, d time.Duration)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &AgentTrace{
	Error: func(location, agentID string, err error) {
		log.Printf("AGENTX-Error agent:%s context:%s err:%v\n", agentID, location, err)
	},
}

// DiagnosticLoggingHooks provides a set of hooks that log all events,
// hex-dumping wire bytes for reads and writes.
var DiagnosticLoggingHooks = &AgentTrace{
	ConnectStart: func(agentID, socketPath string) {
		log.Printf("AGENTX-ConnectStart agent:%s socket:%s\n", agentID, socketPath)
	},
	ConnectDone: func(agentID, socketPath string, err error, d time.Duration) {
		log.Printf("AGENTX-ConnectDone agent:%s socket:%s err:%v took:%dms\n", agentID, socketPath, err, d.Milliseconds())
	},
	SessionOpened: func(agentID string, sessionID uint32) {
		log.Printf("AGENTX-SessionOpened agent:%s session:%d\n", agentID, sessionID)
	},
	SessionClosed: func(agentID string, sessionID uint32) {
		log.Printf("AGENTX-SessionClosed agent:%s session:%d\n", agentID, sessionID)
	},
	Error: DefaultLoggingHooks.Error,
	WriteDone: func(agentID string, output []byte, err error, d time.Duration) {
		log.Printf("AGENTX-WriteDone agent:%s err:%v took:%dms data:%s\n", agentID, err, d.Milliseconds(), hex.EncodeToString(output))
	},
	ReadDone: func(agentID string, input []byte, err error, d time.Duration) {
		log.Printf("AGENTX-ReadDone agent:%s err:%v took:%dms data:%s\n", agentID, err, d.Milliseconds(), hex.EncodeToString(input))
	},
	RegisterDone: func(agentID string, baseOid Oid, priority byte, err error) {
		log.Printf("AGENTX-RegisterDone agent:%s oid:%s priority:%d err:%v\n", agentID, baseOid, priority, err)
	},
	DispatchDone: func(agentID string, pduType PDUType, d time.Duration) {
		log.Printf("AGENTX-DispatchDone agent:%s type:%d took:%dms\n", agentID, pduType, d.Milliseconds())
	},
	UpdaterDone: func(agentID string, baseOid Oid, err error, d time.Duration) {
		log.Printf("AGENTX-UpdaterDone agent:%s oid:%s err:%v took:%dms\n", agentID, baseOid, err, d.Milliseconds())
	},
}

// NoOpLoggingHooks provides a set of hooks that do nothing. Every trace
// consumed by this package is merged onto a copy of NoOpLoggingHooks so an
// unset hook is always safe to call.
var NoOpLoggingHooks = &AgentTrace{
	ConnectStart:  func(agentID, socketPath string) {},
	ConnectDone:   func(agentID, socketPath string, err error, d time.Duration) {},
	SessionOpened: func(agentID string, sessionID uint32) {},
	SessionClosed: func(agentID string, sessionID uint32) {},
	Error:         func(location, agentID string, err error) {},
	WriteDone:     func(agentID string, output []byte, err error, d time.Duration) {},
	ReadDone:      func(agentID string, input []byte, err error, d time.Duration) {},
	RegisterDone:  func(agentID string, baseOid Oid, priority byte, err error) {},
	DispatchDone:  func(agentID string, pduType PDUType, d time.Duration) {},
	UpdaterDone:   func(agentID string, baseOid Oid, err error, d time.Duration) {},
}

// resolveTrace returns t with every nil hook filled in from NoOpLoggingHooks,
// leaving t itself untouched; a nil t resolves to NoOpLoggingHooks directly.
func resolveTrace(t *AgentTrace) *AgentTrace {
	if t == nil {
		return NoOpLoggingHooks
	}
	merged := *t
	_ = mergo.Merge(&merged, NoOpLoggingHooks)
	return &merged
}

// unique type to prevent external assignment into the context key space.
type agentTraceContextKey struct{}

// WithTrace returns a new context derived from ctx carrying trace, for
// retrieval with ContextTrace. Agent and Protocol do not read it: they
// always use the trace given at construction.
func WithTrace(ctx context.Context, trace *AgentTrace) context.Context {
	return context.WithValue(ctx, agentTraceContextKey{}, trace)
}

// ContextTrace returns the AgentTrace attached to ctx via WithTrace, fully
// resolved against NoOpLoggingHooks, or NoOpLoggingHooks itself if none was
// attached.
func ContextTrace(ctx context.Context) *AgentTrace {
	trace, _ := ctx.Value(agentTraceContextKey{}).(*AgentTrace)
	return resolveTrace(trace)
}
