package agentx

import "github.com/pkg/errors"

// Sentinel error kinds returned by this package. Call sites wrap these with
// errors.Wrap/Wrapf for context; test against the kind with errors.Is or
// errors.Cause.
var (
	// ErrInvalidOid is returned when a dotted-decimal OID string fails to parse.
	ErrInvalidOid = errors.New("agentx: invalid oid")

	// ErrProtocol is returned for unknown PDU tags, version mismatches, short
	// frames, or a reply that is not the expected PDU type.
	ErrProtocol = errors.New("agentx: protocol error")

	// ErrConnection is returned for socket failures, missing replies, and EOF
	// mid-PDU.
	ErrConnection = errors.New("agentx: connection error")

	// ErrNoSession is returned when an operation that requires a live session
	// is attempted without one.
	ErrNoSession = errors.New("agentx: no session")

	// ErrRegistration is returned when the master rejects a Register PDU.
	ErrRegistration = errors.New("agentx: registration failed")

	// ErrNotBound is returned by Updater methods invoked before the updater
	// has been attached to a running Agent.
	ErrNotBound = errors.New("agentx: not bound")

	// ErrAlreadyRunning is returned by Agent.Start when the agent is already
	// started.
	ErrAlreadyRunning = errors.New("agentx: already running")
)
