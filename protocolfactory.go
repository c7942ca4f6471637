package agentx

import "time"

// protocolConfig collects the options governing a Protocol instance.
type protocolConfig struct {
	agentID    string
	network    string
	socketPath string
	timeout    time.Duration
	trace      *AgentTrace
}

var defaultProtocolConfig = protocolConfig{
	agentID:    "snmpkit",
	network:    "unix",
	socketPath: "/var/agentx/master",
	timeout:    5 * time.Second,
	trace:      NoOpLoggingHooks,
}

// ProtocolOption configures a Protocol built by NewProtocolWithOptions.
type ProtocolOption func(*protocolConfig)

// WithProtocolAgentID sets the human-readable agent-id string carried in
// the Open PDU's description field. Default "snmpkit".
func WithProtocolAgentID(id string) ProtocolOption {
	return func(c *protocolConfig) { c.agentID = id }
}

// WithProtocolNetwork sets the dial network, e.g. "unix" or "tcp". Default
// "unix".
func WithProtocolNetwork(network string) ProtocolOption {
	return func(c *protocolConfig) { c.network = network }
}

// WithProtocolTimeout sets the per-operation timeout used for connect,
// session handshake, and RecvPDU calls. Default 5s.
func WithProtocolTimeout(timeout time.Duration) ProtocolOption {
	return func(c *protocolConfig) { c.timeout = timeout }
}

// WithProtocolTrace attaches trace hooks for connect/read/write/session
// events. Default NoOpLoggingHooks.
func WithProtocolTrace(trace *AgentTrace) ProtocolOption {
	return func(c *protocolConfig) { c.trace = trace }
}

// NewProtocolWithOptions builds a Protocol for socketPath using the
// functional options above, falling back to defaultProtocolConfig for
// anything unset.
func NewProtocolWithOptions(socketPath string, opts ...ProtocolOption) Protocol {
	config := defaultProtocolConfig
	config.socketPath = socketPath
	for _, opt := range opts {
		opt(&config)
	}
	return NewProtocol(config.agentID, config.network, config.socketPath, config.timeout, config.trace)
}
