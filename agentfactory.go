package agentx

import (
	"time"

	"github.com/google/uuid"
)

type agentConfig struct {
	agentID          string
	network          string
	socketPath       string
	timeout          time.Duration
	parallelEncoding bool
	workerThreads    int
	queueSize        int
	trace            *AgentTrace
}

var defaultAgentConfig = agentConfig{
	agentID:    "snmpkit",
	network:    "unix",
	socketPath: "/var/agentx/master",
	timeout:    5 * time.Second,
	trace:      NoOpLoggingHooks,
}

// AgentOption configures an Agent built by NewAgent.
type AgentOption func(*agentConfig)

// WithAgentID sets the human-readable agent identification string. Start
// sends it in the Open PDU description as "<id>#<instance-uuid>". Default
// "snmpkit".
func WithAgentID(id string) AgentOption {
	return func(c *agentConfig) { c.agentID = id }
}

// WithSocketPath sets the master's listening socket path. Default
// "/var/agentx/master".
func WithSocketPath(path string) AgentOption {
	return func(c *agentConfig) { c.socketPath = path }
}

// WithNetwork sets the dial network, e.g. "unix" or "tcp". Default "unix".
func WithNetwork(network string) AgentOption {
	return func(c *agentConfig) { c.network = network }
}

// WithTimeout sets the per-operation timeout for connect, session
// handshake, and PDU reads. Default 5s.
func WithTimeout(timeout time.Duration) AgentOption {
	return func(c *agentConfig) { c.timeout = timeout }
}

// WithParallelEncoding enables offloading Response/Notify encoding onto a
// bounded worker pool instead of the calling goroutine. Has no effect
// unless WithWorkerThreads is also set to a positive value.
func WithParallelEncoding(enabled bool) AgentOption {
	return func(c *agentConfig) { c.parallelEncoding = enabled }
}

// WithWorkerThreads sets the encode worker pool's goroutine count.
func WithWorkerThreads(n int) AgentOption {
	return func(c *agentConfig) { c.workerThreads = n }
}

// WithQueueSize sets the encode worker pool's job queue depth.
func WithQueueSize(n int) AgentOption {
	return func(c *agentConfig) { c.queueSize = n }
}

// WithAgentTrace attaches trace hooks for connect/read/write/session/
// dispatch/updater events. Default NoOpLoggingHooks.
func WithAgentTrace(trace *AgentTrace) AgentOption {
	return func(c *agentConfig) { c.trace = trace }
}

// NewAgent returns an Agent configured by opts, with empty registration
// tables and a fresh DataStore.
func NewAgent(opts ...AgentOption) *Agent {
	config := defaultAgentConfig
	for _, opt := range opts {
		opt(&config)
	}

	return &Agent{
		agentID:          config.agentID,
		instanceID:       uuid.NewString(),
		network:          config.network,
		socketPath:       config.socketPath,
		timeout:          config.timeout,
		parallelEncoding: config.parallelEncoding,
		workerThreads:    config.workerThreads,
		queueSize:        config.queueSize,
		trace:            resolveTrace(config.trace),
		store:            NewDataStore(),
		registrations:    make(map[string]*Registration),
		setHandlers:      make(map[string]*boundSetHandler),
	}
}

// registerConfig collects the per-call options for Register, RegisterSet,
// and Unregister.
type registerConfig struct {
	context  string
	freq     time.Duration
	priority byte
}

// RegisterOption configures a single Register/RegisterSet/Unregister call.
type RegisterOption func(*registerConfig)

// WithRegisterContext scopes a registration to a non-default SNMP
// context. Default "" (the default context).
func WithRegisterContext(context string) RegisterOption {
	return func(c *registerConfig) { c.context = context }
}

// WithRegisterFreq sets an Updater's refresh cadence. A zero or negative
// value (the default) means the Agent never schedules a refresh for this
// registration; the caller is responsible for keeping the DataStore
// current by other means.
func WithRegisterFreq(freq time.Duration) RegisterOption {
	return func(c *registerConfig) { c.freq = freq }
}

// WithRegisterPriority sets the priority the master uses to resolve
// overlapping registrations from different subagents; lower values win.
// Default 127, the RFC 2741 suggested neutral priority.
func WithRegisterPriority(priority byte) RegisterOption {
	return func(c *registerConfig) { c.priority = priority }
}

// offloadingProtocol wraps a Protocol so SendResponse/SendNotify encode on
// a bounded worker pool rather than the calling goroutine, realizing the
// parallel_encoding/worker_threads/queue_size configuration hints.
type offloadingProtocol struct {
	Protocol
	jobs chan func()
}

func newOffloadingProtocol(p Protocol, workerThreads, queueSize int) *offloadingProtocol {
	if queueSize <= 0 {
		queueSize = workerThreads
	}
	o := &offloadingProtocol{Protocol: p, jobs: make(chan func(), queueSize)}
	for i := 0; i < workerThreads; i++ {
		go o.worker()
	}
	return o
}

func (o *offloadingProtocol) worker() {
	for job := range o.jobs {
		job()
	}
}

func (o *offloadingProtocol) SendResponse(inbound PDUHeader, varbinds []VarBind, errCode, index uint16) error {
	result := make(chan error, 1)
	o.jobs <- func() {
		result <- o.Protocol.SendResponse(inbound, varbinds, errCode, index)
	}
	return <-result
}

func (o *offloadingProtocol) SendNotify(varbinds []VarBind) error {
	result := make(chan error, 1)
	o.jobs <- func() {
		result <- o.Protocol.SendNotify(varbinds)
	}
	return <-result
}
