package agentx

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// snmpTrapOID is the standard SNMPv2 sentinel varbind (snmpTrapOID.0)
// every Notify carries as its first entry, identifying which trap fired.
var snmpTrapOID = Oid{1, 3, 6, 1, 6, 3, 1, 1, 4, 1, 0}

// Registration records one Updater's subtree: its base OID, optional
// refresh cadence, context, and the priority the master uses to resolve
// overlapping registrations from different subagents.
type Registration struct {
	OID      Oid
	Updater  Updater
	Freq     time.Duration
	Context  string
	Priority byte
}

// Agent owns a Protocol session, a DataStore, and the registration tables
// that drive Register/RegisterSet/Unregister, replaying them against the
// master on Start and refreshing each Updater on its own ticker.
type Agent struct {
	mu sync.Mutex

	agentID          string
	instanceID       string
	network          string
	socketPath       string
	timeout          time.Duration
	parallelEncoding bool
	workerThreads    int
	queueSize        int
	trace            *AgentTrace

	running       bool
	protocol      Protocol
	store         *DataStore
	registrations map[string]*Registration
	setHandlers   map[string]*boundSetHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func regKey(oid Oid, snmpContext string) string {
	return fmt.Sprintf("%s:%s", oid.String(), snmpContext)
}

// Register binds updater to baseOid (parsed via ParseOid, so leading/
// trailing dots and whitespace are tolerated) and stores a Registration
// for replay on Start. A second Register for the same (oid, context) pair
// overwrites the first, mirroring SetHandler's own overwrite-on-duplicate-
// key behavior.
func (a *Agent) Register(oidStr string, updater Updater, opts ...RegisterOption) error {
	oid, err := ParseOid(oidStr)
	if err != nil {
		return err
	}

	cfg := registerConfig{priority: 127}
	for _, opt := range opts {
		opt(&cfg)
	}

	updater.bind(a, oid)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.InitContext(cfg.context)
	a.registrations[regKey(oid, cfg.context)] = &Registration{
		OID:      oid,
		Updater:  updater,
		Freq:     cfg.freq,
		Context:  cfg.context,
		Priority: cfg.priority,
	}
	return nil
}

// RegisterSet binds handler to baseOid for SET requests, wrapping it in a
// boundSetHandler that owns the per-transaction staging table.
func (a *Agent) RegisterSet(oidStr string, handler SetHandler, opts ...RegisterOption) error {
	oid, err := ParseOid(oidStr)
	if err != nil {
		return err
	}

	cfg := registerConfig{priority: 127}
	for _, opt := range opts {
		opt(&cfg)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.setHandlers[regKey(oid, cfg.context)] = newBoundSetHandler(handler, oid, cfg.context)
	return nil
}

// Unregister removes a prior Register or RegisterSet for (oidStr,
// context). Matching neither table is a silent no-op.
func (a *Agent) Unregister(oidStr string, opts ...RegisterOption) error {
	oid, err := ParseOid(oidStr)
	if err != nil {
		return err
	}

	cfg := registerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	key := regKey(oid, cfg.context)
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.registrations, key)
	delete(a.setHandlers, key)
	return nil
}

// Start connects to the master, opens a session, replays every
// registration in ascending priority order (spec.md §4.9's resolved
// ordering, lowest priority value first — lowest numeric priority wins
// the master's overlap resolution), then launches one goroutine per
// timed Updater and a single inbound-PDU dispatch goroutine. SetHandler
// registrations are registered at priority 127 alongside the Updater
// ones; one whose (oid, context) key is already held by an Updater
// registration is not registered a second time.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.Wrap(ErrAlreadyRunning, "already running")
	}
	a.running = true
	a.mu.Unlock()

	traceAgentID := fmt.Sprintf("%s#%s", a.agentID, a.instanceID)
	protocol := NewProtocolWithOptions(a.socketPath,
		WithProtocolAgentID(traceAgentID),
		WithProtocolNetwork(a.network),
		WithProtocolTimeout(a.timeout),
		WithProtocolTrace(a.trace),
	)
	if err := protocol.Connect(ctx); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}
	if err := protocol.OpenSession(ctx); err != nil {
		_ = protocol.Disconnect()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	regs := make([]*Registration, 0, len(a.registrations))
	for _, r := range a.registrations {
		regs = append(regs, r)
	}
	toRegister := append([]*Registration(nil), regs...)
	for key, bh := range a.setHandlers {
		if _, ok := a.registrations[key]; !ok {
			toRegister = append(toRegister, &Registration{OID: bh.baseOid, Context: bh.context, Priority: 127})
		}
	}
	sort.Slice(toRegister, func(i, j int) bool { return toRegister[i].Priority < toRegister[j].Priority })
	a.mu.Unlock()

	for _, reg := range toRegister {
		if err := protocol.RegisterOid(ctx, reg.OID, reg.Priority, reg.Context); err != nil {
			_ = protocol.CloseSession(ctx)
			_ = protocol.Disconnect()
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return err
		}
	}

	var respondProtocol Protocol = protocol
	if a.parallelEncoding && a.workerThreads > 0 {
		respondProtocol = newOffloadingProtocol(protocol, a.workerThreads, a.queueSize)
	}

	a.mu.Lock()
	handler := NewRequestHandler(respondProtocol, a.store, a.setHandlers, a.trace)
	a.protocol = respondProtocol
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.dispatchLoop(runCtx, respondProtocol, handler)

	for _, reg := range regs {
		if reg.Freq <= 0 {
			continue
		}
		a.wg.Add(1)
		go a.updaterLoop(runCtx, reg)
	}

	return nil
}

// Stop cancels every running goroutine, awaits their termination, then
// closes the session and disconnects. A no-op if the agent is not running.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel := a.cancel
	protocol := a.protocol
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if protocol != nil {
		_ = protocol.CloseSession(context.Background())
		_ = protocol.Disconnect()
	}

	a.mu.Lock()
	a.running = false
	a.protocol = nil
	a.cancel = nil
	a.mu.Unlock()
	return nil
}

// Ping is a thin passthrough to the session's Protocol.Ping, exposed for a
// caller's own health-check loop. It is never invoked automatically by
// Start; calling it concurrently with a busy dispatch loop risks the
// Response being consumed by the dispatch goroutine's own RecvPDU instead
// of by this call, the same ambiguity the original single-reactor model
// leaves unresolved for an externally-driven ping.
func (a *Agent) Ping(ctx context.Context) error {
	a.mu.Lock()
	protocol := a.protocol
	a.mu.Unlock()
	if protocol == nil {
		return errors.Wrap(ErrNoSession, "not connected")
	}
	return protocol.Ping(ctx)
}

// sendTrap implements trapSender for Updater.SendTrap, constructing a
// Notify varbind list with the snmpTrapOID.0 sentinel ahead of varbinds.
func (a *Agent) sendTrap(trapOid Oid, varbinds []VarBind) error {
	a.mu.Lock()
	protocol := a.protocol
	a.mu.Unlock()
	if protocol == nil {
		return errors.Wrap(ErrNoSession, "not connected")
	}

	full := make([]VarBind, 0, len(varbinds)+1)
	full = append(full, VarBind{OID: snmpTrapOID, Value: NewObjectIdentifier(trapOid)})
	full = append(full, varbinds...)
	return protocol.SendNotify(full)
}

func (a *Agent) dispatchLoop(ctx context.Context, protocol Protocol, handler *RequestHandler) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		header, body, err := protocol.RecvPDU(ctx, a.timeout)
		if err != nil {
			a.trace.Error("dispatch_loop", a.agentID, err)
			return
		}
		if header == nil {
			continue
		}
		if err := handler.Dispatch(*header, body); err != nil {
			a.trace.Error("dispatch_loop", a.agentID, err)
		}
	}
}

func (a *Agent) updaterLoop(ctx context.Context, reg *Registration) {
	defer a.wg.Done()
	ticker := time.NewTicker(reg.Freq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			begin := time.Now()
			err := reg.Updater.Update()
			if err == nil {
				a.store.Update(reg.OID, reg.Context, reg.Updater.stagedVarBinds())
			}
			a.trace.UpdaterDone(a.agentID, reg.OID, err, time.Since(begin))
		}
	}
}
