package agentx

import (
	"github.com/pkg/errors"
)

// trapSender is the subset of Agent an Updater needs to send traps,
// narrowed to keep Updater's dependency on Agent a non-owning reference
// rather than a back-pointer to the concrete type (spec.md §9's "replace
// the back-reference with an explicit handle passed into bind").
type trapSender interface {
	sendTrap(trapOid Oid, varbinds []VarBind) error
}

// Updater is implemented by callers to periodically refresh a subtree of
// the DataStore. Update is a pure staging function: it calls the typed
// Set* helpers to populate an internal suffix-to-Value map, and the Agent
// takes that map and publishes it to the DataStore after Update returns,
// so readers never observe a partial update.
type Updater interface {
	// Update is invoked on the registration's refresh cadence. Implementers
	// call the Set* helpers (and optionally Clear first) to stage the
	// subtree's current values; the Agent handles publication.
	Update() error

	bind(agent trapSender, baseOid Oid)
	stagedVarBinds() []VarBind
}

// BaseUpdater provides the staging map and typed setters described by
// spec.md §4.5. Embed it in a concrete Updater implementation and override
// Update.
type BaseUpdater struct {
	agent   trapSender
	baseOid Oid
	values  map[string]Value
}

// Update is a no-op default; concrete updaters override it.
func (u *BaseUpdater) Update() error { return nil }

func (u *BaseUpdater) bind(agent trapSender, baseOid Oid) {
	u.agent = agent
	u.baseOid = baseOid
}

// Clear empties the staged value map.
func (u *BaseUpdater) Clear() {
	u.values = nil
}

func (u *BaseUpdater) stage(suffix string, v Value) {
	if u.values == nil {
		u.values = make(map[string]Value)
	}
	u.values[suffix] = v
}

// SetInteger stages a signed 32-bit Integer at suffix.
func (u *BaseUpdater) SetInteger(suffix string, v int32) {
	u.stage(suffix, NewInteger(v))
}

// SetOctetString stages an OctetString of raw bytes at suffix; see
// SetOctetStringText for the string form.
func (u *BaseUpdater) SetOctetString(suffix string, v []byte) {
	u.stage(suffix, NewOctetString(v))
}

// SetOctetStringText is the string-argument convenience form of
// SetOctetString, encoding v as UTF-8.
func (u *BaseUpdater) SetOctetStringText(suffix, v string) {
	u.stage(suffix, NewOctetString([]byte(v)))
}

// SetObjectIdentifier stages an ObjectIdentifier value parsed from a
// dotted-decimal string at suffix.
func (u *BaseUpdater) SetObjectIdentifier(suffix, oidStr string) error {
	oid, err := ParseOid(oidStr)
	if err != nil {
		return err
	}
	u.stage(suffix, NewObjectIdentifier(oid))
	return nil
}

// SetIPAddress stages an IpAddress value parsed from a dotted-quad string
// at suffix, rejecting malformed addresses.
func (u *BaseUpdater) SetIPAddress(suffix, dottedQuad string) error {
	a, b, c, d, err := parseIPv4(dottedQuad)
	if err != nil {
		return err
	}
	u.stage(suffix, NewIPAddress(a, b, c, d))
	return nil
}

// SetCounter32 stages an unsigned 32-bit Counter32 at suffix.
func (u *BaseUpdater) SetCounter32(suffix string, v uint32) {
	u.stage(suffix, NewCounter32(v))
}

// SetGauge32 stages an unsigned 32-bit Gauge32 at suffix.
func (u *BaseUpdater) SetGauge32(suffix string, v uint32) {
	u.stage(suffix, NewGauge32(v))
}

// SetTimeTicks stages an unsigned 32-bit TimeTicks at suffix.
func (u *BaseUpdater) SetTimeTicks(suffix string, v uint32) {
	u.stage(suffix, NewTimeTicks(v))
}

// SetOpaque stages an Opaque byte string at suffix.
func (u *BaseUpdater) SetOpaque(suffix string, v []byte) {
	u.stage(suffix, NewOpaque(v))
}

// SetCounter64 stages an unsigned 64-bit Counter64 at suffix.
func (u *BaseUpdater) SetCounter64(suffix string, v uint64) {
	u.stage(suffix, NewCounter64(v))
}

// GetValue returns the staged Value at suffix, or nil if absent.
func (u *BaseUpdater) GetValue(suffix string) *Value {
	v, ok := u.values[suffix]
	if !ok {
		return nil
	}
	return &v
}

// stagedVarBinds returns one VarBind per staged entry, with the OID
// formed by appending suffix to the bound base OID (or the bare suffix
// OID if unbound).
func (u *BaseUpdater) stagedVarBinds() []VarBind {
	vbs := make([]VarBind, 0, len(u.values))
	for suffix, v := range u.values {
		oid := u.varBindOid(suffix)
		vbs = append(vbs, VarBind{OID: oid, Value: v})
	}
	return vbs
}

func (u *BaseUpdater) varBindOid(suffix string) Oid {
	suffixOid, err := ParseOid(suffix)
	if err != nil {
		// The typed setters do not parse the suffix, so an unparsable one
		// only shows up here; it is treated as an empty suffix (yielding
		// the bare base OID) rather than a panic deep in a refresh loop.
		suffixOid = Oid{}
	}
	if len(u.baseOid) == 0 {
		return suffixOid
	}
	full := make(Oid, 0, len(u.baseOid)+len(suffixOid))
	full = append(full, u.baseOid...)
	full = append(full, suffixOid...)
	return full
}

// SendTrap delegates to the bound Agent, constructing a Notify varbind
// list with the trap OID sentinel. Fails with ErrNotBound if the updater
// has never been attached to a running Agent.
func (u *BaseUpdater) SendTrap(trapOid Oid, varbinds ...VarBind) error {
	if u.agent == nil {
		return errors.Wrap(ErrNotBound, "updater not bound to an agent")
	}
	return u.agent.sendTrap(trapOid, varbinds)
}
