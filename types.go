package agentx

// VarBind pairs an Oid with its Value. It is the unit of exchange in
// Get/GetNext/GetBulk/TestSet results and Notify payloads. Wire encoding is
// value-tag, reserved, Oid, payload.
type VarBind struct {
	OID   Oid
	Value Value
}

// SearchRange is a (start, end) Oid pair used by Get/GetNext/GetBulk
// requests. Include, carried on the encoded start Oid, means "test the
// start Oid itself before advancing" for GetNext-style traversal. An empty
// End means unbounded.
type SearchRange struct {
	Start   Oid
	End     Oid
	Include bool
}
