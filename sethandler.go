package agentx

import (
	"fmt"
	"sync"
)

// SetHandler is implemented by callers to accept SET requests against a
// registered subtree. Overriding the four callbacks opts a handler into
// validating (Test), applying (Commit), reverting (Undo), or releasing
// (Cleanup) a staged value.
type SetHandler interface {
	// Test validates a prospective value for oid. Returning an error
	// rejects the SET with WRONG_VALUE and the transaction is not staged.
	Test(oid Oid, value Value) error

	// Commit applies a previously-tested value.
	Commit(oid Oid, value Value) error

	// Undo reverts a previously-tested value that will not be committed.
	Undo(oid Oid) error

	// Cleanup releases any resources associated with a finished
	// transaction, run after Commit or Undo.
	Cleanup(oid Oid) error
}

// BaseSetHandler provides no-op Test/Commit/Undo/Cleanup defaults — embed
// it in a concrete SetHandler and override only the callbacks that need
// validation; the base class accepts every SET.
type BaseSetHandler struct{}

// Test accepts every SET by default.
func (BaseSetHandler) Test(oid Oid, value Value) error { return nil }

// Commit is a no-op by default.
func (BaseSetHandler) Commit(oid Oid, value Value) error { return nil }

// Undo is a no-op by default.
func (BaseSetHandler) Undo(oid Oid) error { return nil }

// Cleanup is a no-op by default.
func (BaseSetHandler) Cleanup(oid Oid) error { return nil }

// transactionEntry stages a single (oid, value) pair between TestSet and
// Commit/Undo/Cleanup, keyed by "<session_id>_<transaction_id>".
type transactionEntry struct {
	oid   Oid
	value Value
}

// boundSetHandler is the Agent/RequestHandler-facing wrapper around a
// user-supplied SetHandler: it owns the per-transaction staging table
// (spec.md §4.6) and dispatches onTest/onCommit/onUndo/onCleanup through
// the interface value so a concrete handler's overrides are honored —
// unlike calling through an embedded struct pointer, an interface value
// dispatches to the handler's actual dynamic type.
type boundSetHandler struct {
	handler SetHandler
	baseOid Oid
	context string

	mu           sync.Mutex
	transactions map[string]transactionEntry
}

func newBoundSetHandler(handler SetHandler, baseOid Oid, context string) *boundSetHandler {
	return &boundSetHandler{handler: handler, baseOid: baseOid, context: context}
}

func makeTid(sid, tid uint32) string {
	return fmt.Sprintf("%d_%d", sid, tid)
}

// onTest validates oid/value via the wrapped handler's Test, and on
// success stages the transaction keyed by (sid, tid). A second TestSet
// with the same key overwrites the first, per spec.md's own invariant
// that the master is presumed to have abandoned the earlier one. On
// failure, nothing is stored and the error is returned for the dispatcher
// to translate to WRONG_VALUE.
func (b *boundSetHandler) onTest(sid, tid uint32, oid Oid, value Value) error {
	if err := b.handler.Test(oid, value); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transactions == nil {
		b.transactions = make(map[string]transactionEntry)
	}
	b.transactions[makeTid(sid, tid)] = transactionEntry{oid: oid, value: value}
	return nil
}

// onCommit applies a staged transaction and drops it; a missing
// transaction is a silent no-op.
func (b *boundSetHandler) onCommit(sid, tid uint32) error {
	entry, ok := b.takeTransaction(sid, tid)
	if !ok {
		return nil
	}
	return b.handler.Commit(entry.oid, entry.value)
}

// onUndo reverts a staged transaction and drops it; a missing transaction
// is a silent no-op.
func (b *boundSetHandler) onUndo(sid, tid uint32) error {
	entry, ok := b.takeTransaction(sid, tid)
	if !ok {
		return nil
	}
	return b.handler.Undo(entry.oid)
}

// onCleanup releases a staged transaction and drops it; a missing
// transaction is a silent no-op.
func (b *boundSetHandler) onCleanup(sid, tid uint32) error {
	entry, ok := b.takeTransaction(sid, tid)
	if !ok {
		return nil
	}
	return b.handler.Cleanup(entry.oid)
}

func (b *boundSetHandler) takeTransaction(sid, tid uint32) (transactionEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := makeTid(sid, tid)
	entry, ok := b.transactions[key]
	if ok {
		delete(b.transactions, key)
	}
	return entry, ok
}
