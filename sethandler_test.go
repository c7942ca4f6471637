package agentx

import (
	"testing"

	"github.com/pkg/errors"
	assert "github.com/stretchr/testify/require"
)

type recordingSetHandler struct {
	BaseSetHandler
	testErr error

	tested    []Value
	committed []Value
	undone    []Oid
	cleaned   []Oid
}

func (h *recordingSetHandler) Test(oid Oid, value Value) error {
	h.tested = append(h.tested, value)
	return h.testErr
}

func (h *recordingSetHandler) Commit(oid Oid, value Value) error {
	h.committed = append(h.committed, value)
	return nil
}

func (h *recordingSetHandler) Undo(oid Oid) error {
	h.undone = append(h.undone, oid)
	return nil
}

func (h *recordingSetHandler) Cleanup(oid Oid) error {
	h.cleaned = append(h.cleaned, oid)
	return nil
}

func TestBaseSetHandlerDefaultsAcceptEverything(t *testing.T) {
	var h BaseSetHandler
	assert.NoError(t, h.Test(Oid{1}, NewInteger(1)))
	assert.NoError(t, h.Commit(Oid{1}, NewInteger(1)))
	assert.NoError(t, h.Undo(Oid{1}))
	assert.NoError(t, h.Cleanup(Oid{1}))
}

func TestBoundSetHandlerTestStagesOnSuccess(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	oid := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	err := b.onTest(1, 1, oid, NewInteger(5))
	assert.NoError(t, err)
	assert.Len(t, h.tested, 1)

	entry, ok := b.transactions[makeTid(1, 1)]
	assert.True(t, ok)
	assert.Equal(t, oid, entry.oid)
}

func TestBoundSetHandlerTestDoesNotStageOnError(t *testing.T) {
	h := &recordingSetHandler{testErr: errors.New("bad value")}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	err := b.onTest(1, 1, Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, NewInteger(5))
	assert.Error(t, err)
	_, ok := b.transactions[makeTid(1, 1)]
	assert.False(t, ok, "a failed Test must not stage a transaction")
}

func TestBoundSetHandlerRepeatedTestOverwritesKey(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	oidA := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	oidB := Oid{1, 3, 6, 1, 2, 1, 1, 2, 0}
	assert.NoError(t, b.onTest(1, 1, oidA, NewInteger(1)))
	assert.NoError(t, b.onTest(1, 1, oidB, NewInteger(2)))

	entry, ok := b.transactions[makeTid(1, 1)]
	assert.True(t, ok)
	assert.Equal(t, oidB, entry.oid, "the second TestSet for the same transaction key replaces the first")
}

func TestBoundSetHandlerCommitDropsTransaction(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	oid := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	assert.NoError(t, b.onTest(1, 1, oid, NewInteger(5)))
	assert.NoError(t, b.onCommit(1, 1))

	assert.Len(t, h.committed, 1)
	assert.Equal(t, int32(5), h.committed[0].Int32())
	_, ok := b.transactions[makeTid(1, 1)]
	assert.False(t, ok, "Commit drops the staged transaction")
}

func TestBoundSetHandlerUndoDropsTransaction(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	oid := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	assert.NoError(t, b.onTest(1, 1, oid, NewInteger(5)))
	assert.NoError(t, b.onUndo(1, 1))

	assert.Equal(t, []Oid{oid}, h.undone)
	_, ok := b.transactions[makeTid(1, 1)]
	assert.False(t, ok)
}

func TestBoundSetHandlerCommitUndoCleanupNoOpIfMissing(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	assert.NoError(t, b.onCommit(9, 9))
	assert.NoError(t, b.onUndo(9, 9))
	assert.NoError(t, b.onCleanup(9, 9))
	assert.Empty(t, h.committed)
	assert.Empty(t, h.undone)
	assert.Empty(t, h.cleaned)
}

func TestBoundSetHandlerDistinctTransactionKeysIndependent(t *testing.T) {
	h := &recordingSetHandler{}
	b := newBoundSetHandler(h, Oid{1, 3, 6, 1, 2, 1, 1}, "")

	oidA := Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}
	oidB := Oid{1, 3, 6, 1, 2, 1, 1, 2, 0}
	assert.NoError(t, b.onTest(1, 1, oidA, NewInteger(1)))
	assert.NoError(t, b.onTest(2, 2, oidB, NewInteger(2)))

	assert.NoError(t, b.onCommit(1, 1))
	assert.Len(t, h.committed, 1)

	_, ok := b.transactions[makeTid(2, 2)]
	assert.True(t, ok, "committing one transaction leaves a distinct session/transaction key untouched")
}
