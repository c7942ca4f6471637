package agentx

import (
	"testing"

	assert "github.com/stretchr/testify/require"
)

func sysDescrVB(s string) VarBind {
	return VarBind{OID: Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, Value: NewOctetString([]byte(s))}
}

func TestDataStoreGetMiss(t *testing.T) {
	s := NewDataStore()
	assert.Nil(t, s.Get(Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, ""))
}

func TestDataStoreUninitializedContextTolerated(t *testing.T) {
	s := NewDataStore()
	assert.Nil(t, s.Get(Oid{1, 3, 6, 1}, "never-initialized"))
	assert.Nil(t, s.GetNext(Oid{1, 3, 6, 1}, nil, "never-initialized"))
}

func TestDataStoreUpdateAndGet(t *testing.T) {
	s := NewDataStore()
	base := Oid{1, 3, 6, 1, 2, 1, 1}
	vb := sysDescrVB("hello")
	s.Update(base, "", []VarBind{vb})

	got := s.Get(vb.OID, "")
	assert.NotNil(t, got)
	assert.Equal(t, []byte("hello"), got.Value.Bytes)
}

func TestDataStoreUpdateSubtreeReplace(t *testing.T) {
	s := NewDataStore()
	base := Oid{1, 3, 6, 1, 2, 1, 1}
	vbOld := VarBind{OID: Oid{1, 3, 6, 1, 2, 1, 1, 2, 0}, Value: NewInteger(1)}
	s.Update(base, "", []VarBind{vbOld})
	assert.NotNil(t, s.Get(vbOld.OID, ""))

	vbNew := VarBind{OID: Oid{1, 3, 6, 1, 2, 1, 1, 3, 0}, Value: NewInteger(2)}
	s.Update(base, "", []VarBind{vbNew})

	// full subtree replace: the old entry under base is gone, even though
	// the new varbind list didn't mention its OID at all.
	assert.Nil(t, s.Get(vbOld.OID, ""))
	assert.NotNil(t, s.Get(vbNew.OID, ""))
}

func TestDataStoreUpdateLeavesOtherSubtreesAlone(t *testing.T) {
	s := NewDataStore()
	outside := VarBind{OID: Oid{1, 3, 6, 1, 2, 1, 2, 1, 0}, Value: NewInteger(99)}
	s.Update(Oid{1, 3, 6, 1, 2, 1, 2}, "", []VarBind{outside})

	base := Oid{1, 3, 6, 1, 2, 1, 1}
	s.Update(base, "", []VarBind{sysDescrVB("x")})

	assert.NotNil(t, s.Get(outside.OID, ""))
}

func TestDataStoreContextIsolation(t *testing.T) {
	s := NewDataStore()
	base := Oid{1, 3, 6, 1, 2, 1, 1}
	s.Update(base, "ctxA", []VarBind{sysDescrVB("a")})
	s.Update(base, "ctxB", []VarBind{sysDescrVB("b")})

	gotA := s.Get(Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, "ctxA")
	gotB := s.Get(Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, "ctxB")
	assert.Equal(t, []byte("a"), gotA.Value.Bytes)
	assert.Equal(t, []byte("b"), gotB.Value.Bytes)
}

func TestDataStoreGetNext(t *testing.T) {
	s := NewDataStore()
	base := Oid{1, 3, 6, 1, 2, 1, 1}
	vbs := []VarBind{
		{OID: Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, Value: NewInteger(1)},
		{OID: Oid{1, 3, 6, 1, 2, 1, 1, 2, 0}, Value: NewInteger(2)},
		{OID: Oid{1, 3, 6, 1, 2, 1, 1, 3, 0}, Value: NewInteger(3)},
	}
	s.Update(base, "", vbs)

	next := s.GetNext(Oid{1, 3, 6, 1, 2, 1, 1}, nil, "")
	assert.Equal(t, vbs[0].OID, next)

	next = s.GetNext(vbs[0].OID, nil, "")
	assert.Equal(t, vbs[1].OID, next)

	next = s.GetNext(vbs[2].OID, nil, "")
	assert.Nil(t, next, "no more entries past the last one")
}

func TestDataStoreGetNextRespectsEndBound(t *testing.T) {
	s := NewDataStore()
	base := Oid{1, 3, 6, 1, 2, 1, 1}
	vbs := []VarBind{
		{OID: Oid{1, 3, 6, 1, 2, 1, 1, 1, 0}, Value: NewInteger(1)},
		{OID: Oid{1, 3, 6, 1, 2, 1, 1, 2, 0}, Value: NewInteger(2)},
	}
	s.Update(base, "", vbs)

	// end excludes the second entry
	next := s.GetNext(vbs[0].OID, Oid{1, 3, 6, 1, 2, 1, 1, 1, 1}, "")
	assert.Nil(t, next)

	// end exactly matches the second entry
	next = s.GetNext(vbs[0].OID, vbs[1].OID, "")
	assert.Equal(t, vbs[1].OID, next)
}

func TestDataStoreInitContextIdempotent(t *testing.T) {
	s := NewDataStore()
	s.InitContext("ctx1")
	s.InitContext("ctx1")
	assert.Nil(t, s.Get(Oid{1}, "ctx1"))
}
