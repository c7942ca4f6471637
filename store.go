package agentx

import (
	"sort"
	"sync"
)

// DataStore is a per-context, lexicographically-ordered map from Oid to
// VarBind. Each context is backed by a sorted slice rebuilt on Update, as
// spec.md §4.4 explicitly permits ("any ordered container... sorted array
// rebuilt on update"); a per-context mutex serializes updater goroutines
// against the dispatch goroutine, which spec.md's single-reactor model
// gets for free but concurrent Go code does not.
type DataStore struct {
	mu       sync.RWMutex
	contexts map[string]*contextStore
}

type contextStore struct {
	mu      sync.RWMutex
	entries []VarBind // sorted by OID.Compare
}

// NewDataStore returns an empty DataStore.
func NewDataStore() *DataStore {
	return &DataStore{contexts: make(map[string]*contextStore)}
}

// InitContext idempotently creates the named context's empty store. An
// empty context name is the default context.
func (s *DataStore) InitContext(context string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[context]; !ok {
		s.contexts[context] = &contextStore{}
	}
}

func (s *DataStore) contextFor(context string) *contextStore {
	s.mu.RLock()
	c, ok := s.contexts[context]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.contexts[context]; ok {
		return c
	}
	c = &contextStore{}
	s.contexts[context] = c
	return c
}

// Update atomically replaces every entry under baseOid in context with
// exactly varbinds: a subtree replace, not a merge. Any pre-existing entry
// whose OID is baseOid or a descendant is removed first, then the new
// varbinds are inserted, and the slice is re-sorted.
func (s *DataStore) Update(baseOid Oid, context string, varbinds []VarBind) {
	c := s.contextFor(context)

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.entries[:0:0]
	for _, e := range c.entries {
		if !baseOid.IsPrefixOf(e.OID) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, varbinds...)
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].OID.Compare(kept[j].OID) < 0
	})
	c.entries = kept
}

// Get returns the exact-match VarBind for oid in context, or nil if absent.
// A context that was never initialized behaves identically to an empty
// one: no matching OID means "not found," never a panic (spec.md §4.4's
// "returns null if no such OID exists" carries no qualification on context
// existence).
func (s *DataStore) Get(oid Oid, context string) *VarBind {
	c := s.contextFor(context)

	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].OID.Compare(oid) >= 0
	})
	if i < len(c.entries) && c.entries[i].OID.Equal(oid) {
		vb := c.entries[i]
		return &vb
	}
	return nil
}

// GetNext returns the smallest Oid strictly greater than start in context,
// or equal to end if end matches an entry, provided the result is no
// greater than end (an empty end means no upper bound). Returns nil if no
// such OID exists.
func (s *DataStore) GetNext(start, end Oid, context string) Oid {
	c := s.contextFor(context)

	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].OID.Compare(start) > 0
	})
	if i >= len(c.entries) {
		return nil
	}
	next := c.entries[i].OID
	if len(end) > 0 && next.Compare(end) > 0 {
		return nil
	}
	return next
}
