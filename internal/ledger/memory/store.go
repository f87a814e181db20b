// Package memory provides an in-memory implementation of the ledger contract
// used by tests and ephemeral environments. Each transaction works on a
// snapshot taken at Begin and buffers its writes; Commit re-checks the version
// of every document the transaction touched, so a concurrent commit to the
// same key fails the later transaction with ledger.ErrConflict.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medex/exchange-service/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	docs     map[string][]byte
	versions map[string]uint64
}

func NewStore() *Store {
	return &Store{
		docs:     make(map[string][]byte),
		versions: make(map[string]uint64),
	}
}

func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string][]byte, len(s.docs))
	versions := make(map[string]uint64, len(s.versions))
	for id, doc := range s.docs {
		snapshot[id] = doc
	}
	for id, version := range s.versions {
		versions[id] = version
	}
	return &tx{
		store:    s,
		snapshot: snapshot,
		versions: versions,
		writes:   make(map[string][]byte),
		touched:  make(map[string]struct{}),
	}, nil
}

type tx struct {
	store    *Store
	snapshot map[string][]byte
	versions map[string]uint64
	writes   map[string][]byte // nil value marks a delete
	touched  map[string]struct{}
	done     bool
}

var errTxDone = errors.New("transaction already finished")

func (t *tx) Get(ctx context.Context, id string) ([]byte, error) {
	if t.done {
		return nil, errTxDone
	}
	t.touched[id] = struct{}{}
	if doc, ok := t.writes[id]; ok {
		if doc == nil {
			return nil, ledger.ErrNotFound
		}
		return doc, nil
	}
	doc, ok := t.snapshot[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return doc, nil
}

func (t *tx) Put(ctx context.Context, id string, doc []byte) error {
	if t.done {
		return errTxDone
	}
	t.touched[id] = struct{}{}
	stored := make([]byte, len(doc))
	copy(stored, doc)
	t.writes[id] = stored
	return nil
}

func (t *tx) Delete(ctx context.Context, id string) error {
	if t.done {
		return errTxDone
	}
	if _, err := t.Get(ctx, id); err != nil {
		return err
	}
	t.writes[id] = nil
	return nil
}

func (t *tx) Exists(ctx context.Context, id string) (bool, error) {
	_, err := t.Get(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *tx) Query(ctx context.Context, sel ledger.Selector) (ledger.Iterator, error) {
	if t.done {
		return nil, errTxDone
	}
	merged := make(map[string][]byte, len(t.snapshot))
	for id, doc := range t.snapshot {
		merged[id] = doc
	}
	for id, doc := range t.writes {
		if doc == nil {
			delete(merged, id)
			continue
		}
		merged[id] = doc
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		if sel.Matches(merged[id]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	docs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, merged[id])
	}
	return &sliceIterator{docs: docs}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for id := range t.touched {
		if t.store.versions[id] != t.versions[id] {
			return ledger.ErrConflict
		}
	}
	for id, doc := range t.writes {
		if doc == nil {
			delete(t.store.docs, id)
		} else {
			t.store.docs[id] = doc
		}
		t.store.versions[id]++
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

type sliceIterator struct {
	docs [][]byte
	pos  int
	cur  []byte
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.docs) {
		return false
	}
	it.cur = it.docs[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator) Doc() []byte { return it.cur }
func (it *sliceIterator) Err() error  { return nil }
func (it *sliceIterator) Close()      {}
