package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the dataset the simulator currently tracks. Readers never
// block; refreshes are serialized through Exclusive.
type Store struct {
	current    atomic.Pointer[storeState]
	generation atomic.Uint64
	refreshMu  sync.Mutex
}

type storeState struct {
	ds         *TLEDataset
	generation uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil before the first load.
func (s *Store) Get() *TLEDataset {
	ds, _ := s.Current()
	return ds
}

// Current returns the dataset together with the generation it was installed
// under. Two reads with the same generation saw the same dataset.
func (s *Store) Current() (*TLEDataset, uint64) {
	st := s.current.Load()
	if st == nil {
		return nil, 0
	}
	return st.ds, st.generation
}

// Set installs ds under a new generation. A nil dataset is ignored.
func (s *Store) Set(ds *TLEDataset) {
	if ds == nil {
		return
	}
	s.current.Store(&storeState{ds: ds, generation: s.generation.Add(1)})
}

// Generation counts installed datasets; 0 means nothing was loaded yet.
func (s *Store) Generation() uint64 {
	_, gen := s.Current()
	return gen
}

// AgeSeconds returns how old the current dataset is, or -1 when none is
// loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Exclusive runs fn while holding the refresh lock so that two feed
// downloads never race to install their results.
func (s *Store) Exclusive(fn func() error) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return fn()
}
