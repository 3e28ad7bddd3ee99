package snapshot

import (
	"sync/atomic"

	"github.com/mentionmap/slack-mention-map/internal/models"
)

// Store holds the most recently published snapshot.
//
// Readers never block and never see a partially built value: a snapshot is
// constructed in full by the caller and then swapped in with one pointer
// store. Publishers must not mutate a snapshot after handing it over.
type Store struct {
	current atomic.Pointer[models.Snapshot]
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Publish replaces the current snapshot
func (s *Store) Publish(snap *models.Snapshot) {
	s.current.Store(snap)
}

// Current returns the last published snapshot, if any
func (s *Store) Current() (*models.Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}
