// Package consent keeps the analytics opt-in flag for one browser profile.
package consent

import (
	"errors"
	"fmt"
	"sync"

	"nighthub/internal/storage"
)

const (
	Accepted = "accepted"
	Rejected = "rejected"
)

// Clearer erases tracking identifiers when consent is withdrawn.
type Clearer interface {
	Clear() error
}

// Store reads and writes the consent flag across the storage chain.
type Store struct {
	chain *storage.Chain

	mu        sync.Mutex
	clearers  []Clearer
	listeners map[int]func(granted bool)
	nextID    int
}

func NewStore(chain *storage.Chain) *Store {
	return &Store{
		chain:     chain,
		listeners: make(map[int]func(bool)),
	}
}

// HasConsent is true only when the stored flag is exactly "accepted".
func (s *Store) HasConsent() bool {
	v, ok := s.chain.Get(storage.KeyConsent)
	return ok && v == Accepted
}

// OnRevoke registers a store that must be wiped on revocation.
func (s *Store) OnRevoke(c Clearer) {
	s.mu.Lock()
	s.clearers = append(s.clearers, c)
	s.mu.Unlock()
}

// Grant records the opt-in and notifies subscribers.
func (s *Store) Grant() error {
	if err := s.chain.Set(storage.KeyConsent, Accepted); err != nil {
		return fmt.Errorf("failed to store consent: %w", err)
	}
	s.notify(true)
	return nil
}

// Revoke records the opt-out and erases every identity record before
// subscribers hear about it.
func (s *Store) Revoke() error {
	setErr := s.chain.Set(storage.KeyConsent, Rejected)

	s.mu.Lock()
	clearers := append([]Clearer(nil), s.clearers...)
	s.mu.Unlock()

	var errs []error
	if setErr != nil {
		errs = append(errs, fmt.Errorf("failed to store consent: %w", setErr))
	}
	for _, c := range clearers {
		if err := c.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear identity on revoke: %w", err))
		}
	}

	s.notify(false)
	return errors.Join(errs...)
}

// Subscribe registers fn for consent changes. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(granted bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(granted bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(granted)
	}
}
