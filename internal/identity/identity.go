// Package identity persists the device and session identifiers of one
// browser profile. Every accessor is a no-op until consent is granted.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"nighthub/internal/storage"
)

// ConsentChecker reports whether tracking is allowed.
type ConsentChecker interface {
	HasConsent() bool
}

var keys = []string{
	storage.KeyDevice,
	storage.KeySession,
	storage.KeySessionSeen,
	storage.KeySessionStart,
}

type Store struct {
	chain   *storage.Chain
	consent ConsentChecker
}

func NewStore(chain *storage.Chain, consent ConsentChecker) *Store {
	return &Store{chain: chain, consent: consent}
}

func (s *Store) DeviceID() (string, bool) {
	return s.get(storage.KeyDevice)
}

func (s *Store) SetDeviceID(id string) error {
	return s.set(storage.KeyDevice, id)
}

func (s *Store) SessionID() (string, bool) {
	return s.get(storage.KeySession)
}

func (s *Store) SetSessionID(id string) error {
	return s.set(storage.KeySession, id)
}

func (s *Store) SessionLastSeen() (time.Time, bool) {
	return s.getTime(storage.KeySessionSeen)
}

func (s *Store) SetSessionLastSeen(t time.Time) error {
	return s.setTime(storage.KeySessionSeen, t)
}

func (s *Store) SessionStart() (time.Time, bool) {
	return s.getTime(storage.KeySessionStart)
}

func (s *Store) SetSessionStart(t time.Time) error {
	return s.setTime(storage.KeySessionStart, t)
}

// Clear removes every identity key from every channel, with or without consent.
func (s *Store) Clear() error {
	var errs []error
	for _, k := range keys {
		if err := s.chain.Delete(k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) get(key string) (string, bool) {
	if !s.consent.HasConsent() {
		return "", false
	}
	return s.chain.Get(key)
}

func (s *Store) set(key, value string) error {
	if !s.consent.HasConsent() {
		return nil
	}
	return s.chain.Set(key, value)
}

// Timestamps are kept as epoch milliseconds.
func (s *Store) getTime(key string) (time.Time, bool) {
	raw, ok := s.get(key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func (s *Store) setTime(key string, t time.Time) error {
	return s.set(key, strconv.FormatInt(t.UnixMilli(), 10))
}
