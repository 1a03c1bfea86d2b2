// Package storage holds the client-side key/value channels the tracker keeps
// its consent and identity records in.
package storage

import "errors"

// Record keys shared by the consent and identity stores.
const (
	KeyConsent      = "nh-consent"
	KeyDevice       = "nh-device"
	KeySession      = "nh-session"
	KeySessionSeen  = "nh-session-ts"
	KeySessionStart = "nh-session-start"
)

// Channel is a single backing store for string records.
type Channel interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Chain reads from the first channel holding a value and writes to all of them.
type Chain struct {
	channels []Channel
}

// NewChain builds a chain; read preference follows argument order.
func NewChain(channels ...Channel) *Chain {
	return &Chain{channels: channels}
}

// Get returns the first non-empty value in channel order.
func (c *Chain) Get(key string) (string, bool) {
	for _, ch := range c.channels {
		if v, ok := ch.Get(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Set writes to every channel. A failing channel does not stop the others.
func (c *Chain) Set(key, value string) error {
	var errs []error
	for _, ch := range c.channels {
		if err := ch.Set(key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes the key from every channel.
func (c *Chain) Delete(key string) error {
	var errs []error
	for _, ch := range c.channels {
		if err := ch.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
