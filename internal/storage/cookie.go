package storage

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultCookieMaxAge matches the lifetime of the identity cookies.
const DefaultCookieMaxAge = 180 * 24 * time.Hour

type cookieEntry struct {
	value   string
	expires time.Time
}

// CookieJar is the cookie channel. Entries carry an expiry and read as absent
// once it has passed; Delete expires the cookie at the Unix epoch.
type CookieJar struct {
	mu      sync.RWMutex
	entries map[string]cookieEntry
	maxAge  time.Duration
	now     func() time.Time
}

type CookieOption func(*CookieJar)

// WithMaxAge overrides the cookie lifetime.
func WithMaxAge(d time.Duration) CookieOption {
	return func(j *CookieJar) { j.maxAge = d }
}

// WithClock injects the time source used for expiry.
func WithClock(now func() time.Time) CookieOption {
	return func(j *CookieJar) { j.now = now }
}

func NewCookieJar(opts ...CookieOption) *CookieJar {
	j := &CookieJar{
		entries: make(map[string]cookieEntry),
		maxAge:  DefaultCookieMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *CookieJar) Get(key string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.entries[key]
	if !ok || !j.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (j *CookieJar) Set(key, value string) error {
	j.mu.Lock()
	j.entries[key] = cookieEntry{value: value, expires: j.now().Add(j.maxAge)}
	j.mu.Unlock()
	return nil
}

func (j *CookieJar) Delete(key string) error {
	j.mu.Lock()
	j.entries[key] = cookieEntry{expires: time.Unix(0, 0).UTC()}
	j.mu.Unlock()
	return nil
}

// Load seeds the jar from cookies sent by a client. Values without an expiry
// are given the jar's max age.
func (j *CookieJar) Load(cookies map[string]string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	exp := j.now().Add(j.maxAge)
	for name, value := range cookies {
		if value == "" {
			continue
		}
		j.entries[name] = cookieEntry{value: value, expires: exp}
	}
}

// Cookies renders the jar as response cookies, including expired ones so the
// client drops them too.
func (j *CookieJar) Cookies() []*fiber.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*fiber.Cookie, 0, len(j.entries))
	for name, e := range j.entries {
		out = append(out, &fiber.Cookie{
			Name:     name,
			Value:    e.value,
			Path:     "/",
			Expires:  e.expires,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return out
}
