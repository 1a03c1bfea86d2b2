package storage_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/storage"
)

type failingChannel struct{ *storage.MemoryStore }

func (failingChannel) Set(string, string) error { return errors.New("quota exceeded") }

func TestChainReadPreference(t *testing.T) {
	durable := storage.NewMemoryStore()
	cookies := storage.NewCookieJar()
	chain := storage.NewChain(durable, cookies)

	t.Run("falls back to the cookie when the durable store is empty", func(t *testing.T) {
		require.NoError(t, cookies.Set(storage.KeyDevice, "from-cookie"))
		v, ok := chain.Get(storage.KeyDevice)
		assert.True(t, ok)
		assert.Equal(t, "from-cookie", v)
	})

	t.Run("prefers the durable store", func(t *testing.T) {
		require.NoError(t, durable.Set(storage.KeyDevice, "from-durable"))
		v, ok := chain.Get(storage.KeyDevice)
		assert.True(t, ok)
		assert.Equal(t, "from-durable", v)
	})

	t.Run("empty values are skipped", func(t *testing.T) {
		require.NoError(t, durable.Set(storage.KeySession, ""))
		require.NoError(t, cookies.Set(storage.KeySession, "s1"))
		v, _ := chain.Get(storage.KeySession)
		assert.Equal(t, "s1", v)
	})
}

func TestChainFansOutWrites(t *testing.T) {
	durable := storage.NewMemoryStore()
	cookies := storage.NewCookieJar()
	chain := storage.NewChain(durable, cookies)

	require.NoError(t, chain.Set(storage.KeySession, "abc"))
	v1, _ := durable.Get(storage.KeySession)
	v2, _ := cookies.Get(storage.KeySession)
	assert.Equal(t, "abc", v1)
	assert.Equal(t, "abc", v2)

	require.NoError(t, chain.Delete(storage.KeySession))
	_, ok1 := durable.Get(storage.KeySession)
	_, ok2 := cookies.Get(storage.KeySession)
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestChainKeepsWritingPastAFailure(t *testing.T) {
	cookies := storage.NewCookieJar()
	chain := storage.NewChain(failingChannel{MemoryStore: storage.NewMemoryStore()}, cookies)

	err := chain.Set(storage.KeyConsent, "accepted")
	assert.Error(t, err)

	v, ok := cookies.Get(storage.KeyConsent)
	assert.True(t, ok)
	assert.Equal(t, "accepted", v)
}

func TestCookieJarExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jar := storage.NewCookieJar(storage.WithClock(func() time.Time { return now }))

	require.NoError(t, jar.Set(storage.KeyDevice, "d1"))

	now = now.Add(storage.DefaultCookieMaxAge - time.Second)
	_, ok := jar.Get(storage.KeyDevice)
	assert.True(t, ok, "cookie should live for 180 days")

	now = now.Add(time.Second)
	_, ok = jar.Get(storage.KeyDevice)
	assert.False(t, ok, "cookie should be gone after 180 days")
}

func TestCookieJarDeleteExpiresAtEpoch(t *testing.T) {
	jar := storage.NewCookieJar()
	require.NoError(t, jar.Set(storage.KeySession, "s1"))
	require.NoError(t, jar.Delete(storage.KeySession))

	_, ok := jar.Get(storage.KeySession)
	assert.False(t, ok)

	cookies := jar.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, storage.KeySession, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.Equal(t, int64(0), cookies[0].Expires.Unix())
	assert.Equal(t, "/", cookies[0].Path)
}

func TestCookieJarLoad(t *testing.T) {
	jar := storage.NewCookieJar()
	jar.Load(map[string]string{storage.KeyConsent: "accepted", storage.KeyDevice: ""})

	v, ok := jar.Get(storage.KeyConsent)
	assert.True(t, ok)
	assert.Equal(t, "accepted", v)

	_, ok = jar.Get(storage.KeyDevice)
	assert.False(t, ok)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "store.yml")

	fs, err := storage.OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Set(storage.KeyDevice, "device-1"))
	require.NoError(t, fs.Set(storage.KeySession, "session-1"))
	require.NoError(t, fs.Delete(storage.KeySession))

	reopened, err := storage.OpenFileStore(path)
	require.NoError(t, err)

	v, ok := reopened.Get(storage.KeyDevice)
	assert.True(t, ok)
	assert.Equal(t, "device-1", v)

	_, ok = reopened.Get(storage.KeySession)
	assert.False(t, ok)
	assert.Equal(t, 1, reopened.Len())
}
