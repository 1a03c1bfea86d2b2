package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/settings"
	"nighthub/internal/testsupport"
)

func TestIsIPExcluded(t *testing.T) {
	t.Run("excludes exact IP match", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db))

		require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyExcludedIPs, "192.168.1.100"))

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.True(t, isExcluded)

		isExcluded, err = settings.IsIPExcluded("192.168.1.101")
		require.NoError(t, err)
		assert.False(t, isExcluded)
	})

	t.Run("handles IPs with whitespace", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db))

		require.NoError(t, settings.SetExcludedIPs(db, []string{" 192.168.1.100 ", "", "10.0.0.1"}))

		value, err := settings.GetSetting(db, settings.KeyExcludedIPs)
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.100,10.0.0.1", value)

		isExcluded, err := settings.IsIPExcluded("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, isExcluded)
	})

	t.Run("matches CIDR ranges", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db))

		require.NoError(t, settings.SetExcludedIPs(db, []string{"172.16.0.0/12", "2001:db8::/32"}))

		tests := []struct {
			ip       string
			excluded bool
		}{
			{"172.20.1.5", true},
			{"172.32.0.1", false},
			{"2001:db8::42", true},
			{"::ffff:172.16.9.9", true},
			{"not-an-ip", false},
		}
		for _, tt := range tests {
			isExcluded, err := settings.IsIPExcluded(tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.excluded, isExcluded, tt.ip)
		}
	})

	t.Run("empty list excludes nothing", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db))

		require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyExcludedIPs, ""))

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.False(t, isExcluded)
	})
}

func TestAdminAPIKey(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, settings.SetupDefaultSettings(db))

	_, err := settings.VerifyAdminAPIKey(db, "anything")
	assert.ErrorIs(t, err, settings.ErrAdminKeyNotConfigured)

	key, err := settings.GenerateAdminAPIKey(db)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	stored, err := settings.GetSetting(db, settings.KeyAdminAPIKeyHash)
	require.NoError(t, err)
	assert.NotEqual(t, key, stored)

	ok, err := settings.VerifyAdminAPIKey(db, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = settings.VerifyAdminAPIKey(db, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	rotated, err := settings.GenerateAdminAPIKey(db)
	require.NoError(t, err)
	ok, err = settings.VerifyAdminAPIKey(db, key)
	require.NoError(t, err)
	assert.False(t, ok, "old key stops working after rotation")
	ok, err = settings.VerifyAdminAPIKey(db, rotated)
	require.NoError(t, err)
	assert.True(t, ok)
}
