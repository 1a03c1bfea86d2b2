package settings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Setting keys
const (
	KeyExcludedIPs     = "excluded_ips"
	KeyAdminAPIKeyHash = "admin_api_key_hash"
)

// ErrAdminKeyNotConfigured is returned when no admin API key has been generated.
var ErrAdminKeyNotConfigured = errors.New("admin API key not configured")

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var (
	excludedIPsCache *cache.Cache[string, []string]
	cacheMu          sync.RWMutex
)

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
		{Key: KeyAdminAPIKeyHash, Value: ""},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range defaults {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, slog.Default())

	return err
}

// IsIPExcluded reports whether tracking writes from ip should be dropped.
func IsIPExcluded(ip string) (bool, error) {
	cacheMu.RLock()
	c := excludedIPsCache
	cacheMu.RUnlock()
	if c == nil {
		return false, nil
	}

	excludedIPs, err := c.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	addr, addrErr := netip.ParseAddr(ip)
	for _, excludedIP := range excludedIPs {
		if excludedIP == "" {
			continue
		}
		if excludedIP == ip {
			return true, nil
		}
		if addrErr != nil || !strings.Contains(excludedIP, "/") {
			continue
		}
		if prefix, err := netip.ParsePrefix(excludedIP); err == nil && prefix.Contains(addr.Unmap()) {
			return true, nil
		}
	}
	return false, nil
}

// ClearCache drops cached settings; the next lookup reads the database.
func ClearCache() {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if excludedIPsCache != nil {
		excludedIPsCache.Clear()
	}
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// CreateOrUpdateSetting upserts a setting and refreshes the cache.
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}

	ClearCache()
	loadCache(dbConn, slog.Default())
	return nil
}

// SetExcludedIPs stores a normalized comma separated IP list.
func SetExcludedIPs(dbConn *gorm.DB, ips []string) error {
	cleaned := make([]string, 0, len(ips))
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			cleaned = append(cleaned, ip)
		}
	}
	return CreateOrUpdateSetting(dbConn, KeyExcludedIPs, strings.Join(cleaned, ","))
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		excludedIPs := strings.Split(value, ",")
		for i, ip := range excludedIPs {
			excludedIPs[i] = strings.TrimSpace(ip)
		}
		return excludedIPs, nil
	}

	cacheMu.Lock()
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
	cacheMu.Unlock()
}

// GenerateAdminAPIKey creates a new admin key, stores only its bcrypt hash and
// returns the plaintext once.
func GenerateAdminAPIKey(dbConn *gorm.DB) (string, error) {
	key, err := generateRandomToken(32)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin API key: %w", err)
	}

	if err := CreateOrUpdateSetting(dbConn, KeyAdminAPIKeyHash, string(hash)); err != nil {
		return "", err
	}
	return key, nil
}

// VerifyAdminAPIKey checks a presented key against the stored hash.
func VerifyAdminAPIKey(dbConn *gorm.DB, presented string) (bool, error) {
	hash, err := GetSetting(dbConn, KeyAdminAPIKeyHash)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to load admin API key: %w", err)
	}
	if hash == "" {
		return false, ErrAdminKeyNotConfigured
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare admin API key: %w", err)
	}
	return true, nil
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
