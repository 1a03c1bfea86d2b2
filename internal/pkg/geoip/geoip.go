// Package geoip resolves client addresses to countries with a MaxMind
// GeoLite2 database. Lookups degrade to "" when no database is installed.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"nighthub/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger = slog.Default()
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func open(path string) *geoip2.Reader {
	if path == "" {
		logger.Debug("GeoIP database path not configured, countries disabled")
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logger.Info("GeoLite2 database not available, countries disabled",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	logger.Info("GeoLite2 database initialized", slog.String("path", path))
	return db
}

// GetGeoDB returns the reader, opening it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = open(config.GetConfig().GeoDBPath)
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reopens the database from disk, e.g. after an update.
func ReloadGeoDB() {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = open(config.GetConfig().GeoDBPath)
}

// CountryCode returns the uppercase ISO 3166-1 alpha-2 code for ip, or ""
// when it cannot be resolved.
func CountryCode(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	db := GetGeoDB()
	if db == nil {
		return ""
	}

	record, err := db.Country(parsed)
	if err != nil {
		logger.Debug("Country lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return ""
	}
	code := record.Country.IsoCode
	if code == "--" {
		return ""
	}
	return code
}
