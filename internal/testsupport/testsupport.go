package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nighthub/internal"
	"nighthub/internal/catalog"
	"nighthub/internal/config"
	"nighthub/internal/database"
	"nighthub/internal/settings"
	"nighthub/internal/tracking"
	"nighthub/internal/users"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with nighthub's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all nighthub models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by root test
// name so subtests share it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	ensureTestEnv()

	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set NIGHTHUB_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

var envOnce sync.Once

// ensureTestEnv defaults NIGHTHUB_ENV to test when the runner did not set it.
func ensureTestEnv() {
	envOnce.Do(func() {
		if os.Getenv("NIGHTHUB_ENV") == "" {
			os.Setenv("NIGHTHUB_ENV", "test")
			config.Reset()
		}
	})
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTable deletes every row of one table.
func CleanTable(db *gorm.DB, table string) {
	db.Exec("DELETE FROM " + table)
}

// CreateTestUser creates a user with a fixed id, returning the existing row if present
func CreateTestUser(db *gorm.DB, id, email, displayName string) users.User {
	var user users.User
	if db.Where("id = ?", id).First(&user).Error == nil {
		return user
	}

	user = users.User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	db.Create(&user)
	return user
}

// CreateTestEvent inserts a catalog event.
func CreateTestEvent(t *testing.T, db *gorm.DB, id, name, referral string) catalog.Event {
	t.Helper()
	event := catalog.Event{
		ID:          id,
		Name:        name,
		Status:      catalog.StatusPublished,
		StartAt:     time.Now().UTC().Add(24 * time.Hour),
		URLReferral: referral,
	}
	event.SetGenres(nil)
	require.NoError(t, db.Create(&event).Error)
	return event
}

// CreateTestSession inserts a session row directly.
func CreateTestSession(t *testing.T, db *gorm.DB, session tracking.Session) tracking.Session {
	t.Helper()
	if session.StartedAt.IsZero() {
		session.StartedAt = session.LastSeenAt
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

// CreateTestPageView inserts a page view row directly.
func CreateTestPageView(t *testing.T, db *gorm.DB, view tracking.PageView) tracking.PageView {
	t.Helper()
	require.NoError(t, db.Create(&view).Error)
	return view
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// SetupAdminAPIKey seeds default settings and returns a fresh admin key.
func SetupAdminAPIKey(t *testing.T, db *gorm.DB) string {
	t.Helper()
	require.NoError(t, settings.SetupDefaultSettings(db))
	key, err := settings.GenerateAdminAPIKey(db)
	require.NoError(t, err)
	return key
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	ensureTestEnv()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
