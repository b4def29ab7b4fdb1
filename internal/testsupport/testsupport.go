// Package testsupport provides shared helpers for package tests: an
// isolated in-memory database, a fully wired storage stack and a
// scriptable browser-signal fake.
package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wibi/internal/storage"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with wibi's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

func allModels() []any {
	return []any{
		&storage.StoredValue{},
	}
}

// SetupTestDB creates an isolated in-memory database for the calling
// test, migrated and cached per root test name.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
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

// SetupTestDBManager returns a DB manager over an isolated test database.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// NewTestStore builds the full three-tier store: durable test database,
// in-memory session tier and a cookie jar in the test's temp dir.
func NewTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, _ := NewTestStoreWithJar(t)
	return store
}

// NewTestStoreWithJar also exposes the cookie jar tier for tests that
// seed raw legacy cookies.
func NewTestStoreWithJar(t *testing.T) (*storage.Store, *storage.CookieJarTier) {
	t.Helper()

	dbManager, testLogger := SetupTestDBManager(t)
	durable := storage.NewDurableTier(dbManager, testLogger)
	session := storage.NewMemoryTier()
	jarPath := filepath.Join(t.TempDir(), "cookies.json")
	cookies, err := storage.NewCookieJarTier(jarPath, false)
	if err != nil {
		t.Fatalf("testsupport: failed to create cookie jar: %v", err)
	}
	return storage.New(durable, session, cookies, testLogger), cookies
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// FakeSignals is a scriptable BrowserSignals implementation. The zero
// value resembles a plain desktop browser; tests flip fields to simulate
// automation.
type FakeSignals struct {
	IsWebDriver   bool
	DocumentAttrs map[string]string
	Globals       map[string]bool
	UA            string
	Plugins       int
	Langs         []string
	ChromeRuntime bool
	Concurrency   int
	MemoryGB      float64
	Width, Height int
	TZ            string
	TZErr         error
	LoadTime      time.Duration
	LoadTimeKnown bool
}

// NewHumanSignals returns signals that score zero against the default
// policy.
func NewHumanSignals() *FakeSignals {
	return &FakeSignals{
		UA:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Plugins:       3,
		Langs:         []string{"en-US", "en"},
		ChromeRuntime: true,
		Concurrency:   8,
		MemoryGB:      8,
		Width:         1920,
		Height:        1080,
		TZ:            "Africa/Johannesburg",
		LoadTime:      1200 * time.Millisecond,
		LoadTimeKnown: true,
	}
}

func (f *FakeSignals) WebDriver() bool { return f.IsWebDriver }

func (f *FakeSignals) DocumentAttribute(name string) string {
	return f.DocumentAttrs[name]
}

func (f *FakeSignals) HasGlobal(name string) bool { return f.Globals[name] }

func (f *FakeSignals) UserAgent() string { return f.UA }

func (f *FakeSignals) PluginCount() int { return f.Plugins }

func (f *FakeSignals) Languages() []string { return f.Langs }

func (f *FakeSignals) HasChromeRuntime() bool { return f.ChromeRuntime }

func (f *FakeSignals) HardwareConcurrency() int { return f.Concurrency }

func (f *FakeSignals) DeviceMemoryGB() float64 { return f.MemoryGB }

func (f *FakeSignals) ScreenSize() (int, int) { return f.Width, f.Height }

func (f *FakeSignals) Timezone() (string, error) { return f.TZ, f.TZErr }

func (f *FakeSignals) PageLoadTime() (time.Duration, bool) { return f.LoadTime, f.LoadTimeKnown }
