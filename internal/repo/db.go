// Package repo is the GORM persistence layer. Functions take a *gorm.DB so
// they run equally inside or outside a transaction, hold no business rules
// and return ErrNotFound or ErrDuplicate for the two expected failures.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// sqlitePragmas are set through the DSN so every pooled connection gets
// them, not only the first.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Options selects and tunes the database.
type Options struct {
	Driver string // sqlite (default) or postgres
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN     string
	Tracing bool
	// Log receives GORM's warnings, errors and slow queries. The zero
	// logger discards them.
	Log       zerolog.Logger
	SlowQuery time.Duration
}

// Open connects, tunes the pool and attaches query tracing when asked.
func Open(opts Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         newGormLogger(opts.Log, opts.SlowQuery),
		TranslateError: true,
	}
	var (
		db      *gorm.DB
		maxOpen int
		err     error
	)
	switch opts.Driver {
	case "", "sqlite":
		db, err = openSQLite(opts.DSN, gcfg)
		maxOpen = 10
	case "postgres":
		db, err = gorm.Open(postgres.Open(opts.DSN), gcfg)
		maxOpen = 25
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("gorm tracing plugin: %w", err)
		}
	}
	return db, nil
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	// SQLite reports a missing parent directory as "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite directory: %w", err)
		}
	}
	return gorm.Open(sqlite.Open(sqliteDSN(path)), gcfg)
}

func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// AutoMigrate creates or updates every table, parents before children.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Profile{},
		&domain.RefreshToken{},
		&domain.Journey{},
		&domain.Leg{},
		&domain.MatchRequest{},
		&domain.Dismissal{},
		&domain.Chat{},
		&domain.ChatRead{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}
