// Package sqlite persists the proxy state arena in SQLite through GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/compose-network/ima-proxy/x/store"
)

const (
	// InMemoryDSN creates an ephemeral database.
	InMemoryDSN = ":memory:"

	dbDirPermissions = 0o750
)

var (
	gormConfig = &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	schemaModels = []any{
		&Registration{},
		&RoleMember{},
		&ChannelRecord{},
		&OutgoingMessage{},
		&LinkRecord{},
		&ReceiptRecord{},
		&BalanceRecord{},
		&UserRecord{},
		&SettingRecord{},
	}
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a GORM client.
type Store struct {
	client *gorm.DB
}

// OpenFile opens (or creates) dir/filename and migrates the schema.
func OpenFile(dir, filename string) (*Store, error) {
	dsn, err := prepareFilePath(dir, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare database path")
	}
	return open(dsn)
}

// OpenInMemory opens a non-persistent database, mostly for tests.
func OpenInMemory() (*Store, error) {
	return open(InMemoryDSN)
}

func open(dsn string) (*Store, error) {
	if dsn != InMemoryDSN && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&mode=rwc"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, errors.Wrap(err, "failed to auto-migrate database schema")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// One connection: writers serialize and :memory: stays a single database.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return &Store{client: db}, nil
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.client.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx})
	})
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	return s.client.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx, writable: true})
	})
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

func prepareFilePath(dir, filename string) (string, error) {
	if strings.Contains(dir, InMemoryDSN) {
		return dir, nil
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
			return "", errors.Wrapf(err, "failed to create directory: %s", dir)
		}
	} else if err != nil {
		return "", errors.Wrap(err, "error checking directory")
	}

	return fmt.Sprintf("%s/%s", dir, filename), nil
}
