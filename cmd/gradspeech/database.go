package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-gradspeech"
}

// openDatabase returns a persistence client for the configured record store.
func openDatabase(cfg core.StoreConfig) (*persistence.Client, error) {
	storeURL := strings.TrimSpace(cfg.URL)
	if storeURL == "" {
		return nil, fmt.Errorf("store url is required")
	}

	var (
		sqlDB   *sql.DB
		dialect schema.Dialect
		driver  = strings.TrimSpace(cfg.Driver)
	)
	switch driver {
	case "", core.StoreDriverPostgres:
		driver = core.StoreDriverPostgres
		connector, err := pq.NewConnector(postgresDSN(storeURL, cfg.ServiceKey))
		if err != nil {
			return nil, fmt.Errorf("postgres connector: %w", err)
		}
		sqlDB = sql.OpenDB(connector)
		dialect = pgdialect.New()
	case core.StoreDriverSQLite:
		db, err := sql.Open("sqlite3", storeURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		sqlDB = db
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	client, err := persistence.New(persistenceConfig{
		driver: driver,
		server: storeURL,
		debug:  cfg.Debug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	return client, nil
}

// postgresDSN fills in the service credential as the password when the url
// does not carry one.
func postgresDSN(storeURL string, serviceKey string) string {
	serviceKey = strings.TrimSpace(serviceKey)
	if serviceKey == "" {
		return storeURL
	}
	if strings.HasPrefix(storeURL, "postgres://") || strings.HasPrefix(storeURL, "postgresql://") {
		parsed, err := url.Parse(storeURL)
		if err != nil || parsed.User == nil {
			return storeURL
		}
		if _, hasPassword := parsed.User.Password(); hasPassword {
			return storeURL
		}
		parsed.User = url.UserPassword(parsed.User.Username(), serviceKey)
		return parsed.String()
	}
	if strings.Contains(storeURL, "password=") {
		return storeURL
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(serviceKey)
	return storeURL + " password='" + escaped + "'"
}

// migrate registers the embedded migrations for the client's dialect and
// applies them.
func migrate(ctx context.Context, client *persistence.Client, driver string) error {
	dialect := migrations.DialectForDriver(driver)
	_, err := migrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithDialects(dialect))
	if err != nil {
		return fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
