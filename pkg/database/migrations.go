package database

import (
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migdb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// sqliteMigrateDriver adapts our shared write *sql.DB to golang-migrate's
// database.Driver interface. The teacher's client.go wires the Postgres
// driver the library ships out of the box
// (golang-migrate/migrate/v4/database/postgres); no equivalent built-in
// driver for the pure-Go modernc.org/sqlite engine is known to exist in
// the dependency pack, so this adapter implements the same public
// extension interface golang-migrate's own built-in drivers implement,
// keeping the rest of the migration plumbing (iofs source, migrate.Migrate
// orchestration, Up()/ErrNoChange handling) exactly as the teacher uses it.
type sqliteMigrateDriver struct {
	db *stdsql.DB
}

var _ migdb.Driver = (*sqliteMigrateDriver)(nil)

func newSqliteMigrateDriver(db *stdsql.DB) (*sqliteMigrateDriver, error) {
	d := &sqliteMigrateDriver{db: db}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY, dirty INTEGER NOT NULL)`); err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: create schema_migrations: %w", err)
	}
	return d, nil
}

func (d *sqliteMigrateDriver) Open(url string) (migdb.Driver, error) {
	return nil, fmt.Errorf("sqlite migrate driver: Open(url) unsupported, use WithInstance")
}

func (d *sqliteMigrateDriver) Close() error { return nil }

// Lock/Unlock are no-ops: the write path is already serialized by
// Client.WriteMu and a single-connection *sql.DB.
func (d *sqliteMigrateDriver) Lock() error   { return nil }
func (d *sqliteMigrateDriver) Unlock() error { return nil }

func (d *sqliteMigrateDriver) Run(migration io.Reader) error {
	data, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(string(data)); err != nil {
		return fmt.Errorf("sqlite migrate driver: run: %w", err)
	}
	return nil
}

func (d *sqliteMigrateDriver) SetVersion(version int, dirty bool) error {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	if _, err := d.db.Exec(`DELETE FROM schema_migrations`); err != nil {
		return err
	}
	_, err := d.db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt)
	return err
}

func (d *sqliteMigrateDriver) Version() (int, bool, error) {
	var version int
	var dirty int
	err := d.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, stdsql.ErrNoRows) {
		return migdb.NilVersion, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

func (d *sqliteMigrateDriver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type IN ('table','view','trigger')`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	rows.Close()
	for _, name := range names {
		if _, err := d.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies the embedded schema migrations using
// golang-migrate's core orchestration (migrate.Migrate, source/iofs),
// mirroring the teacher's runMigrations/hasEmbeddedMigrations structure
// in pkg/database/client.go almost line for line; only the database-side
// driver differs (sqliteMigrateDriver instead of the Postgres driver),
// since this project's tables aren't managed by ent-generated schema
// sync the way the teacher's are.
func runMigrations(db *stdsql.DB, dbName string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found — binary may be built incorrectly")
	}

	driver, err := newSqliteMigrateDriver(db)
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Do not call m.Close(): it would close db, the shared *sql.DB this
	// Client keeps using as its write handle.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && len(name) > 4 && name[len(name)-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
