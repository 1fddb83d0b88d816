package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"
	applogger "SignalRelay/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteDirectory is the subscriber directory backed by a local SQLite file.
// Reads use a pool; writes go through a single connection.
type SQLiteDirectory struct {
	readDB  *sql.DB
	writeDB *sql.DB
	log     *applogger.Logger
}

// SQLiteOptions configures NewSQLiteDirectory.
type SQLiteOptions struct {
	Path         string
	MaxReadConns int
}

func NewSQLiteDirectory(opts SQLiteOptions, log *applogger.Logger) (*SQLiteDirectory, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if opts.MaxReadConns <= 0 {
		opts.MaxReadConns = 10
	}
	if err := runMigrations(opts.Path, log); err != nil {
		return nil, err
	}

	readDB, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(opts.MaxReadConns)
	readDB.SetMaxIdleConns(opts.MaxReadConns)
	readDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := setPragmas(readDB); err != nil {
		readDB.Close()
		return nil, err
	}

	writeDB, err := sql.Open("sqlite", opts.Path+"?_txlock=immediate")
	if err != nil {
		readDB.Close()
		return nil, fmt.Errorf("sqlite: open writer: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	if err := setPragmas(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, err
	}

	log.Info("subscriber directory ready", applogger.String("path", opts.Path))
	return &SQLiteDirectory{readDB: readDB, writeDB: writeDB, log: log}, nil
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 0",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	return nil
}

func runMigrations(path string, log *applogger.Logger) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("sqlite: open migration db: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("sqlite: migration busy_timeout: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations fs: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("sqlite: migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return fmt.Errorf("sqlite: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		log.Debug("sqlite migrations applied", applogger.Uint("version", version), applogger.Bool("dirty", dirty))
	}
	return nil
}

const listActiveSQL = `
SELECT s.id, s.email, s.active,
       COALESCE(s.mobile_token, ''),
       COALESCE(s.webpush_endpoint, ''), COALESCE(s.webpush_p256dh, ''), COALESCE(s.webpush_auth, ''),
       COALESCE(p.enable_b_bullish, 1), COALESCE(p.enable_b_bearish, 1),
       COALESCE(p.enable_a_bullish, 1), COALESCE(p.enable_a_bearish, 1),
       COALESCE(p.min_win_rate, '0'), COALESCE(p.min_ev, '-999999'),
       COALESCE(p.min_sample_size, 0), COALESCE(p.filter_mode, 'NONE')
FROM subscribers s
LEFT JOIN preferences p ON p.subscriber_id = s.id
WHERE s.active = 1
ORDER BY s.id`

// ListActiveSubscribers returns active subscribers with preferences and destinations.
// A subscriber without a preferences row gets the defaults.
func (d *SQLiteDirectory) ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := d.readDB.QueryContext(ctx, listActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscribers: %w", err)
	}
	defer rows.Close()

	var out []models.Subscriber
	for rows.Next() {
		var (
			s                      models.Subscriber
			endpoint, p256dh, auth string
			minWR, minEV           decimal.Decimal
			mode                   string
		)
		if err := rows.Scan(
			&s.ID, &s.Email, &s.Active, &s.MobileToken,
			&endpoint, &p256dh, &auth,
			&s.Preferences.EnableBBullish, &s.Preferences.EnableBBearish,
			&s.Preferences.EnableABullish, &s.Preferences.EnableABearish,
			&minWR, &minEV, &s.Preferences.MinSampleSize, &mode,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan subscriber: %w", err)
		}
		s.Preferences.MinWinRatePct = minWR
		s.Preferences.MinExpectedValue = minEV
		s.Preferences.FilterMode = models.FilterMode(mode)
		if endpoint != "" {
			s.WebPush = &models.WebPushSubscription{Endpoint: endpoint, P256dh: p256dh, Auth: auth}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate subscribers: %w", err)
	}
	return out, nil
}

// InvalidateDestination clears one destination only while it still holds address, so a
// token re-registered after the failed send survives. Repeating it is a no-op.
func (d *SQLiteDirectory) InvalidateDestination(ctx context.Context, subscriberID int64, kind models.DestinationKind, address string) error {
	var stmt string
	switch kind {
	case models.DestinationMobilePush:
		stmt = `UPDATE subscribers SET mobile_token = NULL, updated_at = ? WHERE id = ? AND mobile_token = ?`
	case models.DestinationWebPush:
		stmt = `UPDATE subscribers SET webpush_endpoint = NULL, webpush_p256dh = NULL, webpush_auth = NULL, updated_at = ?
		        WHERE id = ? AND webpush_endpoint = ?`
	default:
		return fmt.Errorf("sqlite: unknown destination kind %q", kind)
	}

	tx, err := d.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, stmt, now, subscriberID, address)
	if err != nil {
		return fmt.Errorf("sqlite: clear %s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO destination_invalidations (subscriber_id, kind, invalidated_at) VALUES (?, ?, ?)`,
			subscriberID, string(kind), now); err != nil {
			return fmt.Errorf("sqlite: log invalidation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (d *SQLiteDirectory) Health(ctx context.Context) error {
	return d.readDB.PingContext(ctx)
}

func (d *SQLiteDirectory) Close() error {
	return errors.Join(d.writeDB.Close(), d.readDB.Close())
}

var _ domrepo.SubscriberDirectory = (*SQLiteDirectory)(nil)
