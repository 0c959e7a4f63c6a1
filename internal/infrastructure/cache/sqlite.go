package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cartlens/backend/internal/domain"
)

// SQLiteStore implements domain.ProductRepository using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	workspace_id  TEXT NOT NULL,
	id            TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	image         TEXT NOT NULL DEFAULT '',
	price         TEXT NOT NULL DEFAULT '',
	size          TEXT NOT NULL DEFAULT '',
	is_favorite   INTEGER NOT NULL DEFAULT 0,
	error         INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (workspace_id, id)
);

CREATE INDEX IF NOT EXISTS idx_products_workspace_updated ON products(workspace_id, updated_at);
`

// Migrate creates the products table
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const productColumns = `id, workspace_id, url, title, image, price, size, is_favorite, error, error_message, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, workspaceID, id string) (*domain.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE workspace_id = ? AND id = ?`,
		workspaceID, id,
	)

	record, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable(err, "sqlite: get product %s", id)
	}

	if s.ttl > 0 && s.now().After(record.UpdatedAt.Add(s.ttl)) {
		return nil, domain.ErrCacheMiss
	}
	return record, nil
}

// Put upserts the record. is_favorite is owned by the CRUD layer and is
// left alone on conflict; the stored flag is returned in the same statement.
func (s *SQLiteStore) Put(ctx context.Context, record *domain.ProductRecord) error {
	record.UpdatedAt = s.now().UTC()

	var favorite bool
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			image = excluded.image,
			price = excluded.price,
			size = excluded.size,
			error = excluded.error,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
		RETURNING is_favorite`,
		record.ID, record.WorkspaceID, record.URL, record.Title, record.Image,
		record.Price, record.Size, record.IsFavorite, record.Error, record.ErrorMessage,
		record.UpdatedAt,
	).Scan(&favorite)
	if err != nil {
		return unavailable(err, "sqlite: upsert product %s", record.ID)
	}

	record.IsFavorite = favorite
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, workspaceID string, filter domain.ProductFilter) ([]domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE workspace_id = ?`
	args := []any{workspaceID}
	if filter.FavoritesOnly {
		query += ` AND is_favorite = 1`
	}
	if s.ttl > 0 {
		query += ` AND updated_at >= ?`
		args = append(args, s.cutoff())
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err, "sqlite: list products")
	}
	defer rows.Close()

	records := make([]domain.ProductRecord, 0)
	for rows.Next() {
		record, err := scanProduct(rows)
		if err != nil {
			return nil, unavailable(err, "sqlite: scan product")
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "sqlite: iterate products")
	}
	return records, nil
}

// Delete removes a record. An expired row is purged too but reported as
// not found, matching Get and List which already hide it.
func (s *SQLiteStore) Delete(ctx context.Context, workspaceID, id string) error {
	if s.ttl > 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM products WHERE workspace_id = ? AND id = ? AND updated_at < ?`,
			workspaceID, id, s.cutoff(),
		)
		if err != nil {
			return unavailable(err, "sqlite: purge expired product %s", id)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE workspace_id = ? AND id = ?`,
		workspaceID, id,
	)
	if err != nil {
		return unavailable(err, "sqlite: delete product %s", id)
	}
	return checkRowsAffected(res, id)
}

// SetFavorite flips the flag on a live record; expired rows are not found
func (s *SQLiteStore) SetFavorite(ctx context.Context, workspaceID, id string, favorite bool) error {
	query := `UPDATE products SET is_favorite = ? WHERE workspace_id = ? AND id = ?`
	args := []any{favorite, workspaceID, id}
	if s.ttl > 0 {
		query += ` AND updated_at >= ?`
		args = append(args, s.cutoff())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(err, "sqlite: set favorite %s", id)
	}
	return checkRowsAffected(res, id)
}

// cutoff is the oldest updated_at still inside the TTL
func (s *SQLiteStore) cutoff() time.Time {
	return s.now().UTC().Add(-s.ttl)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.ProductRecord, error) {
	var r domain.ProductRecord
	err := row.Scan(
		&r.ID, &r.WorkspaceID, &r.URL, &r.Title, &r.Image, &r.Price, &r.Size,
		&r.IsFavorite, &r.Error, &r.ErrorMessage, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(domain.ErrProductNotFound, "sqlite: product %s", id)
	}
	return nil
}

// unavailable classifies a driver or IO failure so callers can answer 503
// without knowing about database/sql
func unavailable(err error, format string, args ...any) error {
	return eris.Wrapf(domain.ErrCacheUnavailable, format+": %v", append(args, err)...)
}
