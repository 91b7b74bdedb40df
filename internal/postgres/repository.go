// Package postgres stores file metadata in PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements files.Repository using PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// Connect migrates the database at databaseURL and opens a connection pool.
func Connect(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Migrate applies the embedded schema migrations. databaseURL is a
// postgres:// URL; golang-migrate needs the pgx5:// scheme.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Close closes the connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunInTx runs fn inside a transaction. It commits when fn succeeds and
// rolls back otherwise.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Create stores file metadata and assigns its ID and timestamps
func (r *Repository) Create(ctx context.Context, file *files.File) error {
	query := `
		INSERT INTO dossier_files (filename, original_filename, file_type, file_path, mime_type, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		file.Name, file.OriginalName, string(file.Category), file.Path, file.ContentType, file.Size,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// FindByID retrieves file metadata by ID
func (r *Repository) FindByID(ctx context.Context, id int64) (*files.File, error) {
	return findByID(ctx, r.pool, id)
}

// List retrieves all file metadata, oldest first
func (r *Repository) List(ctx context.Context) ([]*files.File, error) {
	query := `
		SELECT id, filename, original_filename, file_type, file_path, mime_type, size, created_at, updated_at
		FROM dossier_files
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	fileList := []*files.File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		fileList = append(fileList, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return fileList, nil
}

// ListGrouped retrieves all file metadata grouped by category
func (r *Repository) ListGrouped(ctx context.Context) (files.Grouped, error) {
	fileList, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return files.GroupByCategory(fileList), nil
}

// Delete locks and removes one row inside a transaction
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.RunInTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM dossier_files WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return files.ErrNotFound
			}
			return fmt.Errorf("failed to lock file record: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM dossier_files WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete file record: %w", err)
		}
		return nil
	})
}

func findByID(ctx context.Context, db DBTX, id int64) (*files.File, error) {
	query := `
		SELECT id, filename, original_filename, file_type, file_path, mime_type, size, created_at, updated_at
		FROM dossier_files
		WHERE id = $1`

	file, err := scanFile(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return file, nil
}

func scanFile(row pgx.Row) (*files.File, error) {
	var file files.File
	var category string
	err := row.Scan(
		&file.ID, &file.Name, &file.OriginalName, &category, &file.Path,
		&file.ContentType, &file.Size, &file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	file.Category = files.Category(category)
	return &file, nil
}
