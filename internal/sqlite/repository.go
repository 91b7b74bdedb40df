package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/pavel-fokin/dossier-files/internal/files"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository implements files.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository migrates the database at dbPath and opens it
func NewRepository(dbPath string) (*Repository, error) {
	if err := Migrate(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return &Repository{db: db}, nil
}

// Migrate applies the embedded schema migrations to the database at dbPath.
func Migrate(dbPath string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create stores file metadata and assigns its ID and timestamps
func (r *Repository) Create(ctx context.Context, file *files.File) error {
	query := `
	INSERT INTO dossier_files (filename, original_filename, file_type, file_path, mime_type, size, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		file.Name,
		file.OriginalName,
		string(file.Category),
		file.Path,
		file.ContentType,
		file.Size,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get file id: %w", err)
	}

	file.ID = id
	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

// FindByID retrieves file metadata by ID
func (r *Repository) FindByID(ctx context.Context, id int64) (*files.File, error) {
	query := `
	SELECT id, filename, original_filename, file_type, file_path, mime_type, size, created_at, updated_at
	FROM dossier_files
	WHERE id = ?
	`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	return file, nil
}

// List retrieves all file metadata, oldest first
func (r *Repository) List(ctx context.Context) ([]*files.File, error) {
	query := `
	SELECT id, filename, original_filename, file_type, file_path, mime_type, size, created_at, updated_at
	FROM dossier_files
	ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query)
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

// Delete removes file metadata by ID in a transaction
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM dossier_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return files.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*files.File, error) {
	var file files.File
	var category string
	err := row.Scan(
		&file.ID,
		&file.Name,
		&file.OriginalName,
		&category,
		&file.Path,
		&file.ContentType,
		&file.Size,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	file.Category = files.Category(category)
	return &file, nil
}
