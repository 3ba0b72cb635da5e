package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/studio-posts/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	photo_paths TEXT NOT NULL,
	caption TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cursors (
	service TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Repository implements domain.PostRepository and domain.CursorRepository
// using SQLite.
type Repository struct {
	db *sql.DB
}

var (
	_ domain.PostRepository   = (*Repository)(nil)
	_ domain.CursorRepository = (*Repository)(nil)
)

// NewRepository opens the SQLite database at path, creates the schema if
// needed, and returns a new Repository. The caller should call Close when the
// repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePost inserts a new post and returns its ID.
func (r *Repository) CreatePost(ctx context.Context, photos []string, caption string) (int64, error) {
	encoded, err := json.Marshal(photos)
	if err != nil {
		return 0, fmt.Errorf("encode photo paths: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (photo_paths, caption) VALUES (?, ?)`,
		string(encoded), caption,
	)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read post id: %w", err)
	}
	return id, nil
}

// ListPosts returns all posts ordered by ID.
func (r *Repository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, photo_paths, caption FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var (
			p       domain.Post
			encoded string
		)
		if err := rows.Scan(&p.ID, &encoded, &p.Caption); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &p.Photos); err != nil {
			return nil, fmt.Errorf("decode photo paths of post %d: %w", p.ID, err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// DeletePost removes a post by ID. It reports whether a row was removed.
func (r *Repository) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetCursor retrieves the saved cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC(),
	)
	return err
}
