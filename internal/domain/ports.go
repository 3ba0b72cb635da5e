package domain

import "context"

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// CreatePost inserts a new post and returns its assigned ID.
	CreatePost(ctx context.Context, photos []string, caption string) (int64, error)

	// ListPosts returns all posts ordered by ID ascending.
	ListPosts(ctx context.Context) ([]Post, error)

	// DeletePost removes a post by ID. It reports false when no row matched.
	DeletePost(ctx context.Context, id int64) (bool, error)
}

// CursorRepository defines persistence operations for update cursors.
type CursorRepository interface {
	// GetCursor retrieves the last saved cursor for the given service name.
	// Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// PhotoIngestor downloads a photo and stores it locally.
type PhotoIngestor interface {
	// Ingest fetches the photo at locator and returns the local file name it
	// was written to. nameHint is used as the readable suffix of that name.
	Ingest(ctx context.Context, locator, nameHint string) (string, error)
}

// Notifier delivers a text notification to an external chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// EventPublisher receives post change events.
type EventPublisher interface {
	Publish(event Event)
}
