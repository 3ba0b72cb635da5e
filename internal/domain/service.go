package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PostService is the core domain service. It owns the rules for creating,
// listing and deleting posts, ingesting photos for them, and forwarding
// appointment requests.
type PostService struct {
	repo     PostRepository
	cursors  CursorRepository
	ingestor PhotoIngestor
	notifier Notifier
	events   EventPublisher
	logger   *slog.Logger
}

// NewPostService creates a PostService. events may be nil.
func NewPostService(
	repo PostRepository,
	cursors CursorRepository,
	ingestor PhotoIngestor,
	notifier Notifier,
	events EventPublisher,
	logger *slog.Logger,
) *PostService {
	if events == nil {
		events = nopPublisher{}
	}
	return &PostService{
		repo:     repo,
		cursors:  cursors,
		ingestor: ingestor,
		notifier: notifier,
		events:   events,
		logger:   logger,
	}
}

// CreatePost persists a post made of already ingested photos.
func (s *PostService) CreatePost(ctx context.Context, photos []string, caption string) (int64, error) {
	if len(photos) == 0 {
		return 0, &ValidationError{Message: "at least one photo is required"}
	}

	id, err := s.repo.CreatePost(ctx, photos, caption)
	if err != nil {
		return 0, &StoreError{Op: "create post", Err: err}
	}

	s.logger.Info("post saved", "id", id, "photos", photos, "caption", caption)
	s.events.Publish(Event{
		Type:   EventPostCreated,
		PostID: id,
		Post:   &Post{ID: id, Photos: photos, Caption: caption},
	})
	return id, nil
}

// ListPosts returns every stored post.
func (s *PostService) ListPosts(ctx context.Context) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list posts", Err: err}
	}
	return posts, nil
}

// DeletePost removes a post. A missing post is reported as false, not as an
// error.
func (s *PostService) DeletePost(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repo.DeletePost(ctx, id)
	if err != nil {
		return false, &StoreError{Op: "delete post", Err: err}
	}
	if deleted {
		s.logger.Info("post deleted", "id", id)
		s.events.Publish(Event{Type: EventPostDeleted, PostID: id})
	}
	return deleted, nil
}

// IngestPhoto downloads a single photo and returns its local reference.
func (s *PostService) IngestPhoto(ctx context.Context, locator, nameHint string) (string, error) {
	return s.ingestor.Ingest(ctx, locator, nameHint)
}

// SubmitPost downloads each locator in order and commits one post with the
// photos that succeeded. Photos that fail to download are logged and dropped.
// Returns the post ID and the stored photo references.
func (s *PostService) SubmitPost(ctx context.Context, locators []string, caption string) (int64, []string, error) {
	if len(locators) == 0 {
		return 0, nil, &ValidationError{Message: "photo_paths and caption are required"}
	}

	saved := make([]string, 0, len(locators))
	for _, locator := range locators {
		ref, err := s.ingestor.Ingest(ctx, locator, locator)
		if err != nil {
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				return 0, nil, fmt.Errorf("ingest photo %s: %w", locator, err)
			}
			s.logger.Error("photo download failed", "locator", locator, "error", err)
			continue
		}
		saved = append(saved, ref)
	}

	if len(saved) == 0 {
		return 0, nil, &ValidationError{Message: "no valid photos to save"}
	}

	id, err := s.CreatePost(ctx, saved, caption)
	if err != nil {
		return 0, nil, err
	}
	return id, saved, nil
}

// RequestAppointment forwards an appointment request to the configured chat.
func (s *PostService) RequestAppointment(ctx context.Context, name, phone string) error {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return &ValidationError{Message: "name and phone are required"}
	}

	text := fmt.Sprintf("New appointment request:\nName: %s\nPhone: %s", name, phone)
	if err := s.notifier.Notify(ctx, text); err != nil {
		return fmt.Errorf("notify appointment: %w", err)
	}
	return nil
}

// GetCursor retrieves the saved update cursor for the given service.
func (s *PostService) GetCursor(ctx context.Context, service string) (int64, error) {
	return s.cursors.GetCursor(ctx, service)
}

// UpdateCursor persists the update cursor for the given service.
func (s *PostService) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	return s.cursors.UpdateCursor(ctx, service, cursor)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
