package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	cursorServiceName = "telegram"
	reconnectDelay    = 5 * time.Second
	statsInterval     = 30 * time.Second
)

// CursorStore persists the getUpdates offset between restarts.
type CursorStore interface {
	GetCursor(ctx context.Context, service string) (int64, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// UpdateHandler processes one update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u Update)
}

// Poller long-polls the Bot API and hands updates to a handler one at a time,
// in the order Telegram delivers them.
type Poller struct {
	client      *Client
	handler     UpdateHandler
	cursors     CursorStore
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewPoller creates a new update poller.
func NewPoller(
	client *Client,
	handler UpdateHandler,
	cursors CursorStore,
	pollTimeout time.Duration,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		client:      client,
		handler:     handler,
		cursors:     cursors,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Start polls for updates until the context is cancelled. It resumes after
// transient errors.
func (p *Poller) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := p.poll(ctx); err != nil {
				p.logger.Error("update polling error, retrying", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
					// backoff before polling again
				}
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	offset, err := p.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		p.logger.Warn("failed to load update offset, starting from pending updates", "error", err)
	}

	p.logger.Info("polling for updates", "offset", offset)

	var updatesReceived int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			return fmt.Errorf("poll updates: %w", err)
		}

		for _, u := range updates {
			p.handler.HandleUpdate(ctx, u)
			updatesReceived++
			offset = u.UpdateID + 1
		}

		if len(updates) > 0 {
			if err := p.cursors.UpdateCursor(ctx, cursorServiceName, offset); err != nil {
				p.logger.Error("failed to save update offset", "error", err)
			}
		}

		if time.Since(lastStatsLog) >= statsInterval {
			p.logger.Info("update stats", "updates_received", updatesReceived, "offset", offset)
			lastStatsLog = time.Now()
		}
	}
}
