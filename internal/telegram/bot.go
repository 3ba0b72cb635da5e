package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/blackmichael/studio-posts/internal/domain"
	"github.com/blackmichael/studio-posts/internal/mediagroup"
)

// Replies sent by the bot.
const (
	ReplySaved          = "Photos and caption uploaded and saved."
	ReplyDownloadFailed = "Failed to download the photo."
	ReplyProcessFailed  = "Failed to process the photo."
	ReplyInstructions   = "Please send a photo with a caption."
	ReplyDeleteUsage    = "Usage: /deletepost [ID]"
	ReplyDeleted        = "Post deleted."
	ReplyNotFound       = "Post not found."
	ReplyDeleteFailed   = "Failed to delete the post."
)

// Commands lists the commands the bot understands, for the command menu.
var Commands = []BotCommand{
	{Command: "deletepost", Description: "Delete a post by ID"},
}

// PostUseCases is the part of the post service the bot drives.
type PostUseCases interface {
	IngestPhoto(ctx context.Context, locator, nameHint string) (string, error)
	DeletePost(ctx context.Context, id int64) (bool, error)
}

// PhotoObserver receives ingested photos.
type PhotoObserver interface {
	Observe(ctx context.Context, p mediagroup.Photo)
}

// Bot turns chat messages into post operations and replies with the outcome.
type Bot struct {
	client   *Client
	posts    PostUseCases
	observer PhotoObserver
	logger   *slog.Logger
}

// NewBot creates a Bot.
func NewBot(client *Client, posts PostUseCases, observer PhotoObserver, logger *slog.Logger) *Bot {
	return &Bot{
		client:   client,
		posts:    posts,
		observer: observer,
		logger:   logger,
	}
}

// HandleUpdate dispatches a single update. Failures are reported to the chat
// and logged; none are returned.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil {
		return
	}

	switch {
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case isCommand(msg.Text, "deletepost"):
		b.handleDeletePost(ctx, msg)
	case msg.Text != "":
		b.reply(ctx, msg.Chat.ID, ReplyInstructions)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *Message) {
	largest := msg.Photo[len(msg.Photo)-1]

	file, err := b.client.GetFile(ctx, largest.FileID)
	if err != nil {
		b.logger.Error("failed to resolve photo", "file_id", largest.FileID, "error", err)
		b.reply(ctx, msg.Chat.ID, ReplyProcessFailed)
		return
	}

	ref, err := b.posts.IngestPhoto(ctx, file.FilePath, largest.FileUniqueID+".jpg")
	if err != nil {
		b.logger.Error("failed to download photo", "file_id", largest.FileID, "error", err)
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			b.reply(ctx, msg.Chat.ID, ReplyDownloadFailed)
		} else {
			b.reply(ctx, msg.Chat.ID, ReplyProcessFailed)
		}
		return
	}

	if msg.MediaGroupID != "" {
		b.logger.Info("received photo for media group", "group", msg.MediaGroupID)
	}

	chatID := msg.Chat.ID
	replyCtx := context.WithoutCancel(ctx)
	b.observer.Observe(ctx, mediagroup.Photo{
		GroupID: msg.MediaGroupID,
		Ref:     ref,
		Caption: msg.Caption,
		Done: func(r mediagroup.Result) {
			if r.Err != nil {
				b.reply(replyCtx, chatID, ReplyProcessFailed)
				return
			}
			b.reply(replyCtx, chatID, ReplySaved)
		},
	})
}

func (b *Bot) handleDeletePost(ctx context.Context, msg *Message) {
	args := strings.Fields(msg.Text)
	if len(args) != 2 {
		b.reply(ctx, msg.Chat.ID, ReplyDeleteUsage)
		return
	}

	// A non-numeric ID cannot match any row.
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, ReplyNotFound)
		return
	}

	deleted, err := b.posts.DeletePost(ctx, id)
	switch {
	case err != nil:
		b.logger.Error("failed to delete post", "id", id, "error", err)
		b.reply(ctx, msg.Chat.ID, ReplyDeleteFailed)
	case !deleted:
		b.reply(ctx, msg.Chat.ID, ReplyNotFound)
	default:
		b.reply(ctx, msg.Chat.ID, ReplyDeleted)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendMessage(ctx, strconv.FormatInt(chatID, 10), text); err != nil {
		b.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// isCommand reports whether text invokes /name, with or without a
// @botname suffix.
func isCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0][1:], "@")
	return cmd == name
}
