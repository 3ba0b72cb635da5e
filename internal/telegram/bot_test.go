package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/studio-posts/internal/domain"
	"github.com/blackmichael/studio-posts/internal/mediagroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePosts struct {
	mu        sync.Mutex
	ingested  []string
	ingestErr error
	existing  map[int64]bool
	deleteErr error
}

func (p *fakePosts) IngestPhoto(_ context.Context, locator, nameHint string) (string, error) {
	if p.ingestErr != nil {
		return "", p.ingestErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingested = append(p.ingested, locator)
	return "local_" + nameHint, nil
}

func (p *fakePosts) DeletePost(_ context.Context, id int64) (bool, error) {
	if p.deleteErr != nil {
		return false, p.deleteErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.existing[id] {
		delete(p.existing, id)
		return true, nil
	}
	return false, nil
}

type recordingObserver struct {
	photos []mediagroup.Photo
	err    error
}

func (o *recordingObserver) Observe(_ context.Context, p mediagroup.Photo) {
	o.photos = append(o.photos, p)
	if p.Done != nil {
		p.Done(mediagroup.Result{GroupID: p.GroupID, PostID: 1, Err: o.err})
	}
}

func newTestBot(t *testing.T, posts PostUseCases, observer PhotoObserver) (*Bot, *fakeAPI) {
	t.Helper()
	api, s := newFakeAPI(t)
	api.files["big"] = File{FileID: "big", FileUniqueID: "uniq", FilePath: "photos/file_9.jpg"}
	client := NewClient(s.URL, testToken, 2*time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBot(client, posts, observer, logger), api
}

func photoMessage(groupID, caption string) *Message {
	return &Message{
		MessageID:    7,
		Chat:         Chat{ID: 42, Type: "private"},
		Caption:      caption,
		MediaGroupID: groupID,
		Photo: []PhotoSize{
			{FileID: "small", FileUniqueID: "uniq-s", Width: 90},
			{FileID: "big", FileUniqueID: "uniq", Width: 1280},
		},
	}
}

func TestPhotoUsesLargestSize(t *testing.T) {
	posts := &fakePosts{}
	observer := &recordingObserver{}
	bot, api := newTestBot(t, posts, observer)

	bot.HandleUpdate(context.Background(), Update{UpdateID: 1, Message: photoMessage("G1", "cap")})

	assert.Equal(t, []string{"photos/file_9.jpg"}, posts.ingested)
	require.Len(t, observer.photos, 1)
	assert.Equal(t, "G1", observer.photos[0].GroupID)
	assert.Equal(t, "local_uniq.jpg", observer.photos[0].Ref)
	assert.Equal(t, "cap", observer.photos[0].Caption)
	assert.Equal(t, []sentMessage{{ChatID: "42", Text: ReplySaved}}, api.messages())
}

func TestPhotoCommitFailureReplies(t *testing.T) {
	observer := &recordingObserver{err: errors.New("store down")}
	bot, api := newTestBot(t, &fakePosts{}, observer)

	bot.HandleUpdate(context.Background(), Update{UpdateID: 1, Message: photoMessage("", "")})

	assert.Equal(t, []sentMessage{{ChatID: "42", Text: ReplyProcessFailed}}, api.messages())
}

func TestPhotoDownloadFailureIsDropped(t *testing.T) {
	posts := &fakePosts{ingestErr: &domain.FetchError{Locator: "photos/file_9.jpg", Status: 502}}
	observer := &recordingObserver{}
	bot, api := newTestBot(t, posts, observer)

	bot.HandleUpdate(context.Background(), Update{UpdateID: 1, Message: photoMessage("G1", "")})

	assert.Empty(t, observer.photos)
	assert.Equal(t, []sentMessage{{ChatID: "42", Text: ReplyDownloadFailed}}, api.messages())
}

func TestPhotoUnknownFile(t *testing.T) {
	observer := &recordingObserver{}
	bot, api := newTestBot(t, &fakePosts{}, observer)

	msg := photoMessage("", "")
	msg.Photo = []PhotoSize{{FileID: "gone"}}
	bot.HandleUpdate(context.Background(), Update{UpdateID: 1, Message: msg})

	assert.Empty(t, observer.photos)
	assert.Equal(t, []sentMessage{{ChatID: "42", Text: ReplyProcessFailed}}, api.messages())
}

func TestGroupedPhotosThroughAggregator(t *testing.T) {
	var (
		mu      sync.Mutex
		commits [][]string
	)
	store := storeFunc(func(_ context.Context, photos []string, _ string) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, photos)
		return int64(len(commits)), nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := mediagroup.NewAggregator(store, logger, mediagroup.WithWindow(30*time.Millisecond))
	bot, api := newTestBot(t, &fakePosts{}, agg)

	bot.HandleUpdate(context.Background(), Update{UpdateID: 1, Message: photoMessage("G1", "cap")})
	bot.HandleUpdate(context.Background(), Update{UpdateID: 2, Message: photoMessage("G1", "")})

	require.Eventually(t, func() bool { return len(api.messages()) == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, commits, 1)
	assert.Len(t, commits[0], 2)
	assert.Equal(t, ReplySaved, api.messages()[0].Text)
}

type storeFunc func(ctx context.Context, photos []string, caption string) (int64, error)

func (f storeFunc) CreatePost(ctx context.Context, photos []string, caption string) (int64, error) {
	return f(ctx, photos, caption)
}

func TestDeletePostCommand(t *testing.T) {
	posts := &fakePosts{existing: map[int64]bool{5: true}}
	bot, api := newTestBot(t, posts, &recordingObserver{})
	ctx := context.Background()

	send := func(text string) {
		bot.HandleUpdate(ctx, Update{Message: &Message{Chat: Chat{ID: 42}, Text: text}})
	}

	send("/deletepost 5")
	send("/deletepost 5")
	send("/deletepost")
	send("/deletepost 1 2")
	send("/deletepost abc")
	send("/deletepost@studio_bot 6")

	texts := []string{}
	for _, m := range api.messages() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{
		ReplyDeleted,
		ReplyNotFound,
		ReplyDeleteUsage,
		ReplyDeleteUsage,
		ReplyNotFound,
		ReplyNotFound,
	}, texts)
}

func TestDeletePostCommandStoreError(t *testing.T) {
	posts := &fakePosts{deleteErr: errors.New("locked")}
	bot, api := newTestBot(t, posts, &recordingObserver{})

	bot.HandleUpdate(context.Background(), Update{Message: &Message{Chat: Chat{ID: 42}, Text: "/deletepost 1"}})

	assert.Equal(t, []sentMessage{{ChatID: "42", Text: ReplyDeleteFailed}}, api.messages())
}

func TestTextGetsInstructions(t *testing.T) {
	bot, api := newTestBot(t, &fakePosts{}, &recordingObserver{})

	bot.HandleUpdate(context.Background(), Update{Message: &Message{Chat: Chat{ID: 42}, Text: "hello"}})
	bot.HandleUpdate(context.Background(), Update{Message: &Message{Chat: Chat{ID: 42}, Text: "/start"}})
	bot.HandleUpdate(context.Background(), Update{UpdateID: 3})

	assert.Equal(t, []sentMessage{
		{ChatID: "42", Text: ReplyInstructions},
		{ChatID: "42", Text: ReplyInstructions},
	}, api.messages())
}

func TestIsCommand(t *testing.T) {
	assert.True(t, isCommand("/deletepost 1", "deletepost"))
	assert.True(t, isCommand("/deletepost@bot", "deletepost"))
	assert.False(t, isCommand("deletepost 1", "deletepost"))
	assert.False(t, isCommand("/deletepostx", "deletepost"))
	assert.False(t, isCommand("", "deletepost"))
}
