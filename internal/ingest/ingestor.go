package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackmichael/studio-posts/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Ingestor downloads photos from a file host and writes them to a local
// directory under collision-free names.
type Ingestor struct {
	baseURL string
	dir     string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

var _ domain.PhotoIngestor = (*Ingestor)(nil)

// NewIngestor creates an Ingestor that resolves locators against baseURL and
// stores files in dir, creating it if needed.
func NewIngestor(baseURL, dir string, timeout time.Duration, logger *slog.Logger) (*Ingestor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}
	return &Ingestor{
		baseURL: strings.TrimRight(baseURL, "/"),
		dir:     dir,
		logger:  logger,
		now:     time.Now,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Dir returns the directory photos are written to.
func (i *Ingestor) Dir() string {
	return i.dir
}

// Ingest fetches baseURL/locator and writes the body to a new file. The
// returned reference is the file name, built from the current time, a random
// UUID and the base name of nameHint.
func (i *Ingestor) Ingest(ctx context.Context, locator, nameHint string) (string, error) {
	url := i.baseURL + "/" + strings.TrimLeft(locator, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.FetchError{Locator: locator, Err: err}
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return "", &domain.FetchError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", &domain.FetchError{Locator: locator, Status: resp.StatusCode}
	}

	name := i.fileName(nameHint)
	f, err := os.OpenFile(filepath.Join(i.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filepath.Join(i.dir, name))
		return "", &domain.FetchError{Locator: locator, Err: err}
	}

	i.logger.Info("photo ingested", "locator", locator, "file", name, "size", humanize.Bytes(uint64(n)))
	return name, nil
}

func (i *Ingestor) fileName(nameHint string) string {
	base := path.Base(filepath.ToSlash(nameHint))
	if base == "." || base == "/" || base == "" {
		base = "photo.jpg"
	}
	return fmt.Sprintf("%d_%s_%s", i.now().UnixMilli(), uuid.NewString(), base)
}
