// Package catalog holds the in-memory channel catalog derived from an
// M3U playlist source. The catalog is replaced atomically on refresh;
// readers always see a consistent snapshot.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mosaictv/mosaic/internal/httpclient"
	"github.com/mosaictv/mosaic/internal/models"
	"github.com/mosaictv/mosaic/pkg/m3u"
)

// Catalog is the channel list plus its lookup index.
type Catalog struct {
	mu       sync.RWMutex
	channels []models.Channel
	byID     map[string]models.Channel

	source      string
	serviceName string
	client      *httpclient.Client
	logger      *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithHTTPClient sets the client used for http(s) playlist sources.
func WithHTTPClient(client *httpclient.Client) Option {
	return func(c *Catalog) { c.client = client }
}

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates an empty catalog for the given playlist source. source may
// be an http(s) URL or a local file path. serviceName filters out
// entries that point back at this service.
func New(source, serviceName string, opts ...Option) *Catalog {
	c := &Catalog{
		byID:        make(map[string]models.Channel),
		source:      source,
		serviceName: serviceName,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = httpclient.New(httpclient.DefaultConfig())
	}
	return c
}

// Load fetches and parses the playlist, replacing the catalog atomically
// on success. On fetch failure the previous catalog is left intact and a
// source-unavailable error is returned.
func (c *Catalog) Load(ctx context.Context) error {
	if c.source == "" {
		return models.NewError(models.ErrKindSourceUnavailable, "no playlist source configured")
	}

	reader, err := c.open(ctx)
	if err != nil {
		return models.WrapError(models.ErrKindSourceUnavailable, err, "fetching playlist %s", c.source)
	}
	defer reader.Close()

	channels, err := c.parse(reader)
	if err != nil {
		return models.WrapError(models.ErrKindSourceUnavailable, err, "parsing playlist %s", c.source)
	}

	byID := make(map[string]models.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	c.mu.Lock()
	c.channels = channels
	c.byID = byID
	c.mu.Unlock()

	c.logger.Info("catalog loaded",
		slog.String("source", c.source),
		slog.Int("channels", len(channels)),
	)
	return nil
}

func (c *Catalog) open(ctx context.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(c.source, "http://") || strings.HasPrefix(c.source, "https://") {
		resp, err := c.client.Get(ctx, c.source)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(c.source)
}

func (c *Catalog) parse(r io.Reader) ([]models.Channel, error) {
	var channels []models.Channel

	parser := &m3u.Parser{
		OnEntry: func(entry *m3u.Entry) error {
			ch := c.toChannel(entry)
			if ch == nil {
				return nil
			}
			channels = append(channels, *ch)
			return nil
		},
		OnError: func(lineNum int, err error) {
			c.logger.Debug("skipping malformed playlist entry",
				slog.Int("line", lineNum),
				slog.String("error", err.Error()),
			)
		},
	}

	if err := parser.ParseCompressed(r); err != nil {
		return nil, err
	}
	return channels, nil
}

// toChannel converts a playlist entry, returning nil for entries that
// must be dropped.
func (c *Catalog) toChannel(entry *m3u.Entry) *models.Channel {
	name := entry.Title
	if name == "" {
		name = entry.TvgName
	}

	// A playlist that lists this service's own output would feed the
	// compositor back into itself.
	if c.serviceName != "" && strings.EqualFold(name, c.serviceName) {
		return nil
	}
	if entry.URL == "" {
		return nil
	}

	id := entry.TvgID
	if id == "" {
		id = ulid.Make().String()
	}

	return &models.Channel{
		ID:            id,
		DisplayName:   name,
		LogoURL:       entry.TvgLogo,
		StreamURL:     entry.URL,
		Group:         entry.GroupTitle,
		ChannelNumber: entry.ChannelNumber,
	}
}

// List returns a snapshot of the current channel list.
func (c *Catalog) List() []models.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Channel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Count returns the number of channels in the catalog.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// Resolve returns the channel with the given id or a not-found error.
func (c *Catalog) Resolve(id string) (models.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byID[id]
	if !ok {
		return models.Channel{}, models.NewError(models.ErrKindNotFound, "unknown channel %q", id)
	}
	return ch, nil
}
