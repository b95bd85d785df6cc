package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mosaictv/mosaic/internal/httpclient"
	"github.com/mosaictv/mosaic/internal/models"
)

// ChannelHandler serves the catalog endpoints and the image proxy.
type ChannelHandler struct {
	catalog CatalogService
	client  *httpclient.Client
}

// NewChannelHandler creates a channel handler. client is used for the
// image proxy.
func NewChannelHandler(catalog CatalogService, client *httpclient.Client) *ChannelHandler {
	return &ChannelHandler{catalog: catalog, client: client}
}

// ChannelListOutput wraps the catalog snapshot.
type ChannelListOutput struct {
	Body ChannelListResponse
}

// Register registers the JSON channel routes with the API.
func (h *ChannelHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      http.MethodGet,
		Path:        "/api/channels",
		Summary:     "List channels",
		Description: "Returns a snapshot of the current channel catalog",
		Tags:        []string{"Channels"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "refreshChannels",
		Method:      http.MethodPost,
		Path:        "/api/channels/refresh",
		Summary:     "Refresh channels",
		Description: "Reloads the catalog from the configured playlist source",
		Tags:        []string{"Channels"},
	}, h.Refresh)
}

// RegisterRoutes registers the raw byte-streaming routes.
func (h *ChannelHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/proxy-image", h.ProxyImage)
}

// List returns the catalog snapshot.
func (h *ChannelHandler) List(ctx context.Context, _ *struct{}) (*ChannelListOutput, error) {
	channels := h.catalog.List()
	return &ChannelListOutput{
		Body: ChannelListResponse{Channels: channels, Count: len(channels)},
	}, nil
}

// Refresh reloads the catalog and returns the new snapshot. A fetch
// failure keeps the previous catalog and surfaces source-unavailable.
func (h *ChannelHandler) Refresh(ctx context.Context, _ *struct{}) (*ChannelListOutput, error) {
	if err := h.catalog.Load(ctx); err != nil {
		return nil, FromError(err)
	}
	channels := h.catalog.List()
	return &ChannelListOutput{
		Body: ChannelListResponse{Channels: channels, Count: len(channels)},
	}, nil
}

// ProxyImage fetches a remote image and passes its bytes through with
// the upstream content type. Raw handler: the body streams.
func (h *ChannelHandler) ProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, models.NewError(models.ErrKindBadLayout, "missing url parameter"))
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		writeError(w, models.NewError(models.ErrKindBadLayout, "url must be absolute http(s)"))
		return
	}

	resp, err := h.client.Get(r.Context(), target.String())
	if err != nil {
		writeError(w, models.WrapError(models.ErrKindSourceUnavailable, err, "fetching image"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, models.NewError(models.ErrKindSourceUnavailable, "upstream returned status %d", resp.StatusCode))
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	io.Copy(w, resp.Body)
}
