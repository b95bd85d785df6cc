// Package handlers provides the HTTP API handlers for mosaic.
package handlers

import (
	"context"

	"github.com/mosaictv/mosaic/internal/models"
	"github.com/mosaictv/mosaic/internal/supervisor"
)

// CatalogService is the catalog surface the handlers depend on.
type CatalogService interface {
	List() []models.Channel
	Load(ctx context.Context) error
}

// SupervisorService is the supervisor surface the handlers depend on.
type SupervisorService interface {
	Apply(ctx context.Context, layout *models.LayoutConfig) error
	EnsureLive(ctx context.Context) error
	SwapAudio(ctx context.Context, slot string) error
	SetVolume(ctx context.Context, slot string, volume float64) error
	Stop()
	Status() supervisor.Status
	Current() *models.LayoutConfig
	Volumes() (map[string]float64, error)
}

// ChannelListResponse is the catalog snapshot returned by the channel
// endpoints.
type ChannelListResponse struct {
	Channels []models.Channel `json:"channels"`
	Count    int              `json:"count"`
}

// StatusOK is the minimal acknowledgement body.
type StatusOK struct {
	Status string `json:"status"`
}

// EncoderInfo describes the selected encoder profile on the control
// surface.
type EncoderInfo struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Codec      string `json:"codec"`
	Preference string `json:"preference"`
}

// StatusResponse is the /control/status body.
type StatusResponse struct {
	Mode             string      `json:"mode"`
	ConnectedClients int         `json:"connected_clients"`
	TimeUntilIdle    float64     `json:"time_until_idle"`
	Encoder          EncoderInfo `json:"encoder"`
	StreamURL        string      `json:"stream_url"`
}

// VolumeResponse acknowledges a volume change with the clamped value.
type VolumeResponse struct {
	Status string  `json:"status"`
	SlotID string  `json:"slot_id"`
	Volume float64 `json:"volume"`
}

// VolumesResponse is the /api/audio/volumes body.
type VolumesResponse struct {
	Volumes map[string]float64 `json:"volumes"`
	Layout  models.LayoutKind  `json:"layout"`
	Streams map[string]string  `json:"streams"`
}
