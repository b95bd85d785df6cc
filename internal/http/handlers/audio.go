package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mosaictv/mosaic/internal/models"
)

// AudioHandler serves the per-slot volume endpoints.
type AudioHandler struct {
	supervisor SupervisorService
}

// NewAudioHandler creates an audio handler.
func NewAudioHandler(supervisor SupervisorService) *AudioHandler {
	return &AudioHandler{supervisor: supervisor}
}

// SetVolumeInput is the /api/audio/volume request.
type SetVolumeInput struct {
	Body struct {
		SlotID string  `json:"slot_id" doc:"Slot whose gain to adjust"`
		Volume float64 `json:"volume" doc:"Gain, clamped to [0, 1]"`
	}
}

// VolumeOutput acknowledges the change with the clamped value.
type VolumeOutput struct {
	Body VolumeResponse
}

// VolumesOutput wraps the effective gain map.
type VolumesOutput struct {
	Body VolumesResponse
}

// Register registers the audio routes with the API.
func (h *AudioHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "setVolume",
		Method:      http.MethodPost,
		Path:        "/api/audio/volume",
		Summary:     "Set a slot's volume",
		Description: "Adjusts one slot's gain, replacing the encoder when live",
		Tags:        []string{"Audio"},
	}, h.SetVolume)

	huma.Register(api, huma.Operation{
		OperationID: "getVolumes",
		Method:      http.MethodGet,
		Path:        "/api/audio/volumes",
		Summary:     "Get all slot volumes",
		Description: "Returns the effective per-slot gains of the applied layout",
		Tags:        []string{"Audio"},
	}, h.GetVolumes)
}

// SetVolume adjusts one slot's gain.
func (h *AudioHandler) SetVolume(ctx context.Context, input *SetVolumeInput) (*VolumeOutput, error) {
	if err := h.supervisor.SetVolume(ctx, input.Body.SlotID, input.Body.Volume); err != nil {
		return nil, FromError(err)
	}
	return &VolumeOutput{
		Body: VolumeResponse{
			Status: "ok",
			SlotID: input.Body.SlotID,
			Volume: models.ClampVolume(input.Body.Volume),
		},
	}, nil
}

// GetVolumes returns the effective gain map alongside the layout shape.
func (h *AudioHandler) GetVolumes(ctx context.Context, _ *struct{}) (*VolumesOutput, error) {
	volumes, err := h.supervisor.Volumes()
	if err != nil {
		return nil, FromError(err)
	}
	layout := h.supervisor.Current()
	return &VolumesOutput{
		Body: VolumesResponse{
			Volumes: volumes,
			Layout:  layout.Kind,
			Streams: layout.Streams,
		},
	}, nil
}
