package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mosaictv/mosaic/internal/models"
)

// LayoutHandler serves the layout endpoints.
type LayoutHandler struct {
	supervisor SupervisorService
}

// NewLayoutHandler creates a layout handler.
func NewLayoutHandler(supervisor SupervisorService) *LayoutHandler {
	return &LayoutHandler{supervisor: supervisor}
}

// SetLayoutInput is the /api/layout/set request.
type SetLayoutInput struct {
	Body models.LayoutConfig
}

// StatusOKOutput wraps the minimal acknowledgement.
type StatusOKOutput struct {
	Body StatusOK
}

// CurrentLayoutOutput wraps the last applied layout.
type CurrentLayoutOutput struct {
	Body models.LayoutConfig
}

// SwapAudioInput is the /api/layout/swap-audio request.
type SwapAudioInput struct {
	Body struct {
		AudioSource string `json:"audio_source" doc:"Slot whose audio should lead the mix"`
	}
}

// Register registers the layout routes with the API.
func (h *LayoutHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "setLayout",
		Method:      http.MethodPost,
		Path:        "/api/layout/set",
		Summary:     "Apply a layout",
		Description: "Validates and applies a layout, starting or replacing the encoder",
		Tags:        []string{"Layout"},
	}, h.Set)

	huma.Register(api, huma.Operation{
		OperationID: "getCurrentLayout",
		Method:      http.MethodGet,
		Path:        "/api/layout/current",
		Summary:     "Get the current layout",
		Description: "Returns the last applied layout configuration",
		Tags:        []string{"Layout"},
	}, h.Current)

	huma.Register(api, huma.Operation{
		OperationID: "swapAudio",
		Method:      http.MethodPost,
		Path:        "/api/layout/swap-audio",
		Summary:     "Swap the audio source",
		Description: "Re-applies the current layout with a different audio slot",
		Tags:        []string{"Layout"},
	}, h.SwapAudio)
}

// Set applies a layout.
func (h *LayoutHandler) Set(ctx context.Context, input *SetLayoutInput) (*StatusOKOutput, error) {
	if err := h.supervisor.Apply(ctx, &input.Body); err != nil {
		return nil, FromError(err)
	}
	return &StatusOKOutput{Body: StatusOK{Status: "ok"}}, nil
}

// Current returns the last applied layout, or 404 when none exists.
func (h *LayoutHandler) Current(ctx context.Context, _ *struct{}) (*CurrentLayoutOutput, error) {
	layout := h.supervisor.Current()
	if layout == nil {
		return nil, FromError(models.NewError(models.ErrKindNotFound, "no layout has been set"))
	}
	return &CurrentLayoutOutput{Body: *layout}, nil
}

// SwapAudio changes the leading audio slot.
func (h *LayoutHandler) SwapAudio(ctx context.Context, input *SwapAudioInput) (*StatusOKOutput, error) {
	if err := h.supervisor.SwapAudio(ctx, input.Body.AudioSource); err != nil {
		return nil, FromError(err)
	}
	return &StatusOKOutput{Body: StatusOK{Status: "ok"}}, nil
}
