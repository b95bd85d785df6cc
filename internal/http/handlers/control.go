package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// ControlHandler serves the runtime control surface.
type ControlHandler struct {
	supervisor SupervisorService
	preference string
}

// NewControlHandler creates a control handler. preference is the
// configured encoder preference, echoed on the status body.
func NewControlHandler(supervisor SupervisorService, preference string) *ControlHandler {
	return &ControlHandler{supervisor: supervisor, preference: preference}
}

// StatusInput carries the Host header so the status body can report an
// absolute stream URL.
type StatusInput struct {
	Host string `header:"Host"`
}

// StatusOutput wraps the status body.
type StatusOutput struct {
	Body StatusResponse
}

// Register registers the control routes with the API.
func (h *ControlHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/control/status",
		Summary:     "Service status",
		Description: "Returns the runtime mode, viewer count, idle countdown, and encoder profile",
		Tags:        []string{"Control"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "stop",
		Method:      http.MethodGet,
		Path:        "/control/stop",
		Summary:     "Stop the encoder",
		Description: "Terminates the encoder and drops the service to idle",
		Tags:        []string{"Control"},
	}, h.Stop)
}

// Status reports the runtime state.
func (h *ControlHandler) Status(ctx context.Context, input *StatusInput) (*StatusOutput, error) {
	st := h.supervisor.Status()

	encoderType := "hardware"
	if st.Profile.Name == "cpu" {
		encoderType = "software"
	}

	streamURL := "/stream"
	if input.Host != "" {
		streamURL = "http://" + input.Host + "/stream"
	}

	return &StatusOutput{
		Body: StatusResponse{
			Mode:             string(st.Mode),
			ConnectedClients: st.ConnectedClients,
			TimeUntilIdle:    st.TimeUntilIdle,
			Encoder: EncoderInfo{
				Type:       encoderType,
				Name:       st.Profile.Name,
				Codec:      st.Profile.Codec,
				Preference: h.preference,
			},
			StreamURL: streamURL,
		},
	}, nil
}

// Stop forces the service to idle.
func (h *ControlHandler) Stop(ctx context.Context, _ *struct{}) (*StatusOKOutput, error) {
	h.supervisor.Stop()
	return &StatusOKOutput{Body: StatusOK{Status: "idle"}}, nil
}
