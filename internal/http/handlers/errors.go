package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mosaictv/mosaic/internal/models"
)

// APIError is the service's error envelope. It implements
// huma.StatusError so handler errors and framework errors render the
// same shape.
type APIError struct {
	status int

	Kind   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Detail
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// FromError converts any error into the envelope, honouring domain
// error kinds.
func FromError(err error) *APIError {
	kind := models.KindOf(err)
	return &APIError{
		status: models.HTTPStatus(kind),
		Kind:   string(kind),
		Detail: models.DetailOf(err),
	}
}

// InstallErrorModel rewires huma's error constructor so validation and
// routing failures use the envelope too. bad-layout doubles as the
// generic malformed-request kind; huma's 422s are folded into 400.
func InstallErrorModel() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		detail := message
		if len(errs) > 0 && errs[0] != nil {
			detail = fmt.Sprintf("%s: %v", message, errs[0])
		}
		return &APIError{status: status, Kind: kindForStatus(status), Detail: detail}
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(models.ErrKindNotFound)
	case http.StatusBadRequest:
		return string(models.ErrKindBadLayout)
	case http.StatusConflict:
		return string(models.ErrKindBusy)
	case http.StatusBadGateway:
		return string(models.ErrKindSourceUnavailable)
	case http.StatusGatewayTimeout:
		return string(models.ErrKindStartupTimeout)
	default:
		return string(models.ErrKindInternal)
	}
}

// writeError renders the envelope on raw (non-huma) routes.
func writeError(w http.ResponseWriter, err error) {
	envelope := FromError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.status)
	json.NewEncoder(w).Encode(envelope)
}
