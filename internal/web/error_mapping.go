package web

import (
	"errors"
	"net/http"

	"nfse-report/internal/batch"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errMissingFile):
		return http.StatusBadRequest
	case errors.Is(err, batch.ErrUnsupportedKind):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, batch.ErrUnreadableArtifact):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
