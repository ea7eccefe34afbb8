package httpadapter

import (
	"net/http"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// mapError picks the status, a stable code and a client-safe message. Errors
// from external providers are reduced to their kind so response bodies of the
// document store or summarizer never reach the client.
func mapError(err error) (int, errorResponse) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_input"}
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"}
	case domain.IsKind(err, domain.ErrAccessExpired):
		return http.StatusForbidden, errorResponse{Error: domain.ErrAccessExpired.Error(), Code: "access_expired"}
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "forbidden", Code: "forbidden"}
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, errorResponse{Error: domain.ErrDocumentNotFound.Error(), Code: "not_found"}
	case domain.IsKind(err, domain.ErrGrantNotFound):
		return http.StatusNotFound, errorResponse{Error: domain.ErrGrantNotFound.Error(), Code: "not_found"}
	case domain.IsKind(err, domain.ErrUpload):
		return http.StatusBadGateway, errorResponse{Error: domain.ErrUpload.Error(), Code: "upload_failed"}
	case domain.IsKind(err, domain.ErrDownload):
		return http.StatusBadGateway, errorResponse{Error: domain.ErrDownload.Error(), Code: "download_failed"}
	case domain.IsKind(err, domain.ErrDelete):
		return http.StatusBadGateway, errorResponse{Error: domain.ErrDelete.Error(), Code: "delete_failed"}
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable", Code: "temporary"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"}
	}
}

func mapErrorToHTTPStatus(err error) int {
	status, _ := mapError(err)
	return status
}
