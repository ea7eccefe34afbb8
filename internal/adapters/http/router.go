package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/doc-summarizer/internal/config"
	"github.com/kirillkom/doc-summarizer/internal/core/domain"
	"github.com/kirillkom/doc-summarizer/internal/core/ports"
	"github.com/kirillkom/doc-summarizer/internal/observability/logging"
	"github.com/kirillkom/doc-summarizer/internal/observability/metrics"
)

const (
	serviceName = "api"
	// multipart framing on top of the file itself
	uploadOverheadBytes = 1 << 20
)

type Router struct {
	cfg     config.Config
	ingest  ports.DocumentIngestor
	docs    ports.DocumentManager
	access  ports.AccessAdministrator
	auth    *Authenticator
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	docs ports.DocumentManager,
	access ports.AccessAdministrator,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		ingest:  ingest,
		docs:    docs,
		access:  access,
		auth:    NewAuthenticator(cfg.JWTSecret),
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("GET /v1/documents/{id}/summary", rt.getSummary)
	api.HandleFunc("GET /v1/documents/{id}/status", rt.getStatus)
	api.HandleFunc("GET /v1/documents/{id}/file", rt.downloadFile)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("POST /v1/documents/{id}/resubmit", rt.resubmitDocument)
	api.HandleFunc("GET /v1/access/check", rt.checkAccess)
	api.HandleFunc("POST /v1/access/grants", rt.createGrant)
	api.HandleFunc("GET /v1/access/grants", rt.listGrants)
	api.HandleFunc("PATCH /v1/access/grants/{id}", rt.updateGrant)
	api.HandleFunc("DELETE /v1/access/grants/{id}", rt.deleteGrant)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", rt.auth.Middleware(rt.writeError, api))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxUploadBytes+uploadOverheadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", domain.MaxUploadBytes)))
			return
		}
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileHeader.Filename))); byExt != "" {
			mimeType = byExt
		}
	}

	doc, err := rt.ingest.Upload(r.Context(), ports.UploadRequest{
		Owner:     principal,
		Filename:  fileHeader.Filename,
		MimeType:  mimeType,
		SizeBytes: fileHeader.Size,
		Body:      file,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, doc.MimeType, doc.SizeBytes)
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	query := r.URL.Query()
	filter := domain.ListFilter{
		Page:   queryInt(query.Get("page")),
		Limit:  queryInt(query.Get("limit")),
		Search: strings.TrimSpace(query.Get("search")),
	}

	page, err := rt.docs.List(r.Context(), principal, filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, err := rt.docs.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getSummary(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	view, err := rt.docs.GetSummary(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) getStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	id := r.PathValue("id")
	status, err := rt.docs.GetStatus(r.Context(), principal, id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (rt *Router) downloadFile(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, data, err := rt.docs.Download(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	if err := rt.docs.Delete(r.Context(), principal, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) resubmitDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, err := rt.docs.Resubmit(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) checkAccess(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	status, err := rt.access.StatusFor(r.Context(), principal)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type grantRequest struct {
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  *bool  `json:"is_active"`
}

func (rt *Router) createGrant(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	startsAt, err := parseGrantTime("start_date", req.StartDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	endsAt, err := parseGrantTime("end_date", req.EndDate)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	grant, err := rt.access.Grant(r.Context(), principal, req.UserID, startsAt, endsAt)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (rt *Router) listGrants(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	grants, err := rt.access.ListGrants(r.Context(), principal)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (rt *Router) updateGrant(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	update := domain.GrantUpdate{Active: req.IsActive}
	if req.StartDate != "" {
		startsAt, err := parseGrantTime("start_date", req.StartDate)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		update.StartsAt = &startsAt
	}
	if req.EndDate != "" {
		endsAt, err := parseGrantTime("end_date", req.EndDate)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		update.EndsAt = &endsAt
	}

	grant, err := rt.access.UpdateGrant(r.Context(), principal, r.PathValue("id"), update)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (rt *Router) deleteGrant(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	if err := rt.access.RevokeGrant(r.Context(), principal, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed", "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("request_rejected", "path", r.URL.Path, "code", body.Code, "error", err)
	}
	if status == http.StatusForbidden && rt.metrics != nil {
		rt.metrics.RecordAccessDenied(serviceName, body.Code)
	}
	writeJSON(w, status, body)
}

// parseGrantTime accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseGrantTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, domain.WrapError(domain.ErrInvalidInput, "parse grant", fmt.Errorf("%s is required", field))
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, domain.WrapError(domain.ErrInvalidInput, "parse grant", fmt.Errorf("%s must be an RFC 3339 timestamp or a date", field))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

func queryInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
