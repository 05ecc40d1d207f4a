package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes ingestion over HTTP.
type Handler struct {
	service  *Service
	maxBytes int64
}

// NewHTTPHandler wraps the service. maxBytes bounds the multipart body.
func NewHTTPHandler(service *Service, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Handler{service: service, maxBytes: maxBytes}
}

type uploadResponse struct {
	Summary
	Mensaje   string           `json:"mensaje"`
	Error     string           `json:"error,omitempty"`
	Conflicts []HeaderConflict `json:"conflicts,omitempty"`
}

type errorResponse struct {
	Mensaje string `json:"mensaje"`
	Error   string `json:"error,omitempty"`
}

// Upload handles POST /incidentes/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "formulario inválido", Error: err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "no se envió ningún archivo", Error: err.Error()})
		return
	}
	defer file.Close()

	var profile Profile
	if raw := strings.TrimSpace(r.FormValue("profile")); raw != "" {
		profile, err = ParseProfile(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "perfil inválido", Error: err.Error()})
			return
		}
	}

	dryRun := false
	if raw := strings.TrimSpace(r.FormValue("dry_run")); raw != "" {
		dryRun, err = strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "dry_run inválido", Error: err.Error()})
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "no se pudo leer el archivo", Error: err.Error()})
		return
	}

	summary, err := h.service.Ingest(r.Context(), Request{
		FileName: header.Filename,
		Data:     data,
		Profile:  profile,
		DryRun:   dryRun,
	})
	status, resp := uploadResult(summary, err)
	writeJSON(w, status, resp)
}

// uploadResult maps the pipeline outcome to a status code. The summary is
// always part of the body.
func uploadResult(summary Summary, err error) (int, uploadResponse) {
	resp := uploadResponse{Summary: summary}
	if err == nil {
		switch summary.Status {
		case StatusDryRun:
			resp.Mensaje = "archivo validado sin cargar datos"
		case StatusEmpty:
			resp.Mensaje = "no hay registros válidos para cargar"
		default:
			resp.Mensaje = fmt.Sprintf("%d incidentes cargados", summary.Inserted)
		}
		return http.StatusOK, resp
	}

	resp.Error = err.Error()

	var conflictErr *HeaderConflictError
	var batchErr *BatchError
	switch {
	case errors.As(err, &conflictErr):
		resp.Mensaje = "encabezados ambiguos"
		resp.Conflicts = conflictErr.Conflicts
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &batchErr) && batchErr.Kind == FailureConflict:
		resp.Mensaje = "la carga se revirtió por un número de incidente duplicado"
		return http.StatusConflict, resp
	case errors.As(err, &batchErr):
		resp.Mensaje = "la carga se revirtió"
		return http.StatusInternalServerError, resp
	case summary.Status == StatusRolledBack:
		resp.Mensaje = "la carga se revirtió"
		return http.StatusInternalServerError, resp
	default:
		resp.Mensaje = "archivo inválido"
		return http.StatusBadRequest, resp
	}
}

// BatchLog handles GET /ingestion/batches/{batchID}/log.
func (h *Handler) BatchLog(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Mensaje: "identificador de lote inválido", Error: err.Error()})
		return
	}

	entries, err := h.service.BatchLog(r.Context(), batchID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Mensaje: "no se pudo leer el registro del lote", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
