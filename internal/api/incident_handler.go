package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/incidentetl/internal/domain"
	"github.com/rpattn/incidentetl/internal/export"
	"github.com/rpattn/incidentetl/internal/ingestion"
	"github.com/rpattn/incidentetl/internal/logging"
	"github.com/rpattn/incidentetl/internal/repository"
)

const maxBodyBytes = 1 << 20

// IncidentHandler serves CRUD access to incidents.
type IncidentHandler struct {
	repo    repository.IncidentRepository
	coercer *ingestion.Coercer
	logger  *slog.Logger
}

// NewIncidentHandler builds the handler. Timestamps in request bodies are
// parsed with the coercer's layouts.
func NewIncidentHandler(repo repository.IncidentRepository, coercer *ingestion.Coercer) *IncidentHandler {
	if coercer == nil {
		coercer = ingestion.NewCoercer(nil, nil)
	}
	return &IncidentHandler{repo: repo, coercer: coercer, logger: logging.New("api")}
}

// List handles GET /incidentes.
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.repo.List(r.Context())
	if err != nil {
		h.internalError(w, "no se pudieron listar los incidentes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidentes": incidents,
		"mensaje":    "incidentes listados",
	})
}

// Get handles GET /incidentes/{number}.
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	incident, err := h.repo.Get(r.Context(), number)
	if err != nil {
		h.repoError(w, err, "no se pudo consultar el incidente")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidente": incident,
		"mensaje":   "incidente encontrado",
	})
}

// Create handles POST /incidentes.
func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo inválido", err)
		return
	}
	incident, err := h.incidentFromFields(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "datos inválidos", err)
		return
	}

	created, err := h.repo.Create(r.Context(), incident)
	if err != nil {
		h.repoError(w, err, "no se pudo crear el incidente")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"incidente": created,
		"mensaje":   "incidente creado",
	})
}

// Update handles PUT /incidentes/{number}.
func (h *IncidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	fields, err := decodeFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo inválido", err)
		return
	}
	patch, err := h.patchFromFields(number, fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "datos inválidos", err)
		return
	}

	updated, err := h.repo.Update(r.Context(), number, patch)
	if err != nil {
		h.repoError(w, err, "no se pudo actualizar el incidente")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidente": updated,
		"mensaje":   "incidente actualizado",
	})
}

// Delete handles DELETE /incidentes/{number}.
func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.repo.Delete(r.Context(), number); err != nil {
		h.repoError(w, err, "no se pudo eliminar el incidente")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mensaje": fmt.Sprintf("incidente %s eliminado", number)})
}

// Export handles GET /exports/incidentes?format=csv|xlsx.
func (h *IncidentHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "formato inválido", err)
		return
	}
	incidents, err := h.repo.List(r.Context())
	if err != nil {
		h.internalError(w, "no se pudieron listar los incidentes", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, incidents); err != nil {
		h.internalError(w, "no se pudo generar el archivo", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="incidentes.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *IncidentHandler) repoError(w http.ResponseWriter, err error, mensaje string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "incidente no encontrado", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "el número de incidente ya existe", err)
	default:
		h.internalError(w, mensaje, err)
	}
}

func (h *IncidentHandler) internalError(w http.ResponseWriter, mensaje string, err error) {
	h.logger.Error(mensaje, slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, mensaje, err)
}

// decodeFields reads a flat JSON object whose values are strings or null.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[domain.Field]*string, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if raw == nil {
		return nil, errors.New("expected a json object")
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make(map[domain.Field]*string, len(raw))
	for _, key := range keys {
		field, ok := domain.ParseField(key)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", key)
		}
		value := raw[key]
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			fields[field] = nil
			continue
		}
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return nil, fmt.Errorf("field %s must be a string or null", key)
		}
		fields[field] = &text
	}
	return fields, nil
}

func (h *IncidentHandler) incidentFromFields(fields map[domain.Field]*string) (domain.Incident, error) {
	numberValue := fields[domain.FieldNumber]
	if numberValue == nil || strings.TrimSpace(*numberValue) == "" {
		return domain.Incident{}, errors.New("missing required field: number")
	}

	incident := domain.Incident{Number: strings.TrimSpace(*numberValue)}
	for field, value := range fields {
		if field == domain.FieldNumber {
			continue
		}
		if field.IsTimestamp() {
			ts, err := h.parseTime(field, value)
			if err != nil {
				return domain.Incident{}, err
			}
			incident = incident.WithTime(field, ts)
			continue
		}
		incident = incident.WithText(field, h.text(value))
	}
	return incident, nil
}

func (h *IncidentHandler) patchFromFields(number string, fields map[domain.Field]*string) (domain.IncidentPatch, error) {
	patch := domain.NewIncidentPatch()
	for field, value := range fields {
		if field == domain.FieldNumber {
			if value == nil || strings.TrimSpace(*value) != number {
				return patch, errors.New("field number is immutable")
			}
			continue
		}
		if field.IsTimestamp() {
			ts, err := h.parseTime(field, value)
			if err != nil {
				return patch, err
			}
			if err := patch.SetTime(field, ts); err != nil {
				return patch, err
			}
			continue
		}
		if err := patch.SetText(field, h.text(value)); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func (h *IncidentHandler) parseTime(field domain.Field, value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	ts, err := h.coercer.ParseTime(*value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return ts, nil
}

func (h *IncidentHandler) text(value *string) *string {
	if value == nil {
		return nil
	}
	return h.coercer.Text(*value)
}
