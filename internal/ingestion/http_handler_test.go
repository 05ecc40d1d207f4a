package ingestion

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartUpload(t *testing.T, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/incidentes/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeUpload(t *testing.T, rec *httptest.ResponseRecorder) uploadResponse {
	t.Helper()
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUploadHandler_StatusCodes(t *testing.T) {
	store := newMemoryDB()
	handler := NewHTTPHandler(newTestService(store, &stubLogRepo{}), 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", currentExport, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeUpload(t, rec)
	assert.Equal(t, StatusCommitted, resp.Status)
	assert.Equal(t, 1, resp.Inserted)
	assert.NotEmpty(t, resp.Mensaje)

	rec = httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", currentExport, nil))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp = decodeUpload(t, rec)
	assert.Equal(t, StatusRolledBack, resp.Status)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, FailureConflict, resp.Failure.Kind)
	assert.Equal(t, "INC001", resp.Failure.Number)

	rec = httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "mixed.csv", "Number,severity_1\nINC009,Low\n", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeUpload(t, rec).Conflicts)

	rec = httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.exe", "MZ", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandler_RollbackOnOtherFailureIs500(t *testing.T) {
	store := newMemoryDB()
	store.commitErr = assert.AnError
	handler := NewHTTPHandler(newTestService(store, &stubLogRepo{}), 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", currentExport, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeUpload(t, rec)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, FailureCommit, resp.Failure.Kind)
}

func TestUploadHandler_DryRunAndProfile(t *testing.T) {
	store := newMemoryDB()
	handler := NewHTTPHandler(newTestService(store, &stubLogRepo{}), 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", "number,state\nINC001,Open\n", map[string]string{
		"profile": "legacy",
		"dry_run": "true",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeUpload(t, rec)
	assert.Equal(t, StatusDryRun, resp.Status)
	assert.Equal(t, ProfileLegacy, resp.Profile)
	assert.Zero(t, store.begins)

	rec = httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", currentExport, map[string]string{"profile": "newest"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandler_MissingFile(t *testing.T) {
	handler := NewHTTPHandler(newTestService(newMemoryDB(), &stubLogRepo{}), 0)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("dry_run", "true"))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/incidentes/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchLogHandler(t *testing.T) {
	logs := &stubLogRepo{}
	batchID := uuid.New()
	service := newTestService(newMemoryDB(), logs, WithIDGenerator(func() uuid.UUID { return batchID }))
	handler := NewHTTPHandler(service, 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "incident.csv", "Number,State\n,Open\n", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	router := chi.NewRouter()
	router.Get("/ingestion/batches/{batchID}/log", handler.BatchLog)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingestion/batches/"+batchID.String()+"/log", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		BatchID uuid.UUID `json:"batch_id"`
		Entries []struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, batchID, payload.BatchID)
	kinds := map[string]int{}
	for _, e := range payload.Entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds["rejection"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingestion/batches/not-a-uuid/log", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
