package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Mensaje string `json:"mensaje"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, mensaje string, err error) {
	resp := errorResponse{Mensaje: mensaje}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}
