package api

import (
	"encoding/json"
	"net/http"

	"github.com/malscan/malscan/pkg/log"
)

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg := log.WithComponent("api")
		lg.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	writeJSON(w, status, errorEnvelope{
		Error: errorBody{Code: code, Message: message, Details: details},
	})
}
