package web

import (
	"encoding/json"
	"net/http"
)

// CommandResponse is returned by the manual control endpoints. A command is
// only queued here; its outcome shows up in the status once the next tick
// has run.
type CommandResponse struct {
	Accepted bool   `json:"accepted"`
	Command  string `json:"command,omitempty"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, _ := json.Marshal(v)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, CommandResponse{Error: err.Error()})
}
