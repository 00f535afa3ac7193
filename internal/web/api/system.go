package api

import (
	"net/http"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if a.GetConfig == nil {
		writeMessage(w, http.StatusServiceUnavailable, "config provider unavailable")
		return
	}

	cfg := a.GetConfig()
	if cfg == nil {
		writeMessage(w, http.StatusServiceUnavailable, "config unavailable")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
