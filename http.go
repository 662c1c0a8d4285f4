package courier

import (
	"encoding/json"
	"net/http"
)

// TelemetryHandler returns a http.Handler that exposes the SessionInfo of the Controller.
func (c *Controller) TelemetryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(c.SessionInfo())
	})
}
