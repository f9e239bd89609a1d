// Package health serves the daemon's liveness endpoint on the status listener.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Status is the /healthz payload.
type Status struct {
	Frontends      int    `json:"frontends"`
	Capabilities   string `json:"capabilities"`
	StreamsRunning int    `json:"streams_running"`
}

// Handler returns an http.Handler for GET /healthz.
// Returns 200 {"status":"ok",...} when at least one frontend survived
// enumeration, 503 {"status":"no tuners"} otherwise.
func Handler(status func() Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := status()
		w.Header().Set("Content-Type", "application/json")
		if st.Frontends == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no tuners"}`))
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"status":          "ok",
			"frontends":       st.Frontends,
			"capabilities":    st.Capabilities,
			"streams_running": st.StreamsRunning,
			"time":            time.Now().Format(time.RFC3339),
		})
		_, _ = w.Write(body)
	})
}
