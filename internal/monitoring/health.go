package monitoring

import (
	"time"
)

// HealthStatus summarizes the runners for /health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Runners   map[string]string `json:"runners"`
	Stale     []string          `json:"stale,omitempty"`
}

// Health is healthy when every known runner is RUNNING and has reported
// within staleAfter, degraded otherwise. No runners at all is degraded.
func Health(board *StatusBoard, staleAfter time.Duration, now time.Time) HealthStatus {
	h := HealthStatus{
		Status:    "healthy",
		Timestamp: now,
		Uptime:    board.Uptime().Round(time.Second).String(),
		Runners:   make(map[string]string),
	}

	all := board.All()
	if len(all) == 0 {
		h.Status = "degraded"
	}
	for _, st := range all {
		h.Runners[st.Symbol] = st.State
		if st.State != "RUNNING" {
			h.Status = "degraded"
		}
		if staleAfter > 0 && now.Sub(st.UpdatedAt) > staleAfter {
			h.Stale = append(h.Stale, st.Symbol)
			h.Status = "degraded"
		}
	}
	return h
}
