package signald

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Status        string  `json:"status"`
	Peers         int     `json:"peers"`
	AuthRequired  bool    `json:"auth_required"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// healthHandler 健康检查处理
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:        "healthy",
		Peers:         s.relay.Peers(),
		AuthRequired:  s.cfg.Auth.Required,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}
