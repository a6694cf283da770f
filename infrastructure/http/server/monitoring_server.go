package server

import (
	"circles/contract"
	"circles/observability"
	"net/http"
)

type MonitoringServer struct {
	monitor  *observability.MonitoringManager
	registry contract.IRegistry
}

func NewMonitoringServer(m *observability.MonitoringManager, registry contract.IRegistry) *MonitoringServer {
	return &MonitoringServer{monitor: m, registry: registry}
}

type healthResponse struct {
	Status      string                        `json:"status"`
	Subscribers int                           `json:"subscribers"`
	Stats       observability.MonitoringStats `json:"stats"`
}

func (s *MonitoringServer) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Subscribers: s.registry.CountSubscribers(),
		Stats:       s.monitor.GetLatest(),
	})
}
