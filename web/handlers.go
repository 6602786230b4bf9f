// Package web serves the debug HTTP surface of a running network: JSON
// views of its state, statistics and connections, and Prometheus metrics.
package web

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	inet "github.com/intersectFR/Intersect-Engine-FR/net"
)

type Handler struct {
	network  *inet.Network
	registry *prometheus.Registry
}

// NewHandler constructs the web handler for n. Metrics are served from a
// registry of their own holding a Collector for n.
func NewHandler(n *inet.Network) *Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(n))
	return &Handler{network: n, registry: reg}
}

type stateResponse struct {
	State   string   `json:"state"`
	Running bool     `json:"running"`
	Listen  []string `json:"listen,omitempty"`
}

type connectionResponse struct {
	ID        string        `json:"id"`
	Remote    string        `json:"remote"`
	Local     string        `json:"local"`
	Connected bool          `json:"connected"`
	Created   time.Time     `json:"created"`
	Latency   time.Duration `json:"latency_ns"`
	MSS       int           `json:"mss"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("error encoding response: %v", err)
	}
}

func (h *Handler) stateHandler(w http.ResponseWriter, r *http.Request) {
	st := h.network.State()
	resp := stateResponse{State: st.String(), Running: st.IsRunning()}
	for _, a := range h.network.LocalAddrs() {
		resp.Listen = append(resp.Listen, a.String())
	}
	writeJSON(w, resp)
}

func (h *Handler) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.network.Statistics().Snapshot())
}

func (h *Handler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	conns := h.network.Connections()
	resp := make([]connectionResponse, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, describe(c))
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Created.Before(resp[j].Created) })
	writeJSON(w, resp)
}

func (h *Handler) connectionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	for _, c := range h.network.Connections() {
		if c.ID().String() == vars["id"] {
			writeJSON(w, describe(c))
			return
		}
	}
	http.Error(w, "no such connection", http.StatusNotFound)
}

func describe(c *inet.Connection) connectionResponse {
	return connectionResponse{
		ID:        c.ID().String(),
		Remote:    c.RemoteAddr().String(),
		Local:     c.LocalAddr().String(),
		Connected: c.IsConnected(),
		Created:   c.CreatedAt(),
		Latency:   c.Latency(),
		MSS:       c.MSS(),
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/state", h.stateHandler).Methods(http.MethodGet)
	r.HandleFunc("/statistics", h.statisticsHandler).Methods(http.MethodGet)
	r.HandleFunc("/connections", h.connectionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id:[0-9a-f]{32}}", h.connectionHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
}
