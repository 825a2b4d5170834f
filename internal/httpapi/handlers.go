// Package httpapi serves a read-only view of a running simulation.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"trucksim/internal/fleet"
	"trucksim/internal/journal"
	"trucksim/internal/simulator"
	"trucksim/internal/utils"
)

// Source is the running simulation.
type Source interface {
	Phase() simulator.Phase
	Stats() simulator.Totals
	Trucks() []fleet.Truck
}

// Deliveries reads the publish journal.
type Deliveries interface {
	Recent(ctx context.Context, truckID string, limit int) ([]journal.Delivery, error)
}

type truckView struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type deliveryView struct {
	EventID   string    `json:"eventId,omitempty"`
	TruckID   string    `json:"truckId"`
	TruckCode string    `json:"truckCode"`
	Transport string    `json:"transport"`
	Key       string    `json:"key,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   int       `json:"heading"`
	Timestamp string    `json:"timestamp"`
	SentAt    time.Time `json:"sentAt"`
}

type handlers struct {
	src        Source
	deliveries Deliveries
}

// NewMux registers the monitoring routes. deliveries may be nil when the
// journal is disabled; the deliveries route is then not served.
func NewMux(src Source, deliveries Deliveries) *http.ServeMux {
	h := &handlers{src: src, deliveries: deliveries}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/trucks", h.handleTrucks)
	mux.HandleFunc("GET /api/v1/trucks/{id}", h.handleTruck)
	if deliveries != nil {
		mux.HandleFunc("GET /api/v1/deliveries", h.handleDeliveries)
	}
	return mux
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	phase := h.src.Phase()
	code, status := http.StatusOK, "ok"
	if phase == simulator.ShuttingDown {
		code, status = http.StatusServiceUnavailable, "unavailable"
	}
	utils.WriteJSON(w, code, map[string]string{"status": status, "phase": phase.String()})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, struct {
		Phase string `json:"phase"`
		simulator.Totals
	}{Phase: h.src.Phase().String(), Totals: h.src.Stats()})
}

func (h *handlers) handleTrucks(w http.ResponseWriter, r *http.Request) {
	trucks := h.src.Trucks()
	out := make([]truckView, 0, len(trucks))
	for _, t := range trucks {
		out = append(out, toTruckView(t))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) handleTruck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, t := range h.src.Trucks() {
		if t.ID == id || t.Code == id {
			utils.WriteJSON(w, http.StatusOK, toTruckView(t))
			return
		}
	}
	utils.WriteError(w, http.StatusNotFound, "unknown truck "+id)
}

func (h *handlers) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.QueryInt(r, "limit", 50, 500)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.deliveries.Recent(r.Context(), r.URL.Query().Get("truckId"), limit)
	if err != nil {
		slog.Error("failed to read deliveries", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to read deliveries")
		return
	}

	out := make([]deliveryView, 0, len(items))
	for _, d := range items {
		out = append(out, deliveryView{
			EventID: d.EventID, TruckID: d.TruckID, TruckCode: d.TruckCode, Transport: d.Transport,
			Key: d.Key, OK: d.OK, Error: d.Error, Latitude: d.Latitude, Longitude: d.Longitude,
			Speed: d.Speed, Heading: d.Heading, Timestamp: d.EventTime, SentAt: d.SentAt,
		})
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"limit": limit, "items": out})
}

func toTruckView(t fleet.Truck) truckView {
	return truckView{
		ID:        t.ID,
		Code:      t.Code,
		Label:     t.Label,
		Latitude:  t.State.Lat,
		Longitude: t.State.Lon,
		Speed:     t.State.Speed,
		Heading:   t.State.Heading,
		UpdatedAt: t.UpdatedAt,
	}
}
