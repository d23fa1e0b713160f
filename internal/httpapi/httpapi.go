// Package httpapi exposes the deliberately thin external HTTP surface
// named in §6: energy analysis, device history, the three actuator
// endpoints, and the two realtime stream endpoints. Grounded on
// server/server.go's Register/ServeMux/EndPoints pattern, adapted to
// drop the teacher's embedded web-app template serving (out of
// scope here).
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/energy"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/realtime"
	"github.com/homehub/core/internal/rules"
	"github.com/homehub/core/internal/store"
	"github.com/homehub/core/logging"
)

// API wires the five endpoints plus the /bus/status read endpoint
// (Supplemented Feature 4) onto an http.ServeMux, deduplicating
// registration the way Server.Register does.
type API struct {
	mux       *http.ServeMux
	endpoints sync.Map

	store       *store.Store
	bus         bus.Conn
	energy      *energy.Engine
	fanout      *realtime.Fanout
	topicPrefix string
}

func New(s *store.Store, b bus.Conn, e *energy.Engine, f *realtime.Fanout, logSvc *logging.Service, topicPrefix string) *API {
	a := &API{mux: http.NewServeMux(), store: s, bus: b, energy: e, fanout: f, topicPrefix: topicPrefix}
	a.register("/energy/analysis", http.HandlerFunc(a.handleEnergyAnalysis))
	a.register("/devices/", http.HandlerFunc(a.handleDeviceRoutes))
	a.register("/realtime/stream-token", http.HandlerFunc(a.handleStreamToken))
	a.register("/realtime/stream", http.HandlerFunc(f.ServeStream))
	a.register("/bus/status", http.HandlerFunc(a.handleBusStatus))
	if logSvc != nil {
		a.register("/logging/config", logSvc)
	}
	return a
}

func (a *API) register(path string, h http.Handler) {
	if _, already := a.endpoints.LoadOrStore(path, h); already {
		return
	}
	a.mux.Handle(path, h)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleBusStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"mqtt_connected": a.bus.IsConnected()})
}

func (a *API) handleEnergyAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rangeParam := energy.RangeBucket(q.Get("range"))
	ids, err := parseDeviceIDs(q.Get("device_ids"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if rangeParam == "" {
		report, err := a.energy.MonthlyEstimate(ids)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, report)
		return
	}

	report, err := a.energy.Analyze(ids, rangeParam)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (a *API) handleStreamToken(w http.ResponseWriter, r *http.Request) {
	viewer := realtime.Viewer{UserID: viewerIDFromRequest(r)}
	a.fanout.IssueToken(w, r, viewer)
}

// handleDeviceRoutes dispatches /devices/{id}/history and
// /devices/{id}/{toggle,set_temp,set_fan_speed}.
func (a *API) handleDeviceRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/devices/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	deviceID := uint(id)

	switch parts[1] {
	case "history":
		a.handleDeviceHistory(w, r, deviceID)
	case "toggle":
		a.handleDeviceAction(w, r, deviceID, model.ActionToggle)
	case "set_temp":
		a.handleDeviceAction(w, r, deviceID, model.ActionSetTemp)
	case "set_fan_speed":
		a.handleDeviceAction(w, r, deviceID, model.ActionSetFanSpeed)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleDeviceHistory(w http.ResponseWriter, r *http.Request, deviceID uint) {
	rangeParam := r.URL.Query().Get("range")
	delta, ok := historyRangeDelta(rangeParam)
	if !ok {
		http.Error(w, "unsupported range", http.StatusBadRequest)
		return
	}
	end := time.Now()
	points, err := a.store.DeviceHistory(deviceID, end.Add(-delta), end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points)
}

func historyRangeDelta(r string) (time.Duration, bool) {
	switch r {
	case "24h", "":
		return 24 * time.Hour, true
	case "3d":
		return 3 * 24 * time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func (a *API) handleDeviceAction(w http.ResponseWriter, r *http.Request, deviceID uint, action model.ActionKind) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Value *float64 `json:"value"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	device, err := a.store.GetDevice(deviceID)
	if err != nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	patch, payload, err := rules.ComputeActionForHTTP(action, body.Value, device.CurrentState)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := a.store.MergeDeviceState(deviceID, patch, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(payload)
	if err == nil {
		topic := fmt.Sprintf("%s/%d/cmd", a.topicPrefix, deviceID)
		_ = a.bus.Publish(r.Context(), topic, b, false, 1)
	}

	writeJSON(w, updated)
}

func parseDeviceIDs(raw string) ([]uint, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []uint
	for _, s := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid device id %q", s)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func viewerIDFromRequest(r *http.Request) uint {
	if v := r.Header.Get("X-User-Id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			return uint(id)
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
