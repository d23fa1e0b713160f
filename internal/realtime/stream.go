package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/store"
)

// pollInterval is the fan-out's per-tick pacing, matching the
// original's time.sleep(1.5).
const pollInterval = 1500 * time.Millisecond

// logCap bounds how many SystemLog rows are emitted per tick.
const logCap = 200

// Viewer identifies the subscriber a stream connection was issued to,
// per SPEC_FULL.md Supplemented Feature 2.
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

// Fanout serves one SSE connection per subscriber. It has no
// cross-subscriber shared state (§4.5).
type Fanout struct {
	store  *store.Store
	bus    bus.Conn
	tickets *TicketIssuer
}

func NewFanout(s *store.Store, b bus.Conn, tickets *TicketIssuer) *Fanout {
	return &Fanout{store: s, bus: b, tickets: tickets}
}

// IssueToken handles GET /realtime/stream-token.
func (f *Fanout) IssueToken(w http.ResponseWriter, r *http.Request, viewer Viewer) {
	ticket, err := f.tickets.Issue(viewer.UserID)
	if err != nil {
		http.Error(w, "failed to issue stream token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"stream_token": ticket.Token,
		"expires_in":   int(ticket.ExpiresIn.Seconds()),
	})
}

// ServeStream handles GET /realtime/stream?stream_token=…. It
// authenticates the ticket, emits an init snapshot, then loops,
// emitting log/mqtt_status/devices deltas until the peer disconnects.
func (f *Fanout) ServeStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("stream_token")
	uid, err := f.tickets.Consume(token)
	if err != nil {
		// Authentication failure: close immediately with 401, no init
		// event (§7).
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	viewer := Viewer{UserID: uid, IsAdmin: false}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lastLogID, _ := f.store.LatestLogID(viewer.UserID, viewer.IsAdmin)

	lastConnected := f.bus.IsConnected()
	devices, _ := f.store.ListVisibleDevices(viewer.UserID, viewer.IsAdmin)
	count, maxUpdated, _ := f.store.DeviceVisibilitySignature(viewer.UserID, viewer.IsAdmin)
	lastSignature := deviceSignature(count, maxUpdated)

	writeEvent(w, "init", map[string]any{
		"last_log_id":    lastLogID,
		"mqtt_connected": lastConnected,
		"devices":        devices,
	})
	flusher.Flush()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newLogs, err := f.store.LogsSince(lastLogID, logCap, viewer.UserID, viewer.IsAdmin)
			if err == nil {
				for _, l := range newLogs {
					writeEvent(w, "log", l)
					if l.ID > lastLogID {
						lastLogID = l.ID
					}
				}
			}

			connected := f.bus.IsConnected()
			if connected != lastConnected {
				lastConnected = connected
				writeEvent(w, "mqtt_status", map[string]any{"mqtt_connected": connected})
			}

			count, maxUpdated, err := f.store.DeviceVisibilitySignature(viewer.UserID, viewer.IsAdmin)
			if err == nil {
				sig := deviceSignature(count, maxUpdated)
				if sig != lastSignature {
					lastSignature = sig
					devices, err := f.store.ListVisibleDevices(viewer.UserID, viewer.IsAdmin)
					if err == nil {
						writeEvent(w, "devices", devices)
					}
				}
			}

			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func deviceSignature(count int64, maxUpdated time.Time) string {
	return fmt.Sprintf("%d|%d", count, maxUpdated.UnixNano())
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}
