// Package gateway implements the Telemetry Gateway (C): the bus
// client that decodes per-device topics, applies last-will/online
// semantics, persists history, and fans out to the Scene Rule Engine
// and Email Alert Engine. Grounded on
// mqtt_gateway/management/commands/run_mqtt_gateway.py, generalized
// from that file's full state overwrite to the spec's key-level merge
// and extended with LWT handling and the rules/alerts dispatch chain.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

// RuleEngine is the subset of rules.Engine the Gateway depends on.
type RuleEngine interface {
	Evaluate(ctx context.Context, device *model.Device, payload model.State)
}

// AlertEngine is the subset of alert.Engine the Gateway depends on.
type AlertEngine interface {
	EvaluateField(device *model.Device, field string, value float64)
	EvaluateSmoke(device *model.Device, smokeOn bool)
}

// Gateway subscribes to ingress topics and dispatches decoded
// telemetry through the store, rule engine and alert engine.
type Gateway struct {
	store  *store.Store
	bus    bus.Conn
	log    *logsvc.Logger
	rules  RuleEngine
	alerts AlertEngine
	prefix string
}

func New(s *store.Store, b bus.Conn, l *logsvc.Logger, rules RuleEngine, alerts AlertEngine, topicPrefix string) *Gateway {
	return &Gateway{store: s, bus: b, log: l, rules: rules, alerts: alerts, prefix: topicPrefix}
}

// Start subscribes to <prefix>/+/state and <prefix>/+/lwt per §4.2.
func (g *Gateway) Start(ctx context.Context) error {
	if _, err := g.bus.Subscribe(ctx, g.prefix+"/+/state", 1, func(m bus.Message) {
		g.handleState(ctx, m)
	}); err != nil {
		return fmt.Errorf("gateway: subscribe state: %w", err)
	}
	if _, err := g.bus.Subscribe(ctx, g.prefix+"/+/lwt", 1, func(m bus.Message) {
		g.handleLWT(ctx, m)
	}); err != nil {
		return fmt.Errorf("gateway: subscribe lwt: %w", err)
	}
	return nil
}

// parseTopic splits topic into {prefix, device_id, suffix}, requiring
// exactly three segments and an integer device id.
func parseTopic(topic string) (deviceID uint, suffix string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return 0, "", false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return uint(id), parts[2], true
}

func (g *Gateway) handleState(ctx context.Context, m bus.Message) {
	deviceID, _, ok := parseTopic(m.Topic)
	if !ok {
		g.log.Warn(model.SourceGateway, "dropped malformed topic", model.State{"topic": m.Topic})
		return
	}

	var payload model.State
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		g.log.Warn(model.SourceGateway, "dropped unparseable state payload", model.State{"topic": m.Topic, "error": err.Error()})
		return
	}

	device, err := g.store.GetDevice(deviceID)
	if err != nil {
		g.log.Warn(model.SourceGateway, "dropped state for unknown device", model.State{"device_id": deviceID})
		return
	}

	online := true
	updated, err := g.store.MergeDeviceState(deviceID, payload, &online)
	if err != nil {
		g.log.Error(model.SourceGateway, "failed to persist device state", model.State{"device_id": deviceID, "error": err.Error()})
		return
	}

	if err := g.store.AppendDeviceData(&model.DeviceData{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}); err != nil {
		g.log.Error(model.SourceGateway, "failed to persist history point", model.State{"device_id": deviceID, "error": err.Error()})
	}

	g.log.Info(model.SourceGateway, summarize(updated.Name, payload), model.State{"device_id": deviceID})

	g.dispatch(ctx, updated, payload)
}

// summarize produces a human-readable log line from well-known keys,
// appending unknown keys verbatim, per §4.2.
func summarize(deviceName string, payload model.State) string {
	wellKnown := []string{"temp", "humi", "on", "speed", "light", "pressure"}
	var parts []string
	seen := map[string]bool{}
	for _, k := range wellKnown {
		if v, ok := payload[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			seen[k] = true
		}
	}
	for k, v := range payload {
		if !seen[k] {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return fmt.Sprintf("%s: %s", deviceName, strings.Join(parts, " "))
}

// dispatch synchronously invokes the rule and alert engines in order.
// Per-stage failures are caught and logged at WARN without blocking
// later stages or later messages (§4.2).
func (g *Gateway) dispatch(ctx context.Context, device *model.Device, payload model.State) {
	func() {
		defer g.recoverStage("SCENE_RULE")
		g.rules.Evaluate(ctx, device, payload)
	}()

	func() {
		defer g.recoverStage("EMAIL_ALERT")
		for field := range payload {
			if f, ok := payload.Float(field); ok {
				g.alerts.EvaluateField(device, field, f)
			}
		}
	}()

	if device.Type == model.DeviceSmoke {
		func() {
			defer g.recoverStage("EMAIL_ALERT")
			g.alerts.EvaluateSmoke(device, payload.Bool("on", false))
		}()
	}
}

func (g *Gateway) recoverStage(stage string) {
	if r := recover(); r != nil {
		g.log.Warn(model.SourceGateway, fmt.Sprintf("%s stage panicked", stage), model.State{"panic": fmt.Sprint(r)})
	}
}

// handleLWT applies last-will online/offline transitions. LWT does
// not trigger rules or alerts (§4.2).
func (g *Gateway) handleLWT(ctx context.Context, m bus.Message) {
	deviceID, _, ok := parseTopic(m.Topic)
	if !ok {
		g.log.Warn(model.SourceGateway, "dropped malformed lwt topic", model.State{"topic": m.Topic})
		return
	}

	online, ok := decodeLWT(m.Payload)
	if !ok {
		g.log.Warn(model.SourceGateway, "dropped unparseable lwt payload", model.State{"topic": m.Topic})
		return
	}

	if _, err := g.store.GetDevice(deviceID); err != nil {
		g.log.Warn(model.SourceGateway, "dropped lwt for unknown device", model.State{"device_id": deviceID})
		return
	}

	updated, err := g.store.MergeDeviceState(deviceID, model.State{}, &online)
	if err != nil {
		g.log.Error(model.SourceGateway, "failed to persist lwt transition", model.State{"device_id": deviceID, "error": err.Error()})
		return
	}

	if online {
		g.log.Info(model.SourceGateway, fmt.Sprintf("%s online", updated.Name), model.State{"device_id": deviceID})
	} else {
		g.log.Warn(model.SourceGateway, fmt.Sprintf("%s offline", updated.Name), model.State{"device_id": deviceID})
	}
}

// decodeLWT accepts either JSON or a bare string; case-insensitive
// equality to {"offline","0","false"} marks the device offline,
// anything else online (§4.2).
func decodeLWT(payload []byte) (online bool, ok bool) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		s = string(payload)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "offline", "0", "false":
		return false, true
	default:
		return true, true
	}
}
