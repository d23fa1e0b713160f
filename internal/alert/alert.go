// Package alert implements the Email Alert Engine (G): a direct port
// of logs_app/email_alert.py's threshold-match-and-notify algorithm.
package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

// Transport sends one rendered email. net/smtp is the production
// implementation (see SMTPTransport in smtp.go); tests inject a stub.
type Transport interface {
	Send(from string, to, cc []string, subject, body string) error
}

const defaultSubject = "HomeHub alert"
const defaultBody = "An alert condition was detected."

const smokeDefaultThreshold = 1.0

// Engine evaluates email alert rules for a single (device, field,
// value) telemetry observation.
type Engine struct {
	store     *store.Store
	log       *logsvc.Logger
	transport Transport
	from      string
	now       func() time.Time
}

func NewEngine(s *store.Store, l *logsvc.Logger, t Transport, from string) *Engine {
	return &Engine{store: s, log: l, transport: t, from: from, now: time.Now}
}

// EvaluateField checks every enabled rule matching (device, field) and
// sends mail for those whose threshold condition is met. value must be
// numeric or boolean-like (smoke uses 1.0/0.0).
func (e *Engine) EvaluateField(device *model.Device, field string, value float64) {
	rules, err := e.store.RulesForTrigger(device.ID, field)
	if err != nil {
		e.log.Warn(model.SourceAlert, "failed to load alert rules", model.State{"error": err.Error(), "device_id": device.ID})
		return
	}
	for i := range rules {
		e.evaluateRule(&rules[i], device, value)
	}
}

// EvaluateSmoke is the boolean-like smoke-alarm alert invoked whenever
// device.Type == SMOKE, per §4.2 step (iii).
func (e *Engine) EvaluateSmoke(device *model.Device, smokeOn bool) {
	v := 0.0
	if smokeOn {
		v = 1.0
	}
	e.EvaluateField(device, "smoke", v)
}

func (e *Engine) evaluateRule(rule *model.EmailAlertRule, device *model.Device, value float64) {
	threshold := rule.TriggerValue
	if threshold == nil {
		if rule.TriggerField == "smoke" {
			t := smokeDefaultThreshold
			threshold = &t
		} else {
			// no threshold configured for a non-smoke field: skip silently,
			// matching the original's "skip if threshold null" rule.
			return
		}
	}

	var triggered bool
	if rule.TriggerAbove {
		triggered = value >= *threshold
	} else {
		triggered = value <= *threshold
	}
	if !triggered {
		return
	}

	if len(rule.Recipients) == 0 {
		e.log.Warn(model.SourceAlert, fmt.Sprintf("alert rule %q has no recipients", rule.Name), model.State{"rule_id": rule.ID})
		return
	}

	now := e.now()
	subject := render(rule.SubjectTemplate, rule.Preset, device.Name, value, now, defaultSubject)
	body := render(rule.BodyTemplate, rule.Preset, device.Name, value, now, defaultBody)

	if err := e.transport.Send(e.from, rule.Recipients, rule.CC, subject, body); err != nil {
		e.log.Error(model.SourceAlert, fmt.Sprintf("failed to send alert %q", rule.Name), model.State{
			"rule_id": rule.ID, "error": err.Error(),
		})
		return
	}

	rule.LastTriggeredAt = &now
	if err := e.store.SaveEmailAlertRule(rule); err != nil {
		e.log.Error(model.SourceAlert, "failed to persist alert trigger time", model.State{"rule_id": rule.ID, "error": err.Error()})
		return
	}
	e.log.Info(model.SourceAlert, fmt.Sprintf("alert %q sent", rule.Name), model.State{
		"rule_id": rule.ID, "device_id": device.ID, "value": value,
	})
}

// render substitutes {preset}, {device_name}, {value}, {time} in tmpl;
// an empty template or one with an unknown placeholder falls back to
// def, per §4.6 and §9's Design Note on template rendering.
func render(tmpl, preset, deviceName string, value float64, at time.Time, def string) string {
	if strings.TrimSpace(tmpl) == "" {
		return def
	}
	replacer := strings.NewReplacer(
		"{preset}", preset,
		"{device_name}", deviceName,
		"{value}", strconv.FormatFloat(value, 'f', -1, 64),
		"{time}", at.Format(time.RFC3339),
	)
	out := replacer.Replace(tmpl)
	if strings.Contains(out, "{") && strings.Contains(out, "}") {
		// an unrecognized placeholder survived substitution
		return def
	}
	return out
}
