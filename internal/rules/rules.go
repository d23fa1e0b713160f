// Package rules implements the Scene Rule Engine (D): predicate
// evaluation against a fresh telemetry report, debounced actuator
// dispatch, and conflict validation at rule save time. The trigger
// predicate is expressed as a tagged-variant TriggerKind per
// SPEC_FULL.md §9's Design Notes, rather than the dynamic-dict
// evaluation the original Python source uses.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

// booleanLikeKeys is the fixed set of state keys TIME_STATE predicates
// treat as boolean when comparing trigger_state_value against a
// device's current_state. SPEC_FULL.md Open Question (iii): kept fixed,
// not made configurable.
var booleanLikeKeys = map[string]bool{
	"on": true, "motion": true, "pir": true, "value": true,
	"detected": true, "alarm": true, "smoke": true,
}

// Engine evaluates scene rules against telemetry reports.
type Engine struct {
	store  *store.Store
	bus    bus.Conn
	log    *logsvc.Logger
	prefix string
	now    func() time.Time
}

func NewEngine(s *store.Store, b bus.Conn, l *logsvc.Logger, topicPrefix string) *Engine {
	return &Engine{store: s, bus: b, log: l, prefix: topicPrefix, now: time.Now}
}

// Evaluate runs every enabled rule whose trigger_device is device.ID
// against the incoming report payload, in selection order. Errors from an
// individual rule are logged and do not stop evaluation of the rest.
func (e *Engine) Evaluate(ctx context.Context, device *model.Device, payload model.State) {
	candidates, err := e.store.RulesForTriggerDevice(device.ID)
	if err != nil {
		e.log.Warn(model.SourceSceneRule, "failed to load candidate rules", model.State{"error": err.Error(), "device_id": device.ID})
		return
	}
	for i := range candidates {
		rule := &candidates[i]
		if err := e.evaluateOne(ctx, rule, device, payload); err != nil {
			e.log.Warn(model.SourceSceneRule, "rule evaluation failed", model.State{"error": err.Error(), "rule_id": rule.ID})
		}
	}
}

func (e *Engine) evaluateOne(ctx context.Context, rule *model.SceneRule, device *model.Device, payload model.State) error {
	now := e.now()

	if rule.LastTriggeredAt != nil {
		if now.Sub(*rule.LastTriggeredAt) < time.Duration(rule.DebounceSeconds)*time.Second {
			return nil
		}
	}

	fired, err := e.fires(rule, device, payload, now)
	if err != nil || !fired {
		return err
	}

	actionDevice, err := e.store.GetDevice(rule.ActionDeviceID)
	if err != nil {
		return fmt.Errorf("load action device: %w", err)
	}
	if !actionDevice.IsOnline {
		// Skipped silently: does not consume the debounce window, no log.
		return nil
	}

	patch, payloadOut, err := computeAction(rule.ActionType, rule.ActionValue, actionDevice.CurrentState)
	if err != nil {
		return err
	}

	updated, err := e.store.MergeDeviceState(actionDevice.ID, patch, nil)
	if err != nil {
		return fmt.Errorf("persist action state: %w", err)
	}

	b, err := json.Marshal(payloadOut)
	if err != nil {
		return fmt.Errorf("marshal command payload: %w", err)
	}
	topic := fmt.Sprintf("%s/%d/cmd", e.prefix, actionDevice.ID)
	if err := e.bus.Publish(ctx, topic, b, false, 1); err != nil {
		e.log.Error(model.SourceSceneRule, "failed to publish action command", model.State{
			"error": err.Error(), "rule_id": rule.ID, "action_device_id": actionDevice.ID,
		})
	}

	rule.LastTriggeredAt = &now
	if err := e.store.SaveSceneRule(rule); err != nil {
		return fmt.Errorf("persist rule trigger time: %w", err)
	}

	e.log.Info(model.SourceSceneRule, fmt.Sprintf("rule %q fired", rule.Name), model.State{
		"rule_id":           rule.ID,
		"trigger_device_id": rule.TriggerDeviceID,
		"action_device_id":  actionDevice.ID,
		"action_payload":    payloadOut,
	})
	_ = updated
	return nil
}

// fires evaluates the rule's trigger predicate without side effects.
func (e *Engine) fires(rule *model.SceneRule, device *model.Device, payload model.State, now time.Time) (bool, error) {
	switch rule.TriggerType {
	case model.TriggerThresholdAbove, model.TriggerThresholdBelow:
		v, ok := payload.Float(rule.TriggerField)
		if !ok {
			return false, nil
		}
		threshold := rule.TriggerValue.Scalar
		if threshold == nil {
			return false, fmt.Errorf("rule %d: threshold trigger has no scalar trigger_value", rule.ID)
		}
		if rule.TriggerType == model.TriggerThresholdAbove {
			return v > *threshold, nil
		}
		return v < *threshold, nil

	case model.TriggerRangeOut:
		v, ok := payload.Float(rule.TriggerField)
		if !ok {
			return false, nil
		}
		if rule.TriggerValue.Min == nil || rule.TriggerValue.Max == nil {
			return false, fmt.Errorf("rule %d: RANGE_OUT trigger missing min/max", rule.ID)
		}
		return v < *rule.TriggerValue.Min || v > *rule.TriggerValue.Max, nil

	case model.TriggerTimeState:
		if !timeInWindow(now, rule.TriggerTimeStart, rule.TriggerTimeEnd) {
			return false, nil
		}
		if rule.TriggerStateDeviceID == nil || len(rule.TriggerStateValue) == 0 {
			return true, nil
		}
		stateDevice, err := e.store.GetDevice(*rule.TriggerStateDeviceID)
		if err != nil {
			return false, fmt.Errorf("load trigger state device: %w", err)
		}
		return stateMatches(rule.TriggerStateValue, stateDevice.CurrentState), nil

	default:
		return false, fmt.Errorf("rule %d: unknown trigger_type %q", rule.ID, rule.TriggerType)
	}
}

// timeInWindow reports whether now's local time-of-day lies within
// [start, end], wrapping across midnight when start > end. Nil bounds
// mean "no time restriction" (always true).
func timeInWindow(now time.Time, start, end *string) bool {
	if start == nil || end == nil {
		return true
	}
	s, errS := time.Parse("15:04", *start)
	en, errE := time.Parse("15:04", *end)
	if errS != nil || errE != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	sMin := s.Hour()*60 + s.Minute()
	eMin := en.Hour()*60 + en.Minute()
	if sMin <= eMin {
		return cur >= sMin && cur <= eMin
	}
	return cur >= sMin || cur <= eMin
}

func stateMatches(want model.State, have model.State) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok {
			return false
		}
		if booleanLikeKeys[k] {
			wb, wok := v.(bool)
			hb, hok := hv.(bool)
			if wok && hok {
				if wb != hb {
					return false
				}
				continue
			}
		}
		if fmt.Sprint(v) != fmt.Sprint(hv) {
			return false
		}
	}
	return true
}

// ComputeActionForHTTP exposes the same action table to the direct
// actuator endpoints (toggle/set_temp/set_fan_speed), which carry a
// bare optional float rather than a stored TriggerValue.
func ComputeActionForHTTP(kind model.ActionKind, value *float64, current model.State) (model.State, model.State, error) {
	return computeAction(kind, model.TriggerValue{Scalar: value}, current)
}

// computeAction returns the current_state patch and the cmd payload
// to publish for the given action, per the §4.3 action table.
func computeAction(kind model.ActionKind, value model.TriggerValue, current model.State) (model.State, model.State, error) {
	switch kind {
	case model.ActionToggle:
		prev := current.Bool("on", false)
		next := !prev
		return model.State{"on": next}, model.State{"on": next}, nil
	case model.ActionTurnOn:
		return model.State{"on": true}, model.State{"on": true}, nil
	case model.ActionTurnOff:
		return model.State{"on": false}, model.State{"on": false}, nil
	case model.ActionSetTemp:
		if value.Scalar == nil {
			return nil, nil, fmt.Errorf("SET_TEMP action missing scalar action_value")
		}
		return model.State{"temp": *value.Scalar, "on": true}, model.State{"temp": *value.Scalar, "on": true}, nil
	case model.ActionSetFanSpeed:
		if value.Scalar == nil {
			return nil, nil, fmt.Errorf("SET_FAN_SPEED action missing scalar action_value")
		}
		return model.State{"speed": int(*value.Scalar), "on": true}, model.State{"speed": int(*value.Scalar), "on": true}, nil
	default:
		return nil, nil, fmt.Errorf("unknown action_type %q", kind)
	}
}
