// Package model defines the persisted entities of the telemetry and
// automation core: devices, their history, system logs, scene rules and
// email alert rules.
package model

import (
	"encoding/json"
	"time"
)

// DeviceType enumerates the known device classes. Unknown types are
// rejected at the store boundary rather than silently accepted.
type DeviceType string

const (
	DeviceTempHumi    DeviceType = "TEMP_HUMI"
	DeviceLight       DeviceType = "LIGHT"
	DevicePressure    DeviceType = "PRESSURE"
	DeviceLampSwitch  DeviceType = "LAMP_SWITCH"
	DeviceACSwitch    DeviceType = "AC_SWITCH"
	DevicePIR         DeviceType = "PIR"
	DeviceFanSwitch   DeviceType = "FAN_SWITCH"
	DeviceSmoke       DeviceType = "SMOKE"
)

// RuntimeTrackableTypes are the device types for which the Energy Engine
// accumulates runtime hours in addition to energy.
var RuntimeTrackableTypes = map[DeviceType]bool{
	DeviceLampSwitch: true,
	DeviceFanSwitch:  true,
	DeviceACSwitch:   true,
}

// State is an open mapping of string keys to JSON scalars, used for
// Device.CurrentState and DeviceData.Data. It is never nil on a
// persisted Device; absent state is an empty State, not a null column.
type State map[string]any

// Bool returns the boolean interpretation of key k, defaulting to def
// when the key is absent or not boolean-shaped.
func (s State) Bool(k string, def bool) bool {
	v, ok := s[k]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	}
	return def
}

// Float returns the numeric interpretation of key k and whether it was
// present and numeric. JSON numbers decode as float64.
func (s State) Float(k string) (float64, bool) {
	v, ok := s[k]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Merge overwrites keys of s with keys of patch and returns the result.
// This is a key-level overwrite, never a deep merge, per the Telemetry
// Gateway's state-merge contract.
func (s State) Merge(patch State) State {
	out := make(State, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Device is the authoritative record of one IoT device's identity and
// current reported state.
type Device struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	Name         string     `gorm:"index;not null" json:"name"`
	Type         DeviceType `gorm:"not null" json:"type"`
	Location     string     `json:"location"`
	IsOnline     bool       `gorm:"not null;default:false" json:"is_online"`
	IsPublic     bool       `gorm:"not null;default:false" json:"is_public"`
	OwnerID      *uint      `gorm:"index" json:"owner_id,omitempty"`
	CurrentState State      `gorm:"serializer:json;not null" json:"current_state"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the device has been heard from within
// window of now. This is a derived liveness hint distinct from the
// authoritative IsOnline flag (which only LWT/state messages flip) —
// see SPEC_FULL.md Supplemented Feature 1.
func (d *Device) IsActive(now time.Time, window time.Duration) bool {
	return now.Sub(d.UpdatedAt) <= window
}

// DeviceData is one history point for a device.
type DeviceData struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	DeviceID  uint       `gorm:"index;not null" json:"device_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Data      State     `gorm:"serializer:json;not null" json:"data"`
}

// LogLevel enumerates SystemLog severities.
type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Source taxonomy for SystemLog rows, matching the subsystem that wrote
// the entry.
const (
	SourceGateway  = "MQTT_GATEWAY"
	SourceSceneRule = "SCENE_RULE"
	SourceAlert    = "EMAIL_ALERT"
	SourceEnergy   = "ENERGY"
	SourceRealtime = "REALTIME"
	SourceBus      = "BUS"
)

// SystemLog is an append-only audit/diagnostic row. The monotonically
// increasing ID is load-bearing: the Realtime Fan-out resumes tailing
// from the last ID it has emitted.
type SystemLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Level     LogLevel  `gorm:"not null" json:"level"`
	Source    string    `gorm:"index;not null" json:"source"`
	Message   string    `gorm:"not null" json:"message"`
	Data      State     `gorm:"serializer:json" json:"data,omitempty"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TriggerKind enumerates the Scene Rule Engine's predicate shapes.
type TriggerKind string

const (
	TriggerThresholdAbove TriggerKind = "THRESHOLD_ABOVE"
	TriggerThresholdBelow TriggerKind = "THRESHOLD_BELOW"
	TriggerRangeOut       TriggerKind = "RANGE_OUT"
	TriggerTimeState      TriggerKind = "TIME_STATE"
)

// ActionKind enumerates the Scene Rule Engine's actuator actions.
type ActionKind string

const (
	ActionToggle       ActionKind = "TOGGLE"
	ActionTurnOn       ActionKind = "TURN_ON"
	ActionTurnOff      ActionKind = "TURN_OFF"
	ActionSetTemp      ActionKind = "SET_TEMP"
	ActionSetFanSpeed  ActionKind = "SET_FAN_SPEED"
)

// TriggerValue is the polymorphic trigger_value column: a bare scalar,
// a {min,max} range, or absent (TIME_STATE rules carry no trigger_value).
// All three wire shapes from the original dynamic-dict source must be
// accepted on read (SPEC_FULL.md §9's tagged-variant treatment).
type TriggerValue struct {
	Scalar *float64 `json:"value,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// UnmarshalJSON accepts a bare number, a {min,max} object, or a
// {value:…} object.
func (t *TriggerValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = TriggerValue{}
		return nil
	}
	var num float64
	if err := json.Unmarshal(b, &num); err == nil {
		t.Scalar = &num
		return nil
	}
	var obj struct {
		Value *float64 `json:"value"`
		Min   *float64 `json:"min"`
		Max   *float64 `json:"max"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	t.Scalar = obj.Value
	t.Min = obj.Min
	t.Max = obj.Max
	return nil
}

func (t TriggerValue) MarshalJSON() ([]byte, error) {
	if t.Min != nil || t.Max != nil {
		return json.Marshal(struct {
			Min *float64 `json:"min,omitempty"`
			Max *float64 `json:"max,omitempty"`
		}{t.Min, t.Max})
	}
	if t.Scalar != nil {
		return json.Marshal(*t.Scalar)
	}
	return []byte("null"), nil
}

// SceneRule is a user-authored automation rule.
type SceneRule struct {
	ID       uint  `gorm:"primarykey" json:"id"`
	OwnerID  uint  `gorm:"index;not null" json:"owner_id"`
	Name     string `gorm:"not null" json:"name"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`

	TriggerType   TriggerKind  `gorm:"not null" json:"trigger_type"`
	TriggerDeviceID uint       `gorm:"index;not null" json:"trigger_device_id"`
	TriggerField  string       `json:"trigger_field"`
	TriggerValue  TriggerValue `gorm:"serializer:json" json:"trigger_value"`

	TriggerTimeStart *string `json:"trigger_time_start,omitempty"` // "HH:MM"
	TriggerTimeEnd   *string `json:"trigger_time_end,omitempty"`

	TriggerStateDeviceID *uint `gorm:"index" json:"trigger_state_device_id,omitempty"`
	TriggerStateValue    State `gorm:"serializer:json" json:"trigger_state_value,omitempty"`

	ActionDeviceID uint       `gorm:"index;not null" json:"action_device_id"`
	ActionType     ActionKind `gorm:"not null" json:"action_type"`
	ActionValue    TriggerValue `gorm:"serializer:json" json:"action_value"`

	DebounceSeconds int        `gorm:"not null;default:60" json:"debounce_seconds"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailAlertRule is a threshold-driven notification rule. Field set is
// designed from spec.md §3 directly (the Python model file itself was
// not retrieved); see DESIGN.md.
type EmailAlertRule struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Enabled bool   `gorm:"not null;default:true" json:"enabled"`
	Preset  string `json:"preset"`

	TriggerDeviceID uint    `gorm:"index;not null" json:"trigger_device_id"`
	TriggerField    string  `gorm:"not null" json:"trigger_field"`
	TriggerValue    *float64 `json:"trigger_value,omitempty"`
	TriggerAbove    bool    `gorm:"not null;default:true" json:"trigger_above"`

	Recipients []string `gorm:"serializer:json" json:"recipients"`
	CC         []string `gorm:"serializer:json" json:"cc"`

	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
