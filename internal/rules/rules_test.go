package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *bus.MemConn) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	conn := bus.NewMemConn()
	require.NoError(t, conn.Connect(context.Background()))
	e := NewEngine(s, conn, logsvc.New(s), "home")
	return e, s, conn
}

func scalar(v float64) model.TriggerValue { return model.TriggerValue{Scalar: &v} }

func TestRuleSkippedWhenActionDeviceOffline(t *testing.T) {
	e, s, conn := newTestEngine(t)

	trigger := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, IsOnline: true, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(trigger))
	action := &model.Device{Name: "ac", Type: model.DeviceACSwitch, IsOnline: false, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(action))

	rule := &model.SceneRule{
		OwnerID: 1, Name: "hot", Enabled: true,
		TriggerType: model.TriggerThresholdAbove, TriggerDeviceID: trigger.ID, TriggerField: "temp",
		TriggerValue: scalar(28),
		ActionDeviceID: action.ID, ActionType: model.ActionTurnOn,
		DebounceSeconds: 60,
	}
	require.NoError(t, s.SaveSceneRule(rule))

	e.Evaluate(context.Background(), trigger, model.State{"temp": 30.5})

	got, err := s.GetDevice(action.ID)
	require.NoError(t, err)
	require.Nil(t, got.CurrentState["on"])

	reloaded, err := s.GetSceneRule(rule.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.LastTriggeredAt)
	require.Empty(t, conn.Published())
}

func TestRuleFiresWhenActionDeviceOnline(t *testing.T) {
	e, s, conn := newTestEngine(t)

	trigger := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, IsOnline: true, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(trigger))
	action := &model.Device{Name: "ac", Type: model.DeviceACSwitch, IsOnline: true, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(action))

	rule := &model.SceneRule{
		OwnerID: 1, Name: "hot", Enabled: true,
		TriggerType: model.TriggerThresholdAbove, TriggerDeviceID: trigger.ID, TriggerField: "temp",
		TriggerValue: scalar(28),
		ActionDeviceID: action.ID, ActionType: model.ActionTurnOn,
		DebounceSeconds: 60,
	}
	require.NoError(t, s.SaveSceneRule(rule))

	e.Evaluate(context.Background(), trigger, model.State{"temp": 30.5})

	got, err := s.GetDevice(action.ID)
	require.NoError(t, err)
	require.Equal(t, true, got.CurrentState["on"])

	reloaded, err := s.GetSceneRule(rule.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastTriggeredAt)
	require.Len(t, conn.Published(), 1)
	require.Equal(t, fmt.Sprintf("home/%d/cmd", action.ID), conn.Published()[0].Topic)
}

func TestDebounceSuppressesRefire(t *testing.T) {
	e, s, _ := newTestEngine(t)

	trigger := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, IsOnline: true, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(trigger))
	action := &model.Device{Name: "ac", Type: model.DeviceACSwitch, IsOnline: true, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(action))

	rule := &model.SceneRule{
		OwnerID: 1, Name: "hot", Enabled: true,
		TriggerType: model.TriggerThresholdAbove, TriggerDeviceID: trigger.ID, TriggerField: "temp",
		TriggerValue: scalar(28),
		ActionDeviceID: action.ID, ActionType: model.ActionTurnOn,
		DebounceSeconds: 300,
	}
	require.NoError(t, s.SaveSceneRule(rule))

	e.Evaluate(context.Background(), trigger, model.State{"temp": 30.5})
	first, err := s.GetSceneRule(rule.ID)
	require.NoError(t, err)
	require.NotNil(t, first.LastTriggeredAt)

	e.Evaluate(context.Background(), trigger, model.State{"temp": 31.5})
	second, err := s.GetSceneRule(rule.ID)
	require.NoError(t, err)
	require.Equal(t, first.LastTriggeredAt.Unix(), second.LastTriggeredAt.Unix())
}

func TestTimeInWindowWrapsMidnight(t *testing.T) {
	start, end := "22:00", "06:00"
	night := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	day := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, timeInWindow(night, &start, &end))
	require.False(t, timeInWindow(day, &start, &end))
}

