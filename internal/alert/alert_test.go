package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

var errSendFailed = errors.New("smtp: connection refused")

type stubTransport struct {
	sent bool
	err  error
	to   []string
	subj string
	body string
}

func (s *stubTransport) Send(from string, to, cc []string, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = true
	s.to = to
	s.subj = subject
	s.body = body
	return nil
}

func newTestEngine(t *testing.T, transport Transport) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	return NewEngine(s, logsvc.New(s), transport, "homehub@localhost"), s
}

func threshold(v float64) *float64 { return &v }

func TestAlertFiresOnNonStrictThresholdAbove(t *testing.T) {
	transport := &stubTransport{}
	e, s := newTestEngine(t, transport)

	dev := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))

	rule := &model.EmailAlertRule{
		Name: "hot", Enabled: true, TriggerDeviceID: dev.ID, TriggerField: "temp",
		TriggerValue: threshold(28), TriggerAbove: true, Recipients: []string{"a@x.com"},
	}
	require.NoError(t, s.SaveEmailAlertRule(rule))

	e.EvaluateField(dev, "temp", 28) // equal to threshold must fire (non-strict)
	require.True(t, transport.sent)
}

func TestAlertDoesNotFireBelowThreshold(t *testing.T) {
	transport := &stubTransport{}
	e, s := newTestEngine(t, transport)

	dev := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))

	rule := &model.EmailAlertRule{
		Name: "hot", Enabled: true, TriggerDeviceID: dev.ID, TriggerField: "temp",
		TriggerValue: threshold(28), TriggerAbove: true, Recipients: []string{"a@x.com"},
	}
	require.NoError(t, s.SaveEmailAlertRule(rule))

	e.EvaluateField(dev, "temp", 27.9)
	require.False(t, transport.sent)
}

func TestSmokeDefaultsThresholdWhenNull(t *testing.T) {
	transport := &stubTransport{}
	e, s := newTestEngine(t, transport)

	dev := &model.Device{Name: "detector", Type: model.DeviceSmoke, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))

	rule := &model.EmailAlertRule{
		Name: "smoke-alert", Enabled: true, TriggerDeviceID: dev.ID, TriggerField: "smoke",
		TriggerValue: nil, TriggerAbove: true, Recipients: []string{"a@x.com"},
	}
	require.NoError(t, s.SaveEmailAlertRule(rule))

	e.EvaluateSmoke(dev, true)
	require.True(t, transport.sent)
}

func TestAlertSkippedWithoutRecipients(t *testing.T) {
	transport := &stubTransport{}
	e, s := newTestEngine(t, transport)

	dev := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))
	rule := &model.EmailAlertRule{
		Name: "hot", Enabled: true, TriggerDeviceID: dev.ID, TriggerField: "temp",
		TriggerValue: threshold(28), TriggerAbove: true,
	}
	require.NoError(t, s.SaveEmailAlertRule(rule))

	e.EvaluateField(dev, "temp", 30)
	require.False(t, transport.sent)
}

func TestAlertFailureDoesNotUpdateLastTriggered(t *testing.T) {
	transport := &stubTransport{err: errSendFailed}
	e, s := newTestEngine(t, transport)

	dev := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))
	rule := &model.EmailAlertRule{
		Name: "hot", Enabled: true, TriggerDeviceID: dev.ID, TriggerField: "temp",
		TriggerValue: threshold(28), TriggerAbove: true, Recipients: []string{"a@x.com"},
	}
	require.NoError(t, s.SaveEmailAlertRule(rule))

	e.EvaluateField(dev, "temp", 30)
	require.False(t, transport.sent)

	reloaded, err := s.RulesForTrigger(dev.ID, "temp")
	require.NoError(t, err)
	require.Nil(t, reloaded[0].LastTriggeredAt)
}

func TestRenderFallsBackOnUnknownPlaceholder(t *testing.T) {
	out := render("{unknown}", "p", "d", 1, time.Now(), "DEFAULT")
	require.Equal(t, "DEFAULT", out)
}

func TestRenderSubstitutesKnownPlaceholders(t *testing.T) {
	out := render("{device_name} hit {value}", "p", "kitchen", 30.5, time.Now(), "DEFAULT")
	require.Equal(t, "kitchen hit 30.5", out)
}
