package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/config"
	"github.com/homehub/core/internal/energy"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/realtime"
	"github.com/homehub/core/internal/store"
	"github.com/homehub/core/logging"
)

func newTestAPI(t *testing.T) (*API, *store.Store, *bus.MemConn) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	conn := bus.NewMemConn()
	require.NoError(t, conn.Connect(context.Background()))

	e := energy.NewEngine(s, config.DefaultPowerProfile(), 0.15)
	issuer := realtime.NewTicketIssuer([]byte("secret"), 5*time.Second)
	f := realtime.NewFanout(s, conn, issuer)

	logSvc, err := logging.NewService(logging.DefaultConfig())
	require.NoError(t, err)

	return New(s, conn, e, f, logSvc, "home"), s, conn
}

func TestBusStatusReportsConnection(t *testing.T) {
	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/bus/status", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"mqtt_connected":true`))
}

func TestDeviceToggleFlipsOnFlag(t *testing.T) {
	api, s, _ := newTestAPI(t)

	dev := &model.Device{Name: "lamp", Type: model.DeviceLampSwitch, IsOnline: true, CurrentState: model.State{"on": false}}
	require.NoError(t, s.SaveDevice(dev))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/devices/%d/toggle", dev.ID), nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	updated, err := s.GetDevice(dev.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentState.Bool("on", false))
}

func TestDeviceActionPublishesOnConfiguredTopicPrefix(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	conn := bus.NewMemConn()
	require.NoError(t, conn.Connect(context.Background()))

	e := energy.NewEngine(s, config.DefaultPowerProfile(), 0.15)
	issuer := realtime.NewTicketIssuer([]byte("secret"), 5*time.Second)
	f := realtime.NewFanout(s, conn, issuer)
	logSvc, err := logging.NewService(logging.DefaultConfig())
	require.NoError(t, err)

	api := New(s, conn, e, f, logSvc, "site42")

	dev := &model.Device{Name: "lamp", Type: model.DeviceLampSwitch, CurrentState: model.State{"on": false}}
	require.NoError(t, s.SaveDevice(dev))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/devices/%d/toggle", dev.ID), nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	published := conn.Published()
	require.Len(t, published, 1)
	require.Equal(t, fmt.Sprintf("site42/%d/cmd", dev.ID), published[0].Topic)
}

func TestDeviceToggleRejectsGet(t *testing.T) {
	api, s, _ := newTestAPI(t)

	dev := &model.Device{Name: "lamp", Type: model.DeviceLampSwitch, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/devices/%d/toggle", dev.ID), nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEnergyAnalysisDefaultsToMonthly(t *testing.T) {
	api, s, _ := newTestAPI(t)

	dev := &model.Device{Name: "ac", Type: model.DeviceACSwitch, CurrentState: model.State{"on": false}}
	require.NoError(t, s.SaveDevice(dev))

	req := httptest.NewRequest(http.MethodGet, "/energy/analysis", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "projected_energy_kwh"))
}

func TestEnergyAnalysisRejectsBadDeviceIDs(t *testing.T) {
	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/energy/analysis?device_ids=abc", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceHistoryRejectsUnsupportedRange(t *testing.T) {
	api, s, _ := newTestAPI(t)

	dev := &model.Device{Name: "sensor", Type: model.DeviceTempHumi, CurrentState: model.State{}}
	require.NoError(t, s.SaveDevice(dev))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/devices/%d/history?range=99y", dev.ID), nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoggingConfigIsReadable(t *testing.T) {
	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/logging/config", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"level"`))
}

func TestStreamTokenIssuesToken(t *testing.T) {
	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/realtime/stream-token", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "stream_token"))
}
