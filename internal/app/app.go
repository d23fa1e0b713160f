// Package app wires together the store, bus, logging and engine layers
// into one runnable process. Grounded on the teacher's top-level OttO
// struct (Init/Start/Stop lifecycle), generalized from a single
// station-runner to the five-engine telemetry core.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/homehub/core/internal/alert"
	"github.com/homehub/core/internal/bus"
	"github.com/homehub/core/internal/config"
	"github.com/homehub/core/internal/energy"
	"github.com/homehub/core/internal/gateway"
	"github.com/homehub/core/internal/httpapi"
	"github.com/homehub/core/internal/logsvc"
	"github.com/homehub/core/internal/realtime"
	"github.com/homehub/core/internal/rules"
	"github.com/homehub/core/internal/store"
	"github.com/homehub/core/logging"
)

// App owns every long-lived component of the telemetry core.
type App struct {
	cfg config.Config

	Store      *store.Store
	Subscriber *bus.Client
	Publisher  *bus.Client
	Log        *logsvc.Logger
	Rules      *rules.Engine
	Energy     *energy.Engine
	Alerts     *alert.Engine
	Gateway    *gateway.Gateway
	Realtime   *realtime.Fanout
	HTTP       *httpapi.API
}

// New builds the full dependency graph but does not connect to the
// bus or start serving HTTP — call Start for that.
func New(cfg config.Config) (*App, error) {
	s, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	// Two distinct client identities per §4.1: the Gateway subscribes
	// under one, the rule engine / HTTP API publish commands under the
	// other, so broker ACLs and session state can tell them apart.
	subscriber := bus.New(bus.Config{
		Broker:       cfg.MQTT.Broker(),
		ClientID:     cfg.MQTT.ClientIDPrefix + "-gateway",
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		CleanSession: true,
		Keepalive:    cfg.MQTT.Keepalive,
	})
	publisher := bus.New(bus.Config{
		Broker:       cfg.MQTT.Broker(),
		ClientID:     cfg.MQTT.ClientIDPrefix + "-api",
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		CleanSession: true,
		Keepalive:    cfg.MQTT.Keepalive,
	})

	serverStatusTopic := cfg.MQTT.TopicPrefix + "/server/status"
	if err := publisher.SetLastWill(serverStatusTopic, []byte(`{"online":false}`), true, 1); err != nil {
		return nil, fmt.Errorf("app: set publisher last will: %w", err)
	}
	publisher.SetOnConnect(func() {
		_ = publisher.Publish(context.Background(), serverStatusTopic, []byte(`{"online":true}`), true, 1)
	})

	log := logsvc.New(s)
	ruleEngine := rules.NewEngine(s, publisher, log, cfg.MQTT.TopicPrefix)

	transport := &alert.SMTPTransport{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
	alertEngine := alert.NewEngine(s, log, transport, cfg.SMTPFrom)

	energyEngine := energy.NewEngine(s, cfg.PowerProfile, cfg.EnergyPricePerKWh)

	gw := gateway.New(s, subscriber, log, ruleEngine, alertEngine, cfg.MQTT.TopicPrefix)

	tickets := realtime.NewTicketIssuer([]byte(cfg.RealtimeStreamSecret), cfg.RealtimeStreamTokenTTL)
	fanout := realtime.NewFanout(s, subscriber, tickets)

	logSvc, err := logging.NewService(logging.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("app: init logging service: %w", err)
	}

	api := httpapi.New(s, publisher, energyEngine, fanout, logSvc, cfg.MQTT.TopicPrefix)

	return &App{
		cfg:        cfg,
		Store:      s,
		Subscriber: subscriber,
		Publisher:  publisher,
		Log:        log,
		Rules:      ruleEngine,
		Energy:     energyEngine,
		Alerts:     alertEngine,
		Gateway:    gw,
		Realtime:   fanout,
		HTTP:       api,
	}, nil
}

// Start connects both bus clients and subscribes the Telemetry
// Gateway. It does not block; callers run an http.Server against
// a.HTTP separately.
func (a *App) Start(ctx context.Context) error {
	if err := a.Subscriber.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect subscriber bus: %w", err)
	}
	if err := a.Publisher.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect publisher bus: %w", err)
	}
	if err := a.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("app: start gateway: %w", err)
	}
	return nil
}

// Stop disconnects both bus clients. Safe to call even if Start
// failed partway.
func (a *App) Stop() {
	a.Subscriber.Close()
	a.Publisher.Close()
}

// Handler returns the process's top-level HTTP handler.
func (a *App) Handler() http.Handler {
	return a.HTTP
}
