// Package bus implements the Bus Adapter (B): a process-wide pub/sub
// client wrapping Eclipse Paho, grounded directly on the teacher's
// messenger/mqtt/paho.go wrapper and the Conn contract from
// messenger/messenger.go. Two named instances are constructed from the
// same Client type per §4.1 — a subscriber used by the Telemetry
// Gateway and a publisher used by the HTTP command path — distinguished
// by stable client identifiers.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Message is a decoded inbound bus message.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
}

// Handler processes one inbound Message.
type Handler func(Message)

// Conn is the minimal contract any bus backend must satisfy. The real
// backend wraps Paho; MemConn in mem.go is an in-process test double
// grounded on the teacher's nobrokerConn.
type Conn interface {
	Connect(ctx context.Context) error
	Close()
	Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error
	Subscribe(ctx context.Context, topic string, qos byte, h Handler) (unsub func() error, err error)
	IsConnected() bool
	SetLastWill(topic string, payload []byte, retain bool, qos byte) error
}

// Config configures a Client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string

	CleanSession bool
	Keepalive    time.Duration
}

// Client is the Paho-backed Conn implementation.
type Client struct {
	opts *paho.ClientOptions
	c    paho.Client

	onConnect func()
}

// New constructs a disconnected Client from cfg. A random suffix is
// appended to an empty ClientID so subscriber and publisher instances
// never collide on the broker.
func New(cfg Config) *Client {
	id := cfg.ClientID
	if id == "" {
		id = "homehub-" + randSuffix()
	}

	keepalive := cfg.Keepalive
	if keepalive == 0 {
		keepalive = 60 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(id).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(keepalive).
		SetCleanSession(cfg.CleanSession)

	cl := &Client{opts: opts}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("bus disconnected", "source", "BUS", "error", err)
	})
	opts.OnConnect = func(_ paho.Client) {
		slog.Info("bus connected", "source", "BUS", "client_id", id)
		if cl.onConnect != nil {
			cl.onConnect()
		}
	}

	return cl
}

func randSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// ClientID returns the identifier this client will present to the
// broker, letting callers confirm two Clients were given distinct
// stable identities.
func (c *Client) ClientID() string { return c.opts.ClientID() }

// SetOnConnect registers a callback invoked on every (re)connection,
// used by internal/app to re-publish the publisher's online status.
func (c *Client) SetOnConnect(fn func()) { c.onConnect = fn }

func (c *Client) Connect(ctx context.Context) error {
	if c.c == nil {
		c.c = paho.NewClient(c.opts)
	}
	tok := c.c.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return errors.New("bus: connect timeout")
	}
	return tok.Error()
}

func (c *Client) Close() {
	if c.c != nil && c.c.IsConnected() {
		c.c.Disconnect(500)
	}
}

func (c *Client) IsConnected() bool {
	return c.c != nil && c.c.IsConnected()
}

// SetLastWill must be called before Connect — Paho applies wills only
// at connection time.
func (c *Client) SetLastWill(topic string, payload []byte, retain bool, qos byte) error {
	if c.opts == nil {
		return errors.New("bus: client not initialized")
	}
	c.opts.SetWill(topic, string(payload), qos, retain)
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if c.c == nil {
		return errors.New("bus: not connected")
	}
	tok := c.c.Publish(topic, qos, retain, payload)
	if qos > 0 {
		if !tok.WaitTimeout(5 * time.Second) {
			return errors.New("bus: publish timeout")
		}
	}
	return tok.Error()
}

func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, h Handler) (func() error, error) {
	tok := c.c.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		h(Message{
			Topic:   m.Topic(),
			Payload: m.Payload(),
			Retain:  m.Retained(),
			QoS:     m.Qos(),
		})
	})
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, errors.New("bus: subscribe timeout")
	}
	if tok.Error() != nil {
		return nil, tok.Error()
	}

	return func() error {
		ut := c.c.Unsubscribe(topic)
		if !ut.WaitTimeout(10 * time.Second) {
			return errors.New("bus: unsubscribe timeout")
		}
		return ut.Error()
	}, nil
}
