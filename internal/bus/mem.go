package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemConn is an in-process Conn implementation with no real broker,
// grounded on the teacher's nobrokerConn (messenger/messenger.go):
// publishes are routed directly to matching local subscribers. Used by
// unit tests for the Gateway, Rule Engine and httpapi command path so
// they exercise the same Conn contract the Paho-backed Client does,
// without a network dependency.
type MemConn struct {
	mu          sync.Mutex
	connected   bool
	subs        map[string]Handler
	published   []Message
	lastWill    *Message
}

// NewMemConn returns a disconnected MemConn.
func NewMemConn() *MemConn {
	return &MemConn{subs: make(map[string]Handler)}
}

func (m *MemConn) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MemConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MemConn) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MemConn) SetLastWill(topic string, payload []byte, retain bool, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWill = &Message{Topic: topic, Payload: payload, Retain: retain, QoS: qos}
	return nil
}

// Disconnect simulates an ungraceful drop: marks the connection closed
// and delivers the registered last-will to any subscriber matching its
// topic, mirroring broker-side LWT publication.
func (m *MemConn) Disconnect() {
	m.mu.Lock()
	m.connected = false
	will := m.lastWill
	subs := m.subs
	m.mu.Unlock()

	if will == nil {
		return
	}
	for pattern, h := range subs {
		if topicMatches(pattern, will.Topic) {
			h(*will)
		}
	}
}

func (m *MemConn) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return fmt.Errorf("bus: not connected")
	}
	m.published = append(m.published, Message{Topic: topic, Payload: payload, Retain: retain, QoS: qos})
	subs := m.subs
	m.mu.Unlock()

	for pattern, h := range subs {
		if topicMatches(pattern, topic) {
			h(Message{Topic: topic, Payload: payload, Retain: retain, QoS: qos})
		}
	}
	return nil
}

func (m *MemConn) Subscribe(ctx context.Context, topic string, qos byte, h Handler) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = h
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, topic)
		return nil
	}, nil
}

// Published returns every message handed to Publish, in order, for
// test assertions.
func (m *MemConn) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.published))
	copy(out, m.published)
	return out
}

// topicMatches implements MQTT's single-level "+" wildcard, sufficient
// for the <prefix>/+/state and <prefix>/+/lwt subscription patterns
// this module actually uses.
func topicMatches(pattern, topic string) bool {
	pp := splitTopic(pattern)
	tp := splitTopic(topic)
	if len(pp) != len(tp) {
		return false
	}
	for i, seg := range pp {
		if seg == "+" {
			continue
		}
		if seg != tp[i] {
			return false
		}
	}
	return true
}

func splitTopic(t string) []string {
	var out []string
	start := 0
	for i := 0; i < len(t); i++ {
		if t[i] == '/' {
			out = append(out, t[start:i])
			start = i + 1
		}
	}
	out = append(out, t[start:])
	return out
}
