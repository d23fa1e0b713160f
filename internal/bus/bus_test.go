package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUsesProvidedClientID(t *testing.T) {
	c := New(Config{Broker: "tcp://localhost:1883", ClientID: "homehub-gateway"})
	require.Equal(t, "homehub-gateway", c.ClientID())
}

func TestNewGeneratesDistinctClientIDsWhenUnset(t *testing.T) {
	a := New(Config{Broker: "tcp://localhost:1883"})
	b := New(Config{Broker: "tcp://localhost:1883"})
	require.NotEqual(t, a.ClientID(), b.ClientID())
}

func TestSetLastWillRequiresInitializedOptions(t *testing.T) {
	c := New(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, c.SetLastWill("homehub/server/status", []byte(`{"online":false}`), true, 1))
}
