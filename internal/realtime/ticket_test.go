package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTicketConsumedOnce(t *testing.T) {
	issuer := NewTicketIssuer([]byte("secret"), 5*time.Second)
	ticket, err := issuer.Issue(7)
	require.NoError(t, err)

	uid, err := issuer.Consume(ticket.Token)
	require.NoError(t, err)
	require.Equal(t, uint(7), uid)

	_, err = issuer.Consume(ticket.Token)
	require.Error(t, err)
}

func TestTicketExpires(t *testing.T) {
	now := time.Now()
	issuer := NewTicketIssuer([]byte("secret"), 1*time.Second)
	issuer.now = func() time.Time { return now }

	ticket, err := issuer.Issue(1)
	require.NoError(t, err)

	issuer.now = func() time.Time { return now.Add(2 * time.Second) }
	_, err = issuer.Consume(ticket.Token)
	require.Error(t, err)
}

func TestTicketRejectsTamperedSignature(t *testing.T) {
	issuer := NewTicketIssuer([]byte("secret"), 5*time.Second)
	ticket, err := issuer.Issue(1)
	require.NoError(t, err)

	tampered := ticket.Token + "x"
	_, err = issuer.Consume(tampered)
	require.Error(t, err)
}
