package transport

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/testutil"
)

// TestSendRecvRoundTrip exercises §8's "framed send followed by framed
// receive on the same serializer recovers an equal Message."
func TestSendRecvRoundTrip(t *testing.T) {
	clientRaw, serverRaw := testutil.PipeConn(t)
	client := New(clientRaw, nil)
	server := New(serverRaw, nil)

	want := message.Message{
		Type:     message.TypeEarnings,
		Earnings: decimal.NewFromFloat(7.25),
		Round:    2,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- client.Send(want) }()

	got, err := server.Recv()
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, want.Type, got.Type)
	assert.True(t, want.Earnings.Equal(got.Earnings))
	assert.Equal(t, want.Round, got.Round)
}

func TestRecvOnCleanClose(t *testing.T) {
	clientRaw, serverRaw := testutil.PipeConn(t)
	server := New(serverRaw, nil)

	require.NoError(t, clientRaw.Close())

	_, err := server.Recv()
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestSendPingIfIdle(t *testing.T) {
	clientRaw, serverRaw := testutil.PipeConn(t)
	client := New(clientRaw, nil)
	client.SetTimings(1*time.Millisecond, time.Second)
	server := New(serverRaw, nil)

	time.Sleep(5 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- client.SendPingIfIdle() }()

	got, err := server.Recv()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, message.TypePing, got.Type)
}

func TestSendPingIfIdleSkipsWhenRecentlySent(t *testing.T) {
	clientRaw, _ := testutil.PipeConn(t)
	client := New(clientRaw, nil)
	client.SetTimings(time.Minute, time.Second)

	require.NoError(t, client.SendPingIfIdle())
}
