package driver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exp/sessioncoordinator/internal/comm"
	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
	"github.com/exp/sessioncoordinator/internal/transport"
)

// testHarness wires a real Communicator over loopback TCP plus a Session
// Table, letting the Driver's own onConnect allocate each dialed socket to
// the next seat, so AskAll/TellAll can be exercised against real sockets
// without reimplementing the login handshake.
type testHarness struct {
	d       *Driver
	clients []*transport.Conn
}

func newTestHarness(t *testing.T, n int) *testHarness {
	t.Helper()

	table := session.NewTable(n)
	d := &Driver{}
	c := comm.New(d, comm.Config{LoginTimeout: time.Minute})
	*d = *New(table, c, stubController{}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Serve(ctx, ln)

	h := &testHarness{d: d}
	for i := 0; i < n; i++ {
		raw, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { raw.Close() })
		client := transport.New(raw, nil)

		// loginPrompt and the four clock-sync probes arrive in no fixed
		// relative order (separate goroutines per §4.3); answer every sync
		// probe seen and ignore everything else until all four land.
		synced := 0
		for iter := 0; iter < 12 && synced < 4; iter++ {
			m, err := client.Recv()
			require.NoError(t, err)
			if m.Type == message.TypeSync {
				require.NoError(t, client.Send(message.Message{Type: message.TypeSync, ClientTime: 0}))
				synced++
			}
		}
		require.Equal(t, 4, synced)

		h.clients = append(h.clients, client)
	}

	require.Eventually(t, func() bool {
		bound := 0
		table.Each(func(i int, s *session.ClientSession) {
			if s.Connection != nil {
				bound++
			}
		})
		return bound == n
	}, time.Second, time.Millisecond)

	return h
}

func (h *testHarness) sendGM(t *testing.T, seat int, subtype message.GMSubtype, gm map[string]any) {
	t.Helper()
	require.NoError(t, h.clients[seat].Send(message.Message{Type: message.TypeGameMessage, Subtype: subtype, GM: gm}))
}
