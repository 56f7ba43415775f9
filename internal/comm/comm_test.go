package comm

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exp/sessioncoordinator/internal/message"
	"github.com/exp/sessioncoordinator/internal/session"
	"github.com/exp/sessioncoordinator/internal/testutil"
	"github.com/exp/sessioncoordinator/internal/transport"
)

type recordingHandler struct {
	events chan Event
}

func (h *recordingHandler) HandleEvent(ev Event) { h.events <- ev }

// TestConnectEventPrecedesGameMessages exercises §4.3's accept-loop
// invariant: a connect event is posted before the receive worker starts,
// so no game message from a fresh socket can arrive ahead of its connect
// notification.
func TestConnectEventPrecedesGameMessages(t *testing.T) {
	h := &recordingHandler{events: make(chan Event, 8)}
	c := New(h, Config{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Serve(ctx, ln)

	rawClient, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer rawClient.Close()
	client := transport.New(rawClient, nil)

	select {
	case ev := <-h.events:
		assert.Equal(t, message.TypeConnect, ev.Msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no connect event observed")
	}

	// Drain the four clock-sync probes so the handshake completes cleanly.
	for i := 0; i < 4; i++ {
		m, err := client.Recv()
		require.NoError(t, err)
		if m.Type == message.TypeSync {
			require.NoError(t, client.Send(message.Message{Type: message.TypeSync, ClientTime: 0}))
		}
	}
}

// TestPauseBlocksGameSendNotNonGame exercises §4.3: gm sends block on the
// wire while paused; non-game sends (error, ping, reloginPrompt, ...)
// bypass the gate and are delivered immediately.
func TestPauseBlocksGameSendNotNonGame(t *testing.T) {
	h := &recordingHandler{events: make(chan Event, 8)}
	c := New(h, Config{})
	c.Pause()

	clientRaw, serverRaw := testutil.PipeConn(t)
	client := transport.New(clientRaw, nil)
	conn := session.NewConnection(transport.New(serverRaw, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.runSender(ctx, conn)

	c.Send(conn, message.Message{Type: message.TypeError, ErrorString: "still reaches the client while paused"})

	got, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, message.TypeError, got.Type)

	// A gm send, by contrast, must not arrive until Resume.
	c.Send(conn, message.Message{Type: message.TypeGameMessage, Subtype: message.GMConfirm})

	recvDone := make(chan message.Message, 1)
	go func() {
		m, err := client.Recv()
		if err == nil {
			recvDone <- m
		}
	}()

	select {
	case <-recvDone:
		t.Fatal("gm send delivered while paused")
	case <-time.After(30 * time.Millisecond):
	}

	c.Resume()

	select {
	case m := <-recvDone:
		assert.Equal(t, message.TypeGameMessage, m.Type)
	case <-time.After(time.Second):
		t.Fatal("gm send was never delivered after Resume")
	}
}
