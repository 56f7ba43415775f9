// Package testutil provides the in-memory net.Conn fake used across this
// module's transport/communicator tests, adapted from the teacher's
// net.Pipe-based PipeConn helper (internal/testutil/netutil.go) to this
// module's own domain.
package testutil

import (
	"net"
	"testing"
)

// PipeConn returns a connected client/server net.Conn pair backed by
// net.Pipe, closed automatically at test cleanup.
func PipeConn(t testing.TB) (client, server net.Conn) {
	t.Helper()

	server, client = net.Pipe()

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return client, server
}

// FakeAddr is a minimal net.Addr for tests that need a RemoteAddr without
// a real socket.
type FakeAddr struct {
	NetworkName string
	AddrString  string
}

func (f FakeAddr) Network() string { return f.NetworkName }
func (f FakeAddr) String() string  { return f.AddrString }

// TCPAddr returns a FakeAddr with network "tcp".
func TCPAddr(addr string) FakeAddr {
	return FakeAddr{NetworkName: "tcp", AddrString: addr}
}
