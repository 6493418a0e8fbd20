package connection

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

// TestWriteLoopDisconnectClosesSocketAndUnblocksReadLoop guards against a
// deadlock: readLoop and writeLoop are independent goroutines sharing only
// the underlying conn, so writeLoop returning cleanly after Disconnect must
// close that conn, or readLoop's blocking read never returns and g.Wait()
// hangs forever.
func TestWriteLoopDisconnectClosesSocketAndUnblocksReadLoop(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	m := &Manager{
		ClientEvents: make(chan wire.ClientEvent, 4),
		ServerEvents: make(chan wire.ServerEvent, 4),
	}

	reader := bufio.NewReader(clientConn)
	writer := bufio.NewWriter(clientConn)

	// drain whatever writeLoop writes so its Write call doesn't block on the
	// unbuffered pipe.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverConn.Read(buf); err != nil {
				return
			}
		}
	}()

	g := &errgroup.Group{}
	g.Go(func() error { return m.readLoop(reader) })
	g.Go(func() error { return m.writeLoop(context.Background(), writer, clientConn) })

	m.ClientEvents <- wire.Disconnect{}

	waitDone := make(chan error, 1)
	go func() { waitDone <- g.Wait() }()

	select {
	case err := <-waitDone:
		if err != nil {
			t.Fatalf("expected both loops to exit cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writeLoop's Disconnect did not unblock readLoop: g.Wait() hung")
	}
}

// TestWriteLoopChannelClosedClosesSocket covers the other clean-exit path:
// ClientEvents closing (rather than an explicit Disconnect) must also close
// conn so a concurrent readLoop is not left blocked.
func TestWriteLoopChannelClosedClosesSocket(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	m := &Manager{
		ClientEvents: make(chan wire.ClientEvent),
		ServerEvents: make(chan wire.ServerEvent, 4),
	}

	reader := bufio.NewReader(clientConn)
	writer := bufio.NewWriter(clientConn)

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverConn.Read(buf); err != nil {
				return
			}
		}
	}()

	g := &errgroup.Group{}
	g.Go(func() error { return m.readLoop(reader) })
	g.Go(func() error { return m.writeLoop(context.Background(), writer, clientConn) })

	close(m.ClientEvents)

	waitDone := make(chan error, 1)
	go func() { waitDone <- g.Wait() }()

	select {
	case err := <-waitDone:
		if err != nil {
			t.Fatalf("expected both loops to exit cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writeLoop exiting after a closed channel did not unblock readLoop: g.Wait() hung")
	}
}
