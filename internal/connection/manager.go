// Package connection implements the connection manager: it frames and
// parses the client↔server wire protocol over a TLS byte stream, performs
// the application-level handshake, and converts bytes to typed server
// events and typed client events to bytes.
package connection

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

// ErrHandshakeRejected is returned when the server's reply to the protocol
// banner is anything other than HandshakeAcknowledged.
var ErrHandshakeRejected = errors.New("connection: server rejected protocol handshake")

// Manager owns the TLS connection to the relay server. ClientEvents is the
// channel callers send outbound events into; ServerEvents is the channel
// inbound events are delivered on. Both are unbounded in spirit (buffered
// generously). Run closes ServerEvents once the connection terminates;
// ClientEvents is closed by its sender.
type Manager struct {
	serverAddress string

	ClientEvents chan wire.ClientEvent
	ServerEvents chan wire.ServerEvent
}

// New constructs a Manager that will dial serverAddress when Run is called.
func New(serverAddress string) *Manager {
	return &Manager{
		serverAddress: serverAddress,
		ClientEvents:  make(chan wire.ClientEvent, 256),
		ServerEvents:  make(chan wire.ServerEvent, 256),
	}
}

// Run dials the server, completes the TLS and application handshakes, and
// then multiplexes the read and write loops until either the peer closes the
// stream, a read/write error occurs, or a Disconnect client event is sent.
// It closes ServerEvents before returning.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.ServerEvents)

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCAPEM) {
		return errors.New("connection: embedded root certificate is invalid")
	}

	dialer := tls.Dialer{
		Config: &tls.Config{
			ServerName: wire.ServerName,
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
	}

	slog.Debug("dialing relay server", "component", "connection", "address", m.serverAddress)
	conn, err := dialer.DialContext(ctx, "tcp", m.serverAddress)
	if err != nil {
		return errors.Wrap(err, "connection: dialing server")
	}
	defer conn.Close()
	slog.Debug("TLS handshake complete", "component", "connection")

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	if err := performHandshake(reader, writer); err != nil {
		return err
	}
	slog.Debug("application handshake complete", "component", "connection")

	g, gctx := errgroup.WithContext(ctx)
	writeCtx, stopWrite := context.WithCancel(gctx)
	defer stopWrite()
	g.Go(func() error {
		err := m.readLoop(reader)
		if err == nil {
			stopWrite() // the peer closed the stream: stop the write loop too
		}
		return err
	})
	g.Go(func() error { return m.writeLoop(writeCtx, writer, conn) })

	if err := g.Wait(); err != nil && (ctx.Err() != nil || err != context.Canceled) {
		return err
	}
	return nil
}

// performHandshake writes the protocol banner and reads the single-byte
// acknowledgement. Any reply other than HandshakeAcknowledged is fatal.
func performHandshake(reader *bufio.Reader, writer *bufio.Writer) error {
	if _, err := writer.Write(wire.ProtocolHeader); err != nil {
		return errors.Wrap(err, "connection: writing protocol header")
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrap(err, "connection: flushing protocol header")
	}

	reply, err := reader.ReadByte()
	if err != nil {
		return errors.Wrap(err, "connection: reading handshake reply")
	}
	if reply != wire.HandshakeAcknowledged {
		return ErrHandshakeRejected
	}
	return nil
}

// readLoop reads one frame at a time and forwards decoded ServerEvents until
// the peer closes the connection or a read/decode error occurs.
func (m *Manager) readLoop(reader *bufio.Reader) error {
	for {
		frameType, err := reader.ReadByte()
		if err != nil {
			return nil // peer closed the stream; not an error at this layer
		}

		event, err := wire.ReadServerEvent(frameType, reader)
		if err != nil {
			return errors.Wrap(err, "connection: reading server event")
		}

		m.ServerEvents <- event
	}
}

// writeLoop drains ClientEvents and writes each as a framed message,
// flushing after every event. It returns cleanly after writing Disconnect or
// when the channel is closed, and stops early if ctx is cancelled. conn is
// closed on every exit path, which is what unblocks readLoop's pending read:
// the two loops share nothing else to synchronize their shutdown on.
func (m *Manager) writeLoop(ctx context.Context, writer *bufio.Writer, conn net.Conn) error {
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-m.ClientEvents:
			if !ok {
				return nil
			}

			if _, err := writer.Write(wire.EncodeClientEvent(event)); err != nil {
				return errors.Wrap(err, "connection: writing client event")
			}
			if err := writer.Flush(); err != nil {
				return errors.Wrap(err, "connection: flushing client event")
			}

			if _, isDisconnect := event.(wire.Disconnect); isDisconnect {
				return nil
			}
		}
	}
}
