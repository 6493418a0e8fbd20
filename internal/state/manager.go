// Package state implements the state manager: the single goroutine that
// owns the connection manager, the table of live conference managers, and
// the packet-nonce correlation table matching outstanding requests to the
// server's replies.
package state

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/L20L021902/anonymous-conference-client/internal/conference"
	"github.com/L20L021902/anonymous-conference-client/internal/connection"
	"github.com/L20L021902/anonymous-conference-client/internal/crypto"
	"github.com/L20L021902/anonymous-conference-client/internal/ui"
	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

type sentEventKind int

const (
	sentCreateConference sentEventKind = iota
	sentGetConferenceJoinSalt
	sentJoinConference
	sentLeaveConference
	sentSendMessage
	// sentInternalMessage correlates a conference manager's own setup frame
	// (PublicKey/EncryptionKeyPart), which never surfaces a UI event.
	sentInternalMessage
)

// sentEvent remembers what a packet nonce was spent on, so the reply can be
// correlated back to the right request and conference.
type sentEvent struct {
	kind         sentEventKind
	conferenceId wire.ConferenceId
	password     string
	messageId    wire.MessageId
}

// Manager mediates between the framed transport and an arbitrary number of
// concurrent conference instances, and between both of those and a frontend.
type Manager struct {
	serverAddress string

	uiEvents  chan<- ui.Event
	uiActions <-chan ui.Action

	conn *connection.Manager

	conferences      map[wire.ConferenceId]chan wire.ConferenceEvent
	outboundMessages chan wire.Message

	nextNonce   wire.PacketNonce
	sentPackets map[wire.PacketNonce]sentEvent

	group *errgroup.Group
	ctx   context.Context
}

// New constructs a state Manager that will dial serverAddress once Run is
// called, and exchanges ui.Action/ui.Event with a frontend over the given
// channels.
func New(serverAddress string, uiEvents chan<- ui.Event, uiActions <-chan ui.Action) *Manager {
	return &Manager{
		serverAddress:    serverAddress,
		uiEvents:         uiEvents,
		uiActions:        uiActions,
		conferences:      make(map[wire.ConferenceId]chan wire.ConferenceEvent),
		outboundMessages: make(chan wire.Message, 256),
		sentPackets:      make(map[wire.PacketNonce]sentEvent),
	}
}

// Run starts the connection manager and the state manager's own event loop
// as sibling members of one errgroup, so a fatal error in either cancels the
// other. It returns the first non-nil error, or nil on graceful shutdown.
func (m *Manager) Run(ctx context.Context) error {
	m.conn = connection.New(m.serverAddress)

	g, gctx := errgroup.WithContext(ctx)
	m.group = g
	m.ctx = gctx

	g.Go(func() error { return m.conn.Run(gctx) })
	g.Go(func() error { return m.loop(gctx) })

	return g.Wait()
}

func (m *Manager) loop(ctx context.Context) error {
	defer func() {
		for cid, ch := range m.conferences {
			close(ch)
			delete(m.conferences, cid)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-m.conn.ServerEvents:
			if !ok {
				return nil
			}
			if err := m.handleServerEvent(event); err != nil {
				return err
			}

		case msg := <-m.outboundMessages:
			m.dispatchOutboundMessage(msg)

		case action, ok := <-m.uiActions:
			if !ok {
				m.disconnect()
				return nil
			}
			if _, isDisconnect := action.(ui.Disconnect); isDisconnect {
				m.disconnect()
				return nil
			}
			m.handleUIAction(action)
		}
	}
}

func (m *Manager) disconnect() {
	m.conn.ClientEvents <- wire.Disconnect{}
	close(m.conn.ClientEvents)
}

func (m *Manager) allocateNonce() wire.PacketNonce {
	m.nextNonce++
	return m.nextNonce
}

// --- UI actions -------------------------------------------------------

func (m *Manager) handleUIAction(action ui.Action) {
	switch a := action.(type) {
	case ui.CreateConference:
		m.doCreateConference(a.Password)
	case ui.JoinConference:
		m.doJoinConference(a.ConferenceId, a.Password)
	case ui.LeaveConference:
		m.doLeaveConference(a.ConferenceId)
	case ui.SendMessage:
		m.doSendMessage(a.ConferenceId, a.MessageId, a.Text)
	default:
		slog.Warn("received unknown UI action type")
	}
}

func (m *Manager) doCreateConference(password string) {
	passwordHash, joinSalt, err := crypto.HashPassword([]byte(password))
	if err != nil {
		slog.Error("failed to hash password for conference creation", "error", err)
		m.uiEvents <- ui.ConferenceCreateFailed{}
		return
	}
	encryptionSalt, err := crypto.GenerateSalt()
	if err != nil {
		slog.Error("failed to generate encryption salt for conference creation", "error", err)
		m.uiEvents <- ui.ConferenceCreateFailed{}
		return
	}

	nonce := m.allocateNonce()
	m.sentPackets[nonce] = sentEvent{kind: sentCreateConference}
	m.conn.ClientEvents <- wire.CreateConference{
		Nonce:          nonce,
		PasswordHash:   wire.PasswordHash(passwordHash),
		JoinSalt:       wire.JoinSalt(joinSalt),
		EncryptionSalt: wire.EncSalt(encryptionSalt),
	}
}

func (m *Manager) doJoinConference(cid wire.ConferenceId, password string) {
	nonce := m.allocateNonce()
	m.sentPackets[nonce] = sentEvent{kind: sentGetConferenceJoinSalt, conferenceId: cid, password: password}
	m.conn.ClientEvents <- wire.GetConferenceJoinSalt{Nonce: nonce, ConferenceId: cid}
}

func (m *Manager) doLeaveConference(cid wire.ConferenceId) {
	nonce := m.allocateNonce()
	m.sentPackets[nonce] = sentEvent{kind: sentLeaveConference, conferenceId: cid}
	m.conn.ClientEvents <- wire.LeaveConference{Nonce: nonce, ConferenceId: cid}
}

func (m *Manager) doSendMessage(cid wire.ConferenceId, msgId wire.MessageId, text string) {
	events, ok := m.conferences[cid]
	if !ok {
		slog.Warn("attempted to send message to non-existent conference", "conference", cid)
		m.uiEvents <- ui.MessageError{ConferenceId: cid, MessageId: msgId}
		return
	}
	events <- wire.OutboundMessageEvent{MessageId: msgId, Plaintext: []byte(text)}
}

// --- conference lifecycle ----------------------------------------------

func (m *Manager) createConferenceManager(cid wire.ConferenceId, numberOfPeers wire.NumberOfPeers, password string, encryptionSalt wire.EncSalt) {
	slog.Info("creating conference manager", "conference", cid, "peers", numberOfPeers)
	initialKey := crypto.HashPasswordWithSalt([]byte(password), encryptionSalt)

	events := make(chan wire.ConferenceEvent, 32)
	mgr := conference.New(cid, numberOfPeers, initialKey, events, m.outboundMessages, m.uiEvents)
	m.conferences[cid] = events

	m.group.Go(func() error {
		if err := mgr.Run(m.ctx); err != nil {
			slog.Warn("conference manager exited with an error", "conference", cid, "error", err)
		} else {
			slog.Debug("conference manager exited", "conference", cid)
		}
		return nil
	})
}

func (m *Manager) removeConference(cid wire.ConferenceId) {
	if ch, ok := m.conferences[cid]; ok {
		close(ch)
		delete(m.conferences, cid)
	}
}

func (m *Manager) dispatchOutboundMessage(msg wire.Message) {
	nonce := m.allocateNonce()
	if msg.MessageId != nil {
		m.sentPackets[nonce] = sentEvent{kind: sentSendMessage, conferenceId: msg.Conference, messageId: *msg.MessageId}
	} else {
		m.sentPackets[nonce] = sentEvent{kind: sentInternalMessage, conferenceId: msg.Conference}
	}
	m.conn.ClientEvents <- wire.SendMessage{Nonce: nonce, Message: msg}
}

// --- server events -------------------------------------------------------

func (m *Manager) handleServerEvent(event wire.ServerEvent) error {
	switch e := event.(type) {
	case wire.ConferenceCreated:
		m.onConferenceCreated(e)
	case wire.ConferenceJoinSaltEvent:
		m.onConferenceJoinSalt(e)
	case wire.ConferenceJoined:
		m.onConferenceJoined(e)
	case wire.ConferenceLeft:
		m.onConferenceLeft(e)
	case wire.MessageAccepted:
		m.onMessageAccepted(e)
	case wire.ConferenceRestructuring:
		m.onConferenceRestructuring(e)
	case wire.IncomingMessage:
		m.onIncomingMessage(e)
	case wire.GeneralError:
		return errors.New("state: received a general error from the server")
	case wire.ConferenceCreationError:
		m.onConferenceCreationError(e)
	case wire.ConferenceJoinSaltError:
		m.onConferenceJoinSaltError(e)
	case wire.ConferenceJoinError:
		m.onConferenceJoinError(e)
	case wire.ConferenceLeaveError:
		m.onConferenceLeaveError(e)
	case wire.MessageError:
		m.onMessageError(e)
	default:
		slog.Warn("received unknown server event type")
	}
	return nil
}

func (m *Manager) onConferenceCreated(e wire.ConferenceCreated) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentCreateConference {
		slog.Warn("received unexpected ConferenceCreated packet", "nonce", e.Nonce)
		return
	}
	delete(m.sentPackets, e.Nonce)
	m.uiEvents <- ui.ConferenceCreated{ConferenceId: e.ConferenceId}
}

func (m *Manager) onConferenceJoinSalt(e wire.ConferenceJoinSaltEvent) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentGetConferenceJoinSalt {
		slog.Warn("received unexpected ConferenceJoinSalt packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceJoinSalt for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)

	passwordHash := crypto.HashPasswordWithSalt([]byte(se.password), e.JoinSalt)
	nonce := m.allocateNonce()
	m.sentPackets[nonce] = sentEvent{kind: sentJoinConference, conferenceId: e.ConferenceId, password: se.password}
	m.conn.ClientEvents <- wire.JoinConference{
		Nonce:        nonce,
		ConferenceId: e.ConferenceId,
		PasswordHash: wire.PasswordHash(passwordHash),
	}
}

func (m *Manager) onConferenceJoined(e wire.ConferenceJoined) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentJoinConference {
		slog.Warn("received unexpected ConferenceJoined packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceJoined for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)

	m.uiEvents <- ui.ConferenceJoined{ConferenceId: e.ConferenceId, NumberOfPeers: e.NumberOfPeers}
	m.createConferenceManager(e.ConferenceId, e.NumberOfPeers, se.password, e.EncryptionSalt)
}

func (m *Manager) onConferenceLeft(e wire.ConferenceLeft) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentLeaveConference {
		slog.Warn("received unexpected ConferenceLeft packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceLeft for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	m.removeConference(e.ConferenceId)
	m.uiEvents <- ui.ConferenceLeft{ConferenceId: e.ConferenceId}
}

func (m *Manager) onMessageAccepted(e wire.MessageAccepted) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || (se.kind != sentSendMessage && se.kind != sentInternalMessage) {
		slog.Warn("received unexpected MessageAccepted packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received MessageAccepted for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	if se.kind == sentInternalMessage {
		return
	}
	m.uiEvents <- ui.MessageAccepted{ConferenceId: e.ConferenceId, MessageId: se.messageId}
}

func (m *Manager) onConferenceRestructuring(e wire.ConferenceRestructuring) {
	ch, ok := m.conferences[e.ConferenceId]
	if !ok {
		slog.Warn("attempted to restructure non-existent conference", "conference", e.ConferenceId)
		return
	}
	ch <- wire.ConferenceRestructuringEvent{NumberOfPeers: e.NumberOfPeers}
	m.uiEvents <- ui.ConferenceRestructuring{ConferenceId: e.ConferenceId, NumberOfPeers: e.NumberOfPeers}
}

func (m *Manager) onIncomingMessage(e wire.IncomingMessage) {
	ch, ok := m.conferences[e.ConferenceId]
	if !ok {
		slog.Warn("received a message for a non-existent conference", "conference", e.ConferenceId)
		return
	}
	ch <- wire.IncomingMessageEvent{Payload: e.Payload}
}

func (m *Manager) onConferenceCreationError(e wire.ConferenceCreationError) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentCreateConference {
		slog.Warn("received unexpected ConferenceCreationError packet", "nonce", e.Nonce)
		return
	}
	delete(m.sentPackets, e.Nonce)
	m.uiEvents <- ui.ConferenceCreateFailed{}
}

func (m *Manager) onConferenceJoinSaltError(e wire.ConferenceJoinSaltError) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentGetConferenceJoinSalt {
		slog.Warn("received unexpected ConferenceJoinSaltError packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceJoinSaltError for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	m.uiEvents <- ui.ConferenceJoinFailed{ConferenceId: e.ConferenceId}
}

func (m *Manager) onConferenceJoinError(e wire.ConferenceJoinError) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentJoinConference {
		slog.Warn("received unexpected ConferenceJoinError packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceJoinError for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	m.uiEvents <- ui.ConferenceJoinFailed{ConferenceId: e.ConferenceId}
}

// onConferenceLeaveError surfaces a distinct failure rather than pretending
// the leave succeeded: the conference is left in place, since a peer that
// failed to leave server-side is still a ring member and still holds the
// ephemeral key.
func (m *Manager) onConferenceLeaveError(e wire.ConferenceLeaveError) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || se.kind != sentLeaveConference {
		slog.Warn("received unexpected ConferenceLeaveError packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received ConferenceLeaveError for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	slog.Warn("received a ConferenceLeaveError event", "conference", e.ConferenceId)
	m.uiEvents <- ui.ConferenceLeaveFailed{ConferenceId: e.ConferenceId}
}

func (m *Manager) onMessageError(e wire.MessageError) {
	se, ok := m.sentPackets[e.Nonce]
	if !ok || (se.kind != sentSendMessage && se.kind != sentInternalMessage) {
		slog.Warn("received unexpected MessageError packet", "nonce", e.Nonce)
		return
	}
	if se.conferenceId != e.ConferenceId {
		slog.Warn("received MessageError for unexpected conference", "got", e.ConferenceId, "want", se.conferenceId)
		return
	}
	delete(m.sentPackets, e.Nonce)
	if se.kind == sentInternalMessage {
		slog.Warn("the relay rejected an internal conference protocol frame", "conference", e.ConferenceId)
		return
	}
	slog.Warn("received a MessageError event", "conference", e.ConferenceId)
	m.uiEvents <- ui.MessageRejected{ConferenceId: e.ConferenceId, MessageId: se.messageId}
}
