// Package conference implements the per-conference state machine: the
// public-key exchange, the ephemeral-key negotiation, ring-signed message
// exchange during normal operation, and restructuring on membership change.
package conference

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	ristretto "github.com/gtank/ristretto255"

	"github.com/L20L021902/anonymous-conference-client/internal/crypto"
	"github.com/L20L021902/anonymous-conference-client/internal/ui"
	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

type phase int

const (
	phaseInitial phase = iota
	phasePublicKeyExchange
	phasePublicKeyExchangeFinished
	phaseEncryptionKeyNegotiation
	phaseEncryptionKeyNegotiationFinished
	phaseNormalOperation
)

// sub-protocol frame discriminators exchanged between conference peers.
const (
	frameTypePublicKey         byte = 0x01
	frameTypeEncryptionKeyPart byte = 0x02
	frameTypeMessage           byte = 0x03
)

// Manager runs one conference's state machine for the lifetime of
// membership in that conference. A new Manager is constructed whenever the
// state manager learns a conference was joined, and it runs until its event
// channel is closed.
type Manager struct {
	conferenceId  wire.ConferenceId
	numberOfPeers wire.NumberOfPeers
	initialKey    crypto.SecretKey

	events   <-chan wire.ConferenceEvent
	outbound chan<- wire.Message
	uiEvents chan<- ui.Event

	keyPair *crypto.KeyPair

	unsortedPublicKeys map[[32]byte]*ristretto.Element
	ring               []*ristretto.Element
	ringIndex          int

	newEphemeralKey        crypto.SecretKey
	ephemeralKeyPartsRecvd wire.NumberOfPeers
	ephemeralKey           *crypto.SecretKey

	phase phase
}

// New constructs a conference Manager. initialKey is Argon2(password,
// encryption_salt), already derived by the caller.
func New(
	conferenceId wire.ConferenceId,
	numberOfPeers wire.NumberOfPeers,
	initialKey crypto.SecretKey,
	events <-chan wire.ConferenceEvent,
	outbound chan<- wire.Message,
	uiEvents chan<- ui.Event,
) *Manager {
	return &Manager{
		conferenceId:       conferenceId,
		numberOfPeers:      numberOfPeers,
		initialKey:         initialKey,
		events:             events,
		outbound:           outbound,
		uiEvents:           uiEvents,
		unsortedPublicKeys: make(map[[32]byte]*ristretto.Element, numberOfPeers),
	}
}

// Run generates this peer's key pair, starts the initial public-key
// exchange, and then services events until the event channel is closed or
// ctx is cancelled. It returns nil on a graceful channel closure; key
// material is zeroed before every return.
func (m *Manager) Run(ctx context.Context) error {
	defer m.zero()

	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return errors.Wrap(err, "conference: generating key pair")
	}
	m.keyPair = keyPair

	ephemeral, err := crypto.GenerateEphemeralKey()
	if err != nil {
		return errors.Wrap(err, "conference: generating ephemeral key share")
	}
	m.newEphemeralKey = ephemeral

	slog.Debug("starting conference manager", "conference", m.conferenceId, "peers", m.numberOfPeers)
	m.startPublicKeyExchange()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-m.events:
			if !ok {
				slog.Debug("conference manager stopped", "conference", m.conferenceId)
				return nil
			}
			switch e := event.(type) {
			case wire.ConferenceRestructuringEvent:
				m.restructure(e.NumberOfPeers)
			case wire.IncomingMessageEvent:
				m.processIncoming(e.Payload)
			case wire.OutboundMessageEvent:
				m.sendOutbound(e.MessageId, e.Plaintext)
			default:
				slog.Warn("conference manager received unexpected event type", "conference", m.conferenceId)
			}
		}
	}
}

func (m *Manager) restructure(n wire.NumberOfPeers) {
	slog.Debug("conference is being restructured", "conference", m.conferenceId, "peers", n)
	m.numberOfPeers = n
	m.unsortedPublicKeys = make(map[[32]byte]*ristretto.Element, n)

	ephemeral, err := crypto.GenerateEphemeralKey()
	if err != nil {
		slog.Error("failed to generate ephemeral key share for restructuring", "conference", m.conferenceId, "error", err)
		return
	}
	m.newEphemeralKey = ephemeral
	m.ephemeralKeyPartsRecvd = 0

	// the old ring and ephemeralKey are deliberately left in place so that
	// late traffic from the previous epoch still decrypts and verifies.
	m.startPublicKeyExchange()
}

func (m *Manager) startPublicKeyExchange() {
	m.phase = phasePublicKeyExchange
	selfEncoded := m.keyPair.Public.Encode(nil)
	var key [32]byte
	copy(key[:], selfEncoded)
	m.unsortedPublicKeys[key] = m.keyPair.Public
	m.broadcastSetupFrame(frameTypePublicKey, selfEncoded)

	// fast path: a lone peer (N=1) already has every public key it needs.
	if wire.NumberOfPeers(len(m.unsortedPublicKeys)) == m.numberOfPeers {
		m.finishPublicKeyExchange()
	}
}

func (m *Manager) finishPublicKeyExchange() {
	keys := make([][32]byte, 0, len(m.unsortedPublicKeys))
	for k := range m.unsortedPublicKeys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	selfEncoded := m.keyPair.Public.Encode(nil)
	ring := make([]*ristretto.Element, len(keys))
	selfIndex := -1
	for i, k := range keys {
		ring[i] = m.unsortedPublicKeys[k]
		if bytes.Equal(k[:], selfEncoded) {
			selfIndex = i
		}
	}
	m.ring = ring
	m.ringIndex = selfIndex

	slog.Debug("received all public keys", "conference", m.conferenceId, "ring_size", len(m.ring))
	m.phase = phasePublicKeyExchangeFinished
	m.startEncryptionKeyNegotiation()
}

func (m *Manager) startEncryptionKeyNegotiation() {
	m.phase = phaseEncryptionKeyNegotiation
	m.broadcastSetupFrame(frameTypeEncryptionKeyPart, m.newEphemeralKey[:])

	// fast path: a lone peer (N=1) needs zero contributions from anyone else.
	if m.ephemeralKeyPartsRecvd == m.numberOfPeers-1 {
		key := m.newEphemeralKey
		m.ephemeralKey = &key
		m.phase = phaseEncryptionKeyNegotiationFinished
		m.finishSetup()
	}
}

func (m *Manager) finishSetup() {
	m.phase = phaseNormalOperation
	slog.Debug("conference setup finished", "conference", m.conferenceId)
	m.uiEvents <- ui.ConferenceRestructuringFinished{ConferenceId: m.conferenceId}
}

func (m *Manager) broadcastSetupFrame(frameType byte, body []byte) {
	frame := append([]byte{frameType}, body...)
	result, err := crypto.Encrypt(frame, m.initialKey)
	if err != nil {
		slog.Error("failed to encrypt setup frame", "conference", m.conferenceId, "error", err)
		return
	}
	m.outbound <- wire.Message{Conference: m.conferenceId, Payload: result.Encode()}
}

func (m *Manager) processIncoming(payload []byte) {
	plaintext, err := m.tryDecrypt(payload)
	if err != nil {
		slog.Warn("discarding message that failed to decrypt under any available key", "conference", m.conferenceId)
		return
	}

	frameType, body, err := decodeSubProtocolFrame(plaintext)
	if err != nil {
		slog.Warn("discarding malformed sub-protocol frame", "conference", m.conferenceId, "error", err)
		return
	}

	switch m.phase {
	case phaseInitial:
		slog.Warn("received message in initial state, ignoring", "conference", m.conferenceId)
	case phasePublicKeyExchange:
		switch frameType {
		case frameTypePublicKey:
			m.handlePublicKey(body)
		case frameTypeMessage:
			// late traffic from the previous epoch, decrypted above
			m.handleTextMessage(body)
		default:
			slog.Warn("received unexpected frame type during public key exchange", "conference", m.conferenceId)
		}
	case phaseEncryptionKeyNegotiation:
		switch frameType {
		case frameTypeEncryptionKeyPart:
			m.handleEncryptionKeyPart(body)
		case frameTypeMessage:
			m.handleTextMessage(body)
		default:
			slog.Warn("received unexpected frame type during encryption key negotiation", "conference", m.conferenceId)
		}
	case phaseNormalOperation:
		switch frameType {
		case frameTypeMessage:
			m.handleTextMessage(body)
		default:
			slog.Warn("received unexpected frame type during normal operation", "conference", m.conferenceId)
		}
	default:
		slog.Warn("received message in unexpected state, ignoring", "conference", m.conferenceId)
	}
}

// tryDecrypt attempts the dual-key decrypt policy: in NormalOperation the
// ephemeral key is tried first with the initial key as fallback; in every
// setup/restructuring phase the order is reversed.
func (m *Manager) tryDecrypt(payload []byte) ([]byte, error) {
	result, err := crypto.DecodeEncryptionResult(payload)
	if err != nil {
		return nil, err
	}

	keys := make([]crypto.SecretKey, 0, 2)
	if m.phase == phaseNormalOperation {
		if m.ephemeralKey != nil {
			keys = append(keys, *m.ephemeralKey)
		}
		keys = append(keys, m.initialKey)
	} else {
		keys = append(keys, m.initialKey)
		if m.ephemeralKey != nil {
			keys = append(keys, *m.ephemeralKey)
		}
	}

	for _, key := range keys {
		if plaintext, err := crypto.Decrypt(key, result); err == nil {
			return plaintext, nil
		}
	}
	return nil, errors.New("conference: no available key decrypts this frame")
}

func (m *Manager) handlePublicKey(body []byte) {
	pub := new(ristretto.Element)
	if err := pub.Decode(body); err != nil {
		slog.Warn("discarding invalid public key", "conference", m.conferenceId)
		return
	}

	var key [32]byte
	copy(key[:], pub.Encode(nil))
	m.unsortedPublicKeys[key] = pub

	slog.Debug("received public key", "conference", m.conferenceId,
		"have", len(m.unsortedPublicKeys), "want", m.numberOfPeers)
	if wire.NumberOfPeers(len(m.unsortedPublicKeys)) == m.numberOfPeers {
		m.finishPublicKeyExchange()
	}
}

func (m *Manager) handleEncryptionKeyPart(body []byte) {
	if len(body) != crypto.KeySize {
		slog.Warn("discarding encryption key part with wrong length", "conference", m.conferenceId, "length", len(body))
		return
	}

	var part [crypto.KeySize]byte
	copy(part[:], body)
	crypto.ApplyPart(&m.newEphemeralKey, part)
	m.ephemeralKeyPartsRecvd++

	slog.Debug("received encryption key part", "conference", m.conferenceId,
		"have", m.ephemeralKeyPartsRecvd, "want", m.numberOfPeers-1)
	if m.ephemeralKeyPartsRecvd == m.numberOfPeers-1 {
		key := m.newEphemeralKey
		m.ephemeralKey = &key
		m.phase = phaseEncryptionKeyNegotiationFinished
		m.finishSetup()
	}
}

func (m *Manager) handleTextMessage(body []byte) {
	if len(m.ring) == 0 {
		slog.Warn("discarding text message received before any ring is established", "conference", m.conferenceId)
		return
	}

	sig, message, err := crypto.DecodeRingSignature(body, len(m.ring))
	if err != nil {
		slog.Warn("discarding malformed ring signature", "conference", m.conferenceId, "error", err)
		return
	}

	valid := crypto.Verify(sig, m.ring, message)
	if !valid {
		slog.Warn("ring signature verification failed", "conference", m.conferenceId)
	}
	m.uiEvents <- ui.IncomingMessage{ConferenceId: m.conferenceId, Plaintext: message, SignatureValid: valid}
}

func (m *Manager) sendOutbound(msgId wire.MessageId, plaintext []byte) {
	if m.phase != phaseNormalOperation || m.ephemeralKey == nil {
		slog.Warn("dropping outbound message sent before conference setup finished", "conference", m.conferenceId)
		m.uiEvents <- ui.MessageError{ConferenceId: m.conferenceId, MessageId: msgId}
		return
	}

	sig, err := crypto.Sign(m.keyPair.Private, m.ringIndex, m.ring, plaintext)
	if err != nil {
		slog.Error("failed to sign outbound message", "conference", m.conferenceId, "error", err)
		return
	}

	payload := append(sig.Encode(), plaintext...)
	result, err := crypto.Encrypt(encodeMessageFrame(payload), *m.ephemeralKey)
	if err != nil {
		slog.Error("failed to encrypt outbound message", "conference", m.conferenceId, "error", err)
		return
	}

	id := msgId
	m.outbound <- wire.Message{Conference: m.conferenceId, Payload: result.Encode(), MessageId: &id}
}

func (m *Manager) zero() {
	m.initialKey.Zero()
	m.newEphemeralKey.Zero()
	if m.ephemeralKey != nil {
		m.ephemeralKey.Zero()
	}
	if m.keyPair != nil {
		m.keyPair.Zero()
	}
}

func encodeMessageFrame(payload []byte) []byte {
	buf := make([]byte, 0, 1+4+len(payload))
	buf = append(buf, frameTypeMessage)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)
	return buf
}

// decodeSubProtocolFrame splits a decrypted conference frame into its type
// discriminator and body, validating the length-prefix on Message frames.
func decodeSubProtocolFrame(data []byte) (byte, []byte, error) {
	if len(data) == 0 {
		return 0, nil, errors.New("conference: empty sub-protocol frame")
	}

	switch data[0] {
	case frameTypePublicKey, frameTypeEncryptionKeyPart:
		return data[0], data[1:], nil
	case frameTypeMessage:
		if len(data) < 5 {
			return 0, nil, errors.New("conference: message frame too short to contain a length")
		}
		length := binary.BigEndian.Uint32(data[1:5])
		if uint32(len(data)-5) != length {
			return 0, nil, errors.New("conference: message frame length does not match payload")
		}
		return frameTypeMessage, data[5:], nil
	default:
		return 0, nil, errors.Errorf("conference: unknown sub-protocol frame type 0x%02x", data[0])
	}
}
