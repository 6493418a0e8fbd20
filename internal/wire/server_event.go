package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ServerEvent is a typed reply or push the connection manager decodes off
// the wire and hands to the state manager.
type ServerEvent interface {
	isServerEvent()
}

type ConferenceCreated struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type ConferenceJoinSaltEvent struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
	JoinSalt     JoinSalt
}

type ConferenceJoined struct {
	Nonce          PacketNonce
	ConferenceId   ConferenceId
	NumberOfPeers  NumberOfPeers
	EncryptionSalt EncSalt
}

type ConferenceLeft struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type MessageAccepted struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type ConferenceRestructuring struct {
	ConferenceId  ConferenceId
	NumberOfPeers NumberOfPeers
}

type IncomingMessage struct {
	ConferenceId ConferenceId
	Payload      []byte
}

type GeneralError struct{}

type ConferenceCreationError struct {
	Nonce PacketNonce
}

type ConferenceJoinSaltError struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type ConferenceJoinError struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type ConferenceLeaveError struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type MessageError struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

func (ConferenceCreated) isServerEvent()          {}
func (ConferenceJoinSaltEvent) isServerEvent()     {}
func (ConferenceJoined) isServerEvent()            {}
func (ConferenceLeft) isServerEvent()              {}
func (MessageAccepted) isServerEvent()             {}
func (ConferenceRestructuring) isServerEvent()     {}
func (IncomingMessage) isServerEvent()             {}
func (GeneralError) isServerEvent()                {}
func (ConferenceCreationError) isServerEvent()     {}
func (ConferenceJoinSaltError) isServerEvent()     {}
func (ConferenceJoinError) isServerEvent()         {}
func (ConferenceLeaveError) isServerEvent()        {}
func (MessageError) isServerEvent()                {}

// ErrUnknownFrameType is returned when a frame's discriminator byte does not
// match any known server→client frame.
var ErrUnknownFrameType = errors.New("wire: unknown server frame type")

// MaxIncomingMessageSize bounds the IncomingMessage payload length read off
// the wire, guarding against a malicious or buggy relay claiming an
// unreasonable length and forcing an unbounded allocation.
const MaxIncomingMessageSize = 16 * 1024 * 1024

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadServerEvent reads exactly one frame from r, having already consumed the
// discriminator byte frameType. It is length-driven: for every frame type it
// reads precisely the number of bytes that type dictates before returning.
func ReadServerEvent(frameType byte, r io.Reader) (ServerEvent, error) {
	switch frameType {
	case FrameHandshakeAcknowledged:
		return nil, errors.New("wire: unexpected HandshakeAcknowledged frame after handshake")
	case FrameConferenceCreated:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceCreated nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceCreated conference id")
		}
		return ConferenceCreated{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameConferenceJoinSalt:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinSalt nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinSalt conference id")
		}
		var salt JoinSalt
		if _, err := io.ReadFull(r, salt[:]); err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinSalt salt")
		}
		return ConferenceJoinSaltEvent{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid), JoinSalt: salt}, nil
	case FrameConferenceJoined:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoined nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoined conference id")
		}
		n, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoined number of peers")
		}
		var salt EncSalt
		if _, err := io.ReadFull(r, salt[:]); err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoined encryption salt")
		}
		return ConferenceJoined{
			Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid),
			NumberOfPeers: NumberOfPeers(n), EncryptionSalt: salt,
		}, nil
	case FrameConferenceLeft:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceLeft nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceLeft conference id")
		}
		return ConferenceLeft{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameMessageAccepted:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading MessageAccepted nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading MessageAccepted conference id")
		}
		return MessageAccepted{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameConferenceRestructuring:
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceRestructuring conference id")
		}
		n, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceRestructuring number of peers")
		}
		return ConferenceRestructuring{ConferenceId: ConferenceId(cid), NumberOfPeers: NumberOfPeers(n)}, nil
	case FrameIncomingMessage:
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading IncomingMessage conference id")
		}
		length, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading IncomingMessage length")
		}
		if length > MaxIncomingMessageSize {
			return nil, errors.Errorf("wire: IncomingMessage length %d exceeds maximum", length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Wrap(err, "reading IncomingMessage payload")
		}
		return IncomingMessage{ConferenceId: ConferenceId(cid), Payload: payload}, nil
	case FrameGeneralError:
		return GeneralError{}, nil
	case FrameConferenceCreationError:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceCreationError nonce")
		}
		return ConferenceCreationError{Nonce: PacketNonce(nonce)}, nil
	case FrameConferenceJoinSaltError:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinSaltError nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinSaltError conference id")
		}
		return ConferenceJoinSaltError{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameConferenceJoinError:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinError nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceJoinError conference id")
		}
		return ConferenceJoinError{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameConferenceLeaveError:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceLeaveError nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading ConferenceLeaveError conference id")
		}
		return ConferenceLeaveError{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	case FrameMessageError:
		nonce, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading MessageError nonce")
		}
		cid, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading MessageError conference id")
		}
		return MessageError{Nonce: PacketNonce(nonce), ConferenceId: ConferenceId(cid)}, nil
	default:
		return nil, ErrUnknownFrameType
	}
}
