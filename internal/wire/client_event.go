package wire

import "encoding/binary"

// ClientEvent is a typed request the state manager dispatches to the
// connection manager for writing to the wire.
type ClientEvent interface {
	isClientEvent()
}

type CreateConference struct {
	Nonce          PacketNonce
	PasswordHash   PasswordHash
	JoinSalt       JoinSalt
	EncryptionSalt EncSalt
}

type GetConferenceJoinSalt struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type JoinConference struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
	PasswordHash PasswordHash
}

type LeaveConference struct {
	Nonce        PacketNonce
	ConferenceId ConferenceId
}

type SendMessage struct {
	Nonce   PacketNonce
	Message Message
}

type Disconnect struct{}

func (CreateConference) isClientEvent()      {}
func (GetConferenceJoinSalt) isClientEvent() {}
func (JoinConference) isClientEvent()        {}
func (LeaveConference) isClientEvent()       {}
func (SendMessage) isClientEvent()           {}
func (Disconnect) isClientEvent()            {}

// EncodeClientEvent serializes a ClientEvent to its wire frame, discriminator
// byte first. Disconnect carries no body, so its encoding is the single
// discriminator byte.
func EncodeClientEvent(event ClientEvent) []byte {
	switch e := event.(type) {
	case CreateConference:
		buf := make([]byte, 0, 1+4+32+32+32)
		buf = append(buf, FrameCreateConference)
		buf = appendU32(buf, uint32(e.Nonce))
		buf = append(buf, e.PasswordHash[:]...)
		buf = append(buf, e.JoinSalt[:]...)
		buf = append(buf, e.EncryptionSalt[:]...)
		return buf
	case GetConferenceJoinSalt:
		buf := make([]byte, 0, 1+4+4)
		buf = append(buf, FrameGetConferenceJoinSalt)
		buf = appendU32(buf, uint32(e.Nonce))
		buf = appendU32(buf, uint32(e.ConferenceId))
		return buf
	case JoinConference:
		buf := make([]byte, 0, 1+4+4+32)
		buf = append(buf, FrameJoinConference)
		buf = appendU32(buf, uint32(e.Nonce))
		buf = appendU32(buf, uint32(e.ConferenceId))
		buf = append(buf, e.PasswordHash[:]...)
		return buf
	case LeaveConference:
		buf := make([]byte, 0, 1+4+4)
		buf = append(buf, FrameLeaveConference)
		buf = appendU32(buf, uint32(e.Nonce))
		buf = appendU32(buf, uint32(e.ConferenceId))
		return buf
	case SendMessage:
		buf := make([]byte, 0, 1+4+4+4+len(e.Message.Payload))
		buf = append(buf, FrameSendMessage)
		buf = appendU32(buf, uint32(e.Nonce))
		buf = appendU32(buf, uint32(e.Message.Conference))
		buf = appendU32(buf, uint32(len(e.Message.Payload)))
		buf = append(buf, e.Message.Payload...)
		return buf
	case Disconnect:
		return []byte{FrameDisconnect}
	default:
		panic("wire: unknown ClientEvent type")
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
