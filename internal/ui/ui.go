// Package ui defines the boundary between the cryptographic client engine
// and a frontend. Concrete frontends (terminal, graphical) are out of scope
// for this module; only the event/action vocabulary they would exchange with
// the state manager lives here.
package ui

import "github.com/L20L021902/anonymous-conference-client/internal/wire"

// Action is a request issued by a frontend to the state manager.
type Action interface {
	isAction()
}

type CreateConference struct {
	Password string
}

type JoinConference struct {
	ConferenceId wire.ConferenceId
	Password     string
}

type LeaveConference struct {
	ConferenceId wire.ConferenceId
}

type SendMessage struct {
	ConferenceId wire.ConferenceId
	MessageId    wire.MessageId
	Text         string
}

type Disconnect struct{}

func (CreateConference) isAction() {}
func (JoinConference) isAction()   {}
func (LeaveConference) isAction()  {}
func (SendMessage) isAction()      {}
func (Disconnect) isAction()       {}

// Event is a notification the state manager emits for a frontend to render.
type Event interface {
	isEvent()
}

type ConferenceCreated struct {
	ConferenceId wire.ConferenceId
}

type ConferenceCreateFailed struct{}

type ConferenceJoined struct {
	ConferenceId  wire.ConferenceId
	NumberOfPeers wire.NumberOfPeers
}

type ConferenceJoinFailed struct {
	ConferenceId wire.ConferenceId
}

type ConferenceLeft struct {
	ConferenceId wire.ConferenceId
}

type ConferenceLeaveFailed struct {
	ConferenceId wire.ConferenceId
}

type IncomingMessage struct {
	ConferenceId   wire.ConferenceId
	Plaintext      []byte
	SignatureValid bool
}

type MessageAccepted struct {
	ConferenceId wire.ConferenceId
	MessageId    wire.MessageId
}

type MessageRejected struct {
	ConferenceId wire.ConferenceId
	MessageId    wire.MessageId
}

type MessageError struct {
	ConferenceId wire.ConferenceId
	MessageId    wire.MessageId
}

type ConferenceRestructuring struct {
	ConferenceId  wire.ConferenceId
	NumberOfPeers wire.NumberOfPeers
}

type ConferenceRestructuringFinished struct {
	ConferenceId wire.ConferenceId
}

func (ConferenceCreated) isEvent()               {}
func (ConferenceCreateFailed) isEvent()           {}
func (ConferenceJoined) isEvent()                 {}
func (ConferenceJoinFailed) isEvent()             {}
func (ConferenceLeft) isEvent()                   {}
func (ConferenceLeaveFailed) isEvent()            {}
func (IncomingMessage) isEvent()                  {}
func (MessageAccepted) isEvent()                  {}
func (MessageRejected) isEvent()                  {}
func (MessageError) isEvent()                     {}
func (ConferenceRestructuring) isEvent()          {}
func (ConferenceRestructuringFinished) isEvent()  {}
