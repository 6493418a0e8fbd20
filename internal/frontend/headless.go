// Package frontend provides the reference "headless" frontend: a line-
// oriented stdin/stdout driver for the state manager, useful for scripting
// and manual testing. It is the only frontend this module ships; building a
// graphical or terminal-UI frontend is out of scope.
package frontend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/L20L021902/anonymous-conference-client/internal/ui"
	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

// Headless reads newline-delimited commands from in and writes ui.Actions to
// Actions; it logs every ui.Event it receives from Events.
type Headless struct {
	in  io.Reader
	out io.Writer

	Actions chan ui.Action
	Events  chan ui.Event
}

// New constructs a Headless frontend reading commands from in and writing
// human-readable status lines to out.
func New(in io.Reader, out io.Writer) *Headless {
	return &Headless{
		in:      in,
		out:     out,
		Actions: make(chan ui.Action, 16),
		Events:  make(chan ui.Event, 16),
	}
}

// Run drives the command loop and the event log concurrently until ctx is
// cancelled or the input stream is exhausted, at which point it issues
// ui.Disconnect and returns.
func (h *Headless) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readCommands(ctx)
	}()

	go h.logEvents(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		h.Actions <- ui.Disconnect{}
		return nil
	}
}

func (h *Headless) readCommands(ctx context.Context) {
	scanner := bufio.NewScanner(h.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		action, err := parseCommand(line)
		if err != nil {
			fmt.Fprintf(h.out, "error: %v\n", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case h.Actions <- action:
		}

		if _, isDisconnect := action.(ui.Disconnect); isDisconnect {
			return
		}
	}
}

func (h *Headless) logEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.Events:
			if !ok {
				return
			}
			fmt.Fprintf(h.out, "%s\n", describe(event))
		}
	}
}

// parseCommand turns one line of input into a ui.Action. Recognized verbs:
// create <password>, join <cid> <password>, leave <cid>,
// send <cid> <msg_id> <text...>, quit.
func parseCommand(line string) (ui.Action, error) {
	fields := strings.SplitN(line, " ", 2)
	verb := fields[0]

	switch verb {
	case "create":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: create <password>")
		}
		return ui.CreateConference{Password: fields[1]}, nil

	case "join":
		args := strings.SplitN(argOrEmpty(fields), " ", 2)
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: join <conference_id> <password>")
		}
		cid, err := parseConferenceId(args[0])
		if err != nil {
			return nil, err
		}
		return ui.JoinConference{ConferenceId: cid, Password: args[1]}, nil

	case "leave":
		cid, err := parseConferenceId(argOrEmpty(fields))
		if err != nil {
			return nil, err
		}
		return ui.LeaveConference{ConferenceId: cid}, nil

	case "send":
		args := strings.SplitN(argOrEmpty(fields), " ", 3)
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: send <conference_id> <message_id> <text>")
		}
		cid, err := parseConferenceId(args[0])
		if err != nil {
			return nil, err
		}
		msgId, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", args[1], err)
		}
		return ui.SendMessage{ConferenceId: cid, MessageId: wire.MessageId(msgId), Text: args[2]}, nil

	case "quit":
		return ui.Disconnect{}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
}

func argOrEmpty(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func parseConferenceId(s string) (wire.ConferenceId, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid conference id %q: %w", s, err)
	}
	return wire.ConferenceId(n), nil
}

func describe(event ui.Event) string {
	switch e := event.(type) {
	case ui.ConferenceCreated:
		return fmt.Sprintf("conference %d created", e.ConferenceId)
	case ui.ConferenceCreateFailed:
		return "conference creation failed"
	case ui.ConferenceJoined:
		return fmt.Sprintf("joined conference %d (%d peers)", e.ConferenceId, e.NumberOfPeers)
	case ui.ConferenceJoinFailed:
		return fmt.Sprintf("failed to join conference %d", e.ConferenceId)
	case ui.ConferenceLeft:
		return fmt.Sprintf("left conference %d", e.ConferenceId)
	case ui.ConferenceLeaveFailed:
		return fmt.Sprintf("failed to leave conference %d", e.ConferenceId)
	case ui.IncomingMessage:
		return fmt.Sprintf("[%d] %s (signature valid: %t)", e.ConferenceId, e.Plaintext, e.SignatureValid)
	case ui.MessageAccepted:
		return fmt.Sprintf("message %d accepted by conference %d", e.MessageId, e.ConferenceId)
	case ui.MessageRejected:
		return fmt.Sprintf("message %d rejected by conference %d", e.MessageId, e.ConferenceId)
	case ui.MessageError:
		return fmt.Sprintf("message %d errored for conference %d", e.MessageId, e.ConferenceId)
	case ui.ConferenceRestructuring:
		return fmt.Sprintf("conference %d restructuring to %d peers", e.ConferenceId, e.NumberOfPeers)
	case ui.ConferenceRestructuringFinished:
		return fmt.Sprintf("conference %d restructuring finished", e.ConferenceId)
	default:
		slog.Warn("headless frontend received unknown event type")
		return "unknown event"
	}
}
