package conference

import (
	"context"
	"testing"
	"time"

	"github.com/L20L021902/anonymous-conference-client/internal/crypto"
	"github.com/L20L021902/anonymous-conference-client/internal/ui"
	"github.com/L20L021902/anonymous-conference-client/internal/wire"
)

type harness struct {
	events   chan wire.ConferenceEvent
	outbound chan wire.Message
	uiEvents chan ui.Event
	mgr      *Manager
}

func newHarness(cid wire.ConferenceId, n wire.NumberOfPeers, key crypto.SecretKey) *harness {
	h := &harness{
		events:   make(chan wire.ConferenceEvent, 32),
		outbound: make(chan wire.Message, 32),
		uiEvents: make(chan ui.Event, 32),
	}
	h.mgr = New(cid, n, key, h.events, h.outbound, h.uiEvents)
	return h
}

// relay forwards every frame from's outbound channel sends as an
// IncomingMessageEvent on to's event channel, simulating a relay server
// passing traffic between two peers in the same conference.
func relay(ctx context.Context, from, to *harness) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-from.outbound:
				if !ok {
					return
				}
				select {
				case to.events <- wire.IncomingMessageEvent{Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func waitForSetupFinished(t *testing.T, events chan ui.Event, cid wire.ConferenceId) {
	t.Helper()
	select {
	case event := <-events:
		fin, ok := event.(ui.ConferenceRestructuringFinished)
		if !ok || fin.ConferenceId != cid {
			t.Fatalf("expected ConferenceRestructuringFinished for %d, got %#v", cid, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for setup to finish")
	}
}

func TestSinglePeerFastPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(7, 1, crypto.SecretKey{})
	go h.mgr.Run(ctx)

	waitForSetupFinished(t, h.uiEvents, 7)

	if len(h.outbound) == 0 {
		t.Fatal("expected the lone peer to still broadcast its setup frames")
	}
}

func TestSendBeforeSetupFinishedReportsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const cid = wire.ConferenceId(7)
	h := newHarness(cid, 2, crypto.SecretKey{})
	go h.mgr.Run(ctx)

	// with a second peer expected, setup never finishes on its own: the
	// conference is still in PublicKeyExchange when the send is attempted.
	h.events <- wire.OutboundMessageEvent{MessageId: 1, Plaintext: []byte("hi")}

	select {
	case event := <-h.uiEvents:
		me, ok := event.(ui.MessageError)
		if !ok || me.ConferenceId != cid || me.MessageId != 1 {
			t.Fatalf("expected MessageError(%d, 1), got %#v", cid, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MessageError")
	}
}

func TestTwoPeerExchangeAndMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const cid = wire.ConferenceId(7)
	key := crypto.SecretKey{0x42}

	a := newHarness(cid, 2, key)
	b := newHarness(cid, 2, key)

	go a.mgr.Run(ctx)
	go b.mgr.Run(ctx)

	relay(ctx, a, b)
	relay(ctx, b, a)

	waitForSetupFinished(t, a.uiEvents, cid)
	waitForSetupFinished(t, b.uiEvents, cid)

	a.events <- wire.OutboundMessageEvent{MessageId: 1, Plaintext: []byte("hi")}

	select {
	case event := <-b.uiEvents:
		im, ok := event.(ui.IncomingMessage)
		if !ok {
			t.Fatalf("expected IncomingMessage, got %#v", event)
		}
		if string(im.Plaintext) != "hi" {
			t.Fatalf("expected plaintext %q, got %q", "hi", im.Plaintext)
		}
		if !im.SignatureValid {
			t.Fatal("expected the ring signature to verify")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for incoming message")
	}
}

func TestTamperedKeyImageReportedInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const cid = wire.ConferenceId(7)
	key := crypto.SecretKey{0x11}

	a := newHarness(cid, 2, key)
	b := newHarness(cid, 2, key)

	go a.mgr.Run(ctx)
	go b.mgr.Run(ctx)

	relay(ctx, a, b)
	relay(ctx, b, a)

	waitForSetupFinished(t, a.uiEvents, cid)
	waitForSetupFinished(t, b.uiEvents, cid)

	plaintext := []byte("hi")
	sig, err := crypto.Sign(a.mgr.keyPair.Private, a.mgr.ringIndex, a.mgr.ring, plaintext)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload := append(sig.Encode(), plaintext...)

	// splice in a different, validly-encoded point as the key image: this
	// decodes successfully but makes the signature fail to verify, unlike a
	// random bit flip which usually just fails canonical decode outright.
	impostor, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating impostor key: %v", err)
	}
	keyImageOffset := 32 + 32*len(a.mgr.ring)
	copy(payload[keyImageOffset:keyImageOffset+32], impostor.Public.Encode(nil))

	result, err := crypto.Encrypt(encodeMessageFrame(payload), *a.mgr.ephemeralKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	b.events <- wire.IncomingMessageEvent{Payload: result.Encode()}

	select {
	case event := <-b.uiEvents:
		im, ok := event.(ui.IncomingMessage)
		if !ok {
			t.Fatalf("expected IncomingMessage, got %#v", event)
		}
		if im.SignatureValid {
			t.Fatal("expected signature_valid=false for a tampered key image")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for incoming message")
	}
}

func TestRestructuringPreservesOldRingForLateTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const cid = wire.ConferenceId(7)
	key := crypto.SecretKey{0x33}

	a := newHarness(cid, 2, key)
	b := newHarness(cid, 2, key)

	go a.mgr.Run(ctx)
	go b.mgr.Run(ctx)

	relay(ctx, a, b)
	relay(ctx, b, a)

	waitForSetupFinished(t, a.uiEvents, cid)
	waitForSetupFinished(t, b.uiEvents, cid)

	plaintext := []byte("late")
	sig, err := crypto.Sign(a.mgr.keyPair.Private, a.mgr.ringIndex, a.mgr.ring, plaintext)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload := append(sig.Encode(), plaintext...)
	oldEphemeralKey := *a.mgr.ephemeralKey
	result, err := crypto.Encrypt(encodeMessageFrame(payload), oldEphemeralKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	lateFrame := result.Encode()

	b.events <- wire.ConferenceRestructuringEvent{NumberOfPeers: 3}
	b.events <- wire.IncomingMessageEvent{Payload: lateFrame}

	select {
	case event := <-b.uiEvents:
		im, ok := event.(ui.IncomingMessage)
		if !ok {
			t.Fatalf("expected IncomingMessage, got %#v", event)
		}
		if string(im.Plaintext) != "late" {
			t.Fatalf("expected plaintext %q, got %q", "late", im.Plaintext)
		}
		if !im.SignatureValid {
			t.Fatal("expected the late message to verify against the preserved pre-restructuring ring")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the late message")
	}
}
