package wsserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
	"github.com/rendezvous-rtc/meshsignal/internal/wsserver"
	"github.com/rendezvous-rtc/meshsignal/internal/wsserver/testclient"
)

func newTestServer(t *testing.T) (string, *wsserver.Hub) {
	t.Helper()
	reg := registry.New()
	hub := wsserver.NewHub(reg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return addr, hub
}

func recvWithin(t *testing.T, ch <-chan wireproto.ServerMessage, d time.Duration) wireproto.ServerMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(d):
		t.Fatal("timed out waiting for server message")
		return wireproto.ServerMessage{}
	}
}

// Scenario 1: single-user join.
func TestSingleUserJoin(t *testing.T) {
	addr, _ := newTestServer(t)
	ctx := context.Background()

	u1, err := testclient.Connect(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer u1.Close()

	if err := u1.JoinRoom("R", "u1", "A"); err != nil {
		t.Fatal(err)
	}

	msg := recvWithin(t, u1.Received, time.Second)
	if msg.Event != wireproto.EventExistingParticipants {
		t.Fatalf("first event = %s, want existing-participants", msg.Event)
	}
	if len(msg.ExistingParticipants) != 1 || msg.ExistingParticipants[0].UserID != "u1" {
		t.Fatalf("ExistingParticipants = %+v", msg.ExistingParticipants)
	}

	msg = recvWithin(t, u1.Received, time.Second)
	if msg.Event != wireproto.EventParticipantCount || *msg.ParticipantCount != 1 {
		t.Fatalf("second event = %+v, want participant-count 1", msg)
	}
}

// Scenario 2: two-user session and signal routing.
func TestTwoUserJoinAndSignalRouting(t *testing.T) {
	addr, _ := newTestServer(t)
	ctx := context.Background()

	u1, _ := testclient.Connect(ctx, addr)
	defer u1.Close()
	u1.JoinRoom("R", "u1", "A")
	recvWithin(t, u1.Received, time.Second) // existing-participants
	recvWithin(t, u1.Received, time.Second) // participant-count 1

	u2, _ := testclient.Connect(ctx, addr)
	defer u2.Close()
	u2.JoinRoom("R", "u2", "B")

	joined := recvWithin(t, u1.Received, time.Second)
	if joined.Event != wireproto.EventUserJoined || joined.UserJoined.UserID != "u2" {
		t.Fatalf("u1 did not observe userJoined for u2: %+v", joined)
	}
	recvWithin(t, u1.Received, time.Second) // participant-count 2

	existing := recvWithin(t, u2.Received, time.Second)
	if len(existing.ExistingParticipants) != 2 {
		t.Fatalf("u2 existing-participants = %+v, want 2 members", existing.ExistingParticipants)
	}
	recvWithin(t, u2.Received, time.Second) // participant-count 2

	offer := json.RawMessage(`{"type":"offer","sdp":"X"}`)
	if err := u2.Signal("u1", "u2", offer); err != nil {
		t.Fatal(err)
	}

	relayed := recvWithin(t, u1.Received, time.Second)
	if relayed.Event != wireproto.EventSignal || relayed.Signal.From != "u2" {
		t.Fatalf("signal relay = %+v", relayed)
	}
	if string(relayed.Signal.Signal) != string(offer) {
		t.Fatalf("relayed signal payload mismatch: got %s want %s", relayed.Signal.Signal, offer)
	}
}

// Scenario 3: rejoin.
func TestRejoin(t *testing.T) {
	addr, _ := newTestServer(t)
	ctx := context.Background()

	u1, _ := testclient.Connect(ctx, addr)
	defer u1.Close()
	u1.JoinRoom("R", "u1", "A")
	recvWithin(t, u1.Received, time.Second)
	recvWithin(t, u1.Received, time.Second)

	u2, _ := testclient.Connect(ctx, addr)
	defer u2.Close()
	u2.JoinRoom("R", "u2", "B")
	recvWithin(t, u1.Received, time.Second) // userJoined u2
	recvWithin(t, u1.Received, time.Second) // participant-count 2
	recvWithin(t, u2.Received, time.Second) // existing-participants
	recvWithin(t, u2.Received, time.Second) // participant-count 2

	// Simulate a drop the server has not detected yet: u1's old socket is
	// left open and silent (no leave-room, no close) while u1 reconnects on
	// a new socket. Closing it first would let the hub's disconnect sweep
	// remove u1 and broadcast userLeft before the rejoin arrives.

	u1prime, _ := testclient.Connect(ctx, addr)
	defer u1prime.Close()
	u1prime.JoinRoom("R", "u1", "A")
	recvWithin(t, u1prime.Received, time.Second) // existing-participants
	recvWithin(t, u1prime.Received, time.Second) // participant-count

	rejoined := recvWithin(t, u2.Received, time.Second)
	if rejoined.Event != wireproto.EventUserRejoined || rejoined.UserRejoined.UserID != "u1" {
		t.Fatalf("u2 did not observe userRejoined for u1: %+v", rejoined)
	}
	count := recvWithin(t, u2.Received, time.Second)
	if count.Event != wireproto.EventParticipantCount || *count.ParticipantCount != 2 {
		t.Fatalf("participant count after rejoin = %+v, want 2", count)
	}
}

// Scenario 4: disconnect cleanup.
func TestDisconnectCleanup(t *testing.T) {
	addr, _ := newTestServer(t)
	ctx := context.Background()

	u1, _ := testclient.Connect(ctx, addr)
	defer u1.Close()
	u1.JoinRoom("R", "u1", "A")
	recvWithin(t, u1.Received, time.Second)
	recvWithin(t, u1.Received, time.Second)

	u2, _ := testclient.Connect(ctx, addr)
	u2.JoinRoom("R", "u2", "B")
	recvWithin(t, u1.Received, time.Second) // userJoined
	recvWithin(t, u1.Received, time.Second) // count 2
	recvWithin(t, u2.Received, time.Second)
	recvWithin(t, u2.Received, time.Second)

	u2.Close()

	left := recvWithin(t, u1.Received, 2*time.Second)
	if left.Event != wireproto.EventUserLeft || left.UserLeft.UserID != "u2" {
		t.Fatalf("u1 did not observe userLeft for u2: %+v", left)
	}
	count := recvWithin(t, u1.Received, time.Second)
	if count.Event != wireproto.EventParticipantCount || *count.ParticipantCount != 1 {
		t.Fatalf("participant count after disconnect = %+v, want 1", count)
	}
}

// Chat relay excludes the sender.
func TestChatRelayExcludesSender(t *testing.T) {
	addr, _ := newTestServer(t)
	ctx := context.Background()

	u1, _ := testclient.Connect(ctx, addr)
	defer u1.Close()
	u1.JoinRoom("R", "u1", "A")
	recvWithin(t, u1.Received, time.Second)
	recvWithin(t, u1.Received, time.Second)

	u2, _ := testclient.Connect(ctx, addr)
	defer u2.Close()
	u2.JoinRoom("R", "u2", "B")
	recvWithin(t, u1.Received, time.Second)
	recvWithin(t, u1.Received, time.Second)
	recvWithin(t, u2.Received, time.Second)
	recvWithin(t, u2.Received, time.Second)

	u1.ChatMessage("R", "m1", "u1", "A", "hello", 12345)

	msg := recvWithin(t, u2.Received, time.Second)
	if msg.Event != wireproto.EventReceiveMessage || msg.ReceiveMessage.Content != "hello" {
		t.Fatalf("u2 did not receive chat message: %+v", msg)
	}

	select {
	case m := <-u1.Received:
		t.Fatalf("sender should not receive its own chat message, got %+v", m)
	case <-time.After(200 * time.Millisecond):
	}
}
