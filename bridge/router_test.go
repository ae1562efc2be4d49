// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/smswire/smswire/lib/ref"
)

func newTestRouter(t *testing.T, transport Transport) (*Router, *Directory, *fakeForwarder) {
	t.Helper()
	directory := NewDirectory()
	classifier := NewClassifier(ClassifierConfig{
		Transport: transport,
		Directory: directory,
	})
	forwarder := &fakeForwarder{}
	router := NewRouter(RouterConfig{
		Transport:  transport,
		Directory:  directory,
		Classifier: classifier,
		Identities: NewIdentities(ref.MustParseServerName("example.org"), "smswire"),
		Forwarder:  forwarder,
	})
	return router, directory, forwarder
}

func messageEvent(roomID, sender, body string) Event {
	return Event{
		RoomID:  ref.MustParseRoomID(roomID),
		EventID: ref.MustParseEventID("$" + sender + body),
		Type:    ref.EventType("m.room.message"),
		Sender:  ref.MustParseUserID(sender),
		Body:    body,
	}
}

func inviteEvent(roomID, sender, invitee string) Event {
	return Event{
		RoomID:     ref.MustParseRoomID(roomID),
		Type:       ref.EventType("m.room.member"),
		Sender:     ref.MustParseUserID(sender),
		Target:     ref.MustParseUserID(invitee),
		Membership: "invite",
	}
}

func TestRouterAcceptsVirtualIdentityInvite(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)

	// Alice invites a virtual SMS identity into a fresh room she
	// occupies alone with the bridge bot about to join.
	roomID := transport.addRoom("!room1:example.org", "@smswire:example.org", "@alice:example.org")

	router.OnEvent(context.Background(),
		inviteEvent("!room1:example.org", "@alice:example.org", "@_sms_15551234567:example.org"))

	if len(transport.joins) != 1 {
		t.Fatalf("expected one join, got %v", transport.joins)
	}
	if transport.joins[0] != "@_sms_15551234567:example.org !room1:example.org" {
		t.Errorf("join = %q", transport.joins[0])
	}

	// After the virtual identity joined, the room has three members
	// and classifies as non-administrative: it is a bridged
	// conversation, not an admin room.
	if _, ok := directory.ByRoom(roomID); ok {
		t.Error("three-party bridged room must not be registered as admin")
	}
}

func TestRouterInviteToBotCreatesAdminRoom(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)

	// Bob invites the bot to a direct chat; after the bot accepts, the
	// membership is exactly {bot, bob} and the room becomes bob's
	// admin room with a welcome notice.
	roomID := transport.addRoom("!room1:example.org", "@bob:example.org")

	router.OnEvent(context.Background(),
		inviteEvent("!room1:example.org", "@bob:example.org", "@smswire:example.org"))

	session, ok := directory.ByOwner(ref.MustParseUserID("@bob:example.org"))
	if !ok {
		t.Fatal("admin session not created after bot accepted the invite")
	}
	if session.RoomID() != roomID {
		t.Errorf("session room = %q", session.RoomID())
	}
	if got := transport.textsSent(roomID); got != 1 {
		t.Errorf("welcome notices sent = %d, want 1", got)
	}
}

func TestRouterIgnoresInvitesForForeignUsers(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, _, _ := newTestRouter(t, transport)
	transport.addRoom("!room1:example.org", "@alice:example.org")

	router.OnEvent(context.Background(),
		inviteEvent("!room1:example.org", "@alice:example.org", "@carol:example.org"))

	if len(transport.joins) != 0 {
		t.Errorf("router must not accept invites for non-bridge identities: %v", transport.joins)
	}
}

func TestRouterForwardsUserMessages(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, _, forwarder := newTestRouter(t, transport)

	router.OnEvent(context.Background(), messageEvent("!room1:example.org", "@alice:example.org", "hello"))

	if forwarder.count() != 1 {
		t.Fatalf("forwarded %d messages, want 1", forwarder.count())
	}
	if forwarder.messages[0].Body != "hello" {
		t.Errorf("forwarded body = %q", forwarder.messages[0].Body)
	}
}

func TestRouterDoesNotForwardBotMessages(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, _, forwarder := newTestRouter(t, transport)

	router.OnEvent(context.Background(), messageEvent("!room1:example.org", "@smswire:example.org", "notice"))

	if forwarder.count() != 0 {
		t.Errorf("bot messages must not reach the relay, got %d", forwarder.count())
	}
}

func TestRouterAdminDispatchDoesNotShortCircuitRelay(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	directory := NewDirectory()

	var handled []string
	classifier := NewClassifier(ClassifierConfig{
		Transport: transport,
		Directory: directory,
		Handler: CommandHandlerFunc(func(ctx context.Context, session *AdminSession, event Event) error {
			handled = append(handled, event.Body)
			return nil
		}),
	})
	forwarder := &fakeForwarder{}
	router := NewRouter(RouterConfig{
		Transport:  transport,
		Directory:  directory,
		Classifier: classifier,
		Identities: NewIdentities(ref.MustParseServerName("example.org"), "smswire"),
		Forwarder:  forwarder,
	})

	roomID := transport.addRoom("!admin:example.org", "@smswire:example.org", "@alice:example.org")
	if _, err := classifier.Classify(context.Background(), roomID,
		members("@smswire:example.org", "@alice:example.org"), ClassifyOptions{}); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	router.OnEvent(context.Background(), messageEvent("!admin:example.org", "@alice:example.org", "status"))

	if len(handled) != 1 || handled[0] != "status" {
		t.Errorf("admin handler saw %v", handled)
	}
	if forwarder.count() != 1 {
		t.Errorf("admin-room message must still reach the relay, got %d", forwarder.count())
	}
}

func TestRouterTransportFailureDoesNotStopLoop(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, _, forwarder := newTestRouter(t, transport)
	transport.membersErr = fmt.Errorf("fake: homeserver unreachable")
	transport.addRoom("!room1:example.org", "@alice:example.org")

	// The invite acceptance fails on the member fetch; OnEvent must
	// swallow it and keep processing subsequent events.
	router.OnEvent(context.Background(),
		inviteEvent("!room1:example.org", "@alice:example.org", "@smswire:example.org"))
	router.OnEvent(context.Background(), messageEvent("!room2:example.org", "@bob:example.org", "still here"))

	if forwarder.count() != 1 {
		t.Errorf("router stopped forwarding after a transport failure")
	}
}

func TestStartupScanClassifiesWithoutWelcome(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)

	adminRoom := transport.addRoom("!admin:example.org", "@smswire:example.org", "@bob:example.org")
	transport.addRoom("!group:example.org", "@smswire:example.org", "@alice:example.org", "@carol:example.org")

	if err := router.StartupScan(context.Background()); err != nil {
		t.Fatalf("StartupScan failed: %v", err)
	}

	session, ok := directory.ByOwner(ref.MustParseUserID("@bob:example.org"))
	if !ok {
		t.Fatal("startup scan did not classify the two-party room")
	}
	if session.RoomID() != adminRoom {
		t.Errorf("session room = %q", session.RoomID())
	}
	if directory.Len() != 1 {
		t.Errorf("directory has %d entries, want 1", directory.Len())
	}
	if got := transport.textsSent(adminRoom); got != 0 {
		t.Errorf("startup scan sent %d welcome notices, want 0", got)
	}
}

func TestStartupScanSkipsFailingRooms(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)
	transport.addRoom("!room1:example.org", "@smswire:example.org", "@alice:example.org")
	transport.membersErr = fmt.Errorf("fake: homeserver unreachable")

	if err := router.StartupScan(context.Background()); err != nil {
		t.Fatalf("StartupScan must not fail on per-room errors: %v", err)
	}
	if directory.Len() != 0 {
		t.Error("failed rooms must stay unclassified")
	}
}

func TestGetOrCreateAdminRoomReturnsExisting(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)
	owner := ref.MustParseUserID("@alice:example.org")

	existing := NewAdminSession(ref.MustParseRoomID("!admin:example.org"), owner, nil, nil)
	if err := directory.Put(existing); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	session, err := router.GetOrCreateAdminRoom(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetOrCreateAdminRoom failed: %v", err)
	}
	if session != existing {
		t.Error("existing session must be returned without creating a room")
	}
	if transport.totalCreated() != 0 {
		t.Errorf("created %d rooms for an owner that already had one", transport.totalCreated())
	}
}

func TestGetOrCreateAdminRoomCreatesOnce(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)
	owner := ref.MustParseUserID("@alice:example.org")

	session, err := router.GetOrCreateAdminRoom(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetOrCreateAdminRoom failed: %v", err)
	}
	if session.Owner() != owner {
		t.Errorf("owner = %q", session.Owner())
	}
	if transport.totalCreated() != 1 {
		t.Errorf("created %d rooms, want 1", transport.totalCreated())
	}
	if got := transport.textsSent(session.RoomID()); got != 1 {
		t.Errorf("welcome notices = %d, want 1", got)
	}
	if directory.Len() != 1 {
		t.Errorf("directory entries = %d", directory.Len())
	}
}

func TestGetOrCreateAdminRoomConcurrent(t *testing.T) {
	transport := newFakeTransport("@smswire:example.org")
	router, directory, _ := newTestRouter(t, transport)
	owner := ref.MustParseUserID("@alice:example.org")

	const callers = 16
	sessions := make([]*AdminSession, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := router.GetOrCreateAdminRoom(context.Background(), owner)
			if err != nil {
				t.Errorf("concurrent GetOrCreateAdminRoom failed: %v", err)
				return
			}
			sessions[i] = session
		}()
	}
	wg.Wait()

	if transport.totalCreated() != 1 {
		t.Fatalf("concurrent callers created %d rooms, want exactly 1", transport.totalCreated())
	}
	if directory.Len() != 1 {
		t.Fatalf("directory entries = %d, want 1", directory.Len())
	}
	for i, session := range sessions {
		if session != sessions[0] {
			t.Fatalf("caller %d received a different session", i)
		}
	}
}
