package registry

import "testing"

func TestSingleUserJoin(t *testing.T) {
	reg := New()
	out := reg.Join("R", "u1", "A", "s1")

	if out.Rejoin {
		t.Fatal("first join reported as rejoin")
	}
	if out.MemberCount != 1 {
		t.Fatalf("MemberCount = %d, want 1", out.MemberCount)
	}
	if len(out.Members) != 1 || out.Members[0].UserID != "u1" {
		t.Fatalf("Members = %+v", out.Members)
	}
}

func TestTwoUserJoinAndSignalRouting(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")
	out := reg.Join("R", "u2", "B", "s2")

	if out.MemberCount != 2 {
		t.Fatalf("MemberCount = %d, want 2", out.MemberCount)
	}

	sock, ok := reg.LookupSocket("u1")
	if !ok || sock != "s1" {
		t.Fatalf("LookupSocket(u1) = %v, %v", sock, ok)
	}
}

func TestRejoinReplacesInPlace(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")
	reg.Join("R", "u2", "B", "s2")

	out := reg.Join("R", "u1", "A", "s1prime")
	if !out.Rejoin {
		t.Fatal("second join for same (room,user) not reported as rejoin")
	}
	if out.MemberCount != 2 {
		t.Fatalf("MemberCount = %d, want 2 (rejoin replaces, not adds)", out.MemberCount)
	}

	sock, ok := reg.LookupSocket("u1")
	if !ok || sock != "s1prime" {
		t.Fatalf("LookupSocket(u1) = %v, %v, want s1prime", sock, ok)
	}
}

func TestDisconnectCleansIndexAndBroadcastsLeave(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")
	reg.Join("R", "u2", "B", "s2")

	outcomes := reg.Disconnect("s2")
	if len(outcomes) != 1 {
		t.Fatalf("len(outcomes) = %d, want 1", len(outcomes))
	}
	out := outcomes[0]
	if out.User != "u2" || out.Room != "R" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.MemberCount != 1 {
		t.Fatalf("MemberCount = %d, want 1", out.MemberCount)
	}

	if _, ok := reg.LookupSocket("u2"); ok {
		t.Fatal("global index still contains disconnected user")
	}
}

func TestEmptyRoomIsDestroyed(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")

	out := reg.Leave("R", "u1", "s1")
	if !out.RoomDestroyed {
		t.Fatal("room should be destroyed when its last member leaves")
	}

	for _, snap := range reg.AllRooms() {
		if snap.RoomID == "R" {
			t.Fatal("empty room still present in AllRooms")
		}
	}
}

func TestLeaveIsNoopForUnknownPair(t *testing.T) {
	reg := New()
	out := reg.Leave("ghost-room", "ghost-user", "s1")
	if out.Existed {
		t.Fatal("leave on unknown (room,user) reported as existing")
	}
}

// TestStaleSocketLeaveDoesNotClobberRejoinedIndex exercises the documented
// edge case: a leave-room arriving from a user's old, now-orphaned socket
// must not remove the index entry that now points at their new socket.
func TestStaleSocketLeaveDoesNotClobberRejoinedIndex(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")
	reg.Join("R", "u1", "A", "s1prime") // rejoin under a new socket

	reg.Leave("R", "u1", "s1") // stray leave from the old socket

	sock, ok := reg.LookupSocket("u1")
	if !ok || sock != "s1prime" {
		t.Fatalf("LookupSocket(u1) = %v, %v, want s1prime untouched", sock, ok)
	}
}

func TestDisconnectEquivalentToLeaveForEveryPinnedMembership(t *testing.T) {
	reg := New()
	reg.Join("R1", "u1", "A", "s1")
	reg.Join("R2", "u1", "A", "s1")

	outcomes := reg.Disconnect("s1")
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2 (one per room)", len(outcomes))
	}
	for _, snap := range reg.AllRooms() {
		t.Fatalf("expected no rooms left, found %+v", snap)
	}
}

func TestNoEmptyRoomsInvariantUnderSequence(t *testing.T) {
	reg := New()
	reg.Join("R", "u1", "A", "s1")
	reg.Join("R", "u2", "B", "s2")
	reg.Leave("R", "u1", "s1")
	reg.Disconnect("s2")

	for _, snap := range reg.AllRooms() {
		if snap.ParticipantCount == 0 {
			t.Fatalf("empty room %v present", snap.RoomID)
		}
	}
}
