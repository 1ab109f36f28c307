package session

import (
	"testing"

	"github.com/vexmq/broker/internal/packet"
)

func TestNextPacketIDSkipsZero(t *testing.T) {
	s := New("c1", true)
	s.nextID = 0xFFFF

	first := s.NextPacketID()
	second := s.NextPacketID()

	if first != 0xFFFF {
		t.Fatalf("expected first id 0xFFFF, got %x", first)
	}
	if second != 1 {
		t.Fatalf("expected wraparound to skip 0, got %x", second)
	}
}

func TestPendingLifecycle(t *testing.T) {
	s := New("c1", true)
	id := s.NextPacketID()
	s.AddPending(&Pending{PacketID: id, Topic: "a/b"})

	if _, ok := s.Pending(id); !ok {
		t.Fatalf("expected pending for id %d", id)
	}

	s.ResolvePending(id)
	if _, ok := s.Pending(id); ok {
		t.Fatalf("expected pending to be resolved")
	}
}

func TestNextPacketIDSkipsInFlightAndReceiving(t *testing.T) {
	s := New("c1", true)
	s.nextID = 5
	s.outgoing[5] = &Pending{PacketID: 5}
	s.incoming[6] = &Incoming{Topic: "a/b"}

	id := s.NextPacketID()
	if id != 7 {
		t.Fatalf("expected id 7 (skipping 5 in-flight and 6 mid-handshake), got %d", id)
	}
}

func TestRouteActiveAssignsPacketIDAndGoesOutgoing(t *testing.T) {
	s := New("c1", false)
	s.Activate()

	sent := s.Route(&Pending{Topic: "a/b", QoS: packet.QoSAtLeastOnce})
	if sent == nil {
		t.Fatalf("expected active session to return a sendable pending")
	}
	if sent.PacketID == 0 {
		t.Fatalf("expected a nonzero packet id")
	}
	if _, ok := s.Pending(sent.PacketID); !ok {
		t.Fatalf("expected delivery to be recorded as in-flight")
	}
}

func TestRouteInactivePersistentQueuesInOrder(t *testing.T) {
	s := New("c1", false)

	r1 := s.Route(&Pending{Topic: "m1"})
	r2 := s.Route(&Pending{Topic: "m2"})
	r3 := s.Route(&Pending{Topic: "m3"})
	if r1 != nil || r2 != nil || r3 != nil {
		t.Fatalf("expected nil while inactive, deliveries queue instead")
	}

	queued := s.Activate()
	if len(queued) != 3 {
		t.Fatalf("expected 3 queued deliveries, got %d", len(queued))
	}
	if queued[0].Topic != "m1" || queued[1].Topic != "m2" || queued[2].Topic != "m3" {
		t.Fatalf("expected replay order m1,m2,m3, got %v", queued)
	}
}

func TestRouteInactiveCleanSessionDrops(t *testing.T) {
	s := New("c1", true)
	if sent := s.Route(&Pending{Topic: "a/b"}); sent != nil {
		t.Fatalf("expected clean-session offline delivery to be dropped")
	}
	if len(s.Activate()) != 0 {
		t.Fatalf("expected nothing queued for a clean session")
	}
}

func TestMarkAndResolveReceiving(t *testing.T) {
	s := New("c1", true)
	in := Incoming{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoSExactlyOnce}
	s.MarkReceiving(10, in)

	if !s.IsReceiving(10) {
		t.Fatalf("expected packet 10 to be mid QoS-2 handshake")
	}

	got, ok := s.ResolveReceiving(10)
	if !ok {
		t.Fatalf("expected to resolve packet 10")
	}
	if got.Topic != "a/b" || string(got.Payload) != "hi" {
		t.Fatalf("unexpected resolved publish: %+v", got)
	}
	if s.IsReceiving(10) {
		t.Fatalf("expected packet 10 to be cleared after resolve")
	}

	if _, ok := s.ResolveReceiving(10); ok {
		t.Fatalf("expected second resolve of the same id to fail")
	}
}

func TestStorePutGetDelete(t *testing.T) {
	store := NewStore()
	sess := New("c1", false)
	store.Put(sess)

	got, ok := store.Get("c1")
	if !ok || got.ClientID != "c1" {
		t.Fatalf("expected to find session c1")
	}

	store.Delete("c1")
	if _, ok := store.Get("c1"); ok {
		t.Fatalf("expected session c1 to be gone")
	}
}
