package registry

import (
	"net"
	"testing"
)

func TestPutGetRemove(t *testing.T) {
	r := New()
	client, _ := net.Pipe()
	defer client.Close()

	desc := NewDescriptor("c1", client, 60, true, 0)
	if _, existed := r.Put(desc); existed {
		t.Fatalf("expected no previous descriptor")
	}

	got, ok := r.Get("c1")
	if !ok || got != desc {
		t.Fatalf("expected to find descriptor for c1")
	}

	r.Remove("c1")
	if _, ok := r.Get("c1"); ok {
		t.Fatalf("expected c1 to be removed")
	}
}

func TestPutSteal(t *testing.T) {
	r := New()
	c1, _ := net.Pipe()
	c2, _ := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	first := NewDescriptor("c1", c1, 60, true, 0)
	second := NewDescriptor("c1", c2, 60, true, 0)

	r.Put(first)
	prev, existed := r.Put(second)
	if !existed || prev != first {
		t.Fatalf("expected steal to report the previous descriptor")
	}

	got, _ := r.Get("c1")
	if got != second {
		t.Fatalf("expected second descriptor to be current")
	}
}

func TestRemoveIfMatches(t *testing.T) {
	r := New()
	c1, _ := net.Pipe()
	defer c1.Close()

	desc := NewDescriptor("c1", c1, 60, true, 0)
	r.Put(desc)

	stale := NewDescriptor("c1", c1, 60, true, 0)
	if r.RemoveIfMatches("c1", stale) {
		t.Fatalf("expected RemoveIfMatches to fail against a stale descriptor")
	}
	if !r.RemoveIfMatches("c1", desc) {
		t.Fatalf("expected RemoveIfMatches to succeed against the current descriptor")
	}
}
