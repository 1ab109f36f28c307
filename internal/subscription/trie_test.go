package subscription

import (
	"testing"

	"github.com/vexmq/broker/internal/packet"
)

func TestIndexMatch(t *testing.T) {
	idx := New()
	idx.Add("c1", "sport/tennis/+", packet.QoSAtLeastOnce)
	idx.Add("c2", "sport/#", packet.QoSAtMostOnce)
	idx.Add("c3", "sport/tennis/player1", packet.QoSExactlyOnce)

	subs := idx.Match("sport/tennis/player1")
	byClient := make(map[string]Subscription)
	for _, s := range subs {
		byClient[s.ClientID] = s
	}

	if _, ok := byClient["c1"]; !ok {
		t.Errorf("expected c1 to match")
	}
	if _, ok := byClient["c2"]; !ok {
		t.Errorf("expected c2 to match")
	}
	if s, ok := byClient["c3"]; !ok || s.QoS != packet.QoSExactlyOnce {
		t.Errorf("expected c3 to match at QoS 2, got %+v ok=%v", s, ok)
	}
}

func TestIndexMatchHighestQoSWins(t *testing.T) {
	idx := New()
	idx.Add("c1", "a/b", packet.QoSAtMostOnce)
	idx.Add("c1", "a/+", packet.QoSExactlyOnce)

	subs := idx.Match("a/b")
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}
	if subs[0].QoS != packet.QoSExactlyOnce {
		t.Errorf("expected QoS 2, got %v", subs[0].QoS)
	}
}

func TestIndexRemove(t *testing.T) {
	idx := New()
	idx.Add("c1", "a/b", packet.QoSAtMostOnce)
	idx.Remove("c1", "a/b")

	if subs := idx.Match("a/b"); len(subs) != 0 {
		t.Errorf("expected no subscribers after remove, got %d", len(subs))
	}
}

func TestIndexRemoveClient(t *testing.T) {
	idx := New()
	idx.Add("c1", "a/b", packet.QoSAtMostOnce)
	idx.Add("c1", "a/c", packet.QoSAtMostOnce)
	idx.Add("c2", "a/b", packet.QoSAtMostOnce)

	idx.RemoveClient("c1")

	if subs := idx.Match("a/b"); len(subs) != 1 || subs[0].ClientID != "c2" {
		t.Errorf("expected only c2 left on a/b, got %+v", subs)
	}
	if subs := idx.Match("a/c"); len(subs) != 0 {
		t.Errorf("expected a/c to have no subscribers, got %+v", subs)
	}
}

func TestIndexMultiLevelAtRoot(t *testing.T) {
	idx := New()
	idx.Add("c1", "sport/#", packet.QoSAtMostOnce)

	if subs := idx.Match("sport"); len(subs) != 1 {
		t.Errorf("expected sport/# to match bare 'sport', got %d", len(subs))
	}
}
