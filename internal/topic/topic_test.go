package topic

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"sport/tennis/player1", "sport/tennis/player1", true},
		{"sport/tennis/player1/#", "sport/tennis/player1", true},
		{"sport/tennis/player1/#", "sport/tennis/player1/ranking", true},
		{"sport/tennis/player1/#", "sport/tennis/player1/score/wimbledon", true},
		{"sport/#", "sport", true},
		{"sport/+", "sport/tennis/player1", false},
		{"sport/+/player1", "sport/tennis/player1", true},
		{"+/+", "sport/tennis", true},
		{"+", "sport/tennis", false},
		{"sport/tennis/#", "sport/tennis", true},
		{"$SYS/#", "$SYS/broker/clients", true},
		{"#", "$SYS/broker/clients", true},
		{"+/monitor/Clients", "$SYS/monitor/Clients", true},
	}

	for _, c := range cases {
		if got := Match(c.filter, c.topic); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestValidTopicName(t *testing.T) {
	if err := ValidTopicName("a/b/c"); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := ValidTopicName(""); err == nil {
		t.Error("expected error for empty topic name")
	}
	if err := ValidTopicName("a/+/c"); err == nil {
		t.Error("expected error for wildcard in topic name")
	}
}

func TestValidFilter(t *testing.T) {
	valid := []string{"a/b/+", "a/#", "+/+/+", "#", "sport/tennis/+"}
	for _, f := range valid {
		if err := ValidFilter(f); err != nil {
			t.Errorf("ValidFilter(%q) = %v, want nil", f, err)
		}
	}

	invalid := []string{"a/#/b", "a/b#", "a+/b", ""}
	for _, f := range invalid {
		if err := ValidFilter(f); err == nil {
			t.Errorf("ValidFilter(%q) = nil, want error", f)
		}
	}
}
