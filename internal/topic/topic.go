// Package topic implements MQTT topic name/filter validation and the
// single-level (+) and multi-level (#) wildcard matching rules used to
// test a PUBLISH topic against a SUBSCRIBE filter. It is pure and
// deterministic: no I/O, no broker or packet types.
package topic

import (
	"strings"
	"unicode/utf8"

	"github.com/vexmq/broker/internal/er"
)

// Split breaks a topic name or filter into its '/'-separated levels.
// A leading or trailing '/' produces an empty leading/trailing level,
// matching the MQTT spec's treatment of "/a" and "a/" as distinct from
// "a".
func Split(s string) []string {
	return strings.Split(s, "/")
}

func containsWildcards(s string) bool {
	for _, r := range s {
		if r == '+' || r == '#' {
			return true
		}
	}
	return false
}

func validChars(s string, context string) error {
	if !utf8.ValidString(s) {
		return &er.Err{Context: context, Message: er.ErrInvalidUTF8Topic}
	}
	for _, r := range s {
		if r == 0 {
			return &er.Err{Context: context, Message: er.ErrNullCharacterInTopic}
		}
		if (r >= 0x0001 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F) {
			return &er.Err{Context: context, Message: er.ErrControlCharacterInTopic}
		}
	}
	return nil
}

// ValidTopicName checks the constraints a PUBLISH topic name must meet:
// non-empty, no wildcards, valid UTF-8, no control characters.
func ValidTopicName(name string) error {
	if len(name) == 0 {
		return &er.Err{Context: "topic name", Message: er.ErrEmptyTopic}
	}
	if containsWildcards(name) {
		return &er.Err{Context: "topic name", Message: er.ErrWildcardsNotAllowedInPublish}
	}
	return validChars(name, "topic name")
}

// ValidFilter checks the constraints a SUBSCRIBE/UNSUBSCRIBE topic
// filter must meet: valid UTF-8, no control characters, and wildcards
// that are each confined to their own level, with '#' only as the
// final level.
func ValidFilter(filter string) error {
	if len(filter) == 0 {
		return &er.Err{Context: "topic filter", Message: er.ErrEmptyTopicFilter}
	}
	if err := validChars(filter, "topic filter"); err != nil {
		return err
	}

	runes := []rune(filter)
	length := len(runes)

	for i, r := range runes {
		switch r {
		case '#':
			if i != length-1 {
				return &er.Err{Context: "topic filter, wildcard", Message: er.ErrMultiLevelWildcardNotLast}
			}
			if i > 0 && runes[i-1] != '/' {
				return &er.Err{Context: "topic filter, wildcard", Message: er.ErrMultiLevelWildcardNotAlone}
			}
		case '+':
			if i > 0 && runes[i-1] != '/' {
				return &er.Err{Context: "topic filter, wildcard", Message: er.ErrSingleLevelWildcardNotAlone}
			}
			if i < length-1 && runes[i+1] != '/' {
				return &er.Err{Context: "topic filter, wildcard", Message: er.ErrSingleLevelWildcardNotAlone}
			}
		}
	}

	return nil
}

// Match reports whether topic (a concrete PUBLISH topic, no wildcards)
// satisfies filter (a SUBSCRIBE topic filter, which may contain + and #).
// filter is assumed already validated by ValidFilter. Leading '$' carries
// no special meaning here: "#" and "+/..." match a "$"-prefixed topic
// like any other.
func Match(filter, topic string) bool {
	fLevels := Split(filter)
	tLevels := Split(topic)

	for i, fl := range fLevels {
		if fl == "#" {
			return true
		}

		if i >= len(tLevels) {
			return false
		}

		if fl == "+" {
			continue
		}

		if fl != tLevels[i] {
			return false
		}
	}

	return len(fLevels) == len(tLevels)
}
